package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"solara/internal/capture"
	"solara/internal/config"
	"solara/internal/dashboard"
	appLog "solara/internal/log"
	"solara/internal/storage"
	"solara/internal/web"
)

const version = "0.1.0"

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	snapshot   bool
}

func main() {
	appLog.Info("solara starting", "version", version)

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"data_dir", conf.DataDir,
		"weather_city", conf.Weather.City,
		"calendar_oauth", conf.Calendar.ClientID != "",
		"public_calendars", len(conf.Calendar.PublicCalendarIDs),
		"ics_count", len(conf.ICS),
		"snapshot", flags.snapshot,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, conf, flags); err != nil {
		appLog.Error("solara failed", err)
		os.Exit(1)
	}
	appLog.Info("solara exiting")
}

func run(ctx context.Context, conf *config.Config, flags flagConfig) error {
	store, err := storage.New(filepath.Join(conf.DataDir, "solara.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	dash, err := dashboard.New(ctx, dashboard.Options{
		Config: conf,
		Store:  store,
		Page:   web.Page(),
	})
	if err != nil {
		return err
	}
	if err := dash.Start(ctx); err != nil {
		return err
	}
	defer dash.Stop()

	srv := web.NewServer(conf, dash)
	httpServer := &http.Server{
		Addr:              conf.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if flags.snapshot {
		opts := capture.Options{
			URL:        "http://" + conf.Listen + "/",
			OutputPath: srv.PreviewPath,
		}
		if conf.BasicAuth != nil {
			opts.Username = conf.BasicAuth.Username
			opts.Password = conf.BasicAuth.Password
		}
		g.Go(func() error {
			// One preview, then exit.
			defer stop()
			if err := waitHealthy(gctx, "http://"+conf.Listen+"/health"); err != nil {
				return err
			}
			return capture.CaptureDashboardPNG(gctx, opts)
		})
	}
	return g.Wait()
}

// waitHealthy polls url until it answers 200.
func waitHealthy(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		if resp, err := http.DefaultClient.Do(req); err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("server not healthy: %w", ctx.Err())
		case <-t.C:
		}
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.snapshot, "snapshot", false, "Capture preview.png of the dashboard and exit")

	flag.Parse()

	return cfg
}
