// Package dashboard composes the card grid, the widgets and the layout
// store into one page.
package dashboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"solara/internal/clock"
	"solara/internal/config"
	"solara/internal/events"
	"solara/internal/grid"
	"solara/internal/ics"
	"solara/internal/layout"
	appLog "solara/internal/log"
	"solara/internal/metrics"
	"solara/internal/weather"
)

// Pointer phases accepted by Pointer.
const (
	PhaseDown   = "down"
	PhaseMove   = "move"
	PhaseUp     = "up"
	PhaseCancel = "cancel"
)

// ErrUnknownPhase is returned by Pointer for an unrecognized phase.
var ErrUnknownPhase = errors.New("dashboard: unknown pointer phase")

const (
	refreshTimeout = 20 * time.Second
	saveTimeout    = 5 * time.Second
)

// Store is the durable key/value store behind the layout and the OAuth
// token. *storage.Store implements it.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Options configure a Dashboard.
type Options struct {
	Config *config.Config
	Store  Store
	// Page is the dashboard markup the grid discovers its cards from.
	Page []byte

	HTTPClient *http.Client
	// WeatherBaseURL and CalendarEndpoint override the public APIs.
	WeatherBaseURL   string
	CalendarEndpoint string

	Now func() time.Time
	// TickInterval is the clock push period; zero means one second.
	TickInterval time.Duration
}

// View is everything the page renders.
type View struct {
	Ready   bool            `json:"ready"`
	Grid    grid.Event      `json:"grid"`
	Clock   clock.Display   `json:"clock"`
	Weather weather.Display `json:"weather"`
	Events  events.State    `json:"events"`

	// CalendarEmbed is the iframe source of the calendar card, empty
	// without public calendars.
	CalendarEmbed string `json:"calendar_embed,omitempty"`
}

// Dashboard owns the single grid engine and the widgets attached to it.
type Dashboard struct {
	cfg  *config.Config
	loc  *time.Location
	page []byte
	now  func() time.Time
	tick time.Duration

	engine    *grid.Engine
	hub       *Hub
	persister *layout.Persister
	weather   *weather.Widget
	events    *events.Widget
	auth      *events.Auth

	mu      sync.Mutex
	started bool
	cron    *cron.Cron
	stops   []func()
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds the dashboard. A stored OAuth token is loaded so the events
// card starts signed in.
func New(ctx context.Context, opts Options) (*Dashboard, error) {
	if opts.Config == nil {
		return nil, errors.New("dashboard: config is nil")
	}
	if opts.Store == nil {
		return nil, errors.New("dashboard: store is nil")
	}
	cfg := opts.Config
	d := &Dashboard{
		cfg:    cfg,
		loc:    cfg.Location(),
		page:   opts.Page,
		now:    opts.Now,
		tick:   opts.TickInterval,
		engine: grid.New(),
		hub:    NewHub(0),
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.tick <= 0 {
		d.tick = time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}

	d.persister = layout.New(opts.Store)
	d.persister.OnSave = func(err error) {
		metrics.LayoutSaves.WithLabelValues(metrics.Result(err)).Inc()
	}

	wc := weather.NewClient(weather.Config{
		City:    cfg.Weather.City,
		State:   cfg.Weather.State,
		Country: cfg.Weather.Country,
		Units:   cfg.Weather.Units,
		APIKey:  cfg.Weather.APIKey,
		BaseURL: opts.WeatherBaseURL,
	}, hc)
	d.weather = weather.NewWidget(wc, d.engine)
	d.weather.OnChange = func(v weather.Display) { d.hub.Publish(MsgWeather, v) }

	sources, err := d.eventSources(ctx, opts)
	if err != nil {
		return nil, err
	}
	d.events = events.NewWidget(events.Options{
		Auth:     d.auth,
		Sources:  sources,
		Location: d.loc,
		Grid:     d.engine,
		Now:      d.now,
	})
	d.events.OnChange = func(s events.State) { d.hub.Publish(MsgEvents, s) }
	return d, nil
}

func (d *Dashboard) eventSources(ctx context.Context, opts Options) ([]events.Source, error) {
	cal := d.cfg.Calendar
	var sources []events.Source

	if !cal.UsePublicOnly && cal.ClientID != "" {
		d.auth = events.NewAuth(cal.ClientID, cal.ClientSecret, cal.RedirectURL, opts.Store)
		if err := d.auth.Load(ctx); err != nil {
			return nil, fmt.Errorf("dashboard: %w", err)
		}
		sources = append(sources, d.primary(opts))
	}
	if len(cal.PublicCalendarIDs) > 0 && cal.APIKey != "" {
		src := events.NewPublicSource(cal.APIKey, cal.PublicCalendarIDs, d.loc)
		if opts.CalendarEndpoint != "" {
			src.WithEndpoint(opts.CalendarEndpoint)
		}
		sources = append(sources, src)
	}
	if len(d.cfg.ICS) > 0 {
		feeds := make([]ics.Feed, 0, len(d.cfg.ICS))
		for i, f := range d.cfg.ICS {
			id := f.ID
			if id == "" {
				id = "ics-" + strconv.Itoa(i)
			}
			feeds = append(feeds, ics.Feed{ID: id, Name: f.Name, URL: f.URL})
		}
		fetcher := ics.NewFetcher(filepath.Join(d.cfg.DataDir, "ics-cache"))
		if opts.HTTPClient != nil {
			fetcher.Client = opts.HTTPClient
		}
		sources = append(sources, events.NewICSSource(fetcher, feeds, d.loc))
	}
	return sources, nil
}

func (d *Dashboard) primary(opts Options) *events.GoogleSource {
	src := events.NewPrimarySource(d.auth, d.loc)
	if opts.CalendarEndpoint != "" {
		src.WithEndpoint(opts.CalendarEndpoint)
	}
	return src
}

func (d *Dashboard) gridOptions() grid.Options {
	g := d.cfg.Grid
	opts := grid.DefaultOptions()
	opts.ContainerWidth = g.ContainerWidth
	opts.SortInterval = g.SortInterval()
	opts.MinDragDistance = g.MinDragDistance
	opts.DragStartDistance = g.DragStartDistance
	opts.MinBounceBackAngle = g.BounceBackAngle()
	opts.LayoutDuration = g.LayoutDuration()
	opts.AlignRows = g.AlignRows
	return opts
}

// Start discovers the cards, restores the saved order and starts the
// scheduled refreshes. Markup without cards leaves the grid idle while the
// widgets keep working.
func (d *Dashboard) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return errors.New("dashboard: already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithLocation(d.loc))
	if _, err := c.AddFunc(d.cfg.Weather.Refresh, func() { d.RefreshWeather(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("dashboard: weather schedule %q: %w", d.cfg.Weather.Refresh, err)
	}
	if _, err := c.AddFunc(d.cfg.Calendar.Refresh, func() { d.RefreshEvents(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("dashboard: calendar schedule %q: %w", d.cfg.Calendar.Refresh, err)
	}

	container, err := grid.Discover(bytes.NewReader(d.page), grid.DefaultSelectors())
	switch {
	case errors.Is(err, grid.ErrNoCards):
		appLog.Warn("dashboard: page has no cards; grid disabled")
		container = nil
	case err != nil:
		cancel()
		return fmt.Errorf("dashboard: %w", err)
	}
	if err := d.engine.Initialize(container, d.gridOptions()); err != nil {
		cancel()
		return fmt.Errorf("dashboard: %w", err)
	}
	if err := layout.RestoreSaved(ctx, d.engine, d.persister); err != nil {
		appLog.Error("dashboard: restore layout failed", err)
	}

	d.stops = append(d.stops,
		layout.Attach(d.engine, d.persister, saveTimeout),
		d.engine.Subscribe(func(ev grid.Event) { d.hub.Publish(MsgGrid, ev) }),
	)

	d.cancel = cancel
	c.Start()
	d.cron = c

	d.wg.Add(3)
	go func() {
		defer d.wg.Done()
		d.runClock(runCtx)
	}()
	go func() {
		defer d.wg.Done()
		d.RefreshWeather(runCtx)
	}()
	go func() {
		defer d.wg.Done()
		d.RefreshEvents(runCtx)
	}()

	d.started = true
	appLog.Info("dashboard started",
		"cards", len(d.engine.Order()),
		"weather_refresh", d.cfg.Weather.Refresh,
		"calendar_refresh", d.cfg.Calendar.Refresh,
	)
	return nil
}

func (d *Dashboard) runClock(ctx context.Context) {
	t := time.NewTicker(d.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			d.hub.Publish(MsgClock, d.Clock())
		}
	}
}

// Stop halts the scheduler and the clock, detaches the observers and
// closes the hub.
func (d *Dashboard) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return
	}
	d.started = false
	<-d.cron.Stop().Done()
	d.cancel()
	d.wg.Wait()
	for _, stop := range d.stops {
		stop()
	}
	d.stops = nil
	d.hub.Close()
	appLog.Info("dashboard stopped")
}

// RefreshWeather fetches the weather once.
func (d *Dashboard) RefreshWeather(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()
	d.weather.Refresh(ctx)
}

// RefreshEvents reloads today's events once.
func (d *Dashboard) RefreshEvents(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()
	d.events.Refresh(ctx)
}

// Pointer forwards one pointer sample to the grid. Down and move always
// return OutcomeNone.
func (d *Dashboard) Pointer(phase string, p grid.Point) (grid.Outcome, error) {
	var out grid.Outcome
	switch phase {
	case PhaseDown:
		d.engine.PointerDown(p)
		return grid.OutcomeNone, nil
	case PhaseMove:
		d.engine.PointerMove(p)
		return grid.OutcomeNone, nil
	case PhaseUp:
		out = d.engine.PointerUp(p)
	case PhaseCancel:
		out = d.engine.CancelDrag()
	default:
		return grid.OutcomeNone, fmt.Errorf("%w: %q", ErrUnknownPhase, phase)
	}
	if out != grid.OutcomeNone {
		metrics.DragOutcomes.WithLabelValues(string(out)).Inc()
	}
	return out, nil
}

// Measure applies rendered sizes reported by the page.
func (d *Dashboard) Measure(sizes map[string]grid.Size) error {
	return d.engine.ResizeAll(sizes)
}

// Relayout re-packs the grid.
func (d *Dashboard) Relayout() {
	d.engine.RefreshAndRelayout()
}

// Clock returns the clock card for now.
func (d *Dashboard) Clock() clock.Display {
	return clock.Format(d.now().In(d.loc))
}

// State returns the full view.
func (d *Dashboard) State() View {
	return View{
		Ready:   d.engine.Ready(),
		Grid:    d.engine.State(),
		Clock:   d.Clock(),
		Weather: d.weather.Display(),
		Events:  d.events.State(),

		CalendarEmbed: embedURL(d.cfg.Calendar.PublicCalendarIDs, d.loc),
	}
}

const embedBase = "https://calendar.google.com/calendar/embed"

func embedURL(calendarIDs []string, loc *time.Location) string {
	if len(calendarIDs) == 0 {
		return ""
	}
	q := url.Values{}
	for _, id := range calendarIDs {
		q.Add("src", id)
	}
	q.Set("ctz", loc.String())
	q.Set("mode", "AGENDA")
	return embedBase + "?" + q.Encode()
}

// Hub returns the push hub.
func (d *Dashboard) Hub() *Hub { return d.hub }

// Engine returns the grid engine.
func (d *Dashboard) Engine() *grid.Engine { return d.engine }

// Events returns the events widget.
func (d *Dashboard) Events() *events.Widget { return d.events }

// Auth returns the calendar authorization, nil without a primary calendar.
func (d *Dashboard) Auth() *events.Auth { return d.auth }
