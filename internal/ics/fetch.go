// Package ics turns subscribed iCalendar feeds into today's events.
package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	appLog "solara/internal/log"
)

// Feed is one subscribed calendar.
type Feed struct {
	ID   string
	Name string
	URL  string
}

// Payload is the body of one feed, fresh or from the disk cache.
type Payload struct {
	Feed   Feed
	Body   []byte
	Cached bool
}

// validators are the HTTP cache validators kept next to a cached body.
type validators struct {
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
}

const (
	bodyFile = "body.ics"
	metaFile = "meta.json"
	maxBody  = 8 << 20
)

// Fetcher downloads feeds with conditional requests and falls back to the
// last good body when the network or the server fails.
type Fetcher struct {
	Client   *http.Client
	CacheDir string
}

// NewFetcher returns a fetcher caching under dir.
func NewFetcher(dir string) *Fetcher {
	if dir == "" {
		dir = filepath.Join(".", "var", "ics-cache")
	}
	return &Fetcher{Client: &http.Client{Timeout: 15 * time.Second}, CacheDir: dir}
}

// FetchAll fetches feeds concurrently. Payloads keep the feed order; feeds
// that produced nothing are reported in the joined error.
func (f *Fetcher) FetchAll(ctx context.Context, feeds []Feed) ([]Payload, error) {
	slots := make([]*Payload, len(feeds))
	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, feed := range feeds {
		i, feed := i, feed
		g.Go(func() error {
			p, err := f.Fetch(gctx, feed)
			if err != nil {
				appLog.Error("ics: fetch failed", err, "feed", feed.ID, "url", RedactURL(feed.URL))
				mu.Lock()
				errs = append(errs, fmt.Errorf("ics: %s: %w", feed.ID, err))
				mu.Unlock()
				return nil
			}
			slots[i] = &p
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Payload, 0, len(feeds))
	for _, p := range slots {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out, errors.Join(errs...)
}

// Fetch downloads one feed.
func (f *Fetcher) Fetch(ctx context.Context, feed Feed) (Payload, error) {
	if feed.URL == "" {
		return Payload{}, errors.New("empty feed url")
	}
	dir := f.cacheDir(feed.URL)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Payload{}, err
	}
	meta := readValidators(dir)
	cached, _ := os.ReadFile(filepath.Join(dir, bodyFile))
	fallback := func(reason error) (Payload, error) {
		if len(cached) == 0 {
			return Payload{}, reason
		}
		appLog.Warn("ics: using cached body", "feed", feed.ID, "reason", reason.Error())
		return Payload{Feed: feed, Body: cached, Cached: true}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return Payload{}, err
	}
	if len(cached) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fallback(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		if len(cached) == 0 {
			return Payload{}, errors.New("304 without a cached body")
		}
		appLog.Debug("ics: not modified", "feed", feed.ID)
		return Payload{Feed: feed, Body: cached, Cached: true}, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fallback(fmt.Errorf("unexpected status %s", resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fallback(err)
	}
	next := validators{
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		FetchedAt:    time.Now().UTC(),
	}
	if err := writeCache(dir, next, body); err != nil {
		appLog.Error("ics: cache write failed", err, "feed", feed.ID)
	}
	appLog.Info("ics: fetched", "feed", feed.ID, "url", RedactURL(feed.URL), "bytes", len(body))
	return Payload{Feed: feed, Body: body}, nil
}

func (f *Fetcher) cacheDir(u string) string {
	sum := sha256.Sum256([]byte(u))
	return filepath.Join(f.CacheDir, hex.EncodeToString(sum[:8]))
}

func readValidators(dir string) validators {
	var v validators
	data, err := os.ReadFile(filepath.Join(dir, metaFile))
	if err != nil {
		return v
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return validators{}
	}
	return v
}

// writeCache stores the body before the validators so the validators never
// describe a body that is not there.
func writeCache(dir string, v validators, body []byte) error {
	if err := os.WriteFile(filepath.Join(dir, bodyFile), body, 0o600); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, metaFile), data, 0o600)
}

// RedactURL keeps only the scheme and host of a feed url. Private feed
// urls carry their secret in the path or query.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
