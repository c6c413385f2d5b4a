// Package events drives the "Today's Events" card.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	appLog "solara/internal/log"
	"solara/internal/metrics"
	"solara/internal/model"
)

// Status lines of the card.
const (
	StatusReady        = "Ready. Click Sign in."
	StatusLoading      = "Loading today’s events…"
	StatusLoadPublic   = "Loading public calendars…"
	StatusNone         = "No events today."
	StatusAuthRequired = "Authorization required. Click Sign in."
	StatusFailed       = "Failed to load events."
	StatusSignedOut    = "Signed out."
)

// Relayouter is the grid handle a widget uses after its content changed.
type Relayouter interface {
	RefreshAndRelayout()
}

// State is what the card shows.
type State struct {
	SignedIn        bool   `json:"signed_in"`
	ShowAuthButtons bool   `json:"show_auth_buttons"`
	CanSignIn       bool   `json:"can_sign_in"`
	CanSignOut      bool   `json:"can_sign_out"`
	CanRefresh      bool   `json:"can_refresh"`
	Refreshing      bool   `json:"refreshing"`
	Status          string `json:"status"`
	Items           []Item `json:"items"`
	HTML            string `json:"html"`
}

// Options configure a widget.
type Options struct {
	// Auth is set when the primary calendar is used; nil means public
	// calendars or feeds only and hides the auth buttons.
	Auth     *Auth
	Sources  []Source
	Location *time.Location
	Grid     Relayouter
	Now      func() time.Time
}

// Widget keeps the card state.
type Widget struct {
	auth    *Auth
	sources []Source
	loc     *time.Location
	grid    Relayouter
	now     func() time.Time

	mu       sync.RWMutex
	signedIn bool
	busy     int
	status   string
	items    []Item

	// OnChange, if set, receives every new state.
	OnChange func(State)
}

// NewWidget builds the widget. With auth set the card starts signed out
// unless a token was loaded.
func NewWidget(opts Options) *Widget {
	w := &Widget{
		auth:    opts.Auth,
		sources: opts.Sources,
		loc:     opts.Location,
		grid:    opts.Grid,
		now:     opts.Now,
	}
	if w.loc == nil {
		w.loc = time.Local
	}
	if w.now == nil {
		w.now = time.Now
	}
	switch {
	case w.auth == nil:
		w.status = StatusLoadPublic
	case w.auth.SignedIn():
		w.signedIn = true
		w.status = StatusLoading
	default:
		w.status = StatusReady
	}
	return w
}

// State returns the current card state.
func (w *Widget) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stateLocked()
}

func (w *Widget) stateLocked() State {
	s := State{
		SignedIn:   w.signedIn,
		Refreshing: w.busy > 0,
		Status:     w.status,
		Items:      append([]Item(nil), w.items...),
		HTML:       RenderItems(w.items),
	}
	if w.auth == nil {
		s.CanRefresh = w.busy == 0
		return s
	}
	s.ShowAuthButtons = true
	s.CanSignIn = !w.signedIn
	s.CanSignOut = w.signedIn
	s.CanRefresh = w.signedIn && w.busy == 0
	return s
}

// Refresh loads today's events from every ready source. Failures are
// reported through the status line, never returned.
func (w *Widget) Refresh(ctx context.Context) {
	sources := w.readySources()
	if len(sources) == 0 {
		return
	}

	w.update(func() {
		w.busy++
		w.status = StatusLoading
	})

	min, max := model.Day(w.now().In(w.loc))
	events, err := fetchAll(ctx, sources, min, max)

	switch {
	case errors.Is(err, ErrUnauthorized):
		appLog.Warn("events: authorization rejected", "err", err.Error())
		if w.auth != nil {
			w.auth.Forget(ctx)
		}
		metrics.WidgetRefreshes.WithLabelValues("events", "unauthorized").Inc()
		w.update(func() {
			w.busy--
			w.signedIn = false
			w.status = StatusAuthRequired
		})
		return
	case err != nil:
		appLog.Error("events: refresh failed", err)
		metrics.WidgetRefreshes.WithLabelValues("events", "error").Inc()
		w.update(func() {
			w.busy--
			w.status = StatusFailed
		})
		return
	}

	model.SortByStart(events)
	items := Items(events, w.loc)
	metrics.WidgetRefreshes.WithLabelValues("events", "ok").Inc()
	w.update(func() {
		w.busy--
		w.items = items
		w.status = countStatus(len(items))
	})
	if w.grid != nil {
		w.grid.RefreshAndRelayout()
	}
}

func countStatus(n int) string {
	switch n {
	case 0:
		return StatusNone
	case 1:
		return "Today: 1 event."
	default:
		return fmt.Sprintf("Today: %d events.", n)
	}
}

func (w *Widget) readySources() []Source {
	out := make([]Source, 0, len(w.sources))
	for _, s := range w.sources {
		if g, ok := s.(gated); ok && !g.Ready() {
			continue
		}
		out = append(out, s)
	}
	return out
}

// fetchAll queries sources concurrently. An authorization failure wins
// over other errors.
func fetchAll(ctx context.Context, sources []Source, min, max time.Time) ([]model.Event, error) {
	results := make([][]model.Event, len(sources))
	errs := make([]error, len(sources))
	var g errgroup.Group
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			evs, err := src.Events(ctx, min, max)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", src.Name(), err)
				return nil
			}
			results[i] = evs
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if errors.Is(err, ErrUnauthorized) {
			return nil, err
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	var out []model.Event
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// SignedIn marks the card signed in after a completed sign in and loads
// the events.
func (w *Widget) SignedIn(ctx context.Context) {
	w.update(func() { w.signedIn = true })
	w.Refresh(ctx)
}

// SignOut revokes the token, clears the list and shows the signed-out
// status.
func (w *Widget) SignOut(ctx context.Context) error {
	var err error
	if w.auth != nil {
		err = w.auth.SignOut(ctx)
		if err != nil {
			appLog.Error("events: sign out", err)
		}
	}
	w.update(func() {
		w.signedIn = false
		w.items = nil
		w.status = StatusSignedOut
	})
	if w.grid != nil {
		w.grid.RefreshAndRelayout()
	}
	return err
}

func (w *Widget) update(fn func()) {
	w.mu.Lock()
	fn()
	s := w.stateLocked()
	w.mu.Unlock()
	if w.OnChange != nil {
		w.OnChange(s)
	}
}
