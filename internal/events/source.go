package events

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"solara/internal/ics"
	appLog "solara/internal/log"
	"solara/internal/model"
)

// Source lists the events overlapping [min, max).
type Source interface {
	Name() string
	Events(ctx context.Context, min, max time.Time) ([]model.Event, error)
}

// gated is implemented by sources that cannot be queried right now, such
// as the primary calendar before sign in.
type gated interface {
	Ready() bool
}

// PrimaryCalendar is the signed-in user's calendar id.
const PrimaryCalendar = "primary"

const maxResults = 50

// GoogleSource lists events with the Calendar v3 API, either from the
// signed-in user's primary calendar or from public calendars with an API
// key.
type GoogleSource struct {
	auth        *Auth
	apiKey      string
	calendarIDs []string
	endpoint    string
	loc         *time.Location
}

// NewPrimarySource reads the primary calendar through auth.
func NewPrimarySource(auth *Auth, loc *time.Location) *GoogleSource {
	return &GoogleSource{auth: auth, calendarIDs: []string{PrimaryCalendar}, loc: loc}
}

// NewPublicSource reads the given public calendars with an API key.
func NewPublicSource(apiKey string, calendarIDs []string, loc *time.Location) *GoogleSource {
	return &GoogleSource{apiKey: apiKey, calendarIDs: calendarIDs, loc: loc}
}

// WithEndpoint points the source at another API root.
func (s *GoogleSource) WithEndpoint(endpoint string) *GoogleSource {
	s.endpoint = endpoint
	return s
}

func (s *GoogleSource) Name() string { return "google" }

// Ready is false for the primary calendar until someone signs in.
func (s *GoogleSource) Ready() bool {
	return s.auth == nil || s.auth.SignedIn()
}

func (s *GoogleSource) service(ctx context.Context) (*calendar.Service, error) {
	var opts []option.ClientOption
	if s.auth != nil {
		hc, err := s.auth.Client(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, option.WithHTTPClient(hc))
	} else {
		opts = append(opts, option.WithAPIKey(s.apiKey))
	}
	if s.endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.endpoint))
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("events: calendar service: %w", err)
	}
	return svc, nil
}

// Events queries every calendar concurrently and merges the results.
func (s *GoogleSource) Events(ctx context.Context, min, max time.Time) ([]model.Event, error) {
	svc, err := s.service(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu  sync.Mutex
		out []model.Event
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range s.calendarIDs {
		id := id
		g.Go(func() error {
			resp, err := svc.Events.List(id).
				TimeMin(min.UTC().Format(time.RFC3339)).
				TimeMax(max.UTC().Format(time.RFC3339)).
				ShowDeleted(false).
				SingleEvents(true).
				OrderBy("startTime").
				MaxResults(maxResults).
				Context(gctx).
				Do()
			if err != nil {
				return classify(id, err)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, item := range resp.Items {
				out = append(out, fromCalendar(id, item, s.loc))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// classify maps 401 and 403 answers to ErrUnauthorized.
func classify(calendarID string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden) {
		return fmt.Errorf("%w: %s: %d", ErrUnauthorized, calendarID, gerr.Code)
	}
	return fmt.Errorf("events: list %s: %w", calendarID, err)
}

func fromCalendar(calendarID string, item *calendar.Event, loc *time.Location) model.Event {
	ev := model.Event{
		Source:   calendarID,
		ID:       item.Id,
		Title:    item.Summary,
		Location: item.Location,
		Link:     item.HtmlLink,
	}
	if item.Start != nil && item.Start.DateTime == "" && item.Start.Date != "" {
		ev.AllDay = true
	}
	ev.Start = eventTime(item.Start, loc)
	ev.End = eventTime(item.End, loc)
	if ev.End.IsZero() {
		ev.End = ev.Start
	}
	return ev
}

// eventTime reads a dateTime, or a date as local midnight of that day.
func eventTime(t *calendar.EventDateTime, loc *time.Location) time.Time {
	if t == nil {
		return time.Time{}
	}
	if t.DateTime != "" {
		if v, err := time.Parse(time.RFC3339, t.DateTime); err == nil {
			return v.In(loc)
		}
	}
	if t.Date != "" {
		if v, err := time.ParseInLocation("2006-01-02", t.Date, loc); err == nil {
			return v
		}
	}
	return time.Time{}
}

// ICSSource serves today's events of subscribed iCalendar feeds.
type ICSSource struct {
	fetcher *ics.Fetcher
	feeds   []ics.Feed
	loc     *time.Location
}

// NewICSSource returns a source over feeds.
func NewICSSource(fetcher *ics.Fetcher, feeds []ics.Feed, loc *time.Location) *ICSSource {
	return &ICSSource{fetcher: fetcher, feeds: feeds, loc: loc}
}

func (s *ICSSource) Name() string { return "ics" }

// Events fetches, parses and expands every feed. A feed that fails is
// left out; the call fails only when no feed produced a body.
func (s *ICSSource) Events(ctx context.Context, min, max time.Time) ([]model.Event, error) {
	payloads, err := s.fetcher.FetchAll(ctx, s.feeds)
	if len(payloads) == 0 && err != nil {
		return nil, err
	}
	var out []model.Event
	for _, p := range payloads {
		vevents, err := ics.Parse(p.Feed, p.Body, s.loc)
		if err != nil {
			appLog.Error("events: ics parse failed", err, "feed", p.Feed.ID)
			continue
		}
		out = append(out, ics.Expand(vevents, min, max, s.loc)...)
	}
	return out, nil
}
