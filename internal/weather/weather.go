// Package weather drives the weather card from the OpenWeather current
// weather endpoint.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the OpenWeather 2.5 API root.
const DefaultBaseURL = "https://api.openweathermap.org/data/2.5"

// Config selects the location and units of the report.
type Config struct {
	City    string
	State   string
	Country string
	// Units is passed through: "imperial", "metric" or "standard".
	Units   string
	APIKey  string
	BaseURL string
}

// Report is the part of the current weather response the card shows.
type Report struct {
	Temp      float64
	TempMax   float64
	TempMin   float64
	Condition string
}

// APIError is a non-2xx answer from the weather endpoint.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("weather: api status %d", e.Status)
	}
	return fmt.Sprintf("weather: api status %d: %s", e.Status, e.Message)
}

type apiResponse struct {
	Main struct {
		Temp    float64 `json:"temp"`
		TempMax float64 `json:"temp_max"`
		TempMin float64 `json:"temp_min"`
	} `json:"main"`
	Weather []struct {
		Main string `json:"main"`
	} `json:"weather"`
	Message string `json:"message"`
}

// Client fetches reports.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient returns a client for cfg. A nil hc gets a 10s timeout client.
func NewClient(cfg Config, hc *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Units == "" {
		cfg.Units = "imperial"
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{cfg: cfg, http: hc}
}

// Location is the label under the card title: "City, State".
func (c *Client) Location() string {
	return c.cfg.City + ", " + c.cfg.State
}

func (c *Client) requestURL() string {
	q := url.Values{}
	q.Set("q", strings.Join([]string{c.cfg.City, c.cfg.State, c.cfg.Country}, ","))
	q.Set("appid", c.cfg.APIKey)
	q.Set("units", c.cfg.Units)
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/weather?" + q.Encode()
}

// Fetch requests the current weather. A non-2xx answer returns *APIError;
// anything else that goes wrong is a transport or decode error.
func (c *Client) Fetch(ctx context.Context) (Report, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(), nil)
	if err != nil {
		return Report{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Report{}, fmt.Errorf("weather: request: %w", err)
	}
	defer resp.Body.Close()

	// The body is decoded before the status is looked at: an error page
	// that is not JSON counts as a transport failure, not an API error.
	var body apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return Report{}, fmt.Errorf("weather: decode (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Report{}, &APIError{Status: resp.StatusCode, Message: body.Message}
	}
	if len(body.Weather) == 0 {
		return Report{}, errors.New("weather: response has no conditions")
	}
	return Report{
		Temp:      body.Main.Temp,
		TempMax:   body.Main.TempMax,
		TempMin:   body.Main.TempMin,
		Condition: body.Weather[0].Main,
	}, nil
}

// Display is the text of the weather card.
type Display struct {
	Location    string `json:"location"`
	Temperature string `json:"temperature"`
	Condition   string `json:"condition"`
	Details     string `json:"details"`
	// OK is false when Condition holds a failure message.
	OK        bool      `json:"ok"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Render formats a report. Values round half up, so 21.5 shows as 22° and
// -0.5 as 0°.
func Render(r Report) Display {
	return Display{
		Temperature: degrees(r.Temp),
		Condition:   r.Condition,
		Details:     "High: " + degrees(r.TempMax) + " Low: " + degrees(r.TempMin),
		OK:          true,
	}
}

func degrees(v float64) string {
	return fmt.Sprintf("%d°", int(math.Floor(v+0.5)))
}
