package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// DefaultBaseURL is the met.no API root.
const DefaultBaseURL = "https://api.met.no"

// DefaultIconBase is prefixed to the symbol code to build the icon URL.
const DefaultIconBase = "https://raw.githubusercontent.com/metno/weathericons/main/weather/png/"

// ClientConfig configures the met.no client.
type ClientConfig struct {
	BaseURL   string
	IconBase  string
	Latitude  float64
	Longitude float64
	// UserAgent is mandatory for met.no; requests without one are refused.
	UserAgent string
	Timeout   time.Duration

	// Breaker settings: trip after BreakerFailures consecutive failures,
	// stay open for BreakerOpen.
	BreakerFailures uint32
	BreakerOpen     time.Duration
}

// Client fetches the locationforecast compact product behind a circuit
// breaker so a dead API is not hammered by the poller's retries.
type Client struct {
	cfg  ClientConfig
	http *http.Client
	cb   *gobreaker.CircuitBreaker
	now  func() time.Time
}

// NewClient creates a met.no client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.IconBase == "" {
		cfg.IconBase = DefaultIconBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerOpen <= 0 {
		cfg.BreakerOpen = 30 * time.Second
	}
	failures := cfg.BreakerFailures
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "metno",
			Timeout: cfg.BreakerOpen,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= failures
			},
		}),
		now: time.Now,
	}
}

// BreakerState reports the circuit breaker state for status output.
func (c *Client) BreakerState() string {
	return c.cb.State().String()
}

type forecast struct {
	Properties struct {
		Timeseries []struct {
			Time time.Time `json:"time"`
			Data struct {
				Instant struct {
					Details struct {
						AirPressure       float64 `json:"air_pressure_at_sea_level"`
						AirTemperature    float64 `json:"air_temperature"`
						RelativeHumidity  float64 `json:"relative_humidity"`
						WindFromDirection float64 `json:"wind_from_direction"`
						WindSpeed         float64 `json:"wind_speed"`
					} `json:"details"`
				} `json:"instant"`
				Next1Hours *period `json:"next_1_hours"`
				Next6Hours *period `json:"next_6_hours"`
			} `json:"data"`
		} `json:"timeseries"`
	} `json:"properties"`
}

type period struct {
	Summary struct {
		SymbolCode string `json:"symbol_code"`
	} `json:"summary"`
	Details struct {
		PrecipitationAmount float64 `json:"precipitation_amount"`
	} `json:"details"`
}

// Fetch returns the conditions of the first forecast step.
func (c *Client) Fetch(ctx context.Context) (Snapshot, error) {
	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.fetch(ctx)
	})
	if err != nil {
		return Snapshot{}, err
	}
	return res.(Snapshot), nil
}

func (c *Client) fetch(ctx context.Context) (Snapshot, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(c.cfg.Latitude, 'f', 4, 64))
	q.Set("lon", strconv.FormatFloat(c.cfg.Longitude, 'f', 4, 64))
	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/weatherapi/locationforecast/2.0/compact?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch forecast: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return Snapshot{}, fmt.Errorf("fetch forecast: unexpected status %s", resp.Status)
	}

	var f forecast
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return Snapshot{}, fmt.Errorf("decode forecast: %w", err)
	}
	return c.snapshot(f)
}

func (c *Client) snapshot(f forecast) (Snapshot, error) {
	if len(f.Properties.Timeseries) == 0 {
		return Snapshot{}, fmt.Errorf("decode forecast: empty timeseries")
	}
	step := f.Properties.Timeseries[0]
	d := step.Data.Instant.Details

	next := step.Data.Next1Hours
	if next == nil {
		next = step.Data.Next6Hours
	}

	s := Snapshot{
		Time:        c.now(),
		Latitude:    c.cfg.Latitude,
		Longitude:   c.cfg.Longitude,
		Temperature: d.AirTemperature,
		Humidity:    d.RelativeHumidity,
		Pressure:    d.AirPressure,
		WindSpeed:   msToKmh(d.WindSpeed),
		WindDirDeg:  d.WindFromDirection,
		WindDirName: DirectionName(d.WindFromDirection),
	}
	if next != nil {
		code := next.Summary.SymbolCode
		s.ConditionCode = code
		s.Condition = conditionName(code)
		s.Precipitation = next.Details.PrecipitationAmount
		if code != "" {
			s.Icon = c.cfg.IconBase + code + ".png"
		}
	}
	return s, nil
}

// conditionName strips the day/night variant: "partlycloudy_day" -> "partlycloudy".
func conditionName(code string) string {
	if i := strings.IndexByte(code, '_'); i >= 0 {
		return code[:i]
	}
	return code
}
