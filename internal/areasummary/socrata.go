package areasummary

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/joeblew999/plat-broadband/internal/selection"
)

// SocrataConfig selects the combined-table endpoint.
type SocrataConfig struct {
	Env       string // "DEV" or "PROD"
	DevURL    string
	ProdURL   string
	BasicAuth string // base64 user:password, DEV only
	AppToken  string // PROD only, optional
	Tech      string // technology filter, defaults to "a" (all)
	Timeout   time.Duration
}

// SocrataFetcher reads combined rows from a Socrata dataset.
type SocrataFetcher struct {
	cfg    SocrataConfig
	client *http.Client
}

var _ Fetcher = (*SocrataFetcher)(nil)

// NewSocrataFetcher creates a fetcher; a nil client uses one with cfg.Timeout.
func NewSocrataFetcher(cfg SocrataConfig, client *http.Client) *SocrataFetcher {
	if cfg.Tech == "" {
		cfg.Tech = "a"
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &SocrataFetcher{cfg: cfg, client: client}
}

func (f *SocrataFetcher) endpoint() (string, error) {
	switch strings.ToUpper(f.cfg.Env) {
	case "DEV":
		return f.cfg.DevURL, nil
	case "PROD":
		return f.cfg.ProdURL, nil
	default:
		return "", fmt.Errorf("socrata env must be PROD or DEV, not %q", f.cfg.Env)
	}
}

// Fetch requests the rows for geo ordered by speed.
func (f *SocrataFetcher) Fetch(ctx context.Context, geo selection.Geography) ([]Counts, error) {
	endpoint, err := f.endpoint()
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("socrata url %q is not valid", endpoint)
	}

	q := u.Query()
	q.Set("id", geo.ID)
	q.Set("type", geo.Type)
	q.Set("tech", f.cfg.Tech)
	q.Set("$order", "speed")
	if strings.EqualFold(f.cfg.Env, "PROD") && f.cfg.AppToken != "" {
		q.Set("$$app_token", f.cfg.AppToken)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if strings.EqualFold(f.cfg.Env, "DEV") && f.cfg.BasicAuth != "" {
		req.Header.Set("Authorization", "Basic "+f.cfg.BasicAuth)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("socrata request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("socrata read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("socrata status %d: %s: %w", resp.StatusCode, snippet(body), ErrUpstream)
	}
	return ParseRows(body)
}

// ParseRows reads a JSON array of rows whose counts may be encoded as strings.
func ParseRows(body []byte) ([]Counts, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid JSON: %w", ErrMalformed)
	}
	res := gjson.ParseBytes(body)
	if !res.IsArray() {
		return nil, fmt.Errorf("expected array, got %s: %w", res.Type, ErrMalformed)
	}

	var rows []Counts
	var parseErr error
	res.ForEach(func(i, row gjson.Result) bool {
		c := Counts{Speed: row.Get("speed").String()}
		fields := []struct {
			key string
			dst *int64
		}{
			{"has_0", &c.Has0},
			{"has_1", &c.Has1},
			{"has_2", &c.Has2},
			{"has_3plus", &c.Has3Plus},
		}
		for _, fld := range fields {
			v := row.Get(fld.key)
			if !v.Exists() {
				parseErr = fmt.Errorf("row %d: missing %s: %w", i.Int(), fld.key, ErrMalformed)
				return false
			}
			*fld.dst = v.Int()
		}
		rows = append(rows, c)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return rows, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
