// Package areasummary loads the combined provider-count table for a geography
// and turns it into per-speed population shares for the area charts.
package areasummary

import (
	"context"
	"errors"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/joeblew999/plat-broadband/internal/selection"
)

var (
	// ErrMalformed is returned when a response cannot be read as combined rows.
	ErrMalformed = errors.New("malformed combined data")
	// ErrUpstream is returned for non-2xx responses.
	ErrUpstream = errors.New("upstream request failed")
	// ErrStale is returned when a newer load started before this one finished.
	ErrStale = errors.New("superseded by a newer load")
)

// Counts is one combined-table row: population by number of providers.
type Counts struct {
	Speed    string
	Has0     int64
	Has1     int64
	Has2     int64
	Has3Plus int64
}

// Total returns the population the row covers.
func (c Counts) Total() int64 {
	return c.Has0 + c.Has1 + c.Has2 + c.Has3Plus
}

// Row is a counts row converted to percentages of its total.
type Row struct {
	Speed    string  `json:"speed" doc:"Speed tier" example:"25"`
	Has0     float64 `json:"has0" doc:"Percent of population with no provider"`
	Has1     float64 `json:"has1" doc:"Percent with one provider"`
	Has2     float64 `json:"has2" doc:"Percent with two providers"`
	Has3Plus float64 `json:"has3plus" doc:"Percent with three or more providers"`
}

// Summary is the chart data for one geography.
type Summary struct {
	Geography  selection.Geography `json:"geography"`
	Rows       []Row               `json:"rows"`
	Population int64               `json:"population" doc:"Largest row total"`
	Label      string              `json:"populationLabel" doc:"Population with thousands separators" example:"326,533,070"`
	FetchedAt  time.Time           `json:"fetchedAt"`
}

// Fetcher retrieves combined rows for a geography.
type Fetcher interface {
	Fetch(ctx context.Context, geo selection.Geography) ([]Counts, error)
}

// Percentages converts each row to shares of its own total. Rows with a zero
// total yield zero shares.
func Percentages(rows []Counts) []Row {
	out := make([]Row, len(rows))
	for i, c := range rows {
		out[i] = Row{Speed: c.Speed}
		total := float64(c.Total())
		if total == 0 {
			continue
		}
		out[i].Has0 = float64(c.Has0) / total * 100
		out[i].Has1 = float64(c.Has1) / total * 100
		out[i].Has2 = float64(c.Has2) / total * 100
		out[i].Has3Plus = float64(c.Has3Plus) / total * 100
	}
	return out
}

// Build assembles a summary from fetched rows.
func Build(geo selection.Geography, rows []Counts, now time.Time) Summary {
	var population int64
	for _, c := range rows {
		population = max(population, c.Total())
	}
	return Summary{
		Geography:  geo,
		Rows:       Percentages(rows),
		Population: population,
		Label:      humanize.Comma(population),
		FetchedAt:  now,
	}
}
