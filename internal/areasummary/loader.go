package areasummary

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/joeblew999/plat-broadband/internal/metrics"
	"github.com/joeblew999/plat-broadband/internal/selection"
)

// Loader fetches summaries and keeps the latest one. Loads are numbered; a
// completion is kept only if no later load has started, so a slow superseded
// request cannot overwrite newer data. Failures leave the current summary in
// place and are not retried.
type Loader struct {
	fetcher Fetcher
	log     *slog.Logger
	clock   clockwork.Clock

	mu      sync.Mutex
	seq     uint64
	current *Summary
}

// NewLoader creates a loader over fetcher. Summaries are stamped with clock.
func NewLoader(fetcher Fetcher, clock clockwork.Clock, log *slog.Logger) *Loader {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Loader{fetcher: fetcher, clock: clock, log: log}
}

// Load fetches the summary for geo. It returns ErrStale when a newer load
// started while this one was in flight; the summary is then discarded.
func (l *Loader) Load(ctx context.Context, geo selection.Geography) (Summary, error) {
	l.mu.Lock()
	l.seq++
	ticket := l.seq
	l.mu.Unlock()

	start := l.clock.Now()
	rows, err := l.fetcher.Fetch(ctx, geo)
	metrics.SummaryFetchDuration.Observe(l.clock.Since(start).Seconds())
	if err != nil {
		metrics.SummaryFetchTotal.WithLabelValues("error").Inc()
		l.log.Error("area summary fetch failed", "type", geo.Type, "geoid", geo.ID, "error", err)
		return Summary{}, err
	}

	s := Build(geo, rows, l.clock.Now())

	l.mu.Lock()
	defer l.mu.Unlock()
	if ticket != l.seq {
		metrics.SummaryFetchTotal.WithLabelValues("stale").Inc()
		l.log.Debug("discarding stale area summary", "type", geo.Type, "geoid", geo.ID)
		return s, ErrStale
	}
	l.current = &s
	metrics.SummaryFetchTotal.WithLabelValues("ok").Inc()
	return s, nil
}

// Current returns the latest applied summary.
func (l *Loader) Current() (Summary, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return Summary{}, false
	}
	return *l.current, true
}
