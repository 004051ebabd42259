package selection

import (
	"net/url"
	"sync"

	"github.com/joeblew999/plat-broadband/internal/catalog"
	"github.com/joeblew999/plat-broadband/internal/legend"
	"github.com/joeblew999/plat-broadband/internal/overlay"
)

// Sync holds the persisted query state of one map. It receives selection
// changes from the engine and restores selections on navigation.
type Sync struct {
	mu       sync.RWMutex
	state    State
	catalog  *catalog.Catalog
	table    legend.Table
	defaults overlay.Selection
}

var _ overlay.StateSink = (*Sync)(nil)

// NewSync creates a state sync validating against the catalog and tech table.
func NewSync(cat *catalog.Catalog, table legend.Table, defaults overlay.Selection) *Sync {
	if table == nil {
		table = legend.DefaultTable()
	}
	return &Sync{catalog: cat, table: table, defaults: defaults, state: State{Geography: Nation()}}
}

// SelectionChanged records the tech and speed of the installed selection.
func (s *Sync) SelectionChanged(sel overlay.Selection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Tech = sel.TechString()
	s.state.Speed = sel.Speed
}

// Cleared drops every persisted field.
func (s *Sync) Cleared() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{Geography: Nation()}
}

// Navigate replaces the geography from query values, falling back to the
// nation default, and returns the geography now in effect.
func (s *Sync) Navigate(q url.Values) Geography {
	g := ParseGeography(q)
	s.mu.Lock()
	s.state.Geography = g
	s.mu.Unlock()
	return g
}

// Restore builds the selection encoded in q. Tech codes must all be known and
// the tier must have its own catalog entry; otherwise the default is used for
// that field.
func (s *Sync) Restore(q url.Values) overlay.Selection {
	sel := s.defaults
	if tech := q.Get(ParamTech); tech != "" && s.validTech(tech) {
		sel.Tech = overlay.ParseTech(tech)
	}
	if speed := q.Get(ParamSpeed); speed != "" && s.catalog.Known(speed) {
		sel.Speed = speed
	}
	return sel
}

func (s *Sync) validTech(tech string) bool {
	for _, code := range overlay.ParseTech(tech) {
		if _, ok := s.table.Name(code); !ok {
			return false
		}
	}
	return true
}

// State returns the current persisted state.
func (s *Sync) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Query returns the encoded query string, e.g. "speed=25_3&tech=acfosw".
func (s *Sync) Query() string {
	return s.State().Encode().Encode()
}
