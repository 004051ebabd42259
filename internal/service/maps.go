package service

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-broadband/internal/areasummary"
	"github.com/joeblew999/plat-broadband/internal/catalog"
	"github.com/joeblew999/plat-broadband/internal/legend"
	"github.com/joeblew999/plat-broadband/internal/mapbackend"
	"github.com/joeblew999/plat-broadband/internal/metrics"
	"github.com/joeblew999/plat-broadband/internal/overlay"
	"github.com/joeblew999/plat-broadband/internal/selection"
)

// ErrMapNotFound is returned for an unknown map id.
var ErrMapNotFound = errors.New("map not found")

// Config configures a MapService.
type Config struct {
	DataDir string // where maps.json is kept; empty disables persistence
	Catalog *catalog.Catalog
	Overlay overlay.Config
	Table   legend.Table
	Fetcher areasummary.Fetcher // nil disables area summaries
	Bus     *EventBus
	Clock   clockwork.Clock
	Logger  *slog.Logger
}

// MapService manages mounted maps.
type MapService struct {
	dataDir string
	catalog *catalog.Catalog
	overlay overlay.Config
	deriver *legend.Deriver
	fetcher areasummary.Fetcher
	bus     *EventBus
	clock   clockwork.Clock
	log     *slog.Logger

	mu      sync.RWMutex
	maps    map[string]*Instance
	saveMu  sync.Mutex
	persist atomic.Bool
}

// NewMapService creates the service and remounts maps saved in DataDir.
func NewMapService(cfg Config) *MapService {
	if cfg.Catalog == nil {
		cfg.Catalog = catalog.Default()
	}
	if cfg.Bus == nil {
		cfg.Bus = NewEventBus()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &MapService{
		dataDir: cfg.DataDir,
		catalog: cfg.Catalog,
		overlay: cfg.Overlay,
		deriver: legend.NewDeriver(cfg.Table),
		fetcher: cfg.Fetcher,
		bus:     cfg.Bus,
		clock:   cfg.Clock,
		log:     cfg.Logger,
		maps:    make(map[string]*Instance),
	}
	s.loadFromDisk()
	s.persist.Store(true)
	return s
}

// Bus returns the event bus maps publish to.
func (s *MapService) Bus() *EventBus { return s.bus }

// Catalog returns the layer catalog.
func (s *MapService) Catalog() *catalog.Catalog { return s.catalog }

// Mount creates a map, applies the initial query and fires map-ready.
func (s *MapService) Mount(req MountRequest) (*Instance, error) {
	q, err := url.ParseQuery(req.Query)
	if err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}
	bounds := DefaultBounds
	if req.Bounds != nil {
		b := *req.Bounds
		bounds = orb.Bound{Min: orb.Point{b[0], b[1]}, Max: orb.Point{b[2], b[3]}}
		if err := ValidateBounds(bounds); err != nil {
			return nil, err
		}
	}
	zoom := req.Zoom
	if zoom == 0 {
		zoom = DefaultZoom
	}

	inst := s.newInstance(uuid.NewString(), s.clock.Now().UTC(), NewMapView(bounds, zoom))
	s.add(inst)
	s.log.Info("map mounted", "map_id", inst.ID)

	inst.Sync.Navigate(q)
	if q.Has(selection.ParamTech) || q.Has(selection.ParamSpeed) {
		inst.Engine.SetSelection(inst.Sync.Restore(q))
	} else {
		inst.Engine.Ready()
	}
	return inst, nil
}

func (s *MapService) newInstance(id string, created time.Time, view MapView) *Instance {
	log := s.log.With("map_id", id)
	inst := &Instance{
		ID:      id,
		Created: created,
		View:    view,
		Backend: mapbackend.NewMemory(s.catalog.BaseLayers()...),
		Sync:    selection.NewSync(s.catalog, s.deriver.Table(), s.overlay.DefaultSelection()),
		svc:     s,
		log:     log,
	}
	if s.fetcher != nil {
		inst.Summary = areasummary.NewLoader(s.fetcher, s.clock, log)
	}
	inst.Engine = overlay.New(inst.Backend, s.catalog, s.overlay,
		overlay.WithLogger(log),
		overlay.WithDeriver(s.deriver),
		overlay.WithStateSink(inst.Sync),
		overlay.WithNotify(inst.onChange),
	)
	return inst
}

func (s *MapService) add(inst *Instance) {
	s.mu.Lock()
	s.maps[inst.ID] = inst
	n := len(s.maps)
	s.mu.Unlock()
	metrics.MapsMounted.Set(float64(n))
}

// Get returns a map by id.
func (s *MapService) Get(id string) (*Instance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.maps[id]
	return inst, ok
}

// List returns mounted maps, oldest first.
func (s *MapService) List() []*Instance {
	s.mu.RLock()
	out := make([]*Instance, 0, len(s.maps))
	for _, inst := range s.maps {
		out = append(out, inst)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Instance) int {
		if c := a.Created.Compare(b.Created); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Unmount removes a map and its overlay.
func (s *MapService) Unmount(id string) error {
	s.mu.Lock()
	inst, ok := s.maps[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrMapNotFound, id)
	}
	delete(s.maps, id)
	n := len(s.maps)
	s.mu.Unlock()

	metrics.MapsMounted.Set(float64(n))
	s.bus.Publish(Event{MapID: id, Kind: EventMapUnmounted})
	s.log.Info("map unmounted", "map_id", id, "layers", len(inst.Engine.ActiveLayers()))
	s.changed()
	return nil
}

// changed persists the current maps. Errors are logged; the in-memory state
// stays authoritative.
func (s *MapService) changed() {
	if !s.persist.Load() || s.dataDir == "" {
		return
	}
	if err := s.saveToDisk(); err != nil {
		s.log.Error("failed to save maps", "error", err)
	}
}

// configFile returns the path to the maps snapshot file.
func (s *MapService) configFile() string {
	return filepath.Join(s.dataDir, "maps.json")
}

// loadFromDisk remounts maps from the snapshot file.
func (s *MapService) loadFromDisk() {
	if s.dataDir == "" {
		return
	}
	data, err := os.ReadFile(s.configFile())
	if err != nil {
		return // File doesn't exist yet, start empty
	}

	var snaps []mapSnapshot
	if err := json.Unmarshal(data, &snaps); err != nil {
		s.log.Warn("ignoring unreadable maps file", "path", s.configFile(), "error", err)
		return
	}

	for _, snap := range snaps {
		q, err := url.ParseQuery(snap.Query)
		if err != nil {
			s.log.Warn("skipping map with bad query", "map_id", snap.ID, "error", err)
			continue
		}
		inst := s.newInstance(snap.ID, snap.Created, snap.View)
		s.add(inst)

		inst.Sync.Navigate(q)
		switch {
		case q.Has(selection.ParamTech) || q.Has(selection.ParamSpeed):
			inst.Engine.SetSelection(inst.Sync.Restore(q))
		case !snap.RemovedAll:
			inst.Engine.Ready()
		default:
			inst.removedAll.Store(true)
		}
		inst.Engine.SetOpacity(snap.Opacity * 100)
	}
	s.log.Info("maps restored", "count", len(snaps))
}

// saveToDisk persists map snapshots to disk.
func (s *MapService) saveToDisk() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	snaps := make([]mapSnapshot, 0)
	for _, inst := range s.List() {
		snaps = append(snaps, inst.snapshot())
	}

	// Ensure data directory exists
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(snaps, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.configFile() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.configFile())
}
