package overlay

import (
	"log/slog"
	"math"
	"strconv"
	"sync"

	"github.com/joeblew999/plat-broadband/internal/catalog"
	"github.com/joeblew999/plat-broadband/internal/legend"
	"github.com/joeblew999/plat-broadband/internal/mapbackend"
	"github.com/joeblew999/plat-broadband/internal/metrics"
)

// StateSink receives selection changes for persisting outside the engine.
// It is called with the engine lock held and must not call back into it.
type StateSink interface {
	SelectionChanged(sel Selection)
	Cleared()
}

// ChangeKind names what an engine change did.
type ChangeKind string

const (
	ChangeSelection ChangeKind = "selection"
	ChangeOpacity   ChangeKind = "opacity"
	ChangeRemoved   ChangeKind = "removed"
	ChangeReset     ChangeKind = "reset"
)

// Change is a snapshot of engine state taken right after a mutation. Seq
// increases with every change of one engine.
type Change struct {
	Seq        uint64
	Kind       ChangeKind
	Selection  Selection
	PropertyID string
	Opacity    float64
	Legend     legend.Label
	Layers     []string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithStateSink sets the receiver of selection changes.
func WithStateSink(s StateSink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithDeriver sets the legend deriver.
func WithDeriver(d *legend.Deriver) Option {
	return func(e *Engine) { e.deriver = d }
}

// WithNotify registers a callback invoked after every change.
func WithNotify(fn func(Change)) Option {
	return func(e *Engine) { e.notify = fn }
}

// Engine owns the overlay state of one map instance: its selection, the set
// of layers it installed, and the map opacity. All methods are serialised, so
// concurrent callers observe the engine as a single event loop.
type Engine struct {
	mu          sync.Mutex
	cfg         Config
	backend     mapbackend.Backend
	catalog     *catalog.Catalog
	provisioner *Provisioner
	deriver     *legend.Deriver
	sink        StateSink
	notify      func(Change)
	log         *slog.Logger

	selection  Selection
	active     []string
	opacity    float64
	removedAll bool
	seq        uint64
}

// New creates an engine bound to one backend for its whole lifetime.
func New(backend mapbackend.Backend, cat *catalog.Catalog, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:     cfg,
		backend: backend,
		catalog: cat,
		opacity: clampFraction(cfg.DefaultOpacity),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.deriver == nil {
		e.deriver = legend.NewDeriver(nil)
	}
	e.provisioner = NewProvisioner(backend, cat.Sources(), e.log)
	return e
}

// Ready handles the map-ready event: it installs the stored selection, or the
// configured default when nothing has been selected yet.
func (e *Engine) Ready() {
	e.mu.Lock()
	sel := e.selection
	if sel.IsZero() {
		sel = e.cfg.DefaultSelection()
	}
	change := e.setSelectionLocked(sel)
	e.mu.Unlock()

	e.emit(change)
}

// SetSelection replaces the installed overlay with the layers for sel.
func (e *Engine) SetSelection(sel Selection) {
	e.mu.Lock()
	change := e.setSelectionLocked(sel.clone())
	e.mu.Unlock()

	e.emit(change)
}

func (e *Engine) setSelectionLocked(sel Selection) Change {
	propertyID := sel.PropertyID()
	e.removedAll = false

	// Removal is existence-checked, so on a fresh map it is a no-op.
	e.removeActiveLocked()
	if !e.provisioner.Ready() {
		if _, err := e.provisioner.EnsureSources(); err != nil {
			e.log.Warn("source provisioning incomplete", "property", propertyID, "error", err)
		}
	}

	defs := e.catalog.Resolve(sel.Speed)
	if e.cfg.IncludeSpeedLayers {
		defs = append(defs, e.catalog.ResolveSpeed(sel.Speed)...)
	}

	for _, def := range defs {
		before := def.BeforeLayerID
		if before != "" {
			if _, ok := e.backend.GetLayer(before); !ok {
				e.log.Warn("anchor layer missing, adding on top", "layer", def.ID, "before", before)
				before = ""
			}
		}
		layer := buildLayer(def, propertyID, e.opacity)
		if err := e.backend.AddLayer(layer, before); err != nil {
			metrics.BackendErrorsTotal.WithLabelValues("add_layer").Inc()
			e.log.Error("add layer failed", "layer", def.ID, "error", err)
			continue
		}
		e.active = append(e.active, def.ID)
	}

	e.selection = sel
	e.reapplyLocked()
	metrics.SelectionChangesTotal.Inc()
	e.log.Debug("selection installed", "property", propertyID, "layers", len(e.active))

	return e.commitLocked(ChangeSelection)
}

// RemoveSelection removes every installed layer. With resetToDefault the
// stored selection is cleared, the opacity returns to its default and the
// state sink is told to clear persisted state.
func (e *Engine) RemoveSelection(resetToDefault bool) {
	e.mu.Lock()
	e.removeActiveLocked()
	kind := ChangeRemoved
	if resetToDefault {
		kind = ChangeReset
		e.selection = Selection{}
		e.opacity = clampFraction(e.cfg.DefaultOpacity)
	}
	e.removedAll = resetToDefault
	change := e.commitLocked(kind)
	e.mu.Unlock()

	metrics.SelectionResetsTotal.WithLabelValues(strconv.FormatBool(resetToDefault)).Inc()
	e.emit(change)
}

// StyleReloaded must be called after the backend's base style is swapped,
// which drops every source and layer. The current selection is reinstalled
// unless the last removal was a reset.
func (e *Engine) StyleReloaded() {
	e.mu.Lock()
	e.active = e.active[:0]
	if e.removedAll || e.selection.IsZero() {
		e.mu.Unlock()
		return
	}
	change := e.setSelectionLocked(e.selection)
	e.mu.Unlock()

	e.emit(change)
}

func (e *Engine) removeActiveLocked() {
	for _, id := range e.active {
		if _, ok := e.backend.GetLayer(id); !ok {
			continue
		}
		if err := e.backend.RemoveLayer(id); err != nil {
			metrics.BackendErrorsTotal.WithLabelValues("remove_layer").Inc()
			e.log.Error("remove layer failed", "layer", id, "error", err)
		}
	}
	e.active = e.active[:0]
}

// Selection returns the stored selection.
func (e *Engine) Selection() Selection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selection.clone()
}

// ActiveLayers returns the ids of the installed layers in install order.
func (e *Engine) ActiveLayers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string{}, e.active...)
}

// Opacity returns the stored map opacity in [0,1].
func (e *Engine) Opacity() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opacity
}

// Legend derives the label for the stored selection.
func (e *Engine) Legend() legend.Label {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deriver.Derive(e.selection.Tech, e.selection.Speed)
}

// Catalog returns the catalog the engine resolves layers from.
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

// commitLocked numbers the change and hands it to the state sink, so the
// sink sees changes in the order they were applied.
func (e *Engine) commitLocked(kind ChangeKind) Change {
	e.seq++
	c := Change{
		Seq:       e.seq,
		Kind:      kind,
		Selection: e.selection.clone(),
		Opacity:   e.opacity,
		Legend:    e.deriver.Derive(e.selection.Tech, e.selection.Speed),
		Layers:    append([]string{}, e.active...),
	}
	if !e.selection.IsZero() {
		c.PropertyID = e.selection.PropertyID()
	}
	if e.sink != nil {
		switch c.Kind {
		case ChangeSelection:
			e.sink.SelectionChanged(c.Selection)
		case ChangeReset:
			e.sink.Cleared()
		}
	}
	return c
}

// emit runs outside the lock so callbacks may call back into the engine.
// Concurrent callers may observe changes out of order; Change.Seq orders them.
func (e *Engine) emit(c Change) {
	if e.notify != nil {
		e.notify(c)
	}
}

func clampFraction(v float64) float64 {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return 1
	}
	return v
}
