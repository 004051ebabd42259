package service

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeblew999/plat-broadband/internal/areasummary"
	"github.com/joeblew999/plat-broadband/internal/mapbackend"
	"github.com/joeblew999/plat-broadband/internal/overlay"
	"github.com/joeblew999/plat-broadband/internal/selection"
)

// Instance is one mounted map.
type Instance struct {
	ID      string
	Created time.Time
	View    MapView

	Backend *mapbackend.Memory
	Engine  *overlay.Engine
	Sync    *selection.Sync
	Summary *areasummary.Loader

	removedAll atomic.Bool
	changeMu   sync.Mutex
	lastSeq    uint64
	svc        *MapService
	log        *slog.Logger
}

// onChange runs after every engine change, outside the engine lock. A change
// older than one already published is dropped; the snapshot still gets saved
// since it reads the engine's current state.
func (i *Instance) onChange(c overlay.Change) {
	if i.applyChange(c) {
		i.svc.bus.Publish(Event{MapID: i.ID, Kind: kindFor(c.Kind), Change: c})
	}
	i.svc.changed()
}

func (i *Instance) applyChange(c overlay.Change) bool {
	i.changeMu.Lock()
	defer i.changeMu.Unlock()
	if c.Seq <= i.lastSeq {
		i.log.Debug("dropping superseded change", "seq", c.Seq, "last", i.lastSeq)
		return false
	}
	i.lastSeq = c.Seq
	switch c.Kind {
	case overlay.ChangeReset:
		i.removedAll.Store(true)
	case overlay.ChangeSelection:
		i.removedAll.Store(false)
	}
	return true
}

// RemovedAll reports whether the last removal reset the overlay.
func (i *Instance) RemovedAll() bool {
	return i.removedAll.Load()
}

// Navigate applies URL query state: the geography always, the selection when
// the query names tech or speed. The area summary for the new geography is
// then loaded; a failed or superseded load is logged and leaves the previous
// summary in place.
func (i *Instance) Navigate(ctx context.Context, q url.Values) selection.Geography {
	geo := i.Sync.Navigate(q)
	if q.Has(selection.ParamTech) || q.Has(selection.ParamSpeed) {
		i.Engine.SetSelection(i.Sync.Restore(q))
	} else {
		i.svc.changed()
	}
	i.LoadSummary(ctx, geo)
	return geo
}

// LoadSummary fetches the area summary for geo and publishes it.
func (i *Instance) LoadSummary(ctx context.Context, geo selection.Geography) (areasummary.Summary, error) {
	if i.Summary == nil {
		return areasummary.Summary{}, errors.New("area summaries are not configured")
	}
	s, err := i.Summary.Load(ctx, geo)
	if err != nil {
		return s, err
	}
	i.svc.bus.Publish(Event{MapID: i.ID, Kind: EventSummaryLoaded, Summary: &s})
	return s, nil
}

// ReloadStyle swaps in a fresh base style and lets the engine reinstall its
// overlay.
func (i *Instance) ReloadStyle() {
	i.Backend.ResetStyle(i.Engine.Catalog().BaseLayers()...)
	i.Engine.StyleReloaded()
}

// OpenSettings announces that the settings modal was opened.
func (i *Instance) OpenSettings() {
	i.svc.bus.Publish(Event{MapID: i.ID, Kind: EventSettingsOpened, Change: i.snapshotChange()})
}

func (i *Instance) snapshotChange() overlay.Change {
	sel := i.Engine.Selection()
	c := overlay.Change{
		Selection: sel,
		Opacity:   i.Engine.Opacity(),
		Legend:    i.Engine.Legend(),
		Layers:    i.Engine.ActiveLayers(),
	}
	if !sel.IsZero() {
		c.PropertyID = sel.PropertyID()
	}
	return c
}

// Info describes the instance.
func (i *Instance) Info() MapInfo {
	c := i.snapshotChange()
	state := i.Sync.State()
	info := MapInfo{
		ID:      i.ID,
		Created: i.Created,
		Selection: SelectionInfo{
			Tech:       c.Selection.TechString(),
			Speed:      c.Selection.Speed,
			PropertyID: c.PropertyID,
		},
		Legend:     c.Legend,
		Opacity:    c.Opacity * 100,
		Layers:     c.Layers,
		RemovedAll: i.RemovedAll(),
		Query:      i.Sync.Query(),
		Geography:  state.Geography,
		View:       i.View,
	}
	if i.Summary != nil {
		if s, ok := i.Summary.Current(); ok {
			info.Summary = &s
		}
	}
	return info
}

func (i *Instance) snapshot() mapSnapshot {
	return mapSnapshot{
		ID:         i.ID,
		Created:    i.Created,
		Query:      i.Sync.Query(),
		Opacity:    i.Engine.Opacity(),
		RemovedAll: i.RemovedAll(),
		View:       i.View,
	}
}
