package service

import (
	"context"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-broadband/internal/areasummary"
	"github.com/joeblew999/plat-broadband/internal/logging"
	"github.com/joeblew999/plat-broadband/internal/overlay"
	"github.com/joeblew999/plat-broadband/internal/selection"
)

type mockFetcher struct {
	fetchFn func(ctx context.Context, geo selection.Geography) ([]areasummary.Counts, error)
}

func (m *mockFetcher) Fetch(ctx context.Context, geo selection.Geography) ([]areasummary.Counts, error) {
	return m.fetchFn(ctx, geo)
}

func newService(t *testing.T, dataDir string, clock ...clockwork.Clock) *MapService {
	t.Helper()
	var c clockwork.Clock
	if len(clock) > 0 {
		c = clock[0]
	}
	return NewMapService(Config{
		DataDir: dataDir,
		Clock:   c,
		Overlay: overlay.DefaultConfig(),
		Logger:  logging.Discard(),
		Fetcher: &mockFetcher{fetchFn: func(_ context.Context, geo selection.Geography) ([]areasummary.Counts, error) {
			return []areasummary.Counts{{Speed: "25", Has0: 1, Has1: 1}}, nil
		}},
	})
}

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestEventBus_FiltersByMap(t *testing.T) {
	bus := NewEventBus()
	a, cancelA := bus.Subscribe("a")
	all, cancelAll := bus.Subscribe("")
	defer cancelAll()

	bus.Publish(Event{MapID: "b", Kind: EventOpacityChanged})
	bus.Publish(Event{MapID: "a", Kind: EventSettingsOpened})

	assert.Equal(t, EventSettingsOpened, recv(t, a).Kind)
	assert.Equal(t, "b", recv(t, all).MapID)
	assert.Equal(t, "a", recv(t, all).MapID)

	cancelA()
	cancelA()
	assert.Equal(t, 1, bus.Subscribers())
	_, open := <-a
	assert.False(t, open)
}

func TestMount_DefaultSelection(t *testing.T) {
	s := newService(t, "")

	inst, err := s.Mount(MountRequest{})
	require.NoError(t, err)

	info := inst.Info()
	assert.Equal(t, "acfosw_25_3", info.Selection.PropertyID)
	assert.Equal(t, []string{"county-techSpeed-25", "block-techSpeed-25"}, info.Layers)
	assert.Equal(t, 100.0, info.Opacity)
	assert.Equal(t, "speed=25_3&tech=acfosw", info.Query)
	assert.Equal(t, "ADSL, Cable, Fiber, Fixed Wireless, Satellite, Other", info.Legend.Tech)
	assert.Equal(t, float64(DefaultZoom), info.View.Zoom)
}

func TestMount_FromQuery(t *testing.T) {
	s := newService(t, "")

	inst, err := s.Mount(MountRequest{Query: "tech=cf&speed=100_10&type=state&geoid=06", Bounds: &[4]float64{-124.5, 32.5, -114.1, 42}})
	require.NoError(t, err)

	info := inst.Info()
	assert.Equal(t, "cf_100_10", info.Selection.PropertyID)
	assert.Equal(t, selection.Geography{Type: "state", ID: "06"}, info.Geography)
	assert.InDelta(t, -119.3, info.View.Center[0], 1e-9)

	_, err = s.Mount(MountRequest{Bounds: &[4]float64{10, 10, 5, 20}})
	assert.Error(t, err)
}

func TestUnmount(t *testing.T) {
	s := newService(t, "")
	inst, err := s.Mount(MountRequest{})
	require.NoError(t, err)

	events, cancel := s.Bus().Subscribe(inst.ID)
	defer cancel()

	require.NoError(t, s.Unmount(inst.ID))
	assert.Equal(t, EventMapUnmounted, recv(t, events).Kind)

	_, ok := s.Get(inst.ID)
	assert.False(t, ok)
	assert.ErrorIs(t, s.Unmount(inst.ID), ErrMapNotFound)
}

func TestInstance_PublishesEngineChanges(t *testing.T) {
	s := newService(t, "")
	inst, err := s.Mount(MountRequest{})
	require.NoError(t, err)

	events, cancel := s.Bus().Subscribe(inst.ID)
	defer cancel()

	inst.Engine.SetOpacity(40)
	e := recv(t, events)
	assert.Equal(t, EventOpacityChanged, e.Kind)
	assert.Equal(t, 0.4, e.Change.Opacity)

	inst.Engine.RemoveSelection(true)
	e = recv(t, events)
	assert.Equal(t, EventLayersRemoved, e.Kind)
	assert.True(t, inst.RemovedAll())
	assert.Empty(t, inst.Info().Query)

	inst.Engine.SetSelection(overlay.NewSelection("f", "10_1"))
	assert.Equal(t, EventSelectionChanged, recv(t, events).Kind)
	assert.False(t, inst.RemovedAll())
}

func TestInstance_DropsSupersededChange(t *testing.T) {
	s := newService(t, "")
	inst, err := s.Mount(MountRequest{})
	require.NoError(t, err)

	events, cancel := s.Bus().Subscribe(inst.ID)
	defer cancel()

	inst.Engine.RemoveSelection(true)
	latest := recv(t, events)
	require.True(t, inst.RemovedAll())

	// A selection change delivered after a newer reset must not undo it.
	inst.onChange(overlay.Change{Seq: latest.Change.Seq - 1, Kind: overlay.ChangeSelection})
	assert.True(t, inst.RemovedAll())
	select {
	case e := <-events:
		t.Fatalf("unexpected event %s", e.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInstance_Navigate(t *testing.T) {
	s := newService(t, "")
	inst, err := s.Mount(MountRequest{})
	require.NoError(t, err)

	events, cancel := s.Bus().Subscribe(inst.ID)
	defer cancel()

	geo := inst.Navigate(context.Background(), url.Values{"type": {"county"}, "geoid": {"06075"}})
	assert.Equal(t, "06075", geo.ID)
	assert.Equal(t, "acfosw_25_3", inst.Engine.Selection().PropertyID(), "geography-only navigation keeps the selection")

	e := recv(t, events)
	assert.Equal(t, EventSummaryLoaded, e.Kind)
	require.NotNil(t, e.Summary)
	assert.Equal(t, 50.0, e.Summary.Rows[0].Has0)

	inst.Navigate(context.Background(), url.Values{"tech": {"s"}, "speed": {"4_1"}})
	assert.Equal(t, "s_4_1", inst.Engine.Selection().PropertyID())
	assert.True(t, inst.Info().Geography.IsNation())
}

func TestInstance_ReloadStyle(t *testing.T) {
	s := newService(t, "")
	inst, err := s.Mount(MountRequest{})
	require.NoError(t, err)

	inst.ReloadStyle()

	assert.Equal(t, []string{"county-techSpeed-25", "block-techSpeed-25"}, inst.Engine.ActiveLayers())
	_, ok := inst.Backend.GetLayer("block-techSpeed-25")
	assert.True(t, ok)
}

func TestMapService_PersistsAndRestores(t *testing.T) {
	dir := t.TempDir()
	clock := clockwork.NewFakeClock()
	s := newService(t, dir, clock)

	a, err := s.Mount(MountRequest{Query: "tech=f&speed=250_25&type=county&geoid=06075"})
	require.NoError(t, err)
	a.Engine.SetOpacity(35)
	clock.Advance(time.Second)

	b, err := s.Mount(MountRequest{})
	require.NoError(t, err)
	b.Engine.RemoveSelection(true)

	data, err := os.ReadFile(filepath.Join(dir, "maps.json"))
	require.NoError(t, err)
	var snaps []mapSnapshot
	require.NoError(t, json.Unmarshal(data, &snaps))
	assert.Len(t, snaps, 2)

	restored := newService(t, dir)

	ra, ok := restored.Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, "f_250_25", ra.Engine.Selection().PropertyID())
	assert.InDelta(t, 0.35, ra.Engine.Opacity(), 1e-9)
	assert.Equal(t, "06075", ra.Info().Geography.ID)
	assert.Len(t, ra.Engine.ActiveLayers(), 2)

	rb, ok := restored.Get(b.ID)
	require.True(t, ok)
	assert.True(t, rb.RemovedAll())
	assert.Empty(t, rb.Engine.ActiveLayers())

	assert.Equal(t, []string{a.ID, b.ID}, []string{restored.List()[0].ID, restored.List()[1].ID})
}

func TestMapView_GeoJSON(t *testing.T) {
	v := NewMapView(DefaultBounds, 3)
	data, err := v.GeoJSON("m1")
	require.NoError(t, err)

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type string `json:"type"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "Polygon", fc.Features[0].Geometry.Type)
	assert.Equal(t, "Point", fc.Features[1].Geometry.Type)
	assert.Equal(t, "m1", fc.Features[1].Properties["map"])
}
