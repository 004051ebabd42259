package overlay

import (
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/joeblew999/plat-broadband/internal/catalog"
	"github.com/joeblew999/plat-broadband/internal/logging"
	"github.com/joeblew999/plat-broadband/internal/mapbackend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Counting backend ---

type countingBackend struct {
	*mapbackend.Memory
	mu           sync.Mutex
	addSources   int
	addLayers    int
	removeLayers int
}

func (b *countingBackend) AddSource(id string, src mapbackend.Source) error {
	b.mu.Lock()
	b.addSources++
	b.mu.Unlock()
	return b.Memory.AddSource(id, src)
}

func (b *countingBackend) AddLayer(l mapbackend.LayerSpec, before string) error {
	b.mu.Lock()
	b.addLayers++
	b.mu.Unlock()
	return b.Memory.AddLayer(l, before)
}

func (b *countingBackend) RemoveLayer(id string) error {
	b.mu.Lock()
	b.removeLayers++
	b.mu.Unlock()
	return b.Memory.RemoveLayer(id)
}

// --- Recording sink ---

type recordingSink struct {
	changed []Selection
	cleared int
}

func (s *recordingSink) SelectionChanged(sel Selection) { s.changed = append(s.changed, sel) }
func (s *recordingSink) Cleared()                       { s.cleared++ }

func newTestEngine(t *testing.T, cfg Config, opts ...Option) (*Engine, *countingBackend) {
	t.Helper()
	cat := catalog.Default()
	backend := &countingBackend{Memory: mapbackend.NewMemory(cat.BaseLayers()...)}
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	return New(backend, cat, cfg, opts...), backend
}

func overlayIDs(m *mapbackend.Memory, base []string) []string {
	skip := map[string]bool{}
	for _, id := range base {
		skip[id] = true
	}
	var ids []string
	for _, l := range m.Layers() {
		if !skip[l.ID()] {
			ids = append(ids, l.ID())
		}
	}
	return ids
}

func TestSetSelection_FirstCallProvisionsOnce(t *testing.T) {
	e, b := newTestEngine(t, DefaultConfig())

	e.SetSelection(NewSelection("acfosw", "25_3"))

	assert.Equal(t, 3, b.addSources)
	assert.Equal(t, 0, b.removeLayers)
	assert.Equal(t, []string{"county-techSpeed-25", "block-techSpeed-25"}, e.ActiveLayers())
	assert.ElementsMatch(t, e.ActiveLayers(), overlayIDs(b.Memory, catalog.Default().BaseLayers()))
}

func TestSetSelection_Idempotent(t *testing.T) {
	e, b := newTestEngine(t, DefaultConfig())

	sel := NewSelection("cf", "10_1")
	e.SetSelection(sel)
	once := e.ActiveLayers()
	e.SetSelection(sel)

	assert.Equal(t, once, e.ActiveLayers())
	assert.Equal(t, 3, b.addSources, "sources never re-added")
	assert.ElementsMatch(t, once, overlayIDs(b.Memory, catalog.Default().BaseLayers()))
}

func TestSetSelection_ReplacesPreviousLayers(t *testing.T) {
	e, b := newTestEngine(t, DefaultConfig())

	e.SetSelection(NewSelection("a", "4_1"))
	e.SetSelection(NewSelection("f", "100_10"))

	assert.Equal(t, []string{"county-techSpeed-100", "block-techSpeed-100"}, e.ActiveLayers())
	assert.Equal(t, []string{"county-techSpeed-100", "block-techSpeed-100"}, overlayIDs(b.Memory, catalog.Default().BaseLayers()))
	assert.Equal(t, 2, b.removeLayers)
}

func TestSetSelection_LayerStyle(t *testing.T) {
	e, b := newTestEngine(t, DefaultConfig())
	e.SetOpacity(40)

	e.SetSelection(NewSelection("acfosw", "25_3"))

	l, ok := b.GetLayer("block-techSpeed-25")
	require.True(t, ok)
	assert.Equal(t, "fill", l["type"])
	assert.Equal(t, "block-techSpeed", l.Source())
	assert.Equal(t, "block_25", l["source-layer"])
	assert.Equal(t, 9, l["minzoom"])
	assert.Equal(t, map[string]any{"visibility": "visible"}, l["layout"])

	paint := l.Paint()
	assert.Equal(t, 0.4, paint[OpacityProperty])
	fill := paint["fill-color"].(map[string]any)
	assert.Equal(t, "acfosw_25_3", fill["property"])
	assert.Equal(t, "exponential", fill["type"])
}

func TestSetSelection_AnchorsBeforeBaseLayer(t *testing.T) {
	e, b := newTestEngine(t, DefaultConfig())
	e.SetSelection(NewSelection("c", "25_3"))

	var order []string
	for _, l := range b.Layers() {
		order = append(order, l.ID())
	}
	assert.Equal(t, []string{
		"background", "water", "county-techSpeed-25", "county-boundary",
		"block-techSpeed-25", "road-label", "place-label",
	}, order)
}

func TestSetSelection_MissingAnchorAddsOnTop(t *testing.T) {
	cat := catalog.Default()
	backend := mapbackend.NewMemory()
	e := New(backend, cat, DefaultConfig(), WithLogger(logging.Discard()))

	e.SetSelection(NewSelection("c", "25_3"))

	assert.Equal(t, []string{"county-techSpeed-25", "block-techSpeed-25"}, e.ActiveLayers())
}

func TestSetSelection_UnknownTierFallsBack(t *testing.T) {
	e, _ := newTestEngine(t, DefaultConfig())

	e.SetSelection(NewSelection("c", "7_7"))

	assert.Equal(t, []string{"county-techSpeed-25", "block-techSpeed-25"}, e.ActiveLayers())
	assert.Equal(t, "7/7", e.Legend().Speed)
}

func TestSetSelection_IncludesSpeedLayers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IncludeSpeedLayers = true
	e, _ := newTestEngine(t, cfg)

	e.SetSelection(NewSelection("acfosw", "200"))

	assert.Equal(t, []string{"county-techSpeed-200", "block-techSpeed-200", "county-speed-200"}, e.ActiveLayers())
	assert.Equal(t, "0.2/0.2", e.Legend().Speed)
}

func TestSetSelection_NotifiesSink(t *testing.T) {
	sink := &recordingSink{}
	var changes []Change
	e, _ := newTestEngine(t, DefaultConfig(), WithStateSink(sink), WithNotify(func(c Change) { changes = append(changes, c) }))

	e.SetSelection(NewSelection("od", "25_3"))

	require.Len(t, sink.changed, 1)
	assert.Equal(t, "od", sink.changed[0].TechString())
	require.Len(t, changes, 1)
	assert.Equal(t, ChangeSelection, changes[0].Kind)
	assert.Equal(t, "od_25_3", changes[0].PropertyID)
	assert.Equal(t, "DSL, Other", changes[0].Legend.Tech)
}

func TestNotifyMayCallBackIntoEngine(t *testing.T) {
	var e *Engine
	var seen []string
	e, _ = newTestEngine(t, DefaultConfig(), WithNotify(func(c Change) {
		seen = e.ActiveLayers()
	}))

	e.SetSelection(NewSelection("c", "25_3"))
	assert.Len(t, seen, 2)
}

func TestReady_InstallsDefault(t *testing.T) {
	e, _ := newTestEngine(t, DefaultConfig())

	e.Ready()

	sel := e.Selection()
	assert.Equal(t, "acfosw_25_3", sel.PropertyID())
	assert.Equal(t, "ADSL, Cable, Fiber, Fixed Wireless, Satellite, Other", e.Legend().Tech)
	assert.Equal(t, "25/3", e.Legend().Speed)
}

func TestRemoveSelection_Reset(t *testing.T) {
	sink := &recordingSink{}
	e, b := newTestEngine(t, DefaultConfig(), WithStateSink(sink))
	e.SetSelection(NewSelection("c", "25_3"))
	e.SetOpacity(30)

	e.RemoveSelection(true)

	assert.Empty(t, e.ActiveLayers())
	assert.Empty(t, overlayIDs(b.Memory, catalog.Default().BaseLayers()))
	assert.True(t, e.Selection().IsZero())
	assert.Equal(t, 1.0, e.Opacity())
	assert.Equal(t, 1, sink.cleared)
	assert.Equal(t, Change{}.Legend, e.Legend())
}

func TestRemoveSelection_KeepSelection(t *testing.T) {
	sink := &recordingSink{}
	e, _ := newTestEngine(t, DefaultConfig(), WithStateSink(sink))
	e.SetSelection(NewSelection("c", "25_3"))
	e.SetOpacity(30)

	e.RemoveSelection(false)

	assert.Empty(t, e.ActiveLayers())
	assert.Equal(t, "c_25_3", e.Selection().PropertyID())
	assert.InDelta(t, 0.3, e.Opacity(), 1e-9)
	assert.Equal(t, 0, sink.cleared)
}

func TestRemoveSelection_EmptyIsNoop(t *testing.T) {
	e, b := newTestEngine(t, DefaultConfig())

	e.RemoveSelection(false)
	e.RemoveSelection(true)

	assert.Equal(t, 0, b.removeLayers)
}

func TestRemoveSelection_LayerGoneExternally(t *testing.T) {
	e, b := newTestEngine(t, DefaultConfig())
	e.SetSelection(NewSelection("c", "25_3"))
	require.NoError(t, b.Memory.RemoveLayer("block-techSpeed-25"))

	e.RemoveSelection(false)

	assert.Empty(t, e.ActiveLayers())
	assert.Equal(t, 1, b.removeLayers, "only the layer still present is removed")
}

func TestStyleReloaded(t *testing.T) {
	e, b := newTestEngine(t, DefaultConfig())
	e.SetSelection(NewSelection("f", "100_10"))
	e.SetOpacity(50)

	b.ResetStyle(catalog.Default().BaseLayers()...)
	e.StyleReloaded()

	assert.Equal(t, []string{"county-techSpeed-100", "block-techSpeed-100"}, e.ActiveLayers())
	assert.Equal(t, 6, b.addSources)
	l, ok := b.GetLayer("block-techSpeed-100")
	require.True(t, ok)
	assert.Equal(t, 0.5, l.Paint()[OpacityProperty])
}

func TestStyleReloaded_AfterResetStaysEmpty(t *testing.T) {
	e, b := newTestEngine(t, DefaultConfig())
	e.SetSelection(NewSelection("f", "100_10"))
	e.RemoveSelection(true)

	b.ResetStyle(catalog.Default().BaseLayers()...)
	e.StyleReloaded()

	assert.Empty(t, e.ActiveLayers())
	assert.Empty(t, b.SourceIDs())
}

func TestSetOpacity_Normalisation(t *testing.T) {
	tests := []struct {
		raw  float64
		want float64
	}{
		{0, 0},
		{50, 0.5},
		{100, 1},
		{-1, 0},
		{100.5, 0},
		{math.NaN(), 0},
		{math.Inf(1), 0},
		{math.Inf(-1), 0},
		{12.5, 0.125},
	}

	for _, tt := range tests {
		e, _ := newTestEngine(t, DefaultConfig())
		got := e.SetOpacity(tt.raw)
		assert.InDelta(t, tt.want, got, 1e-12, "raw %v", tt.raw)
		assert.InDelta(t, tt.want, e.Opacity(), 1e-12)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 1.0)
	}
}

func TestSetOpacity_ReappliesToActiveLayers(t *testing.T) {
	e, b := newTestEngine(t, DefaultConfig())
	e.SetSelection(NewSelection("c", "25_3"))

	e.SetOpacity(20)

	for _, id := range e.ActiveLayers() {
		l, ok := b.GetLayer(id)
		require.True(t, ok)
		assert.Equal(t, 0.2, l.Paint()[OpacityProperty], id)
	}
}

func TestSetOpacity_PersistsAcrossSelections(t *testing.T) {
	e, b := newTestEngine(t, DefaultConfig())
	e.SetOpacity(70)

	e.SetSelection(NewSelection("c", "25_3"))
	e.SetSelection(NewSelection("c", "4_1"))

	l, _ := b.GetLayer("county-techSpeed-4")
	assert.Equal(t, 0.7, l.Paint()[OpacityProperty])
}

func TestReapply_EmptyActiveSet(t *testing.T) {
	e, _ := newTestEngine(t, DefaultConfig())
	assert.NotPanics(t, e.Reapply)
}

func TestParseOpacity(t *testing.T) {
	tests := map[string]float64{
		"":      0,
		"  ":    0,
		"abc":   0,
		"50":    50,
		" 75 ":  75,
		"101":   0,
		"-5":    0,
		"NaN":   0,
		"100.0": 100,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseOpacity(in), "input %q", in)
	}
}

func TestSelection(t *testing.T) {
	sel := NewSelection("acfosw", "25_3")
	assert.Equal(t, []string{"a", "c", "f", "o", "s", "w"}, sel.Tech)
	assert.Equal(t, "acfosw_25_3", sel.PropertyID())
	assert.False(t, sel.IsZero())

	empty := NewSelection("", "")
	assert.True(t, empty.IsZero())
	assert.Equal(t, "_25_3", NewSelection("", "25_3").PropertyID())
}

func TestSetSelection_CallerSliceNotShared(t *testing.T) {
	e, _ := newTestEngine(t, DefaultConfig())
	sel := NewSelection("cf", "25_3")
	e.SetSelection(sel)

	sel.Tech[0] = "x"
	assert.True(t, strings.HasPrefix(e.Selection().PropertyID(), "cf"))
}

func TestConcurrentCallersSerialised(t *testing.T) {
	e, b := newTestEngine(t, DefaultConfig())

	var wg sync.WaitGroup
	tiers := []string{"4_1", "10_1", "25_3", "100_10"}
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e.SetSelection(NewSelection("c", tiers[i%len(tiers)]))
			e.SetOpacity(float64(i))
		}(i)
	}
	wg.Wait()

	assert.Len(t, e.ActiveLayers(), 2)
	assert.ElementsMatch(t, e.ActiveLayers(), overlayIDs(b.Memory, catalog.Default().BaseLayers()))
	assert.Equal(t, 3, b.addSources)
}

func TestProvisioner_Ready(t *testing.T) {
	cat := catalog.Default()
	backend := &countingBackend{Memory: mapbackend.NewMemory(cat.BaseLayers()...)}
	p := NewProvisioner(backend, cat.Sources(), logging.Discard())

	assert.False(t, p.Ready())
	n, err := p.EnsureSources()
	require.NoError(t, err)
	assert.Equal(t, len(cat.Sources()), n)
	assert.True(t, p.Ready())

	n, err = p.EnsureSources()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSetSelection_PartiallyProvisionedBackend(t *testing.T) {
	e, b := newTestEngine(t, DefaultConfig())
	cat := catalog.Default()
	primary := cat.PrimarySource()
	for _, src := range cat.Sources() {
		if src.ID == primary {
			require.NoError(t, b.Memory.AddSource(src.ID, mapbackend.Source{URL: src.URL, Type: string(src.Type)}))
		}
	}

	e.SetSelection(NewSelection("acfosw", "25_3"))

	assert.Equal(t, []string{"county-techSpeed-25", "block-techSpeed-25"}, e.ActiveLayers())
	assert.Len(t, b.Memory.SourceIDs(), len(cat.Sources()))
}

func TestOpacityValue(t *testing.T) {
	tests := []struct {
		in   any
		want float64
	}{
		{80.0, 80},
		{"80", 80},
		{" 12.5 ", 12.5},
		{"", 0},
		{"x", 0},
		{101.0, 0},
		{true, 0},
		{nil, 0},
		{[]any{"1"}, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OpacityValue(tt.in), "input %#v", tt.in)
	}
}
