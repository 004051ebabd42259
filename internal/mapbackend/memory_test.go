package mapbackend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func layerIDs(m *Memory) []string {
	var ids []string
	for _, l := range m.Layers() {
		ids = append(ids, l.ID())
	}
	return ids
}

func TestMemory_AddSourceTwiceFails(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.AddSource("block", Source{URL: "mapbox://x", Type: "vector"}))

	err := m.AddSource("block", Source{URL: "mapbox://y", Type: "vector"})
	assert.ErrorIs(t, err, ErrSourceExists)

	src, ok := m.GetSource("block")
	require.True(t, ok)
	assert.Equal(t, "mapbox://x", src.URL)
	assert.Equal(t, []string{"block"}, m.SourceIDs())
}

func TestMemory_AddLayerRequiresSource(t *testing.T) {
	m := NewMemory()
	err := m.AddLayer(LayerSpec{"id": "a", "source": "missing"}, "")
	assert.ErrorIs(t, err, ErrSourceNotFound)
	assert.Empty(t, m.Layers())
}

func TestMemory_AddLayerBeforeAnchor(t *testing.T) {
	m := NewMemory("background", "road-label")
	require.NoError(t, m.AddSource("s", Source{Type: "vector"}))

	require.NoError(t, m.AddLayer(LayerSpec{"id": "fill", "source": "s"}, "road-label"))
	require.NoError(t, m.AddLayer(LayerSpec{"id": "top", "source": "s"}, ""))

	assert.Equal(t, []string{"background", "fill", "road-label", "top"}, layerIDs(m))

	err := m.AddLayer(LayerSpec{"id": "x", "source": "s"}, "nope")
	assert.ErrorIs(t, err, ErrLayerNotFound)

	err = m.AddLayer(LayerSpec{"id": "fill", "source": "s"}, "")
	assert.ErrorIs(t, err, ErrLayerExists)
}

func TestMemory_RemoveAndPaint(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.AddSource("s", Source{Type: "vector"}))
	require.NoError(t, m.AddLayer(LayerSpec{"id": "fill", "source": "s"}, ""))

	require.NoError(t, m.SetPaintProperty("fill", "fill-opacity", 0.4))
	l, ok := m.GetLayer("fill")
	require.True(t, ok)
	assert.Equal(t, 0.4, l.Paint()["fill-opacity"])

	assert.ErrorIs(t, m.SetPaintProperty("nope", "fill-opacity", 1.0), ErrLayerNotFound)

	require.NoError(t, m.RemoveLayer("fill"))
	assert.ErrorIs(t, m.RemoveLayer("fill"), ErrLayerNotFound)
	_, ok = m.GetLayer("fill")
	assert.False(t, ok)
}

func TestMemory_GetLayerReturnsCopy(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.AddSource("s", Source{Type: "vector"}))
	require.NoError(t, m.AddLayer(LayerSpec{"id": "fill", "source": "s", "paint": map[string]any{"fill-opacity": 1.0}}, ""))

	l, _ := m.GetLayer("fill")
	l.Paint()["fill-opacity"] = 0.0

	again, _ := m.GetLayer("fill")
	assert.Equal(t, 1.0, again.Paint()["fill-opacity"])
}

func TestMemory_ResetStyle(t *testing.T) {
	m := NewMemory("background")
	require.NoError(t, m.AddSource("s", Source{Type: "vector"}))
	require.NoError(t, m.AddLayer(LayerSpec{"id": "fill", "source": "s"}, ""))

	m.ResetStyle("satellite")

	_, ok := m.GetSource("s")
	assert.False(t, ok)
	assert.Equal(t, []string{"satellite"}, layerIDs(m))
}
