package mapbackend

import (
	"fmt"
	"sync"
)

// Memory is an in-memory Backend that keeps style order and rejects the same
// inputs a browser renderer would: duplicate ids, layers on unknown sources,
// and anchors that are not in the style.
type Memory struct {
	mu          sync.RWMutex
	sources     map[string]Source
	sourceOrder []string
	layers      []LayerSpec
}

var _ Backend = (*Memory)(nil)

// NewMemory creates a backend whose style starts with the given base layers.
func NewMemory(baseLayers ...string) *Memory {
	m := &Memory{}
	m.reset(baseLayers)
	return m
}

// ResetStyle swaps the base style: every source and layer is dropped and the
// new base layers are installed.
func (m *Memory) ResetStyle(baseLayers ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset(baseLayers)
}

func (m *Memory) reset(baseLayers []string) {
	m.sources = make(map[string]Source)
	m.sourceOrder = nil
	m.layers = make([]LayerSpec, 0, len(baseLayers))
	for _, id := range baseLayers {
		m.layers = append(m.layers, LayerSpec{"id": id, "type": "background"})
	}
}

func (m *Memory) AddSource(id string, src Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sources[id]; exists {
		return fmt.Errorf("add source %q: %w", id, ErrSourceExists)
	}
	m.sources[id] = src
	m.sourceOrder = append(m.sourceOrder, id)
	return nil
}

func (m *Memory) GetSource(id string) (Source, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src, ok := m.sources[id]
	return src, ok
}

func (m *Memory) AddLayer(layer LayerSpec, beforeLayerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := layer.ID()
	if m.indexOf(id) >= 0 {
		return fmt.Errorf("add layer %q: %w", id, ErrLayerExists)
	}
	if src := layer.Source(); src != "" {
		if _, ok := m.sources[src]; !ok {
			return fmt.Errorf("add layer %q: source %q: %w", id, src, ErrSourceNotFound)
		}
	}

	layer = layer.Clone()
	if beforeLayerID == "" {
		m.layers = append(m.layers, layer)
		return nil
	}

	at := m.indexOf(beforeLayerID)
	if at < 0 {
		return fmt.Errorf("add layer %q before %q: %w", id, beforeLayerID, ErrLayerNotFound)
	}
	m.layers = append(m.layers, nil)
	copy(m.layers[at+1:], m.layers[at:])
	m.layers[at] = layer
	return nil
}

func (m *Memory) RemoveLayer(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	at := m.indexOf(id)
	if at < 0 {
		return fmt.Errorf("remove layer %q: %w", id, ErrLayerNotFound)
	}
	m.layers = append(m.layers[:at], m.layers[at+1:]...)
	return nil
}

func (m *Memory) GetLayer(id string) (LayerSpec, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	at := m.indexOf(id)
	if at < 0 {
		return nil, false
	}
	return m.layers[at].Clone(), true
}

func (m *Memory) SetPaintProperty(layerID, name string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	at := m.indexOf(layerID)
	if at < 0 {
		return fmt.Errorf("set paint %q on %q: %w", name, layerID, ErrLayerNotFound)
	}
	m.layers[at].Paint()[name] = value
	return nil
}

// Layers returns a copy of the style's layers in draw order.
func (m *Memory) Layers() []LayerSpec {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]LayerSpec, len(m.layers))
	for i, l := range m.layers {
		out[i] = l.Clone()
	}
	return out
}

// SourceIDs returns source ids in the order they were added.
func (m *Memory) SourceIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]string(nil), m.sourceOrder...)
}

func (m *Memory) indexOf(id string) int {
	for i, l := range m.layers {
		if l.ID() == id {
			return i
		}
	}
	return -1
}
