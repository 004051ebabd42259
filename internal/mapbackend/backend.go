// Package mapbackend describes the map-rendering capability consumed by the
// overlay engine, plus an in-memory implementation used by the server and tests.
package mapbackend

import "errors"

var (
	ErrSourceExists   = errors.New("source already exists")
	ErrSourceNotFound = errors.New("source not found")
	ErrLayerExists    = errors.New("layer already exists")
	ErrLayerNotFound  = errors.New("layer not found")
)

// Source is the payload of an add-source call.
type Source struct {
	URL  string `json:"url" doc:"Tile source URL" example:"mapbox://fcc.block-techspeed"`
	Type string `json:"type" doc:"Source type" example:"vector"`
}

// Backend is the map-rendering capability. Calls are synchronous from the
// caller's point of view; errors are the backend's rejection channel.
type Backend interface {
	AddSource(id string, src Source) error
	GetSource(id string) (Source, bool)
	AddLayer(layer LayerSpec, beforeLayerID string) error
	RemoveLayer(id string) error
	GetLayer(id string) (LayerSpec, bool)
	SetPaintProperty(layerID, name string, value any) error
}

// LayerSpec is a style-layer document in Mapbox GL style form.
type LayerSpec map[string]any

// ID returns the layer id.
func (l LayerSpec) ID() string {
	s, _ := l["id"].(string)
	return s
}

// Source returns the id of the source the layer reads from.
func (l LayerSpec) Source() string {
	s, _ := l["source"].(string)
	return s
}

// Paint returns the paint block, creating it if absent.
func (l LayerSpec) Paint() map[string]any {
	if p, ok := l["paint"].(map[string]any); ok {
		return p
	}
	p := map[string]any{}
	l["paint"] = p
	return p
}

// Clone returns a deep copy of the layer document.
func (l LayerSpec) Clone() LayerSpec {
	if l == nil {
		return nil
	}
	return LayerSpec(cloneMap(l))
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case LayerSpec:
		return LayerSpec(cloneMap(t))
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}
