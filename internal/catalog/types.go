// Package catalog is the static registry of overlay sources and of the layer
// definitions drawn for each speed tier.
package catalog

// SourceType is the kind of data feed behind a source.
type SourceType string

const (
	SourceVector  SourceType = "vector"
	SourceRaster  SourceType = "raster"
	SourceGeoJSON SourceType = "geojson"
)

// Valid reports whether t is a known source type.
func (t SourceType) Valid() bool {
	switch t {
	case SourceVector, SourceRaster, SourceGeoJSON:
		return true
	}
	return false
}

// SourceDescriptor is a data source provisioned at most once per map.
type SourceDescriptor struct {
	ID   string     `yaml:"id" json:"id" doc:"Source identifier" example:"block-techSpeed"`
	URL  string     `yaml:"url" json:"url" doc:"Tile URL" example:"mapbox://fcc.block-techspeed"`
	Type SourceType `yaml:"type" json:"type" enum:"vector,raster,geojson" doc:"Source type"`
}

// LayerDefinition describes one overlay layer. Definitions are immutable once
// the catalog is loaded.
type LayerDefinition struct {
	ID             string         `yaml:"id" json:"id" doc:"Layer identifier, unique per map" example:"block-techSpeed-25"`
	SourceID       string         `yaml:"source" json:"source" doc:"Source the layer reads from"`
	SourceLayer    string         `yaml:"source_layer" json:"sourceLayer" doc:"Layer name inside the tile source"`
	BeforeLayerID  string         `yaml:"before,omitempty" json:"before,omitempty" doc:"Style layer to insert below"`
	StyleOverrides map[string]any `yaml:"style,omitempty" json:"style,omitempty" doc:"Top-level style keys that win over the template"`
}

// file is the on-disk catalog shape.
type file struct {
	DefaultTier   string                       `yaml:"default_tier"`
	PrimarySource string                       `yaml:"primary_source"`
	BaseLayers    []string                     `yaml:"base_layers"`
	Sources       []SourceDescriptor           `yaml:"sources"`
	TechSpeed     map[string][]LayerDefinition `yaml:"tech_speed"`
	Speed         map[string][]LayerDefinition `yaml:"speed"`
}
