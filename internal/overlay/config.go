package overlay

// Config holds the defaults an engine is constructed with.
type Config struct {
	DefaultTech    string  `yaml:"default_tech" json:"defaultTech"`
	DefaultSpeed   string  `yaml:"default_speed" json:"defaultSpeed"`
	DefaultOpacity float64 `yaml:"default_opacity" json:"defaultOpacity"`

	// IncludeSpeedLayers also installs the speed-only registry, as the area
	// summary map does.
	IncludeSpeedLayers bool `yaml:"include_speed_layers" json:"includeSpeedLayers"`
}

// DefaultConfig returns the broadband map defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTech:    "acfosw",
		DefaultSpeed:   "25_3",
		DefaultOpacity: 1,
	}
}

// DefaultSelection returns the selection installed on map-ready.
func (c Config) DefaultSelection() Selection {
	return NewSelection(c.DefaultTech, c.DefaultSpeed)
}
