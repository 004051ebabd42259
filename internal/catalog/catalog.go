package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Catalog maps speed tiers to layer definitions. Two registries are kept:
// technology/speed overlays and supplementary speed-only overlays.
type Catalog struct {
	defaultTier   string
	primarySource string
	baseLayers    []string
	sources       []SourceDescriptor
	techSpeed     map[string][]LayerDefinition
	speed         map[string][]LayerDefinition
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := Load(bytes.NewReader(defaultYAML))
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

// LoadFile reads a catalog from a YAML file.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Load parses and validates a YAML catalog.
func Load(r io.Reader) (*Catalog, error) {
	var f file
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	c := &Catalog{
		defaultTier:   f.DefaultTier,
		primarySource: f.PrimarySource,
		baseLayers:    f.BaseLayers,
		sources:       f.Sources,
		techSpeed:     f.TechSpeed,
		speed:         f.Speed,
	}
	if c.primarySource == "" && len(c.sources) > 0 {
		c.primarySource = c.sources[0].ID
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the catalog's internal consistency.
func (c *Catalog) Validate() error {
	var errs []error

	if _, ok := c.techSpeed[c.defaultTier]; !ok {
		errs = append(errs, fmt.Errorf("default tier %q has no tech/speed layers", c.defaultTier))
	}

	known := make(map[string]bool, len(c.sources))
	for _, s := range c.sources {
		if s.ID == "" {
			errs = append(errs, errors.New("source with empty id"))
			continue
		}
		if known[s.ID] {
			errs = append(errs, fmt.Errorf("duplicate source %q", s.ID))
		}
		if !s.Type.Valid() {
			errs = append(errs, fmt.Errorf("source %q: unknown type %q", s.ID, s.Type))
		}
		known[s.ID] = true
	}
	if c.primarySource != "" && !known[c.primarySource] {
		errs = append(errs, fmt.Errorf("primary source %q is not declared", c.primarySource))
	}

	seen := make(map[string]string)
	check := func(registry string, defs map[string][]LayerDefinition) {
		for tier, list := range defs {
			if len(list) == 0 {
				errs = append(errs, fmt.Errorf("%s tier %q has no layers", registry, tier))
			}
			for _, d := range list {
				if d.ID == "" {
					errs = append(errs, fmt.Errorf("%s tier %q: layer with empty id", registry, tier))
					continue
				}
				if prev, dup := seen[d.ID]; dup {
					errs = append(errs, fmt.Errorf("layer %q declared in %s and %s/%s", d.ID, prev, registry, tier))
				}
				seen[d.ID] = registry + "/" + tier
				if !known[d.SourceID] {
					errs = append(errs, fmt.Errorf("layer %q: unknown source %q", d.ID, d.SourceID))
				}
			}
		}
	}
	check("tech_speed", c.techSpeed)
	check("speed", c.speed)

	return errors.Join(errs...)
}

// Key returns the registry key for a tier: its downstream component.
func Key(tier string) string {
	down, _, _ := strings.Cut(tier, "_")
	return down
}

// Resolve returns the tech/speed layer definitions for tier, falling back to
// the default tier when the tier is unknown.
func (c *Catalog) Resolve(tier string) []LayerDefinition {
	return resolve(c.techSpeed, tier, c.defaultTier)
}

// ResolveSpeed returns the speed-only layer definitions for tier with the same
// fallback as Resolve. Catalogs without speed-only layers return nil.
func (c *Catalog) ResolveSpeed(tier string) []LayerDefinition {
	if len(c.speed) == 0 {
		return nil
	}
	return resolve(c.speed, tier, c.defaultTier)
}

func resolve(registry map[string][]LayerDefinition, tier, fallback string) []LayerDefinition {
	defs, ok := registry[Key(tier)]
	if !ok || len(defs) == 0 {
		defs = registry[fallback]
	}
	out := make([]LayerDefinition, len(defs))
	for i, d := range defs {
		out[i] = d.clone()
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Known reports whether tier has its own tech/speed entry.
func (c *Catalog) Known(tier string) bool {
	_, ok := c.techSpeed[Key(tier)]
	return ok
}

// Tiers lists the tech/speed registry keys in ascending numeric order.
func (c *Catalog) Tiers() []string {
	tiers := make([]string, 0, len(c.techSpeed))
	for k := range c.techSpeed {
		tiers = append(tiers, k)
	}
	sort.Slice(tiers, func(i, j int) bool {
		a, errA := strconv.ParseFloat(tiers[i], 64)
		b, errB := strconv.ParseFloat(tiers[j], 64)
		if errA != nil || errB != nil {
			return tiers[i] < tiers[j]
		}
		return a < b
	})
	return tiers
}

// DefaultTier returns the fallback tier key.
func (c *Catalog) DefaultTier() string { return c.defaultTier }

// PrimarySource returns the id of the source whose presence marks the
// overlay family as provisioned.
func (c *Catalog) PrimarySource() string { return c.primarySource }

// Sources returns the declared sources.
func (c *Catalog) Sources() []SourceDescriptor {
	return append([]SourceDescriptor(nil), c.sources...)
}

// BaseLayers returns the ids of the base style layers overlays anchor to.
func (c *Catalog) BaseLayers() []string {
	return append([]string(nil), c.baseLayers...)
}

func (d LayerDefinition) clone() LayerDefinition {
	if d.StyleOverrides != nil {
		o := make(map[string]any, len(d.StyleOverrides))
		for k, v := range d.StyleOverrides {
			o[k] = v
		}
		d.StyleOverrides = o
	}
	return d
}
