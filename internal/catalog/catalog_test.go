package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const smallCatalog = `
default_tier: "25"
sources:
  - id: tiles
    url: mapbox://test.tiles
    type: vector
tech_speed:
  "25":
    - id: fill-25
      source: tiles
      source_layer: l25
      before: road-label
      style:
        maxzoom: 9
  "4":
    - id: fill-4
      source: tiles
      source_layer: l4
`

func ids(defs []LayerDefinition) []string {
	var out []string
	for _, d := range defs {
		out = append(out, d.ID)
	}
	return out
}

func TestDefault_Loads(t *testing.T) {
	c := Default()

	assert.Equal(t, "25", c.DefaultTier())
	assert.Equal(t, "block-techSpeed", c.PrimarySource())
	assert.Len(t, c.Sources(), 3)
	assert.Equal(t, []string{"4", "10", "25", "100", "200", "250", "1000"}, c.Tiers())
	assert.Contains(t, c.BaseLayers(), "road-label")
}

func TestResolve_UsesDownstreamKey(t *testing.T) {
	c := Default()

	assert.Equal(t, []string{"county-techSpeed-25", "block-techSpeed-25"}, ids(c.Resolve("25_3")))
	assert.Equal(t, []string{"county-techSpeed-10", "block-techSpeed-10"}, ids(c.Resolve("10_1")))
	assert.Equal(t, []string{"county-speed-200"}, ids(c.ResolveSpeed("200")))
}

func TestResolve_UnknownTierFallsBack(t *testing.T) {
	c := Default()

	for _, tier := range []string{"999_1", "garbage", "", "_3"} {
		defs := c.Resolve(tier)
		assert.Equal(t, []string{"county-techSpeed-25", "block-techSpeed-25"}, ids(defs), "tier %q", tier)
		assert.Equal(t, []string{"county-speed-25"}, ids(c.ResolveSpeed(tier)), "tier %q", tier)
	}
	assert.False(t, c.Known("999_1"))
	assert.True(t, c.Known("100_10"))
}

func TestResolve_ReturnsCopies(t *testing.T) {
	c, err := Load(strings.NewReader(smallCatalog))
	require.NoError(t, err)

	defs := c.Resolve("25")
	defs[0].StyleOverrides["maxzoom"] = 1
	defs[0].ID = "mutated"

	again := c.Resolve("25")
	assert.Equal(t, "fill-25", again[0].ID)
	assert.Equal(t, 9, again[0].StyleOverrides["maxzoom"])
}

func TestLoad_SmallCatalog(t *testing.T) {
	c, err := Load(strings.NewReader(smallCatalog))
	require.NoError(t, err)

	assert.Equal(t, "tiles", c.PrimarySource())
	assert.Nil(t, c.ResolveSpeed("25"))

	d := c.Resolve("25_3")[0]
	assert.Equal(t, "tiles", d.SourceID)
	assert.Equal(t, "l25", d.SourceLayer)
	assert.Equal(t, "road-label", d.BeforeLayerID)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing default tier",
			yaml: `
default_tier: "100"
sources: [{id: s, url: u, type: vector}]
tech_speed:
  "25": [{id: a, source: s, source_layer: x}]
`,
			want: `default tier "100"`,
		},
		{
			name: "unknown source",
			yaml: `
default_tier: "25"
sources: [{id: s, url: u, type: vector}]
tech_speed:
  "25": [{id: a, source: other, source_layer: x}]
`,
			want: `unknown source "other"`,
		},
		{
			name: "duplicate layer id",
			yaml: `
default_tier: "25"
sources: [{id: s, url: u, type: vector}]
tech_speed:
  "25": [{id: a, source: s, source_layer: x}]
speed:
  "25": [{id: a, source: s, source_layer: y}]
`,
			want: `layer "a" declared in`,
		},
		{
			name: "bad source type",
			yaml: `
default_tier: "25"
sources: [{id: s, url: u, type: wms}]
tech_speed:
  "25": [{id: a, source: s, source_layer: x}]
`,
			want: `unknown type "wms"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "25", Key("25_3"))
	assert.Equal(t, "200", Key("200"))
	assert.Equal(t, "", Key(""))
}
