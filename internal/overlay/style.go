package overlay

import (
	"github.com/joeblew999/plat-broadband/internal/catalog"
	"github.com/joeblew999/plat-broadband/internal/mapbackend"
)

// OpacityProperty is the paint property driven by the opacity controller.
const OpacityProperty = "fill-opacity"

// colorRamp is the choropleth ramp keyed by provider count.
var colorRamp = [][2]any{
	{0, "#ffffcc"},
	{1, "#a1dab4"},
	{2, "#41b6c4"},
	{3, "#225ea8"},
	{4, "#253494"},
	{6, "#081d58"},
	{12, "#000000"},
}

func styleTemplate(propertyID string, opacity float64) mapbackend.LayerSpec {
	stops := make([]any, len(colorRamp))
	for i, s := range colorRamp {
		stops[i] = []any{s[0], s[1]}
	}

	return mapbackend.LayerSpec{
		"id":     "",
		"type":   "fill",
		"source": "",
		"layout": map[string]any{
			"visibility": "visible",
		},
		"paint": map[string]any{
			"fill-color": map[string]any{
				"base":     1,
				"type":     "exponential",
				"property": propertyID,
				"stops":    stops,
				"default":  "#ffffcc",
			},
			"fill-outline-color": "hsl(0, 1%, 46%)",
			OpacityProperty:      opacity,
		},
		"source-layer": "",
	}
}

// buildLayer merges the template with the definition. Overrides replace
// top-level keys; id and source always come from the definition.
func buildLayer(def catalog.LayerDefinition, propertyID string, opacity float64) mapbackend.LayerSpec {
	layer := styleTemplate(propertyID, opacity)
	layer["source-layer"] = def.SourceLayer

	for k, v := range mapbackend.LayerSpec(def.StyleOverrides).Clone() {
		layer[k] = v
	}

	layer["id"] = def.ID
	layer["source"] = def.SourceID
	return layer
}
