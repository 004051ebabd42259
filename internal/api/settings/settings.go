// Package settings contains the Datastar SSE handlers behind the map
// settings modal: open, update, opacity, remove and the per-map event stream.
package settings

import (
	"context"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-broadband/internal/catalog"
	"github.com/joeblew999/plat-broadband/internal/humastar"
	"github.com/joeblew999/plat-broadband/internal/legend"
	"github.com/joeblew999/plat-broadband/internal/overlay"
	"github.com/joeblew999/plat-broadband/internal/service"
	"github.com/joeblew999/plat-broadband/internal/templates"
)

// Element selectors patched by this package.
const (
	SelLegend   = "#map-legend"
	SelLayers   = "#layer-list"
	SelSettings = "#map-settings"
	SelSummary  = "#area-summary"
)

type Handler struct {
	humastar.Handler
	maps *service.MapService
}

func NewHandler(maps *service.MapService, renderer *templates.Renderer) *Handler {
	return &Handler{Handler: humastar.Handler{Renderer: renderer}, maps: maps}
}

func (h *Handler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/settings/{id}/open", h.Open, huma.OperationTags("settings"))
	huma.Post(api, "/api/v1/settings/{id}/update", h.Update, huma.OperationTags("settings"))
	huma.Post(api, "/api/v1/settings/{id}/opacity", h.Opacity, huma.OperationTags("settings"))
	huma.Post(api, "/api/v1/settings/{id}/remove", h.Remove, huma.OperationTags("settings"))
	huma.Get(api, "/api/v1/settings/{id}/events", h.Events, huma.OperationTags("settings"))
}

type MapInput struct {
	ID string `path:"id" doc:"Map ID"`
}

type SignalsInput struct {
	ID      string `path:"id" doc:"Map ID"`
	RawBody []byte
}

func (i *SignalsInput) signals() (humastar.Signals, error) {
	in := humastar.SignalsInput{RawBody: i.RawBody}
	return in.MustParse()
}

func (h *Handler) instance(id string) (*service.Instance, error) {
	inst, ok := h.maps.Get(id)
	if !ok {
		return nil, huma.Error404NotFound("map not found")
	}
	return inst, nil
}

// Open announces the modal and seeds it with the current selection.
func (h *Handler) Open(ctx context.Context, input *MapInput) (*huma.StreamResponse, error) {
	inst, err := h.instance(input.ID)
	if err != nil {
		return nil, err
	}
	inst.OpenSettings()

	return h.Stream(func(sse humastar.SSE) {
		sel := inst.Engine.Selection()
		sse.Patch(h.renderSettings(inst), SelSettings)
		sse.Patch(h.renderLegend(inst.Engine.Legend()), SelLegend)
		sse.Signals(map[string]any{
			"settingsOpen": true,
			"tech":         sel.TechString(),
			"speed":        sel.Speed,
			"opacity":      inst.Engine.Opacity() * 100,
		})
	}), nil
}

// Update installs the selection from the tech and speed signals.
func (h *Handler) Update(ctx context.Context, input *SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.signals()
	if err != nil {
		return nil, err
	}
	inst, err := h.instance(input.ID)
	if err != nil {
		return nil, err
	}

	tech := techSignal(signals)
	speed := signals.String("speed")
	if tech == "" {
		return nil, huma.Error400BadRequest("Select at least one technology")
	}
	if speed == "" {
		return nil, huma.Error400BadRequest("Speed is required")
	}

	return h.Stream(func(sse humastar.SSE) {
		inst.Engine.SetSelection(overlay.NewSelection(tech, speed))
		sel := inst.Engine.Selection()
		layers := inst.Engine.ActiveLayers()

		sse.Patch(h.renderLegend(inst.Engine.Legend()), SelLegend)
		sse.Patch(h.renderLayers(layers), SelLayers)
		sse.Signals(map[string]any{
			"tech":         sel.TechString(),
			"speed":        sel.Speed,
			"settingsOpen": false,
		})
		sse.DispatchCustomEvent("overlay-changed", map[string]any{
			"map": inst.ID, "property": sel.PropertyID(), "layers": layers,
		})
	}), nil
}

// Opacity applies the opacity slider value (0..100), sent as a number or as
// the string a bound range input produces.
func (h *Handler) Opacity(ctx context.Context, input *SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.signals()
	if err != nil {
		return nil, err
	}
	inst, err := h.instance(input.ID)
	if err != nil {
		return nil, err
	}

	return h.Stream(func(sse humastar.SSE) {
		f := inst.Engine.SetOpacity(overlay.OpacityValue(signals["opacity"]))
		sse.Signals(map[string]any{"opacity": f * 100})
	}), nil
}

// Remove drops the overlay; the reset signal also clears persisted state.
func (h *Handler) Remove(ctx context.Context, input *SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.signals()
	if err != nil {
		return nil, err
	}
	inst, err := h.instance(input.ID)
	if err != nil {
		return nil, err
	}
	reset := signals.Bool("reset")

	return h.Stream(func(sse humastar.SSE) {
		inst.Engine.RemoveSelection(reset)
		sel := inst.Engine.Selection()

		sse.Patch(h.renderLegend(inst.Engine.Legend()), SelLegend)
		sse.Patch(h.renderLayers(nil), SelLayers)
		sse.Signals(map[string]any{
			"tech":    sel.TechString(),
			"speed":   sel.Speed,
			"opacity": inst.Engine.Opacity() * 100,
		})
		if reset {
			sse.Success("Overlay reset")
		} else {
			sse.Success("Overlay removed")
		}
	}), nil
}

// techSignal accepts either a code string or the array a checkbox group binds.
func techSignal(s humastar.Signals) string {
	switch v := s["tech"].(type) {
	case string:
		return v
	case []any:
		var b strings.Builder
		for _, code := range v {
			if str, ok := code.(string); ok {
				b.WriteString(str)
			}
		}
		return b.String()
	}
	return ""
}

func (h *Handler) renderLegend(label legend.Label) string {
	return h.Renderer.MustRender("legend", label)
}

func (h *Handler) renderLayers(ids []string) string {
	items := make([]any, len(ids))
	for i, id := range ids {
		items[i] = id
	}
	return h.RenderList("layer-item", items, "No overlay", "Choose technologies and a speed")
}

type techOption struct {
	Code    string
	Name    string
	Checked bool
}

type tierOption struct {
	Value    string
	Label    string
	Selected bool
}

func (h *Handler) renderSettings(inst *service.Instance) string {
	sel := inst.Engine.Selection()
	checked := map[string]bool{}
	for _, code := range sel.Tech {
		checked[code] = true
	}

	data := struct {
		ID           string
		Technologies []techOption
		Tiers        []tierOption
		Opacity      float64
	}{ID: inst.ID, Opacity: inst.Engine.Opacity() * 100}

	for _, t := range legend.DefaultTable() {
		data.Technologies = append(data.Technologies, techOption{Code: t.Code, Name: t.Name, Checked: checked[t.Code]})
	}
	cat := inst.Engine.Catalog()
	for _, tier := range cat.Tiers() {
		data.Tiers = append(data.Tiers, tierOption{
			Value:    tier,
			Label:    legend.SpeedLabel(tier),
			Selected: tier == catalog.Key(sel.Speed),
		})
	}
	return h.Renderer.MustRender("settings", data)
}
