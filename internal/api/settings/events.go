package settings

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-broadband/internal/humastar"
	"github.com/joeblew999/plat-broadband/internal/service"
)

// Events streams one map's events to the Datastar UI until the client goes
// away or the map is unmounted.
func (h *Handler) Events(ctx context.Context, input *MapInput) (*huma.StreamResponse, error) {
	if _, err := h.instance(input.ID); err != nil {
		return nil, err
	}

	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			ch, cancel := h.maps.Bus().Subscribe(input.ID)
			defer cancel()
			sse := humastar.NewSSE(humaCtx)
			done := humaCtx.Context().Done()

			for {
				select {
				case <-done:
					return
				case ev, ok := <-ch:
					if !ok {
						return
					}
					if !h.push(sse, ev) {
						return
					}
				}
			}
		},
	}, nil
}

// push writes one event; it returns false once the stream should end.
func (h *Handler) push(sse humastar.SSE, ev service.Event) bool {
	switch ev.Kind {
	case service.EventSelectionChanged, service.EventLayersRemoved:
		sse.Patch(h.renderLegend(ev.Change.Legend), SelLegend)
		sse.Patch(h.renderLayers(ev.Change.Layers), SelLayers)
		sse.Signals(map[string]any{
			"tech":    ev.Change.Selection.TechString(),
			"speed":   ev.Change.Selection.Speed,
			"opacity": ev.Change.Opacity * 100,
		})
	case service.EventOpacityChanged:
		sse.Signals(map[string]any{"opacity": ev.Change.Opacity * 100})
	case service.EventSettingsOpened:
		sse.Signals(map[string]any{"settingsOpen": true})
	case service.EventSummaryLoaded:
		if ev.Summary != nil {
			sse.Replace(h.Renderer.MustRender("summary", ev.Summary), SelSummary)
		}
	case service.EventMapUnmounted:
		sse.Error("Map was unmounted")
		return false
	}

	sse.DispatchCustomEvent("map-event", map[string]any{
		"map":      ev.MapID,
		"kind":     string(ev.Kind),
		"property": ev.Change.PropertyID,
	})
	return true
}
