// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"
	"net/url"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-broadband/internal/areasummary"
	"github.com/joeblew999/plat-broadband/internal/catalog"
	"github.com/joeblew999/plat-broadband/internal/humastar"
	"github.com/joeblew999/plat-broadband/internal/legend"
	"github.com/joeblew999/plat-broadband/internal/overlay"
	"github.com/joeblew999/plat-broadband/internal/selection"
	"github.com/joeblew999/plat-broadband/internal/service"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Maps *service.MapService
}

// Types

type MapIDInput struct {
	ID string `path:"id" doc:"Map ID" example:"3f0c2a4e-8a39-4df1-9c1c-6b1a0b1cd8f4"`
}

// MapBody is a mounted map. Its Link headers advertise the actions that make
// sense in the current overlay state.
type MapBody struct {
	service.MapInfo
}

var (
	actSelect  = humastar.ActionDef{Rel: "select", Pattern: "/api/v1/maps/%s/selection", Method: "PUT", Title: "Change selection"}
	actOpacity = humastar.ActionDef{Rel: "opacity", Pattern: "/api/v1/maps/%s/opacity", Method: "PUT", Title: "Set opacity"}
	actRemove  = humastar.ActionDef{Rel: "remove", Pattern: "/api/v1/maps/%s/selection", Method: "DELETE", Title: "Remove overlay"}
	actReset   = humastar.ActionDef{Rel: "reset", Pattern: "/api/v1/maps/%s/selection?reset=true", Method: "DELETE", Title: "Remove overlay and reset"}
	actReload  = humastar.ActionDef{Rel: "style-reload", Pattern: "/api/v1/maps/%s/style-reload", Method: "POST", Title: "Reload base style"}
)

// Actions implements humastar.Actor.
func (b MapBody) Actions() []humastar.Action {
	defs := []humastar.ActionDef{actSelect, actOpacity, actReload}
	if len(b.Layers) > 0 {
		defs = append(defs, actRemove, actReset)
	}
	return humastar.ActionsFor(b.ID, defs...)
}

type MapOutput struct {
	Body MapBody
}

type MapsOutput struct {
	Body []service.MapInfo
}

type SelectionBody struct {
	Tech  string `json:"tech" minLength:"1" doc:"Technology codes, one character each" example:"acfosw"`
	Speed string `json:"speed" minLength:"1" doc:"Speed tier" example:"25_3"`
}

type RemoveSelectionInput struct {
	MapIDInput
	Reset bool `query:"reset" doc:"Also clear the stored selection and reset opacity"`
}

type OpacityBody struct {
	Opacity any `json:"opacity,omitempty" doc:"Opacity in percent, as a number or numeric string; anything outside 0..100 is treated as 0"`
}

type OpacityResultBody struct {
	Opacity  float64 `json:"opacity" doc:"Applied opacity in percent" example:"80"`
	Fraction float64 `json:"fraction" doc:"Applied opacity as a 0..1 fraction" example:"0.8"`
}

type NavigationInput struct {
	MapIDInput
	Type  string `query:"type" doc:"Geography kind" example:"county"`
	GeoID string `query:"geoid" doc:"Geography identifier" example:"06075"`
	Tech  string `query:"tech" doc:"Technology codes" example:"cf"`
	Speed string `query:"speed" doc:"Speed tier" example:"100_10"`
}

func (n *NavigationInput) values() url.Values {
	q := url.Values{}
	for k, v := range map[string]string{
		selection.ParamType:  n.Type,
		selection.ParamGeoID: n.GeoID,
		selection.ParamTech:  n.Tech,
		selection.ParamSpeed: n.Speed,
	} {
		if v != "" {
			q.Set(k, v)
		}
	}
	return q
}

type SummaryInput struct {
	MapIDInput
	Refresh bool `query:"refresh" doc:"Fetch again even if a summary is loaded"`
}

type BoundsOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

type TierInfo struct {
	Tier   string   `json:"tier" doc:"Speed tier" example:"25"`
	Label  string   `json:"label" doc:"Legend label" example:"25"`
	Layers []string `json:"layers" doc:"Technology-speed layer ids"`
}

type CatalogBody struct {
	DefaultTier   string                     `json:"defaultTier" doc:"Tier used for unknown keys" example:"25"`
	PrimarySource string                     `json:"primarySource" doc:"Source whose absence triggers provisioning" example:"block-techSpeed"`
	Tiers         []TierInfo                 `json:"tiers"`
	Sources       []catalog.SourceDescriptor `json:"sources"`
	Technologies  []legend.Technology        `json:"technologies"`
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
	Maps    int    `json:"maps" doc:"Mounted maps"`
}

// APIHandler holds all REST API handlers.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterRoutes registers every REST route.
func RegisterRoutes(api huma.API, svc *Services) {
	h := NewAPIHandler(svc)
	h.RegisterHealth(api)
	h.RegisterCatalog(api)
	h.RegisterMaps(api)
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterCatalog registers the layer catalog route.
func (h *APIHandler) RegisterCatalog(api huma.API) {
	huma.Get(api, "/api/v1/catalog", h.GetCatalog, huma.OperationTags("catalog"))
}

// RegisterMaps registers map mount and overlay routes.
func (h *APIHandler) RegisterMaps(api huma.API) {
	huma.Get(api, "/api/v1/maps", h.ListMaps, huma.OperationTags("maps"))
	huma.Register(api, huma.Operation{
		OperationID:   "mount-map",
		Method:        "POST",
		Path:          "/api/v1/maps",
		Summary:       "Mount a map",
		Tags:          []string{"maps"},
		DefaultStatus: 201,
	}, h.MountMap)
	huma.Get(api, "/api/v1/maps/{id}", h.GetMap, huma.OperationTags("maps"))
	huma.Delete(api, "/api/v1/maps/{id}", h.UnmountMap, huma.OperationTags("maps"))

	huma.Put(api, "/api/v1/maps/{id}/selection", h.PutSelection, huma.OperationTags("maps"))
	huma.Delete(api, "/api/v1/maps/{id}/selection", h.DeleteSelection, huma.OperationTags("maps"))
	huma.Put(api, "/api/v1/maps/{id}/opacity", h.PutOpacity, huma.OperationTags("maps"))
	huma.Get(api, "/api/v1/maps/{id}/legend", h.GetLegend, huma.OperationTags("maps"))
	huma.Post(api, "/api/v1/maps/{id}/style-reload", h.ReloadStyle, huma.OperationTags("maps"))
	huma.Put(api, "/api/v1/maps/{id}/navigation", h.PutNavigation, huma.OperationTags("maps"))
	huma.Get(api, "/api/v1/maps/{id}/summary", h.GetSummary, huma.OperationTags("maps"))
	huma.Get(api, "/api/v1/maps/{id}/bounds", h.GetBounds, huma.OperationTags("maps"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	n := 0
	if h.svc != nil && h.svc.Maps != nil {
		n = len(h.svc.Maps.List())
	}
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0", Maps: n}}, nil
}

func (h *APIHandler) GetCatalog(ctx context.Context, input *struct{}) (*struct{ Body CatalogBody }, error) {
	cat := h.svc.Maps.Catalog()
	body := CatalogBody{
		DefaultTier:   cat.DefaultTier(),
		PrimarySource: cat.PrimarySource(),
		Sources:       cat.Sources(),
		Technologies:  legend.DefaultTable(),
	}
	for _, tier := range cat.Tiers() {
		info := TierInfo{Tier: tier, Label: legend.SpeedLabel(tier)}
		for _, def := range cat.Resolve(tier) {
			info.Layers = append(info.Layers, def.ID)
		}
		body.Tiers = append(body.Tiers, info)
	}
	return &struct{ Body CatalogBody }{Body: body}, nil
}

func (h *APIHandler) ListMaps(ctx context.Context, input *struct{}) (*MapsOutput, error) {
	out := &MapsOutput{Body: []service.MapInfo{}}
	for _, inst := range h.svc.Maps.List() {
		out.Body = append(out.Body, inst.Info())
	}
	return out, nil
}

func (h *APIHandler) MountMap(ctx context.Context, input *struct{ Body service.MountRequest }) (*MapOutput, error) {
	inst, err := h.svc.Maps.Mount(input.Body)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	return mapOutput(inst), nil
}

func (h *APIHandler) GetMap(ctx context.Context, input *MapIDInput) (*MapOutput, error) {
	inst, err := h.instance(input.ID)
	if err != nil {
		return nil, err
	}
	return mapOutput(inst), nil
}

func (h *APIHandler) UnmountMap(ctx context.Context, input *MapIDInput) (*struct{}, error) {
	if err := h.svc.Maps.Unmount(input.ID); err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	return nil, nil
}

func (h *APIHandler) PutSelection(ctx context.Context, input *struct {
	MapIDInput
	Body SelectionBody
}) (*MapOutput, error) {
	inst, err := h.instance(input.ID)
	if err != nil {
		return nil, err
	}
	inst.Engine.SetSelection(overlay.NewSelection(input.Body.Tech, input.Body.Speed))
	return mapOutput(inst), nil
}

func (h *APIHandler) DeleteSelection(ctx context.Context, input *RemoveSelectionInput) (*MapOutput, error) {
	inst, err := h.instance(input.ID)
	if err != nil {
		return nil, err
	}
	inst.Engine.RemoveSelection(input.Reset)
	return mapOutput(inst), nil
}

func (h *APIHandler) PutOpacity(ctx context.Context, input *struct {
	MapIDInput
	Body OpacityBody
}) (*struct{ Body OpacityResultBody }, error) {
	inst, err := h.instance(input.ID)
	if err != nil {
		return nil, err
	}
	f := inst.Engine.SetOpacity(overlay.OpacityValue(input.Body.Opacity))
	return &struct{ Body OpacityResultBody }{Body: OpacityResultBody{Opacity: f * 100, Fraction: f}}, nil
}

func (h *APIHandler) GetLegend(ctx context.Context, input *MapIDInput) (*struct{ Body legend.Label }, error) {
	inst, err := h.instance(input.ID)
	if err != nil {
		return nil, err
	}
	return &struct{ Body legend.Label }{Body: inst.Engine.Legend()}, nil
}

func (h *APIHandler) ReloadStyle(ctx context.Context, input *MapIDInput) (*MapOutput, error) {
	inst, err := h.instance(input.ID)
	if err != nil {
		return nil, err
	}
	inst.ReloadStyle()
	return mapOutput(inst), nil
}

func (h *APIHandler) PutNavigation(ctx context.Context, input *NavigationInput) (*MapOutput, error) {
	inst, err := h.instance(input.ID)
	if err != nil {
		return nil, err
	}
	inst.Navigate(ctx, input.values())
	return mapOutput(inst), nil
}

func (h *APIHandler) GetSummary(ctx context.Context, input *SummaryInput) (*struct{ Body areasummary.Summary }, error) {
	inst, err := h.instance(input.ID)
	if err != nil {
		return nil, err
	}
	if inst.Summary == nil {
		return nil, huma.Error503ServiceUnavailable("area summaries are not configured")
	}
	if s, ok := inst.Summary.Current(); ok && !input.Refresh && s.Geography == inst.Sync.State().Geography {
		return &struct{ Body areasummary.Summary }{Body: s}, nil
	}

	s, err := inst.LoadSummary(ctx, inst.Sync.State().Geography)
	switch {
	case errors.Is(err, areasummary.ErrStale):
		return nil, huma.Error409Conflict("a newer summary load is in progress")
	case errors.Is(err, areasummary.ErrUpstream), errors.Is(err, areasummary.ErrMalformed):
		return nil, huma.Error502BadGateway(err.Error())
	case err != nil:
		return nil, huma.Error500InternalServerError("summary fetch failed", err)
	}
	return &struct{ Body areasummary.Summary }{Body: s}, nil
}

func (h *APIHandler) GetBounds(ctx context.Context, input *MapIDInput) (*BoundsOutput, error) {
	inst, err := h.instance(input.ID)
	if err != nil {
		return nil, err
	}
	data, err := inst.View.GeoJSON(inst.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("encode bounds", err)
	}
	return &BoundsOutput{ContentType: "application/geo+json", Body: data}, nil
}

func (h *APIHandler) instance(id string) (*service.Instance, error) {
	inst, ok := h.svc.Maps.Get(id)
	if !ok {
		return nil, huma.Error404NotFound("map not found")
	}
	return inst, nil
}

func mapOutput(inst *service.Instance) *MapOutput {
	return &MapOutput{Body: MapBody{MapInfo: inst.Info()}}
}
