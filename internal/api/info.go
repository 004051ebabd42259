package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

type InfoHandler struct {
	dataDir       string
	summarySource string
}

// NewInfoHandler describes the running service. summarySource names where
// area summaries come from: "socrata", "duckdb" or "none".
func NewInfoHandler(dataDir, summarySource string) *InfoHandler {
	return &InfoHandler{dataDir: dataDir, summarySource: summarySource}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name          string   `json:"name" doc:"Service name"`
	Version       string   `json:"version" doc:"Service version"`
	DataDir       string   `json:"data_dir" doc:"Data directory path"`
	SummarySource string   `json:"summary_source" enum:"socrata,duckdb,none" doc:"Where area summaries are read from"`
	Features      []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	features := []string{"overlay", "legend", "opacity", "url-state", "datastar"}
	if h.summarySource != "none" {
		features = append(features, "area-summary")
	}
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:          "plat-broadband",
		Version:       "0.1.0",
		DataDir:       h.dataDir,
		SummarySource: h.summarySource,
		Features:      features,
	}}, nil
}
