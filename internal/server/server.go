package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joeblew999/plat-broadband/internal/api"
	"github.com/joeblew999/plat-broadband/internal/api/settings"
	"github.com/joeblew999/plat-broadband/internal/areasummary"
	"github.com/joeblew999/plat-broadband/internal/catalog"
	"github.com/joeblew999/plat-broadband/internal/db"
	"github.com/joeblew999/plat-broadband/internal/humastar"
	"github.com/joeblew999/plat-broadband/internal/overlay"
	"github.com/joeblew999/plat-broadband/internal/service"
	"github.com/joeblew999/plat-broadband/internal/templates"
)

// Area summary sources.
const (
	SummaryNone    = "none"
	SummarySocrata = "socrata"
	SummaryDuckDB  = "duckdb"
)

// Config holds the server configuration.
type Config struct {
	Host          string
	Port          string
	DataDir       string
	CatalogPath   string // optional YAML catalog replacing the built-in one
	Overlay       overlay.Config
	SummarySource string
	SummaryTTL    time.Duration // cache fetched summaries per geography; zero disables
	Socrata       areasummary.SocrataConfig
	Logger        *slog.Logger
}

// Server is the broadband map HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	handler  http.Handler
	humaAPI  huma.API
	db       *sql.DB
	maps     *service.MapService
	renderer *templates.Renderer
	links    *humastar.Links
	log      *slog.Logger
}

// New creates a new server.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SummarySource == "" {
		cfg.SummarySource = SummaryNone
	}

	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		loaded, err := catalog.LoadFile(cfg.CatalogPath)
		if err != nil {
			return nil, err
		}
		cat = loaded
	}

	s := &Server{
		config:   cfg,
		mux:      http.NewServeMux(),
		renderer: templates.Default(),
		links:    humastar.NewLinks(),
		log:      cfg.Logger,
	}

	fetcher, err := s.summaryFetcher()
	if err != nil {
		return nil, err
	}
	if fetcher != nil && cfg.SummaryTTL > 0 {
		fetcher = areasummary.NewCachingFetcher(fetcher, cfg.SummaryTTL)
	}

	// Create Huma API with humago (pure stdlib) adapter
	humaConfig := huma.DefaultConfig("plat-broadband API", "1.0.0")
	humaConfig.Info.Description = "Broadband availability map overlays: selection, legend, opacity and area summaries."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, s.links.Transformer())
	s.humaAPI = humago.New(s.mux, humaConfig)

	s.maps = service.NewMapService(service.Config{
		DataDir: cfg.DataDir,
		Catalog: cat,
		Overlay: cfg.Overlay,
		Fetcher: fetcher,
		Logger:  cfg.Logger,
	})

	s.routes()
	s.handler = s.middleware(s.mux)
	return s, nil
}

// middleware adds panic recovery and request logging around h.
func (s *Server) middleware(h http.Handler) http.Handler {
	logged := handlers.CustomLoggingHandler(io.Discard, h, s.logRequest)
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(slog.NewLogLogger(s.log.Handler(), slog.LevelError)),
		handlers.PrintRecoveryStack(true),
	)(logged)
}

func (s *Server) logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	s.log.Debug("http request",
		"method", p.Request.Method,
		"path", p.URL.Path,
		"status", p.StatusCode,
		"size", p.Size,
		"duration", time.Since(p.TimeStamp),
	)
}

func (s *Server) summaryFetcher() (areasummary.Fetcher, error) {
	switch s.config.SummarySource {
	case SummaryNone:
		return nil, nil
	case SummarySocrata:
		cfg := s.config.Socrata
		if cfg.Timeout == 0 {
			cfg.Timeout = 15 * time.Second
		}
		return areasummary.NewSocrataFetcher(cfg, nil), nil
	case SummaryDuckDB:
		conn, err := db.Open(db.Config{DataDir: s.config.DataDir, DBName: "broadband"})
		if err != nil {
			return nil, err
		}
		store := db.NewCombinedStore(conn)
		if err := store.Migrate(context.Background()); err != nil {
			conn.Close()
			return nil, err
		}
		s.db = conn
		return store, nil
	default:
		return nil, fmt.Errorf("unknown summary source %q (want none, socrata or duckdb)", s.config.SummarySource)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Maps returns the map service.
func (s *Server) Maps() *service.MapService { return s.maps }

// Close closes server resources.
func (s *Server) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Server) routes() {
	// REST API routes (OpenAPI-documented JSON endpoints)
	api.RegisterRoutes(s.humaAPI, &api.Services{Maps: s.maps})
	api.NewInfoHandler(s.config.DataDir, s.config.SummarySource).RegisterRoutes(s.humaAPI)

	// Settings modal SSE routes using Huma + Datastar SDK
	settings.NewHandler(s.maps, s.renderer).RegisterRoutes(s.humaAPI)

	s.links.Build(s.humaAPI, "settings")

	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	for _, link := range s.links.For("/health") {
		w.Header().Add("Link", link)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "plat-broadband",
		"status":  "running",
	})
}
