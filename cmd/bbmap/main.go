package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-broadband/internal/areasummary"
	"github.com/joeblew999/plat-broadband/internal/catalog"
	"github.com/joeblew999/plat-broadband/internal/db"
	"github.com/joeblew999/plat-broadband/internal/logging"
	"github.com/joeblew999/plat-broadband/internal/overlay"
	"github.com/joeblew999/plat-broadband/internal/server"
)

// Options defines all CLI flags and env vars for the map server.
// Flags: --host, --port, --data-dir, --catalog, --summary-source, ...
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_SOCRATA_APP_TOKEN, ...
type Options struct {
	Host      string `doc:"Host to bind to" default:"0.0.0.0"`
	Port      int    `doc:"Port to listen on" short:"p" default:"8087"`
	DataDir   string `doc:"Directory for map state and DuckDB files" default:".data"`
	Catalog   string `doc:"YAML layer catalog replacing the built-in one"`
	LogLevel  string `doc:"Log level (debug, info, warn, error)" default:"info"`
	LogFormat string `doc:"Log format (text or json)" default:"text"`

	DefaultTech    string `doc:"Technology codes selected on map-ready" default:"acfosw"`
	DefaultSpeed   string `doc:"Speed tier selected on map-ready" default:"25_3"`
	DefaultOpacity int    `doc:"Opacity percent applied to new maps" default:"100"`
	SpeedLayers    bool   `doc:"Also install the speed-only layer registry"`

	SummarySource    string `doc:"Area summary source (none, socrata, duckdb)" default:"none"`
	SummaryCacheSecs int    `doc:"Seconds to cache a fetched area summary, 0 disables" default:"300"`
	SocrataEnv       string `doc:"Socrata environment (PROD or DEV)" default:"PROD"`
	SocrataDevURL    string `doc:"Combined dataset URL for DEV"`
	SocrataProdURL   string `doc:"Combined dataset URL for PROD"`
	SocrataAppToken  string `doc:"Socrata application token (PROD)"`
	SocrataBasicAuth string `doc:"Base64 user:password for DEV"`
}

func (o *Options) serverConfig() server.Config {
	return server.Config{
		Host:        o.Host,
		Port:        fmt.Sprintf("%d", o.Port),
		DataDir:     o.DataDir,
		CatalogPath: o.Catalog,
		Overlay: overlay.Config{
			DefaultTech:        o.DefaultTech,
			DefaultSpeed:       o.DefaultSpeed,
			DefaultOpacity:     overlay.NormalizeOpacity(float64(o.DefaultOpacity)) / 100,
			IncludeSpeedLayers: o.SpeedLayers,
		},
		SummarySource: o.SummarySource,
		SummaryTTL:    time.Duration(o.SummaryCacheSecs) * time.Second,
		Socrata: areasummary.SocrataConfig{
			Env:       o.SocrataEnv,
			DevURL:    o.SocrataDevURL,
			ProdURL:   o.SocrataProdURL,
			AppToken:  o.SocrataAppToken,
			BasicAuth: o.SocrataBasicAuth,
		},
		Logger: logging.Logger,
	}
}

func newServer(opts *Options) *server.Server {
	srv, err := server.New(opts.serverConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating server: %v\n", err)
		os.Exit(1)
	}
	return srv
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		hooks.OnStart(func() {
			logging.InitLogger(opts.LogLevel, opts.LogFormat)
			srv := newServer(opts)
			defer srv.Close()

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-broadband map server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			fmt.Printf("  Summary: %s\n", opts.SummarySource)
			fmt.Println()
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Printf("  Metrics: %s/metrics\n", baseURL)
			fmt.Println()

			if err := http.ListenAndServe(addr, srv); err != nil {
				log.Fatalf("Server error: %v", err)
			}
		})
	})

	cli.Root().Use = "bbmap"
	cli.Root().Short = "Broadband availability map overlay server"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			opts.SummarySource = server.SummaryNone
			srv := newServer(opts)
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			var err error
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// catalog subcommand: print the resolved layer registry
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print speed tiers and the layers each one installs",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			cat := catalog.Default()
			if opts.Catalog != "" {
				loaded, err := catalog.LoadFile(opts.Catalog)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error loading catalog: %v\n", err)
					os.Exit(1)
				}
				cat = loaded
			}

			type tierEntry struct {
				Tier   string   `yaml:"tier"`
				Layers []string `yaml:"layers"`
			}
			out := struct {
				DefaultTier string                     `yaml:"default_tier"`
				Sources     []catalog.SourceDescriptor `yaml:"sources"`
				Tiers       []tierEntry                `yaml:"tiers"`
			}{DefaultTier: cat.DefaultTier(), Sources: cat.Sources()}
			for _, tier := range cat.Tiers() {
				entry := tierEntry{Tier: tier}
				for _, def := range cat.Resolve(tier) {
					entry.Layers = append(entry.Layers, def.ID)
				}
				out.Tiers = append(out.Tiers, entry)
			}

			data, err := yaml.Marshal(out)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling catalog: %v\n", err)
				os.Exit(1)
			}
			fmt.Print(string(data))
		}),
	}
	cli.Root().AddCommand(catalogCmd)

	// import subcommand: load a combined CSV export into DuckDB
	importCmd := &cobra.Command{
		Use:   "import <combined.csv>",
		Short: "Import combined availability rows into the DuckDB summary store",
		Args:  cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			conn, err := db.Open(db.Config{DataDir: opts.DataDir, DBName: "broadband"})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
				os.Exit(1)
			}
			defer conn.Close()

			store := db.NewCombinedStore(conn)
			ctx := context.Background()
			if err := store.Migrate(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "Error migrating: %v\n", err)
				os.Exit(1)
			}
			n, err := store.ImportCSV(ctx, args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error importing %s: %v\n", args[0], err)
				os.Exit(1)
			}
			fmt.Printf("Imported %d rows from %s\n", n, args[0])
		}),
	}
	cli.Root().AddCommand(importCmd)

	cli.Run()
}
