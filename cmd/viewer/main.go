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

	"github.com/leia-project/viewer-sub001/internal/api"
	"github.com/leia-project/viewer-sub001/internal/catalog"
	"github.com/leia-project/viewer-sub001/internal/connector"
	"github.com/leia-project/viewer-sub001/internal/library"
	"github.com/leia-project/viewer-sub001/internal/logging"
	"github.com/leia-project/viewer-sub001/internal/server"
)

// Options defines all CLI flags and env vars for the viewer server.
// Flags: --host, --port, --data-dir, --catalog, --document, --log-level, --log-format, --no-db
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_CATALOG, ...
type Options struct {
	Host      string `doc:"Host to bind to" default:"0.0.0.0"`
	Port      int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir   string `doc:"Directory for the snapshot database, empty for in-memory" default:".data"`
	Catalog   string `doc:"Catalog sources settings file (YAML)"`
	Document  string `doc:"Viewer document path or URL (JSON or YAML)"`
	LogLevel  string `doc:"Log level: debug, info, warn, error" default:"info"`
	LogFormat string `doc:"Log format: text or json" default:"text"`
	NoDB      bool   `doc:"Disable the DuckDB snapshot"`
}

func newServer(opts *Options) (*server.Server, error) {
	logger := logging.Init(opts.LogLevel, opts.LogFormat)
	return server.New(server.Config{
		Host:     opts.Host,
		Port:     fmt.Sprintf("%d", opts.Port),
		DataDir:  opts.DataDir,
		Catalog:  opts.Catalog,
		Document: opts.Document,
		NoDB:     opts.NoDB,
		Logger:   logger,
	})
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		var httpServer *http.Server

		hooks.OnStart(func() {
			srv, err := newServer(opts)
			if err != nil {
				log.Fatalf("Server setup error: %v", err)
			}
			defer srv.Close()

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("viewer API server starting...\n")
			fmt.Printf("  Server:   %s\n", baseURL)
			fmt.Printf("  Data:     %s\n", opts.DataDir)
			if opts.Catalog != "" {
				fmt.Printf("  Catalog:  %s\n", opts.Catalog)
			}
			if opts.Document != "" {
				fmt.Printf("  Document: %s\n", opts.Document)
			}
			fmt.Println()
			fmt.Printf("  Events:   %s/api/v1/events\n", baseURL)
			fmt.Printf("  Docs:     %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI:  %s/openapi.json\n", baseURL)
			fmt.Println()

			go func() {
				// Load errors are already logged and sent as notifications.
				_ = srv.Load(context.Background())
			}()

			httpServer = &http.Server{Addr: addr, Handler: srv}
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Server error: %v", err)
			}
		})

		hooks.OnStop(func() {
			if httpServer == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(ctx)
		})
	})

	cli.Root().Use = "viewer"
	cli.Root().Short = "Layer catalog and map orchestration for the geospatial viewer"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			opts.NoDB = true
			opts.Catalog = ""
			srv, err := newServer(opts)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error creating server: %v\n", err)
				os.Exit(1)
			}
			defer srv.Close()

			useYAML, _ := cmd.Flags().GetBool("yaml")
			if err := printOutput(srv.OpenAPI(), useYAML); err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// catalog subcommand: fetch the configured sources and print the tree
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Fetch catalog sources and print the resulting layer tree",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			logger := logging.Init(opts.LogLevel, opts.LogFormat)
			path, _ := cmd.Flags().GetString("settings")
			if path == "" {
				path = opts.Catalog
			}
			if path == "" {
				fmt.Fprintln(os.Stderr, "Error: --settings is required")
				os.Exit(1)
			}

			settings, err := catalog.Load(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error loading settings: %v\n", err)
				os.Exit(1)
			}
			connectors, err := settings.Build(logger)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error building connectors: %v\n", err)
				os.Exit(1)
			}

			lib := library.New(logger)
			if err := connector.LoadAll(cmd.Context(), lib, connectors...); err != nil {
				fmt.Fprintf(os.Stderr, "Error fetching catalog: %v\n", err)
				os.Exit(1)
			}

			tree := make([]api.GroupBody, 0, lib.Groups.Len())
			for _, g := range lib.Groups.Items() {
				tree = append(tree, api.GroupTree(g))
			}
			for _, g := range lib.Pending() {
				logger.Warn("group never attached", "group", g.ID, "parent", g.ParentID)
			}

			useYAML, _ := cmd.Flags().GetBool("yaml")
			if err := printOutput(tree, useYAML); err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling tree: %v\n", err)
				os.Exit(1)
			}
		}),
	}
	catalogCmd.Flags().StringP("settings", "s", "", "Catalog sources settings file (YAML)")
	catalogCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(catalogCmd)

	cli.Run()
}

// printOutput writes v as indented JSON, or as YAML keeping the JSON field
// names.
func printOutput(v any, useYAML bool) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if useYAML {
		var generic any
		if err := json.Unmarshal(out, &generic); err != nil {
			return err
		}
		if out, err = yaml.Marshal(generic); err != nil {
			return err
		}
	}
	fmt.Println(string(out))
	return nil
}
