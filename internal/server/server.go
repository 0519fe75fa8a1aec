// Package server assembles the viewer HTTP server: the session, the snapshot
// database and the Huma API.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/leia-project/viewer-sub001/internal/api"
	"github.com/leia-project/viewer-sub001/internal/catalog"
	"github.com/leia-project/viewer-sub001/internal/connector"
	"github.com/leia-project/viewer-sub001/internal/db"
	"github.com/leia-project/viewer-sub001/internal/logging"
	"github.com/leia-project/viewer-sub001/internal/service"
	"github.com/leia-project/viewer-sub001/internal/store"
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string
	// Catalog is an optional catalog settings file.
	Catalog string
	// Document is an optional viewer document path or URL.
	Document string
	// NoDB disables the DuckDB snapshot.
	NoDB   bool
	Logger *slog.Logger
}

// Server is the viewer HTTP server.
type Server struct {
	config  Config
	mux     *http.ServeMux
	humaAPI huma.API
	handler http.Handler
	db      *sql.DB
	store   *store.Store
	session *service.Session
	logger  *slog.Logger
}

// New creates a new viewer server. A missing database is tolerated; an
// unreadable catalog settings file is not.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var connectors []connector.Connector
	if cfg.Catalog != "" {
		settings, err := catalog.Load(cfg.Catalog)
		if err != nil {
			return nil, err
		}
		if connectors, err = settings.Build(cfg.Logger); err != nil {
			return nil, err
		}
	}

	s := &Server{
		config: cfg,
		mux:    http.NewServeMux(),
		logger: cfg.Logger,
	}

	if !cfg.NoDB {
		conn, err := db.Get(db.Config{DataDir: cfg.DataDir, DBName: "viewer"})
		if err != nil {
			cfg.Logger.Warn("snapshot database unavailable", "error", err)
		} else {
			st := store.New(conn, cfg.Logger)
			if err := st.Migrate(context.Background()); err != nil {
				cfg.Logger.Warn("snapshot schema migration failed", "error", err)
			} else {
				s.db, s.store = conn, st
			}
		}
	}

	s.session = service.NewSession(service.Options{
		Logger:     cfg.Logger,
		Store:      s.store,
		Connectors: connectors,
	})

	humaConfig := huma.DefaultConfig("viewer API", "1.0.0")
	humaConfig.Info.Description = "Layer catalog and map orchestration API for the geospatial viewer."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())
	s.humaAPI = humago.New(s.mux, humaConfig)

	sources := make([]string, 0, len(connectors))
	for _, c := range connectors {
		sources = append(sources, c.Name())
	}
	api.RegisterRoutes(s.humaAPI, api.Deps{
		Session: s.session,
		DB:      s.db,
		Store:   s.store,
		DataDir: cfg.DataDir,
		Sources: sources,
	})

	s.handler = requestID(s.mux)
	return s, nil
}

// Load fetches the catalogs and the viewer document, then marks the map
// ready. Failures are logged and reported as notifications; the server keeps
// serving whatever was loaded.
func (s *Server) Load(ctx context.Context) error {
	var firstErr error
	if err := s.session.LoadCatalogs(ctx); err != nil {
		s.logger.ErrorContext(ctx, "catalog load failed", "error", err)
		firstErr = err
	}
	if s.config.Document != "" {
		if err := s.session.LoadDocument(ctx, s.config.Document); err != nil {
			s.logger.ErrorContext(ctx, "viewer document load failed", "location", s.config.Document, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	s.session.SetReady()
	return firstErr
}

// Session returns the map session.
func (s *Server) Session() *service.Session {
	return s.session
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close closes server resources.
func (s *Server) Close() error {
	s.session.Close()
	if s.db == nil {
		return nil
	}
	return db.Close()
}

// requestID tags every request with an id, taken from X-Request-ID when the
// client sends one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = logging.NewRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}
