package api

import (
	"database/sql"

	"github.com/danielgtaylor/huma/v2"

	"github.com/leia-project/viewer-sub001/internal/service"
	"github.com/leia-project/viewer-sub001/internal/store"
)

// Deps holds what the handlers need. DB and Store may be nil.
type Deps struct {
	Session *service.Session
	DB      *sql.DB
	Store   *store.Store
	DataDir string
	Sources []string
}

// RegisterRoutes registers every REST and SSE route on api.
func RegisterRoutes(api huma.API, deps Deps) {
	huma.AutoRegister(api, NewAPIHandler(deps.Session))
	NewInfoHandler(deps.Session, deps.DataDir, deps.Sources, deps.DB != nil).RegisterRoutes(api)
	NewDBHandler(deps.DB, deps.Store).RegisterRoutes(api)
	NewEventHandler(deps.Session).RegisterRoutes(api)
}
