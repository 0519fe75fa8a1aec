package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/leia-project/viewer-sub001/internal/backend/headless"
	"github.com/leia-project/viewer-sub001/internal/mapcore"
	"github.com/leia-project/viewer-sub001/internal/service"
)

type InfoHandler struct {
	session *service.Session
	dataDir string
	sources []string
	dbOK    bool
}

func NewInfoHandler(session *service.Session, dataDir string, sources []string, dbOK bool) *InfoHandler {
	return &InfoHandler{session: session, dataDir: dataDir, sources: sources, dbOK: dbOK}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name         string   `json:"name" doc:"Map name from the loaded viewer document"`
	Version      string   `json:"version" doc:"Service version"`
	DataDir      string   `json:"data_dir" doc:"Data directory path"`
	DB           bool     `json:"db" doc:"Whether the snapshot database is available"`
	ConfigLoaded bool     `json:"config_loaded" doc:"Whether a viewer document has been applied"`
	Ready        bool     `json:"ready" doc:"Whether the map finished loading"`
	Sources      []string `json:"sources" doc:"Configured catalog sources"`
	LayerTypes   []string `json:"layer_types" doc:"Layer types the backend can render"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	body := InfoBody{
		Version: "0.1.0",
		DataDir: h.dataDir,
		DB:      h.dbOK,
		Sources: append([]string{}, h.sources...),
	}
	h.session.View(func(m *mapcore.MapCore) {
		body.Name = m.Name
		body.ConfigLoaded = m.ConfigLoaded.Get()
		body.Ready = m.Ready.Get()
	})
	h.session.Backend(func(b *headless.Backend) {
		body.LayerTypes = b.Types()
	})
	if body.Name == "" {
		body.Name = "viewer"
	}
	return &struct{ Body InfoBody }{Body: body}, nil
}
