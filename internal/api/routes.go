// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"
	"slices"

	"github.com/danielgtaylor/huma/v2"

	"github.com/leia-project/viewer-sub001/internal/backend/headless"
	"github.com/leia-project/viewer-sub001/internal/library"
	"github.com/leia-project/viewer-sub001/internal/mapcore"
	"github.com/leia-project/viewer-sub001/internal/service"
)

// Types

type IDInput struct {
	ID string `path:"id" doc:"Layer ID" example:"luchtfoto_2021"`
}

type GroupIDInput struct {
	ID string `path:"id" doc:"Group ID" example:"group_background"`
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// GroupBody is a group with its derived counts and, for tree views, its
// children.
type GroupBody struct {
	ID       string      `json:"id" doc:"Group ID"`
	Title    string      `json:"title" doc:"Group title"`
	ParentID string      `json:"parentId,omitempty" doc:"Parent group ID"`
	Total    int         `json:"total" doc:"Layers in this group and its descendants"`
	Enabled  int         `json:"enabled" doc:"Active layers in this group and its descendants"`
	Layers   []string    `json:"layers" doc:"IDs of the layers owned directly by this group"`
	Children []GroupBody `json:"children,omitempty" doc:"Child groups"`
}

// LayerBody is a layer config with its activation flag.
type LayerBody struct {
	library.Descriptor
	Added bool `json:"added" doc:"Whether the layer is on the map"`
}

// MapLayerBody is a live layer on the map.
type MapLayerBody struct {
	ID           string  `json:"id" doc:"Layer ID"`
	Title        string  `json:"title" doc:"Layer title"`
	Type         string  `json:"type" doc:"Layer type"`
	IsBackground bool    `json:"isBackground" doc:"Whether this is a background layer"`
	Visible      bool    `json:"visible" doc:"Whether the layer is shown"`
	Opacity      float64 `json:"opacity" doc:"Opacity in percent"`
}

type GroupsOutput struct {
	Body []GroupBody
}

type GroupOutput struct {
	Body GroupBody
}

type LayersOutput struct {
	Body PageBody[LayerBody]
}

type LayerOutput struct {
	Body LayerBody
}

type MapLayersOutput struct {
	Body []MapLayerBody
}

type MapLayerOutput struct {
	Body MapLayerBody
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	session *service.Session
}

func NewAPIHandler(session *service.Session) *APIHandler {
	return &APIHandler{session: session}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterLibrary registers the catalog routes.
func (h *APIHandler) RegisterLibrary(api huma.API) {
	huma.Get(api, "/api/v1/groups", h.GetGroups, huma.OperationTags("library"))
	huma.Get(api, "/api/v1/groups/{id}", h.GetGroup, huma.OperationTags("library"))
	huma.Post(api, "/api/v1/groups/{id}/add-all", h.AddAllLayers, huma.OperationTags("library"))
	huma.Post(api, "/api/v1/groups/{id}/remove-all", h.RemoveAllLayers, huma.OperationTags("library"))
	huma.Get(api, "/api/v1/layers", h.GetLayers, huma.OperationTags("library"))
	huma.Get(api, "/api/v1/layers/{id}", h.GetLayer, huma.OperationTags("library"))
	huma.Post(api, "/api/v1/layers/{id}/add", h.AddLayer, huma.OperationTags("library"))
	huma.Post(api, "/api/v1/layers/{id}/remove", h.RemoveLayer, huma.OperationTags("library"))
	huma.Get(api, "/api/v1/tags", h.GetTags, huma.OperationTags("library"))
	huma.Get(api, "/api/v1/pending", h.GetPending, huma.OperationTags("library"))
}

// RegisterMap registers the live map routes.
func (h *APIHandler) RegisterMap(api huma.API) {
	huma.Get(api, "/api/v1/map/layers", h.GetMapLayers, huma.OperationTags("map"))
	huma.Patch(api, "/api/v1/map/layers/{id}", h.PatchMapLayer, huma.OperationTags("map"))
	huma.Post(api, "/api/v1/map/home", h.Home, huma.OperationTags("map"))
}

// RegisterCustomLayers registers the user layer routes.
func (h *APIHandler) RegisterCustomLayers(api huma.API) {
	huma.Post(api, "/api/v1/custom-layers/validate", h.ValidateCustomLayer, huma.OperationTags("custom-layers"))
	huma.Post(api, "/api/v1/custom-layers", h.AddCustomLayer, huma.OperationTags("custom-layers"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0"}}, nil
}

func (h *APIHandler) GetGroups(ctx context.Context, input *struct{}) (*GroupsOutput, error) {
	out := &GroupsOutput{Body: []GroupBody{}}
	h.session.View(func(m *mapcore.MapCore) {
		for _, g := range m.Library.Groups.Items() {
			out.Body = append(out.Body, GroupTree(g))
		}
	})
	return out, nil
}

func (h *APIHandler) GetGroup(ctx context.Context, input *GroupIDInput) (*GroupOutput, error) {
	var (
		body GroupBody
		ok   bool
	)
	h.session.View(func(m *mapcore.MapCore) {
		var g *library.LayerConfigGroup
		if g, ok = m.Library.FindGroup(input.ID); ok {
			body = GroupTree(g)
		}
	})
	if !ok {
		return nil, huma.Error404NotFound("group not found")
	}
	return &GroupOutput{Body: body}, nil
}

func (h *APIHandler) AddAllLayers(ctx context.Context, input *GroupIDInput) (*GroupOutput, error) {
	return h.updateGroup(ctx, input.ID, (*library.LayerConfigGroup).AddAllLayers)
}

func (h *APIHandler) RemoveAllLayers(ctx context.Context, input *GroupIDInput) (*GroupOutput, error) {
	return h.updateGroup(ctx, input.ID, (*library.LayerConfigGroup).RemoveAllLayers)
}

func (h *APIHandler) updateGroup(ctx context.Context, id string, fn func(*library.LayerConfigGroup)) (*GroupOutput, error) {
	var body GroupBody
	err := h.session.Update(func(m *mapcore.MapCore) error {
		g, ok := m.Library.FindGroup(id)
		if !ok {
			return library.ErrNotFound
		}
		fn(g)
		body = GroupTree(g)
		return nil
	})
	if err != nil {
		return nil, huma.Error404NotFound("group not found")
	}
	_ = h.session.Persist(ctx)
	return &GroupOutput{Body: body}, nil
}

func (h *APIHandler) GetLayers(ctx context.Context, input *struct {
	Tag   string `query:"tag" doc:"Only layers carrying this tag"`
	Added bool   `query:"added" doc:"Only active layers"`
	PageInput
}) (*LayersOutput, error) {
	var layers []LayerBody
	h.session.View(func(m *mapcore.MapCore) {
		for _, c := range m.Library.LayerConfigs() {
			if input.Added && !c.Added.Get() {
				continue
			}
			if input.Tag != "" && !slices.Contains(c.Tags, input.Tag) {
				continue
			}
			layers = append(layers, layerBody(c))
		}
	})
	return &LayersOutput{Body: Page(layers, input.PageInput)}, nil
}

func (h *APIHandler) GetLayer(ctx context.Context, input *IDInput) (*LayerOutput, error) {
	var (
		body LayerBody
		ok   bool
	)
	h.session.View(func(m *mapcore.MapCore) {
		var c *library.LayerConfig
		if c, ok = m.Library.FindLayer(input.ID); ok {
			body = layerBody(c)
		}
	})
	if !ok {
		return nil, huma.Error404NotFound("layer not found")
	}
	return &LayerOutput{Body: body}, nil
}

func (h *APIHandler) AddLayer(ctx context.Context, input *IDInput) (*LayerOutput, error) {
	out, err := h.updateLayer(ctx, input.ID, (*library.LayerConfig).Add)
	if err != nil {
		return nil, err
	}
	if !out.Body.Added {
		return nil, huma.Error422UnprocessableEntity("layer could not be added to the map")
	}
	return out, nil
}

func (h *APIHandler) RemoveLayer(ctx context.Context, input *IDInput) (*LayerOutput, error) {
	return h.updateLayer(ctx, input.ID, (*library.LayerConfig).Remove)
}

func (h *APIHandler) updateLayer(ctx context.Context, id string, fn func(*library.LayerConfig)) (*LayerOutput, error) {
	var body LayerBody
	err := h.session.Update(func(m *mapcore.MapCore) error {
		c, ok := m.Library.FindLayer(id)
		if !ok {
			return library.ErrNotFound
		}
		fn(c)
		body = layerBody(c)
		return nil
	})
	if err != nil {
		return nil, huma.Error404NotFound("layer not found")
	}
	_ = h.session.Persist(ctx)
	return &LayerOutput{Body: body}, nil
}

func (h *APIHandler) GetTags(ctx context.Context, input *struct{}) (*struct{ Body []string }, error) {
	var tags []string
	h.session.View(func(m *mapcore.MapCore) {
		tags = append([]string{}, m.Library.Tags.Items()...)
	})
	slices.Sort(tags)
	return &struct{ Body []string }{Body: tags}, nil
}

func (h *APIHandler) GetPending(ctx context.Context, input *struct{}) (*GroupsOutput, error) {
	out := &GroupsOutput{Body: []GroupBody{}}
	h.session.View(func(m *mapcore.MapCore) {
		for _, g := range m.Library.Pending() {
			out.Body = append(out.Body, GroupTree(g))
		}
	})
	return out, nil
}

func (h *APIHandler) GetMapLayers(ctx context.Context, input *struct{}) (*MapLayersOutput, error) {
	out := &MapLayersOutput{Body: []MapLayerBody{}}
	h.session.View(func(m *mapcore.MapCore) {
		for _, l := range m.Layers.Items() {
			out.Body = append(out.Body, mapLayerBody(l))
		}
	})
	return out, nil
}

// PatchMapLayerBody changes the display state of a live layer. Omitted
// fields are left as they are.
type PatchMapLayerBody struct {
	Visible *bool    `json:"visible,omitempty" doc:"Show or hide the layer"`
	Opacity *float64 `json:"opacity,omitempty" doc:"Opacity in percent, clamped to 0..100"`
}

func (h *APIHandler) PatchMapLayer(ctx context.Context, input *struct {
	IDInput
	Body PatchMapLayerBody
}) (*MapLayerOutput, error) {
	var body MapLayerBody
	err := h.session.Update(func(m *mapcore.MapCore) error {
		if input.Body.Visible != nil {
			if err := m.SetVisible(input.ID, *input.Body.Visible); err != nil {
				return err
			}
		}
		if input.Body.Opacity != nil {
			if err := m.SetOpacity(input.ID, *input.Body.Opacity); err != nil {
				return err
			}
		}
		l, ok := m.LayerByID(input.ID)
		if !ok {
			return mapcore.ErrLayerNotFound
		}
		body = mapLayerBody(l)
		return nil
	})
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	return &MapLayerOutput{Body: body}, nil
}

func (h *APIHandler) Home(ctx context.Context, input *struct{}) (*struct{ Body library.CameraLocation }, error) {
	var camera library.CameraLocation
	err := h.session.Update(func(m *mapcore.MapCore) error { return m.Home() })
	if errors.Is(err, mapcore.ErrNoHomePosition) {
		return nil, huma.Error409Conflict(err.Error())
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("fly home", err)
	}
	h.session.Backend(func(b *headless.Backend) {
		if b.Camera != nil {
			camera = *b.Camera
		}
	})
	return &struct{ Body library.CameraLocation }{Body: camera}, nil
}

func (h *APIHandler) ValidateCustomLayer(ctx context.Context, input *struct {
	Probe bool `query:"probe" doc:"Also check that the layer URL answers"`
	Body  service.CustomLayerInput
}) (*struct{ Body service.Validation }, error) {
	v, tr := h.session.ValidateCustomLayer(ctx, input.Body, input.Probe)
	tr.Destroy()
	return &struct{ Body service.Validation }{Body: v}, nil
}

// CustomLayerBody is the result of adding a user layer.
type CustomLayerBody struct {
	Layer      LayerBody          `json:"layer" doc:"The added layer"`
	Validation service.Validation `json:"validation" doc:"Validation outcome"`
}

func (h *APIHandler) AddCustomLayer(ctx context.Context, input *struct {
	Body service.CustomLayerInput
}) (*struct{ Body CustomLayerBody }, error) {
	config, v, err := h.session.AddCustomLayer(ctx, input.Body)
	switch {
	case errors.Is(err, service.ErrInvalidCustomLayer):
		return nil, huma.Error400BadRequest("invalid custom layer", err)
	case err != nil:
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}

	var body LayerBody
	h.session.View(func(*mapcore.MapCore) { body = layerBody(config) })
	return &struct{ Body CustomLayerBody }{Body: CustomLayerBody{Layer: body, Validation: v}}, nil
}

// GroupTree converts g and its descendants into a response body.
func GroupTree(g *library.LayerConfigGroup) GroupBody {
	body := GroupBody{
		ID:       g.ID,
		Title:    g.Title,
		ParentID: g.ParentID,
		Total:    g.TotalLayerCount.Get(),
		Enabled:  g.EnabledLayerCount.Get(),
		Layers:   []string{},
	}
	for _, c := range g.LayerConfigs.Items() {
		body.Layers = append(body.Layers, c.ID)
	}
	for _, child := range g.ChildGroups.Items() {
		body.Children = append(body.Children, GroupTree(child))
	}
	return body
}

func layerBody(c *library.LayerConfig) LayerBody {
	return LayerBody{Descriptor: c.Descriptor, Added: c.Added.Get()}
}

func mapLayerBody(l *mapcore.Layer) MapLayerBody {
	return MapLayerBody{
		ID:           l.ID(),
		Title:        l.Title(),
		Type:         l.Config.Type,
		IsBackground: l.IsBackground(),
		Visible:      l.Visible.Get(),
		Opacity:      l.Opacity.Get(),
	}
}
