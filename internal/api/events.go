package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/leia-project/viewer-sub001/internal/event"
	"github.com/leia-project/viewer-sub001/internal/library"
	"github.com/leia-project/viewer-sub001/internal/mapcore"
	"github.com/leia-project/viewer-sub001/internal/service"
)

// EventHandler streams library, map and notification changes to Datastar
// clients over SSE.
type EventHandler struct {
	session *service.Session
}

// NewEventHandler creates a new event handler.
func NewEventHandler(session *service.Session) *EventHandler {
	return &EventHandler{session: session}
}

func (h *EventHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/events", h.Events,
		huma.OperationTags("events"),
		func(o *huma.Operation) {
			o.Responses = map[string]*huma.Response{
				"200": {
					Description: "Datastar event stream",
					Content:     map[string]*huma.MediaType{"text/event-stream": {}},
				},
			}
		},
	)
}

// CountSignals is the signal payload patched after every change.
type CountSignals struct {
	Groups      map[string]GroupCount `json:"groups"`
	LayersOnMap int                   `json:"layersOnMap"`
	Visible     int                   `json:"visible"`
}

// GroupCount holds the derived counts of one group.
type GroupCount struct {
	Total   int `json:"total"`
	Enabled int `json:"enabled"`
}

func (h *EventHandler) Events(ctx context.Context, input *struct{}) (*huma.StreamResponse, error) {
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			r, w := humago.Unwrap(humaCtx)
			h.stream(ctx, w, r)
		},
	}, nil
}

func (h *EventHandler) stream(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)
	bus := h.session.Bus()
	sub := bus.Subscribe()
	defer sub.Close()

	if err := sse.MarshalAndPatchSignals(h.counts()); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.Context().Done():
			return
		case m, ok := <-sub.C():
			if !ok {
				return
			}
			if err := sse.DispatchCustomEvent(m.Name, eventDetail(m)); err != nil {
				return
			}
			if m.Topic == service.TopicLibrary || m.Topic == service.TopicMap {
				if err := sse.MarshalAndPatchSignals(h.counts()); err != nil {
					return
				}
			}
		}
	}
}

func (h *EventHandler) counts() CountSignals {
	c := CountSignals{Groups: map[string]GroupCount{}}
	h.session.View(func(m *mapcore.MapCore) {
		m.Library.Walk(func(g *library.LayerConfigGroup, _ int) bool {
			c.Groups[g.ID] = GroupCount{Total: g.TotalLayerCount.Get(), Enabled: g.EnabledLayerCount.Get()}
			return true
		})
		c.LayersOnMap = m.Layers.Len()
		for _, l := range m.Layers.Items() {
			if l.Visible.Get() {
				c.Visible++
			}
		}
	})
	return c
}

func eventDetail(m event.Change) map[string]any {
	detail := map[string]any{"topic": m.Topic}
	if m.ID != "" {
		detail["id"] = m.ID
	}
	if m.Data != nil {
		detail["data"] = m.Data
	}
	return detail
}
