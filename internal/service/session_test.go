package service_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leia-project/viewer-sub001/internal/backend/headless"
	"github.com/leia-project/viewer-sub001/internal/connector"
	"github.com/leia-project/viewer-sub001/internal/customlayer"
	"github.com/leia-project/viewer-sub001/internal/event"
	"github.com/leia-project/viewer-sub001/internal/library"
	"github.com/leia-project/viewer-sub001/internal/mapcore"
	"github.com/leia-project/viewer-sub001/internal/service"
)

type staticConnector struct {
	data *connector.Data
}

func (c staticConnector) Name() string { return "static" }

func (c staticConnector) GetData(context.Context) (*connector.Data, error) {
	return c.data, nil
}

func drain(sub *event.Subscription) []event.Change {
	var out []event.Change
	for {
		select {
		case m := <-sub.C():
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestLoadCatalogs(t *testing.T) {
	data := &connector.Data{
		Groups: []*library.LayerConfigGroup{library.NewLayerConfigGroup("topo", "Topography", "")},
		LayerConfigs: []*library.LayerConfig{
			library.NewLayerConfig(library.Descriptor{ID: "a", Type: "wmts", Title: "A", GroupID: "topo",
				DefaultAddToManager: true, Settings: map[string]any{"url": "http://tiles/a"}}),
			library.NewLayerConfig(library.Descriptor{ID: "b", Type: "wmts", Title: "B", GroupID: "topo",
				Settings: map[string]any{"url": "http://tiles/b"}}),
		},
	}

	bus := event.NewBus()
	sub := bus.Subscribe(service.TopicLibrary, service.TopicMap)
	defer sub.Close()

	s := service.NewSession(service.Options{Bus: bus, Connectors: []connector.Connector{staticConnector{data}}})
	defer s.Close()

	require.NoError(t, s.LoadCatalogs(context.Background()))

	s.View(func(m *mapcore.MapCore) {
		g, ok := m.Library.FindGroup("topo")
		require.True(t, ok)
		assert.Equal(t, 2, g.TotalLayerCount.Get())
		assert.Equal(t, 1, g.EnabledLayerCount.Get())
		_, live := m.LayerByID("a")
		assert.True(t, live)
	})

	var names []string
	for _, m := range drain(sub) {
		names = append(names, m.Topic+"/"+m.Name+"/"+m.ID)
	}
	assert.Contains(t, names, "library/layerAdded/a")
	assert.Contains(t, names, "map/layerCreated/a")
}

func TestLoadCatalogsWithoutConnectors(t *testing.T) {
	s := service.NewSession(service.Options{})
	defer s.Close()
	assert.NoError(t, s.LoadCatalogs(context.Background()))
}

func TestLoadDocumentOnce(t *testing.T) {
	doc := `
name: demo
groups:
  - id: g
    title: G
layers:
  - id: a
    type: wmts
    title: A
    groupId: g
    defaultAddToManager: true
    defaultOn: true
    settings:
      url: http://tiles/a
`
	path := filepath.Join(t.TempDir(), "viewer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	s := service.NewSession(service.Options{})
	defer s.Close()

	require.NoError(t, s.LoadDocument(context.Background(), path))
	require.NoError(t, s.LoadDocument(context.Background(), path))

	s.View(func(m *mapcore.MapCore) {
		assert.True(t, m.ConfigLoaded.Get())
		assert.Equal(t, "demo", m.Name)
		assert.Equal(t, 1, m.Layers.Len())
	})
	s.Backend(func(b *headless.Backend) {
		assert.Equal(t, []string{"a"}, b.Visible())
	})
}

func TestAddCustomLayer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.geojson" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
	}))
	defer srv.Close()

	s := service.NewSession(service.Options{HTTPClient: srv.Client()})
	defer s.Close()
	ctx := context.Background()

	t.Run("valid", func(t *testing.T) {
		config, v, err := s.AddCustomLayer(ctx, service.CustomLayerInput{
			Title:    "Buildings",
			Type:     "GeoJSON",
			Settings: map[string]any{"url": srv.URL + "/buildings.geojson"},
		})
		require.NoError(t, err)
		assert.True(t, v.IsValid)
		assert.True(t, v.Reachable)

		s.View(func(m *mapcore.MapCore) {
			g, ok := m.Library.FindGroup(customlayer.GroupID)
			require.True(t, ok)
			assert.Equal(t, 1, g.EnabledLayerCount.Get())
			layer, ok := m.LayerByID(config.ID)
			require.True(t, ok)
			assert.Equal(t, "Buildings", layer.Title())
		})
	})

	t.Run("unknown type", func(t *testing.T) {
		_, v, err := s.AddCustomLayer(ctx, service.CustomLayerInput{
			Title:    "Shape",
			Type:     "shapefile",
			Settings: map[string]any{"url": srv.URL + "/x.shp"},
		})
		require.ErrorIs(t, err, service.ErrInvalidCustomLayer)
		assert.False(t, v.ValidType)
	})

	t.Run("unreachable", func(t *testing.T) {
		_, v, err := s.AddCustomLayer(ctx, service.CustomLayerInput{
			Title:    "Gone",
			Type:     "geojson",
			Settings: map[string]any{"url": srv.URL + "/missing.geojson"},
		})
		require.ErrorIs(t, err, service.ErrInvalidCustomLayer)
		assert.True(t, v.IsValid)
		assert.False(t, v.Reachable)
	})

	t.Run("rejected by backend", func(t *testing.T) {
		sub := s.Bus().Subscribe(service.TopicMap)
		defer sub.Close()

		config, v, err := s.AddCustomLayer(ctx, service.CustomLayerInput{
			Title:    "Broken",
			Type:     "geojson",
			Settings: map[string]any{"url": srv.URL + "/broken.geojson", "data": "not geojson"},
		})
		require.Error(t, err)
		assert.NotErrorIs(t, err, service.ErrInvalidCustomLayer)
		assert.NotErrorIs(t, err, mapcore.ErrUnsupportedLayerType)
		assert.Contains(t, err.Error(), "parse inline data")
		var layerErr *mapcore.LayerError
		assert.ErrorAs(t, err, &layerErr)
		assert.Nil(t, config)
		assert.True(t, v.IsValid)

		s.View(func(m *mapcore.MapCore) {
			for _, c := range m.Library.LayerConfigs() {
				assert.NotEqual(t, "Broken", c.Title)
			}
		})

		var failed []string
		for _, c := range drain(sub) {
			if c.Name == mapcore.EventLayerFailed {
				failed = append(failed, c.Data.(string))
			}
		}
		require.Len(t, failed, 1)
		assert.Contains(t, failed[0], "parse inline data")
	})

	s.View(func(m *mapcore.MapCore) {
		g, _ := m.Library.FindGroup(customlayer.GroupID)
		assert.Equal(t, 1, g.TotalLayerCount.Get())
	})
}

func TestValidateCustomLayerWithoutProbe(t *testing.T) {
	s := service.NewSession(service.Options{})
	defer s.Close()

	v, tr := s.ValidateCustomLayer(context.Background(), service.CustomLayerInput{
		Title:    "Tiles",
		Type:     "wms",
		Settings: map[string]any{"url": "https://example.invalid/wms", "featureName": "roads"},
	}, false)
	defer tr.Destroy()

	assert.True(t, v.ValidType)
	assert.True(t, v.ValidURL)
	assert.True(t, v.IsValid)
	assert.False(t, v.Reachable)
}
