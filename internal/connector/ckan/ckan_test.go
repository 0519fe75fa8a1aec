package ckan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leia-project/viewer-sub001/internal/connector"
	"github.com/leia-project/viewer-sub001/internal/retry"
)

type fakeCKAN struct {
	groupCalls   atomic.Int32
	packageCalls atomic.Int32
	failGroups   atomic.Int32
	queries      sync.Map
}

func (f *fakeCKAN) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/" + endpointGroups:
		f.groupCalls.Add(1)
		if f.failGroups.Load() > 0 {
			f.failGroups.Add(-1)
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"result": []map[string]any{
				{"name": "basis", "title": "Basis", "groups": []any{}},
				{"name": "water", "title": "Water", "groups": []any{}},
				{"name": "kaarten", "title": "Kaarten", "groups": []map[string]any{{"name": "basis"}}},
				{"name": "luchtfoto", "title": "Luchtfoto", "groups": []map[string]any{{"name": "kaarten"}}},
			},
		})
	case "/" + endpointPackages:
		f.packageCalls.Add(1)
		q := r.URL.Query().Get("q")
		f.queries.Store(q, true)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"result":  map[string]any{"results": packagesFor(q)},
		})
	default:
		http.NotFound(w, r)
	}
}

func packagesFor(q string) []map[string]any {
	switch q {
	case "organization:kadaster":
		return []map[string]any{
			{
				"id": "p1", "name": "brt", "notes": "Basisregistratie", "license_title": "CC-BY",
				"groups": []map[string]any{{"name": "kaarten"}},
				"extras": []map[string]any{{"key": previewImageKey, "value": "http://img/brt.png"}},
				"tags":   []map[string]any{{"name": "basis"}, {"name": "topo"}},
				"resources": []map[string]any{
					{"id": "r1", "name": "brt-achtergrond", "format": "WMTS", "url": "http://tiles/brt", "settings": `{"layer":"standaard"}`},
					{"id": "r2", "name": "brt-grijs", "format": "WMTS", "description": "Grijs", "settings": "not json",
						"cameraPosition": `{"x":5.1,"y":52.1,"z":1000}`},
				},
			},
			{"id": "p2", "name": "excluded", "resources": []map[string]any{{"id": "rx", "name": "x", "format": "wms"}}},
		}
	case "groups:kaarten":
		return []map[string]any{
			{"id": "p1", "name": "brt", "groups": []map[string]any{{"name": "kaarten"}},
				"resources": []map[string]any{{"id": "r1", "name": "brt-achtergrond", "format": "WMTS"}}},
			{"id": "p3", "name": "bgt", "groups": []map[string]any{{"name": "kaarten"}},
				"resources": []map[string]any{{"id": "r3", "name": "bgt", "format": "WMS", "imageUrl": "http://img/bgt.png"}}},
		}
	case "groups:luchtfoto":
		return []map[string]any{
			{"id": "p4", "name": "lufo", "groups": []map[string]any{{"name": "luchtfoto"}},
				"resources": []map[string]any{{"id": "r4", "name": "lufo-2021", "format": "wmts"}}},
		}
	case "name:bgt":
		return []map[string]any{
			{"id": "p3", "name": "bgt", "resources": []map[string]any{{"id": "r3", "name": "bgt", "format": "WMS"}}},
		}
	}
	return nil
}

func newClient() *connector.Client {
	return connector.NewClient(retry.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond}, nil)
}

func testSettings(url string) Settings {
	return Settings{
		URL:             url,
		Organizations:   []string{"kadaster"},
		Groups:          []string{"kaarten"},
		Packages:        []string{"bgt"},
		ExcludePackages: []string{"excluded"},
		SpecialResources: SpecialResources{
			BackgroundLayers: []string{"brt-achtergrond"},
			LayersAddedOn:    []string{"r1"},
			LayersAddedOff:   []string{"lufo-2021"},
		},
	}
}

func TestGetDataBuildsGroupTree(t *testing.T) {
	srv := httptest.NewServer(&fakeCKAN{})
	defer srv.Close()

	data, err := New(testSettings(srv.URL), newClient()).GetData(context.Background())
	require.NoError(t, err)

	require.Len(t, data.Groups, 2)
	assert.Equal(t, "basis", data.Groups[0].ID)
	assert.Equal(t, "water", data.Groups[1].ID)

	kaarten := data.Groups[0].ChildGroups.Items()
	require.Len(t, kaarten, 1)
	assert.Equal(t, "kaarten", kaarten[0].ID)
	assert.Equal(t, "basis", kaarten[0].ParentID)

	luchtfoto := kaarten[0].ChildGroups.Items()
	require.Len(t, luchtfoto, 1)
	assert.Equal(t, "luchtfoto", luchtfoto[0].ID)
}

func TestGetDataConvertsResources(t *testing.T) {
	srv := httptest.NewServer(&fakeCKAN{})
	defer srv.Close()

	data, err := New(testSettings(srv.URL), newClient()).GetData(context.Background())
	require.NoError(t, err)

	ids := make([]string, 0, len(data.LayerConfigs))
	for _, c := range data.LayerConfigs {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"r1", "r2", "r3", "r4"}, ids)

	r1 := data.LayerConfigs[0]
	assert.Equal(t, "wmts", r1.Type)
	assert.Equal(t, "kaarten", r1.GroupID)
	assert.Equal(t, "CC-BY", r1.Attribution)
	assert.Equal(t, "http://img/brt.png", r1.ImageURL)
	assert.Equal(t, "http://tiles/brt", r1.Setting("url"))
	assert.Equal(t, "standaard", r1.Setting("layer"))
	assert.True(t, r1.IsBackground)
	assert.True(t, r1.DefaultAddToManager)
	assert.True(t, r1.DefaultOn)
	assert.Equal(t, []string{"basis", "topo"}, r1.Tags)

	r2 := data.LayerConfigs[1]
	assert.Equal(t, "Grijs\nBasisregistratie", r2.Description)
	assert.Empty(t, r2.Settings)
	require.NotNil(t, r2.CameraPosition)
	assert.InDelta(t, 5.1, r2.CameraPosition.X, 1e-9)
	assert.False(t, r2.IsBackground)
	assert.False(t, r2.DefaultAddToManager)

	r4 := data.LayerConfigs[3]
	assert.True(t, r4.DefaultAddToManager)
	assert.False(t, r4.DefaultOn)
}

func TestGetDataIsSingleFlight(t *testing.T) {
	fake := &fakeCKAN{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := New(testSettings(srv.URL), newClient())

	var wg sync.WaitGroup
	results := make([]*connector.Data, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := c.GetData(context.Background())
			assert.NoError(t, err)
			results[i] = d
		}()
	}
	wg.Wait()

	for _, d := range results {
		assert.Same(t, results[0], d)
	}
	assert.EqualValues(t, 1, fake.groupCalls.Load())

	calls := fake.packageCalls.Load()
	_, err := c.GetData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, calls, fake.packageCalls.Load())
}

func TestGetDataRetriesUnsuccessful(t *testing.T) {
	fake := &fakeCKAN{}
	fake.failGroups.Store(2)
	srv := httptest.NewServer(fake)
	defer srv.Close()

	_, err := New(Settings{URL: srv.URL}, newClient()).GetData(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, fake.groupCalls.Load())
}

func TestGetDataGivesUp(t *testing.T) {
	fake := &fakeCKAN{}
	fake.failGroups.Store(10)
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := New(Settings{URL: srv.URL}, newClient())
	_, err := c.GetData(context.Background())
	require.ErrorIs(t, err, connector.ErrUnsuccessful)
	assert.EqualValues(t, 3, fake.groupCalls.Load())

	// Failures are not cached.
	fake.failGroups.Store(0)
	_, err = c.GetData(context.Background())
	require.NoError(t, err)
}

func TestGetDataNotFoundIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := New(Settings{URL: srv.URL}, newClient()).GetData(context.Background())
	var status *connector.StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusNotFound, status.Code)
}

func TestUnknownRequestedGroupIsSkipped(t *testing.T) {
	fake := &fakeCKAN{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	data, err := New(Settings{URL: srv.URL, Groups: []string{"missing"}}, newClient()).GetData(context.Background())
	require.NoError(t, err)
	assert.Empty(t, data.LayerConfigs)
	assert.EqualValues(t, 0, fake.packageCalls.Load())
}
