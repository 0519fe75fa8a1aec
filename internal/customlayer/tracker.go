// Package customlayer validates user-defined layers before they are added to
// the library.
package customlayer

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leia-project/viewer-sub001/internal/event"
	"github.com/leia-project/viewer-sub001/internal/library"
	"github.com/leia-project/viewer-sub001/internal/reactive"
)

// Events dispatched by a Tracker.
const (
	EventUpdated  = "updated"
	EventURLError = "urlError"
)

// GroupID is the group custom layers are filed under.
const GroupID = "myData"

// CheckTimeout bounds the URL existence check.
const CheckTimeout = time.Second

// Types lists the layer types a user may add.
var Types = []string{"3dtiles", "wms", "wmts", "geojson", "modelanimation", "arcgis"}

// Tracker tracks the inputs of a custom layer and keeps its validity flags
// current. Invalid input never produces an error: read ValidType, ValidURL
// and IsValid instead.
type Tracker struct {
	event.Dispatcher

	Config *library.LayerConfig

	TitleInput    *reactive.Cell[string]
	TypeInput     *reactive.Cell[string]
	SettingsInput *reactive.Cell[map[string]any]
	Added         *reactive.Cell[bool]

	ValidType *reactive.Cell[bool]
	ValidURL  *reactive.Cell[bool]
	IsValid   *reactive.Cell[bool]

	client        *http.Client
	logger        *slog.Logger
	unsubscribers []reactive.Unsubscriber
	ready         bool
}

// NewTracker tracks config, or a new empty layer when config is nil.
func NewTracker(config *library.LayerConfig, client *http.Client, logger *slog.Logger) *Tracker {
	if config == nil {
		config = library.NewLayerConfig(library.Descriptor{
			ID:       uuid.NewString(),
			GroupID:  GroupID,
			Title:    "New layer",
			Settings: map[string]any{},
		})
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}

	t := &Tracker{
		Config:        config,
		TitleInput:    reactive.New(config.Title),
		TypeInput:     reactive.New(config.Type),
		SettingsInput: reactive.NewWithEqual[map[string]any](config.Settings, nil),
		Added:         reactive.New(config.Added.Get()),
		ValidType:     reactive.New(false),
		ValidURL:      reactive.New(false),
		IsValid:       reactive.New(false),
		client:        client,
		logger:        logger,
	}

	t.unsubscribers = append(t.unsubscribers,
		t.TitleInput.Subscribe(func(v string) {
			t.Config.Title = v
			t.onInputChange()
		}),
		t.TypeInput.Subscribe(func(v string) {
			t.Config.Type = strings.ToLower(v)
			t.onInputChange()
		}),
		t.SettingsInput.Subscribe(func(v map[string]any) {
			if v == nil {
				v = map[string]any{}
			}
			t.Config.Settings = v
			t.onInputChange()
		}),
		t.Added.Subscribe(func(added bool) {
			if !added {
				t.Config.Remove()
			}
			t.Dispatch(EventUpdated, t)
		}),
	)
	t.ready = true
	return t
}

// Enable checks that the layer URL answers and, if so, activates the layer.
// On failure it dispatches EventURLError and leaves the layer inactive.
func (t *Tracker) Enable(ctx context.Context) bool {
	if !t.IsValid.Get() || !t.CheckURLExists(ctx) {
		t.Dispatch(EventURLError, t.Config.Setting("url"))
		t.Added.Set(false)
		return false
	}
	t.Added.Set(true)
	t.Config.Add()
	return true
}

// Disable deactivates the layer.
func (t *Tracker) Disable() {
	t.Added.Set(false)
}

// Destroy stops tracking the inputs.
func (t *Tracker) Destroy() {
	for _, unsub := range t.unsubscribers {
		unsub()
	}
	t.unsubscribers = nil
}

func (t *Tracker) onInputChange() {
	t.validate()
	t.Dispatch(EventUpdated, t)
	if t.ready {
		t.Added.Set(false)
	}
}

func (t *Tracker) validate() {
	typ := strings.ToLower(t.TypeInput.Get())
	settings := t.SettingsInput.Get()

	t.ValidType.Set(ValidType(typ))
	t.ValidURL.Set(ValidURL(typ, settings))
	t.IsValid.Set(t.ValidType.Get() && t.ValidURL.Get() && ValidSettings(typ, settings))
	if !t.IsValid.Get() {
		t.Added.Set(false)
	}
}

// ValidType reports whether typ may be added by a user.
func ValidType(typ string) bool {
	return slices.Contains(Types, strings.ToLower(typ))
}

// ValidSettings checks the settings each type needs besides its URL.
func ValidSettings(typ string, settings map[string]any) bool {
	has := func(key string) bool {
		s, _ := settings[key].(string)
		return s != ""
	}
	switch strings.ToLower(typ) {
	case "wms", "wmts":
		return has("featureName")
	case "modelanimation":
		return has("modelUrl") && has("timeKey")
	}
	return true
}

// ValidURL checks settings.url: http or https, and a .geojson file for
// geojson and modelanimation layers.
func ValidURL(typ string, settings map[string]any) bool {
	raw, _ := settings["url"].(string)
	if raw == "" || typ == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	switch strings.ToLower(typ) {
	case "geojson", "modelanimation":
		return strings.HasSuffix(u.String(), ".geojson")
	}
	return true
}

// CheckURLExists reports whether the layer URL answers 200 within
// CheckTimeout. WMS and WMTS URLs are probed with a GetCapabilities request.
func (t *Tracker) CheckURLExists(ctx context.Context) bool {
	raw := t.Config.Setting("url")
	if raw == "" || !t.ValidURL.Get() {
		return false
	}

	switch t.Config.Type {
	case "wms", "wmts":
		sep := "?"
		if strings.Contains(raw, "?") {
			sep = "&"
		}
		raw += sep + "service=" + t.Config.Type + "&request=getcapabilities"
	}

	ctx, cancel := context.WithTimeout(ctx, CheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return false
	}
	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Debug("custom layer url check failed", "url", raw, "error", err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
