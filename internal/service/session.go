// Package service wires the layer library, map orchestration, catalog
// connectors and notifications into one session shared by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/leia-project/viewer-sub001/internal/backend/headless"
	"github.com/leia-project/viewer-sub001/internal/connector"
	"github.com/leia-project/viewer-sub001/internal/customlayer"
	"github.com/leia-project/viewer-sub001/internal/event"
	"github.com/leia-project/viewer-sub001/internal/library"
	"github.com/leia-project/viewer-sub001/internal/mapcore"
	"github.com/leia-project/viewer-sub001/internal/notify"
	"github.com/leia-project/viewer-sub001/internal/store"
)

// Bus topics.
const (
	TopicLibrary = "library"
	TopicMap     = "map"
)

const customGroupTitle = "My data"

// Options configures a Session.
type Options struct {
	Logger     *slog.Logger
	Bus        *event.Bus
	Store      *store.Store
	Connectors []connector.Connector
	HTTPClient *http.Client
}

// Session owns one map. The library and map core run on a single logical
// event loop; every access goes through View or Update, which serialise on
// the session mutex. Network I/O happens outside the lock.
type Session struct {
	mu sync.Mutex

	core          *mapcore.MapCore
	backend       *headless.Backend
	notifications *notify.Notifications
	bus           *event.Bus
	store         *store.Store
	connectors    []connector.Connector
	client        *http.Client
	logger        *slog.Logger
}

// NewSession creates a session with a headless backend.
func NewSession(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Bus == nil {
		opts.Bus = event.NewBus()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	notifications := notify.NewNotifications(opts.Bus, notify.WithLogger(opts.Logger))
	backend := headless.New(opts.Logger)
	core := mapcore.New(backend, mapcore.Options{
		Logger:        opts.Logger,
		Notifications: notifications,
		HTTPClient:    opts.HTTPClient,
	})

	s := &Session{
		core:          core,
		backend:       backend,
		notifications: notifications,
		bus:           opts.Bus,
		store:         opts.Store,
		connectors:    opts.Connectors,
		client:        opts.HTTPClient,
		logger:        opts.Logger,
	}
	s.forward()
	return s
}

// forward republishes library and map events on the bus.
func (s *Session) forward() {
	configEvent := func(name string) event.Handler {
		return func(data any) {
			c := data.(*library.LayerConfig)
			s.bus.Publish(event.Change{Topic: TopicLibrary, Name: name, ID: c.ID, Data: c.Descriptor})
		}
	}
	s.core.Library.On(library.EventLayerAdded, configEvent(library.EventLayerAdded))
	s.core.Library.On(library.EventLayerRemoved, configEvent(library.EventLayerRemoved))

	layerEvent := func(name string) event.Handler {
		return func(data any) {
			l := data.(*mapcore.Layer)
			s.bus.Publish(event.Change{Topic: TopicMap, Name: name, ID: l.ID()})
		}
	}
	s.core.On(mapcore.EventLayerCreated, layerEvent(mapcore.EventLayerCreated))
	s.core.On(mapcore.EventLayerDestroyed, layerEvent(mapcore.EventLayerDestroyed))
	s.core.On(mapcore.EventLayerFailed, func(data any) {
		le := data.(*mapcore.LayerError)
		s.bus.Publish(event.Change{Topic: TopicMap, Name: mapcore.EventLayerFailed, ID: le.Config.ID, Data: le.Error()})
	})
}

// Bus returns the session's event bus.
func (s *Session) Bus() *event.Bus { return s.bus }

// Notifications returns the session's notification dispatcher.
func (s *Session) Notifications() *notify.Notifications { return s.notifications }

// Store returns the snapshot store, which may be nil.
func (s *Session) Store() *store.Store { return s.store }

// View runs fn with the map core under the session lock. fn must not
// mutate state.
func (s *Session) View(fn func(m *mapcore.MapCore)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.core)
}

// Update runs fn with the map core under the session lock.
func (s *Session) Update(fn func(m *mapcore.MapCore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.core)
}

// Backend exposes the headless backend under the session lock.
func (s *Session) Backend(fn func(b *headless.Backend)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.backend)
}

// LoadCatalogs fetches every connector concurrently and ingests the results.
func (s *Session) LoadCatalogs(ctx context.Context) error {
	if len(s.connectors) == 0 {
		return nil
	}

	results, err := connector.FetchAll(ctx, s.connectors...)
	if err != nil {
		note := notify.New(notify.Error, "Error", "Unable to load catalog")
		note.Err = err
		note.LogToConsole = true
		s.notifications.Send(note)
		return fmt.Errorf("load catalogs: %w", err)
	}

	_ = s.Update(func(m *mapcore.MapCore) error {
		connector.Ingest(m.Library, results...)
		return nil
	})
	return s.Persist(ctx)
}

// LoadDocument fetches a viewer document and applies it.
func (s *Session) LoadDocument(ctx context.Context, location string) error {
	doc, err := s.core.FetchDocument(ctx, location)
	if err != nil {
		return err
	}
	if err := s.Update(func(m *mapcore.MapCore) error { return m.LoadDocument(doc) }); err != nil {
		return err
	}
	return s.Persist(ctx)
}

// SetReady marks the map ready.
func (s *Session) SetReady() {
	_ = s.Update(func(m *mapcore.MapCore) error {
		m.SetReady()
		return nil
	})
}

// Persist writes a library snapshot to the store, if one is configured.
func (s *Session) Persist(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	var snap store.Snapshot
	s.View(func(m *mapcore.MapCore) { snap = store.Capture(m.Library) })
	if err := s.store.Sync(ctx, snap); err != nil {
		s.logger.WarnContext(ctx, "library snapshot failed", "error", err)
		return err
	}
	return nil
}

// CustomLayerInput describes a user-defined layer.
type CustomLayerInput struct {
	Title    string         `json:"title" minLength:"1" doc:"Layer title"`
	Type     string         `json:"type" doc:"Layer type" example:"wms"`
	Settings map[string]any `json:"settings" doc:"Layer settings, url is required"`
}

// Validation is the outcome of checking a custom layer.
type Validation struct {
	ValidType bool `json:"validType"`
	ValidURL  bool `json:"validUrl"`
	IsValid   bool `json:"isValid"`
	Reachable bool `json:"reachable"`
}

// ErrInvalidCustomLayer is returned when a custom layer fails validation or
// its URL does not answer.
var ErrInvalidCustomLayer = errors.New("invalid custom layer")

// ValidateCustomLayer checks a custom layer and, when probe is set, whether
// its URL answers.
func (s *Session) ValidateCustomLayer(ctx context.Context, in CustomLayerInput, probe bool) (Validation, *customlayer.Tracker) {
	tr := customlayer.NewTracker(nil, s.client, s.logger)
	tr.TitleInput.Set(in.Title)
	tr.TypeInput.Set(in.Type)
	tr.SettingsInput.Set(in.Settings)

	v := Validation{
		ValidType: tr.ValidType.Get(),
		ValidURL:  tr.ValidURL.Get(),
		IsValid:   tr.IsValid.Get(),
	}
	if probe && v.IsValid {
		v.Reachable = tr.CheckURLExists(ctx)
	}
	return v, tr
}

// AddCustomLayer validates a custom layer, files it under the custom group
// and activates it.
func (s *Session) AddCustomLayer(ctx context.Context, in CustomLayerInput) (*library.LayerConfig, Validation, error) {
	v, tr := s.ValidateCustomLayer(ctx, in, true)
	defer tr.Destroy()
	if !v.IsValid || !v.Reachable {
		return nil, v, ErrInvalidCustomLayer
	}

	config := tr.Config
	err := s.Update(func(m *mapcore.MapCore) error {
		if _, ok := m.Library.FindGroup(customlayer.GroupID); !ok {
			m.Library.AddLayerConfigGroup(library.NewLayerConfigGroup(customlayer.GroupID, customGroupTitle, ""))
		}

		var cause error
		h := m.On(mapcore.EventLayerFailed, func(data any) {
			if le, ok := data.(*mapcore.LayerError); ok && le.Config == config {
				cause = le
			}
		})
		defer m.Off(mapcore.EventLayerFailed, h)

		m.Library.AddLayerConfig(config)
		config.Add()
		if config.Added.Get() {
			return nil
		}

		m.Library.RemoveLayerConfig(config)
		if cause == nil {
			cause = mapcore.ErrUnsupportedLayerType
		}
		return fmt.Errorf("add custom layer %s: %w", config.Title, cause)
	})
	if err != nil {
		return nil, v, err
	}
	_ = s.Persist(ctx)
	return config, v, nil
}

// Close detaches the map core.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.core.Close()
}
