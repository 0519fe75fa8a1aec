// Package mapcore keeps the live set of rendered layers in step with the
// layer library.
//
// MapCore listens to the library's layerAdded and layerRemoved events, asks
// the rendering Backend to materialise or drop layers, keeps at most one
// background layer visible and rolls back activations the backend rejects.
// Like the library it runs on a single logical event loop: apart from
// FetchDocument, methods must not be called concurrently.
package mapcore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/leia-project/viewer-sub001/internal/event"
	"github.com/leia-project/viewer-sub001/internal/library"
	"github.com/leia-project/viewer-sub001/internal/notify"
	"github.com/leia-project/viewer-sub001/internal/reactive"
)

// Events dispatched by MapCore when the live layer set changes.
const (
	EventLayerCreated   = "layerCreated"
	EventLayerDestroyed = "layerDestroyed"
	// EventLayerFailed carries a *LayerError after the backend rejected a
	// layer and its activation was rolled back.
	EventLayerFailed = "layerFailed"
)

// DefaultHomeHeight is the camera height used when flying home to an extent.
const DefaultHomeHeight = 10000.0

// DocumentTimeout bounds a shared document fetch.
const DocumentTimeout = 30 * time.Second

var (
	ErrNoHomePosition       = errors.New("no home position found")
	ErrUnsupportedLayerType = errors.New("unsupported layer type")
	ErrLayerNotFound        = fmt.Errorf("layer %w", library.ErrNotFound)
)

// LayerError is a backend rejection of a layer config.
type LayerError struct {
	Config *library.LayerConfig
	Err    error
}

func (e *LayerError) Error() string { return e.Err.Error() }
func (e *LayerError) Unwrap() error { return e.Err }

// Backend renders layers. AddLayer returns an error if the layer cannot be
// materialised. When a background layer is handed over, MapCore shows the
// new layer before hiding the previous one; backends that cannot render two
// backgrounds at once must tolerate that single step.
type Backend interface {
	AddLayer(config *library.LayerConfig) (*Layer, error)
	RemoveLayer(layer *Layer)
	FlyTo(position library.CameraLocation)
}

// Options configures a MapCore.
type Options struct {
	Logger        *slog.Logger
	Notifications *notify.Notifications
	HTTPClient    *http.Client
	// Library to orchestrate. A new one is created when nil.
	Library *library.LayerLibrary
}

// MapCore orchestrates the library and the rendering backend.
type MapCore struct {
	event.Dispatcher

	Library      *library.LayerLibrary
	Layers       *reactive.List[*Layer]
	ConfigLoaded *reactive.Cell[bool]
	Ready        *reactive.Cell[bool]

	// AutoCheckBackground activates the first background layer when the
	// visible one is removed.
	AutoCheckBackground bool

	Name          string
	StartPosition *library.CameraLocation
	Viewer        *ViewerSettings
	Tools         map[string]any

	backend       Backend
	notifications *notify.Notifications
	logger        *slog.Logger
	client        *http.Client
	loads         singleflight.Group
	handles       []event.Handle
}

// New creates a MapCore driving backend.
func New(backend Backend, opts Options) *MapCore {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Notifications == nil {
		opts.Notifications = notify.NewNotifications(nil, notify.WithLogger(opts.Logger))
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Library == nil {
		opts.Library = library.New(opts.Logger)
	}

	m := &MapCore{
		Library:             opts.Library,
		Layers:              reactive.NewList[*Layer](),
		ConfigLoaded:        reactive.New(false),
		Ready:               reactive.New(false),
		AutoCheckBackground: true,
		backend:             backend,
		notifications:       opts.Notifications,
		logger:              opts.Logger,
		client:              opts.HTTPClient,
	}

	m.handles = []event.Handle{
		m.Library.On(library.EventLayerAdded, func(data any) {
			m.addLayerInternal(data.(*library.LayerConfig))
		}),
		m.Library.On(library.EventLayerRemoved, func(data any) {
			m.removeLayerInternal(data.(*library.LayerConfig))
		}),
	}
	return m
}

// Close detaches MapCore from the library.
func (m *MapCore) Close() {
	m.Library.Off(library.EventLayerAdded, m.handles[0])
	m.Library.Off(library.EventLayerRemoved, m.handles[1])
}

// SetLayerConfig registers groups, then configs, with the library.
func (m *MapCore) SetLayerConfig(configs []*library.LayerConfig, groups []*library.LayerConfigGroup) {
	m.Library.AddLayerConfigGroups(groups)
	m.Library.AddLayerConfigs(configs)
}

// FetchDocument loads a document from an http(s) URL or a file path.
// Concurrent calls for the same location share one fetch, which is bounded
// by DocumentTimeout and outlives the cancellation of the caller that
// started it. It is safe for concurrent use.
func (m *MapCore) FetchDocument(ctx context.Context, location string) (*Document, error) {
	ch := m.loads.DoChan(location, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DocumentTimeout)
		defer cancel()
		return readDocument(fetchCtx, m.client, location)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Document), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SetConfig fetches and applies a document. Only the first successfully
// applied document takes effect.
func (m *MapCore) SetConfig(ctx context.Context, location string) error {
	doc, err := m.FetchDocument(ctx, location)
	if err != nil {
		return err
	}
	return m.LoadDocument(doc)
}

// LoadDocument applies a document and sets ConfigLoaded. It is a no-op once
// a document has been applied.
func (m *MapCore) LoadDocument(doc *Document) error {
	if m.ConfigLoaded.Get() {
		m.logger.Debug("config already loaded, ignoring document", "name", doc.Name)
		return nil
	}
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("invalid document: %w", err)
	}

	m.SetLayerConfig(doc.layerConfigs(), doc.layerConfigGroups())

	m.Name = doc.Name
	m.Tools = doc.Tools
	m.Viewer = doc.Viewer
	if doc.Viewer != nil && doc.Viewer.StartPosition != nil {
		p := *doc.Viewer.StartPosition
		m.StartPosition = &p
	}

	m.ConfigLoaded.Set(true)
	m.logger.Info("config loaded", "name", doc.Name, "layers", len(doc.Layers), "groups", len(doc.Groups))
	return nil
}

// SetReady marks the map as fully loaded.
func (m *MapCore) SetReady() {
	m.Ready.Set(true)
}

func (m *MapCore) addLayerInternal(config *library.LayerConfig) {
	if config.IsBackground && config.DefaultOn && m.ActiveBackground() != nil {
		config.DefaultOn = false
	}

	layer, err := m.backend.AddLayer(config)
	if err != nil {
		note := notify.New(notify.Error, "Error",
			fmt.Sprintf("Unable to add layer %s, see log for more information", config.Title))
		note.ShowDate = true
		note.LogToConsole = true
		note.Err = err
		m.notifications.Send(note)

		config.Added.Set(false)
		m.Dispatch(EventLayerFailed, &LayerError{Config: config, Err: err})
		return
	}

	m.Layers.Append(layer)
	m.Dispatch(EventLayerCreated, layer)
}

func (m *MapCore) removeLayerInternal(config *library.LayerConfig) {
	index := m.LayerIndex(config.ID)
	if index == -1 {
		m.logger.Info("remove layer: layer not found in layers", "id", config.ID)
		return
	}

	layer := m.Layers.Items()[index]
	m.backend.RemoveLayer(layer)
	layer.detach()
	m.Layers.RemoveAt(index)
	m.Dispatch(EventLayerDestroyed, layer)

	if m.AutoCheckBackground {
		m.trySetBackgroundActive()
	}
}

// trySetBackgroundActive shows the first background layer if none is visible.
func (m *MapCore) trySetBackgroundActive() {
	if m.ActiveBackground() != nil {
		return
	}
	for _, l := range m.Layers.Items() {
		if l.IsBackground() {
			l.Visible.Set(true)
			return
		}
	}
}

// ActiveBackground returns the visible background layer, or nil.
func (m *MapCore) ActiveBackground() *Layer {
	for _, l := range m.Layers.Items() {
		if l.IsBackground() && l.Visible.Get() {
			return l
		}
	}
	return nil
}

// LayerByID returns the live layer for a config id.
func (m *MapCore) LayerByID(id string) (*Layer, bool) {
	if i := m.LayerIndex(id); i >= 0 {
		return m.Layers.Items()[i], true
	}
	return nil, false
}

// LayerByTitle returns the first live layer with the given title.
func (m *MapCore) LayerByTitle(title string) (*Layer, bool) {
	for _, l := range m.Layers.Items() {
		if l.Title() == title {
			return l, true
		}
	}
	return nil, false
}

// LayerIndex returns the position of a live layer, or -1.
func (m *MapCore) LayerIndex(id string) int {
	return m.Layers.IndexFunc(func(l *Layer) bool { return l.ID() == id })
}

// SetVisible shows or hides a live layer. Showing a background layer hides
// the previously visible one after the new one is shown.
func (m *MapCore) SetVisible(id string, visible bool) error {
	layer, ok := m.LayerByID(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrLayerNotFound, id)
	}

	if !visible || !layer.IsBackground() {
		layer.Visible.Set(visible)
		return nil
	}

	previous := m.ActiveBackground()
	layer.Visible.Set(true)
	if previous != nil && previous != layer {
		previous.Visible.Set(false)
	}
	return nil
}

// SetOpacity sets the opacity of a live layer, clamped to [0, 100].
func (m *MapCore) SetOpacity(id string, opacity float64) error {
	layer, ok := m.LayerByID(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrLayerNotFound, id)
	}
	layer.Opacity.Set(min(max(opacity, 0), 100))
	return nil
}

// Home flies to the start position, or to the centre of the home extent.
func (m *MapCore) Home() error {
	if m.StartPosition != nil {
		m.backend.FlyTo(*m.StartPosition)
		return nil
	}
	if b, ok := m.Viewer.HomeBound(); ok {
		c := b.Center()
		m.backend.FlyTo(library.CameraLocation{X: c.X(), Y: c.Y(), Z: DefaultHomeHeight, Pitch: -90})
		return nil
	}
	return ErrNoHomePosition
}

// ZoomTo moves to position without a flight animation.
func (m *MapCore) ZoomTo(position library.CameraLocation) {
	position.Duration = 0
	m.backend.FlyTo(position)
}
