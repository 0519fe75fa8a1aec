// Package headless is a rendering backend without a renderer. It validates
// layer configs the way a globe backend would, keeps per-layer draw state and
// records camera moves. The server and the tests use it.
package headless

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/leia-project/viewer-sub001/internal/library"
	"github.com/leia-project/viewer-sub001/internal/mapcore"
)

// Drawable is the draw state of one layer.
type Drawable struct {
	Type    string
	Shown   bool
	Opacity float64
	// Features holds inline GeoJSON data, if any.
	Features *geojson.FeatureCollection
	// URL is the resolved source URL, if any.
	URL string

	Shows, Hides int
}

func (d *Drawable) Show() {
	d.Shown = true
	d.Shows++
}

func (d *Drawable) Hide() {
	d.Shown = false
	d.Hides++
}

func (d *Drawable) OpacityChanged(opacity float64) { d.Opacity = opacity }

// Bound returns the extent of the inline features.
func (d *Drawable) Bound() (orb.Bound, bool) {
	if d.Features == nil {
		return orb.Bound{}, false
	}
	var (
		b     orb.Bound
		found bool
	)
	for _, f := range d.Features.Features {
		if f.Geometry == nil {
			continue
		}
		if !found {
			b, found = f.Geometry.Bound(), true
			continue
		}
		b = b.Union(f.Geometry.Bound())
	}
	return b, found
}

type builder func(config *library.LayerConfig) (*Drawable, error)

// Backend implements mapcore.Backend.
type Backend struct {
	// Camera is the last position flown to.
	Camera *library.CameraLocation

	drawables map[string]*Drawable
	builders  map[string]builder
	logger    *slog.Logger
}

// New creates a headless backend.
func New(logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backend{
		drawables: make(map[string]*Drawable),
		logger:    logger,
	}
	b.builders = map[string]builder{
		"wms":            wms,
		"wmts":           requires("url"),
		"wfs":            requires("url", "featureName"),
		"arcgis":         requires("url"),
		"basiskaart":     requires(),
		"vectortiles":    requires("url"),
		"3dtiles":        requires("url"),
		"json":           geoJSON,
		"geojson":        geoJSON,
		"ogc-features":   requires("url"),
		"flood":          requires(),
		"modelanimation": requires("url", "modelUrl", "timeKey"),
		"dropped-glb":    requires(),
		"custom":         custom,
	}
	return b
}

// Types lists the supported layer types in sorted order.
func (b *Backend) Types() []string {
	out := make([]string, 0, len(b.builders))
	for t := range b.builders {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// AddLayer implements mapcore.Backend.
func (b *Backend) AddLayer(config *library.LayerConfig) (*mapcore.Layer, error) {
	build, ok := b.builders[strings.ToLower(config.Type)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", mapcore.ErrUnsupportedLayerType, config.Type)
	}

	d, err := build(config)
	if err != nil {
		return nil, fmt.Errorf("layer %s: %w", config.ID, err)
	}
	d.Type = strings.ToLower(config.Type)

	layer, err := mapcore.NewLayer(config, d)
	if err != nil {
		return nil, err
	}
	b.drawables[config.ID] = d
	b.logger.Debug("layer added", "id", config.ID, "type", d.Type, "visible", d.Shown)
	return layer, nil
}

// RemoveLayer implements mapcore.Backend.
func (b *Backend) RemoveLayer(layer *mapcore.Layer) {
	delete(b.drawables, layer.ID())
	b.logger.Debug("layer removed", "id", layer.ID())
}

// FlyTo implements mapcore.Backend.
func (b *Backend) FlyTo(position library.CameraLocation) {
	b.Camera = &position
}

// Drawable returns the draw state of a layer on the map.
func (b *Backend) Drawable(id string) (*Drawable, bool) {
	d, ok := b.drawables[id]
	return d, ok
}

// Visible returns the ids of the layers currently shown.
func (b *Backend) Visible() []string {
	var out []string
	for id, d := range b.drawables {
		if d.Shown {
			out = append(out, id)
		}
	}
	return out
}

func requires(keys ...string) builder {
	return func(config *library.LayerConfig) (*Drawable, error) {
		for _, k := range keys {
			if config.Setting(k) == "" {
				return nil, fmt.Errorf("missing setting %q", k)
			}
		}
		return &Drawable{URL: config.Setting("url")}, nil
	}
}

// wms appends the optional SLD to the service URL.
func wms(config *library.LayerConfig) (*Drawable, error) {
	d, err := requires("url", "featureName")(config)
	if err != nil {
		return nil, err
	}
	if sld := config.Setting("sld"); sld != "" {
		sep := "?"
		if strings.Contains(d.URL, "?") {
			sep = "&"
		}
		d.URL += sep + "SLD=" + sld
	}
	return d, nil
}

// geoJSON accepts inline data in settings.data, as an object or a string,
// or a settings.url to load from.
func geoJSON(config *library.LayerConfig) (*Drawable, error) {
	raw, ok := config.Settings["data"]
	if !ok {
		return requires("url")(config)
	}

	var b []byte
	switch v := raw.(type) {
	case string:
		b = []byte(v)
	default:
		var err error
		if b, err = json.Marshal(v); err != nil {
			return nil, fmt.Errorf("encode inline data: %w", err)
		}
	}

	fc, err := geojson.UnmarshalFeatureCollection(b)
	if err != nil {
		return nil, fmt.Errorf("parse inline data: %w", err)
	}
	return &Drawable{Features: fc}, nil
}

// custom layers are selected by boolean-ish settings.
func custom(config *library.LayerConfig) (*Drawable, error) {
	if config.Setting("wells") == "true" || config.Setting("i3s") == "true" {
		return requires("url")(config)
	}
	return nil, errors.New("custom layer needs wells or i3s")
}
