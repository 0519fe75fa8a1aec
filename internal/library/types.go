// Package library holds the catalog of layer definitions: layer configs, the
// group tree they live in, and the LayerLibrary that assembles the forest as
// catalog sources resolve and reports activation changes.
//
// Everything here runs on a single logical event loop. Notifications are
// synchronous, so aggregated counts are correct as soon as a mutation returns.
// Callers sharing a library across goroutines must serialise access.
package library

import (
	"github.com/paulmach/orb"

	"github.com/leia-project/viewer-sub001/internal/reactive"
)

// Descriptor is the static description of a map layer.
type Descriptor struct {
	ID                  string          `json:"id" yaml:"id" doc:"Unique layer identifier" example:"luchtfoto_2021"`
	Type                string          `json:"type" yaml:"type" doc:"Layer type tag understood by the rendering backend" example:"wmts"`
	Title               string          `json:"title" yaml:"title" doc:"Display title" example:"Luchtfoto 2021"`
	Description         string          `json:"description,omitempty" yaml:"description,omitempty" doc:"Free text description"`
	GroupID             string          `json:"groupId,omitempty" yaml:"groupId,omitempty" doc:"ID of the group this layer belongs to"`
	ImageURL            string          `json:"imageUrl,omitempty" yaml:"imageUrl,omitempty" doc:"Preview image"`
	LegendURL           string          `json:"legendUrl,omitempty" yaml:"legendUrl,omitempty" doc:"Legend image"`
	IsBackground        bool            `json:"isBackground" yaml:"isBackground" doc:"Whether this is a background (base) layer"`
	DefaultAddToManager bool            `json:"defaultAddToManager" yaml:"defaultAddToManager" doc:"Activate the layer as soon as it is registered"`
	DefaultOn           bool            `json:"defaultOn" yaml:"defaultOn" doc:"Whether the layer is visible once activated"`
	Attribution         string          `json:"attribution,omitempty" yaml:"attribution,omitempty" doc:"Attribution or license text"`
	Metadata            []MetadataEntry `json:"metadata,omitempty" yaml:"metadata,omitempty" doc:"Key/value metadata"`
	MetadataURL         string          `json:"metadataUrl,omitempty" yaml:"metadataUrl,omitempty" doc:"Link to a metadata record"`
	MetadataLink        string          `json:"metadataLink,omitempty" yaml:"metadataLink,omitempty" doc:"Human readable metadata link"`
	Transparent         bool            `json:"transparent" yaml:"transparent" doc:"Whether the layer supports opacity changes"`
	Opacity             float64         `json:"opacity,omitempty" yaml:"opacity,omitempty" minimum:"0" maximum:"100" doc:"Initial transparency in percent"`
	Settings            map[string]any  `json:"settings,omitempty" yaml:"settings,omitempty" doc:"Backend specific settings"`
	CameraPosition      *CameraLocation `json:"cameraPosition,omitempty" yaml:"cameraPosition,omitempty" doc:"Camera position to fly to for this layer"`
	Tags                []string        `json:"tags,omitempty" yaml:"tags,omitempty" doc:"Free tags"`
}

// MetadataEntry is a single key/value metadata pair.
type MetadataEntry struct {
	Key   string `json:"key" yaml:"key"`
	Value any    `json:"value" yaml:"value"`
}

// MetadataValue returns the first metadata value stored under key.
func (d *Descriptor) MetadataValue(key string) (any, bool) {
	for _, m := range d.Metadata {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

// Setting returns a string setting, or "" if absent or not a string.
func (d *Descriptor) Setting(key string) string {
	if v, ok := d.Settings[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// CameraLocation is a camera position in lon/lat/height plus orientation.
type CameraLocation struct {
	X           float64 `json:"x" yaml:"x" doc:"Longitude"`
	Y           float64 `json:"y" yaml:"y" doc:"Latitude"`
	Z           float64 `json:"z" yaml:"z" doc:"Height in meters"`
	Heading     float64 `json:"heading" yaml:"heading"`
	Pitch       float64 `json:"pitch" yaml:"pitch"`
	Duration    float64 `json:"duration" yaml:"duration" doc:"Flight duration in seconds"`
	Title       string  `json:"title,omitempty" yaml:"title,omitempty"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
}

// Point returns the ground position of the camera.
func (c CameraLocation) Point() orb.Point {
	return orb.Point{c.X, c.Y}
}

// LayerConfig is a layer descriptor plus its activation flag. Added is true
// while the layer is (requested to be) on the map.
type LayerConfig struct {
	Descriptor

	Added *reactive.Cell[bool]

	// ready is set once the library listener is live; changes to Added before
	// that are not reported.
	ready bool
}

// NewLayerConfig creates an inactive layer config.
func NewLayerConfig(d Descriptor) *LayerConfig {
	return &LayerConfig{
		Descriptor: d,
		Added:      reactive.New(false),
	}
}

// LegendSupported reports whether the layer has a legend.
func (c *LayerConfig) LegendSupported() bool {
	return c.LegendURL != ""
}

// OpacitySupported reports whether the layer opacity can be changed.
func (c *LayerConfig) OpacitySupported() bool {
	return c.Transparent
}

// Add activates the layer.
func (c *LayerConfig) Add() {
	c.Added.Set(true)
}

// Remove deactivates the layer.
func (c *LayerConfig) Remove() {
	c.Added.Set(false)
}

// Ready reports whether the library is listening to this config.
func (c *LayerConfig) Ready() bool {
	return c.ready
}
