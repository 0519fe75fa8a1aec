package mapcore

import (
	"errors"

	"github.com/leia-project/viewer-sub001/internal/library"
	"github.com/leia-project/viewer-sub001/internal/reactive"
)

// Drawable is the backend side of a rendered layer.
type Drawable interface {
	Show()
	Hide()
	OpacityChanged(opacity float64)
}

// Layer is a rendered instance of an activated LayerConfig. Changes to
// Visible and Opacity are the only path to the Drawable.
type Layer struct {
	Config   *library.LayerConfig
	Visible  *reactive.Cell[bool]
	Opacity  *reactive.Cell[float64]
	Drawable Drawable

	unsubscribers []reactive.Unsubscriber
}

// NewLayer wires a drawable to a config. The layer starts visible when the
// config is DefaultOn. Opacity starts at 100 minus the configured
// transparency.
func NewLayer(config *library.LayerConfig, d Drawable) (*Layer, error) {
	if config == nil || config.ID == "" {
		return nil, errors.New("layer must have an ID")
	}

	opacity := 100.0
	if config.Opacity > 0 {
		opacity = 100 - config.Opacity
	}

	l := &Layer{
		Config:   config,
		Visible:  reactive.New(config.DefaultOn),
		Opacity:  reactive.New(opacity),
		Drawable: d,
	}

	l.unsubscribers = append(l.unsubscribers,
		l.Visible.Subscribe(func(visible bool) {
			if visible {
				d.Show()
			} else {
				d.Hide()
			}
		}),
		l.Opacity.Subscribe(d.OpacityChanged),
	)
	return l, nil
}

func (l *Layer) ID() string    { return l.Config.ID }
func (l *Layer) Title() string { return l.Config.Title }

// IsBackground reports whether the layer is a background layer.
func (l *Layer) IsBackground() bool { return l.Config.IsBackground }

// Remove deactivates the layer's config, which removes the layer from the map.
func (l *Layer) Remove() {
	l.Config.Remove()
}

// Position returns the camera position configured for the layer, if any.
func (l *Layer) Position() *library.CameraLocation {
	return l.Config.CameraPosition
}

// detach stops forwarding cell changes to the drawable.
func (l *Layer) detach() {
	for _, unsub := range l.unsubscribers {
		unsub()
	}
	l.unsubscribers = nil
}
