package mapcore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/paulmach/orb"
	"gopkg.in/yaml.v3"

	"github.com/leia-project/viewer-sub001/internal/library"
)

// Document is a viewer configuration document.
type Document struct {
	Name   string               `json:"name" yaml:"name"`
	Viewer *ViewerSettings      `json:"viewer,omitempty" yaml:"viewer,omitempty"`
	Layers []library.Descriptor `json:"layers" yaml:"layers"`
	Groups []GroupDocument      `json:"groups" yaml:"groups"`
	Tools  map[string]any       `json:"tools,omitempty" yaml:"tools,omitempty"`
}

// GroupDocument is a serialised LayerConfigGroup.
type GroupDocument struct {
	ID       string `json:"id" yaml:"id"`
	Title    string `json:"title" yaml:"title"`
	ParentID string `json:"parentId,omitempty" yaml:"parentId,omitempty"`
}

// ViewerSettings holds the camera setup of the viewer.
type ViewerSettings struct {
	StartPosition *library.CameraLocation `json:"startPosition,omitempty" yaml:"startPosition,omitempty"`
	// Home is an optional [minX, minY, maxX, maxY] extent in lon/lat.
	Home    []float64      `json:"home,omitempty" yaml:"home,omitempty"`
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// HomeBound returns the home extent, if a valid one is configured.
func (v *ViewerSettings) HomeBound() (orb.Bound, bool) {
	if v == nil || len(v.Home) != 4 {
		return orb.Bound{}, false
	}
	b := orb.Bound{Min: orb.Point{v.Home[0], v.Home[1]}, Max: orb.Point{v.Home[2], v.Home[3]}}
	if b.Min.X() > b.Max.X() || b.Min.Y() > b.Max.Y() {
		return orb.Bound{}, false
	}
	return b, true
}

// Validate checks the parts of a document the library relies on.
func (d *Document) Validate() error {
	seen := make(map[string]struct{}, len(d.Layers))
	for i, l := range d.Layers {
		if l.ID == "" {
			return fmt.Errorf("layer %d: id is required", i)
		}
		if _, ok := seen[l.ID]; ok {
			return fmt.Errorf("layer %d: duplicate id %q", i, l.ID)
		}
		seen[l.ID] = struct{}{}
	}
	for i, g := range d.Groups {
		if g.ID == "" {
			return fmt.Errorf("group %d: id is required", i)
		}
		if g.ParentID == g.ID {
			return fmt.Errorf("group %q: parent is itself", g.ID)
		}
	}
	return nil
}

// layerConfigs builds fresh configs for the document's layers.
func (d *Document) layerConfigs() []*library.LayerConfig {
	out := make([]*library.LayerConfig, 0, len(d.Layers))
	for _, l := range d.Layers {
		out = append(out, library.NewLayerConfig(l))
	}
	return out
}

func (d *Document) layerConfigGroups() []*library.LayerConfigGroup {
	out := make([]*library.LayerConfigGroup, 0, len(d.Groups))
	for _, g := range d.Groups {
		out = append(out, library.NewLayerConfigGroup(g.ID, g.Title, g.ParentID))
	}
	return out
}

// ParseDocument decodes a document. YAML is used when yamlFormat is set,
// JSON otherwise.
func ParseDocument(b []byte, yamlFormat bool) (*Document, error) {
	var doc Document
	if yamlFormat {
		if err := yaml.Unmarshal(b, &doc); err != nil {
			return nil, fmt.Errorf("parse document: %w", err)
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(b))
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("parse document: %w", err)
		}
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid document: %w", err)
	}
	return &doc, nil
}

func isYAML(location string) bool {
	if u, _, ok := strings.Cut(location, "?"); ok {
		location = u
	}
	switch strings.ToLower(path.Ext(location)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// readDocument loads a document from an http(s) URL or a local path.
func readDocument(ctx context.Context, client *http.Client, location string) (*Document, error) {
	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		b, err := os.ReadFile(location)
		if err != nil {
			return nil, fmt.Errorf("read document: %w", err)
		}
		return ParseDocument(b, isYAML(location))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch document: unexpected status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	yamlFormat := isYAML(location)
	if ct := resp.Header.Get("Content-Type"); strings.Contains(ct, "yaml") {
		yamlFormat = true
	}
	return ParseDocument(b, yamlFormat)
}
