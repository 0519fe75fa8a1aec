// Package ckan reads layer groups and layer configs from a CKAN catalog.
//
// CKAN groups become LayerConfigGroups: a group without parent groups is a
// root, and a group whose first parent is P is attached under P. Every
// resource of every matching package becomes one LayerConfig.
package ckan

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"

	"github.com/leia-project/viewer-sub001/internal/connector"
	"github.com/leia-project/viewer-sub001/internal/library"
)

const (
	endpointGroups   = "api/3/action/group_list"
	endpointPackages = "api/3/action/package_search"

	// previewImageKey is the package extra used as image when a resource has none.
	previewImageKey = "Preview afbeelding"
)

// Settings selects what to read from a CKAN instance.
type Settings struct {
	URL              string           `yaml:"url" json:"url"`
	Organizations    []string         `yaml:"organizations" json:"organizations,omitempty"`
	Groups           []string         `yaml:"groups" json:"groups,omitempty"`
	Packages         []string         `yaml:"packages" json:"packages,omitempty"`
	ExcludePackages  []string         `yaml:"excludePackages" json:"excludePackages,omitempty"`
	SpecialResources SpecialResources `yaml:"specialResources" json:"specialResources"`
}

// SpecialResources lists resource names or ids that get non-default flags.
type SpecialResources struct {
	BackgroundLayers []string `yaml:"backgroundLayers" json:"backgroundLayers,omitempty"`
	LayersAddedOn    []string `yaml:"layersAddedOn" json:"layersAddedOn,omitempty"`
	LayersAddedOff   []string `yaml:"layersAddedOff" json:"layersAddedOff,omitempty"`
}

// Connector is a CKAN catalog connector.
type Connector struct {
	settings Settings
	client   *connector.Client
	memo     *connector.Memo
	logger   *slog.Logger
}

// New creates a CKAN connector.
func New(settings Settings, client *connector.Client) *Connector {
	c := &Connector{
		settings: settings,
		client:   client,
		logger:   client.Logger.With("connector", "ckan", "url", settings.URL),
	}
	c.memo = connector.NewMemo(c.fetch)
	return c
}

// Name implements connector.Connector.
func (c *Connector) Name() string { return "ckan " + c.settings.URL }

// GetData implements connector.Connector.
func (c *Connector) GetData(ctx context.Context) (*connector.Data, error) {
	return c.memo.Get(ctx)
}

func (c *Connector) fetch(ctx context.Context) (*connector.Data, error) {
	groups, err := c.allGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("get groups: %w", err)
	}

	var configs []*library.LayerConfig
	for _, org := range c.settings.Organizations {
		found, err := c.layerConfigs(ctx, "organization:"+org, true)
		if err != nil {
			return nil, fmt.Errorf("get organization %s: %w", org, err)
		}
		configs = append(configs, connector.FilterDuplicates(found, configs)...)
	}

	for _, name := range c.settings.Groups {
		group, ok := findGroup(groups, name)
		if !ok {
			c.logger.Warn("requested group not found", "group", name)
			continue
		}
		found, err := c.subtreeConfigs(ctx, group, configs)
		if err != nil {
			return nil, fmt.Errorf("get group %s: %w", name, err)
		}
		configs = append(configs, found...)
	}

	for _, pkg := range c.settings.Packages {
		found, err := c.layerConfigs(ctx, "name:"+pkg, false)
		if err != nil {
			return nil, fmt.Errorf("get package %s: %w", pkg, err)
		}
		configs = append(configs, connector.FilterDuplicates(found, configs)...)
	}

	c.logger.Info("catalog loaded", "groups", len(groups), "layers", len(configs))
	return &connector.Data{Groups: groups, LayerConfigs: configs}, nil
}

// subtreeConfigs returns the configs of group and all its descendants that
// are not already in existing.
func (c *Connector) subtreeConfigs(ctx context.Context, group *library.LayerConfigGroup, existing []*library.LayerConfig) ([]*library.LayerConfig, error) {
	found, err := c.layerConfigs(ctx, "groups:"+group.ID, true)
	if err != nil {
		return nil, err
	}
	out := connector.FilterDuplicates(found, existing)

	for _, child := range group.ChildGroups.Items() {
		more, err := c.subtreeConfigs(ctx, child, append(slices.Clip(existing), out...))
		if err != nil {
			return nil, err
		}
		out = append(out, more...)
	}
	return out, nil
}

func (c *Connector) allGroups(ctx context.Context) ([]*library.LayerConfigGroup, error) {
	q := url.Values{}
	q.Set("all_fields", "true")
	q.Set("include_extras", "false")
	q.Set("include_tags", "false")
	q.Set("include_groups", "true")

	resp, err := connector.FetchJSON(ctx, c.client, c.endpoint(endpointGroups, q), accept[[]group])
	if err != nil {
		return nil, err
	}
	return buildGroups(resp.Result), nil
}

func (c *Connector) layerConfigs(ctx context.Context, query string, list bool) ([]*library.LayerConfig, error) {
	q := url.Values{}
	q.Set("q", query)
	if list {
		q.Set("facet", "false")
		q.Set("rows", "1000")
	}

	resp, err := connector.FetchJSON(ctx, c.client, c.endpoint(endpointPackages, q), accept[searchResult])
	if err != nil {
		return nil, err
	}

	var configs []*library.LayerConfig
	for _, p := range resp.Result.Results {
		if slices.Contains(c.settings.ExcludePackages, p.ID) || slices.Contains(c.settings.ExcludePackages, p.Name) {
			continue
		}
		configs = append(configs, c.packageConfigs(p)...)
	}
	return configs, nil
}

func (c *Connector) endpoint(path string, q url.Values) string {
	return strings.TrimRight(c.settings.URL, "/") + "/" + path + "?" + q.Encode()
}

func (c *Connector) packageConfigs(p pkg) []*library.LayerConfig {
	var groupID string
	if len(p.Groups) > 0 {
		groupID = p.Groups[0].Name
	}

	metadata := make([]library.MetadataEntry, 0, len(p.Extras))
	for _, e := range p.Extras {
		metadata = append(metadata, library.MetadataEntry{Key: e.Key, Value: e.Value})
	}

	var tags []string
	for _, t := range p.Tags {
		tags = append(tags, t.Name)
	}

	configs := make([]*library.LayerConfig, 0, len(p.Resources))
	for _, r := range p.Resources {
		description := p.Notes
		if r.Description != "" {
			description = r.Description + "\n" + description
		}

		settings := map[string]any{}
		if r.Settings != "" {
			if err := json.Unmarshal([]byte(r.Settings), &settings); err != nil {
				c.logger.Debug("ignoring malformed resource settings", "resource", r.ID, "error", err)
				settings = map[string]any{}
			}
		}
		if _, ok := settings["url"]; !ok && r.URL != "" {
			settings["url"] = r.URL
		}
		if enabled, _ := settings["enableClipping"].(bool); !enabled && r.EnableClipping {
			settings["enableClipping"] = true
		}

		var camera *library.CameraLocation
		if r.CameraPosition != "" {
			var loc library.CameraLocation
			if err := json.Unmarshal([]byte(r.CameraPosition), &loc); err == nil {
				camera = &loc
			}
		}

		image := r.ImageURL
		if image == "" {
			for _, m := range metadata {
				if m.Key == previewImageKey {
					image, _ = m.Value.(string)
					break
				}
			}
		}

		special := c.settings.SpecialResources
		addedOn := matches(special.LayersAddedOn, r)
		addedOff := matches(special.LayersAddedOff, r)

		configs = append(configs, library.NewLayerConfig(library.Descriptor{
			ID:                  r.ID,
			Type:                strings.ToLower(r.Format),
			Title:               r.Name,
			Description:         description,
			GroupID:             groupID,
			ImageURL:            image,
			LegendURL:           r.LegendURL,
			IsBackground:        matches(special.BackgroundLayers, r),
			DefaultAddToManager: addedOn || addedOff,
			DefaultOn:           addedOn,
			Attribution:         p.License,
			Metadata:            metadata,
			MetadataURL:         r.MetadataURL,
			Settings:            settings,
			CameraPosition:      camera,
			Tags:                tags,
		}))
	}
	return configs
}

func matches(list []string, r resource) bool {
	return slices.Contains(list, r.Name) || slices.Contains(list, r.ID)
}

// buildGroups turns the flat CKAN group list into a forest of roots.
func buildGroups(flat []group) []*library.LayerConfigGroup {
	var roots []*library.LayerConfigGroup
	for _, g := range flat {
		if g.Groups != nil && len(g.Groups) == 0 {
			root := library.NewLayerConfigGroup(g.Name, g.Title, "")
			attachChildren(root, flat, map[string]bool{g.Name: true})
			roots = append(roots, root)
		}
	}
	return roots
}

func attachChildren(parent *library.LayerConfigGroup, flat []group, seen map[string]bool) {
	for _, g := range flat {
		if len(g.Groups) == 0 || g.Groups[0].Name != parent.ID || seen[g.Name] {
			continue
		}
		seen[g.Name] = true
		child := library.NewLayerConfigGroup(g.Name, g.Title, parent.ID)
		attachChildren(child, flat, seen)
		parent.AddGroup(child)
	}
}

func findGroup(groups []*library.LayerConfigGroup, id string) (*library.LayerConfigGroup, bool) {
	for _, g := range groups {
		if g.ID == id {
			return g, true
		}
		if found, ok := findGroup(g.ChildGroups.Items(), id); ok {
			return found, true
		}
	}
	return nil, false
}
