// Package geonetwork reads WMS layers from a GeoNetwork catalog. Every topic
// category with records becomes a group below a single "dataportal" root.
package geonetwork

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/leia-project/viewer-sub001/internal/connector"
	"github.com/leia-project/viewer-sub001/internal/library"
)

const (
	endpointSearch = "srv/dut/q"

	RootGroupID    = "dataportal"
	rootGroupTitle = "Dataportal"
)

// Settings points at a GeoNetwork instance.
type Settings struct {
	URL string `yaml:"url" json:"url"`
}

// Connector is a GeoNetwork catalog connector.
type Connector struct {
	settings Settings
	client   *connector.Client
	memo     *connector.Memo
	logger   *slog.Logger
}

// New creates a GeoNetwork connector.
func New(settings Settings, client *connector.Client) *Connector {
	c := &Connector{
		settings: settings,
		client:   client,
		logger:   client.Logger.With("connector", "geonetwork", "url", settings.URL),
	}
	c.memo = connector.NewMemo(c.fetch)
	return c
}

// Name implements connector.Connector.
func (c *Connector) Name() string { return "geonetwork " + c.settings.URL }

// GetData implements connector.Connector.
func (c *Connector) GetData(ctx context.Context) (*connector.Data, error) {
	return c.memo.Get(ctx)
}

func (c *Connector) fetch(ctx context.Context) (*connector.Data, error) {
	groups, err := c.allGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("get categories: %w", err)
	}

	var configs []*library.LayerConfig
	for _, g := range groups[1:] {
		found, err := c.layerConfigs(ctx, g)
		if err != nil {
			return nil, fmt.Errorf("get category %s: %w", g.ID, err)
		}
		configs = append(configs, connector.FilterDuplicates(found, configs)...)
	}

	c.logger.Info("catalog loaded", "groups", len(groups), "layers", len(configs))
	return &connector.Data{Groups: groups, LayerConfigs: configs}, nil
}

// allGroups returns the root group followed by one group per non-empty
// category. Category groups reference the root by ParentID only.
func (c *Connector) allGroups(ctx context.Context) ([]*library.LayerConfigGroup, error) {
	q := url.Values{}
	q.Set("_content_type", "json")
	q.Set("from", "0")
	q.Set("to", "0")

	resp, err := connector.FetchJSON[summaryResponse](ctx, c.client, c.endpoint(q), nil)
	if err != nil {
		return nil, err
	}

	groups := []*library.LayerConfigGroup{library.NewLayerConfigGroup(RootGroupID, rootGroupTitle, "")}
	for _, cat := range resp.Summary.TopicCats {
		if cat.Count > 0 {
			groups = append(groups, library.NewLayerConfigGroup(cat.Name, cat.Name, RootGroupID))
		}
	}
	return groups, nil
}

func (c *Connector) layerConfigs(ctx context.Context, group *library.LayerConfigGroup) ([]*library.LayerConfig, error) {
	q := url.Values{}
	q.Set("_content_type", "json")
	q.Set("topicCat", group.Title)
	q.Set("resultType", "details")
	q.Set("buildSummary", "false")
	q.Set("fast", "index")
	q.Set("from", "1")
	q.Set("to", "1000")

	resp, err := connector.FetchJSON[searchResponse](ctx, c.client, c.endpoint(q), nil)
	if err != nil {
		return nil, err
	}

	configs := make([]*library.LayerConfig, 0, len(resp.Metadata))
	for _, m := range resp.Metadata {
		id := m.Identifier
		if id == "" {
			id = m.Info.UUID
		}
		if id == "" {
			c.logger.Debug("skipping record without identifier", "title", m.Title)
			continue
		}

		groupID := group.ID
		if len(m.TopicCat) > 0 && m.TopicCat[0] != "" {
			groupID = m.TopicCat[0]
		}

		configs = append(configs, library.NewLayerConfig(library.Descriptor{
			ID:          id,
			Type:        "wms",
			Title:       m.Title,
			Description: m.Abstract,
			GroupID:     groupID,
			ImageURL:    imageURL(m.Image),
			Settings:    wmsSettings(m.Link),
		}))
	}
	return configs, nil
}

func (c *Connector) endpoint(q url.Values) string {
	return strings.TrimRight(c.settings.URL, "/") + "/" + endpointSearch + "?" + q.Encode()
}

// imageURL picks the thumbnail from "kind|url" image entries, falling back
// to the first entry.
func imageURL(images []string) string {
	if len(images) == 0 {
		return ""
	}
	pick := images[0]
	for _, img := range images {
		if strings.HasPrefix(img, "thumbnail") {
			pick = img
			break
		}
	}
	if _, after, ok := strings.Cut(pick, "|"); ok {
		u, _, _ := strings.Cut(after, "|")
		return u
	}
	return ""
}

// wmsSettings reads the first OGC:WMS link, formatted as
// "name|description|url|protocol|...".
func wmsSettings(links []string) map[string]any {
	for _, l := range links {
		if !strings.Contains(l, "OGC:WMS") {
			continue
		}
		parts := strings.Split(l, "|")
		if len(parts) < 3 {
			continue
		}
		base, _, _ := strings.Cut(parts[2], "?")
		return map[string]any{
			"url":         base,
			"type":        "wms",
			"featureName": parts[0],
			"contenttype": "image/png",
		}
	}
	return map[string]any{}
}
