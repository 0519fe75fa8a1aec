// Package catalog reads the catalog settings file and builds the connectors
// it describes.
package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/leia-project/viewer-sub001/internal/connector"
	"github.com/leia-project/viewer-sub001/internal/connector/ckan"
	"github.com/leia-project/viewer-sub001/internal/connector/geonetwork"
	"github.com/leia-project/viewer-sub001/internal/retry"
)

// Source types.
const (
	TypeCKAN       = "ckan"
	TypeGeoNetwork = "geonetwork"
)

// Settings is the root of a catalog settings file.
type Settings struct {
	Retry   RetrySettings `yaml:"retry"`
	Sources []Source      `yaml:"sources"`
}

// RetrySettings overrides retry.DefaultPolicy. Zero fields keep the default.
type RetrySettings struct {
	MaxAttempts    int           `yaml:"maxAttempts"`
	InitialBackoff time.Duration `yaml:"initialBackoff"`
	MaxBackoff     time.Duration `yaml:"maxBackoff"`
}

// Source configures one connector. Exactly one of the typed blocks is read,
// selected by Type.
type Source struct {
	Type       string               `yaml:"type"`
	CKAN       *ckan.Settings       `yaml:"ckan,omitempty"`
	GeoNetwork *geonetwork.Settings `yaml:"geonetwork,omitempty"`
}

// Load reads settings from a YAML file.
func Load(path string) (*Settings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog settings: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML settings.
func Parse(b []byte) (*Settings, error) {
	var s Settings
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse catalog settings: %w", err)
	}
	return &s, nil
}

// Policy returns the retry policy after applying overrides.
func (s *Settings) Policy() retry.Policy {
	p := retry.DefaultPolicy
	if s.Retry.MaxAttempts > 0 {
		p.MaxAttempts = s.Retry.MaxAttempts
	}
	if s.Retry.InitialBackoff > 0 {
		p.InitialBackoff = s.Retry.InitialBackoff
	}
	if s.Retry.MaxBackoff > 0 {
		p.MaxBackoff = s.Retry.MaxBackoff
	}
	return p
}

// Build creates one connector per source, sharing a single HTTP client.
func (s *Settings) Build(logger *slog.Logger) ([]connector.Connector, error) {
	client := connector.NewClient(s.Policy(), logger)

	var errs []error
	out := make([]connector.Connector, 0, len(s.Sources))
	for i, src := range s.Sources {
		switch src.Type {
		case TypeCKAN:
			if src.CKAN == nil || src.CKAN.URL == "" {
				errs = append(errs, fmt.Errorf("source %d: ckan url is required", i))
				continue
			}
			out = append(out, ckan.New(*src.CKAN, client))
		case TypeGeoNetwork:
			if src.GeoNetwork == nil || src.GeoNetwork.URL == "" {
				errs = append(errs, fmt.Errorf("source %d: geonetwork url is required", i))
				continue
			}
			out = append(out, geonetwork.New(*src.GeoNetwork, client))
		default:
			errs = append(errs, fmt.Errorf("source %d: unknown type %q", i, src.Type))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}
