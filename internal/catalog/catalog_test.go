package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leia-project/viewer-sub001/internal/retry"
)

const sample = `
retry:
  maxAttempts: 3
  initialBackoff: 250ms
sources:
  - type: ckan
    ckan:
      url: https://data.example.nl
      organizations: [kadaster]
      excludePackages: [old]
      specialResources:
        backgroundLayers: [brt]
        layersAddedOn: [luchtfoto]
  - type: geonetwork
    geonetwork:
      url: https://geonetwork.example.nl
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	require.Len(t, s.Sources, 2)

	ck := s.Sources[0].CKAN
	require.NotNil(t, ck)
	assert.Equal(t, "https://data.example.nl", ck.URL)
	assert.Equal(t, []string{"kadaster"}, ck.Organizations)
	assert.Equal(t, []string{"brt"}, ck.SpecialResources.BackgroundLayers)
	assert.Equal(t, "https://geonetwork.example.nl", s.Sources[1].GeoNetwork.URL)

	p := s.Policy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, p.InitialBackoff)
	assert.Equal(t, retry.DefaultPolicy.MaxBackoff, p.MaxBackoff)
}

func TestBuild(t *testing.T) {
	s, err := Parse([]byte(sample))
	require.NoError(t, err)

	conns, err := s.Build(nil)
	require.NoError(t, err)
	require.Len(t, conns, 2)
	assert.Equal(t, "ckan https://data.example.nl", conns[0].Name())
	assert.Equal(t, "geonetwork https://geonetwork.example.nl", conns[1].Name())
}

func TestBuildRejectsInvalidSources(t *testing.T) {
	s := &Settings{Sources: []Source{{Type: "ftp"}, {Type: TypeCKAN}}}
	_, err := s.Build(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown type "ftp"`)
	assert.Contains(t, err.Error(), "ckan url is required")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
