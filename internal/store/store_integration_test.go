//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leia-project/viewer-sub001/internal/db"
	"github.com/leia-project/viewer-sub001/internal/library"
)

func TestSyncRoundTrip(t *testing.T) {
	conn, err := db.Open(db.Config{})
	require.NoError(t, err)
	defer conn.Close()

	s := New(conn, nil)
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))

	lib := library.New(nil)
	lib.AddLayerConfigGroup(library.NewLayerConfigGroup("g", "G", ""))
	c := library.NewLayerConfig(library.Descriptor{ID: "a", GroupID: "g", Tags: []string{"t"}})
	lib.AddLayerConfig(c)

	require.NoError(t, s.Sync(ctx, Capture(lib)))
	enabled, err := s.EnabledByGroup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, enabled["g"])

	c.Add()
	require.NoError(t, s.Sync(ctx, Capture(lib)))
	enabled, err = s.EnabledByGroup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, enabled["g"])

	var tags string
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT tags FROM layer_configs WHERE id = 'a'`).Scan(&tags))
	assert.Equal(t, "t", tags)
}
