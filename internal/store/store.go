// Package store keeps a queryable DuckDB snapshot of the layer library.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leia-project/viewer-sub001/internal/library"
)

const schema = `
CREATE TABLE IF NOT EXISTS layer_groups (
	id        VARCHAR PRIMARY KEY,
	title     VARCHAR,
	parent_id VARCHAR,
	depth     INTEGER,
	total     INTEGER,
	enabled   INTEGER
);
CREATE TABLE IF NOT EXISTS layer_configs (
	id            VARCHAR PRIMARY KEY,
	type          VARCHAR,
	title         VARCHAR,
	group_id      VARCHAR,
	is_background BOOLEAN,
	added         BOOLEAN,
	tags          VARCHAR,
	camera_x      DOUBLE,
	camera_y      DOUBLE
);`

// GroupRow is one layer_groups row.
type GroupRow struct {
	ID, Title, ParentID string
	Depth               int
	Total, Enabled      int
}

// ConfigRow is one layer_configs row.
type ConfigRow struct {
	ID, Type, Title, GroupID string
	IsBackground, Added      bool
	Tags                     []string
	Camera                   *library.CameraLocation
}

// Snapshot is a point-in-time copy of the library.
type Snapshot struct {
	Groups  []GroupRow
	Configs []ConfigRow
}

// Capture copies the library state. It must run where the library may be
// read, the result can then be synced from any goroutine. Group and config
// ids are keys: a repeated group keeps only its first row but its configs
// are still captured, and a repeated config keeps its first row.
func Capture(lib *library.LayerLibrary) Snapshot {
	var snap Snapshot
	groups := make(map[string]struct{})
	configs := make(map[string]struct{})
	lib.Walk(func(g *library.LayerConfigGroup, depth int) bool {
		if _, dup := groups[g.ID]; !dup {
			groups[g.ID] = struct{}{}
			snap.Groups = append(snap.Groups, GroupRow{
				ID:       g.ID,
				Title:    g.Title,
				ParentID: g.ParentID,
				Depth:    depth,
				Total:    g.TotalLayerCount.Get(),
				Enabled:  g.EnabledLayerCount.Get(),
			})
		}
		for _, c := range g.LayerConfigs.Items() {
			if _, dup := configs[c.ID]; dup {
				continue
			}
			configs[c.ID] = struct{}{}
			snap.Configs = append(snap.Configs, ConfigRow{
				ID:           c.ID,
				Type:         c.Type,
				Title:        c.Title,
				GroupID:      g.ID,
				IsBackground: c.IsBackground,
				Added:        c.Added.Get(),
				Tags:         c.Tags,
				Camera:       c.CameraPosition,
			})
		}
		return true
	})
	return snap
}

// Store writes snapshots to DuckDB.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a store on db.
func New(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Migrate creates the tables.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Sync replaces the stored snapshot in one transaction.
func (s *Store) Sync(ctx context.Context, snap Snapshot) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sync: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, q := range []string{"DELETE FROM layer_configs", "DELETE FROM layer_groups"} {
		if _, err = tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("clear tables: %w", err)
		}
	}

	for _, g := range snap.Groups {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO layer_groups (id, title, parent_id, depth, total, enabled) VALUES (?, ?, ?, ?, ?, ?)`,
			g.ID, g.Title, nullable(g.ParentID), g.Depth, g.Total, g.Enabled); err != nil {
			return fmt.Errorf("insert group %s: %w", g.ID, err)
		}
	}

	for _, c := range snap.Configs {
		var x, y sql.NullFloat64
		if c.Camera != nil {
			p := c.Camera.Point()
			x = sql.NullFloat64{Float64: p.X(), Valid: true}
			y = sql.NullFloat64{Float64: p.Y(), Valid: true}
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO layer_configs (id, type, title, group_id, is_background, added, tags, camera_x, camera_y) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.Type, c.Title, c.GroupID, c.IsBackground, c.Added, strings.Join(c.Tags, ","), x, y); err != nil {
			return fmt.Errorf("insert layer %s: %w", c.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit sync: %w", err)
	}
	s.logger.Debug("library snapshot stored", "groups", len(snap.Groups), "layers", len(snap.Configs))
	return nil
}

// EnabledByGroup returns the stored enabled count per group id.
func (s *Store) EnabledByGroup(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, enabled FROM layer_groups`)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		out[id] = n
	}
	return out, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
