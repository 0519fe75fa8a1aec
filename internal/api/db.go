package api

import (
	"context"
	"database/sql"

	"github.com/danielgtaylor/huma/v2"

	"github.com/leia-project/viewer-sub001/internal/store"
)

// DBHandler exposes the DuckDB library snapshot.
type DBHandler struct {
	db    *sql.DB
	store *store.Store
}

// NewDBHandler creates a new database handler. Either argument may be nil.
func NewDBHandler(db *sql.DB, st *store.Store) *DBHandler {
	return &DBHandler{db: db, store: st}
}

// RegisterRoutes registers database routes with Huma.
func (h *DBHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/tables", h.ListTables, huma.OperationTags("snapshot"))
	huma.Post(api, "/api/v1/query", h.Query, huma.OperationTags("snapshot"))
	huma.Get(api, "/api/v1/snapshot/enabled", h.EnabledByGroup, huma.OperationTags("snapshot"))
}

// TablesOutput is the response for listing tables.
type TablesOutput struct {
	Body struct {
		Tables []string `json:"tables" doc:"List of table names"`
	}
}

// ListTables returns all DuckDB tables.
func (h *DBHandler) ListTables(ctx context.Context, input *struct{}) (*TablesOutput, error) {
	if h.db == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}

	rows, err := h.db.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list tables", err)
	}
	defer rows.Close()

	out := &TablesOutput{}
	out.Body.Tables = []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err == nil {
			out.Body.Tables = append(out.Body.Tables, name)
		}
	}
	return out, nil
}

// QueryInput is the input for SQL queries.
type QueryInput struct {
	Body struct {
		Query string `json:"query" required:"true" doc:"SQL query to execute" example:"SELECT id, enabled FROM layer_groups"`
	}
}

// QueryOutput is the response for SQL queries.
type QueryOutput struct {
	Body struct {
		Columns []string         `json:"columns" doc:"Column names"`
		Rows    []map[string]any `json:"rows" doc:"Query results"`
		Count   int              `json:"count" doc:"Number of rows returned"`
	}
}

// Query executes a SQL query against the snapshot database.
func (h *DBHandler) Query(ctx context.Context, input *QueryInput) (*QueryOutput, error) {
	if h.db == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}

	rows, err := h.db.QueryContext(ctx, input.Body.Query)
	if err != nil {
		return nil, huma.Error400BadRequest("Query failed: " + err.Error())
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to get columns", err)
	}

	out := &QueryOutput{}
	out.Body.Columns = columns
	out.Body.Rows = []map[string]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			continue
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		out.Body.Rows = append(out.Body.Rows, row)
	}
	out.Body.Count = len(out.Body.Rows)
	return out, nil
}

// EnabledByGroup returns the persisted enabled-layer count per group.
func (h *DBHandler) EnabledByGroup(ctx context.Context, input *struct{}) (*struct{ Body map[string]int }, error) {
	if h.store == nil {
		return nil, huma.Error503ServiceUnavailable("Snapshot store not available")
	}
	counts, err := h.store.EnabledByGroup(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to read snapshot", err)
	}
	return &struct{ Body map[string]int }{Body: counts}, nil
}
