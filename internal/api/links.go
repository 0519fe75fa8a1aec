package api

import (
	"fmt"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// links maps operation paths to their RFC 8288 Link header values.
// Enables restish hypermedia navigation via `restish links <url>`.
var links = map[string][]string{
	"/health": {
		`</api/v1/info>; rel="info"`,
		`</api/v1/groups>; rel="groups"`,
		`</api/v1/map/layers>; rel="map"`,
	},
	"/api/v1/info": {
		`</health>; rel="health"`,
		`</api/v1/groups>; rel="groups"`,
	},
	"/api/v1/groups": {
		`</api/v1/layers>; rel="layers"`,
		`</api/v1/pending>; rel="pending"`,
		`</api/v1/tags>; rel="tags"`,
	},
	"/api/v1/groups/{id}": {
		`</api/v1/groups>; rel="collection"`,
	},
	"/api/v1/layers": {
		`</api/v1/groups>; rel="groups"`,
		`</api/v1/map/layers>; rel="map"`,
	},
	"/api/v1/layers/{id}": {
		`</api/v1/layers>; rel="collection"`,
	},
	"/api/v1/map/layers": {
		`</api/v1/layers>; rel="layers"`,
		`</api/v1/events>; rel="events"`,
	},
	"/api/v1/map/layers/{id}": {
		`</api/v1/map/layers>; rel="collection"`,
	},
	"/api/v1/tables": {
		`</api/v1/query>; rel="query"`,
		`</api/v1/snapshot/enabled>; rel="snapshot"`,
	},
}

// LinkTransformer returns a Huma Transformer that injects RFC 8288 Link headers.
func LinkTransformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		for _, link := range links[op.Path] {
			ctx.AppendHeader("Link", link)
		}

		// Item endpoints get a self link
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}

		if p, ok := v.(Pager); ok {
			for _, link := range p.PaginationLinks(ctx.URL()) {
				ctx.AppendHeader("Link", link)
			}
		}

		return v, nil
	}
}
