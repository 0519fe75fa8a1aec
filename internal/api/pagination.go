package api

import (
	"fmt"
	"net/url"
	"strconv"
)

// Pager is implemented by response bodies that carry pagination metadata.
// LinkTransformer turns the links into RFC 8288 Link headers.
type Pager interface {
	PaginationLinks(u url.URL) []string
}

// PageInput selects a page of a collection.
type PageInput struct {
	Offset int `query:"offset" minimum:"0" default:"0" doc:"Index of the first item"`
	Limit  int `query:"limit" minimum:"1" maximum:"1000" default:"100" doc:"Page size"`
}

// PageBody is a paginated response envelope.
type PageBody[T any] struct {
	Total  int `json:"total" doc:"Total number of items"`
	Offset int `json:"offset" doc:"Current offset"`
	Limit  int `json:"limit" doc:"Page size"`
	Data   []T `json:"data" doc:"Items"`
}

// Page cuts the page selected by in out of items.
func Page[T any](items []T, in PageInput) PageBody[T] {
	limit := max(in.Limit, 1)
	offset := min(max(in.Offset, 0), len(items))
	end := min(offset+limit, len(items))

	data := make([]T, 0, end-offset)
	data = append(data, items[offset:end]...)
	return PageBody[T]{Total: len(items), Offset: offset, Limit: limit, Data: data}
}

// PaginationLinks returns first, prev, next and last links. Query
// parameters of u other than offset and limit are kept, so filters survive
// paging.
func (p PageBody[T]) PaginationLinks(u url.URL) []string {
	if p.Limit < 1 {
		return nil
	}

	link := func(offset int, rel string) string {
		q := u.Query()
		q.Set("offset", strconv.Itoa(offset))
		q.Set("limit", strconv.Itoa(p.Limit))
		return fmt.Sprintf(`<%s?%s>; rel="%s"`, u.Path, q.Encode(), rel)
	}

	links := []string{link(0, "first")}
	if p.Offset > 0 {
		links = append(links, link(max(p.Offset-p.Limit, 0), "prev"))
	}
	if p.Offset+p.Limit < p.Total {
		links = append(links, link(p.Offset+p.Limit, "next"))
	}
	last := max((p.Total-1)/p.Limit*p.Limit, 0)
	return append(links, link(last, "last"))
}
