// Package connector defines catalog connectors: adapters that read a remote
// catalog service and produce layer groups and layer configs for the library.
package connector

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/leia-project/viewer-sub001/internal/library"
)

// Data is what a connector contributes to the library.
type Data struct {
	Groups       []*library.LayerConfigGroup
	LayerConfigs []*library.LayerConfig
}

// Connector produces catalog data. GetData is memoised after the first
// success and safe for concurrent use.
type Connector interface {
	Name() string
	GetData(ctx context.Context) (*Data, error)
}

// Memo caches the result of a fetch. Concurrent callers before the first
// success share one in-flight fetch; failures are not cached.
type Memo struct {
	fetch func(ctx context.Context) (*Data, error)
	group singleflight.Group

	mu   sync.Mutex
	data *Data
}

// NewMemo wraps fetch.
func NewMemo(fetch func(ctx context.Context) (*Data, error)) *Memo {
	return &Memo{fetch: fetch}
}

// Get returns the cached data or runs (or joins) the fetch. The shared fetch
// keeps the values of the caller that started it but not its cancellation;
// each caller stops waiting when its own ctx is done.
func (m *Memo) Get(ctx context.Context) (*Data, error) {
	if d := m.cached(); d != nil {
		return d, nil
	}

	ch := m.group.DoChan("data", func() (any, error) {
		if d := m.cached(); d != nil {
			return d, nil
		}
		d, err := m.fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.data = d
		m.mu.Unlock()
		return d, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Data), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Memo) cached() *Data {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data
}

// FilterDuplicates returns the configs of next whose ID is neither in
// existing nor earlier in next. First seen wins.
func FilterDuplicates(next, existing []*library.LayerConfig) []*library.LayerConfig {
	seen := make(map[string]struct{}, len(existing)+len(next))
	for _, c := range existing {
		seen[c.ID] = struct{}{}
	}

	var out []*library.LayerConfig
	for _, c := range next {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}

// FetchAll calls GetData on every connector concurrently and returns the
// results in connector order. The first error cancels the rest.
func FetchAll(ctx context.Context, connectors ...Connector) ([]*Data, error) {
	results := make([]*Data, len(connectors))
	g, ctx := errgroup.WithContext(ctx)
	for i, c := range connectors {
		g.Go(func() error {
			d, err := c.GetData(ctx)
			if err != nil {
				return &SourceError{Source: c.Name(), Err: err}
			}
			results[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Ingest adds the groups, then the configs, of every result to lib.
// lib must not be used concurrently while Ingest runs.
func Ingest(lib *library.LayerLibrary, results ...*Data) {
	for _, d := range results {
		if d == nil {
			continue
		}
		lib.AddLayerConfigGroups(d.Groups)
		lib.AddLayerConfigs(d.LayerConfigs)
	}
}

// LoadAll fetches every connector and ingests the results into lib in
// connector order. Nothing is ingested if any connector fails.
func LoadAll(ctx context.Context, lib *library.LayerLibrary, connectors ...Connector) error {
	results, err := FetchAll(ctx, connectors...)
	if err != nil {
		return err
	}
	Ingest(lib, results...)
	return nil
}

// SourceError names the connector a failure came from.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string { return e.Source + ": " + e.Err.Error() }
func (e *SourceError) Unwrap() error { return e.Err }
