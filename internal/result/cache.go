// Package result memoizes the outcome of executing a query: the ordered
// id list and the hydrated records behind those ids. A query's results
// are fetched at most once per cache lifetime; records are cached by
// identity so repeated instantiation of the same id yields the same
// value.
package result

import (
	"context"
	"fmt"
)

// Row is one hydrated record, keyed by column name. The "id" column is
// always present.
type Row map[string]any

// ID returns the row's id.
func (r Row) ID() (int64, bool) {
	switch v := r["id"].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// Executor produces the ordered id list for a query. Implemented by the
// engine over the compiled SQL.
type Executor interface {
	IDs(ctx context.Context) ([]int64, error)
}

// Hydrator fetches full records for a set of ids, honoring eager-include
// hints for associated records. Order of the returned map is irrelevant;
// the cache reassembles request order itself.
type Hydrator interface {
	FetchRows(ctx context.Context, ids []int64, include []string) (map[int64]Row, error)
}

// Cache memoizes ids and hydrated rows for one query.
//
// Not safe for concurrent use; a cache belongs to the single flow of
// control working through a query's results.
type Cache struct {
	exec Executor
	hyd  Hydrator

	ids       []int64
	idsLoaded bool
	rows      map[int64]Row
}

// New creates an empty cache over the given executor and hydrator.
func New(exec Executor, hyd Hydrator) *Cache {
	return &Cache{exec: exec, hyd: hyd, rows: make(map[int64]Row)}
}

// IDs returns the query's ordered result ids, executing the query on
// first call and the memo thereafter. Callers must not mutate the
// returned slice.
func (c *Cache) IDs(ctx context.Context) ([]int64, error) {
	if !c.idsLoaded {
		ids, err := c.exec.IDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("load result ids: %w", err)
		}
		c.ids = ids
		c.idsLoaded = true
	}
	return c.ids, nil
}

// NumResults returns the result count, loading ids if needed.
func (c *Cache) NumResults(ctx context.Context) (int, error) {
	ids, err := c.IDs(ctx)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Index returns the zero-based position of id in the results, or ok
// false when the id is not a result.
func (c *Cache) Index(ctx context.Context, id int64) (int, bool, error) {
	ids, err := c.IDs(ctx)
	if err != nil {
		return 0, false, err
	}
	for i, got := range ids {
		if got == id {
			return i, true, nil
		}
	}
	return 0, false, nil
}

// Instantiate returns hydrated rows for the given ids, in the given
// order. Ids already hydrated are served from cache, including when they
// were cached without the include hints now requested; fetch happens only
// for the rest. Ids that match no record are skipped.
func (c *Cache) Instantiate(ctx context.Context, ids []int64, include ...string) ([]Row, error) {
	var missing []int64
	for _, id := range ids {
		if _, ok := c.rows[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		fetched, err := c.hyd.FetchRows(ctx, missing, include)
		if err != nil {
			return nil, fmt.Errorf("instantiate results: %w", err)
		}
		for id, row := range fetched {
			c.rows[id] = row
		}
	}

	out := make([]Row, 0, len(ids))
	for _, id := range ids {
		if row, ok := c.rows[id]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

// Results returns every result hydrated, in result order.
func (c *Cache) Results(ctx context.Context, include ...string) ([]Row, error) {
	ids, err := c.IDs(ctx)
	if err != nil {
		return nil, err
	}
	return c.Instantiate(ctx, ids, include...)
}

// ClearCache drops both the id memo and the hydrated rows. The next
// access re-executes the query.
func (c *Cache) ClearCache() {
	c.ids = nil
	c.idsLoaded = false
	c.rows = make(map[int64]Row)
}

// SetIDs warm-starts the id memo, for callers that already know the
// result list and want to skip execution.
func (c *Cache) SetIDs(ids []int64) {
	c.ids = ids
	c.idsLoaded = true
}

// SetRows warm-starts both memos from already-hydrated rows, preserving
// their order as the result order. Rows without an id are ignored.
func (c *Cache) SetRows(rows []Row) {
	ids := make([]int64, 0, len(rows))
	cache := make(map[int64]Row, len(rows))
	for _, row := range rows {
		id, ok := row.ID()
		if !ok {
			continue
		}
		ids = append(ids, id)
		cache[id] = row
	}
	c.ids = ids
	c.idsLoaded = true
	c.rows = cache
}
