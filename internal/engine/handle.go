package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/fernfield/queryden/internal/cursor"
	"github.com/fernfield/queryden/internal/paginate"
	"github.com/fernfield/queryden/internal/query"
	"github.com/fernfield/queryden/internal/result"
	"github.com/fernfield/queryden/internal/schema"
	"github.com/fernfield/queryden/internal/store"
)

// Query is a request-scoped handle over one definition: execution,
// caching, pagination, sequence navigation and coercion. Handles for
// persisted queries additionally carry the registry record and persist
// cursor movement; unpersisted handles navigate in memory only.
type Query struct {
	eng   *Engine
	def   *query.Definition
	rec   *store.Record
	cache *result.Cache
	cur   *cursor.Cursor
}

func (e *Engine) newHandle(def *query.Definition, rec *store.Record) *Query {
	q := &Query{eng: e, def: def, rec: rec}
	q.cache = result.New(&executor{eng: e, def: def}, &hydrator{eng: e, def: def})

	var loaded *int64
	var persist cursor.Persister
	if rec != nil {
		if rec.CurrentID.Valid {
			v := rec.CurrentID.Int64
			loaded = &v
		}
		id := rec.ID
		persist = func(ctx context.Context, pos *int64) error {
			return e.store.SetCurrentID(ctx, id, pos)
		}
	}
	q.cur = cursor.New(q.cache, loaded, persist)
	return q
}

// Definition returns the validated definition behind the handle.
func (q *Query) Definition() *query.Definition { return q.def }

// Record returns the registry record, nil for unpersisted handles.
func (q *Query) Record() *store.Record { return q.rec }

// ID returns the registry row id, 0 when unpersisted.
func (q *Query) ID() int64 {
	if q.rec == nil {
		return 0
	}
	return q.rec.ID
}

// Permalink returns the share token, empty when unpersisted.
func (q *Query) Permalink() string {
	if q.rec == nil {
		return ""
	}
	return q.rec.Permalink
}

// Model returns the queried entity type.
func (q *Query) Model() schema.EntityType { return q.def.Model() }

// Flavor returns the query shape.
func (q *Query) Flavor() schema.Flavor { return q.def.Flavor() }

// Params returns a read-only snapshot of the normalized params.
func (q *Query) Params() map[string]any { return q.def.Params() }

// Valid reports whether validation recorded no errors.
func (q *Query) Valid() bool { return q.def.Valid() }

// ValidationErrors returns the accumulated user-facing messages.
func (q *Query) ValidationErrors() []string { return q.def.ValidationErrors() }

// ResultIDs executes the query on first call and the memo thereafter.
func (q *Query) ResultIDs(ctx context.Context) ([]int64, error) {
	return q.cache.IDs(ctx)
}

// NumResults returns the result count.
func (q *Query) NumResults(ctx context.Context) (int, error) {
	return q.cache.NumResults(ctx)
}

// Index returns the zero-based position of id among the results.
func (q *Query) Index(ctx context.Context, id int64) (int, bool, error) {
	return q.cache.Index(ctx, id)
}

// Results hydrates every result, in order.
func (q *Query) Results(ctx context.Context, include ...string) ([]result.Row, error) {
	return q.cache.Results(ctx, include...)
}

// Instantiate hydrates a subset of ids in the given order, optionally
// eager-loading the named associations on the rows fetched by this call.
func (q *Query) Instantiate(ctx context.Context, ids []int64, include ...string) ([]result.Row, error) {
	return q.cache.Instantiate(ctx, ids, include...)
}

// ClearCache drops memoized ids and rows; the next read re-executes.
func (q *Query) ClearCache() { q.cache.ClearCache() }

// SetResultIDs warm-starts the id memo from an external cache.
func (q *Query) SetResultIDs(ids []int64) { q.cache.SetIDs(ids) }

// SetResults warm-starts ids and hydrated rows from an external cache.
func (q *Query) SetResults(rows []result.Row) { q.cache.SetRows(rows) }

// PaginateIDs returns the ids on the requested page. Letter-aware
// requests fetch (id, sort key) pairs; plain numeric ones page the
// cached id list.
func (q *Query) PaginateIDs(ctx context.Context, p *paginate.Pages) ([]int64, error) {
	if p.Letter == "" && !p.NeedLetters {
		ids, err := q.cache.IDs(ctx)
		if err != nil {
			return nil, err
		}
		return paginate.IDs(ids, p), nil
	}

	sql, args, err := q.eng.compiler.SelectIDsWithSortKey(q.def)
	if err != nil {
		return nil, err
	}
	pairs, err := q.eng.store.SelectIDSortKeys(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	entries := make([]paginate.Entry, len(pairs))
	for i, pair := range pairs {
		entries[i] = paginate.Entry{ID: pair.ID, SortKey: pair.SortKey}
	}
	return paginate.Paginate(entries, p), nil
}

// Paginate returns the hydrated page.
func (q *Query) Paginate(ctx context.Context, p *paginate.Pages, include ...string) ([]result.Row, error) {
	ids, err := q.PaginateIDs(ctx, p)
	if err != nil {
		return nil, err
	}
	return q.cache.Instantiate(ctx, ids, include...)
}

// CurrentID returns the cursor position, ok false when unset.
func (q *Query) CurrentID() (int64, bool) { return q.cur.CurrentID() }

// SetCurrentID positions the cursor without checking membership.
func (q *Query) SetCurrentID(ctx context.Context, id int64) error {
	return q.cur.SetCurrentID(ctx, id)
}

// Current returns the hydrated row at the cursor position, ok false
// when the cursor is unset or the id is no longer in the results.
func (q *Query) Current(ctx context.Context, include ...string) (result.Row, bool, error) {
	id, set := q.cur.CurrentID()
	if !set {
		return nil, false, nil
	}
	rows, err := q.cache.Instantiate(ctx, []int64{id}, include...)
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0], true, nil
}

// SetCurrent positions the cursor at the given row.
func (q *Query) SetCurrent(ctx context.Context, row result.Row) error {
	id, ok := row.ID()
	if !ok {
		return schema.Configf("row has no id")
	}
	return q.cur.SetCurrentID(ctx, id)
}

// Next advances the cursor; false at the end or from unset.
func (q *Query) Next(ctx context.Context) (int64, bool, error) { return q.cur.Next(ctx) }

// Prev steps the cursor back; false at the start or from unset.
func (q *Query) Prev(ctx context.Context) (int64, bool, error) { return q.cur.Prev(ctx) }

// First jumps to the first result.
func (q *Query) First(ctx context.Context) (int64, bool, error) { return q.cur.First(ctx) }

// Last jumps to the final result.
func (q *Query) Last(ctx context.Context) (int64, bool, error) { return q.cur.Last(ctx) }

// Reset returns the cursor to the position it held when this handle was
// loaded.
func (q *Query) Reset(ctx context.Context) error { return q.cur.Reset(ctx) }

// SubqueryOf coerces the definition onto target, or nil when the query
// has no equivalent there. The result is a bare definition; pass it to
// Save to execute or persist it.
func (q *Query) SubqueryOf(target schema.EntityType) *query.Definition {
	return q.eng.registry.Coerce(q.def, target)
}

// Relatable reports whether SubqueryOf(target) would succeed.
func (q *Query) Relatable(target schema.EntityType) bool {
	return q.eng.registry.Relatable(q.def, target)
}

// Uncoerce recovers the original definition from a coerced one, or nil.
func (q *Query) Uncoerce() *query.Definition {
	return q.eng.registry.Uncoerce(q.def)
}

// executor runs the compiled id query for one definition.
type executor struct {
	eng *Engine
	def *query.Definition
}

func (x *executor) IDs(ctx context.Context) ([]int64, error) {
	sql, args, err := x.eng.compiler.SelectIDs(x.def)
	if err != nil {
		return nil, err
	}
	ids, err := x.eng.store.SelectIDs(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	x.eng.logger.Debug("query executed", "query", x.def.String(), "results", len(ids))
	return ids, nil
}

// hydrator fetches full rows for one definition's entity table, with
// optional eager loading of declared associations.
type hydrator struct {
	eng *Engine
	def *query.Definition
}

func (h *hydrator) FetchRows(ctx context.Context, ids []int64, include []string) (map[int64]result.Row, error) {
	ent, err := h.eng.cat.Entity(h.def.Model())
	if err != nil {
		return nil, err
	}

	rows, err := h.selectByIDs(ctx, ent.Table, ids)
	if err != nil {
		return nil, err
	}

	out := make(map[int64]result.Row, len(rows))
	for _, row := range rows {
		r := result.Row(row)
		if id, ok := r.ID(); ok {
			out[id] = r
		}
	}

	for _, name := range include {
		assoc, declared := ent.Associations[name]
		if !declared {
			return nil, schema.Configf("entity %s has no association %q", ent.Name, name)
		}
		if err := h.attach(ctx, out, name, assoc.Table, assoc.FK); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// attach eager-loads one association: gathers the foreign keys across
// the fetched rows, fetches the associated rows in one query, and hangs
// each off its parent under the association name.
func (h *hydrator) attach(ctx context.Context, rows map[int64]result.Row, name, table, fk string) error {
	var fks []int64
	seen := make(map[int64]bool)
	for _, row := range rows {
		id, ok := row[fk].(int64)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		fks = append(fks, id)
	}
	if len(fks) == 0 {
		return nil
	}

	assocRows, err := h.selectByIDs(ctx, table, fks)
	if err != nil {
		return err
	}
	byID := make(map[int64]result.Row, len(assocRows))
	for _, row := range assocRows {
		r := result.Row(row)
		if id, ok := r.ID(); ok {
			byID[id] = r
		}
	}

	for _, row := range rows {
		if id, ok := row[fk].(int64); ok {
			if assoc, found := byID[id]; found {
				row[name] = assoc
			}
		}
	}
	return nil
}

func (h *hydrator) selectByIDs(ctx context.Context, table string, ids []int64) ([]map[string]any, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	q := fmt.Sprintf("SELECT * FROM %s WHERE id IN (%s)",
		table, strings.Join(placeholders, ", "))
	return h.eng.store.SelectRows(ctx, q, args...)
}
