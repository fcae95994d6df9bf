package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/fernfield/queryden/internal/schema"
	"github.com/fernfield/queryden/internal/store"
)

// tableResolver resolves reference params against one entity's table:
// ids by existence, strings by the entity's declared name columns.
type tableResolver struct {
	store       *store.Store
	table       string
	nameColumns []string
}

func (r *tableResolver) ExistsID(ctx context.Context, id int64) (bool, error) {
	var n int
	err := r.store.DB().QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE id = ?", r.table), id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("resolve id in %s: %w", r.table, err)
	}
	return n > 0, nil
}

func (r *tableResolver) ResolveName(ctx context.Context, name string) ([]int64, error) {
	if len(r.nameColumns) == 0 {
		return nil, nil
	}
	conds := make([]string, len(r.nameColumns))
	args := make([]any, len(r.nameColumns))
	for i, col := range r.nameColumns {
		conds[i] = fmt.Sprintf("%s = ? COLLATE NOCASE", col)
		args[i] = name
	}
	q := fmt.Sprintf("SELECT id FROM %s WHERE %s ORDER BY id ASC",
		r.table, strings.Join(conds, " OR "))

	ids, err := r.store.SelectIDs(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("resolve name in %s: %w", r.table, err)
	}
	return ids, nil
}

// resolvers builds a Resolver per catalog entity. Entities without name
// columns still resolve by id; a name string against them never matches.
func (e *Engine) resolvers() schema.Resolvers {
	out := make(schema.Resolvers)
	for _, typ := range e.cat.Types() {
		ent, err := e.cat.Entity(typ)
		if err != nil {
			continue
		}
		out[typ] = &tableResolver{
			store:       e.store,
			table:       ent.Table,
			nameColumns: ent.NameColumns,
		}
	}
	return out
}
