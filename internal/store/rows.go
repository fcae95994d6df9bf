package store

import (
	"context"
	"database/sql"
	"fmt"
)

// IDSortKey pairs a row id with the value of its sort column, as selected
// by the letter-paging variant of a compiled query.
type IDSortKey struct {
	ID      int64
	SortKey string
}

// SelectIDs runs a compiled id query and returns the ordered id list.
func (s *Store) SelectIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("select ids: scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select ids: %w", err)
	}
	return ids, nil
}

// SelectIDSortKeys runs a compiled (id, sort key) query, preserving order.
// A NULL sort key scans as the empty string.
func (s *Store) SelectIDSortKeys(ctx context.Context, query string, args ...any) ([]IDSortKey, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select id sort keys: %w", err)
	}
	defer rows.Close()

	var out []IDSortKey
	for rows.Next() {
		var id int64
		var key sql.NullString
		if err := rows.Scan(&id, &key); err != nil {
			return nil, fmt.Errorf("select id sort keys: scan: %w", err)
		}
		out = append(out, IDSortKey{ID: id, SortKey: key.String})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select id sort keys: %w", err)
	}
	return out, nil
}

// SelectRows runs an arbitrary query and returns each row as a column
// name to value map. Used for hydration, where the column set depends on
// the entity's table.
func (s *Store) SelectRows(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select rows: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("select rows: columns: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("select rows: scan: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			v := vals[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select rows: %w", err)
	}
	return out, nil
}
