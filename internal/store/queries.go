package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// timeLayout is how timestamps are stored: UTC, second precision, sorts
// lexicographically.
const timeLayout = "2006-01-02 15:04:05"

// Cleanup retention windows. A query nobody ever came back to is garbage
// after an hour; one that was re-used sticks around for a day after its
// last access.
const (
	unusedTTL = time.Hour
	usedTTL   = 24 * time.Hour
)

// Record is one row of the query registry.
type Record struct {
	ID          int64
	Model       string
	Flavor      string
	Serialized  string
	Fingerprint string
	Permalink   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	AccessedAt  time.Time
	AccessCount int64
	CurrentID   sql.NullInt64
}

const recordColumns = `id, model, flavor, serialized, fingerprint, permalink,
	created_at, updated_at, accessed_at, access_count, current_id`

// FindOrCreate registers a query, or bumps the access count of the row
// already holding its fingerprint. Returns the row and whether it was
// newly created.
//
// Uses ON CONFLICT(fingerprint) DO UPDATE so concurrent lookups of the
// same query race safely to a single row. A conflict bumps access_count
// and accessed_at only; created_at and updated_at never change on
// re-access, so they keep describing the query itself rather than its
// traffic.
func (s *Store) FindOrCreate(ctx context.Context, model, flavor, serialized, fingerprint string, now time.Time) (*Record, bool, error) {
	stamp := formatTime(now)
	permalink := uuid.Must(uuid.NewV7()).String()

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO queries
		(model, flavor, serialized, fingerprint, permalink,
		 created_at, updated_at, accessed_at, access_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(fingerprint) DO UPDATE SET
			access_count = access_count + 1,
			accessed_at = excluded.accessed_at
		RETURNING `+recordColumns,
		model, flavor, serialized, fingerprint, permalink,
		stamp, stamp, stamp,
	)

	rec, err := scanRecord(row)
	if err != nil {
		return nil, false, fmt.Errorf("find or create query: %w", err)
	}
	return rec, rec.AccessCount == 0, nil
}

// FindByFingerprint returns the registered query with the given
// fingerprint, or nil if none exists. Does not touch access stats.
func (s *Store) FindByFingerprint(ctx context.Context, fingerprint string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM queries WHERE fingerprint = ?`, fingerprint)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find query by fingerprint: %w", err)
	}
	return rec, nil
}

// FindByID returns the registered query with the given id, or nil.
func (s *Store) FindByID(ctx context.Context, id int64) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM queries WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find query by id: %w", err)
	}
	return rec, nil
}

// FindByPermalink returns the registered query with the given share
// token, or nil. Bumps access stats: following a permalink counts as use.
func (s *Store) FindByPermalink(ctx context.Context, permalink string, now time.Time) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE queries
		SET access_count = access_count + 1, accessed_at = ?
		WHERE permalink = ?
		RETURNING `+recordColumns,
		formatTime(now), permalink,
	)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find query by permalink: %w", err)
	}
	return rec, nil
}

// SetCurrentID persists the query's sequence position. Pass nil to clear
// it. Deliberately leaves updated_at alone: moving through results does
// not modify the query.
func (s *Store) SetCurrentID(ctx context.Context, queryID int64, currentID *int64) error {
	var v sql.NullInt64
	if currentID != nil {
		v = sql.NullInt64{Int64: *currentID, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE queries SET current_id = ? WHERE id = ?`, v, queryID)
	if err != nil {
		return fmt.Errorf("set current id: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set current id: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("set current id: query %d not registered", queryID)
	}
	return nil
}

// Cleanup deletes stale registry rows: queries never re-accessed after
// unusedTTL, and any query untouched for usedTTL. Returns the number of
// rows removed.
func (s *Store) Cleanup(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM queries
		WHERE accessed_at < ?
		   OR (access_count = 0 AND accessed_at < ?)
	`,
		formatTime(now.Add(-usedTTL)),
		formatTime(now.Add(-unusedTTL)),
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup queries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup queries: rows affected: %w", err)
	}
	return n, nil
}

// Count returns the number of registered queries. Used by tests and the
// gc command's reporting.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count queries: %w", err)
	}
	return n, nil
}

func scanRecord(row *sql.Row) (*Record, error) {
	var rec Record
	var created, updated, accessed string
	err := row.Scan(
		&rec.ID, &rec.Model, &rec.Flavor, &rec.Serialized,
		&rec.Fingerprint, &rec.Permalink,
		&created, &updated, &accessed,
		&rec.AccessCount, &rec.CurrentID,
	)
	if err != nil {
		return nil, err
	}
	if rec.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	if rec.AccessedAt, err = parseTime(accessed); err != nil {
		return nil, err
	}
	return &rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad stored timestamp %q: %w", s, err)
	}
	return t, nil
}
