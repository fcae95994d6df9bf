// Package cursor implements sequence navigation over a query's ordered
// result ids: a persisted position plus next/prev/first/last/reset moves.
//
// The cursor is positional against whatever the result ids are right now.
// If the underlying data changed since the position was saved, a move
// lands relative to the current ordering; the position is not corrected
// against older orderings.
package cursor

import (
	"context"
	"fmt"
)

// IDSource yields the current ordered result ids. Satisfied by the
// result cache.
type IDSource interface {
	IDs(ctx context.Context) ([]int64, error)
}

// Persister saves a position change so navigation survives across
// requests. nil clears the stored position.
type Persister func(ctx context.Context, id *int64) error

// Cursor navigates one query's result list.
type Cursor struct {
	src     IDSource
	persist Persister

	current *int64
	loaded  *int64 // position at construction, the Reset target
}

// New builds a cursor positioned at loaded (nil = unset). loaded is
// remembered as the Reset target for the cursor's lifetime.
func New(src IDSource, loaded *int64, persist Persister) *Cursor {
	c := &Cursor{src: src, persist: persist}
	if loaded != nil {
		v := *loaded
		c.current = &v
		w := *loaded
		c.loaded = &w
	}
	return c
}

// CurrentID returns the position, ok false when unset.
func (c *Cursor) CurrentID() (int64, bool) {
	if c.current == nil {
		return 0, false
	}
	return *c.current, true
}

// SetCurrentID positions the cursor at id without checking membership in
// the result set, and persists the move.
func (c *Cursor) SetCurrentID(ctx context.Context, id int64) error {
	return c.moveTo(ctx, &id)
}

// Next advances one position. Returns the new id and true, or false with
// no movement when already at the end or unset.
func (c *Cursor) Next(ctx context.Context) (int64, bool, error) {
	return c.step(ctx, +1)
}

// Prev steps back one position. Returns false with no movement at the
// start or when unset.
func (c *Cursor) Prev(ctx context.Context) (int64, bool, error) {
	return c.step(ctx, -1)
}

// First jumps to the first result, from any state. False when the result
// set is empty.
func (c *Cursor) First(ctx context.Context) (int64, bool, error) {
	return c.jump(ctx, 0)
}

// Last jumps to the final result, from any state. False when the result
// set is empty.
func (c *Cursor) Last(ctx context.Context) (int64, bool, error) {
	return c.jump(ctx, -1)
}

// Reset returns to the position held when the cursor was constructed,
// undoing this request's navigation, and persists it.
func (c *Cursor) Reset(ctx context.Context) error {
	if c.loaded == nil {
		return c.moveTo(ctx, nil)
	}
	v := *c.loaded
	return c.moveTo(ctx, &v)
}

func (c *Cursor) step(ctx context.Context, delta int) (int64, bool, error) {
	if c.current == nil {
		return 0, false, nil
	}
	ids, err := c.src.IDs(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("cursor step: %w", err)
	}
	i := indexOf(ids, *c.current)
	if i < 0 {
		return 0, false, nil
	}
	j := i + delta
	if j < 0 || j >= len(ids) {
		return 0, false, nil
	}
	if err := c.moveTo(ctx, &ids[j]); err != nil {
		return 0, false, err
	}
	return ids[j], true, nil
}

func (c *Cursor) jump(ctx context.Context, pos int) (int64, bool, error) {
	ids, err := c.src.IDs(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("cursor jump: %w", err)
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	if pos < 0 {
		pos = len(ids) - 1
	}
	if err := c.moveTo(ctx, &ids[pos]); err != nil {
		return 0, false, err
	}
	return ids[pos], true, nil
}

func (c *Cursor) moveTo(ctx context.Context, id *int64) error {
	var v *int64
	if id != nil {
		w := *id
		v = &w
	}
	if c.persist != nil {
		if err := c.persist(ctx, v); err != nil {
			return fmt.Errorf("persist cursor: %w", err)
		}
	}
	c.current = v
	return nil
}

func indexOf(ids []int64, id int64) int {
	for i, got := range ids {
		if got == id {
			return i
		}
	}
	return -1
}
