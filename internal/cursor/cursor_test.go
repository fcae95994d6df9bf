package cursor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedIDs []int64

func (f fixedIDs) IDs(ctx context.Context) ([]int64, error) { return f, nil }

type persistLog struct {
	saved []*int64
}

func (p *persistLog) persist(ctx context.Context, id *int64) error {
	var v *int64
	if id != nil {
		w := *id
		v = &w
	}
	p.saved = append(p.saved, v)
	return nil
}

func ptr(v int64) *int64 { return &v }

func TestNextPrevWalk(t *testing.T) {
	ctx := context.Background()
	c := New(fixedIDs{10, 20, 30}, ptr(10), nil)

	id, ok, err := c.Next(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(20), id)

	id, ok, err = c.Next(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(30), id)

	// At the end: no wraparound, no movement.
	_, ok, err = c.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	cur, set := c.CurrentID()
	assert.True(t, set)
	assert.Equal(t, int64(30), cur)

	id, ok, err = c.Prev(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(20), id)
}

func TestPrevStopsAtStart(t *testing.T) {
	ctx := context.Background()
	c := New(fixedIDs{10, 20, 30}, ptr(10), nil)

	_, ok, err := c.Prev(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	cur, _ := c.CurrentID()
	assert.Equal(t, int64(10), cur)
}

func TestStepFromUnsetIsFalsy(t *testing.T) {
	ctx := context.Background()
	c := New(fixedIDs{10, 20}, nil, nil)

	_, ok, err := c.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = c.Prev(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	_, set := c.CurrentID()
	assert.False(t, set)
}

func TestFirstAndLastWorkFromAnyState(t *testing.T) {
	ctx := context.Background()
	c := New(fixedIDs{10, 20, 30}, nil, nil)

	id, ok, err := c.First(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(10), id)

	id, ok, err = c.Last(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(30), id)

	// Idempotent.
	id, ok, err = c.Last(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(30), id)
}

func TestFirstThenNextReachesLast(t *testing.T) {
	ctx := context.Background()
	ids := fixedIDs{4, 8, 15, 16, 23, 42}
	c := New(ids, nil, nil)

	_, _, err := c.First(ctx)
	require.NoError(t, err)
	for i := 0; i < len(ids)-1; i++ {
		_, ok, err := c.Next(ctx)
		require.NoError(t, err)
		require.True(t, ok)
	}
	viaNext, _ := c.CurrentID()

	_, _, err = c.Last(ctx)
	require.NoError(t, err)
	viaLast, _ := c.CurrentID()
	assert.Equal(t, viaLast, viaNext)
}

func TestEmptySet(t *testing.T) {
	ctx := context.Background()
	c := New(fixedIDs{}, nil, nil)

	_, ok, err := c.First(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = c.Last(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetCurrentIDSkipsMembershipCheck(t *testing.T) {
	ctx := context.Background()
	c := New(fixedIDs{10, 20}, nil, nil)

	require.NoError(t, c.SetCurrentID(ctx, 999))
	cur, set := c.CurrentID()
	assert.True(t, set)
	assert.Equal(t, int64(999), cur)

	// Positioned at a vanished id: steps are falsy, jumps still work.
	_, ok, err := c.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	id, ok, err := c.First(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(10), id)
}

func TestResetUndoesNavigation(t *testing.T) {
	ctx := context.Background()
	c := New(fixedIDs{10, 20, 30}, ptr(20), nil)

	_, _, err := c.Last(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Reset(ctx))
	cur, set := c.CurrentID()
	assert.True(t, set)
	assert.Equal(t, int64(20), cur, "reset returns to the loaded position, not index 0")

	unset := New(fixedIDs{10, 20, 30}, nil, nil)
	_, _, err = unset.First(ctx)
	require.NoError(t, err)
	require.NoError(t, unset.Reset(ctx))
	_, set = unset.CurrentID()
	assert.False(t, set, "reset of an initially-unset cursor clears it")
}

func TestEveryMovePersists(t *testing.T) {
	ctx := context.Background()
	log := &persistLog{}
	c := New(fixedIDs{10, 20, 30}, ptr(10), log.persist)

	_, _, err := c.Next(ctx)
	require.NoError(t, err)
	_, _, err = c.Last(ctx)
	require.NoError(t, err)
	require.NoError(t, c.SetCurrentID(ctx, 20))
	require.NoError(t, c.Reset(ctx))

	require.Len(t, log.saved, 4)
	assert.Equal(t, int64(20), *log.saved[0])
	assert.Equal(t, int64(30), *log.saved[1])
	assert.Equal(t, int64(20), *log.saved[2])
	assert.Equal(t, int64(10), *log.saved[3])
}

func TestFailedStepAtBoundaryDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	log := &persistLog{}
	c := New(fixedIDs{10}, ptr(10), log.persist)

	_, ok, err := c.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, log.saved)
}
