package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernfield/queryden/internal/paginate"
	"github.com/fernfield/queryden/internal/result"
	"github.com/fernfield/queryden/internal/schema"
)

func testVC() schema.Context {
	return schema.Context{Now: testNow}
}

func TestLookupResolvesAndDefaults(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	q, err := eng.Lookup(ctx, testVC(), "Observation", schema.FlavorByUser, map[string]any{
		"user": "mary",
	})
	require.NoError(t, err)
	assert.True(t, q.Valid(), "errors: %v", q.ValidationErrors())

	params := q.Params()
	assert.Equal(t, int64(1), params["user"], "login resolves to id")
	assert.Equal(t, "id", params["order_by"], "declared default applied")
}

func TestLookupAccumulatesValidationErrors(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	q, err := eng.Lookup(ctx, testVC(), "Observation", schema.FlavorByUser, map[string]any{
		"user":       "nobody-here",
		"confidence": "wild",
	})
	require.NoError(t, err, "user input never hard-fails")
	assert.False(t, q.Valid())
	assert.Len(t, q.ValidationErrors(), 2)
}

func TestLookupUnknownEntityIsConfigError(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.Lookup(context.Background(), testVC(), "Spaceship", "", nil)
	require.Error(t, err)
	var cfg *schema.ConfigError
	assert.ErrorAs(t, err, &cfg)
}

func TestLookupAndSaveDeduplicates(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	first, err := eng.LookupAndSave(ctx, testVC(), "Observation", schema.FlavorByUser, map[string]any{
		"user": int64(1),
	})
	require.NoError(t, err)
	require.NotZero(t, first.ID())
	assert.NotEmpty(t, first.Permalink())

	// Explicitly passing a parameter's own default is indistinguishable
	// from omitting it; unknown keys are dropped before identity.
	second, err := eng.LookupAndSave(ctx, testVC(), "Observation", schema.FlavorByUser, map[string]any{
		"user":     int64(1),
		"order_by": "id",
		"bogus":    "ignored",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID(), second.ID())
	assert.Equal(t, int64(1), second.Record().AccessCount)
	assert.Equal(t, first.Record().UpdatedAt, second.Record().UpdatedAt,
		"re-registration must not touch updated_at")
	assert.True(t, first.Definition().Equal(second.Definition()))
}

func TestLookupAndSaveSkipsInvalidDefinitions(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	q, err := eng.LookupAndSave(ctx, testVC(), "Observation", schema.FlavorByUser, map[string]any{
		"user": "nobody-here",
	})
	require.NoError(t, err)
	assert.False(t, q.Valid())
	assert.Zero(t, q.ID(), "invalid queries are not persisted")
}

func TestSafeFind(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	saved, err := eng.LookupAndSave(ctx, testVC(), "Name", schema.FlavorAll, nil)
	require.NoError(t, err)

	found, err := eng.SafeFind(ctx, saved.ID())
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.True(t, saved.Definition().Equal(found.Definition()),
		"restored definition must equal the saved one")

	missing, err := eng.SafeFind(ctx, 99999)
	require.NoError(t, err)
	assert.Nil(t, missing, "unknown id returns nil, not an error")
}

func TestFindByPermalink(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	saved, err := eng.LookupAndSave(ctx, testVC(), "Name", schema.FlavorAll, nil)
	require.NoError(t, err)

	found, err := eng.FindByPermalink(ctx, saved.Permalink())
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, saved.ID(), found.ID())
	assert.Equal(t, int64(1), found.Record().AccessCount, "permalink counts as use")

	none, err := eng.FindByPermalink(ctx, "not-a-token")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestResultIDsOrderingAndIndex(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	all, err := eng.Lookup(ctx, testVC(), "Observation", schema.FlavorAll, nil)
	require.NoError(t, err)
	ids, err := all.ResultIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	byDate, err := eng.Lookup(ctx, testVC(), "Observation", schema.FlavorAll, map[string]any{
		"order_by": "date",
	})
	require.NoError(t, err)
	ids, err = byDate.ResultIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1, 3}, ids, "most recent sighting first")

	n, err := all.NumResults(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	i, ok, err := all.Index(ctx, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, i)
}

func TestFlavorFiltering(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	byUser, err := eng.Lookup(ctx, testVC(), "Observation", schema.FlavorByUser, map[string]any{
		"user": "mary",
	})
	require.NoError(t, err)
	ids, err := byUser.ResultIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids)

	atLoc, err := eng.Lookup(ctx, testVC(), "Observation", schema.FlavorAtLocation, map[string]any{
		"location": int64(1),
	})
	require.NoError(t, err)
	ids, err = atLoc.ResultIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)

	pattern, err := eng.Lookup(ctx, testVC(), "Observation", schema.FlavorPatternSearch, map[string]any{
		"pattern": "oaks",
	})
	require.NoError(t, err)
	ids, err = pattern.ResultIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, ids, "pattern matches notes column")
}

func TestNestedQueryLookupAndExecution(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	q, err := eng.Lookup(ctx, testVC(), "Location", schema.FlavorWithObservations, map[string]any{
		"observation_query": map[string]any{
			"flavor": "by_user",
			"params": map[string]any{"user": "roy"},
		},
	})
	require.NoError(t, err)
	require.True(t, q.Valid(), "errors: %v", q.ValidationErrors())

	ids, err := q.ResultIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids, "roy has observed at Albion only")
}

func TestResultsWithEagerInclude(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	q, err := eng.Lookup(ctx, testVC(), "Observation", schema.FlavorByUser, map[string]any{
		"user": "mary",
	})
	require.NoError(t, err)

	rows, err := q.Results(ctx, "user", "location")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	user, ok := rows[0]["user"].(result.Row)
	require.True(t, ok)
	assert.Equal(t, "mary", user["login"])

	loc, ok := rows[0]["location"].(result.Row)
	require.True(t, ok)
	assert.Equal(t, "Albion, California", loc["name"])

	// Unknown association is a programmer error.
	_, err = q.Instantiate(ctx, []int64{1}, "nonsense")
	require.Error(t, err)
	var cfg *schema.ConfigError
	assert.ErrorAs(t, err, &cfg)
}

func TestPaginationThroughHandle(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	q, err := eng.Lookup(ctx, testVC(), "Observation", schema.FlavorAll, nil)
	require.NoError(t, err)

	p, err := paginate.New(2, 2)
	require.NoError(t, err)
	ids, err := q.PaginateIDs(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, ids)
	assert.Equal(t, 3, p.NumTotal())
	assert.Equal(t, 2, p.NumPages())
}

func TestLetterPaginationThroughHandle(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	q, err := eng.Lookup(ctx, testVC(), "Name", schema.FlavorAll, nil)
	require.NoError(t, err)

	p, err := paginate.New(1, 10)
	require.NoError(t, err)
	p.Letter = "A"
	p.NeedLetters = true

	ids, err := q.PaginateIDs(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1}, ids, "names sort by text_name within the A bucket")
	assert.Equal(t, []string{"A", "B"}, p.UsedLetters())
	assert.Equal(t, 2, p.NumTotal())
}

func TestCursorNavigationPersists(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	q, err := eng.LookupAndSave(ctx, testVC(), "Observation", schema.FlavorAll, nil)
	require.NoError(t, err)

	id, ok, err := q.First(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), id)

	id, ok, err = q.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), id)

	// A fresh handle for the same record resumes where we left off.
	reloaded, err := eng.SafeFind(ctx, q.ID())
	require.NoError(t, err)
	require.NotNil(t, reloaded)
	cur, set := reloaded.CurrentID()
	assert.True(t, set)
	assert.Equal(t, int64(2), cur)

	// And reset on the reloaded handle stays at its loaded position.
	_, _, err = reloaded.Last(ctx)
	require.NoError(t, err)
	require.NoError(t, reloaded.Reset(ctx))
	cur, _ = reloaded.CurrentID()
	assert.Equal(t, int64(2), cur)
}

func TestSubqueryOfExecutes(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	obs, err := eng.Lookup(ctx, testVC(), "Observation", schema.FlavorByUser, map[string]any{
		"user": "mary",
	})
	require.NoError(t, err)
	require.True(t, obs.Relatable("Location"))

	locDef := obs.SubqueryOf("Location")
	require.NotNil(t, locDef)

	loc, err := eng.Save(ctx, locDef)
	require.NoError(t, err)
	ids, err := loc.ResultIDs(ctx)
	require.NoError(t, err)
	// Mary's collection-location observation is at Albion only; her
	// Burbank observation is not a collection location.
	assert.Equal(t, []int64{1}, ids)

	// Round trip back to the original definition.
	back := loc.Uncoerce()
	require.NotNil(t, back)
	assert.True(t, obs.Definition().Equal(back))

	assert.Nil(t, obs.SubqueryOf("User"))
	assert.False(t, obs.Relatable("User"))
}

func TestClearCacheReexecutes(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()

	q, err := eng.Lookup(ctx, testVC(), "Observation", schema.FlavorAll, nil)
	require.NoError(t, err)

	ids, err := q.ResultIDs(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 3)

	_, err = s.DB().Exec(
		`INSERT INTO observations (id, name_text, notes, created_at, updated_at)
		 VALUES (4, 'Coprinus comatus', '', ?, ?)`, seedStamp, seedStamp)
	require.NoError(t, err)

	// Memoized: the new row is invisible until the cache is cleared.
	ids, err = q.ResultIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	q.ClearCache()
	ids, err = q.ResultIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 4)
}

func TestCleanupThroughEngine(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()

	// Saved at testNow: too fresh to collect.
	_, err := eng.LookupAndSave(ctx, testVC(), "Name", schema.FlavorAll, nil)
	require.NoError(t, err)

	n, err := eng.Cleanup(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Age the row beyond the unused window.
	_, err = s.DB().Exec(`UPDATE queries SET accessed_at = '2026-08-31 09:00:00'`)
	require.NoError(t, err)

	n, err = eng.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
