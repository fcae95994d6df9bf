package sqlgen

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernfield/queryden/internal/catalog"
	"github.com/fernfield/queryden/internal/query"
	"github.com/fernfield/queryden/internal/qval"
	"github.com/fernfield/queryden/internal/schema"
)

func newCompiler(t *testing.T) *Compiler {
	t.Helper()
	cat, err := catalog.Load()
	require.NoError(t, err)
	return New(cat)
}

func def(model schema.EntityType, flavor schema.Flavor, params qval.Object) *query.Definition {
	return query.New(model, flavor, params, nil)
}

func TestSelectIDsAlwaysOrdered(t *testing.T) {
	c := newCompiler(t)

	sql, args, err := c.SelectIDs(def("Observation", schema.FlavorAll, nil))
	require.NoError(t, err)
	assert.Empty(t, args)
	assert.Contains(t, sql, "ORDER BY")
	assert.True(t, strings.HasSuffix(sql, "observations.id ASC"))
}

func TestSelectIDsByUser(t *testing.T) {
	c := newCompiler(t)

	sql, args, err := c.SelectIDs(def("Observation", schema.FlavorByUser, qval.Object{
		"user":     qval.Int(3),
		"order_by": qval.String("id"),
	}))
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT observations.id FROM observations WHERE observations.user_id = ? ORDER BY observations.id ASC",
		sql)
	assert.Equal(t, []any{int64(3)}, args)
}

func TestSelectIDsParamOrderIsStable(t *testing.T) {
	c := newCompiler(t)

	params := qval.Object{
		"users":      qval.Array{qval.Int(3), qval.Int(11)},
		"confidence": qval.Array{qval.Int(0), qval.Int(3)},
		"has_notes":  qval.Bool(true),
	}
	first, _, err := c.SelectIDs(def("Observation", schema.FlavorAll, params))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, _, err := c.SelectIDs(def("Observation", schema.FlavorAll, params))
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestConfidenceRangeNormalizesBounds(t *testing.T) {
	c := newCompiler(t)

	_, args, err := c.SelectIDs(def("Observation", schema.FlavorAll, qval.Object{
		"confidence": qval.Array{qval.Int(3), qval.Int(-1)},
	}))
	require.NoError(t, err)
	assert.Equal(t, []any{int64(-1), int64(3)}, args)
}

func TestPatternEscapesWildcards(t *testing.T) {
	c := newCompiler(t)

	sql, args, err := c.SelectIDs(def("Observation", schema.FlavorPatternSearch, qval.Object{
		"pattern": qval.String("50%_done"),
	}))
	require.NoError(t, err)
	assert.Contains(t, sql, "LIKE ? ESCAPE")
	require.Len(t, args, 2) // one per pattern column
	assert.Equal(t, `%50\%\_done%`, args[0])
}

func TestNestedQueryCompilesToExists(t *testing.T) {
	c := newCompiler(t)

	// Locations whose observations were made by user 3.
	sql, args, err := c.SelectIDs(def("Location", schema.FlavorWithObservations, qval.Object{
		"observation_query": qval.Object{
			"flavor": qval.String("by_user"),
			"params": qval.Object{"user": qval.Int(3)},
		},
	}))
	require.NoError(t, err)
	assert.Contains(t, sql, "EXISTS (SELECT 1 FROM observations q1 WHERE q1.location_id = locations.id AND q1.user_id = ?)")
	assert.Equal(t, []any{int64(3)}, args)
}

func TestNestedQueryOnSelfLink(t *testing.T) {
	c := newCompiler(t)

	// Images whose observation was made by user 7.
	sql, _, err := c.SelectIDs(def("Image", schema.FlavorWithObservations, qval.Object{
		"observation_query": qval.Object{
			"flavor": qval.String("by_user"),
			"params": qval.Object{"user": qval.Int(7)},
		},
	}))
	require.NoError(t, err)
	assert.Contains(t, sql, "q1.id = images.observation_id")
}

func TestCollectionLocationFlagJoinsObservationSubquery(t *testing.T) {
	c := newCompiler(t)

	// The flag describes observation rows, so it lands inside the EXISTS
	// whether or not an observation_query was also given.
	sql, _, err := c.SelectIDs(def("Location", schema.FlavorWithObservations, qval.Object{
		"is_collection_location": qval.Bool(true),
	}))
	require.NoError(t, err)
	assert.Contains(t, sql, "EXISTS (SELECT 1 FROM observations q1 WHERE q1.location_id = locations.id AND q1.is_collection_location = 1)")

	sql, args, err := c.SelectIDs(def("Location", schema.FlavorWithObservations, qval.Object{
		"is_collection_location": qval.Bool(false),
		"observation_query": qval.Object{
			"flavor": qval.String("by_user"),
			"params": qval.Object{"user": qval.Int(3)},
		},
	}))
	require.NoError(t, err)
	assert.Contains(t, sql, "q1.is_collection_location = 0")
	assert.Contains(t, sql, "q1.user_id = ?")
	assert.Equal(t, []any{int64(3)}, args)
}

func TestDeprecatedEnum(t *testing.T) {
	c := newCompiler(t)

	tests := []struct {
		value string
		want  string
	}{
		{"no", "names.deprecated = 0"},
		{"only", "names.deprecated = 1"},
		{"either", ""},
	}
	for _, tt := range tests {
		sql, _, err := c.SelectIDs(def("Name", schema.FlavorAll, qval.Object{
			"deprecated": qval.String(tt.value),
		}))
		require.NoError(t, err)
		if tt.want == "" {
			assert.NotContains(t, sql, "deprecated")
		} else {
			assert.Contains(t, sql, tt.want)
		}
	}
}

func TestSelectIDsWithSortKey(t *testing.T) {
	c := newCompiler(t)

	sql, _, err := c.SelectIDsWithSortKey(def("Name", schema.FlavorAll, nil))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sql, "SELECT names.id, names.text_name FROM names"))

	// Images have no sort column so letter paging is unavailable.
	_, _, err = c.SelectIDsWithSortKey(def("Image", schema.FlavorAll, nil))
	require.Error(t, err)
	var cfg *schema.ConfigError
	assert.ErrorAs(t, err, &cfg)
}

func TestOrderByKeywords(t *testing.T) {
	c := newCompiler(t)

	tests := []struct {
		order string
		want  string
	}{
		{"id", "ORDER BY observations.id ASC"},
		{"created", "ORDER BY observations.created_at DESC, observations.id ASC"},
		{"updated", "ORDER BY observations.updated_at DESC, observations.id ASC"},
		{"date", "ORDER BY observations.when_seen DESC, observations.id ASC"},
		{"name", "ORDER BY observations.name_text COLLATE NOCASE ASC, observations.id ASC"},
	}
	for _, tt := range tests {
		sql, _, err := c.SelectIDs(def("Observation", schema.FlavorAll, qval.Object{
			"order_by": qval.String(tt.order),
		}))
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(sql, tt.want), "order %s: %s", tt.order, sql)
	}
}

func TestCompileGolden(t *testing.T) {
	c := newCompiler(t)

	cases := []struct {
		label string
		def   *query.Definition
	}{
		{"observation_all", def("Observation", schema.FlavorAll, nil)},
		{"observation_rich", def("Observation", schema.FlavorAll, qval.Object{
			"order_by":   qval.String("date"),
			"users":      qval.Array{qval.Int(3), qval.Int(11)},
			"confidence": qval.Array{qval.Int(0), qval.Int(3)},
			"has_notes":  qval.Bool(true),
			"notes_has":  qval.String("boletus"),
			"created":    qval.Array{qval.String("2012-01-01"), qval.String("2012-12-31")},
			"in_box": qval.Object{
				"north": qval.Float(44.5), "south": qval.Float(42),
				"east": qval.Float(-119.5), "west": qval.Float(-123),
			},
		})},
		{"location_with_observations", def("Location", schema.FlavorWithObservations, qval.Object{
			"observation_query": qval.Object{
				"flavor": qval.String("by_user"),
				"params": qval.Object{"user": qval.Int(3), "has_notes": qval.Bool(true)},
			},
		})},
		{"name_pattern", def("Name", schema.FlavorPatternSearch, qval.Object{
			"pattern":    qval.String("agaricus"),
			"deprecated": qval.String("no"),
			"order_by":   qval.String("name"),
		})},
	}

	var b strings.Builder
	for _, tc := range cases {
		sql, args, err := c.SelectIDs(tc.def)
		require.NoError(t, err, tc.label)
		fmt.Fprintf(&b, "-- %s\n%s\nargs: %v\n\n", tc.label, sql, args)
	}

	g := goldie.New(t)
	g.Assert(t, "compiled_sql", []byte(b.String()))
}
