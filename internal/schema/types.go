package schema

import (
	"context"
	"time"

	"github.com/fernfield/queryden/internal/qval"
)

// EntityType identifies a domain entity family ("Observation", "Location",
// ...). The set of valid types is defined by the catalog, not by this
// package.
type EntityType string

// Flavor names a query shape for an entity type. Every entity supports at
// least FlavorAll, which is also the default when none is given.
type Flavor string

// Well-known flavors. The catalog declares which entities support which.
const (
	FlavorAll              Flavor = "all"
	FlavorByUser           Flavor = "by_user"
	FlavorIDInSet          Flavor = "id_in_set"
	FlavorPatternSearch    Flavor = "pattern_search"
	FlavorAtLocation       Flavor = "at_location"
	FlavorWithObservations Flavor = "with_observations"
	FlavorWithDescriptions Flavor = "with_descriptions"
)

// Kind enumerates the closed set of attribute type handlers. Dispatch is a
// type switch over this tag, not reflection.
type Kind int

const (
	KindBoolean Kind = iota
	KindEnum
	KindInteger
	KindIntRange
	KindFloat
	KindFloatRange
	KindDate
	KindDateRange
	KindString
	KindReference
	KindReferenceList
	KindGeoBox
	KindNestedQuery
)

// kindNames maps catalog type strings to kinds.
var kindNames = map[string]Kind{
	"boolean":        KindBoolean,
	"enum":           KindEnum,
	"integer":        KindInteger,
	"integer_range":  KindIntRange,
	"float":          KindFloat,
	"float_range":    KindFloatRange,
	"date":           KindDate,
	"date_range":     KindDateRange,
	"string":         KindString,
	"reference":      KindReference,
	"reference_list": KindReferenceList,
	"geo_box":        KindGeoBox,
	"nested_query":   KindNestedQuery,
}

// KindByName resolves a catalog type string to its Kind.
func KindByName(name string) (Kind, bool) {
	k, ok := kindNames[name]
	return k, ok
}

// Attr declares one accepted query parameter.
type Attr struct {
	Name     string
	Kind     Kind
	Allowed  []string   // enum: the allowed value set, as declared
	Min      *float64   // ranged numerics: inclusive lower bound
	Max      *float64   // ranged numerics: inclusive upper bound
	Limit    int        // strings: maximum length, 0 = unlimited
	Target   EntityType // references and nested queries
	Default  qval.Value // applied when the parameter is absent
	Required bool       // flavors may insist on a parameter being present
}

// AttrSet is the full parameter declaration for one (entity, flavor) pair:
// the entity's shared attributes merged with the flavor's own.
type AttrSet map[string]Attr

// Context carries the request-scoped state some handlers consult: the
// acting user for reference resolution and the clock for relative date
// phrases. Always passed explicitly; nothing here is ambient.
type Context struct {
	CurrentUser int64
	Now         time.Time
	Locale      string
}

// Resolver resolves reference parameters for one entity type: first by id,
// then by a unique-enough name/login/title string.
type Resolver interface {
	// ExistsID reports whether the given id refers to a live record.
	ExistsID(ctx context.Context, id int64) (bool, error)
	// ResolveName returns the ids of records matching the given string.
	// Zero matches means not found; more than one means ambiguous.
	ResolveName(ctx context.Context, name string) ([]int64, error)
}

// Resolvers supplies a Resolver per entity type. A missing entry makes
// reference attributes targeting that type a configuration error.
type Resolvers map[EntityType]Resolver

// SubqueryValidator validates the raw params of a nested query against the
// target entity's schema, returning the normalized nested value and any
// validation errors. Wired by the engine to avoid a dependency cycle
// between schema and query construction.
type SubqueryValidator func(ctx context.Context, vc Context, target EntityType, flavor Flavor, raw map[string]any) (qval.Object, []ValidationError, error)
