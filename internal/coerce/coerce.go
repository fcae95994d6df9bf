// Package coerce transforms a query over one entity type into the
// related query over another: observations at a location become a
// location query, a name query becomes the observations of those names,
// description queries become queries over their parent entity.
//
// Coercion wraps the entire original param map as a single nested
// parameter on the target, so the original is always recoverable with
// Uncoerce. Target-specific defaults a rule adds live outside the nested
// parameter and are discarded on the way back.
package coerce

import (
	"github.com/fernfield/queryden/internal/catalog"
	"github.com/fernfield/queryden/internal/query"
	"github.com/fernfield/queryden/internal/qval"
	"github.com/fernfield/queryden/internal/schema"
)

// forwardFunc maps a (flavor, params) pair onto the target's flavor and
// params. ok false means this particular query shape has no meaningful
// equivalent on the target, which is a normal outcome.
type forwardFunc func(flavor schema.Flavor, params qval.Object) (schema.Flavor, qval.Object, bool)

type pair struct {
	src, dst schema.EntityType
}

// Registry holds the coercion rules, keyed by (source, target) type.
type Registry struct {
	cat   *catalog.Catalog
	rules map[pair]forwardFunc
}

// NewRegistry creates an empty registry over the catalog.
func NewRegistry(cat *catalog.Catalog) *Registry {
	return &Registry{cat: cat, rules: make(map[pair]forwardFunc)}
}

// Default returns the registry with the standard rule set: observation
// queries coerce to location, name and image queries by nesting under
// observation_query (locations additionally default to collection
// locations); description queries coerce to their parent entity under
// description_query; each pairing also carries the reverse rule that
// unwraps the nested query again.
func Default(cat *catalog.Catalog) *Registry {
	r := NewRegistry(cat)

	observationFlavors := []schema.Flavor{
		schema.FlavorAll, schema.FlavorByUser, schema.FlavorIDInSet,
		schema.FlavorPatternSearch, schema.FlavorAtLocation,
	}
	r.register("Observation", "Location",
		wrap("observation_query", schema.FlavorWithObservations, observationFlavors, qval.Object{
			"is_collection_location": qval.Bool(true),
		}))
	r.register("Observation", "Name",
		wrap("observation_query", schema.FlavorWithObservations, observationFlavors, nil))
	r.register("Observation", "Image",
		wrap("observation_query", schema.FlavorWithObservations, observationFlavors, nil))

	r.register("Location", "Observation",
		unwrap("observation_query", schema.FlavorWithObservations))
	r.register("Name", "Observation",
		unwrap("observation_query", schema.FlavorWithObservations))
	r.register("Image", "Observation",
		unwrap("observation_query", schema.FlavorWithObservations))

	descriptionFlavors := []schema.Flavor{
		schema.FlavorAll, schema.FlavorByUser, schema.FlavorIDInSet,
	}
	r.register("LocationDescription", "Location",
		wrap("description_query", schema.FlavorWithDescriptions, descriptionFlavors, nil))
	r.register("NameDescription", "Name",
		wrap("description_query", schema.FlavorWithDescriptions, descriptionFlavors, nil))

	r.register("Location", "LocationDescription",
		unwrap("description_query", schema.FlavorWithDescriptions))
	r.register("Name", "NameDescription",
		unwrap("description_query", schema.FlavorWithDescriptions))

	return r
}

func (r *Registry) register(src, dst schema.EntityType, fn forwardFunc) {
	r.rules[pair{src, dst}] = fn
}

// Coerce returns the equivalent query on target, or nil when no rule is
// registered for the pairing or the rule rejects this flavor. Coercing a
// query to its own type returns the query unchanged.
func (r *Registry) Coerce(def *query.Definition, target schema.EntityType) *query.Definition {
	if def == nil {
		return nil
	}
	if def.Model() == target {
		return def
	}
	fn, ok := r.rules[pair{def.Model(), target}]
	if !ok {
		return nil
	}
	flavor, params, ok := fn(def.Flavor(), def.RawParams())
	if !ok {
		return nil
	}
	return query.New(target, flavor, params, nil)
}

// Relatable reports whether Coerce would succeed, without building the
// result.
func (r *Registry) Relatable(def *query.Definition, target schema.EntityType) bool {
	if def == nil {
		return false
	}
	if def.Model() == target {
		return true
	}
	fn, ok := r.rules[pair{def.Model(), target}]
	if !ok {
		return false
	}
	_, _, ok = fn(def.Flavor(), def.RawParams())
	return ok
}

// Uncoerce recovers the pre-coercion query from a coerced one by reading
// its nested query parameter back out. Returns nil when the definition
// carries no nested query. Defaults the coercion added outside the
// nested parameter are discarded.
func (r *Registry) Uncoerce(def *query.Definition) *query.Definition {
	if def == nil {
		return nil
	}
	attrs, err := r.cat.AttrsFor(def.Model(), def.Flavor())
	if err != nil {
		return nil
	}
	for name, attr := range attrs {
		if attr.Kind != schema.KindNestedQuery {
			continue
		}
		flavor, params, ok := splitNested(def.Param(name))
		if !ok {
			continue
		}
		return query.New(attr.Target, flavor, params, nil)
	}
	return nil
}

// wrap builds the forward rule that nests the whole original param map
// under key on the target's wrapping flavor. Flavors outside allowed
// coerce to nothing. extra params are the target-specific defaults.
func wrap(key string, target schema.Flavor, allowed []schema.Flavor, extra qval.Object) forwardFunc {
	ok := make(map[schema.Flavor]bool, len(allowed))
	for _, f := range allowed {
		ok[f] = true
	}

	return func(flavor schema.Flavor, params qval.Object) (schema.Flavor, qval.Object, bool) {
		if !ok[flavor] {
			return "", nil, false
		}
		out := qval.Object{
			key: qval.Object{
				"flavor": qval.String(string(flavor)),
				"params": params,
			},
		}
		for k, v := range extra {
			out[k] = v
		}
		return target, out, true
	}
}

// unwrap builds the reverse rule: from the wrapping flavor, the nested
// query under key becomes the result.
func unwrap(key string, from schema.Flavor) forwardFunc {
	return func(flavor schema.Flavor, params qval.Object) (schema.Flavor, qval.Object, bool) {
		if flavor != from {
			return "", nil, false
		}
		return splitNested(params[key])
	}
}

func splitNested(v qval.Value) (schema.Flavor, qval.Object, bool) {
	obj, ok := v.(qval.Object)
	if !ok {
		return "", nil, false
	}
	f, ok := obj["flavor"].(qval.String)
	if !ok {
		return "", nil, false
	}
	params, ok := obj["params"].(qval.Object)
	if !ok {
		return "", nil, false
	}
	return schema.Flavor(string(f)), params, true
}
