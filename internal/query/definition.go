// Package query defines the immutable, validated query definition: an
// entity type, a flavor, and a normalized parameter map with a canonical
// serialization that doubles as its identity.
package query

import (
	"fmt"

	"github.com/fernfield/queryden/internal/qval"
	"github.com/fernfield/queryden/internal/schema"
)

// Definition is an immutable query value. Two definitions are equal iff
// their entity type, flavor and canonical (defaulted, normalized) parameter
// maps are equal. Construct with New from already-validated params; the
// engine's Lookup is the usual front door.
type Definition struct {
	model  schema.EntityType
	flavor schema.Flavor
	params qval.Object
	errs   []schema.ValidationError
}

// New builds a definition from normalized params and any validation errors
// recorded while normalizing them. An invalid definition is still a usable
// value: it can be introspected, compared and serialized, just not trusted
// to describe what the caller meant.
func New(model schema.EntityType, flavor schema.Flavor, params qval.Object, errs []schema.ValidationError) *Definition {
	if flavor == "" {
		flavor = schema.FlavorAll
	}
	if params == nil {
		params = qval.Object{}
	}
	return &Definition{model: model, flavor: flavor, params: params, errs: errs}
}

// Model returns the entity type the definition queries.
func (d *Definition) Model() schema.EntityType { return d.model }

// Flavor returns the query shape.
func (d *Definition) Flavor() schema.Flavor { return d.flavor }

// Params returns a read-only snapshot of the normalized parameter map as
// plain Go values. Mutating the snapshot does not affect the definition.
func (d *Definition) Params() map[string]any {
	out := make(map[string]any, len(d.params))
	for k, v := range d.params {
		out[k] = qval.ToGo(v)
	}
	return out
}

// Param returns one normalized parameter value, or nil if absent.
func (d *Definition) Param(name string) qval.Value {
	return d.params[name]
}

// RawParams exposes the underlying normalized object. Callers must treat
// it as read-only.
func (d *Definition) RawParams() qval.Object { return d.params }

// Valid reports whether normalization recorded no validation errors.
func (d *Definition) Valid() bool { return len(d.errs) == 0 }

// ValidationErrors returns the accumulated user-facing error messages.
func (d *Definition) ValidationErrors() []string {
	msgs := make([]string, len(d.errs))
	for i, e := range d.errs {
		msgs[i] = e.String()
	}
	return msgs
}

// Errors returns the structured validation errors.
func (d *Definition) Errors() []schema.ValidationError { return d.errs }

// Serialize returns the canonical serialization of the parameter map: the
// stable order-independent encoding used as the store's dedup key and the
// permalink payload. Round-trips exactly through Deserialize.
func (d *Definition) Serialize() (string, error) {
	data, err := qval.MarshalCanonical(d.params)
	if err != nil {
		return "", fmt.Errorf("serialize %s/%s query: %w", d.model, d.flavor, err)
	}
	return string(data), nil
}

// Fingerprint returns the fixed-width content hash of (model, flavor,
// params), used by the store's uniqueness index.
func (d *Definition) Fingerprint() (string, error) {
	return qval.Fingerprint(string(d.model), string(d.flavor), d.params)
}

// Equal reports definition equality: same model, same flavor, equal
// normalized params.
func (d *Definition) Equal(other *Definition) bool {
	if d == nil || other == nil {
		return d == other
	}
	return d.model == other.model &&
		d.flavor == other.flavor &&
		qval.Equal(d.params, other.params)
}

// String renders a short human-readable description for logs and errors.
func (d *Definition) String() string {
	return fmt.Sprintf("%s/%s(%d params)", d.model, d.flavor, len(d.params))
}

// Deserialize reconstructs a definition from its stored model, flavor and
// canonical parameter text. Params re-enter as already-normalized values;
// a definition that was valid when stored is valid when restored.
func Deserialize(model schema.EntityType, flavor schema.Flavor, serialized string) (*Definition, error) {
	v, err := qval.UnmarshalCanonical([]byte(serialized))
	if err != nil {
		return nil, fmt.Errorf("deserialize %s/%s query: %w", model, flavor, err)
	}
	obj, ok := v.(qval.Object)
	if !ok {
		return nil, fmt.Errorf("deserialize %s/%s query: params are %T, not an object", model, flavor, v)
	}
	return New(model, flavor, obj, nil), nil
}
