// Package catalog loads the declarative entity catalog: every entity type
// the engine queries, its table layout, and the typed parameters each
// flavor accepts. Declarations live in an embedded CUE file and are
// compiled into plain Go tables once at startup, so a malformed catalog is
// a configuration error at boot rather than a runtime surprise.
package catalog

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/fernfield/queryden/internal/qval"
	"github.com/fernfield/queryden/internal/schema"
)

//go:embed entities.cue
var entitiesCUE []byte

// Link describes how a nested query on another entity type attaches to
// this one. On "target", the target's table carries a foreign key back to
// this entity's id; on "self", this entity's table carries the foreign key
// to the target's id.
type Link struct {
	On     string // "self" or "target"
	Column string
}

// Assoc names an eager-loadable association: the associated table and the
// foreign-key column on this entity's table.
type Assoc struct {
	Table string
	FK    string
}

// Entity is the compiled declaration for one entity type.
type Entity struct {
	Name           schema.EntityType
	Table          string
	SortColumn     string // leading-letter sort key; empty = no letter paging
	DefaultOrder   string
	NameColumns    []string // columns ResolveName matches against
	PatternColumns []string // columns pattern_search scans
	Shared         schema.AttrSet
	Flavors        map[schema.Flavor]schema.AttrSet // flavor-specific attrs only
	Links          map[schema.EntityType]Link
	Associations   map[string]Assoc
}

// Catalog is the compiled entity catalog.
type Catalog struct {
	entities map[schema.EntityType]*Entity
}

// Load compiles the embedded catalog. Errors are programmer errors; there
// is no recovering from a catalog that does not compile.
func Load() (*Catalog, error) {
	return load(entitiesCUE)
}

// MustLoad is Load for initialization paths that cannot continue anyway.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

func load(src []byte) (*Catalog, error) {
	ctx := cuecontext.New()
	root := ctx.CompileBytes(src)
	if err := root.Err(); err != nil {
		return nil, schema.Configf("catalog does not compile: %v", err)
	}

	entitiesVal := root.LookupPath(cue.ParsePath("entities"))
	if !entitiesVal.Exists() {
		return nil, schema.Configf("catalog is missing the entities block")
	}

	cat := &Catalog{entities: map[schema.EntityType]*Entity{}}
	iter, err := entitiesVal.Fields()
	if err != nil {
		return nil, schema.Configf("catalog entities: %v", err)
	}
	for iter.Next() {
		name := schema.EntityType(iter.Selector().String())
		ent, err := parseEntity(name, iter.Value())
		if err != nil {
			return nil, err
		}
		cat.entities[name] = ent
	}
	if len(cat.entities) == 0 {
		return nil, schema.Configf("catalog declares no entities")
	}

	// Cross-check reference and link targets now, not at query time.
	for _, ent := range cat.entities {
		if err := cat.checkTargets(ent); err != nil {
			return nil, err
		}
	}
	return cat, nil
}

func parseEntity(name schema.EntityType, v cue.Value) (*Entity, error) {
	ent := &Entity{
		Name:         name,
		Flavors:      map[schema.Flavor]schema.AttrSet{},
		Links:        map[schema.EntityType]Link{},
		Associations: map[string]Assoc{},
	}

	var err error
	if ent.Table, err = requireString(v, "table"); err != nil {
		return nil, fmt.Errorf("entity %s: %w", name, err)
	}
	if ent.DefaultOrder, err = requireString(v, "default_order"); err != nil {
		return nil, fmt.Errorf("entity %s: %w", name, err)
	}
	ent.SortColumn, _ = optionalString(v, "sort_column")
	ent.NameColumns = stringList(v, "name_columns")
	ent.PatternColumns = stringList(v, "pattern_columns")

	ent.Shared, err = parseAttrSet(v.LookupPath(cue.ParsePath("shared")))
	if err != nil {
		return nil, fmt.Errorf("entity %s shared: %w", name, err)
	}

	flavorsVal := v.LookupPath(cue.ParsePath("flavors"))
	if flavorsVal.Exists() {
		iter, err := flavorsVal.Fields()
		if err != nil {
			return nil, fmt.Errorf("entity %s flavors: %w", name, err)
		}
		for iter.Next() {
			flavor := schema.Flavor(iter.Selector().String())
			attrs, err := parseAttrSet(iter.Value())
			if err != nil {
				return nil, fmt.Errorf("entity %s flavor %s: %w", name, flavor, err)
			}
			ent.Flavors[flavor] = attrs
		}
	}
	if _, ok := ent.Flavors[schema.FlavorAll]; !ok {
		return nil, schema.Configf("entity %s does not declare flavor %q", name, schema.FlavorAll)
	}

	linksVal := v.LookupPath(cue.ParsePath("links"))
	if linksVal.Exists() {
		iter, err := linksVal.Fields()
		if err != nil {
			return nil, fmt.Errorf("entity %s links: %w", name, err)
		}
		for iter.Next() {
			target := schema.EntityType(iter.Selector().String())
			on, err := requireString(iter.Value(), "on")
			if err != nil {
				return nil, fmt.Errorf("entity %s link %s: %w", name, target, err)
			}
			col, err := requireString(iter.Value(), "column")
			if err != nil {
				return nil, fmt.Errorf("entity %s link %s: %w", name, target, err)
			}
			ent.Links[target] = Link{On: on, Column: col}
		}
	}

	assocVal := v.LookupPath(cue.ParsePath("associations"))
	if assocVal.Exists() {
		iter, err := assocVal.Fields()
		if err != nil {
			return nil, fmt.Errorf("entity %s associations: %w", name, err)
		}
		for iter.Next() {
			assocName := iter.Selector().String()
			table, err := requireString(iter.Value(), "table")
			if err != nil {
				return nil, fmt.Errorf("entity %s assoc %s: %w", name, assocName, err)
			}
			fk, err := requireString(iter.Value(), "fk")
			if err != nil {
				return nil, fmt.Errorf("entity %s assoc %s: %w", name, assocName, err)
			}
			ent.Associations[assocName] = Assoc{Table: table, FK: fk}
		}
	}

	return ent, nil
}

func parseAttrSet(v cue.Value) (schema.AttrSet, error) {
	attrs := schema.AttrSet{}
	if !v.Exists() {
		return attrs, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, err
	}
	for iter.Next() {
		name := iter.Selector().String()
		attr, err := parseAttr(name, iter.Value())
		if err != nil {
			return nil, err
		}
		attrs[name] = attr
	}
	return attrs, nil
}

func parseAttr(name string, v cue.Value) (schema.Attr, error) {
	attr := schema.Attr{Name: name}

	typeName, err := requireString(v, "type")
	if err != nil {
		return attr, fmt.Errorf("attribute %s: %w", name, err)
	}
	kind, ok := schema.KindByName(typeName)
	if !ok {
		return attr, schema.Configf("attribute %s has unknown type %q", name, typeName)
	}
	attr.Kind = kind

	attr.Allowed = stringList(v, "allowed")
	if attr.Kind == schema.KindEnum && len(attr.Allowed) == 0 {
		return attr, schema.Configf("enum attribute %s has no allowed values", name)
	}

	if f, ok := optionalFloat(v, "min"); ok {
		attr.Min = &f
	}
	if f, ok := optionalFloat(v, "max"); ok {
		attr.Max = &f
	}
	if n, ok := optionalInt(v, "limit"); ok {
		attr.Limit = int(n)
	}
	if s, ok := optionalString(v, "target"); ok {
		attr.Target = schema.EntityType(s)
	}
	if b, ok := optionalBool(v, "required"); ok {
		attr.Required = b
	}

	defVal := v.LookupPath(cue.ParsePath("default"))
	if defVal.Exists() {
		attr.Default, err = decodeDefault(defVal)
		if err != nil {
			return attr, fmt.Errorf("attribute %s default: %w", name, err)
		}
	}

	switch attr.Kind {
	case schema.KindReference, schema.KindReferenceList, schema.KindNestedQuery:
		if attr.Target == "" {
			return attr, schema.Configf("attribute %s needs a target entity", name)
		}
	}
	return attr, nil
}

func decodeDefault(v cue.Value) (qval.Value, error) {
	switch v.Kind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, err
		}
		return qval.String(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, err
		}
		return qval.Int(n), nil
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return nil, err
		}
		return qval.Float(f), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, err
		}
		return qval.Bool(b), nil
	default:
		return nil, fmt.Errorf("unsupported default kind %v", v.Kind())
	}
}

func requireString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", schema.Configf("%s is required", field)
	}
	return fv.String()
}

func optionalString(v cue.Value, field string) (string, bool) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", false
	}
	s, err := fv.String()
	return s, err == nil
}

func optionalFloat(v cue.Value, field string) (float64, bool) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return 0, false
	}
	f, err := fv.Float64()
	return f, err == nil
}

func optionalInt(v cue.Value, field string) (int64, bool) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return 0, false
	}
	n, err := fv.Int64()
	return n, err == nil
}

func optionalBool(v cue.Value, field string) (bool, bool) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return false, false
	}
	b, err := fv.Bool()
	return b, err == nil
}

func stringList(v cue.Value, field string) []string {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil
	}
	iter, err := fv.List()
	if err != nil {
		return nil
	}
	var out []string
	for iter.Next() {
		if s, err := iter.Value().String(); err == nil {
			out = append(out, s)
		}
	}
	return out
}

func (c *Catalog) checkTargets(ent *Entity) error {
	check := func(attrs schema.AttrSet) error {
		for _, attr := range attrs {
			if attr.Target == "" {
				continue
			}
			if _, ok := c.entities[attr.Target]; !ok {
				return schema.Configf("entity %s attribute %s targets unknown entity %q",
					ent.Name, attr.Name, attr.Target)
			}
		}
		return nil
	}
	if err := check(ent.Shared); err != nil {
		return err
	}
	for _, attrs := range ent.Flavors {
		if err := check(attrs); err != nil {
			return err
		}
	}
	for target := range ent.Links {
		if _, ok := c.entities[target]; !ok {
			return schema.Configf("entity %s links to unknown entity %q", ent.Name, target)
		}
	}
	return nil
}

// Entity returns the declaration for an entity type, or a ConfigError for
// unknown types (an unknown type is a code defect, per the error taxonomy).
func (c *Catalog) Entity(t schema.EntityType) (*Entity, error) {
	ent, ok := c.entities[t]
	if !ok {
		return nil, schema.Configf("unknown entity type %q", t)
	}
	return ent, nil
}

// Types lists the declared entity types in no particular order.
func (c *Catalog) Types() []schema.EntityType {
	out := make([]schema.EntityType, 0, len(c.entities))
	for t := range c.entities {
		out = append(out, t)
	}
	return out
}

// SupportsFlavor reports whether the entity declares the flavor.
func (c *Catalog) SupportsFlavor(t schema.EntityType, f schema.Flavor) bool {
	ent, ok := c.entities[t]
	if !ok {
		return false
	}
	_, ok = ent.Flavors[f]
	return ok
}

// AttrsFor merges the entity's shared attributes with the flavor's own,
// producing the full declaration used to validate one query's params.
// Unknown entity types and undeclared flavors are ConfigErrors.
func (c *Catalog) AttrsFor(t schema.EntityType, f schema.Flavor) (schema.AttrSet, error) {
	ent, err := c.Entity(t)
	if err != nil {
		return nil, err
	}
	if f == "" {
		f = schema.FlavorAll
	}
	flavorAttrs, ok := ent.Flavors[f]
	if !ok {
		return nil, schema.Configf("entity %s does not support flavor %q", t, f)
	}
	merged := make(schema.AttrSet, len(ent.Shared)+len(flavorAttrs))
	for k, a := range ent.Shared {
		merged[k] = a
	}
	for k, a := range flavorAttrs {
		merged[k] = a
	}
	return merged, nil
}
