// Package sqlgen compiles a validated query definition into parameterized
// SQL for SQLite. Values are never interpolated into the statement text,
// and every statement carries an ORDER BY with an id tiebreaker so results
// are deterministic across runs.
package sqlgen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fernfield/queryden/internal/catalog"
	"github.com/fernfield/queryden/internal/query"
	"github.com/fernfield/queryden/internal/qval"
	"github.com/fernfield/queryden/internal/schema"
)

// Compiler turns definitions into SELECT statements using the catalog's
// table layout.
type Compiler struct {
	cat *catalog.Catalog
}

// New creates a Compiler over the given catalog.
func New(cat *catalog.Catalog) *Compiler {
	return &Compiler{cat: cat}
}

// SelectIDs compiles the definition into a statement returning the ordered
// id list of matching rows.
func (c *Compiler) SelectIDs(def *query.Definition) (string, []any, error) {
	ent, err := c.cat.Entity(def.Model())
	if err != nil {
		return "", nil, err
	}
	return c.buildSelect(ent, def, fmt.Sprintf("%s.id", ent.Table))
}

// SelectIDsWithSortKey compiles the definition into a statement returning
// (id, sort key) pairs, used to bucket results by leading letter. Errors
// if the entity declares no sort column.
func (c *Compiler) SelectIDsWithSortKey(def *query.Definition) (string, []any, error) {
	ent, err := c.cat.Entity(def.Model())
	if err != nil {
		return "", nil, err
	}
	if ent.SortColumn == "" {
		return "", nil, schema.Configf("entity %s has no sort column for letter paging", ent.Name)
	}
	cols := fmt.Sprintf("%s.id, %s.%s", ent.Table, ent.Table, ent.SortColumn)
	return c.buildSelect(ent, def, cols)
}

func (c *Compiler) buildSelect(ent *catalog.Entity, def *query.Definition, selectCols string) (string, []any, error) {
	conds, args, err := c.conditions(ent, def.Flavor(), def.RawParams(), ent.Table, 0)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", selectCols, ent.Table)
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(c.orderClause(ent, def.RawParams()))
	return b.String(), args, nil
}

// orderClause maps the order_by enum onto concrete columns. Every ordering
// ends with an ascending id tiebreaker.
func (c *Compiler) orderClause(ent *catalog.Entity, params qval.Object) string {
	keyword := ""
	if v, ok := params["order_by"].(qval.String); ok {
		keyword = string(v)
	}

	t := ent.Table
	var primary string
	switch keyword {
	case "id":
		primary = ""
	case "created":
		primary = fmt.Sprintf("%s.created_at DESC", t)
	case "updated":
		primary = fmt.Sprintf("%s.updated_at DESC", t)
	case "date":
		primary = fmt.Sprintf("%s.when_seen DESC", t)
	case "name":
		col := ent.SortColumn
		if col == "" {
			col = ent.DefaultOrder
		}
		primary = fmt.Sprintf("%s.%s COLLATE NOCASE ASC", t, col)
	case "login":
		primary = fmt.Sprintf("%s.login COLLATE NOCASE ASC", t)
	default:
		if ent.DefaultOrder != "id" {
			primary = fmt.Sprintf("%s.%s ASC", t, ent.DefaultOrder)
		}
	}

	tiebreak := fmt.Sprintf("%s.id ASC", t)
	if primary == "" {
		return tiebreak
	}
	return primary + ", " + tiebreak
}

// conditions builds WHERE fragments for one entity's params. Parameters
// are visited in sorted key order so generated SQL is stable. alias is the
// table reference in scope; depth disambiguates nested subquery aliases.
func (c *Compiler) conditions(ent *catalog.Entity, flavor schema.Flavor, params qval.Object, alias string, depth int) ([]string, []any, error) {
	attrs, err := c.cat.AttrsFor(ent.Name, flavor)
	if err != nil {
		return nil, nil, err
	}
	params = liftCollectionLocation(attrs, params)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var conds []string
	var args []any
	for _, key := range keys {
		attr, declared := attrs[key]
		if !declared || key == "order_by" {
			continue
		}
		frag, fragArgs, err := c.condition(ent, attr, params[key], alias, depth)
		if err != nil {
			return nil, nil, err
		}
		if frag != "" {
			conds = append(conds, frag)
			args = append(args, fragArgs...)
		}
	}
	return conds, args, nil
}

func (c *Compiler) condition(ent *catalog.Entity, attr schema.Attr, val qval.Value, alias string, depth int) (string, []any, error) {
	switch attr.Name {
	case "created", "updated", "date":
		return dateRangeCond(alias, dateColumn(attr.Name), val)
	case "users":
		return inCond(alias, "user_id", val)
	case "user":
		return eqCond(alias, "user_id", val)
	case "location":
		return eqCond(alias, "location_id", val)
	case "ids":
		return inCond(alias, "id", val)
	case "confidence":
		return numRangeCond(alias, "confidence", val)
	case "has_notes":
		if b, ok := val.(qval.Bool); ok {
			if bool(b) {
				return fmt.Sprintf("%s.notes <> ''", alias), nil, nil
			}
			return fmt.Sprintf("%s.notes = ''", alias), nil, nil
		}
		return "", nil, nil
	case "notes_has":
		return likeCond(alias, []string{"notes"}, val)
	case "pattern":
		cols := ent.PatternColumns
		if len(cols) == 0 {
			return "", nil, schema.Configf("entity %s has no pattern columns", ent.Name)
		}
		return likeCond(alias, cols, val)
	case "in_box":
		return c.boxCond(ent, alias, val)
	case "is_collection_location":
		if ent.Name != "Observation" {
			// Lifted into the observation subquery before we get here.
			return "", nil, nil
		}
		if b, ok := val.(qval.Bool); ok {
			if bool(b) {
				return fmt.Sprintf("%s.is_collection_location = 1", alias), nil, nil
			}
			return fmt.Sprintf("%s.is_collection_location = 0", alias), nil, nil
		}
		return "", nil, nil
	case "deprecated":
		switch val {
		case qval.String("no"):
			return fmt.Sprintf("%s.deprecated = 0", alias), nil, nil
		case qval.String("only"):
			return fmt.Sprintf("%s.deprecated = 1", alias), nil, nil
		default: // "either"
			return "", nil, nil
		}
	case "source_type":
		return eqCond(alias, "source_type", val)
	default:
		if attr.Kind == schema.KindNestedQuery {
			return c.nestedCond(ent, attr, val, alias, depth)
		}
		// Declared but not executable: a catalog/compiler mismatch.
		return "", nil, schema.Configf("no SQL mapping for attribute %q on %s", attr.Name, ent.Name)
	}
}

// nestedCond compiles a nested query parameter into an EXISTS subquery,
// attached through the link the catalog declares for the target entity.
func (c *Compiler) nestedCond(ent *catalog.Entity, attr schema.Attr, val qval.Value, alias string, depth int) (string, []any, error) {
	obj, ok := val.(qval.Object)
	if !ok {
		return "", nil, schema.Configf("nested param %q is not an object", attr.Name)
	}
	nestedFlavor := schema.FlavorAll
	if f, ok := obj["flavor"].(qval.String); ok {
		nestedFlavor = schema.Flavor(string(f))
	}
	nestedParams, _ := obj["params"].(qval.Object)

	target, err := c.cat.Entity(attr.Target)
	if err != nil {
		return "", nil, err
	}
	link, ok := ent.Links[attr.Target]
	if !ok {
		return "", nil, schema.Configf("entity %s has no link to %s", ent.Name, attr.Target)
	}

	sub := fmt.Sprintf("q%d", depth+1)
	var joinCond string
	switch link.On {
	case "target":
		joinCond = fmt.Sprintf("%s.%s = %s.id", sub, link.Column, alias)
	case "self":
		joinCond = fmt.Sprintf("%s.id = %s.%s", sub, alias, link.Column)
	default:
		return "", nil, schema.Configf("entity %s link to %s has bad direction %q", ent.Name, attr.Target, link.On)
	}

	conds, args, err := c.conditions(target, nestedFlavor, nestedParams, sub, depth+1)
	if err != nil {
		return "", nil, err
	}
	all := append([]string{joinCond}, conds...)
	frag := fmt.Sprintf("EXISTS (SELECT 1 FROM %s %s WHERE %s)",
		target.Table, sub, strings.Join(all, " AND "))
	return frag, args, nil
}

// liftCollectionLocation folds a top-level is_collection_location param
// into the observation subquery when the entity reaches observations
// through a nested query. The flag describes the observation rows, and
// merging it keeps a single EXISTS constraining both together.
func liftCollectionLocation(attrs schema.AttrSet, params qval.Object) qval.Object {
	flag, present := params["is_collection_location"]
	if !present {
		return params
	}
	nestedAttr, declared := attrs["observation_query"]
	if !declared || nestedAttr.Kind != schema.KindNestedQuery {
		return params
	}

	out := make(qval.Object, len(params))
	for k, v := range params {
		if k != "is_collection_location" {
			out[k] = v
		}
	}

	flavor := qval.String(string(schema.FlavorAll))
	merged := qval.Object{}
	if nested, ok := out["observation_query"].(qval.Object); ok {
		if f, ok := nested["flavor"].(qval.String); ok {
			flavor = f
		}
		if p, ok := nested["params"].(qval.Object); ok {
			for k, v := range p {
				merged[k] = v
			}
		}
	}
	merged["is_collection_location"] = flag
	out["observation_query"] = qval.Object{"flavor": flavor, "params": merged}
	return out
}

// boxCond constrains by a geographic box: point containment for entities
// with lat/lng, box containment for entities that are themselves boxes.
func (c *Compiler) boxCond(ent *catalog.Entity, alias string, val qval.Value) (string, []any, error) {
	box, ok := val.(qval.Object)
	if !ok {
		return "", nil, schema.Configf("in_box value is not an object")
	}
	n := toF(qval.ToGo(box["north"]))
	s := toF(qval.ToGo(box["south"]))
	e := toF(qval.ToGo(box["east"]))
	w := toF(qval.ToGo(box["west"]))

	if ent.Name == "Location" {
		// The location's own box must lie within the search box.
		frag := fmt.Sprintf("%s.south >= ? AND %s.north <= ? AND %s.west >= ? AND %s.east <= ?",
			alias, alias, alias, alias)
		return frag, []any{s, n, w, e}, nil
	}

	if w <= e {
		frag := fmt.Sprintf("%s.lat BETWEEN ? AND ? AND %s.lng BETWEEN ? AND ?", alias, alias)
		return frag, []any{s, n, w, e}, nil
	}
	// Box straddles the antimeridian.
	frag := fmt.Sprintf("%s.lat BETWEEN ? AND ? AND (%s.lng >= ? OR %s.lng <= ?)", alias, alias, alias)
	return frag, []any{s, n, w, e}, nil
}

func dateColumn(param string) string {
	switch param {
	case "created":
		return "created_at"
	case "updated":
		return "updated_at"
	default:
		return "when_seen"
	}
}

func dateRangeCond(alias, col string, val qval.Value) (string, []any, error) {
	pair, ok := val.(qval.Array)
	if !ok || len(pair) != 2 {
		return "", nil, schema.Configf("date range value is not a pair")
	}
	frag := fmt.Sprintf("date(%s.%s) BETWEEN ? AND ?", alias, col)
	return frag, []any{qval.ToGo(pair[0]), qval.ToGo(pair[1])}, nil
}

// numRangeCond emits BETWEEN over the ordered bounds; the validator keeps
// ranges in the order given, ordering policy lands here.
func numRangeCond(alias, col string, val qval.Value) (string, []any, error) {
	pair, ok := val.(qval.Array)
	if !ok || len(pair) != 2 {
		return "", nil, schema.Configf("numeric range value is not a pair")
	}
	lo := qval.ToGo(pair[0])
	hi := qval.ToGo(pair[1])
	if numLess(hi, lo) {
		lo, hi = hi, lo
	}
	frag := fmt.Sprintf("%s.%s BETWEEN ? AND ?", alias, col)
	return frag, []any{lo, hi}, nil
}

func numLess(a, b any) bool {
	return toF(a) < toF(b)
}

func toF(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}

func eqCond(alias, col string, val qval.Value) (string, []any, error) {
	return fmt.Sprintf("%s.%s = ?", alias, col), []any{qval.ToGo(val)}, nil
}

func inCond(alias, col string, val qval.Value) (string, []any, error) {
	arr, ok := val.(qval.Array)
	if !ok {
		arr = qval.Array{val}
	}
	if len(arr) == 0 {
		return "", nil, nil
	}
	placeholders := make([]string, len(arr))
	args := make([]any, len(arr))
	for i, v := range arr {
		placeholders[i] = "?"
		args[i] = qval.ToGo(v)
	}
	frag := fmt.Sprintf("%s.%s IN (%s)", alias, col, strings.Join(placeholders, ", "))
	return frag, args, nil
}

// likeCond matches a substring across one or more columns, OR-joined.
// LIKE wildcards in the needle are escaped so user input matches literally.
func likeCond(alias string, cols []string, val qval.Value) (string, []any, error) {
	s, ok := val.(qval.String)
	if !ok {
		return "", nil, schema.Configf("pattern value is not a string")
	}
	needle := "%" + escapeLike(string(s)) + "%"

	frags := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		frags[i] = fmt.Sprintf("%s.%s LIKE ? ESCAPE '\\'", alias, col)
		args[i] = needle
	}
	if len(frags) == 1 {
		return frags[0], args, nil
	}
	return "(" + strings.Join(frags, " OR ") + ")", args, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
