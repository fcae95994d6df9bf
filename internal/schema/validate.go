package schema

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fernfield/queryden/internal/qval"
)

// MaxListLength caps reference-list parameters. Longer lists are truncated,
// not rejected, matching the engine's forgiving posture toward URL-supplied
// input.
const MaxListLength = 1000

// IDHolder is implemented by already-resolved entity objects passed as
// reference parameters. Such values are trusted and skip the existence
// check.
type IDHolder interface {
	EntityID() int64
}

// Validate normalizes raw parameters against an attribute set.
//
// Unknown keys are dropped silently. Bad values record a ValidationError
// and are dropped; validation itself never fails for end-user input.
// Declared defaults fill any key still absent after that. The returned
// error is non-nil only for programmer errors (a non-map host value for a
// hash-shaped attribute, a missing resolver) or store failures during
// reference resolution.
func Validate(ctx context.Context, vc Context, attrs AttrSet, raw map[string]any, resolvers Resolvers, sub SubqueryValidator) (qval.Object, []ValidationError, error) {
	v := &validator{
		ctx:       ctx,
		vc:        vc,
		resolvers: resolvers,
		subquery:  sub,
		errs:      []ValidationError{},
	}

	out := make(qval.Object, len(attrs))
	for name, val := range raw {
		attr, declared := attrs[name]
		if !declared || val == nil {
			continue
		}
		qv, err := v.validateValue(attr, val)
		if err != nil {
			return nil, nil, err
		}
		if qv != nil {
			out[name] = qv
		}
	}

	for name, attr := range attrs {
		if _, present := out[name]; present {
			continue
		}
		if attr.Default != nil {
			out[name] = attr.Default
		} else if attr.Required {
			v.invalid(name, "required parameter is missing")
		}
	}

	return out, v.errs, nil
}

type validator struct {
	ctx       context.Context
	vc        Context
	resolvers Resolvers
	subquery  SubqueryValidator
	errs      []ValidationError
}

func (v *validator) invalid(param, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{
		Param:   param,
		Kind:    KindInvalid,
		Message: fmt.Sprintf(format, args...),
	})
}

func (v *validator) notFound(param string, kind ErrorKind, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{
		Param:   param,
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	})
}

// validateValue dispatches on the attribute kind. A nil, nil return means
// the value was bad and a ValidationError was recorded.
func (v *validator) validateValue(attr Attr, raw any) (qval.Value, error) {
	switch attr.Kind {
	case KindBoolean:
		return v.validateBoolean(attr, raw), nil
	case KindEnum:
		return v.validateEnum(attr, raw), nil
	case KindInteger:
		return v.validateInteger(attr, raw), nil
	case KindIntRange:
		return v.validateIntRange(attr, raw), nil
	case KindFloat:
		return v.validateFloat(attr, raw), nil
	case KindFloatRange:
		return v.validateFloatRange(attr, raw), nil
	case KindDate:
		return v.validateDate(attr, raw), nil
	case KindDateRange:
		return v.validateDateRange(attr, raw), nil
	case KindString:
		return v.validateString(attr, raw), nil
	case KindReference:
		return v.validateReference(attr, raw)
	case KindReferenceList:
		return v.validateReferenceList(attr, raw)
	case KindGeoBox:
		return v.validateGeoBox(attr, raw)
	case KindNestedQuery:
		return v.validateNestedQuery(attr, raw)
	default:
		return nil, Configf("attribute %q declares unknown kind %d", attr.Name, attr.Kind)
	}
}

func (v *validator) validateBoolean(attr Attr, raw any) qval.Value {
	switch val := raw.(type) {
	case bool:
		return qval.Bool(val)
	case int:
		if val == 1 || val == 0 {
			return qval.Bool(val == 1)
		}
	case int64:
		if val == 1 || val == 0 {
			return qval.Bool(val == 1)
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "yes", "1":
			return qval.Bool(true)
		case "false", "no", "0":
			return qval.Bool(false)
		}
	}
	v.invalid(attr.Name, "expected a boolean, got %v", raw)
	return nil
}

func (v *validator) validateEnum(attr Attr, raw any) qval.Value {
	s, ok := scalarString(raw)
	if !ok {
		v.invalid(attr.Name, "expected one of %v, got %T", attr.Allowed, raw)
		return nil
	}
	for _, allowed := range attr.Allowed {
		if strings.EqualFold(allowed, strings.TrimSpace(s)) {
			return qval.String(allowed)
		}
	}
	v.invalid(attr.Name, "expected one of %v, got %q", attr.Allowed, s)
	return nil
}

func (v *validator) validateInteger(attr Attr, raw any) qval.Value {
	n, ok := parseInt(raw)
	if !ok {
		v.invalid(attr.Name, "expected an integer, got %v", raw)
		return nil
	}
	if !v.checkBounds(attr, float64(n)) {
		return nil
	}
	return qval.Int(n)
}

func (v *validator) validateIntRange(attr Attr, raw any) qval.Value {
	lo, hi, ok := rangeParts(raw)
	if !ok {
		v.invalid(attr.Name, "expected an integer or lo-hi pair, got %v", raw)
		return nil
	}
	a, okA := parseInt(lo)
	b, okB := parseInt(hi)
	if !okA || !okB {
		v.invalid(attr.Name, "expected integers in range, got %v", raw)
		return nil
	}
	if !v.checkBounds(attr, float64(a)) || !v.checkBounds(attr, float64(b)) {
		return nil
	}
	// Returned in the order given; ordering policy lives with the consumer.
	return qval.Array{qval.Int(a), qval.Int(b)}
}

func (v *validator) validateFloat(attr Attr, raw any) qval.Value {
	f, ok := parseFloat(raw)
	if !ok {
		v.invalid(attr.Name, "expected a number, got %v", raw)
		return nil
	}
	if !v.checkBounds(attr, f) {
		return nil
	}
	return qval.Float(f)
}

func (v *validator) validateFloatRange(attr Attr, raw any) qval.Value {
	lo, hi, ok := rangeParts(raw)
	if !ok {
		v.invalid(attr.Name, "expected a number or lo-hi pair, got %v", raw)
		return nil
	}
	a, okA := parseFloat(lo)
	b, okB := parseFloat(hi)
	if !okA || !okB {
		v.invalid(attr.Name, "expected numbers in range, got %v", raw)
		return nil
	}
	if !v.checkBounds(attr, a) || !v.checkBounds(attr, b) {
		return nil
	}
	return qval.Array{qval.Float(a), qval.Float(b)}
}

func (v *validator) checkBounds(attr Attr, f float64) bool {
	if attr.Min != nil && f < *attr.Min {
		v.invalid(attr.Name, "%v is below the minimum %v", f, *attr.Min)
		return false
	}
	if attr.Max != nil && f > *attr.Max {
		v.invalid(attr.Name, "%v is above the maximum %v", f, *attr.Max)
		return false
	}
	return true
}

func (v *validator) validateDate(attr Attr, raw any) qval.Value {
	s, ok := scalarString(raw)
	if !ok {
		v.invalid(attr.Name, "expected a date, got %T", raw)
		return nil
	}
	p, err := parsePeriod(s, v.vc.Now)
	if err != nil {
		v.invalid(attr.Name, "expected a date: %v", err)
		return nil
	}
	return qval.String(formatDay(p.start))
}

// validateDateRange accepts a single expression (expanded to its natural
// period) or a two-element list where the first bounds the start and the
// second the end.
func (v *validator) validateDateRange(attr Attr, raw any) qval.Value {
	var startRaw, endRaw string
	switch val := raw.(type) {
	case []any:
		switch len(val) {
		case 1:
			s, ok := scalarString(val[0])
			if !ok {
				v.invalid(attr.Name, "expected date strings, got %v", raw)
				return nil
			}
			startRaw, endRaw = s, s
		case 2:
			a, okA := scalarString(val[0])
			b, okB := scalarString(val[1])
			if !okA || !okB {
				v.invalid(attr.Name, "expected date strings, got %v", raw)
				return nil
			}
			startRaw, endRaw = a, b
		default:
			v.invalid(attr.Name, "expected one or two dates, got %d", len(val))
			return nil
		}
	default:
		s, ok := scalarString(raw)
		if !ok {
			v.invalid(attr.Name, "expected a date range, got %T", raw)
			return nil
		}
		startRaw, endRaw = s, s
	}

	startP, err := parsePeriod(startRaw, v.vc.Now)
	if err != nil {
		v.invalid(attr.Name, "bad range start: %v", err)
		return nil
	}
	endP, err := parsePeriod(endRaw, v.vc.Now)
	if err != nil {
		v.invalid(attr.Name, "bad range end: %v", err)
		return nil
	}
	return qval.Array{qval.String(formatDay(startP.start)), qval.String(formatDay(endP.end))}
}

func (v *validator) validateString(attr Attr, raw any) qval.Value {
	s, ok := scalarString(raw)
	if !ok {
		v.invalid(attr.Name, "expected a string, got %T", raw)
		return nil
	}
	s = squeeze(s)
	if attr.Limit > 0 && len(s) > attr.Limit {
		v.invalid(attr.Name, "value exceeds %d characters", attr.Limit)
		return nil
	}
	return qval.String(s)
}

func (v *validator) validateReference(attr Attr, raw any) (qval.Value, error) {
	id, err := v.resolveOne(attr, raw)
	if err != nil || id == 0 {
		return nil, err
	}
	return qval.Int(id), nil
}

func (v *validator) validateReferenceList(attr Attr, raw any) (qval.Value, error) {
	var items []any
	switch val := raw.(type) {
	case string:
		for _, part := range strings.Split(val, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
	case []any:
		items = val
	case []int64:
		for _, n := range val {
			items = append(items, n)
		}
	case []string:
		for _, s := range val {
			items = append(items, s)
		}
	default:
		items = []any{val}
	}

	if len(items) > MaxListLength {
		items = items[:MaxListLength]
	}

	ids := make(qval.Array, 0, len(items))
	seen := make(map[int64]bool, len(items))
	for _, item := range items {
		id, err := v.resolveOne(attr, item)
		if err != nil {
			return nil, err
		}
		if id != 0 && !seen[id] {
			seen[id] = true
			ids = append(ids, qval.Int(id))
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return ids, nil
}

// resolveOne turns a single reference (id, name string, or resolved object)
// into an id, recording a not-found error and returning 0 when it cannot.
func (v *validator) resolveOne(attr Attr, raw any) (int64, error) {
	if holder, ok := raw.(IDHolder); ok {
		return holder.EntityID(), nil
	}

	res, ok := v.resolvers[attr.Target]
	if !ok {
		return 0, Configf("no resolver registered for entity type %q", attr.Target)
	}

	if id, ok := parseInt(raw); ok && id > 0 {
		exists, err := res.ExistsID(v.ctx, id)
		if err != nil {
			return 0, fmt.Errorf("resolve %s id %d: %w", attr.Target, id, err)
		}
		if !exists {
			v.notFound(attr.Name, KindNotFoundByID, "no %s with id %d", attr.Target, id)
			return 0, nil
		}
		return id, nil
	}

	s, ok := scalarString(raw)
	if !ok {
		v.invalid(attr.Name, "expected an id or name for %s, got %T", attr.Target, raw)
		return 0, nil
	}
	matches, err := res.ResolveName(v.ctx, s)
	if err != nil {
		return 0, fmt.Errorf("resolve %s %q: %w", attr.Target, s, err)
	}
	switch len(matches) {
	case 0:
		v.notFound(attr.Name, KindNotFoundByString, "no %s matching %q", attr.Target, s)
		return 0, nil
	case 1:
		return matches[0], nil
	default:
		v.notFound(attr.Name, KindNotFoundByString, "%q matches %d %s records", s, len(matches), attr.Target)
		return 0, nil
	}
}

var geoBoxKeys = []string{"north", "south", "east", "west"}

// validateGeoBox requires exactly the four bounds, each independently
// numeric. A host value that is not a map at all is a programmer error.
func (v *validator) validateGeoBox(attr Attr, raw any) (qval.Value, error) {
	m, err := hashValue(attr, raw)
	if err != nil {
		return nil, err
	}

	box := make(qval.Object, 4)
	for _, key := range geoBoxKeys {
		bound, present := m[key]
		if !present {
			v.invalid(attr.Name, "missing bound %q", key)
			return nil, nil
		}
		f, ok := parseFloat(bound)
		if !ok {
			v.invalid(attr.Name, "bound %q is not numeric: %v", key, bound)
			return nil, nil
		}
		box[key] = qval.Float(f)
	}
	if len(m) != len(geoBoxKeys) {
		v.invalid(attr.Name, "expected exactly north/south/east/west, got %d keys", len(m))
		return nil, nil
	}
	return box, nil
}

// validateNestedQuery validates a nested query parameter by delegating to
// the target entity's schema. The stored value carries the nested flavor
// and its full normalized param map.
func (v *validator) validateNestedQuery(attr Attr, raw any) (qval.Value, error) {
	if v.subquery == nil {
		return nil, Configf("attribute %q needs a subquery validator", attr.Name)
	}
	m, err := hashValue(attr, raw)
	if err != nil {
		return nil, err
	}

	flavor := FlavorAll
	params := map[string]any{}
	if f, ok := m["flavor"].(string); ok && f != "" {
		flavor = Flavor(f)
	}
	if p, ok := m["params"].(map[string]any); ok {
		params = p
	} else if _, declared := m["params"]; !declared && len(m) > 0 {
		// Shorthand: the map itself is the param set.
		if _, hasFlavor := m["flavor"]; !hasFlavor {
			params = m
		}
	}

	nested, nestedErrs, err := v.subquery(v.ctx, v.vc, attr.Target, flavor, params)
	if err != nil {
		return nil, err
	}
	for _, e := range nestedErrs {
		v.errs = append(v.errs, ValidationError{
			Param:   attr.Name + "." + e.Param,
			Kind:    e.Kind,
			Message: e.Message,
		})
	}
	return qval.Object{
		"flavor": qval.String(string(flavor)),
		"params": nested,
	}, nil
}

// hashValue insists the host value for a hash-shaped attribute is a map.
// Anything else is a code defect, not user input, so it is a hard error.
func hashValue(attr Attr, raw any) (map[string]any, error) {
	switch m := raw.(type) {
	case map[string]any:
		return m, nil
	case qval.Object:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = qval.ToGo(val)
		}
		return out, nil
	default:
		return nil, Configf("attribute %q requires a map value, got %T", attr.Name, raw)
	}
}

// scalarString stringifies scalar inputs. Maps and slices are not scalars.
func scalarString(raw any) (string, bool) {
	switch val := raw.(type) {
	case string:
		return val, true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), true
	case qval.String:
		return string(val), true
	case qval.Int:
		return strconv.FormatInt(int64(val), 10), true
	default:
		return "", false
	}
}

func parseInt(raw any) (int64, bool) {
	switch val := raw.(type) {
	case int:
		return int64(val), true
	case int64:
		return val, true
	case float64:
		if val == float64(int64(val)) {
			return int64(val), true
		}
		return 0, false
	case qval.Int:
		return int64(val), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func parseFloat(raw any) (float64, bool) {
	switch val := raw.(type) {
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case float64:
		return val, true
	case qval.Int:
		return float64(val), true
	case qval.Float:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// rangeParts splits a range input into its two endpoints. A bare scalar is
// the degenerate range (v, v). The string form "lo-hi" splits on a dash
// with a digit on its left, so negative single values still parse; negative
// endpoints need the two-element form.
func rangeParts(raw any) (lo, hi any, ok bool) {
	switch val := raw.(type) {
	case []any:
		switch len(val) {
		case 1:
			return val[0], val[0], true
		case 2:
			return val[0], val[1], true
		default:
			return nil, nil, false
		}
	case string:
		s := strings.TrimSpace(val)
		for i := 1; i < len(s); i++ {
			if s[i] == '-' && (s[i-1] >= '0' && s[i-1] <= '9' || s[i-1] == '.') {
				return s[:i], s[i+1:], true
			}
		}
		return s, s, true
	default:
		return raw, raw, true
	}
}

// squeeze collapses runs of whitespace to single spaces and trims the ends.
func squeeze(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
