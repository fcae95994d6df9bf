// Package harness runs declarative query scenarios against a live
// engine. A scenario names an entity type, flavor and parameters in
// YAML; the harness looks the query up, executes it, and checks the
// outcome against the scenario's expectations or a golden snapshot.
package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/fernfield/queryden/internal/engine"
	"github.com/fernfield/queryden/internal/schema"
)

// Harness executes scenarios against one engine.
type Harness struct {
	eng *engine.Engine
	vc  schema.Context
}

// New creates a harness over the given engine. The validation context
// applies to every scenario the harness runs.
func New(eng *engine.Engine, vc schema.Context) *Harness {
	return &Harness{eng: eng, vc: vc}
}

// Outcome is what actually happened when a scenario ran.
type Outcome struct {
	Valid  bool
	Errors []string
	IDs    []int64
}

// Run looks up the scenario's query and, if it validates, executes it.
func (h *Harness) Run(ctx context.Context, s Scenario) (*Outcome, error) {
	q, err := h.eng.Lookup(ctx, h.vc, schema.EntityType(s.Model), schema.Flavor(s.Flavor), s.Params)
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", s.Name, err)
	}

	out := &Outcome{Valid: q.Valid(), Errors: q.ValidationErrors()}
	if !out.Valid {
		return out, nil
	}

	ids, err := q.ResultIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", s.Name, err)
	}
	out.IDs = ids
	return out, nil
}

// Check compares an outcome against the scenario's expectations and
// returns one error per mismatch, joined.
func (h *Harness) Check(s Scenario, out *Outcome) error {
	var problems []string

	if s.Expect.Valid != nil && out.Valid != *s.Expect.Valid {
		problems = append(problems, fmt.Sprintf(
			"valid = %v, want %v (errors: %v)", out.Valid, *s.Expect.Valid, out.Errors))
	}
	if s.Expect.IDs != nil && !slices.Equal(out.IDs, s.Expect.IDs) {
		problems = append(problems, fmt.Sprintf(
			"ids = %v, want %v", out.IDs, s.Expect.IDs))
	}
	for _, want := range s.Expect.Errors {
		if !containsSubstring(out.Errors, want) {
			problems = append(problems, fmt.Sprintf(
				"no validation error mentioning %q in %v", want, out.Errors))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("scenario %q: %s", s.Name, strings.Join(problems, "; "))
	}
	return nil
}

func containsSubstring(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}
