package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fernfield/queryden/internal/catalog"
	"github.com/fernfield/queryden/internal/coerce"
	"github.com/fernfield/queryden/internal/query"
	"github.com/fernfield/queryden/internal/qval"
	"github.com/fernfield/queryden/internal/schema"
	"github.com/fernfield/queryden/internal/sqlgen"
	"github.com/fernfield/queryden/internal/store"
)

// Engine is the front door of the query system: it validates raw
// parameters into definitions, registers them in the store, executes
// them, and relates them to queries over other entity types.
//
// The engine itself is stateless across requests; per-query state (the
// result cache, the cursor) lives on the Query handles it returns, one
// handle per request-scoped flow of control.
type Engine struct {
	store    *store.Store
	cat      *catalog.Catalog
	compiler *sqlgen.Compiler
	registry *coerce.Registry
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithNow overrides the clock, letting tests pin lookup timestamps and
// the relative-date reference point.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine over an open store and a loaded catalog.
func New(s *store.Store, cat *catalog.Catalog, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		cat:      cat,
		compiler: sqlgen.New(cat),
		registry: coerce.Default(cat),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Lookup validates raw params into a Query handle without persisting
// anything. The handle is usable even when validation recorded errors;
// check Valid before trusting it to mean what the caller meant.
//
// Returns an error only for programmer mistakes (unknown entity type,
// undeclared flavor, structurally wrong values) or store failures during
// reference resolution.
func (e *Engine) Lookup(ctx context.Context, vc schema.Context, model schema.EntityType, flavor schema.Flavor, params map[string]any) (*Query, error) {
	def, err := e.validate(ctx, vc, model, flavor, params)
	if err != nil {
		return nil, err
	}
	return e.newHandle(def, nil), nil
}

// LookupAndSave validates like Lookup and then registers the definition:
// find-or-create keyed on the canonical fingerprint. Re-registering an
// equal query returns the existing record with its access count bumped.
// Definitions with validation errors are not persisted.
func (e *Engine) LookupAndSave(ctx context.Context, vc schema.Context, model schema.EntityType, flavor schema.Flavor, params map[string]any) (*Query, error) {
	def, err := e.validate(ctx, vc, model, flavor, params)
	if err != nil {
		return nil, err
	}
	if !def.Valid() {
		return e.newHandle(def, nil), nil
	}
	return e.save(ctx, def)
}

// Save persists an already-validated definition, such as one produced by
// coercion. Invalid definitions are returned unpersisted.
func (e *Engine) Save(ctx context.Context, def *query.Definition) (*Query, error) {
	if def == nil {
		return nil, schema.Configf("cannot save a nil definition")
	}
	if !def.Valid() {
		return e.newHandle(def, nil), nil
	}
	return e.save(ctx, def)
}

func (e *Engine) save(ctx context.Context, def *query.Definition) (*Query, error) {
	serialized, err := def.Serialize()
	if err != nil {
		return nil, err
	}
	fingerprint, err := def.Fingerprint()
	if err != nil {
		return nil, err
	}

	rec, created, err := e.store.FindOrCreate(ctx,
		string(def.Model()), string(def.Flavor()), serialized, fingerprint, e.now())
	if err != nil {
		return nil, err
	}
	e.logger.Debug("query registered",
		"query", def.String(),
		"id", rec.ID,
		"created", created,
		"access_count", rec.AccessCount)
	return e.newHandle(def, rec), nil
}

// SafeFind returns the registered query with the given id, or nil when
// the id is unknown or the stored row cannot be restored. It never fails
// on bad input; only store errors propagate.
func (e *Engine) SafeFind(ctx context.Context, id int64) (*Query, error) {
	rec, err := e.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.restore(rec)
}

// FindByPermalink resolves a share token to its registered query, or
// nil. Following a permalink counts as an access.
func (e *Engine) FindByPermalink(ctx context.Context, token string) (*Query, error) {
	rec, err := e.store.FindByPermalink(ctx, token, e.now())
	if err != nil {
		return nil, err
	}
	return e.restore(rec)
}

func (e *Engine) restore(rec *store.Record) (*Query, error) {
	if rec == nil {
		return nil, nil
	}
	def, err := query.Deserialize(schema.EntityType(rec.Model), schema.Flavor(rec.Flavor), rec.Serialized)
	if err != nil {
		e.logger.Warn("stored query no longer restorable", "id", rec.ID, "error", err)
		return nil, nil
	}
	return e.newHandle(def, rec), nil
}

// Cleanup removes stale registry rows per the store's retention policy
// and reports how many went.
func (e *Engine) Cleanup(ctx context.Context) (int64, error) {
	n, err := e.store.Cleanup(ctx, e.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.logger.Info("query registry cleaned", "removed", n)
	}
	return n, nil
}

// Catalog exposes the entity catalog the engine was built over.
func (e *Engine) Catalog() *catalog.Catalog { return e.cat }

// validate runs the full normalization pipeline for one (model, flavor,
// params) triple, wiring nested query params back through itself.
func (e *Engine) validate(ctx context.Context, vc schema.Context, model schema.EntityType, flavor schema.Flavor, params map[string]any) (*query.Definition, error) {
	if flavor == "" {
		flavor = schema.FlavorAll
	}
	attrs, err := e.cat.AttrsFor(model, flavor)
	if err != nil {
		return nil, err
	}
	normalized, errs, err := schema.Validate(ctx, vc, attrs, params,
		e.resolvers(), e.subqueryValidator())
	if err != nil {
		return nil, fmt.Errorf("validate %s/%s params: %w", model, flavor, err)
	}
	return query.New(model, flavor, normalized, errs), nil
}

// subqueryValidator validates nested query params against the target
// entity's own schema, recursively.
func (e *Engine) subqueryValidator() schema.SubqueryValidator {
	return func(ctx context.Context, vc schema.Context, target schema.EntityType, flavor schema.Flavor, raw map[string]any) (qval.Object, []schema.ValidationError, error) {
		def, err := e.validate(ctx, vc, target, flavor, raw)
		if err != nil {
			return nil, nil, err
		}
		return def.RawParams(), def.Errors(), nil
	}
}
