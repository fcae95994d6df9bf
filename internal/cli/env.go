package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fernfield/queryden/internal/catalog"
	"github.com/fernfield/queryden/internal/engine"
	"github.com/fernfield/queryden/internal/store"
)

// openEngine configures logging, opens the database and builds the
// engine over the embedded catalog. The caller closes the returned
// store.
func openEngine(opts *RootOptions) (*engine.Engine, *store.Store, error) {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))

	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	cat, err := catalog.Load()
	if err != nil {
		st.Close()
		return nil, nil, WrapExitError(ExitCommandError, "failed to load entity catalog", err)
	}

	return engine.New(st, cat, engine.WithLogger(slog.Default())), st, nil
}

// loadParams merges a YAML params file with key=value overrides from the
// command line. Overrides win.
func loadParams(file string, kvs []string) (map[string]any, error) {
	params := map[string]any{}

	if file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read params file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &params); err != nil {
			return nil, fmt.Errorf("parse params file: %w", err)
		}
	}

	for _, kv := range kvs {
		key, value, found := strings.Cut(kv, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("bad --param %q: want key=value", kv)
		}
		// Values stay strings; the schema layer parses them per type.
		params[key] = value
	}
	return params, nil
}
