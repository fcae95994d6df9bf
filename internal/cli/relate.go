package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fernfield/queryden/internal/schema"
)

// RelateOptions holds flags for the relate command.
type RelateOptions struct {
	*RootOptions
	Check bool
	Save  bool
}

// NewRelateCommand creates the relate command: coerce a registered query
// onto another entity type.
func NewRelateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RelateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "relate <query-id> <target-type>",
		Short: "Coerce a registered query onto another entity type",
		Long: `Take a registered query and derive the related query over another
entity type, e.g. the locations of an observation query. With --check,
only report whether the coercion is possible.

Example:
  queryden relate 42 Location
  queryden relate 42 Image --check
  queryden relate 42 Location --save`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return relateQuery(cmd.Context(), opts, args[0], schema.EntityType(args[1]), cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Check, "check", false, "only report whether coercion would succeed")
	cmd.Flags().BoolVar(&opts.Save, "save", false, "register the derived query too")

	return cmd
}

func relateQuery(ctx context.Context, opts *RelateOptions, rawID string, target schema.EntityType, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return WrapExitError(ExitCommandError, "bad query id", err)
	}

	eng, st, err := openEngine(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	q, err := eng.SafeFind(ctx, id)
	if err != nil {
		return WrapExitError(ExitCommandError, "lookup failed", err)
	}
	if q == nil {
		formatter.Error("E404", "no such query", nil)
		return NewExitError(ExitFailure, "no such query")
	}

	if opts.Check {
		relatable := q.Relatable(target)
		if opts.Format == "json" {
			return formatter.Success(map[string]any{
				"query_id":  id,
				"target":    string(target),
				"relatable": relatable,
			})
		}
		fmt.Fprintf(formatter.Writer, "query %d -> %s: relatable=%v\n", id, target, relatable)
		if !relatable {
			return NewExitError(ExitFailure, "not relatable")
		}
		return nil
	}

	derived := q.SubqueryOf(target)
	if derived == nil {
		formatter.Error("E002",
			fmt.Sprintf("query %d has no equivalent on %s", id, target), nil)
		return NewExitError(ExitFailure, "not relatable")
	}

	payload := map[string]any{
		"query_id": id,
		"model":    string(derived.Model()),
		"flavor":   string(derived.Flavor()),
		"params":   derived.Params(),
	}
	if opts.Save {
		saved, err := eng.Save(ctx, derived)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to register derived query", err)
		}
		payload["derived_id"] = saved.ID()
		payload["permalink"] = saved.Permalink()
	}

	if opts.Format == "json" {
		return formatter.Success(payload)
	}
	fmt.Fprintf(formatter.Writer, "query %d -> %s/%s\n", id, derived.Model(), derived.Flavor())
	fmt.Fprintf(formatter.Writer, "params: %v\n", derived.Params())
	if derivedID, ok := payload["derived_id"]; ok {
		fmt.Fprintf(formatter.Writer, "registered as query %v (permalink %v)\n",
			derivedID, payload["permalink"])
	}
	return nil
}
