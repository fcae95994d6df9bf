package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fernfield/queryden/internal/engine"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Permalink string
	Results   bool
}

// NewShowCommand creates the show command: inspect a registered query by
// id or permalink token.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show [query-id]",
		Short: "Inspect a registered query",
		Long: `Look up a registered query by numeric id, or by permalink token with
--permalink, and print its definition and access stats.

Example:
  queryden show 42
  queryden show --permalink 01890bcd-...-abcdef --results`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showQuery(cmd.Context(), opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Permalink, "permalink", "", "look up by permalink token instead of id")
	cmd.Flags().BoolVar(&opts.Results, "results", false, "also execute the query and print its ids")

	return cmd
}

func showQuery(ctx context.Context, opts *ShowOptions, args []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if (len(args) == 0) == (opts.Permalink == "") {
		return NewExitError(ExitCommandError, "pass exactly one of a query id or --permalink")
	}

	eng, st, err := openEngine(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	var q *engine.Query
	if opts.Permalink != "" {
		q, err = eng.FindByPermalink(ctx, opts.Permalink)
	} else {
		var id int64
		id, err = strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return WrapExitError(ExitCommandError, "bad query id", err)
		}
		q, err = eng.SafeFind(ctx, id)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "lookup failed", err)
	}
	if q == nil {
		formatter.Error("E404", "no such query", nil)
		return NewExitError(ExitFailure, "no such query")
	}

	rec := q.Record()
	payload := map[string]any{
		"id":           rec.ID,
		"model":        string(q.Model()),
		"flavor":       string(q.Flavor()),
		"params":       q.Params(),
		"permalink":    rec.Permalink,
		"created_at":   rec.CreatedAt,
		"accessed_at":  rec.AccessedAt,
		"access_count": rec.AccessCount,
	}
	if cur, set := q.CurrentID(); set {
		payload["current_id"] = cur
	}
	if opts.Results {
		ids, err := q.ResultIDs(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "query execution failed", err)
		}
		payload["ids"] = ids
		payload["num_results"] = len(ids)
	}

	if opts.Format == "json" {
		return formatter.Success(payload)
	}

	fmt.Fprintf(formatter.Writer, "query %d: %s/%s\n", rec.ID, q.Model(), q.Flavor())
	fmt.Fprintf(formatter.Writer, "params: %v\n", q.Params())
	fmt.Fprintf(formatter.Writer, "permalink: %s\n", rec.Permalink)
	fmt.Fprintf(formatter.Writer, "created %s, last accessed %s, %d re-accesses\n",
		rec.CreatedAt.Format("2006-01-02 15:04:05"),
		rec.AccessedAt.Format("2006-01-02 15:04:05"),
		rec.AccessCount)
	if cur, set := q.CurrentID(); set {
		fmt.Fprintf(formatter.Writer, "cursor at id %d\n", cur)
	}
	if ids, ok := payload["ids"].([]int64); ok {
		fmt.Fprintf(formatter.Writer, "%d results:\n", len(ids))
		for _, id := range ids {
			fmt.Fprintln(formatter.Writer, id)
		}
	}
	return nil
}
