package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fernfield/queryden/internal/engine"
	"github.com/fernfield/queryden/internal/paginate"
	"github.com/fernfield/queryden/internal/schema"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Flavor     string
	ParamsFile string
	Params     []string
	Save       bool
	Page       int
	PerPage    int
	Letter     string
	Letters    bool
	UserID     int64
}

// NewRunCommand creates the run command: validate a query, optionally
// register it, execute it and print the matching ids.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <entity-type>",
		Short: "Execute a query against the catalog",
		Long: `Validate a query against the entity catalog, optionally register it,
and print the ids it matches.

Parameters come from a YAML file (--params) and/or repeated --param
key=value flags. Values are parsed per the attribute's declared type, so
--param has_notes=yes and --param created=2024 both work.

Example:
  queryden run Observation --flavor by_user --param user=mary
  queryden run Name --param pattern=agaricus --flavor pattern_search --save
  queryden run Observation --params query.yaml --page 2 --per-page 20`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Flavor, "flavor", "all", "query flavor")
	cmd.Flags().StringVar(&opts.ParamsFile, "params", "", "YAML file of query parameters")
	cmd.Flags().StringArrayVar(&opts.Params, "param", nil, "query parameter as key=value (repeatable)")
	cmd.Flags().BoolVar(&opts.Save, "save", false, "register the query (find-or-create) and print its id and permalink")
	cmd.Flags().IntVar(&opts.Page, "page", 0, "page number (0 = all results)")
	cmd.Flags().IntVar(&opts.PerPage, "per-page", 50, "results per page")
	cmd.Flags().StringVar(&opts.Letter, "letter", "", "restrict to results whose sort key starts with this letter")
	cmd.Flags().BoolVar(&opts.Letters, "letters", false, "also print the distinct leading letters of the whole result set")
	cmd.Flags().Int64Var(&opts.UserID, "user-id", 0, "acting user id, for reference resolution context")

	return cmd
}

func runQuery(ctx context.Context, opts *RunOptions, model string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	params, err := loadParams(opts.ParamsFile, opts.Params)
	if err != nil {
		return WrapExitError(ExitCommandError, "bad parameters", err)
	}

	eng, st, err := openEngine(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	vc := schema.Context{CurrentUser: opts.UserID, Now: time.Now()}
	var q *engine.Query
	if opts.Save {
		q, err = eng.LookupAndSave(ctx, vc, schema.EntityType(model), schema.Flavor(opts.Flavor), params)
	} else {
		q, err = eng.Lookup(ctx, vc, schema.EntityType(model), schema.Flavor(opts.Flavor), params)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "lookup failed", err)
	}

	if !q.Valid() {
		formatter.Error("E001", "query is invalid", q.ValidationErrors())
		return NewExitError(ExitFailure, "query is invalid: "+strings.Join(q.ValidationErrors(), "; "))
	}

	if opts.Save {
		slog.Info("query registered", "id", q.ID(), "permalink", q.Permalink())
	}

	payload, err := executePage(ctx, q, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "query execution failed", err)
	}
	if opts.Save {
		payload["query_id"] = q.ID()
		payload["permalink"] = q.Permalink()
	}

	if opts.Format == "json" {
		return formatter.Success(payload)
	}
	return printRunText(formatter, payload)
}

// executePage runs the query and applies any pagination flags, building
// the output payload.
func executePage(ctx context.Context, q *engine.Query, opts *RunOptions) (map[string]any, error) {
	payload := map[string]any{
		"model":  string(q.Model()),
		"flavor": string(q.Flavor()),
		"params": q.Params(),
	}

	if opts.Page == 0 && opts.Letter == "" && !opts.Letters {
		ids, err := q.ResultIDs(ctx)
		if err != nil {
			return nil, err
		}
		payload["ids"] = ids
		payload["num_results"] = len(ids)
		return payload, nil
	}

	page := opts.Page
	if page < 1 {
		page = 1
	}
	p, err := paginate.New(page, opts.PerPage)
	if err != nil {
		return nil, err
	}
	p.Letter = opts.Letter
	p.NeedLetters = opts.Letters

	ids, err := q.PaginateIDs(ctx, p)
	if err != nil {
		return nil, err
	}
	payload["ids"] = ids
	payload["num_results"] = p.NumTotal()
	payload["page"] = page
	payload["num_pages"] = p.NumPages()
	if opts.Letters {
		payload["letters"] = p.UsedLetters()
	}
	return payload, nil
}

func printRunText(f *OutputFormatter, payload map[string]any) error {
	fmt.Fprintf(f.Writer, "%s/%s: %d results\n",
		payload["model"], payload["flavor"], payload["num_results"])
	if id, ok := payload["query_id"]; ok {
		fmt.Fprintf(f.Writer, "registered as query %v (permalink %v)\n", id, payload["permalink"])
	}
	if letters, ok := payload["letters"].([]string); ok {
		fmt.Fprintf(f.Writer, "letters: %s\n", strings.Join(letters, " "))
	}
	if page, ok := payload["page"]; ok {
		fmt.Fprintf(f.Writer, "page %v of %v\n", page, payload["num_pages"])
	}
	for _, id := range payload["ids"].([]int64) {
		fmt.Fprintln(f.Writer, id)
	}
	return nil
}
