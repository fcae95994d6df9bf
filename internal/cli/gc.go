package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewGCCommand creates the gc command: collect stale registry rows.
func NewGCCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Remove stale registered queries",
		Long: `Delete registry rows past their retention window: queries nobody ever
came back to after an hour, and queries idle for a day.

Example:
  queryden gc --db ./queryden.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGC(cmd.Context(), rootOpts, cmd)
		},
	}
	return cmd
}

func runGC(ctx context.Context, opts *RootOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	eng, st, err := openEngine(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	removed, err := eng.Cleanup(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "cleanup failed", err)
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]any{"removed": removed})
	}
	fmt.Fprintf(formatter.Writer, "removed %d stale queries\n", removed)
	return nil
}
