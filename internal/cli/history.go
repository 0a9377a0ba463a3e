package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/trappiz/tesla-order-status/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [reference]",
		Short: "Show recorded change batches",
		Long: `Print every recorded change batch, oldest first. With a reference only
that order's history is shown.

Example:
  tesla-order-status history
  tesla-order-status history RN000123456`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := ""
			if len(args) == 1 {
				ref = args[0]
			}
			return runHistory(cmd, opts, ref)
		},
	}

	return cmd
}

func runHistory(cmd *cobra.Command, opts *HistoryOptions, reference string) error {
	a, err := newApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	refs := []string{reference}
	if reference == "" {
		refs, err = a.store.References(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "list references", err)
		}
		if len(refs) == 0 {
			return NewExitError(ExitFailure, "no orders tracked yet; run check first")
		}
	}

	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	if opts.Format == "json" {
		payload := make(map[string][]store.Batch, len(refs))
		for _, ref := range refs {
			history, err := a.store.History(ctx, ref)
			if err != nil {
				return WrapExitError(ExitCommandError, "load history", err)
			}
			payload[ref] = history
		}
		return formatter.Success(payload)
	}

	out := cmd.OutOrStdout()
	for i, ref := range refs {
		history, err := a.store.History(ctx, ref)
		if err != nil {
			return WrapExitError(ExitCommandError, "load history", err)
		}
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "Order %s\n", ref)
		if len(history) == 0 {
			fmt.Fprintln(out, "  No changes recorded.")
			continue
		}
		for _, batch := range history {
			fmt.Fprintf(out, "  %s (batch %d)\n", batch.DetectedAt.Format(time.RFC3339), batch.Seq)
			fmt.Fprint(out, indent(a.renderer.Changes(batch.Changes)))
		}
	}
	return nil
}
