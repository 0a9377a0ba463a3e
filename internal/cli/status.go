package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trappiz/tesla-order-status/internal/engine"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Cached bool
	Order  string
}

// NewStatusCommand creates the status command. It is the scripting entry
// point: one numeric code on stdout, the same code as process exit status,
// and never any interactive step.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print a single result code",
		Long: `Run a poll cycle and print one code: 0 no change, 1 changed, 2 pending
(cache reused inside the TTL window), -1 error. The process exits with the
same code. Missing credentials are an error; no login is ever started.

Example:
  tesla-order-status status
  tesla-order-status status --cached --order RN000123456`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Cached, "cached", false, "serve from stored snapshots, no network")
	cmd.Flags().StringVar(&opts.Order, "order", "", "restrict the code to this order reference")

	return cmd
}

func runStatus(cmd *cobra.Command, opts *StatusOptions) error {
	a, err := newApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	results, err := a.engine.CheckAll(ctx, engine.Options{
		ForceCached: opts.Cached,
		OrderFilter: opts.Order,
	})

	code := engine.CodeError
	if err == nil {
		scoped, unknown := filterResults(results, opts.Order)
		if unknown {
			code = engine.CodeError
		} else {
			code = engine.Overall(scoped)
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), int(code))
	if code == engine.CodeNoChange {
		return nil
	}
	// The code itself is the output; the empty message keeps stderr quiet
	// for the changed and pending cases.
	return &ExitError{Code: int(code), Err: err}
}
