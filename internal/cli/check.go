package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/trappiz/tesla-order-status/internal/diff"
	"github.com/trappiz/tesla-order-status/internal/engine"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Cached  bool
	NoCache bool
	Order   string
	Details bool
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Poll orders and report changes",
		Long: `Fetch the current state of every order on the account, diff it against
the stored snapshot, and print what changed. Snapshots fetched within the
cache window are reused instead of hitting the API.

Example:
  tesla-order-status check
  tesla-order-status check --cached
  tesla-order-status check --order RN000123456 --details`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Cached, "cached", false, "serve from stored snapshots, no network")
	cmd.Flags().BoolVar(&opts.NoCache, "no-cache", false, "force a live fetch even inside the cache window")
	cmd.Flags().StringVar(&opts.Order, "order", "", "report only this order reference")
	cmd.Flags().BoolVar(&opts.Details, "details", false, "include the milestone timeline")

	return cmd
}

func runCheck(cmd *cobra.Command, opts *CheckOptions) error {
	if opts.Cached && opts.NoCache {
		return NewExitError(ExitCommandError, "--cached and --no-cache are mutually exclusive")
	}

	a, err := newApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	results, err := a.engine.CheckAll(ctx, engine.Options{
		ForceCached: opts.Cached,
		BypassCache: opts.NoCache,
		OrderFilter: opts.Order,
	})
	if err != nil {
		_ = formatter.Error(errorCodeOf(err), err.Error())
		return WrapExitError(ExitFailure, "check failed", err)
	}

	display, unknownFilter := filterResults(results, opts.Order)
	if unknownFilter {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: no order with reference %s\n", opts.Order)
	}

	if opts.Format == "json" {
		return renderCheckJSON(ctx, a, formatter, display, opts.Details)
	}
	if err := renderCheckText(ctx, a, cmd, display, opts); err != nil {
		return err
	}

	if code := engine.Overall(display); code == engine.CodeError {
		return NewExitError(ExitFailure, "one or more orders failed to check")
	}
	return nil
}

// filterResults narrows the display set to one reference. The second return
// reports a filter that matched nothing.
func filterResults(results []engine.Result, order string) ([]engine.Result, bool) {
	if order == "" {
		return results, false
	}
	for _, res := range results {
		if res.Reference == order {
			return []engine.Result{res}, false
		}
	}
	return results, true
}

func renderCheckText(ctx context.Context, a *app, cmd *cobra.Command, results []engine.Result, opts *CheckOptions) error {
	out := cmd.OutOrStdout()
	for i, res := range results {
		if i > 0 {
			fmt.Fprintln(out)
		}
		if res.Err != nil {
			fmt.Fprintf(out, "Order %s\n  check failed: %v\n", res.Reference, res.Err)
			continue
		}

		fmt.Fprint(out, a.renderer.Summary(res.Snapshot))

		switch {
		case res.FirstSeen:
			fmt.Fprintln(out, "  Now tracking this order.")
		case res.Throttled:
			fmt.Fprintln(out, "  Recently checked; showing cached state.")
		case len(res.Changes) > 0:
			fmt.Fprintln(out, "  Changes:")
			fmt.Fprint(out, a.renderer.Changes(res.Changes))
		case opts.Cached:
			last, err := a.store.LastChanges(ctx, res.Reference)
			if err != nil {
				return WrapExitError(ExitCommandError, "load last changes", err)
			}
			if len(last) > 0 {
				fmt.Fprintln(out, "  Last recorded changes:")
				fmt.Fprint(out, a.renderer.Changes(last))
			} else {
				fmt.Fprintln(out, "  No changes recorded.")
			}
		default:
			fmt.Fprintln(out, "  No changes.")
		}

		if opts.Details {
			history, err := a.store.History(ctx, res.Reference)
			if err != nil {
				return WrapExitError(ExitCommandError, "load history", err)
			}
			entries := a.renderer.Timeline(res.Snapshot, history)
			if len(entries) > 0 {
				fmt.Fprintln(out, "  Timeline:")
				fmt.Fprint(out, indent(a.renderer.RenderTimeline(entries)))
			}
		}
	}
	return nil
}

// checkResultJSON is the per-order payload of check --format json.
type checkResultJSON struct {
	Reference string          `json:"reference"`
	Code      int             `json:"code"`
	State     string          `json:"state"`
	FirstSeen bool            `json:"first_seen,omitempty"`
	Throttled bool            `json:"throttled,omitempty"`
	Changes   []diff.Record   `json:"changes,omitempty"`
	Timeline  []TimelineEntry `json:"timeline,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func renderCheckJSON(ctx context.Context, a *app, formatter *OutputFormatter, results []engine.Result, details bool) error {
	payload := make([]checkResultJSON, 0, len(results))
	for _, res := range results {
		item := checkResultJSON{
			Reference: res.Reference,
			Code:      int(res.Code),
			State:     res.Code.String(),
			FirstSeen: res.FirstSeen,
			Throttled: res.Throttled,
			Changes:   res.Changes,
		}
		if res.Err != nil {
			item.Error = res.Err.Error()
		}
		if details && res.Err == nil {
			history, err := a.store.History(ctx, res.Reference)
			if err != nil {
				return WrapExitError(ExitCommandError, "load history", err)
			}
			item.Timeline = a.renderer.Timeline(res.Snapshot, history)
		}
		payload = append(payload, item)
	}
	if err := formatter.Success(payload); err != nil {
		return err
	}
	if code := engine.Overall(results); code == engine.CodeError {
		return NewExitError(ExitFailure, "one or more orders failed to check")
	}
	return nil
}

// indent shifts every non-empty line right by two spaces.
func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = "  " + line
		}
	}
	return strings.Join(lines, "\n")
}
