package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/starpay"
	"github.com/xraph/starpay/charge"
)

// withRuntime builds an offline runtime for one operator command.
func withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *runtime) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	rt, err := build(ctx, cfg, logger, offlineChannel)
	if err != nil {
		return err
	}
	defer rt.Close(context.WithoutCancel(ctx))
	return fn(ctx, rt)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the ledger schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(cmd, func(_ context.Context, rt *runtime) error {
			fmt.Fprintf(cmd.OutOrStdout(), "%s store migrated\n", rt.cfg.Store)
			return nil
		})
	},
}

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "List the plan catalog",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		catalog, err := loadCatalog(cfg.PlansFile)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, p := range catalog.List() {
			fmt.Fprintf(out, "%-12s %8s  %3d days  %s\n", p.ID, p.Price, p.Days(), p.Name)
		}
		return nil
	},
}

var chargesCmd = &cobra.Command{
	Use:   "charges",
	Short: "Inspect the charge ledger",
}

var chargesGetCmd = &cobra.Command{
	Use:   "get <charge-id>",
	Short: "Show one charge and its activation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			view, err := rt.engine.GetCharge(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		})
	},
}

var listOpts struct {
	requester int64
	planID    string
	since     time.Duration
	limit     int
	failed    bool
}

var chargesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded charges, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			if listOpts.failed {
				acts, err := rt.engine.FailedActivations(ctx, listOpts.limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), acts)
			}

			opts := charge.ListOpts{
				RequesterID: listOpts.requester,
				PlanID:      listOpts.planID,
				Limit:       listOpts.limit,
			}
			if listOpts.since > 0 {
				opts.Since = time.Now().Add(-listOpts.since)
			}
			recs, err := rt.engine.ListCharges(ctx, opts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), recs)
		})
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <charge-id>",
	Short: "Retry activation for a charge whose activation failed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			st, err := rt.engine.Reconcile(ctx, args[0])
			if st != nil {
				if perr := printJSON(cmd.OutOrStdout(), st); perr != nil {
					return perr
				}
			}
			if err != nil {
				return err
			}
			if st.Status != starpay.StatusActivated && st.Status != starpay.StatusAlreadySettled {
				return fmt.Errorf("reconcile %s: %s", args[0], st.Status)
			}
			return nil
		})
	},
}

func init() {
	f := chargesListCmd.Flags()
	f.Int64Var(&listOpts.requester, "requester", 0, "only charges paid by this Telegram user id")
	f.StringVar(&listOpts.planID, "plan", "", "only charges for this plan id")
	f.DurationVar(&listOpts.since, "since", 0, "only charges settled within this window")
	f.IntVar(&listOpts.limit, "limit", 50, "maximum rows")
	f.BoolVar(&listOpts.failed, "failed", false, "list failed activations instead of charges")

	chargesCmd.AddCommand(chargesGetCmd, chargesListCmd)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
