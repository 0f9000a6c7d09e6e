package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/railzwaylabs/tallybook/internal/app"
	"github.com/railzwaylabs/tallybook/internal/clock"
	"github.com/railzwaylabs/tallybook/internal/payment/cleanup"
	"github.com/railzwaylabs/tallybook/internal/seed"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "tallybook",
		Short:        "Subscription billing and payment reconciliation",
		SilenceUsage: true,
	}
	root.AddCommand(
		newMigrateCmd(),
		newServeCmd(),
		newCleanupCmd(),
		newSchedulerCmd(),
		newSeedCmd(),
		newAllCmd(),
	)
	return root
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations and activate the schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Migrate()
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run(app.API)
		},
	}
}

func newSchedulerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run the periodic payment cleanup",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run(app.Scheduler)
		},
	}
}

func newAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Run migrations, then the HTTP API and the scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Migrate(); err != nil {
				return err
			}
			return app.Run(app.API, app.Scheduler)
		},
	}
}

func newCleanupCmd() *cobra.Command {
	var (
		dryRun bool
		asOf   string
	)
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Collapse duplicate payments and correct drifted statuses once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if asOf != "" {
				t, err := time.Parse(time.DateOnly, asOf)
				if err != nil {
					return fmt.Errorf("invalid --as-of %q, expected YYYY-MM-DD: %w", asOf, err)
				}
				ctx = clock.WithTime(ctx, t)
			}

			var svc *cleanup.Service
			return app.RunOnce(ctx, fx.Populate(&svc), func(ctx context.Context) error {
				result, err := svc.Run(ctx, cleanup.Options{DryRun: dryRun})
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report the planned changes without writing them")
	cmd.Flags().StringVar(&asOf, "as-of", "", "evaluate overdue payments as of this date (YYYY-MM-DD)")
	return cmd
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load demo products, a client and a subscription",
		RunE: func(cmd *cobra.Command, args []string) error {
			var seeder *seed.Seeder
			return app.RunOnce(cmd.Context(), fx.Options(seed.Module, fx.Populate(&seeder)), func(ctx context.Context) error {
				return seeder.Run(ctx)
			})
		},
	}
}
