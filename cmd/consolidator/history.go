package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/opscart/k8s-energy-consolidator/pkg/models"
	"github.com/opscart/k8s-energy-consolidator/pkg/reporter"
	"github.com/opscart/k8s-energy-consolidator/pkg/storage"
)

var (
	historyLimit    int
	historyWorkload string
	historySince    time.Duration
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query stored telemetry and decisions",
		Long: `Read consolidation cycles, placement decisions, host telemetry and
savings recorded by earlier runs. Requires a PostgreSQL database
(DATABASE_URL); STORAGE_ENABLED is implied.`,
	}

	cmd.PersistentFlags().IntVar(&historyLimit, "limit", 20, "Maximum records to show")

	placements := &cobra.Command{
		Use:   "placements",
		Short: "List placement decisions, newest first",
		Args:  cobra.NoArgs,
		RunE: withStore(func(cmd *cobra.Command, store storage.Store, args []string) (*reporter.Report, error) {
			ds, err := store.ListPlacements(cmd.Context(), historyWorkload, historyLimit)
			if err != nil {
				return nil, err
			}
			return &reporter.Report{Title: "PLACEMENT HISTORY", Placements: ds}, nil
		}),
	}
	placements.Flags().StringVar(&historyWorkload, "workload", "", "Only decisions for this workload")

	savings := &cobra.Command{
		Use:   "savings",
		Short: "Sum energy saved by consolidation",
		Args:  cobra.NoArgs,
		RunE: withStore(func(cmd *cobra.Command, store storage.Store, args []string) (*reporter.Report, error) {
			sum, err := store.Savings(cmd.Context(), time.Now().Add(-historySince))
			if err != nil {
				return nil, err
			}
			return &reporter.Report{Title: "CONSOLIDATION SAVINGS", Savings: sum}, nil
		}),
	}
	savings.Flags().DurationVar(&historySince, "since", 24*time.Hour, "Look back this far")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "cycles [cycle-id]",
			Short: "List consolidation cycles, or show one",
			Args:  cobra.MaximumNArgs(1),
			RunE: withStore(func(cmd *cobra.Command, store storage.Store, args []string) (*reporter.Report, error) {
				var cycles []models.ConsolidationResult
				if len(args) == 1 {
					r, err := store.GetConsolidation(cmd.Context(), args[0])
					if err != nil {
						return nil, err
					}
					cycles = append(cycles, *r)
				} else {
					var err error
					if cycles, err = store.ListConsolidations(cmd.Context(), historyLimit); err != nil {
						return nil, err
					}
				}
				return &reporter.Report{Title: "CONSOLIDATION HISTORY", Cycles: cycles}, nil
			}),
		},
		placements,
		&cobra.Command{
			Use:   "host <host-id>",
			Short: "Show recent telemetry for one host",
			Args:  cobra.ExactArgs(1),
			RunE: withStore(func(cmd *cobra.Command, store storage.Store, args []string) (*reporter.Report, error) {
				ts, err := store.HostHistory(cmd.Context(), args[0], historyLimit)
				if err != nil {
					return nil, err
				}
				return &reporter.Report{Title: "TELEMETRY " + args[0], Snapshot: ts}, nil
			}),
		},
		savings,
	)
	return cmd
}

type historyFunc func(cmd *cobra.Command, store storage.Store, args []string) (*reporter.Report, error)

// withStore opens the database store for one query. History is only
// meaningful against a persistent store, so storage is forced on.
func withStore(fn historyFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg.StorageEnabled = true
		if err := cfg.Validate(); err != nil {
			return err
		}

		store, err := storage.NewStore(cfg.StorageConfig())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer store.Close()

		report, err := fn(cmd, store, args)
		if err != nil {
			return err
		}
		if isEmpty(report) {
			info("No records found")
			return nil
		}
		return reporter.New(format, os.Stdout).Render(report)
	}
}

func isEmpty(r *reporter.Report) bool {
	return r.Savings == nil && len(r.Cycles) == 0 && len(r.Placements) == 0 && len(r.Snapshot) == 0
}
