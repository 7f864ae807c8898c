package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opscart/k8s-energy-consolidator/pkg/models"
	"github.com/opscart/k8s-energy-consolidator/pkg/reporter"
)

var (
	placeName     string
	placePrefix   string
	placeImage    string
	placeCPU      float64
	placeMemory   float64
	placeTier     string
	allCandidates bool
)

func newPlaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "place",
		Short: "Score hosts for one workload and place it",
		Long: `Load the cluster, place its pending workloads, then score every eligible
host for the given workload and assign it to the best one. The decision is
recorded in the configured store.`,
		RunE: runPlace,
	}

	cmd.Flags().StringVar(&placeName, "name", "", "Workload name (default: generated from --prefix)")
	cmd.Flags().StringVar(&placePrefix, "prefix", "workload", "Prefix for generated workload names")
	cmd.Flags().StringVar(&placeImage, "image", "", "Container image")
	cmd.Flags().Float64Var(&placeCPU, "cpu", 0.5, "Requested CPU cores")
	cmd.Flags().Float64Var(&placeMemory, "memory", 1.0, "Requested memory in GB")
	cmd.Flags().StringVar(&placeTier, "tier", "bronze", "SLA tier: gold, silver, bronze")
	cmd.Flags().BoolVar(&allCandidates, "all-candidates", false, "Show every candidate instead of the top five")
	return cmd
}

func runPlace(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	tier, err := models.ParseSLATier(placeTier)
	if err != nil {
		return err
	}
	name := placeName
	if name == "" {
		name = models.NewWorkloadName(placePrefix)
	}
	w := models.Workload{Name: name, Image: placeImage, CPU: placeCPU, MemoryGB: placeMemory, Tier: tier}
	if err := w.Validate(); err != nil {
		return err
	}

	st, err := buildStack(ctx, sampleHosts, sampleWorkloads)
	if err != nil {
		return err
	}
	s, err := openSinks()
	if err != nil {
		return err
	}
	defer s.Close()

	ctl, _, err := st.newController(ctx, s)
	if err != nil {
		return err
	}
	schedulePending(ctx, ctl, st.pending)

	if outputFormatIsText() {
		printCandidates(st, w)
	}

	d, err := ctl.Place(ctx, w)
	if err != nil && !errors.Is(err, models.ErrNoCapacity) {
		return err
	}
	if d.Placed() {
		info("Placed %s on %s (score %.3f, dominant %s)", d.Workload, d.HostID, d.Score, d.Dominant)
	} else {
		warn("%s not placed: %s", d.Workload, d.Reason)
	}

	return reporter.New(format, os.Stdout).Render(&reporter.Report{
		Title:      "PLACEMENT",
		Placements: []models.PlacementDecision{d},
	})
}

func printCandidates(st *stack, w models.Workload) {
	candidates := st.sched.Scorer().Rank(st.reg.EligibleTargets(w), w)
	fmt.Printf("\nCandidates for %s (%.2f cores, %.2f GB, %s):\n", w.Name, w.CPU, w.MemoryGB, w.Tier)
	fmt.Println(strings.Repeat("-", 80))
	if len(candidates) == 0 {
		fmt.Println("  none: no powered host can fit this workload")
		return
	}
	fmt.Printf("  %-12s %8s %8s %8s %8s  %s\n", "HOST", "SCORE", "POWER", "BALANCE", "SLA", "DOMINANT")
	for i, c := range candidates {
		if !allCandidates && i == 5 {
			fmt.Printf("  ... %d more (use --all-candidates)\n", len(candidates)-i)
			break
		}
		fmt.Printf("  %-12s %8.3f %8.3f %8.3f %8.3f  %s\n", c.Host.ID(), c.Score,
			c.Terms[models.TermPower], c.Terms[models.TermUtilization], c.Terms[models.TermSLA], c.Dominant)
	}
}
