package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/opscart/k8s-energy-consolidator/pkg/config"
	"github.com/opscart/k8s-energy-consolidator/pkg/reporter"
)

var (
	// Global flags
	verbose       int
	outputFormat  string
	preset        string
	clusterFile   string
	useKubernetes bool
	namespace     string

	// Global config
	cfg    *config.Config
	format reporter.ReportFormat
)

func main() {
	cfg = config.NewConfig()

	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)

	var rootCmd = &cobra.Command{
		Use:   "consolidator",
		Short: "Energy-aware workload consolidation",
		Long: `Model host power from utilization, place workloads where they cost the
least energy and drain lightly loaded hosts so they can be powered off.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(klogFlags)
		},
	}

	rootCmd.PersistentFlags().IntVarP(&verbose, "verbose", "v", cfg.LogVerbosity, "Log verbosity (klog level)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json, csv")
	rootCmd.PersistentFlags().StringVar(&preset, "preset", "", "Configuration preset: dev, production")
	rootCmd.PersistentFlags().StringVar(&clusterFile, "cluster", "", "YAML cluster definition (default: built-in sample cluster)")
	rootCmd.PersistentFlags().BoolVar(&useKubernetes, "kubernetes", false, "Discover hosts and workloads from the current Kubernetes context")
	rootCmd.PersistentFlags().StringVarP(&namespace, "namespace", "n", "", "Namespace to read workloads from with --kubernetes (default: all)")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newSimulateCmd())
	rootCmd.AddCommand(newPlaceCmd())
	rootCmd.AddCommand(newKPICmd())
	rootCmd.AddCommand(newHistoryCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		klog.Flush()
		os.Exit(1)
	}
	klog.Flush()
}

func setup(klogFlags *flag.FlagSet) error {
	if err := klogFlags.Set("v", strconv.Itoa(verbose)); err != nil {
		return err
	}

	var err error
	if format, err = reporter.ParseFormat(outputFormat); err != nil {
		return err
	}
	if err := cfg.ApplyPreset(preset); err != nil {
		return err
	}
	if useKubernetes && clusterFile != "" {
		return fmt.Errorf("--cluster and --kubernetes are mutually exclusive")
	}
	return cfg.Validate()
}

// info prints progress lines unless the output is machine readable
func info(format string, args ...any) {
	if outputFormatIsText() {
		fmt.Printf("[INFO] "+format+"\n", args...)
	}
}

func warn(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "[WARN] "+format+"\n", args...)
}

func outputFormatIsText() bool {
	return format == reporter.FormatText
}
