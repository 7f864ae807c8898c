package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/opscart/k8s-energy-consolidator/pkg/cluster"
	"github.com/opscart/k8s-energy-consolidator/pkg/datasource"
	"github.com/opscart/k8s-energy-consolidator/pkg/models"
)

func main() {
	prometheusURL := "http://localhost:9090"
	if url := os.Getenv("PROMETHEUS_URL"); url != "" {
		prometheusURL = url
	}

	hosts := os.Args[1:]
	if len(hosts) == 0 {
		hosts = []string{"localhost:9100"}
	}

	fmt.Println("[INFO] Connecting to Prometheus:", prometheusURL)

	source, err := datasource.NewPrometheusSource(datasource.DefaultConfig(prometheusURL))
	if err != nil {
		fmt.Printf("[ERROR] Failed to create Prometheus source: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if !source.IsAvailable(ctx) {
		fmt.Println("[ERROR] Prometheus is not available")
		os.Exit(1)
	}
	fmt.Println("[INFO] Prometheus is available")

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("Sampling node_exporter utilization per host")
	fmt.Println(strings.Repeat("=", 80) + "\n")

	failed := 0
	for _, id := range hosts {
		fmt.Printf("Host: %s\n", id)
		fmt.Println(strings.Repeat("-", 40))

		u, err := source.Sample(ctx, cluster.HostView{Profile: models.HostProfile{ID: id}})
		if err != nil {
			fmt.Printf("  ERROR: %v\n\n", err)
			failed++
			continue
		}

		fmt.Printf("  CPU:    %.1f%%\n", u.CPU*100)
		fmt.Printf("  Memory: %.1f%%\n", u.Memory*100)
		fmt.Println()
	}

	fmt.Println(strings.Repeat("=", 80))
	if failed > 0 {
		fmt.Printf("[WARN] %d of %d hosts could not be sampled\n", failed, len(hosts))
		os.Exit(1)
	}
	fmt.Println("[INFO] Test complete!")
}
