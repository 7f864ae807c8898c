package reporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// GenerateCSV writes the report's snapshot, one row per host
func GenerateCSV(report *Report, writer io.Writer) error {
	w := csv.NewWriter(writer)

	header := []string{
		"timestamp",
		"host_id",
		"state",
		"cpu_utilization",
		"memory_utilization",
		"power_watts",
		"temperature_c",
		"latency_ms",
		"throughput_mbps",
		"workload_count",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, t := range report.Snapshot {
		row := []string{
			t.Timestamp.Format(time.RFC3339),
			t.HostID,
			string(t.State),
			formatFloat(t.CPUUtilization),
			formatFloat(t.MemoryUtilization),
			formatFloat(t.PowerWatts),
			formatFloat(t.TemperatureC),
			formatFloat(t.LatencyMS),
			formatFloat(t.ThroughputMbps),
			strconv.Itoa(t.WorkloadCount),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
