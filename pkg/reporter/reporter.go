package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/opscart/k8s-energy-consolidator/pkg/kpi"
	"github.com/opscart/k8s-energy-consolidator/pkg/models"
)

// ReportFormat represents the output format
type ReportFormat string

const (
	FormatText ReportFormat = "text"
	FormatJSON ReportFormat = "json"
	FormatCSV  ReportFormat = "csv"
)

// ParseFormat accepts text, json or csv
func ParseFormat(s string) (ReportFormat, error) {
	switch f := ReportFormat(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatCSV:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("output must be text, json, or csv")
	}
}

// Report collects whatever a command wants to show. Nil sections are skipped.
type Report struct {
	Title         string                       `json:"title,omitempty"`
	GeneratedAt   time.Time                    `json:"generated_at"`
	Summary       *models.ClusterSummary       `json:"summary,omitempty"`
	Snapshot      []models.Telemetry           `json:"snapshot,omitempty"`
	KPI           *kpi.Report                  `json:"kpi,omitempty"`
	Consolidation *models.ConsolidationStats   `json:"consolidation,omitempty"`
	Placement     *models.PlacementStats       `json:"placement,omitempty"`
	Cycles        []models.ConsolidationResult `json:"cycles,omitempty"`
	Placements    []models.PlacementDecision   `json:"placements,omitempty"`
	Savings       *models.SavingsSummary       `json:"savings,omitempty"`
}

// Reporter renders reports in one format
type Reporter struct {
	format ReportFormat
	w      io.Writer
}

// New creates a new reporter
func New(format ReportFormat, w io.Writer) *Reporter {
	return &Reporter{
		format: format,
		w:      w,
	}
}

// Render writes the report in the reporter's format
func (r *Reporter) Render(report *Report) error {
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = time.Now()
	}

	switch r.format {
	case FormatJSON:
		enc := json.NewEncoder(r.w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case FormatCSV:
		return GenerateCSV(report, r.w)
	default:
		return r.renderText(report)
	}
}

func (r *Reporter) renderText(report *Report) error {
	p := &printer{w: r.w}

	if report.Title != "" {
		p.rule("=")
		p.line("%s", report.Title)
		p.rule("=")
	}
	if report.Summary != nil {
		p.summary(report.Summary)
	}
	if len(report.Snapshot) > 0 {
		p.snapshot(report.Snapshot)
	}
	if report.KPI != nil {
		p.kpi(report.KPI)
	}
	if report.Consolidation != nil {
		p.consolidationStats(report.Consolidation)
	}
	if report.Placement != nil {
		p.placementStats(report.Placement)
	}
	if len(report.Cycles) > 0 {
		p.cycles(report.Cycles)
	}
	if len(report.Placements) > 0 {
		p.section("PLACEMENTS")
		for _, d := range report.Placements {
			p.decision(d)
		}
	}
	if report.Savings != nil {
		p.savings(report.Savings)
	}
	return p.err
}

// printer remembers the first write error so section code stays linear
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) line(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) rule(ch string) {
	p.line("%s", strings.Repeat(ch, 80))
}

func (p *printer) section(title string) {
	p.line("")
	p.line("%s", title)
	p.rule("-")
}

func (p *printer) summary(s *models.ClusterSummary) {
	p.section("CLUSTER SUMMARY")
	p.line("Hosts:            %d (active %d, idle %d, overloaded %d, shutdown %d)",
		s.TotalHosts,
		s.HostsByState[models.StateActive], s.HostsByState[models.StateIdle],
		s.HostsByState[models.StateOverloaded], s.HostsByState[models.StateShutdown])
	p.line("Cores:            %.2f / %d allocated", s.AllocatedCores, s.TotalCores)
	p.line("Memory:           %.2f / %.2f GB allocated", s.AllocatedMemGB, s.TotalMemoryGB)
	p.line("Workloads:        %d", s.TotalWorkloads)
	p.line("Power:            %.1f W", s.TotalPowerWatts)
}

func (p *printer) snapshot(snapshot []models.Telemetry) {
	p.section("HOSTS")
	p.line("%-12s %-11s %6s %6s %9s %7s %8s %10s %5s",
		"HOST", "STATE", "CPU", "MEM", "POWER(W)", "TEMP", "LAT(ms)", "TPUT(Mbps)", "WL")
	for _, t := range snapshot {
		p.line("%-12s %-11s %5.1f%% %5.1f%% %9.1f %7.1f %8.1f %10.1f %5d",
			t.HostID, t.State, t.CPUUtilization*100, t.MemoryUtilization*100,
			t.PowerWatts, t.TemperatureC, t.LatencyMS, t.ThroughputMbps, t.WorkloadCount)
	}
}

func (p *printer) kpi(k *kpi.Report) {
	p.section("ENERGY KPIs")
	p.line("Total power:        %.1f W (avg %.1f W/host, P50 %.1f, P95 %.1f, peak %.1f)",
		k.TotalPowerWatts, k.AveragePowerWatts, k.HostPower.P50, k.HostPower.P95, k.HostPower.Peak)
	p.line("Avg CPU / memory:   %.1f%% / %.1f%%", k.AverageCPUUtilization*100, k.AverageMemoryUtilization*100)
	p.line("Hosts:              %d active, %d idle, %d overloaded, %d shutdown",
		k.ActiveHosts, k.IdleHosts, k.OverloadedHosts, k.ShutdownHosts)
	p.line("Workloads:          %d (%.2f per powered host, %.1f W each)",
		k.TotalWorkloads, k.WorkloadsPerHost, k.PowerPerWorkload)
	p.line("Energy over %-7s %.3f kWh", k.ReferencePeriod.String()+":", k.EnergyKWh)
	p.line("Cost estimate:      %.4f %s", k.CostEstimate, k.Currency)
	p.line("Carbon estimate:    %.3f kg CO2e", k.CarbonKg)
}

func (p *printer) consolidationStats(s *models.ConsolidationStats) {
	p.section("CONSOLIDATION")
	p.line("Cycles:            %d (idle sweeps %d)", s.Cycles, s.IdleSweeps)
	p.line("Migrations:        %d", s.Migrations)
	p.line("Hosts shut down:   %d", s.HostsShutdown)
	p.line("Abandoned drains:  %d", s.AbandonedDrains)
	p.line("Energy saved:      %.1f W", s.EnergySavedWatts)
	if !s.LastCycleAt.IsZero() {
		p.line("Last cycle:        %s (%.1f W saved)", s.LastCycleAt.Format("2006-01-02 15:04:05"), s.LastCycleSavedWatts)
	}
}

func (p *printer) placementStats(s *models.PlacementStats) {
	p.section("SCHEDULER")
	p.line("Placements:        %d (failures %d, success %.1f%%)", s.Placements, s.Failures, s.SuccessRate()*100)
	p.line("Average score:     %.3f", s.AverageScore)
	p.line("By tier:           %s", counts(s.ByTier))
	p.line("By dominant term:  %s", counts(s.ByDominantTerm))
	if len(s.RecentPlacements) > 0 {
		p.line("Recent:")
		for _, d := range s.RecentPlacements {
			p.decision(d)
		}
	}
}

func (p *printer) decision(d models.PlacementDecision) {
	if !d.Placed() {
		p.line("  [UNPLACED] %-20s %-6s %s", d.Workload, d.Tier, d.Reason)
		return
	}
	p.line("  %-20s %-6s -> %-12s score %.3f (%s)", d.Workload, d.Tier, d.HostID, d.Score, d.Dominant)
}

func (p *printer) cycles(cycles []models.ConsolidationResult) {
	p.section("CONSOLIDATION CYCLES")
	for _, c := range cycles {
		p.line("%s  %s  %d migration(s), %d shutdown(s), %.1f W saved",
			c.StartedAt.Format("2006-01-02 15:04:05"), c.CycleID, len(c.Migrations), len(c.HostsShutdown), c.EnergySavedWatts)
		for _, m := range c.Migrations {
			p.line("    %s: %s -> %s (score %.3f)", m.Workload, m.From, m.To, m.Score)
		}
		if len(c.HostsShutdown) > 0 {
			p.line("    shut down: %s", strings.Join(c.HostsShutdown, ", "))
		}
		if c.Partial() {
			p.line("    [WARN] abandoned: %s (unplaced: %s)", strings.Join(c.AbandonedHosts, ", "), strings.Join(c.Unplaced, ", "))
		}
	}
}

func (p *printer) savings(s *models.SavingsSummary) {
	p.section("SAVINGS")
	p.line("Since:             %s", s.Since.Format("2006-01-02 15:04:05"))
	p.line("Cycles:            %d", s.Cycles)
	p.line("Migrations:        %d", s.Migrations)
	p.line("Hosts shut down:   %d", s.HostsShutdown)
	p.line("Energy saved:      %.1f W", s.EnergySavedWatts)
}

// counts renders a map as "k=v" pairs in key order
func counts[K ~string](m map[K]int) string {
	if len(m) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[K(k)]))
	}
	return strings.Join(parts, " ")
}
