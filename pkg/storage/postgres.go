package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"k8s.io/klog/v2"

	"github.com/opscart/k8s-energy-consolidator/pkg/models"
)

//go:embed migrations/*.sql
var postgresFS embed.FS

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db  *sql.DB
	dsn string
}

// NewPostgresStore opens the database, checks connectivity and applies the schema
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{
		db:  db,
		dsn: dsn,
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	schema, err := postgresFS.ReadFile("migrations/001_energy_schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}

	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

func (s *PostgresStore) Name() string {
	return "postgres"
}

// Publish writes one tick's snapshot in a single transaction
func (s *PostgresStore) Publish(ctx context.Context, snapshot []models.Telemetry) error {
	if len(snapshot) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO host_telemetry (
			id, host_id, observed_at, cpu_utilization, memory_utilization,
			power_watts, temperature_c, latency_ms, throughput_mbps,
			workload_count, state
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range snapshot {
		_, err := stmt.ExecContext(ctx,
			uuid.New().String(), t.HostID, t.Timestamp, t.CPUUtilization, t.MemoryUtilization,
			t.PowerWatts, t.TemperatureC, t.LatencyMS, t.ThroughputMbps,
			t.WorkloadCount, string(t.State),
		)
		if err != nil {
			return fmt.Errorf("failed to insert telemetry for %s: %w", t.HostID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit telemetry: %w", err)
	}
	klog.V(4).InfoS("Stored telemetry snapshot", "hosts", len(snapshot))
	return nil
}

// HostHistory returns the newest records for a host, newest first
func (s *PostgresStore) HostHistory(ctx context.Context, hostID string, limit int) ([]models.Telemetry, error) {
	query := `
		SELECT host_id, observed_at, cpu_utilization, memory_utilization,
			power_watts, temperature_c, latency_ms, throughput_mbps,
			workload_count, state
		FROM host_telemetry
		WHERE host_id = $1
		ORDER BY observed_at DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, hostID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []models.Telemetry
	for rows.Next() {
		var t models.Telemetry
		var state string
		err := rows.Scan(
			&t.HostID, &t.Timestamp, &t.CPUUtilization, &t.MemoryUtilization,
			&t.PowerWatts, &t.TemperatureC, &t.LatencyMS, &t.ThroughputMbps,
			&t.WorkloadCount, &state,
		)
		if err != nil {
			return nil, err
		}
		t.State = models.LifecycleState(state)
		history = append(history, t)
	}

	return history, rows.Err()
}

// RecordConsolidation stores a cycle and its migrations
func (s *PostgresStore) RecordConsolidation(ctx context.Context, r models.ConsolidationResult) error {
	if r.CycleID == "" {
		r.CycleID = uuid.New().String()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO consolidation_cycles (
			cycle_id, started_at, energy_saved_watts, pre_cycle_watts,
			hosts_shutdown, abandoned_hosts, unplaced
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		r.CycleID, r.StartedAt, r.EnergySavedWatts, r.PreCycleWatts,
		pq.Array(nonNil(r.HostsShutdown)), pq.Array(nonNil(r.AbandonedHosts)), pq.Array(nonNil(r.Unplaced)),
	)
	if err != nil {
		return fmt.Errorf("failed to insert cycle %s: %w", r.CycleID, err)
	}

	for i, m := range r.Migrations {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO consolidation_migrations (id, cycle_id, seq, workload, from_host, to_host, score)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, uuid.New().String(), r.CycleID, i, m.Workload, m.From, m.To, m.Score)
		if err != nil {
			return fmt.Errorf("failed to insert migration %s: %w", m.Workload, err)
		}
	}

	return tx.Commit()
}

// GetConsolidation retrieves one cycle by id
func (s *PostgresStore) GetConsolidation(ctx context.Context, cycleID string) (*models.ConsolidationResult, error) {
	query := `
		SELECT cycle_id, started_at, energy_saved_watts, pre_cycle_watts,
			hosts_shutdown, abandoned_hosts, unplaced
		FROM consolidation_cycles
		WHERE cycle_id = $1
	`

	r, err := scanCycle(s.db.QueryRowContext(ctx, query, cycleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: consolidation cycle %s", models.ErrNotFound, cycleID)
	}
	if err != nil {
		return nil, err
	}

	if r.Migrations, err = s.migrations(ctx, r.CycleID); err != nil {
		return nil, err
	}
	return r, nil
}

// ListConsolidations returns the newest cycles first
func (s *PostgresStore) ListConsolidations(ctx context.Context, limit int) ([]models.ConsolidationResult, error) {
	query := `
		SELECT cycle_id, started_at, energy_saved_watts, pre_cycle_watts,
			hosts_shutdown, abandoned_hosts, unplaced
		FROM consolidation_cycles
		ORDER BY started_at DESC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	var cycles []models.ConsolidationResult
	for rows.Next() {
		r, err := scanCycle(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		cycles = append(cycles, *r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range cycles {
		if cycles[i].Migrations, err = s.migrations(ctx, cycles[i].CycleID); err != nil {
			return nil, err
		}
	}
	return cycles, nil
}

// Savings aggregates the cycles recorded since a point in time
func (s *PostgresStore) Savings(ctx context.Context, since time.Time) (*models.SavingsSummary, error) {
	summary := &models.SavingsSummary{Since: since}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(cardinality(hosts_shutdown)), 0),
			COALESCE(SUM(energy_saved_watts), 0)
		FROM consolidation_cycles
		WHERE started_at >= $1
	`, since).Scan(&summary.Cycles, &summary.HostsShutdown, &summary.EnergySavedWatts)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate cycles: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM consolidation_migrations m
		JOIN consolidation_cycles c ON c.cycle_id = m.cycle_id
		WHERE c.started_at >= $1
	`, since).Scan(&summary.Migrations)
	if err != nil {
		return nil, fmt.Errorf("failed to count migrations: %w", err)
	}

	return summary, nil
}

// RecordPlacement stores one scheduler decision
func (s *PostgresStore) RecordPlacement(ctx context.Context, d models.PlacementDecision) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.DecidedAt.IsZero() {
		d.DecidedAt = time.Now()
	}

	var hostID, dominant sql.NullString
	if d.Placed() {
		hostID = sql.NullString{String: d.HostID, Valid: true}
	}
	if d.Dominant != "" {
		dominant = sql.NullString{String: string(d.Dominant), Valid: true}
	}

	query := `
		INSERT INTO placements (
			id, workload, sla_tier, host_id, score, dominant_term,
			power_term, utilization_term, sla_term, reason, decided_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.Workload, string(d.Tier), hostID, d.Score, dominant,
		term(d.Terms, models.TermPower), term(d.Terms, models.TermUtilization), term(d.Terms, models.TermSLA),
		d.Reason, d.DecidedAt,
	)

	return err
}

// ListPlacements returns decisions newest first
func (s *PostgresStore) ListPlacements(ctx context.Context, workload string, limit int) ([]models.PlacementDecision, error) {
	query := `
		SELECT id, workload, sla_tier, host_id, score, dominant_term,
			power_term, utilization_term, sla_term, reason, decided_at
		FROM placements
		WHERE ($1::text = '' OR workload = $1)
		ORDER BY decided_at DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, workload, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var decisions []models.PlacementDecision
	for rows.Next() {
		var d models.PlacementDecision
		var tier string
		var hostID, dominant, reason sql.NullString
		var powerTerm, utilTerm, slaTerm sql.NullFloat64

		err := rows.Scan(
			&d.ID, &d.Workload, &tier, &hostID, &d.Score, &dominant,
			&powerTerm, &utilTerm, &slaTerm, &reason, &d.DecidedAt,
		)
		if err != nil {
			return nil, err
		}

		d.Tier = models.SLATier(tier)
		d.HostID = hostID.String
		d.Dominant = models.ScoreTerm(dominant.String)
		d.Reason = reason.String
		if powerTerm.Valid || utilTerm.Valid || slaTerm.Valid {
			d.Terms = map[models.ScoreTerm]float64{
				models.TermPower:       powerTerm.Float64,
				models.TermUtilization: utilTerm.Float64,
				models.TermSLA:         slaTerm.Float64,
			}
		}

		decisions = append(decisions, d)
	}

	return decisions, rows.Err()
}

// Ping checks database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) migrations(ctx context.Context, cycleID string) ([]models.Migration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT workload, from_host, to_host, score
		FROM consolidation_migrations
		WHERE cycle_id = $1
		ORDER BY seq
	`, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Migration
	for rows.Next() {
		var m models.Migration
		if err := rows.Scan(&m.Workload, &m.From, &m.To, &m.Score); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCycle(row rowScanner) (*models.ConsolidationResult, error) {
	var r models.ConsolidationResult
	err := row.Scan(
		&r.CycleID, &r.StartedAt, &r.EnergySavedWatts, &r.PreCycleWatts,
		pq.Array(&r.HostsShutdown), pq.Array(&r.AbandonedHosts), pq.Array(&r.Unplaced),
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func term(terms map[models.ScoreTerm]float64, t models.ScoreTerm) sql.NullFloat64 {
	v, ok := terms[t]
	return sql.NullFloat64{Float64: v, Valid: ok}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
