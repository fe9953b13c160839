// Package repo persists threats, friendly units and situation reports in
// PostgreSQL and exposes the snapshot reads the engines consume.
package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/aegisstack/aegis-fusion/internal/geo"
	"github.com/aegisstack/aegis-fusion/internal/models"
)

// Store wraps the PostgreSQL connection pool.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore creates a Store over an existing pool. Used directly by tests.
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, dsn string, maxConns, maxIdle int, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxIdle)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

const threatColumns = `id, threat_type, threat_level, confidence, latitude, longitude,
	grid_reference, description, source, detected_at, verified, active`

// CreateThreat inserts a detection and fills in its assigned id.
func (s *Store) CreateThreat(ctx context.Context, t *models.ThreatDetection) error {
	const q = `
		INSERT INTO threats (threat_type, threat_level, confidence, latitude, longitude,
			grid_reference, description, source, detected_at, verified, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`
	err := s.db.QueryRowContext(ctx, q,
		t.Type, t.Level, t.Confidence, t.Position.Lat, t.Position.Lon,
		t.GridReference, t.Description, t.Source, t.DetectedAt, t.Verified, t.Active,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("create threat: %w", err)
	}
	return nil
}

// GetThreat fetches one detection by id.
func (s *Store) GetThreat(ctx context.Context, id int64) (*models.ThreatDetection, error) {
	q := `SELECT ` + threatColumns + ` FROM threats WHERE id = $1`
	t, err := scanThreat(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("threat %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get threat %d: %w", id, err)
	}
	return t, nil
}

// ListActiveThreats returns the active detections, optionally restricted to
// an area of interest.
func (s *Store) ListActiveThreats(ctx context.Context, bounds *geo.Bounds) ([]models.ThreatDetection, error) {
	q := `SELECT ` + threatColumns + ` FROM threats WHERE active = true`
	q, args := appendBounds(q, nil, bounds)
	q += ` ORDER BY detected_at DESC`
	return s.listThreats(ctx, q, args...)
}

// ListThreatsSince returns every detection, active or not, recorded after t.
// Used by the pattern miner, which wants history rather than current state.
func (s *Store) ListThreatsSince(ctx context.Context, since time.Time, bounds *geo.Bounds) ([]models.ThreatDetection, error) {
	q := `SELECT ` + threatColumns + ` FROM threats WHERE detected_at >= $1`
	q, args := appendBounds(q, []any{since}, bounds)
	q += ` ORDER BY detected_at ASC`
	return s.listThreats(ctx, q, args...)
}

// VerifyThreat marks a detection as human-confirmed.
func (s *Store) VerifyThreat(ctx context.Context, id int64) error {
	return s.updateThreatFlag(ctx, `UPDATE threats SET verified = true WHERE id = $1`, id, "verify")
}

// DeactivateThreat soft-deletes a detection.
func (s *Store) DeactivateThreat(ctx context.Context, id int64) error {
	return s.updateThreatFlag(ctx, `UPDATE threats SET active = false WHERE id = $1`, id, "deactivate")
}

func (s *Store) updateThreatFlag(ctx context.Context, q string, id int64, op string) error {
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("%s threat %d: %w", op, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s threat %d: %w", op, id, ErrNotFound)
	}
	return nil
}

func (s *Store) listThreats(ctx context.Context, q string, args ...any) ([]models.ThreatDetection, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list threats: %w", err)
	}
	defer rows.Close()

	var out []models.ThreatDetection
	for rows.Next() {
		t, err := scanThreat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan threat: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list threats: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanThreat(row rowScanner) (*models.ThreatDetection, error) {
	var (
		t         models.ThreatDetection
		gridRef   sql.NullString
		desc      sql.NullString
	)
	err := row.Scan(&t.ID, &t.Type, &t.Level, &t.Confidence,
		&t.Position.Lat, &t.Position.Lon, &gridRef, &desc,
		&t.Source, &t.DetectedAt, &t.Verified, &t.Active)
	if err != nil {
		return nil, err
	}
	t.GridReference = gridRef.String
	t.Description = desc.String
	return &t, nil
}

const unitColumns = `unit_id, unit_name, unit_type, callsign, latitude, longitude,
	altitude, heading, speed, status, personnel_count, last_contact, active`

// UpsertUnit inserts a unit or refreshes an existing one by unit_id.
func (s *Store) UpsertUnit(ctx context.Context, u *models.FriendlyUnit) error {
	const q = `
		INSERT INTO friendly_units (unit_id, unit_name, unit_type, callsign, latitude, longitude,
			altitude, heading, speed, status, personnel_count, last_contact, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (unit_id) DO UPDATE SET
			unit_name = EXCLUDED.unit_name,
			unit_type = EXCLUDED.unit_type,
			callsign = EXCLUDED.callsign,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			altitude = EXCLUDED.altitude,
			heading = EXCLUDED.heading,
			speed = EXCLUDED.speed,
			status = EXCLUDED.status,
			personnel_count = EXCLUDED.personnel_count,
			last_contact = EXCLUDED.last_contact,
			active = EXCLUDED.active`
	_, err := s.db.ExecContext(ctx, q,
		u.UnitID, u.Name, u.Type, u.Callsign, u.Position.Lat, u.Position.Lon,
		u.Altitude, u.HeadingDeg, u.SpeedMS, u.Status, u.PersonnelCount, u.LastContact, u.Active)
	if err != nil {
		return fmt.Errorf("upsert unit %s: %w", u.UnitID, err)
	}
	return nil
}

// UpdateUnitPosition records a position report for an existing unit and
// refreshes its last-contact time.
func (s *Store) UpdateUnitPosition(ctx context.Context, unitID string, pos geo.Point, altitude, heading, speed *float64, at time.Time) error {
	const q = `
		UPDATE friendly_units
		SET latitude = $2, longitude = $3,
			altitude = COALESCE($4, altitude),
			heading = COALESCE($5, heading),
			speed = COALESCE($6, speed),
			last_contact = $7
		WHERE unit_id = $1`
	res, err := s.db.ExecContext(ctx, q, unitID, pos.Lat, pos.Lon, altitude, heading, speed, at)
	if err != nil {
		return fmt.Errorf("update unit %s position: %w", unitID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update unit %s position: %w", unitID, ErrNotFound)
	}
	return nil
}

// GetUnit fetches one unit by its external id.
func (s *Store) GetUnit(ctx context.Context, unitID string) (*models.FriendlyUnit, error) {
	q := `SELECT ` + unitColumns + ` FROM friendly_units WHERE unit_id = $1`
	u, err := scanUnit(s.db.QueryRowContext(ctx, q, unitID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("unit %s: %w", unitID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get unit %s: %w", unitID, err)
	}
	return u, nil
}

// ListActiveUnits returns the active friendly units, optionally restricted
// to an area of interest.
func (s *Store) ListActiveUnits(ctx context.Context, bounds *geo.Bounds) ([]models.FriendlyUnit, error) {
	q := `SELECT ` + unitColumns + ` FROM friendly_units WHERE active = true`
	q, args := appendBounds(q, nil, bounds)
	q += ` ORDER BY unit_id ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	defer rows.Close()

	var out []models.FriendlyUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		out = append(out, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	return out, nil
}

// DeactivateUnit soft-deletes a unit.
func (s *Store) DeactivateUnit(ctx context.Context, unitID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE friendly_units SET active = false WHERE unit_id = $1`, unitID)
	if err != nil {
		return fmt.Errorf("deactivate unit %s: %w", unitID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("deactivate unit %s: %w", unitID, ErrNotFound)
	}
	return nil
}

func scanUnit(row rowScanner) (*models.FriendlyUnit, error) {
	var (
		u        models.FriendlyUnit
		unitType sql.NullString
		callsign sql.NullString
	)
	err := row.Scan(&u.UnitID, &u.Name, &unitType, &callsign,
		&u.Position.Lat, &u.Position.Lon, &u.Altitude, &u.HeadingDeg, &u.SpeedMS,
		&u.Status, &u.PersonnelCount, &u.LastContact, &u.Active)
	if err != nil {
		return nil, err
	}
	u.Type = models.UnitType(unitType.String)
	u.Callsign = callsign.String
	return &u, nil
}

const sitrepColumns = `id, title, report_time, location, latitude, longitude, unit, reporter,
	situation, mission, execution, admin_logistics, command_signal,
	source, priority, active, created_at, updated_at`

// CreateSitrep inserts a situation report and fills in its assigned id.
func (s *Store) CreateSitrep(ctx context.Context, r *models.Sitrep) error {
	const q = `
		INSERT INTO sitreps (title, report_time, location, latitude, longitude, unit, reporter,
			situation, mission, execution, admin_logistics, command_signal,
			source, priority, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id`
	err := s.db.QueryRowContext(ctx, q,
		r.Title, r.ReportTime, r.Location, r.Latitude, r.Longitude, r.Unit, r.Reporter,
		r.Situation, r.Mission, r.Execution, r.AdminLogistics, r.CommandSignal,
		r.Source, r.Priority, r.Active, r.CreatedAt, r.UpdatedAt,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("create sitrep: %w", err)
	}
	return nil
}

// GetSitrep fetches one situation report by id.
func (s *Store) GetSitrep(ctx context.Context, id int64) (*models.Sitrep, error) {
	q := `SELECT ` + sitrepColumns + ` FROM sitreps WHERE id = $1`
	r, err := scanSitrep(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sitrep %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get sitrep %d: %w", id, err)
	}
	return r, nil
}

// ListActiveSitreps returns the newest active reports first, at most limit.
func (s *Store) ListActiveSitreps(ctx context.Context, limit int) ([]models.Sitrep, error) {
	q := `SELECT ` + sitrepColumns + ` FROM sitreps WHERE active = true ORDER BY report_time DESC LIMIT $1`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list sitreps: %w", err)
	}
	defer rows.Close()

	var out []models.Sitrep
	for rows.Next() {
		r, err := scanSitrep(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sitrep: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sitreps: %w", err)
	}
	return out, nil
}

// DeactivateSitrep soft-deletes a report.
func (s *Store) DeactivateSitrep(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sitreps SET active = false, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate sitrep %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("deactivate sitrep %d: %w", id, ErrNotFound)
	}
	return nil
}

func scanSitrep(row rowScanner) (*models.Sitrep, error) {
	var (
		r        models.Sitrep
		location sql.NullString
		unit     sql.NullString
		reporter sql.NullString
		sections [5]sql.NullString
	)
	err := row.Scan(&r.ID, &r.Title, &r.ReportTime, &location, &r.Latitude, &r.Longitude,
		&unit, &reporter,
		&sections[0], &sections[1], &sections[2], &sections[3], &sections[4],
		&r.Source, &r.Priority, &r.Active, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Location = location.String
	r.Unit = unit.String
	r.Reporter = reporter.String
	r.Situation = sections[0].String
	r.Mission = sections[1].String
	r.Execution = sections[2].String
	r.AdminLogistics = sections[3].String
	r.CommandSignal = sections[4].String
	return &r, nil
}

// appendBounds adds an area-of-interest filter. East and west are compared
// directly, matching geo.Bounds.
func appendBounds(q string, args []any, b *geo.Bounds) (string, []any) {
	if b == nil {
		return q, args
	}
	n := len(args)
	q += fmt.Sprintf(" AND latitude BETWEEN $%d AND $%d", n+1, n+2)
	q += fmt.Sprintf(" AND longitude BETWEEN $%d AND $%d", n+3, n+4)
	args = append(args, b.South, b.North, b.West, b.East)
	return q, args
}
