package zone

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/mattn/go-sqlite3"

	"github.com/nerrad567/safewalk-core/internal/geo"
)

// Logger is the logging surface used by this package.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Repository reads red zones from storage, in source order.
type Repository interface {
	ListRedZones(ctx context.Context) ([]geo.Zone, error)
}

// SQLiteRepository reads and writes the red_zones table.
type SQLiteRepository struct {
	db     *sql.DB
	logger Logger
}

// NewSQLiteRepository creates a repository over db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, logger: noopLogger{}}
}

// SetLogger sets the logger used to report skipped rows.
func (r *SQLiteRepository) SetLogger(logger Logger) {
	r.logger = logger
}

// ListRedZones returns every zone with parsable coordinates, in insertion order.
func (r *SQLiteRepository) ListRedZones(ctx context.Context) ([]geo.Zone, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, latitude, longitude, radius_meters, risk_level, incident_count
		 FROM red_zones ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("querying red zones: %w", err)
	}
	defer rows.Close()

	zones := []geo.Zone{}
	for rows.Next() {
		var z geo.Zone
		var lat, lng string
		if err := rows.Scan(&z.ID, &z.Name, &lat, &lng, &z.RadiusMeters, &z.RiskLevel, &z.IncidentCount); err != nil {
			return nil, fmt.Errorf("scanning red zone: %w", err)
		}
		center, err := geo.ParsePoint(lat, lng)
		if err != nil {
			r.logger.Warn("skipping red zone with bad coordinates", "zone_id", z.ID, "error", err)
			continue
		}
		z.Center = center
		zones = append(zones, z)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating red zones: %w", err)
	}
	return zones, nil
}

// Insert adds a zone. Coordinates are stored as text.
func (r *SQLiteRepository) Insert(ctx context.Context, z geo.Zone) error {
	radius := z.RadiusMeters
	if radius == 0 {
		radius = geo.DefaultRadiusMeters
	}
	risk := z.RiskLevel
	if risk == "" {
		risk = "high"
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO red_zones (id, name, latitude, longitude, radius_meters, risk_level, incident_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		z.ID, z.Name,
		strconv.FormatFloat(z.Center.Lat, 'f', -1, 64),
		strconv.FormatFloat(z.Center.Lng, 'f', -1, 64),
		radius, risk, z.IncidentCount,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return fmt.Errorf("%w: %s", ErrDuplicateZone, z.ID)
		}
		return fmt.Errorf("inserting red zone: %w", err)
	}
	return nil
}

// Count returns the number of stored rows, including unparsable ones.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM red_zones").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting red zones: %w", err)
	}
	return n, nil
}
