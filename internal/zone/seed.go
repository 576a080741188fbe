package zone

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/safewalk-core/internal/geo"
)

// SeedFile is the YAML layout of a zone seed file:
//
//	zones:
//	  - id: market
//	    name: Old Market
//	    latitude: 51.5074
//	    longitude: -0.1278
//	    risk_level: high
type SeedFile struct {
	Zones []SeedZone `yaml:"zones"`
}

// SeedZone is one entry in a seed file.
type SeedZone struct {
	ID            string  `yaml:"id"`
	Name          string  `yaml:"name"`
	Latitude      float64 `yaml:"latitude"`
	Longitude     float64 `yaml:"longitude"`
	RadiusMeters  float64 `yaml:"radius_meters"`
	RiskLevel     string  `yaml:"risk_level"`
	IncidentCount int     `yaml:"incident_count"`
}

// LoadSeedFile parses a seed file.
func LoadSeedFile(path string) ([]geo.Zone, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}

	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}

	zones := make([]geo.Zone, 0, len(f.Zones))
	for i, s := range f.Zones {
		if s.ID == "" || s.Name == "" {
			return nil, fmt.Errorf("seed zone %d: id and name are required", i)
		}
		z := geo.Zone{
			ID:            s.ID,
			Name:          s.Name,
			Center:        geo.GeoPoint{Lat: s.Latitude, Lng: s.Longitude},
			RadiusMeters:  s.RadiusMeters,
			RiskLevel:     s.RiskLevel,
			IncidentCount: s.IncidentCount,
		}
		if !z.Center.Valid() {
			return nil, fmt.Errorf("seed zone %s: %w", s.ID, geo.ErrInvalidCoordinate)
		}
		zones = append(zones, z)
	}
	return zones, nil
}

// Seed inserts zones only when the table is empty. It returns how many were inserted.
func Seed(ctx context.Context, repo *SQLiteRepository, zones []geo.Zone) (int, error) {
	n, err := repo.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}

	inserted := 0
	for _, z := range zones {
		if err := repo.Insert(ctx, z); err != nil {
			if errors.Is(err, ErrDuplicateZone) {
				continue
			}
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}
