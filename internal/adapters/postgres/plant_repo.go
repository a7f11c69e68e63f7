package postgres

import (
	"context"
	"database/sql"

	"github.com/suntrack/fleetmap/internal/core/domain"
)

// PlantRepo implements ports.PlantSource over the fleet registry table.
type PlantRepo struct {
	db *DB
}

func NewPlantRepo(db *DB) *PlantRepo {
	return &PlantRepo{db: db}
}

// FetchPlants returns every registered installation with a known
// location. Plants awaiting survey have NULL coordinates and are
// excluded; the map has nowhere to put them.
func (r *PlantRepo) FetchPlants(ctx context.Context) ([]domain.PlantRecord, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, name, status, capacity_kw, current_output_kw,
			ST_Y(location::geometry) AS lat,
			ST_X(location::geometry) AS lon
		FROM plants
		WHERE location IS NOT NULL
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plants []domain.PlantRecord
	for rows.Next() {
		var p domain.PlantRecord
		var output sql.NullFloat64
		if err := rows.Scan(&p.ID, &p.Name, &p.Status, &p.CapacityKW,
			&output, &p.Latitude, &p.Longitude); err != nil {
			return nil, err
		}
		p.CurrentOutput = output.Float64
		plants = append(plants, p)
	}
	return plants, rows.Err()
}

// FetchPlant returns one installation by id.
func (r *PlantRepo) FetchPlant(ctx context.Context, id string) (*domain.PlantRecord, error) {
	var p domain.PlantRecord
	var output sql.NullFloat64
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, name, status, capacity_kw, current_output_kw,
			ST_Y(location::geometry) AS lat,
			ST_X(location::geometry) AS lon
		FROM plants
		WHERE id = $1 AND location IS NOT NULL
	`, id).Scan(&p.ID, &p.Name, &p.Status, &p.CapacityKW,
		&output, &p.Latitude, &p.Longitude)
	if err != nil {
		return nil, err
	}
	p.CurrentOutput = output.Float64
	return &p, nil
}
