package ports

import (
	"context"

	"github.com/suntrack/fleetmap/internal/core/domain"
)

// MarkerRepository persists user-created markers. The durable form is a
// single flat list under one opaque key; every save is a full overwrite,
// so rapid edit sequences converge to last-write-wins.
type MarkerRepository interface {
	// Save overwrites the durable copy with the given custom markers.
	Save(ctx context.Context, markers []domain.Marker) error
	// Load returns the persisted custom markers. Records missing
	// required fields are dropped individually; Load never fails
	// wholesale on partial corruption.
	Load(ctx context.Context) ([]domain.Marker, error)
	// Clear removes the durable key entirely.
	Clear(ctx context.Context) error
}

// PlantSource supplies fleet installation records. Refresh cadence is
// owned by the caller, never by the engine.
type PlantSource interface {
	FetchPlants(ctx context.Context) ([]domain.PlantRecord, error)
}
