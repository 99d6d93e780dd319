package storage

import "carprep/models"

// VehicleWriter is the interface any relational backend must satisfy.
type VehicleWriter interface {
	// Write upserts vehicles by Brand|Model key, tagging each row with runID.
	Write(runID string, vehicles []*models.Vehicle) error
	FetchAll() ([]*models.Vehicle, error)
	// CountByRun returns how many stored rows runID wrote last.
	CountByRun(runID string) (int, error)
	// Clear removes every stored vehicle.
	Clear() error
	Close() error
}

// TableWriter persists a whole dataset in file form.
type TableWriter interface {
	WriteTable(t *models.Table) error
	Close() error
}
