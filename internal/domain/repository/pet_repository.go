package repository

import (
	"context"

	"lostpaws/internal/domain/entity"
)

// PetRepository is a read-only view over the pet-listing subsystem's data.
type PetRepository interface {
	GetByID(ctx context.Context, id string) (*entity.PetSummary, error)

	// GetByIDs batches a lookup for listing assembly; missing ids are simply
	// absent from the result.
	GetByIDs(ctx context.Context, ids []string) (map[string]*entity.PetSummary, error)
}
