package repository

import (
	"context"
	"database/sql"
	stderrors "errors"

	"lostpaws/internal/domain/entity"
	"lostpaws/internal/domain/repository"
	"lostpaws/pkg/errors"
)

type postgresPetRepository struct {
	db *sql.DB
}

func NewPostgresPetRepository(db *sql.DB) repository.PetRepository {
	return &postgresPetRepository{db: db}
}

func (r *postgresPetRepository) GetByID(ctx context.Context, id string) (*entity.PetSummary, error) {
	var pet entity.PetSummary
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, breed, type, status FROM pets WHERE id = $1`, id).
		Scan(&pet.ID, &pet.Name, &pet.Breed, &pet.Type, &pet.Status)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("pet", err)
		}
		return nil, storeErr("get pet", err)
	}
	return &pet, nil
}

func (r *postgresPetRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*entity.PetSummary, error) {
	result := make(map[string]*entity.PetSummary)
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, breed, type, status FROM pets WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, storeErr("list pets", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pet entity.PetSummary
		if err := rows.Scan(&pet.ID, &pet.Name, &pet.Breed, &pet.Type, &pet.Status); err != nil {
			return nil, storeErr("scan pet", err)
		}
		result[pet.ID] = &pet
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list pets", err)
	}
	return result, nil
}
