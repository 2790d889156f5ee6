package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tom474/fleetbooking/internal/domain"
)

type LocationRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Location, error)
}

type PGLocationRepository struct {
	db *pgxpool.Pool
}

func NewLocationRepository(db *pgxpool.Pool) LocationRepository {
	return &PGLocationRepository{db: db}
}

func (r *PGLocationRepository) GetByID(ctx context.Context, id string) (*domain.Location, error) {
	row := r.db.QueryRow(ctx, `SELECT id, name, address, latitude, longitude FROM locations WHERE id=$1`, id)
	var l domain.Location
	if err := row.Scan(&l.ID, &l.Name, &l.Address, &l.Latitude, &l.Longitude); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFoundError{Resource: "location", ID: id}
		}
		return nil, err
	}
	return &l, nil
}

var _ LocationRepository = (*PGLocationRepository)(nil)
