package repository

import (
	"context"

	"autolot/internal/domain"
)

// CarRepository exposes persistence operations for Car listings.
// Listing methods order by year descending, then by insertion order.
type CarRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, car *domain.Car) (int64, error)
	Update(ctx context.Context, car *domain.Car) error
	SetSold(ctx context.Context, id int64, sold bool) error
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*domain.Car, error)
	List(ctx context.Context) ([]domain.Car, error)
	ListAvailable(ctx context.Context) ([]domain.Car, error)
	Count(ctx context.Context) (int, error)
}
