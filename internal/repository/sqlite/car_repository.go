package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"autolot/internal/domain"
	"autolot/internal/repository"
)

const createCarsTable = `
CREATE TABLE IF NOT EXISTS cars (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	make TEXT NOT NULL,
	model TEXT NOT NULL,
	year INTEGER NOT NULL,
	price REAL NOT NULL,
	mileage INTEGER NOT NULL,
	color TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	image_filename TEXT NOT NULL DEFAULT '',
	is_sold BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cars_sold_year ON cars(is_sold, year);
`

const selectCar = `
SELECT id, make, model, year, price, mileage, color, description, image_filename, is_sold, created_at, updated_at
FROM cars`

const orderCars = `
ORDER BY year DESC, id ASC`

type CarRepository struct {
	db *sqlx.DB
}

func NewCarRepository(db *sqlx.DB) repository.CarRepository {
	return &CarRepository{db: db}
}

func (r *CarRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createCarsTable); err != nil {
		return fmt.Errorf("create cars table: %w", err)
	}
	return nil
}

func (r *CarRepository) Create(ctx context.Context, car *domain.Car) (int64, error) {
	now := time.Now().UTC()
	car.CreatedAt = now
	car.UpdatedAt = now

	res, err := r.db.ExecContext(ctx, `
INSERT INTO cars (make, model, year, price, mileage, color, description, image_filename, is_sold, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		car.Make,
		car.Model,
		car.Year,
		car.Price,
		car.Mileage,
		car.Color,
		car.Description,
		car.ImageFilename,
		car.IsSold,
		car.CreatedAt,
		car.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert car: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	car.ID = id
	return id, nil
}

// Update overwrites every mutable column of the row identified by car.ID.
// The sold flag and creation time are left alone.
func (r *CarRepository) Update(ctx context.Context, car *domain.Car) error {
	car.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
UPDATE cars
SET make=?, model=?, year=?, price=?, mileage=?, color=?, description=?, image_filename=?, updated_at=?
WHERE id=?`,
		car.Make,
		car.Model,
		car.Year,
		car.Price,
		car.Mileage,
		car.Color,
		car.Description,
		car.ImageFilename,
		car.UpdatedAt,
		car.ID,
	)
	if err != nil {
		return fmt.Errorf("update car: %w", err)
	}
	return requireAffected(res, "car")
}

func (r *CarRepository) SetSold(ctx context.Context, id int64, sold bool) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE cars
SET is_sold=?, updated_at=?
WHERE id=?`,
		sold,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("update car sold flag: %w", err)
	}
	return requireAffected(res, "car")
}

func (r *CarRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cars WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete car: %w", err)
	}
	return requireAffected(res, "car")
}

func (r *CarRepository) Get(ctx context.Context, id int64) (*domain.Car, error) {
	var car domain.Car
	if err := r.db.GetContext(ctx, &car, selectCar+` WHERE id=?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("car %d: %w", id, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan car: %w", err)
	}
	return &car, nil
}

func (r *CarRepository) List(ctx context.Context) ([]domain.Car, error) {
	cars := []domain.Car{}
	if err := r.db.SelectContext(ctx, &cars, selectCar+orderCars); err != nil {
		return nil, fmt.Errorf("query cars: %w", err)
	}
	return cars, nil
}

func (r *CarRepository) ListAvailable(ctx context.Context) ([]domain.Car, error) {
	cars := []domain.Car{}
	if err := r.db.SelectContext(ctx, &cars, selectCar+` WHERE is_sold=0`+orderCars); err != nil {
		return nil, fmt.Errorf("query available cars: %w", err)
	}
	return cars, nil
}

func (r *CarRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM cars`); err != nil {
		return 0, fmt.Errorf("count cars: %w", err)
	}
	return n, nil
}
