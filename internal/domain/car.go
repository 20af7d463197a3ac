package domain

import "time"

// Car is a single vehicle listing.
type Car struct {
	ID            int64     `db:"id"`
	Make          string    `db:"make"`
	Model         string    `db:"model"`
	Year          int       `db:"year"`
	Price         float64   `db:"price"`
	Mileage       int       `db:"mileage"`
	Color         string    `db:"color"`
	Description   string    `db:"description"`
	ImageFilename string    `db:"image_filename"`
	IsSold        bool      `db:"is_sold"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// Title is the short human readable name used in status messages.
func (c Car) Title() string {
	return c.Make + " " + c.Model
}
