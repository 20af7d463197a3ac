package service

import (
	"context"
	"errors"
	"io"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"autolot/internal/domain"
	"autolot/internal/repository"
	"autolot/internal/storage"
)

// ListingInput carries raw form values for a listing. Numeric fields are
// parsed by the service so malformed input surfaces as a ValidationError.
type ListingInput struct {
	Make        string `form:"make" validate:"required,max=100"`
	Model       string `form:"model" validate:"required,max=100"`
	Year        string `form:"year" validate:"required"`
	Price       string `form:"price" validate:"required"`
	Mileage     string `form:"mileage" validate:"required"`
	Color       string `form:"color" validate:"max=50"`
	Description string `form:"description"`
}

// Upload is an image file submitted alongside a listing.
type Upload struct {
	Name string
	Body io.Reader
}

// ListingService manages car listings and their sold status.
type ListingService interface {
	ListAvailable(ctx context.Context) ([]domain.Car, error)
	ListAll(ctx context.Context) ([]domain.Car, error)
	Get(ctx context.Context, id int64) (*domain.Car, error)
	Create(ctx context.Context, in ListingInput, image *Upload) (*domain.Car, error)
	Update(ctx context.Context, id int64, in ListingInput, image *Upload) (*domain.Car, error)
	Delete(ctx context.Context, id int64) error
	MarkSold(ctx context.Context, id int64) (*domain.Car, error)
	MarkAvailable(ctx context.Context, id int64) (*domain.Car, error)
}

type listingService struct {
	cars     repository.CarRepository
	images   storage.ImageStore
	validate *validator.Validate
	logger   *logrus.Logger
}

func NewListingService(cars repository.CarRepository, images storage.ImageStore, logger *logrus.Logger) ListingService {
	if logger == nil {
		logger = logrus.New()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("form"); name != "" {
			return name
		}
		return f.Name
	})
	return &listingService{
		cars:     cars,
		images:   images,
		validate: v,
		logger:   logger,
	}
}

func (s *listingService) ListAvailable(ctx context.Context) ([]domain.Car, error) {
	return s.cars.ListAvailable(ctx)
}

func (s *listingService) ListAll(ctx context.Context) ([]domain.Car, error) {
	return s.cars.List(ctx)
}

func (s *listingService) Get(ctx context.Context, id int64) (*domain.Car, error) {
	return s.cars.Get(ctx, id)
}

func (s *listingService) Create(ctx context.Context, in ListingInput, image *Upload) (*domain.Car, error) {
	car, err := s.parse(in)
	if err != nil {
		return nil, err
	}

	if image != nil {
		key, err := s.saveImage(ctx, image)
		if err != nil {
			return nil, err
		}
		car.ImageFilename = key
	}

	if _, err := s.cars.Create(ctx, car); err != nil {
		s.removeImage(ctx, car.ImageFilename)
		return nil, err
	}

	s.logger.WithField("car_id", car.ID).Infof("created listing %s", car.Title())
	return car, nil
}

func (s *listingService) Update(ctx context.Context, id int64, in ListingInput, image *Upload) (*domain.Car, error) {
	existing, err := s.cars.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	car, err := s.parse(in)
	if err != nil {
		return nil, err
	}
	car.ID = existing.ID
	car.IsSold = existing.IsSold
	car.CreatedAt = existing.CreatedAt
	car.ImageFilename = existing.ImageFilename

	if image != nil {
		key, err := s.saveImage(ctx, image)
		if err != nil {
			return nil, err
		}
		car.ImageFilename = key
	}

	if err := s.cars.Update(ctx, car); err != nil {
		if car.ImageFilename != existing.ImageFilename {
			s.removeImage(ctx, car.ImageFilename)
		}
		return nil, err
	}
	if car.ImageFilename != existing.ImageFilename {
		s.removeImage(ctx, existing.ImageFilename)
	}

	s.logger.WithField("car_id", car.ID).Infof("updated listing %s", car.Title())
	return car, nil
}

func (s *listingService) Delete(ctx context.Context, id int64) error {
	car, err := s.cars.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.cars.Delete(ctx, id); err != nil {
		return err
	}
	s.removeImage(ctx, car.ImageFilename)

	s.logger.WithField("car_id", id).Infof("deleted listing %s", car.Title())
	return nil
}

func (s *listingService) MarkSold(ctx context.Context, id int64) (*domain.Car, error) {
	return s.setSold(ctx, id, true)
}

func (s *listingService) MarkAvailable(ctx context.Context, id int64) (*domain.Car, error) {
	return s.setSold(ctx, id, false)
}

func (s *listingService) setSold(ctx context.Context, id int64, sold bool) (*domain.Car, error) {
	if err := s.cars.SetSold(ctx, id, sold); err != nil {
		return nil, err
	}
	car, err := s.cars.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"car_id": id, "sold": sold}).Info("changed listing status")
	return car, nil
}

func (s *listingService) parse(in ListingInput) (*domain.Car, error) {
	in.Make = strings.TrimSpace(in.Make)
	in.Model = strings.TrimSpace(in.Model)
	in.Year = strings.TrimSpace(in.Year)
	in.Price = strings.TrimSpace(in.Price)
	in.Mileage = strings.TrimSpace(in.Mileage)
	in.Color = strings.TrimSpace(in.Color)
	in.Description = strings.TrimSpace(in.Description)

	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fieldError(verrs[0])
		}
		return nil, err
	}

	year, err := strconv.Atoi(in.Year)
	if err != nil {
		return nil, &ValidationError{Field: "year", Reason: "must be a whole number"}
	}
	price, err := strconv.ParseFloat(in.Price, 64)
	if err != nil || math.IsNaN(price) || math.IsInf(price, 0) {
		return nil, &ValidationError{Field: "price", Reason: "must be a number"}
	}
	mileage, err := strconv.Atoi(in.Mileage)
	if err != nil {
		return nil, &ValidationError{Field: "mileage", Reason: "must be a whole number"}
	}

	return &domain.Car{
		Make:        in.Make,
		Model:       in.Model,
		Year:        year,
		Price:       price,
		Mileage:     mileage,
		Color:       in.Color,
		Description: in.Description,
	}, nil
}

func fieldError(fe validator.FieldError) *ValidationError {
	switch fe.Tag() {
	case "required":
		return &ValidationError{Field: fe.Field(), Reason: "is required"}
	case "max":
		return &ValidationError{Field: fe.Field(), Reason: "must be at most " + fe.Param() + " characters"}
	default:
		return &ValidationError{Field: fe.Field(), Reason: "is invalid"}
	}
}

func (s *listingService) saveImage(ctx context.Context, image *Upload) (string, error) {
	key, err := s.images.Save(ctx, image.Name, image.Body)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedType) {
			return "", &ValidationError{Field: "image_file", Reason: "must be a jpg, jpeg, png, gif or webp image"}
		}
		return "", err
	}
	return key, nil
}

// removeImage is best effort; a leftover file never fails the request.
func (s *listingService) removeImage(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.images.Delete(ctx, key); err != nil {
		s.logger.WithError(err).Warnf("remove image %s", key)
	}
}
