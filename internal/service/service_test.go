package service

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"

	"autolot/internal/domain"
	"autolot/internal/repository"
	"autolot/internal/repository/sqlite"
	"autolot/internal/storage"
)

type fixture struct {
	cars      repository.CarRepository
	users     repository.UserRepository
	imageRoot string
	listings  ListingService
	auth      UserService
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "site.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cars := sqlite.NewCarRepository(db)
	users := sqlite.NewUserRepository(db)
	if err := cars.Init(ctx); err != nil {
		t.Fatalf("init cars: %v", err)
	}
	if err := users.Init(ctx); err != nil {
		t.Fatalf("init users: %v", err)
	}

	root := filepath.Join(t.TempDir(), "images")
	images, err := storage.NewLocalStore(root, "/images")
	if err != nil {
		t.Fatalf("image store: %v", err)
	}

	logger := quietLogger()
	return &fixture{
		cars:      cars,
		users:     users,
		imageRoot: root,
		listings:  NewListingService(cars, images, logger),
		auth:      NewUserService(users, logger),
	}
}

func validInput(year string) ListingInput {
	return ListingInput{
		Make:    "Toyota",
		Model:   "Corolla",
		Year:    year,
		Price:   "15000.0",
		Mileage: "30000",
	}
}

func ids(cars []domain.Car) []int64 {
	out := make([]int64, len(cars))
	for i := range cars {
		out[i] = cars[i].ID
	}
	return out
}

func TestCreateListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := validInput("2020")
	in.Color = "  Red "
	in.Description = "clean title"
	car, err := f.listings.Create(ctx, in, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if car.ID == 0 || car.IsSold {
		t.Fatalf("unexpected new car %+v", car)
	}

	got, err := f.listings.Get(ctx, car.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := domain.Car{ID: car.ID, Make: "Toyota", Model: "Corolla", Year: 2020, Price: 15000, Mileage: 30000, Color: "Red", Description: "clean title"}
	got.CreatedAt, got.UpdatedAt = want.CreatedAt, want.UpdatedAt
	if diff := cmp.Diff(want, *got); diff != "" {
		t.Errorf("stored car mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateListingValidation(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*ListingInput)
		field string
	}{
		{name: "missing make", edit: func(in *ListingInput) { in.Make = "" }, field: "make"},
		{name: "blank model", edit: func(in *ListingInput) { in.Model = "   " }, field: "model"},
		{name: "year not a number", edit: func(in *ListingInput) { in.Year = "twenty" }, field: "year"},
		{name: "fractional year", edit: func(in *ListingInput) { in.Year = "2020.5" }, field: "year"},
		{name: "price not a number", edit: func(in *ListingInput) { in.Price = "cheap" }, field: "price"},
		{name: "price NaN", edit: func(in *ListingInput) { in.Price = "NaN" }, field: "price"},
		{name: "missing mileage", edit: func(in *ListingInput) { in.Mileage = "" }, field: "mileage"},
		{name: "long color", edit: func(in *ListingInput) { in.Color = strings.Repeat("x", 51) }, field: "color"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			in := validInput("2020")
			tt.edit(&in)
			_, err := f.listings.Create(ctx, in, &Upload{Name: "car.jpg", Body: strings.NewReader("img")})

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Fatalf("expected field %q, got %q", tt.field, verr.Field)
			}

			n, err := f.cars.Count(ctx)
			if err != nil {
				t.Fatalf("count: %v", err)
			}
			if n != 0 {
				t.Fatalf("expected no rows persisted, got %d", n)
			}
			entries, _ := os.ReadDir(f.imageRoot)
			if len(entries) != 0 {
				t.Fatalf("expected no image stored, got %d files", len(entries))
			}
		})
	}
}

func TestCreateListingStoresImageUnderGeneratedKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	car, err := f.listings.Create(ctx, validInput("2020"), &Upload{Name: "../../evil name.PNG", Body: strings.NewReader("png")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if car.ImageFilename == "" || strings.Contains(car.ImageFilename, "evil") || !strings.HasSuffix(car.ImageFilename, ".png") {
		t.Fatalf("unexpected image key %q", car.ImageFilename)
	}
	if _, err := os.Stat(filepath.Join(f.imageRoot, car.ImageFilename)); err != nil {
		t.Fatalf("image not stored: %v", err)
	}

	_, err = f.listings.Create(ctx, validInput("2020"), &Upload{Name: "run.exe", Body: strings.NewReader("MZ")})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "image_file" {
		t.Fatalf("expected image_file ValidationError, got %v", err)
	}
}

func TestListingsSortedByYearDesc(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, year := range []string{"2010", "2022", "2015"} {
		if _, err := f.listings.Create(ctx, validInput(year), nil); err != nil {
			t.Fatalf("create %s: %v", year, err)
		}
	}

	for name, list := range map[string]func(context.Context) ([]domain.Car, error){
		"available": f.listings.ListAvailable,
		"all":       f.listings.ListAll,
	} {
		cars, err := list(ctx)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		years := make([]int, len(cars))
		for i := range cars {
			years[i] = cars[i].Year
		}
		if diff := cmp.Diff([]int{2022, 2015, 2010}, years); diff != "" {
			t.Errorf("%s order (-want +got):\n%s", name, diff)
		}
	}
}

func TestSoldRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.listings.Create(ctx, validInput("2018"), nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, err := f.listings.Create(ctx, validInput("2016"), nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	available := func() []int64 {
		t.Helper()
		cars, err := f.listings.ListAvailable(ctx)
		if err != nil {
			t.Fatalf("list available: %v", err)
		}
		return ids(cars)
	}

	if diff := cmp.Diff([]int64{a.ID, b.ID}, available()); diff != "" {
		t.Fatalf("initial availability (-want +got):\n%s", diff)
	}

	sold, err := f.listings.MarkSold(ctx, a.ID)
	if err != nil {
		t.Fatalf("mark sold: %v", err)
	}
	if !sold.IsSold {
		t.Fatal("expected returned car to be sold")
	}
	if _, err := f.listings.MarkSold(ctx, a.ID); err != nil {
		t.Fatalf("marking sold twice must succeed: %v", err)
	}
	if diff := cmp.Diff([]int64{b.ID}, available()); diff != "" {
		t.Fatalf("after sold (-want +got):\n%s", diff)
	}

	all, err := f.listings.ListAll(ctx)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("sold car must stay in the full list, got %d cars", len(all))
	}

	if _, err := f.listings.MarkAvailable(ctx, a.ID); err != nil {
		t.Fatalf("mark available: %v", err)
	}
	if _, err := f.listings.MarkAvailable(ctx, a.ID); err != nil {
		t.Fatalf("marking available twice must succeed: %v", err)
	}
	if diff := cmp.Diff([]int64{a.ID, b.ID}, available()); diff != "" {
		t.Fatalf("after available (-want +got):\n%s", diff)
	}
}

func TestUpdateListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	car, err := f.listings.Create(ctx, validInput("2020"), &Upload{Name: "a.jpg", Body: strings.NewReader("a")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.listings.MarkSold(ctx, car.ID); err != nil {
		t.Fatalf("mark sold: %v", err)
	}

	in := ListingInput{Make: "Honda", Model: "Accord", Year: "2021", Price: "20000", Mileage: "100"}
	updated, err := f.listings.Update(ctx, car.ID, in, nil)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ImageFilename != car.ImageFilename {
		t.Fatalf("image must be kept without a new upload, got %q", updated.ImageFilename)
	}
	if !updated.IsSold {
		t.Fatal("update must not touch the sold flag")
	}
	if updated.Color != "" || updated.Make != "Honda" || updated.Year != 2021 {
		t.Fatalf("fields not overwritten: %+v", updated)
	}

	replaced, err := f.listings.Update(ctx, car.ID, in, &Upload{Name: "b.png", Body: strings.NewReader("b")})
	if err != nil {
		t.Fatalf("update with image: %v", err)
	}
	if replaced.ImageFilename == car.ImageFilename || !strings.HasSuffix(replaced.ImageFilename, ".png") {
		t.Fatalf("image not replaced: %q", replaced.ImageFilename)
	}
	if _, err := os.Stat(filepath.Join(f.imageRoot, car.ImageFilename)); !os.IsNotExist(err) {
		t.Fatalf("old image should be removed, stat err %v", err)
	}
}

func TestUpdateMissingListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	car, err := f.listings.Create(ctx, validInput("2020"), nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.listings.Update(ctx, car.ID+100, validInput("1999"), nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	got, err := f.listings.Get(ctx, car.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Year != 2020 {
		t.Fatalf("existing row mutated: %+v", got)
	}
}

func TestUpdateValidationKeepsRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	car, err := f.listings.Create(ctx, validInput("2020"), nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	bad := validInput("soon")
	var verr *ValidationError
	if _, err := f.listings.Update(ctx, car.ID, bad, nil); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	got, err := f.listings.Get(ctx, car.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Year != 2020 {
		t.Fatalf("row mutated on invalid update: %+v", got)
	}
}

func TestDeleteListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	car, err := f.listings.Create(ctx, validInput("2020"), &Upload{Name: "x.gif", Body: strings.NewReader("gif")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.listings.Delete(ctx, car.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.listings.Get(ctx, car.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := f.listings.Delete(ctx, car.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.imageRoot, car.ImageFilename)); !os.IsNotExist(err) {
		t.Fatalf("image should be removed with the listing, stat err %v", err)
	}
}

func TestStatusChangesOnMissingListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.listings.MarkSold(ctx, 7); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkSold: expected ErrNotFound, got %v", err)
	}
	if _, err := f.listings.MarkAvailable(ctx, 7); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkAvailable: expected ErrNotFound, got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.auth.EnsureAdmin(ctx, "admin", "adminpassword")
	if err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	if !created {
		t.Fatal("expected admin to be created")
	}

	user, err := f.auth.Authenticate(ctx, "admin", "adminpassword")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user.Username != "admin" || user.PasswordHash != "" {
		t.Fatalf("unexpected user %+v", user)
	}

	_, wrongPassword := f.auth.Authenticate(ctx, "admin", "nope")
	_, wrongUser := f.auth.Authenticate(ctx, "root", "adminpassword")
	_, blank := f.auth.Authenticate(ctx, "", "")
	for name, err := range map[string]error{"wrong password": wrongPassword, "wrong user": wrongUser, "blank": blank} {
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("%s: expected ErrInvalidCredentials, got %v", name, err)
		}
	}
	if wrongPassword.Error() != wrongUser.Error() {
		t.Errorf("failures must be indistinguishable: %q vs %q", wrongPassword, wrongUser)
	}
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := f.auth.EnsureAdmin(ctx, "admin", "adminpassword"); err != nil {
			t.Fatalf("ensure admin (pass %d): %v", i, err)
		}
	}
	n, err := f.users.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly one user, got %d", n)
	}
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.auth.EnsureAdmin(ctx, "admin", "adminpassword"); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}

	var verr *ValidationError
	if err := f.auth.ChangePassword(ctx, "admin", "short"); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for short password, got %v", err)
	}
	if err := f.auth.ChangePassword(ctx, "ghost", "long-enough-password"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := f.auth.ChangePassword(ctx, "admin", "rotated-password"); err != nil {
		t.Fatalf("change password: %v", err)
	}

	if _, err := f.auth.Authenticate(ctx, "admin", "adminpassword"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	if _, err := f.auth.Authenticate(ctx, "admin", "rotated-password"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}
