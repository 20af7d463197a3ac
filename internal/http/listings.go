package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"autolot/internal/domain"
	"autolot/internal/service"
)

func (h *Handler) home(c *gin.Context) {
	cars, err := h.listings.ListAvailable(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, http.StatusOK, "index.html", gin.H{"Cars": cars})
}

func (h *Handler) dashboard(c *gin.Context) {
	cars, err := h.listings.ListAll(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, http.StatusOK, "admin_dashboard.html", gin.H{"Cars": cars})
}

func (h *Handler) addListingPage(c *gin.Context) {
	h.renderForm(c, http.StatusOK, "Add Listing", "/add_listing", service.ListingInput{}, nil)
}

func (h *Handler) addListing(c *gin.Context) {
	var in service.ListingInput
	if err := c.ShouldBind(&in); err != nil {
		h.renderForm(c, http.StatusBadRequest, "Add Listing", "/add_listing", in, err)
		return
	}

	upload, closeUpload, err := formUpload(c)
	if err != nil {
		h.renderForm(c, http.StatusBadRequest, "Add Listing", "/add_listing", in, err)
		return
	}
	defer closeUpload()

	if _, err := h.listings.Create(c.Request.Context(), in, upload); err != nil {
		if isValidation(err) {
			h.renderForm(c, http.StatusBadRequest, "Add Listing", "/add_listing", in, err)
			return
		}
		h.fail(c, err)
		return
	}

	h.flash(c, FlashSuccess, "Car listing added successfully!")
	c.Redirect(http.StatusSeeOther, "/admin_dashboard")
}

func (h *Handler) editListingPage(c *gin.Context) {
	id, ok := h.carID(c)
	if !ok {
		return
	}
	car, err := h.listings.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.renderForm(c, http.StatusOK, "Edit Listing", editPath(id), inputFromCar(car), nil, car)
}

func (h *Handler) editListing(c *gin.Context) {
	id, ok := h.carID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var in service.ListingInput
	if err := c.ShouldBind(&in); err != nil {
		h.renderForm(c, http.StatusBadRequest, "Edit Listing", editPath(id), in, err)
		return
	}

	upload, closeUpload, err := formUpload(c)
	if err != nil {
		h.renderForm(c, http.StatusBadRequest, "Edit Listing", editPath(id), in, err)
		return
	}
	defer closeUpload()

	if _, err := h.listings.Update(ctx, id, in, upload); err != nil {
		if isValidation(err) {
			car, getErr := h.listings.Get(ctx, id)
			if getErr != nil {
				h.fail(c, getErr)
				return
			}
			h.renderForm(c, http.StatusBadRequest, "Edit Listing", editPath(id), in, err, car)
			return
		}
		h.fail(c, err)
		return
	}

	h.flash(c, FlashSuccess, "Car listing updated successfully!")
	c.Redirect(http.StatusSeeOther, "/admin_dashboard")
}

func (h *Handler) deleteListing(c *gin.Context) {
	id, ok := h.carID(c)
	if !ok {
		return
	}
	if err := h.listings.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	h.flash(c, FlashSuccess, "Car listing deleted successfully!")
	c.Redirect(http.StatusSeeOther, "/admin_dashboard")
}

func (h *Handler) markSold(c *gin.Context) {
	h.changeStatus(c, h.listings.MarkSold, "%s marked as SOLD!")
}

func (h *Handler) markAvailable(c *gin.Context) {
	h.changeStatus(c, h.listings.MarkAvailable, "%s marked as Available!")
}

func (h *Handler) changeStatus(c *gin.Context, apply func(context.Context, int64) (*domain.Car, error), format string) {
	id, ok := h.carID(c)
	if !ok {
		return
	}
	car, err := apply(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.flash(c, FlashSuccess, fmt.Sprintf(format, car.Title()))
	c.Redirect(http.StatusSeeOther, "/admin_dashboard")
}

// renderForm shows the add/edit form. A non-nil err is shown as a danger flash;
// car, when given, is the record being edited.
func (h *Handler) renderForm(c *gin.Context, status int, title, action string, in service.ListingInput, err error, car ...*domain.Car) {
	data := gin.H{
		"Title":  title,
		"Action": action,
		"Input":  in,
	}
	if len(car) > 0 {
		data["Car"] = car[0]
	}
	if err != nil {
		data["Flashes"] = []Flash{{Category: FlashDanger, Message: formErrorMessage(err)}}
	}
	h.render(c, status, "listing_form.html", data)
}

func formErrorMessage(err error) string {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		return fmt.Sprintf("Please correct the form: %s.", verr.Error())
	}
	return "Please correct the form: the submitted data could not be read."
}

func isValidation(err error) bool {
	var verr *service.ValidationError
	return errors.As(err, &verr)
}

// formUpload returns the optional image_file upload. A missing or empty file
// yields a nil upload.
func formUpload(c *gin.Context) (*service.Upload, func(), error) {
	noop := func() {}
	fh, err := c.FormFile("image_file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, noop, nil
		}
		return nil, noop, err
	}
	if fh.Filename == "" {
		return nil, noop, nil
	}
	f, err := fh.Open()
	if err != nil {
		return nil, noop, fmt.Errorf("open upload: %w", err)
	}
	return &service.Upload{Name: fh.Filename, Body: f}, func() { f.Close() }, nil
}

func inputFromCar(car *domain.Car) service.ListingInput {
	return service.ListingInput{
		Make:        car.Make,
		Model:       car.Model,
		Year:        strconv.Itoa(car.Year),
		Price:       strconv.FormatFloat(car.Price, 'f', -1, 64),
		Mileage:     strconv.Itoa(car.Mileage),
		Color:       car.Color,
		Description: car.Description,
	}
}

func editPath(id int64) string {
	return "/edit_listing/" + strconv.FormatInt(id, 10)
}
