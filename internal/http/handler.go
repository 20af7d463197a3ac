package http

import (
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"autolot/internal/domain"
	"autolot/internal/service"
	"autolot/internal/storage"
)

//go:embed templates/*.html
var templateFS embed.FS

const principalKey = "principal"

// Handler wires HTTP routes to domain services.
type Handler struct {
	listings service.ListingService
	users    service.UserService
	images   storage.ImageStore
	sessions *SessionManager
	logger   *logrus.Logger
}

func NewHandler(listings service.ListingService, users service.UserService, images storage.ImageStore, sessions *SessionManager, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{
		listings: listings,
		users:    users,
		images:   images,
		sessions: sessions,
		logger:   logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.SetHTMLTemplate(template.Must(template.New("").Funcs(h.templateFuncs()).ParseFS(templateFS, "templates/*.html")))
	router.Use(requestLogger(h.logger))

	if local, ok := h.images.(*storage.LocalStore); ok {
		router.Static(local.BaseURL, local.Root)
	}

	router.GET("/", h.home)
	router.GET("/home", h.home)
	router.GET("/login", h.loginPage)
	router.POST("/login", h.login)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	admin := router.Group("/", h.requireLogin)
	{
		admin.GET("/logout", h.logout)
		admin.GET("/admin_dashboard", h.dashboard)
		admin.GET("/add_listing", h.addListingPage)
		admin.POST("/add_listing", h.addListing)
		admin.GET("/edit_listing/:id", h.editListingPage)
		admin.POST("/edit_listing/:id", h.editListing)
		admin.POST("/delete_listing/:id", h.deleteListing)
		admin.POST("/mark_sold/:id", h.markSold)
		admin.POST("/mark_available/:id", h.markAvailable)
	}
}

func (h *Handler) templateFuncs() template.FuncMap {
	return template.FuncMap{
		"imageURL": h.images.URL,
		"money": func(v float64) string {
			return "$" + strconv.FormatFloat(v, 'f', 2, 64)
		},
	}
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
			"client":  c.ClientIP(),
		})
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.Error("request")
		case status >= http.StatusBadRequest:
			entry.Warn("request")
		default:
			entry.Debug("request")
		}
	}
}

// requireLogin rejects anonymous callers with a redirect to the login page.
func (h *Handler) requireLogin(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		h.flash(c, FlashInfo, "Please log in to access this page.")
		c.Redirect(http.StatusFound, "/login")
		c.Abort()
		return
	}
	c.Set(principalKey, user)
	c.Next()
}

// currentUser resolves the session principal, if any.
func (h *Handler) currentUser(c *gin.Context) (*domain.User, bool) {
	if v, ok := c.Get(principalKey); ok {
		user, ok := v.(*domain.User)
		return user, ok
	}
	id, ok := h.sessions.Principal(c)
	if !ok {
		return nil, false
	}
	user, err := h.users.GetByID(c.Request.Context(), id)
	if err != nil {
		if !errors.Is(err, service.ErrNotFound) {
			h.logger.WithError(err).Warn("resolve session principal")
		}
		return nil, false
	}
	return user, true
}

func (h *Handler) flash(c *gin.Context, category, message string) {
	if err := h.sessions.Flash(c, category, message); err != nil {
		h.logger.WithError(err).Warn("save flash")
	}
}

func (h *Handler) render(c *gin.Context, status int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	if _, ok := data["Flashes"]; !ok {
		data["Flashes"] = h.sessions.Flashes(c)
	}
	if v, ok := c.Get(principalKey); ok {
		data["User"] = v
	}
	c.HTML(status, name, data)
}

// fail converts a service error into an error page.
func (h *Handler) fail(c *gin.Context, err error) {
	if errors.Is(err, service.ErrNotFound) {
		h.render(c, http.StatusNotFound, "error.html", gin.H{"Status": http.StatusNotFound, "Message": "Listing not found."})
		return
	}
	h.logger.WithError(err).WithField("path", c.Request.URL.Path).Error("request failed")
	h.render(c, http.StatusInternalServerError, "error.html", gin.H{"Status": http.StatusInternalServerError, "Message": "Something went wrong. Please try again."})
}

func (h *Handler) carID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.render(c, http.StatusNotFound, "error.html", gin.H{"Status": http.StatusNotFound, "Message": "Listing not found."})
		return 0, false
	}
	return id, true
}
