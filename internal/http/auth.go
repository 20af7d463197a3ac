package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"autolot/internal/service"
)

const loginFailedMessage = "Login Unsuccessful. Please check username and password"

func (h *Handler) loginPage(c *gin.Context) {
	if _, ok := h.currentUser(c); ok {
		c.Redirect(http.StatusFound, "/admin_dashboard")
		return
	}
	h.render(c, http.StatusOK, "login.html", gin.H{"Title": "Login"})
}

func (h *Handler) login(c *gin.Context) {
	if _, ok := h.currentUser(c); ok {
		c.Redirect(http.StatusSeeOther, "/admin_dashboard")
		return
	}

	username := c.PostForm("username")
	user, err := h.users.Authenticate(c.Request.Context(), username, c.PostForm("password"))
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.logger.WithField("client", c.ClientIP()).Warn("failed login attempt")
			h.render(c, http.StatusUnauthorized, "login.html", gin.H{
				"Title":    "Login",
				"Username": username,
				"Flashes":  []Flash{{Category: FlashDanger, Message: loginFailedMessage}},
			})
			return
		}
		h.fail(c, err)
		return
	}

	if err := h.sessions.Start(c, user); err != nil {
		h.fail(c, err)
		return
	}
	h.logger.WithField("username", user.Username).Info("user logged in")
	h.flash(c, FlashSuccess, "Logged in successfully!")
	c.Redirect(http.StatusSeeOther, "/admin_dashboard")
}

func (h *Handler) logout(c *gin.Context) {
	h.sessions.End(c)
	h.flash(c, FlashInfo, "You have been logged out.")
	c.Redirect(http.StatusFound, "/home")
}
