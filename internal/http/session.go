package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/sessions"

	"autolot/internal/domain"
)

const (
	authCookieName   = "autolot_auth"
	flashSessionName = "autolot_flash"
)

// Flash categories understood by the templates.
const (
	FlashSuccess = "success"
	FlashInfo    = "info"
	FlashDanger  = "danger"
)

var flashCategories = []string{FlashSuccess, FlashInfo, FlashDanger}

// Flash is a one-shot status message shown on the next rendered page.
type Flash struct {
	Category string
	Message  string
}

type sessionClaims struct {
	UserID int64 `json:"uid"`
	jwt.RegisteredClaims
}

// SessionManager tracks the logged-in principal in a signed, expiring token
// cookie and keeps flash messages in a gorilla cookie session.
type SessionManager struct {
	secret  []byte
	ttl     time.Duration
	secure  bool
	flashes sessions.Store
}

func NewSessionManager(secret []byte, ttl time.Duration, secure bool) *SessionManager {
	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &SessionManager{
		secret:  secret,
		ttl:     ttl,
		secure:  secure,
		flashes: store,
	}
}

// Start makes user the principal of the caller's session.
func (m *SessionManager) Start(c *gin.Context, user *domain.User) error {
	now := time.Now()
	claims := &sessionClaims{
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return fmt.Errorf("sign session token: %w", err)
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     authCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(m.ttl.Seconds()),
	})
	return nil
}

// End clears the session principal.
func (m *SessionManager) End(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     authCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// Principal returns the user id carried by a valid, unexpired session token.
func (m *SessionManager) Principal(c *gin.Context) (int64, bool) {
	raw, err := c.Cookie(authCookieName)
	if err != nil || raw == "" {
		return 0, false
	}

	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid || claims.UserID <= 0 {
		return 0, false
	}
	return claims.UserID, true
}

// Flash queues a message for the next page render.
func (m *SessionManager) Flash(c *gin.Context, category, message string) error {
	sess, err := m.flashes.Get(c.Request, flashSessionName)
	if err != nil && sess == nil {
		return fmt.Errorf("load flash session: %w", err)
	}
	sess.AddFlash(message, category)
	return sess.Save(c.Request, c.Writer)
}

// Flashes pops every queued message. It must run before the response body is written.
func (m *SessionManager) Flashes(c *gin.Context) []Flash {
	sess, err := m.flashes.Get(c.Request, flashSessionName)
	if sess == nil {
		return nil
	}
	if err != nil {
		// undecodable cookie (e.g. rotated secret): drop it
		sess.Options.MaxAge = -1
		_ = sess.Save(c.Request, c.Writer)
		return nil
	}

	var out []Flash
	for _, category := range flashCategories {
		for _, v := range sess.Flashes(category) {
			if msg, ok := v.(string); ok {
				out = append(out, Flash{Category: category, Message: msg})
			}
		}
	}
	if len(out) > 0 {
		_ = sess.Save(c.Request, c.Writer)
	}
	return out
}
