package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"securecheckout/internal/pkg/utils"
	"securecheckout/internal/session"
)

const sessionContextKey = "checkout_session"

// Session loads the checkout session named by the cookie, issuing a new id when
// the cookie is missing, and stores it on the echo context. A secure cookie is sent
// with SameSite=None so the gateway's cross-site reply post still carries it.
func Session(store session.Store, cookieName string, ttl time.Duration, secure bool, logger *zap.Logger) echo.MiddlewareFunc {
	sameSite := http.SameSiteLaxMode
	if secure {
		sameSite = http.SameSiteNoneMode
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := ""
			if cookie, err := c.Cookie(cookieName); err == nil {
				id = cookie.Value
			}
			if id == "" {
				id = utils.GenerateUUID()
				c.SetCookie(&http.Cookie{
					Name:     cookieName,
					Value:    id,
					Path:     "/",
					MaxAge:   int(ttl.Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: sameSite,
				})
			}

			sess, err := store.Load(c.Request().Context(), id)
			if err != nil {
				logger.Error("Failed to load session", zap.Error(err))
				return echo.NewHTTPError(http.StatusServiceUnavailable, "session store unavailable")
			}
			c.Set(sessionContextKey, sess)
			return next(c)
		}
	}
}

// SessionFrom returns the session loaded by the Session middleware.
func SessionFrom(c echo.Context) *session.Session {
	sess, _ := c.Get(sessionContextKey).(*session.Session)
	return sess
}
