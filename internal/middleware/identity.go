package middleware

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/ewaste-marketplace/internal/model"
)

// CurrentProfile returns the profile stored by LoadProfile.
func CurrentProfile(c echo.Context) (model.Profile, bool) {
    p, ok := c.Get("profile").(model.Profile)
    return p, ok
}

// CurrentUserID returns the principal id stored by JWTAuth, or "" for an
// anonymous request.
func CurrentUserID(c echo.Context) string {
    s, _ := c.Get("user_id").(string)
    return s
}

// rateUserID is CurrentUserID with a stable placeholder for anonymous
// callers so they share one bucket per IP.
func rateUserID(c echo.Context) string {
    if s := CurrentUserID(c); s != "" {
        return s
    }
    return "anon"
}
