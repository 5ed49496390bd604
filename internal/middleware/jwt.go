package middleware

import (
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"
)

// TokenParser validates an access token and returns its principal id.
type TokenParser interface {
    ParseAccessToken(raw string) (string, error)
}

// JWTAuth validates the access token and stores its principal id in the
// context under "user_id".  The token is read from the Authorization
// header ("Bearer <jwt>"); browsers cannot set headers on a websocket
// upgrade, so the access_token query parameter is accepted as well.
func JWTAuth(tokens TokenParser) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            raw := bearerToken(c)
            if raw == "" {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }
            sub, err := tokens.ParseAccessToken(raw)
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }
            c.Set("user_id", sub)
            return next(c)
        }
    }
}

// OptionalJWT is JWTAuth for routes that also serve anonymous callers: a
// valid token sets "user_id", a missing or bad one is ignored.
func OptionalJWT(tokens TokenParser) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if raw := bearerToken(c); raw != "" {
                if sub, err := tokens.ParseAccessToken(raw); err == nil {
                    c.Set("user_id", sub)
                }
            }
            return next(c)
        }
    }
}

func bearerToken(c echo.Context) string {
    auth := c.Request().Header.Get("Authorization")
    if strings.HasPrefix(auth, "Bearer ") {
        return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
    }
    return strings.TrimSpace(c.QueryParam("access_token"))
}
