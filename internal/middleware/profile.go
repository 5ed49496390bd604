package middleware

import (
    "context"
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/ewaste-marketplace/internal/model"
    "github.com/iliyamo/ewaste-marketplace/internal/repository"
)

// ProfileResolver loads the profile of an authenticated principal.
type ProfileResolver interface {
    ResolveProfile(ctx context.Context, userID string) (model.Profile, error)
}

// LoadProfile resolves the profile of the principal set by JWTAuth and
// stores it under "profile", with its role under "role".  The role is only
// ever taken from the profile row.  A principal without a profile is
// treated as unauthenticated.
func LoadProfile(profiles ProfileResolver, log *zap.Logger) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            uid, _ := c.Get("user_id").(string)
            if uid == "" {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
            }
            p, err := profiles.ResolveProfile(c.Request().Context(), uid)
            if err != nil {
                if errors.Is(err, repository.ErrNotFound) {
                    return c.JSON(http.StatusUnauthorized, echo.Map{"error": "profile not found"})
                }
                log.Error("resolve profile failed", zap.String("user_id", uid), zap.Error(err))
                return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
            }
            c.Set("profile", p)
            c.Set("role", p.Role)
            return next(c)
        }
    }
}
