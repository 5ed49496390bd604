package middleware

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/ewaste-marketplace/internal/model"
)

// RequireRole aborts with 403 unless the role stored by LoadProfile is one
// of roles.  A request that never got a profile is answered with 401.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
    allowed := make(map[model.Role]bool, len(roles))
    for _, r := range roles {
        allowed[r] = true
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            role, ok := c.Get("role").(model.Role)
            if !ok {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
            }
            if !allowed[role] {
                return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
            }
            return next(c)
        }
    }
}
