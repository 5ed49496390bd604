package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ewaste-marketplace/internal/handler"
	"github.com/iliyamo/ewaste-marketplace/internal/model"
)

// RegisterCompany registers the marketplace under /v1/company.  The
// listing runs behind the response cache, which sits after the role gate
// so that a cached body is never served to a caller the gate would reject.
func RegisterCompany(e *echo.Echo, h *handler.CompanyHandler, guard Guard, cache echo.MiddlewareFunc) {
	g := e.Group("/v1/company", guard.Authenticated(model.RoleCompany)...)
	if cache != nil {
		g.GET("/marketplace", h.Marketplace, cache)
	} else {
		g.GET("/marketplace", h.Marketplace)
	}
	g.POST("/marketplace/:id/order", h.PlaceOrder)
	g.GET("/orders", h.Orders)
	g.GET("/stats", h.Stats)
}
