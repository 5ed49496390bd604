package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ewaste-marketplace/internal/handler"
	"github.com/iliyamo/ewaste-marketplace/internal/model"
)

// RegisterCustomer registers customer-scoped endpoints under /v1/customer.
// All routes require a valid JWT and the customer role.  Customers submit
// pickup requests and follow them through collection.
func RegisterCustomer(e *echo.Echo, h *handler.CustomerHandler, guard Guard) {
	g := e.Group("/v1/customer", guard.Authenticated(model.RoleCustomer)...)
	g.POST("/requests", h.SubmitRequest)
	g.GET("/requests", h.ListRequests)
	g.GET("/requests/track/:code", h.Track)
	g.GET("/requests/:id/history", h.History)
}
