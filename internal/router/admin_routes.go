package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ewaste-marketplace/internal/handler"
	"github.com/iliyamo/ewaste-marketplace/internal/model"
)

// RegisterAdmin registers the admin console under /v1/admin.  Every route
// requires the admin role.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, guard Guard) {
	g := e.Group("/v1/admin", guard.Authenticated(model.RoleAdmin)...)

	g.GET("/requests", h.Requests)
	g.PATCH("/requests/:id/status", h.AdvanceRequest)
	g.DELETE("/requests/:id", h.DeleteRequest)

	g.GET("/inventory", h.Inventory)
	g.POST("/inventory", h.AddItem)
	g.PATCH("/inventory/:id/price", h.UpdatePrice)
	g.DELETE("/inventory/:id", h.DeleteItem)

	g.GET("/stats", h.Stats)
	g.GET("/users", h.Users)
	g.DELETE("/users/:id", h.DeleteUser)
	g.GET("/companies", h.Companies)
	g.GET("/sales", h.Sales)

	g.GET("/messages", h.Messages)
	g.PATCH("/messages/:id/read", h.MarkRead)
	g.PATCH("/messages/:id/archive", h.Archive)
	g.DELETE("/messages/:id", h.DeleteMessage)
}
