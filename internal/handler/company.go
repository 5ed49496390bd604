package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/ewaste-marketplace/internal/workflow"
)

// CompanyHandler serves the marketplace and a company's orders.
type CompanyHandler struct{ base }

func NewCompanyHandler(wf *workflow.Coordinator, log *zap.Logger) *CompanyHandler {
	return &CompanyHandler{newBase(wf, log)}
}

// Marketplace lists items with stock left.
func (h *CompanyHandler) Marketplace(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	items, err := h.WF.ListMarketplace(ctx, session(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

// PlaceOrder buys one unit of the item in the path.
func (h *CompanyHandler) PlaceOrder(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	o, err := h.WF.PlaceOrder(ctx, session(c), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *CompanyHandler) Orders(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	orders, err := h.WF.ListMyOrders(ctx, session(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, orders)
}

func (h *CompanyHandler) Stats(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	st, err := h.WF.CompanyStats(ctx, session(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, st)
}
