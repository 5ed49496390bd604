package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iliyamo/ewaste-marketplace/internal/model"
	"github.com/iliyamo/ewaste-marketplace/internal/workflow"
)

// AdminHandler serves the admin console: requests, inventory, users,
// sales and the contact inbox.
type AdminHandler struct{ base }

func NewAdminHandler(wf *workflow.Coordinator, log *zap.Logger) *AdminHandler {
	return &AdminHandler{newBase(wf, log)}
}

// ----- pickup requests -----

func (h *AdminHandler) Requests(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	items, err := h.WF.ListRequests(ctx, session(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

type advanceReq struct {
	Status string `json:"status"`
}

// AdvanceRequest applies a status transition.  A collected request whose
// inventory row could not be created is reported with 207 and the
// updated request, since the status change itself stands.
func (h *AdminHandler) AdvanceRequest(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	var req advanceReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	res, err := h.WF.AdvanceRequest(ctx, session(c), id, model.RequestStatus(strings.TrimSpace(req.Status)))
	if err != nil {
		if errors.Is(err, workflow.ErrInventorySync) {
			return c.JSON(http.StatusMultiStatus, echo.Map{
				"request": res.Request,
				"error":   "status updated but inventory item was not created",
			})
		}
		return h.fail(c, err)
	}
	out := echo.Map{"request": res.Request}
	if res.Item != nil {
		out["inventory_item"] = res.Item
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminHandler) DeleteRequest(c echo.Context) error {
	return h.deleteRow(c, workflow.TablePickupRequests)
}

// ----- inventory -----

func (h *AdminHandler) Inventory(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	items, err := h.WF.ListInventory(ctx, session(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

type addItemReq struct {
	ItemName     string          `json:"item_name"`
	Qty          int             `json:"qty"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
}

func (h *AdminHandler) AddItem(c echo.Context) error {
	var req addItemReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	item, err := h.WF.AddInventoryItem(ctx, session(c), req.ItemName, req.Qty, req.PricePerUnit)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, item)
}

type priceReq struct {
	PricePerUnit *decimal.Decimal `json:"price_per_unit"`
}

func (h *AdminHandler) UpdatePrice(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	var req priceReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.PricePerUnit == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "price_per_unit: required"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.WF.UpdatePrice(ctx, session(c), id, *req.PricePerUnit); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHandler) DeleteItem(c echo.Context) error {
	return h.deleteRow(c, workflow.TableInventory)
}

func (h *AdminHandler) deleteRow(c echo.Context, table string) error {
	id, err := parseID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.WF.DeleteRow(ctx, session(c), table, id); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ----- dashboards -----

func (h *AdminHandler) Stats(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	st, err := h.WF.AdminStats(ctx, session(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

// Users lists profiles, filtered by ?role= when given.
func (h *AdminHandler) Users(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	role := model.Role(strings.ToLower(strings.TrimSpace(c.QueryParam("role"))))
	users, err := h.WF.ListProfiles(ctx, session(c), role)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, users)
}

func (h *AdminHandler) Companies(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	companies, err := h.WF.ListCompanies(ctx, session(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, companies)
}

func (h *AdminHandler) DeleteUser(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.WF.DeleteUser(ctx, session(c), c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHandler) Sales(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	sales, err := h.WF.ListSales(ctx, session(c))
	if err != nil {
		return h.fail(c, err)
	}
	total := decimal.Zero
	for _, s := range sales {
		total = total.Add(s.TotalPrice)
	}
	return c.JSON(http.StatusOK, echo.Map{"orders": sales, "total_revenue": total})
}

// ----- contact inbox -----

// Messages lists inbox messages, filtered by ?status= when given.
func (h *AdminHandler) Messages(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	status := model.MessageStatus(strings.ToLower(strings.TrimSpace(c.QueryParam("status"))))
	if status == "all" {
		status = ""
	}
	msgs, err := h.WF.ListMessages(ctx, session(c), status)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, msgs)
}

func (h *AdminHandler) MarkRead(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	msg, err := h.WF.MarkMessageRead(ctx, session(c), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, msg)
}

func (h *AdminHandler) Archive(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	msg, err := h.WF.ArchiveMessage(ctx, session(c), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, msg)
}

func (h *AdminHandler) DeleteMessage(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.WF.DeleteMessage(ctx, session(c), id); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
