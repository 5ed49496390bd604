package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/ewaste-marketplace/internal/workflow"
)

// CustomerHandler serves the customer's pickup request screens.
type CustomerHandler struct{ base }

func NewCustomerHandler(wf *workflow.Coordinator, log *zap.Logger) *CustomerHandler {
	return &CustomerHandler{newBase(wf, log)}
}

type submitReq struct {
	EwasteType    string `json:"ewaste_type"`
	Qty           int    `json:"qty"`
	Description   string `json:"description"`
	PickupAddress string `json:"pickup_address"`
	PickupDate    string `json:"pickup_date"`
	PickupTime    string `json:"pickup_time"`
}

// SubmitRequest accepts either JSON or a multipart form.  A multipart form
// may carry the photo in the "image" field.
func (h *CustomerHandler) SubmitRequest(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	var in workflow.SubmitRequestInput
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		qty, err := strconv.Atoi(strings.TrimSpace(c.FormValue("qty")))
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "qty: must be a number"})
		}
		in = workflow.SubmitRequestInput{
			EwasteType:    c.FormValue("ewaste_type"),
			Qty:           qty,
			Description:   c.FormValue("description"),
			PickupAddress: c.FormValue("pickup_address"),
			PickupDate:    c.FormValue("pickup_date"),
			PickupTime:    c.FormValue("pickup_time"),
		}
		if fh, err := c.FormFile("image"); err == nil {
			if ct := fh.Header.Get(echo.HeaderContentType); ct != "" && !strings.HasPrefix(ct, "image/") {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "image: must be an image file"})
			}
			f, err := fh.Open()
			if err != nil {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "image: unreadable upload"})
			}
			defer f.Close()
			in.Image = f
			in.ImageName = fh.Filename
		} else if err != http.ErrMissingFile {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "image: invalid upload"})
		}
	} else {
		var req submitReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
		}
		in = workflow.SubmitRequestInput{
			EwasteType:    req.EwasteType,
			Qty:           req.Qty,
			Description:   req.Description,
			PickupAddress: req.PickupAddress,
			PickupDate:    req.PickupDate,
			PickupTime:    req.PickupTime,
		}
	}

	req, err := h.WF.SubmitRequest(ctx, session(c), in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, req)
}

// ListRequests is the customer's request history.
func (h *CustomerHandler) ListRequests(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	items, err := h.WF.ListMyRequests(ctx, session(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

// Track looks a request up by its EW- code.
func (h *CustomerHandler) Track(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	req, err := h.WF.TrackRequest(ctx, session(c), c.Param("code"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, req)
}

// History returns the status log of one of the caller's requests.
func (h *CustomerHandler) History(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	entries, err := h.WF.RequestHistory(ctx, session(c), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, entries)
}
