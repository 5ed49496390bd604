package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/ewaste-marketplace/internal/model"
	"github.com/iliyamo/ewaste-marketplace/internal/workflow"
)

// ProfileHandler serves the caller's own profile and the public contact
// form.
type ProfileHandler struct{ base }

func NewProfileHandler(wf *workflow.Coordinator, log *zap.Logger) *ProfileHandler {
	return &ProfileHandler{newBase(wf, log)}
}

func (h *ProfileHandler) Get(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	p, err := h.WF.GetProfile(ctx, session(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// Update applies the editable fields present in the body.  Email and role
// are ignored if sent.
func (h *ProfileHandler) Update(c echo.Context) error {
	var req model.ProfileUpdate
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	p, err := h.WF.UpdateProfile(ctx, session(c), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

type contactReq struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// Contact stores a message from the public contact form.
func (h *ProfileHandler) Contact(c echo.Context) error {
	var req contactReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	msg, err := h.WF.SubmitContactMessage(ctx, workflow.ContactInput{
		Name: req.Name, Email: req.Email, Phone: req.Phone, Message: req.Message,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": msg.ID, "status": msg.Status})
}
