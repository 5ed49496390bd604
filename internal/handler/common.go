package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/ewaste-marketplace/internal/identity"
	"github.com/iliyamo/ewaste-marketplace/internal/middleware"
	"github.com/iliyamo/ewaste-marketplace/internal/workflow"
)

const requestTimeout = 5 * time.Second

// base carries what every workflow handler needs.
type base struct {
	WF  *workflow.Coordinator
	Log *zap.Logger
}

func newBase(wf *workflow.Coordinator, log *zap.Logger) base {
	if log == nil {
		log = zap.NewNop()
	}
	return base{WF: wf, Log: log}
}

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// session builds the explicit caller identity from the profile that
// middleware.LoadProfile resolved.
func session(c echo.Context) workflow.Session {
	p, ok := middleware.CurrentProfile(c)
	if !ok {
		return workflow.Session{}
	}
	return workflow.Session{ProfileID: p.ID, Role: p.Role}
}

func parseID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, errBadParam(name, "must be a positive integer")
	}
	return id, nil
}

func errBadParam(field, msg string) error {
	return &workflow.ValidationError{Field: field, Msg: msg}
}

// fail writes err as {"error": ...} with the status its kind maps to.
// Unexpected errors are logged and hidden behind a generic message.
func (b base) fail(c echo.Context, err error) error {
	return respondError(c, b.Log, err)
}

func respondError(c echo.Context, log *zap.Logger, err error) error {
	var ve *workflow.ValidationError
	switch {
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": ve.Error()})
	case errors.Is(err, identity.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, identity.ErrInvalidCredentials), errors.Is(err, identity.ErrInvalidRefresh):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
	case errors.Is(err, workflow.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, workflow.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, identity.ErrEmailExists):
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
	case errors.Is(err, workflow.ErrOutOfStock):
		return c.JSON(http.StatusConflict, echo.Map{"error": "item is out of stock"})
	case errors.Is(err, workflow.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, workflow.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "conflict: the record changed, reload and retry"})
	}
	log.Error("request failed",
		zap.String("method", c.Request().Method),
		zap.String("path", c.Path()),
		zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
