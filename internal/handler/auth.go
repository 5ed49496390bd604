package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/ewaste-marketplace/internal/identity"
	"github.com/iliyamo/ewaste-marketplace/internal/middleware"
	"github.com/iliyamo/ewaste-marketplace/internal/model"
)

// IdentityService is the part of identity.Service the auth endpoints use.
type IdentityService interface {
	SignUp(ctx context.Context, in identity.SignUpInput) (identity.Session, error)
	SignIn(ctx context.Context, email, password string) (identity.Session, error)
	Refresh(ctx context.Context, raw string) (identity.Session, error)
	SignOut(ctx context.Context, userID, raw string) error
	CreateUser(ctx context.Context, in identity.CreateUserInput) (model.Profile, error)
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	ID  IdentityService
	Log *zap.Logger
}

func NewAuthHandler(id IdentityService, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{ID: id, Log: log}
}

// ----- DTOs -----

type signupReq struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	FullName     string `json:"full_name"`
	Role         string `json:"role"` // customer | company
	Phone        string `json:"phone"`
	Address      string `json:"address"`
	CompanyName  string `json:"company_name"`
	IndustryType string `json:"industry_type"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type authResp struct {
	User    model.Profile `json:"user"`
	Access  tokenPart     `json:"access"`
	Refresh tokenPart     `json:"refresh"`
}

func toAuthResp(s identity.Session) authResp {
	return authResp{
		User:    s.Profile,
		Access:  tokenPart{Token: s.Access.Token, Expires: s.Access.Exp},
		Refresh: tokenPart{Token: s.Refresh.Raw, Expires: s.Refresh.Exp}, // raw back to client
	}
}

// Signup registers a customer or company and returns a token pair.
func (h *AuthHandler) Signup(c echo.Context) error {
	var req signupReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	sess, err := h.ID.SignUp(ctx, identity.SignUpInput{
		Email:        req.Email,
		Password:     req.Password,
		FullName:     req.FullName,
		Role:         model.Role(strings.ToLower(strings.TrimSpace(req.Role))),
		Phone:        req.Phone,
		Address:      req.Address,
		CompanyName:  req.CompanyName,
		IndustryType: req.IndustryType,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	h.Log.Info("signed up", zap.String("user_id", sess.Profile.ID), zap.String("role", string(sess.Profile.Role)))
	return c.JSON(http.StatusCreated, toAuthResp(sess))
}

// Login: verify and return new pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	sess, err := h.ID.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toAuthResp(sess))
}

// Refresh rotates the refresh token: the presented one is revoked.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	sess, err := h.ID.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toAuthResp(sess))
}

// Logout revokes the given refresh token, or every token of the caller
// when only an access token is presented.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req) // body is optional
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.ID.SignOut(ctx, middleware.CurrentUserID(c), req.RefreshToken); err != nil {
		return respondError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Session returns the authenticated principal and its profile.
func (h *AuthHandler) Session(c echo.Context) error {
	p, ok := middleware.CurrentProfile(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"user":    echo.Map{"id": p.ID, "email": p.Email},
		"profile": p,
	})
}

type createUserReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
	Role     string `json:"role"`
}

// CreateUser is the privileged user creation endpoint.  The account is
// created with its email confirmed; when the profile cannot be written the
// account is removed again and 500 is returned.
func (h *AuthHandler) CreateUser(c echo.Context) error {
	var req createUserReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" || strings.TrimSpace(req.FullName) == "" || strings.TrimSpace(req.Role) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Missing required fields"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	p, err := h.ID.CreateUser(ctx, identity.CreateUserInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Role:     model.Role(strings.ToLower(strings.TrimSpace(req.Role))),
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	h.Log.Info("user created", zap.String("user_id", p.ID), zap.String("role", string(p.Role)),
		zap.String("by", middleware.CurrentUserID(c)))
	return c.JSON(http.StatusOK, echo.Map{"success": true, "user": p})
}
