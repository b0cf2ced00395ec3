package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/homespot/identity-service/internal/core/domain"
	"github.com/homespot/identity-service/internal/core/ports"
)

type AuthHandler struct {
	authService ports.AuthService
}

func NewAuthHandler(authService ports.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type logoutRequest struct {
	Token string `json:"token"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Login authenticates credentials and returns a bearer session token.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  ports.LoginResult
// @Failure      401   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      423   {object}  map[string]string
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.authService.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Logout revokes the active session matching the presented token. The token
// is read from the Authorization header, falling back to the request body.
//
// @Summary      Logout
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      logoutRequest  false  "Session token (alternative to Authorization header)"
// @Success      200   {object}  messageResponse
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	token := bearerToken(c)
	if token == "" {
		var req logoutRequest
		if err := c.Bind(&req); err == nil {
			token = req.Token
		}
	}

	if err := h.authService.Logout(c.Request().Context(), token); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, messageResponse{Message: "session terminated"})
}

// CurrentSession returns the caller's active session as resolved by the Auth
// middleware.
//
// @Summary      Inspect the current session
// @Tags         auth
// @Produce      json
// @Success      200  {object}  domain.ActiveSession
// @Failure      401  {object}  map[string]string
// @Security     BearerAuth
// @Router       /auth/sessions [get]
func (h *AuthHandler) CurrentSession(c echo.Context) error {
	if _, _, err := ctxClaims(c); err != nil {
		return err
	}
	session, ok := c.Get("session").(*domain.ActiveSession)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing session context")
	}
	return c.JSON(http.StatusOK, session)
}

// bearerToken extracts the raw token from an "Authorization: Bearer x" header.
func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
