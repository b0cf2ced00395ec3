package handler

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/homespot/identity-service/internal/core/ports"
)

// NotificationQueue is the enqueue side of the outbound notification
// dispatcher. Delivery itself happens on the dispatcher's workers.
type NotificationQueue interface {
	Enqueue(n ports.Notification)
}

type AccountHandler struct {
	accountService ports.AccountService
	notifications  NotificationQueue
	publicBaseURL  string
}

func NewAccountHandler(accountService ports.AccountService, notifications NotificationQueue, publicBaseURL string) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		notifications:  notifications,
		publicBaseURL:  publicBaseURL,
	}
}

type registerRequest struct {
	Username    string `json:"username" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password" validate:"required,min=8"`
	Role        string `json:"role" validate:"required,oneof=Owner Customer"`
}

type registerResponse struct {
	ConfirmationToken string `json:"confirmation_token"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required,oneof=Owner Customer"`
}

type forgotPasswordResponse struct {
	ResetToken string `json:"reset_token"`
}

type resetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Role        string `json:"role" validate:"required,oneof=Owner Customer"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// Register creates a new account and dispatches the confirmation link.
//
// @Summary      Register a new account
// @Tags         account
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "Registration details"
// @Success      201   {object}  registerResponse
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /auth/register [post]
func (h *AccountHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	token, err := h.accountService.Register(c.Request().Context(), ports.RegisterInput{
		Username:    req.Username,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Password:    req.Password,
		Role:        req.Role,
	})
	if err != nil {
		return err
	}

	h.notifications.Enqueue(ports.Notification{
		Recipient: req.Email,
		Subject:   "Confirm your email address",
		Link:      h.workflowLink("/auth/confirm-email", token, req.Email, req.Role),
	})

	return c.JSON(http.StatusCreated, registerResponse{ConfirmationToken: token})
}

// ConfirmEmail verifies the confirmation link and redirects to the configured
// post-confirmation target.
//
// @Summary      Confirm an email address
// @Tags         account
// @Param        token  query  string  true  "Encoded confirmation token"
// @Param        email  query  string  true  "Account email"
// @Param        role   query  string  true  "Account role"
// @Success      302
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /auth/confirm-email [get]
func (h *AccountHandler) ConfirmEmail(c echo.Context) error {
	token := c.QueryParam("token")
	email := c.QueryParam("email")
	role := c.QueryParam("role")
	if token == "" || email == "" || role == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token, email and role are required")
	}

	target, err := h.accountService.ConfirmEmail(c.Request().Context(), token, email, role)
	if err != nil {
		return err
	}

	return c.Redirect(http.StatusFound, target)
}

// ForgotPassword issues a reset token and dispatches the reset link.
//
// @Summary      Request a password reset
// @Tags         account
// @Accept       json
// @Produce      json
// @Param        body  body      forgotPasswordRequest  true  "Account email and role"
// @Success      200   {object}  forgotPasswordResponse
// @Failure      403   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /auth/forgot-password [post]
func (h *AccountHandler) ForgotPassword(c echo.Context) error {
	var req forgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	token, err := h.accountService.ForgotPassword(c.Request().Context(), req.Email, req.Role)
	if err != nil {
		return err
	}

	h.notifications.Enqueue(ports.Notification{
		Recipient: req.Email,
		Subject:   "Reset your password",
		Link:      h.workflowLink("/auth/reset-password", token, req.Email, req.Role),
	})

	return c.JSON(http.StatusOK, forgotPasswordResponse{ResetToken: token})
}

// ResetPassword verifies the reset token and stores the new password.
//
// @Summary      Reset a password
// @Tags         account
// @Accept       json
// @Produce      json
// @Param        body  body      resetPasswordRequest  true  "Reset token and new password"
// @Success      200   {object}  messageResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Router       /auth/reset-password [post]
func (h *AccountHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.accountService.ResetPassword(c.Request().Context(), req.Token, req.Email, req.Role, req.NewPassword); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, messageResponse{Message: "password updated"})
}

func (h *AccountHandler) workflowLink(path, token, email, role string) string {
	return fmt.Sprintf("%s%s?token=%s&email=%s&role=%s",
		h.publicBaseURL, path, url.QueryEscape(token), url.QueryEscape(email), url.QueryEscape(role))
}
