package ports

import "context"

// RegisterInput is the payload of the sign-up workflow.
type RegisterInput struct {
	Username    string
	Email       string
	PhoneNumber string
	Password    string
	Role        string
}

// AccountService runs the multi-step registration, email-confirmation and
// password-reset workflows. Purpose tokens cross the boundary URL-safe
// base64 encoded.
type AccountService interface {
	// Register returns the encoded email-confirmation token; the caller embeds
	// it in a link and delivers it.
	Register(ctx context.Context, in RegisterInput) (string, error)
	// ConfirmEmail returns the configured post-confirmation redirect target.
	ConfirmEmail(ctx context.Context, encodedToken, email, role string) (string, error)
	// ForgotPassword returns the encoded reset token for the (email, role) pair.
	ForgotPassword(ctx context.Context, email, role string) (string, error)
	ResetPassword(ctx context.Context, encodedToken, email, role, newPassword string) error
}
