package domain

import "time"

const (
	RoleOwner    = "Owner"
	RoleCustomer = "Customer"
)

// Account models a single identity capable of authenticating. The same email
// may back several accounts, one per role, each with its own password; the
// username is globally unique.
type Account struct {
	ID                string     `json:"id"`
	Username          string     `json:"username"`
	Email             string     `json:"email"`
	PasswordHash      string     `json:"-"`
	EmailConfirmed    bool       `json:"email_confirmed"`
	FailedAccessCount int        `json:"-"`
	LockoutEndUTC     *time.Time `json:"-"`
	SecurityStamp     string     `json:"-"`
	PhoneNumber       string     `json:"phone_number,omitempty"`
	Roles             []string   `json:"roles"`

	Profile Profile `json:"profile"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Profile carries the descriptive fields owned by the profile-update
// collaborator. The identity core persists them but never interprets them.
type Profile struct {
	FirstName   string     `json:"first_name,omitempty"`
	LastName    string     `json:"last_name,omitempty"`
	Address     string     `json:"address,omitempty"`
	Gender      string     `json:"gender,omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Avatar      []byte     `json:"-"`
}

// HasRole reports whether the account has been assigned the given role.
func (a *Account) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ActiveSession is one registry row per issued bearer token. At most one row
// exists per (UserID, Role) pair; a fresh login supersedes any prior row.
type ActiveSession struct {
	UserID       string    `json:"user_id"`
	Role         string    `json:"role"`
	Token        string    `json:"token"`
	ExpiresAtUTC time.Time `json:"expires_at_utc"`
}

// TokenPurpose binds a purpose token to exactly one workflow. Verification
// rejects tokens issued for a different purpose or account.
type TokenPurpose string

const (
	PurposeEmailConfirmation TokenPurpose = "email_confirmation"
	PurposePasswordReset     TokenPurpose = "password_reset"
)
