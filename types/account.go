package types

import "time"

// Account statuses.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// Role names present in the role catalog.
const (
	RoleAdmin       = "Admin"
	RoleManager     = "Manager"
	RoleUser        = "User"
	RoleCoordinator = "Coordinator"
)

// ProviderCredentials marks accounts created with an email and password.
const ProviderCredentials = "credentials"

// Account represents a person able to authenticate.
// It contains identity, contact, verification and status metadata.
type Account struct {
	// ID is the unique identifier of the account.
	ID int64 `json:"id" db:"id"`

	// Name is the full display name as supplied at registration or by a provider.
	Name string `json:"name" db:"name"`

	// FirstName is the part of Name before the first space.
	FirstName string `json:"first_name" db:"first_name"`

	// LastName is the remainder of Name after the first space.
	LastName string `json:"last_name" db:"last_name"`

	// Email is the unique, lower-cased email address.
	Email string `json:"email" db:"email"`

	// PhoneNo is the unique mobile number. Empty for accounts created by social login.
	PhoneNo string `json:"phone_no" db:"phone_no"`

	// PasswordHash stores the bcrypt hash of the password.
	// Empty for social-only accounts and never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// Status is either "active" or "suspended".
	Status string `json:"status" db:"status"`

	// VerificationMethod is the channel used to deliver the mobile verification code.
	VerificationMethod string `json:"verification_method" db:"verification_method"`

	// MobileVerifiedAt is set once the mobile number has been confirmed.
	MobileVerifiedAt *time.Time `json:"mobile_verified_at" db:"mobile_verified_at"`

	// EmailVerifiedAt is set for accounts whose email was confirmed by a provider.
	EmailVerifiedAt *time.Time `json:"email_verified_at" db:"email_verified_at"`

	// ProfilePhotoPath references the profile photo, either a provider URL or a storage key.
	ProfilePhotoPath string `json:"profile_photo_path" db:"profile_photo_path"`

	// RememberToken is the long-lived token rotated on every password reset.
	RememberToken string `json:"-" db:"remember_token"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Suspended reports whether the account is barred from authenticating.
func (a Account) Suspended() bool {
	return a.Status == StatusSuspended
}

// Verified reports whether the mobile number has been confirmed.
func (a Account) Verified() bool {
	return a.MobileVerifiedAt != nil
}

// HasPassword reports whether credential login is possible at all.
func (a Account) HasPassword() bool {
	return a.PasswordHash != ""
}

// Role is an entry of the role catalog.
type Role struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// LinkedProvider associates an account with a third-party identity source.
// There is at most one row per (account, provider).
type LinkedProvider struct {
	ID         int64     `json:"id" db:"id"`
	AccountID  int64     `json:"account_id" db:"account_id"`
	Provider   string    `json:"provider" db:"provider"`
	ProviderID string    `json:"provider_id" db:"provider_id"`
	Avatar     string    `json:"avatar" db:"avatar"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// SessionToken is the persisted half of a bearer token.
// The bearer is only honoured while this row exists.
type SessionToken struct {
	// ID is the token's jti claim.
	ID        string    `json:"id" db:"id"`
	AccountID int64     `json:"account_id" db:"account_id"`
	Name      string    `json:"name" db:"name"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
