package services

import "github.com/spotseeker/apiserver/types"

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	Name                 string `json:"name" validate:"required,max=255"`
	Email                string `json:"email" validate:"required,email,max=255"`
	Password             string `json:"password" validate:"required,min=8,pwbytes,eqfield=PasswordConfirmation"`
	PasswordConfirmation string `json:"password_confirmation"`
	PhoneNo              string `json:"phone_no" validate:"required,number,len=10"`
	VerificationMethod   string `json:"verification_method" validate:"required"`
	Role                 string `json:"role" validate:"omitempty,max=50"`
}

// RegisterOptions carries operator policy into Register.
type RegisterOptions struct {
	// AllowClientSuppliedRole honours RegisterRequest.Role. When false the role is always User.
	AllowClientSuppliedRole bool
}

type SocialLoginRequest struct {
	Provider string `json:"provider" validate:"required"`
	Token    string `json:"token" validate:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Token                string `json:"token" validate:"required"`
	Email                string `json:"email" validate:"required,email"`
	Password             string `json:"password" validate:"required,min=8,pwbytes,eqfield=PasswordConfirmation"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// AuthResult is returned by consumer credential login.
type AuthResult struct {
	types.Account
	Role     string `json:"role"`
	Token    string `json:"token"`
	Verified bool   `json:"verified"`
}

// RegisterResult is the freshly created account with its session token.
type RegisterResult struct {
	types.Account
	Role  string   `json:"role"`
	Roles []string `json:"roles"`
	Token string   `json:"token"`
}

// SocialAuthResult is returned by consumer social login.
type SocialAuthResult struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	PhoneNo         string `json:"phone_no"`
	Role            string `json:"role"`
	Token           string `json:"token"`
	ProfilePhotoURL string `json:"profile_photo_url"`
	Verified        bool   `json:"verified"`
}

// ManagerAuthResult is returned by both manager login variants.
type ManagerAuthResult struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Token    string `json:"token"`
}

// Principal is the caller resolved from a bearer token.
type Principal struct {
	Account types.Account
	TokenID string
	Roles   []string
}

func (p Principal) HasRole(role string) bool {
	return HasRole(p.Roles, role)
}
