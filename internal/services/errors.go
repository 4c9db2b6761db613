package services

import (
	"errors"
	"net/http"
)

// FailureKind classifies the expected ways an identity operation can fail.
type FailureKind int

const (
	ValidationFailed FailureKind = iota + 1
	InvalidCredentials
	SocialLoginRequired
	AccountSuspended
	InsufficientRole
	UserNotFound
	UnsupportedProvider
	ProviderError
	NoActiveSession
	ResetFailed
	Unauthorized
	Forbidden
	NotFound
)

var failureKindNames = map[FailureKind]string{
	ValidationFailed:    "validation_failed",
	InvalidCredentials:  "invalid_credentials",
	SocialLoginRequired: "social_login_required",
	AccountSuspended:    "account_suspended",
	InsufficientRole:    "insufficient_role",
	UserNotFound:        "user_not_found",
	UnsupportedProvider: "unsupported_provider",
	ProviderError:       "provider_error",
	NoActiveSession:     "no_active_session",
	ResetFailed:         "reset_failed",
	Unauthorized:        "unauthorized",
	Forbidden:           "forbidden",
	NotFound:            "not_found",
}

func (k FailureKind) String() string {
	if name, ok := failureKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Status maps the kind onto the HTTP status it is reported with.
func (k FailureKind) Status() int {
	switch k {
	case ValidationFailed:
		return http.StatusUnprocessableEntity
	case InsufficientRole, Forbidden:
		return http.StatusForbidden
	case UnsupportedProvider, ResetFailed:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	default:
		return http.StatusUnauthorized
	}
}

// User-facing messages.
const (
	MsgValidationFailed    = "validation failed"
	MsgInvalidCredentials  = "These credentials do not match our records."
	MsgSocialLoginRequired = "This account is associated with a social login. Please use the social login method."
	MsgAccountSuspended    = "Your account is suspended, please contact SpotSeeker.lk."
	MsgManagerCredentials  = "Email & Password does not match with our record."
	MsgUnsupportedProvider = "The selected provider is not supported."
	MsgProviderError       = "Unable to authenticate with the provider."
	MsgNoActiveSession     = "No active session found."
	MsgResetFailed         = "password reset failed"
	MsgUnauthorized        = "Unauthenticated."
	MsgNotAuthorized       = "You are not authorized to perform this action"
	MsgAccountNotFound     = "Account not found."
)

// ErrDefaultRoleMissing means the role catalog has no User entry to fall back on.
var ErrDefaultRoleMissing = errors.New("default role User is missing from the role catalog")

// Failure is a recognized, reportable operation failure.
// Errors that are not a *Failure are infrastructure faults.
type Failure struct {
	Kind    FailureKind
	Message string
	Fields  map[string][]string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return f.Kind.String() + ": " + f.Message + ": " + f.Err.Error()
	}
	return f.Kind.String() + ": " + f.Message
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func (f *Failure) Status() int {
	return f.Kind.Status()
}

// AsFailure extracts a *Failure from err's chain.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// IsKind reports whether err carries a Failure of kind k.
func IsKind(err error, k FailureKind) bool {
	f, ok := AsFailure(err)
	return ok && f.Kind == k
}

func fail(kind FailureKind, message string) *Failure {
	return &Failure{Kind: kind, Message: message}
}

func failWith(kind FailureKind, message string, cause error) *Failure {
	return &Failure{Kind: kind, Message: message, Err: cause}
}

func validationFailure(fields map[string][]string) *Failure {
	return &Failure{Kind: ValidationFailed, Message: MsgValidationFailed, Fields: fields}
}
