package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/spotseeker/apiserver/internal/services"
	"go.uber.org/zap"
)

// Authenticator resolves bearer tokens into principals.
type Authenticator interface {
	Authenticate(ctx context.Context, bearer string) (services.Principal, error)
}

// IdentityService is the subset of services.IdentityService the HTTP layer drives.
type IdentityService interface {
	Authenticator
	Login(ctx context.Context, req services.LoginRequest) (services.AuthResult, error)
	ManagerLogin(ctx context.Context, req services.LoginRequest) (services.ManagerAuthResult, error)
	Register(ctx context.Context, req services.RegisterRequest, opts services.RegisterOptions) (services.RegisterResult, error)
	SocialLogin(ctx context.Context, req services.SocialLoginRequest) (services.SocialAuthResult, error)
	ManagerSocialLogin(ctx context.Context, req services.SocialLoginRequest) (services.ManagerAuthResult, error)
	Logout(ctx context.Context, bearer string) error
	RequestPasswordReset(ctx context.Context, req services.ForgotPasswordRequest) error
	ResetPassword(ctx context.Context, req services.ResetPasswordRequest) error
}

// AuthHandler serves the consumer and manager authentication endpoints.
type AuthHandler struct {
	identity IdentityService
	accounts AccountService
	register services.RegisterOptions
	recorder OutcomeRecorder
	logger   *zap.Logger
}

func NewAuthHandler(
	identity IdentityService,
	accounts AccountService,
	register services.RegisterOptions,
	recorder OutcomeRecorder,
	logger *zap.Logger,
) *AuthHandler {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		identity: identity,
		accounts: accounts,
		register: register,
		recorder: recorder,
		logger:   logger,
	}
}

// AuthRouter registers the consumer routes on r.
func AuthRouter(r chi.Router, h *AuthHandler) {
	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)
	r.Post("/forgot-password", h.ForgotPassword)
	r.Post("/reset-password", h.ResetPassword)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/social-login", h.SocialLogin)
		r.With(RequireAuth(h.identity, h.logger)).Get("/me", h.Me)
	})
}

// ManagerRouter registers the manager-console routes on r.
func ManagerRouter(r chi.Router, h *AuthHandler) {
	r.Post("/login", h.ManagerLogin)
	r.Post("/social-login", h.ManagerSocialLogin)
	r.Post("/logout", h.Logout)
}

// RequireAuth resolves the bearer token and stores the principal in the request context.
func RequireAuth(auth Authenticator, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, services.MsgUnauthorized, nil)
				return
			}

			principal, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				writeFailure(w, r, logger, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
		})
	}
}

// RequireRole rejects principals lacking role. It must run after RequireAuth.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := principalFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, services.MsgUnauthorized, nil)
				return
			}
			if !principal.HasRole(role) {
				writeError(w, http.StatusForbidden, services.MsgNotAuthorized, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req services.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.identity.Login(r.Context(), req)
	h.recorder.AuthOutcome("login", outcomeOf(err))
	if err != nil {
		writeFailure(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Login successful", res)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.identity.Register(r.Context(), req, h.register)
	h.recorder.AuthOutcome("register", outcomeOf(err))
	if err != nil {
		writeFailure(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Registration successful! A verification code has been sent to your mobile number.", res)
}

func (h *AuthHandler) SocialLogin(w http.ResponseWriter, r *http.Request) {
	var req services.SocialLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.identity.SocialLogin(r.Context(), req)
	h.recorder.AuthOutcome("social_login", outcomeOf(err))
	if err != nil {
		writeFailure(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Authenticated successfully", res)
}

func (h *AuthHandler) ManagerLogin(w http.ResponseWriter, r *http.Request) {
	var req services.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.identity.ManagerLogin(r.Context(), req)
	h.recorder.AuthOutcome("manager_login", outcomeOf(err))
	if err != nil {
		writeFailure(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "authenticated successfully", res)
}

func (h *AuthHandler) ManagerSocialLogin(w http.ResponseWriter, r *http.Request) {
	var req services.SocialLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.identity.ManagerSocialLogin(r.Context(), req)
	h.recorder.AuthOutcome("manager_social_login", outcomeOf(err))
	if err != nil {
		writeFailure(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Authenticated successfully", res)
}

// Logout revokes every token of the bearer's account. The bearer is resolved
// by the operation itself so an unknown token reports no active session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		h.recorder.AuthOutcome("logout", services.NoActiveSession.String())
		writeError(w, services.NoActiveSession.Status(), services.MsgNoActiveSession, nil)
		return
	}

	err = h.identity.Logout(r.Context(), token)
	h.recorder.AuthOutcome("logout", outcomeOf(err))
	if err != nil {
		writeFailure(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "logged out successfully", nil)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, services.MsgUnauthorized, nil)
		return
	}

	profile, err := h.accounts.Profile(r.Context(), principal.Account.ID)
	if err != nil {
		writeFailure(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Profile retrieved successfully", profile)
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req services.ForgotPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	err := h.identity.RequestPasswordReset(r.Context(), req)
	h.recorder.AuthOutcome("forgot_password", outcomeOf(err))
	if err != nil {
		writeFailure(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Reset password email sent successfully.", nil)
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req services.ResetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	err := h.identity.ResetPassword(r.Context(), req)
	h.recorder.AuthOutcome("reset_password", outcomeOf(err))
	if err != nil {
		writeFailure(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "password reset successful", nil)
}
