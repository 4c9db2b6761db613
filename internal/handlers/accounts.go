package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/spotseeker/apiserver/internal/services"
	"github.com/spotseeker/apiserver/types"
	"go.uber.org/zap"
)

const (
	formFieldPhoto     = "photo"
	maxMultipartMemory = 1 << 20
)

// AccountService is the subset of services.AccountService the HTTP layer drives.
type AccountService interface {
	Profile(ctx context.Context, accountID int64) (services.Profile, error)
	UpdateProfilePhoto(ctx context.Context, accountID int64, upload services.PhotoUpload) (types.Account, error)
	VerifyAdminPassword(ctx context.Context, accountID int64, password string) error
	SetStatus(ctx context.Context, accountID int64, status string) (types.Account, error)
}

// AccountHandler serves profile and administration endpoints.
type AccountHandler struct {
	accounts AccountService
	logger   *zap.Logger
}

func NewAccountHandler(accounts AccountService, logger *zap.Logger) *AccountHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountHandler{accounts: accounts, logger: logger}
}

// UserRouter registers self-service routes. Every route requires authentication.
func UserRouter(r chi.Router, h *AccountHandler, auth Authenticator) {
	r.Use(RequireAuth(auth, h.logger))
	r.Put("/me/photo", h.UpdatePhoto)
}

// AdminRouter registers administrator routes. Every route requires the Admin role.
func AdminRouter(r chi.Router, h *AccountHandler, auth Authenticator) {
	r.Use(RequireAuth(auth, h.logger), RequireRole(types.RoleAdmin))
	r.Post("/verify-password", h.VerifyPassword)
	r.Route("/users/{accountID}", func(r chi.Router) {
		r.Put("/suspend", h.setStatus(types.StatusSuspended, "User suspended successfully"))
		r.Put("/activate", h.setStatus(types.StatusActive, "User activated successfully"))
	})
}

func (h *AccountHandler) UpdatePhoto(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, services.MsgUnauthorized, nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, services.MaxPhotoBytes+maxMultipartMemory)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusUnprocessableEntity, services.MsgValidationFailed, map[string][]string{
			formFieldPhoto: {"The photo field is required."},
		})
		return
	}

	file, header, err := r.FormFile(formFieldPhoto)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, services.MsgValidationFailed, map[string][]string{
			formFieldPhoto: {"The photo field is required."},
		})
		return
	}
	defer file.Close()

	account, err := h.accounts.UpdateProfilePhoto(r.Context(), principal.Account.ID, services.PhotoUpload{
		Body:        file,
		Size:        header.Size,
		ContentType: header.Header.Get("Content-Type"),
	})
	if err != nil {
		if errors.Is(err, services.ErrStorageDisabled) {
			writeError(w, http.StatusServiceUnavailable, "Profile photo uploads are not available.", nil)
			return
		}
		writeFailure(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Profile photo updated successfully", account)
}

type verifyPasswordRequest struct {
	Password string `json:"password"`
}

func (h *AccountHandler) VerifyPassword(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())

	var req verifyPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, services.MsgValidationFailed, map[string][]string{
			"password": {"The password field is required."},
		})
		return
	}

	if err := h.accounts.VerifyAdminPassword(r.Context(), principal.Account.ID, req.Password); err != nil {
		writeFailure(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Password verified successfully", nil)
}

func (h *AccountHandler) setStatus(status, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
		if err != nil || accountID < 1 {
			writeError(w, http.StatusBadRequest, "invalid account id", nil)
			return
		}

		account, err := h.accounts.SetStatus(r.Context(), accountID, status)
		if err != nil {
			writeFailure(w, r, h.logger, err)
			return
		}
		writeSuccess(w, http.StatusOK, message, account)
	}
}
