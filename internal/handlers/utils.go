package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/spotseeker/apiserver/internal/services"
	"go.uber.org/zap"
)

const maxJSONBody = 1 << 20

type contextKey string

const contextPrincipalKey contextKey = "principal"

var (
	errMissingAuthorization = errors.New("missing authorization")
	errInvalidAuthorization = errors.New("invalid authorization")
)

// Response is the envelope of every API response.
type Response struct {
	Status  bool   `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
	Errors  any    `json:"errors"`
}

// OutcomeRecorder counts authentication outcomes per operation.
type OutcomeRecorder interface {
	AuthOutcome(operation, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) AuthOutcome(string, string) {}

func principalFromContext(ctx context.Context) (services.Principal, bool) {
	p, ok := ctx.Value(contextPrincipalKey).(services.Principal)
	return p, ok
}

func withPrincipal(ctx context.Context, p services.Principal) context.Context {
	return context.WithValue(ctx, contextPrincipalKey, p)
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, Response{
		Status:  true,
		Code:    status,
		Message: message,
		Data:    data,
		Errors:  []string{},
	})
}

func writeError(w http.ResponseWriter, status int, message string, errs any) {
	if errs == nil {
		errs = []string{}
	}
	writeJSON(w, status, Response{
		Status:  false,
		Code:    status,
		Message: message,
		Errors:  errs,
	})
}

// writeFailure renders err. Recognized failures keep their kind's status and
// message; anything else is logged and reported as a 500.
func writeFailure(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	if f, ok := services.AsFailure(err); ok {
		var errs any
		if len(f.Fields) > 0 {
			errs = f.Fields
		}
		writeError(w, f.Status(), f.Message, errs)
		return
	}

	logger.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal server error", nil)
}

// decodeJSON reads a JSON body into dst. Malformed bodies are reported as 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request", nil)
		return false
	}
	return true
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errMissingAuthorization
	}
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errInvalidAuthorization
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errInvalidAuthorization
	}
	return token, nil
}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	if f, ok := services.AsFailure(err); ok {
		return f.Kind.String()
	}
	return "error"
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}
