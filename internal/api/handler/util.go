package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayo6706/logistics-wallet/internal/api/middleware"
	"github.com/ayo6706/logistics-wallet/internal/api/problem"
	"github.com/ayo6706/logistics-wallet/internal/domain"
	"github.com/ayo6706/logistics-wallet/internal/gateway"
	"github.com/ayo6706/logistics-wallet/internal/repository"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// envelope is the success body of the financial endpoints.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// RespondSuccess wraps data in the success envelope.
func RespondSuccess(w http.ResponseWriter, status int, message string, data any) {
	RespondJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

type actor struct {
	UserID     string
	BusinessID string
	IsAdmin    bool
}

func requestActor(r *http.Request) (actor, error) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok || p.UserID == "" {
		return actor{}, errors.New("missing principal in auth context")
	}
	return actor{UserID: p.UserID, BusinessID: p.BusinessID, IsAdmin: p.IsAdmin()}, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func pageFromQuery(r *http.Request) (repository.Page, error) {
	var page repository.Page
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return page, errors.New("limit must be a positive integer")
		}
		page.Limit = int32(parsed)
	}
	if v := strings.TrimSpace(r.URL.Query().Get("offset")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			return page, errors.New("offset must be a non-negative integer")
		}
		page.Offset = int32(parsed)
	}
	return page.Normalize(), nil
}

// respondServiceError maps domain and partner errors onto problem responses. Unknown
// errors are logged and reported without detail.
func respondServiceError(w http.ResponseWriter, r *http.Request, scope string, err error) {
	var partnerErr *gateway.PartnerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		RespondError(w, r, http.StatusBadRequest, scope+"/invalid-request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		RespondError(w, r, http.StatusNotFound, scope+"/not-found", err.Error())
	case errors.Is(err, domain.ErrInsufficientFunds):
		RespondError(w, r, http.StatusBadRequest, scope+"/insufficient-funds", "insufficient funds")
	case errors.Is(err, domain.ErrConflict):
		RespondError(w, r, http.StatusConflict, scope+"/conflict", "request conflicts with a concurrent update; retry")
	case errors.As(err, &partnerErr):
		RespondError(w, r, http.StatusBadGateway, scope+"/partner-error", partnerErr.Message)
	case errors.Is(err, gateway.ErrOutcomeUnknown):
		RespondError(w, r, http.StatusGatewayTimeout, scope+"/partner-timeout", "banking partner did not answer in time")
	default:
		if status, pType, msg, ok := mapDBError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error(scope+" request failed", zap.Error(err), zap.String("path", r.URL.Path))
		RespondError(w, r, http.StatusInternalServerError, scope+"/internal-error", "unexpected error")
	}
}

func mapDBError(err error) (status int, problemType, message string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return 0, "", "", false
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		return http.StatusConflict, "db/unique-violation", "resource already exists", true
	case "23503": // foreign_key_violation
		return http.StatusBadRequest, "db/foreign-key-violation", "invalid reference", true
	case "23514": // check_violation
		return http.StatusBadRequest, "db/check-violation", "request violates data constraints", true
	case "23502": // not_null_violation
		return http.StatusBadRequest, "db/not-null-violation", "missing required field", true
	default:
		return 0, "", "", false
	}
}
