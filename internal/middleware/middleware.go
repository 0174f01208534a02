// Package middleware provides the HTTP middleware chain: request IDs,
// request-scoped logging, metrics, and panic recovery.
package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/madronelabs/formpay/internal/domain"
)

// contextKey is a private type for context values set by this package.
type contextKey string

// Recover converts handler panics into 500 responses instead of killing the
// connection.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger := GetLogger(r.Context())
				logger.Error("handler panicked",
					"panic", rec, "method", r.Method, "path", r.URL.Path)
				respondWithError(w, r, domain.Internal(nil, "", "internal error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// respondWithError writes a middleware-level error response. It mirrors
// handler.ErrorResponse but stays self-contained so handler can import this
// package for GetLogger without a cycle.
func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.ErrorCode(err)
	message := domain.ErrorMessage(err)
	status := errorCodeToHTTPStatus(code)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func errorCodeToHTTPStatus(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest
	case domain.EUNAUTHORIZED:
		return http.StatusUnauthorized
	case domain.EFORBIDDEN:
		return http.StatusForbidden
	case domain.ENOTFOUND:
		return http.StatusNotFound
	case domain.ECONFLICT:
		return http.StatusConflict
	case domain.ERATELIMIT:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
