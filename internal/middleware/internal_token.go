package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/josh-kwaku/royalty-settlement/internal/handler"
	"github.com/josh-kwaku/royalty-settlement/internal/logging"
)

const internalTokenHeader = "X-Internal-Token"

// InternalToken guards service-to-service routes such as revenue ingestion.
func InternalToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(internalTokenHeader)
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				logging.FromContext(r.Context()).Warn("internal token rejected", "path", r.URL.Path)
				handler.RespondAppError(w, handler.ErrInvalidInternalToken, nil)
				return
			}
			ctx := logging.With(r.Context(), "caller", "internal")
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
