package middleware

import (
	"net/http"
	"strings"

	"github.com/josh-kwaku/royalty-settlement/internal/auth"
	"github.com/josh-kwaku/royalty-settlement/internal/handler"
	"github.com/josh-kwaku/royalty-settlement/internal/logging"
)

func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				handler.RespondAppError(w, handler.ErrMissingToken, nil)
				return
			}

			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || token == "" {
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}

			claims, err := auth.ValidateToken(token, secret)
			if err != nil {
				logging.FromContext(r.Context()).Debug("token rejected", "error", err)
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}

			ctx := auth.ContextWithCollaboratorID(r.Context(), claims.CollaboratorID)
			ctx = logging.With(ctx, "collaborator_id", claims.CollaboratorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
