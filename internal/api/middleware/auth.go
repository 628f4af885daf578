package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/iac-studio/envforge/pkg/logger"
)

type subjectKeyType string

const SubjectKey subjectKeyType = "subject"

// TokenParser returns the subject of a valid bearer token.
type TokenParser interface {
	Parse(token string) (string, error)
}

// Auth rejects requests without a valid bearer token and stores the token
// subject in the request context.
func Auth(tokens TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ah := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(ah), "bearer ") {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}
			sub, err := tokens.Parse(strings.TrimSpace(ah[len("Bearer "):]))
			if err != nil {
				logger.L().Debug("rejected token", zap.String("id", GetRequestID(r.Context())), zap.Error(err))
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid bearer token")
				return
			}
			ctx := context.WithValue(r.Context(), SubjectKey, sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetSubject(ctx context.Context) string {
	if v := ctx.Value(SubjectKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
