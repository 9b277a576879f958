package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

const apiKeyQueryParam = "api-key"

type ctxKey struct{}

// Client returns the name of the authenticated client, if any.
func Client(ctx context.Context) string {
	name, _ := ctx.Value(ctxKey{}).(string)
	return name
}

// Middleware rejects requests without a valid key. The key is taken from
// an "Authorization: Bearer" header or the api-key query parameter. In
// open mode all requests pass through.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.IsOpenMode() {
			next.ServeHTTP(w, r)
			return
		}

		key := r.URL.Query().Get(apiKeyQueryParam)
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			key = strings.TrimPrefix(h, "Bearer ")
		}
		if name, ok := s.VerifyKey(key); ok {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, name)))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("WWW-Authenticate", `Bearer realm="lms-announce"`)
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "invalid or missing api key"})
	})
}
