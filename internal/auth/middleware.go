package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/perculacms/aicore/internal/httputil"
)

var (
	errMissingKey = errors.New("missing API key. Send Authorization: Bearer <api-key>")
	errBadScheme  = errors.New("unsupported authorization scheme. Send Authorization: Bearer <api-key>")
)

// bearerToken extracts the key from an Authorization header. The scheme is
// matched case-insensitively.
func bearerToken(header string) (string, error) {
	if header == "" {
		return "", errMissingKey
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errBadScheme
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errMissingKey
	}
	return token, nil
}

// Middleware authenticates requests by API key and stores the caller's
// identity in the request context. Only key prefixes are ever logged.
func Middleware(store KeyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			token, err := bearerToken(r.Header.Get("Authorization"))
			if err != nil {
				httputil.WriteAuthError(w, reqID, err.Error())
				return
			}

			meta, err := store.Lookup(r.Context(), HashKey(token))
			switch {
			case err != nil:
				slog.Error("key lookup failed", "request_id", reqID, "key_prefix", KeyPrefix(token), "error", err)
				httputil.WriteInternalError(w, reqID, "Authentication is temporarily unavailable")
				return
			case meta == nil:
				slog.Warn("rejected unknown API key", "request_id", reqID, "key_prefix", KeyPrefix(token))
				httputil.WriteAuthError(w, reqID, "Invalid API key")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithAuth(r.Context(), infoFromMetadata(meta))))
		})
	}
}
