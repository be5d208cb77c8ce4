package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"pairdb/pkg/config"
	"pairdb/pkg/logger"
	"pairdb/pkg/utils"
)

// Role represents the resolved caller role for a request.
type Role int

const (
	RoleUnauth Role = iota
	RoleFrontend
	RoleBackend
	RoleAdmin
)

// SecConfig mirrors the security-related configuration used to drive
// authentication, CORS and rate limiting behavior. Put here so limiter.go
// and gateway.go can reference the shared type.
type SecConfig struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
	IPWhitelist    []string
	BackendKeys    map[string]struct{}
	FrontendKeys   map[string]struct{}
	AdminKeys      map[string]struct{}
}

type ctxCallerKey struct{}

// RequireSignedCaller verifies HMAC signature headers and injects the
// verified caller id into the request context.
func RequireSignedCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Determine caller role set earlier by gateway middleware
		role := r.Header.Get("X-Role-Name")
		userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
		sig := strings.TrimSpace(r.Header.Get("X-User-Signature"))

		// Backend/admin callers: allow missing signature entirely, or accept
		// a header-provided caller without a signature. If a signature is
		// present we will verify it below.
		if role == "backend" || role == "admin" {
			if sig == "" {
				// No signature provided; handlers may accept a caller from
				// body or X-User-ID header as appropriate.
				next.ServeHTTP(w, r)
				return
			}
		}

		// If we reach here and there's no signature, the caller is not a
		// trusted backend/admin and we must require signature headers.
		if sig == "" || userID == "" {
			logger.Warn("missing_signature_headers", "path", r.URL.Path, "remote", r.RemoteAddr)
			utils.JSONError(w, http.StatusUnauthorized, "missing signature headers")
			return
		}

		keys := config.GetSigningKeys()
		if len(keys) == 0 {
			logger.Error("no_signing_keys_configured")
			utils.JSONError(w, http.StatusInternalServerError, "server misconfigured: no signing secrets available")
			return
		}

		// Try all configured signing keys.
		ok := false
		for k := range keys {
			mac := hmac.New(sha256.New, []byte(k))
			mac.Write([]byte(userID))
			expected := hex.EncodeToString(mac.Sum(nil))
			if hmac.Equal([]byte(expected), []byte(sig)) {
				ok = true
				break
			}
		}
		if !ok {
			logger.Warn("invalid_signature", "user", userID)
			utils.JSONError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
		logger.Debug("signature_verified", "user", userID)
		ctx := context.WithValue(r.Context(), ctxCallerKey{}, userID)
		// do not set headers; handlers should use CallerIDFromContext
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CallerIDFromContext returns the verified caller id or empty string.
func CallerIDFromContext(ctx context.Context) string {
	if v := ctx.Value(ctxCallerKey{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func validateCaller(c string) (bool, string) {
	if c == "" {
		return false, "caller required"
	}
	if len(c) > 128 {
		return false, "caller too long"
	}
	return true, ""
}

// ResolveCallerFromRequest is the single canonical resolver handlers call.
// It prefers a signature-verified caller (in context); a present signature
// is authoritative and any conflicting caller from header/body/query is a
// 403. Without a signature, backend/admin roles may supply a caller via
// body, X-User-ID header or query. Frontend callers require a signature.
func ResolveCallerFromRequest(r *http.Request, bodyCaller string) (string, int, string) {
	if id := CallerIDFromContext(r.Context()); id != "" {
		if q := strings.TrimSpace(r.URL.Query().Get("caller")); q != "" && q != id {
			logger.Warn("caller_mismatch_signature_query", "signature", id, "query", q, "path", r.URL.Path)
			return "", http.StatusForbidden, "caller mismatch between signature and query param"
		}
		if h := strings.TrimSpace(r.Header.Get("X-User-ID")); h != "" && h != id {
			logger.Warn("caller_mismatch_signature_header", "signature", id, "header", h, "path", r.URL.Path)
			return "", http.StatusForbidden, "caller mismatch between signature and header"
		}
		if bodyCaller != "" && bodyCaller != id {
			logger.Warn("caller_mismatch_signature_body", "signature", id, "body", bodyCaller, "path", r.URL.Path)
			return "", http.StatusForbidden, "caller mismatch between signature and body"
		}
		return id, 0, ""
	}

	role := r.Header.Get("X-Role-Name")
	if role == "backend" || role == "admin" {
		for _, c := range []string{bodyCaller, strings.TrimSpace(r.Header.Get("X-User-ID")), strings.TrimSpace(r.URL.Query().Get("caller"))} {
			if c == "" {
				continue
			}
			if ok, msg := validateCaller(c); !ok {
				logger.Warn("invalid_backend_caller", "user", c, "path", r.URL.Path)
				return "", http.StatusBadRequest, msg
			}
			return c, 0, ""
		}
		logger.Warn("backend_missing_caller", "remote", r.RemoteAddr, "path", r.URL.Path)
		return "", http.StatusBadRequest, "caller required for backend requests"
	}

	logger.Warn("missing_caller_signature", "role", role, "remote", r.RemoteAddr, "path", r.URL.Path)
	return "", http.StatusUnauthorized, "missing or invalid caller signature"
}
