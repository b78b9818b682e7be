package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// authExempt reports whether a path never requires credentials. Probes and
// metric scrapes must keep working before any key is provisioned.
func authExempt(path string) bool {
	return path == "/health" || path == "/metrics"
}

// BearerAuth guards every non-exempt route with a static API key check.
// With no keys configured the middleware passes everything through, which
// keeps local setups friction-free.
func BearerAuth(keys []string) func(http.Handler) http.Handler {
	valid := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			valid = append(valid, []byte(k))
		}
	}

	return func(next http.Handler) http.Handler {
		if len(valid) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authExempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeError(w, http.StatusUnauthorized, codeUnauthorized,
					"missing or malformed bearer token")
				return
			}
			if !keyMatches(valid, token) {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid api key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the credential from the Authorization header. The
// scheme name is case-insensitive per RFC 7235.
func bearerToken(r *http.Request) (string, bool) {
	const scheme = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) <= len(scheme) || !strings.EqualFold(auth[:len(scheme)], scheme) {
		return "", false
	}
	return auth[len(scheme):], true
}

// keyMatches checks the token against every configured key in constant time.
func keyMatches(valid [][]byte, token string) bool {
	matched := false
	for _, k := range valid {
		if subtle.ConstantTimeCompare(k, []byte(token)) == 1 {
			matched = true
		}
	}
	return matched
}
