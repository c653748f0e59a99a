package api

import (
	"net/http"

	"github.com/omegalab/labtriage/server/internal/config"
)

// APIKey returns middleware enforcing API key authentication on the wrapped
// handler.
//
// Behaviour:
//   - If auth.Mode != "apikey" or the key resolves empty, all requests pass.
//   - Otherwise the configured header must carry exactly the expected key;
//     a missing or wrong key returns 401.
//
// Session handling for human operators is out of scope here. The reverse
// proxy in front of the manual-entry UI gates that path and forwards the key.
func APIKey(auth config.AuthConfig) func(http.Handler) http.Handler {
	header := auth.EffectiveHeader()
	key := auth.Key()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth.Mode != "apikey" || key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if r.Header.Get(header) != key {
				jsonErr(w, http.StatusUnauthorized, "invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
