package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/iota-uz/lms-admin/pkg/composables"
	"github.com/iota-uz/lms-admin/pkg/httpapi"
)

// ProvideActor reads the importing user's id from header, as set by the
// fronting platform, and binds it to the request context. Requests without a
// valid id are rejected.
func ProvideActor(header string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(header))
			id, err := strconv.ParseInt(raw, 10, 64)
			if raw == "" || err != nil || id <= 0 {
				_ = httpapi.WriteError(w, http.StatusUnauthorized, "ACTOR_REQUIRED", "missing or invalid "+header+" header", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(composables.WithActor(r.Context(), id)))
		})
	}
}
