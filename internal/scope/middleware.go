package scope

import (
	"net/http"
	"strconv"
)

// HeaderAgencyID is set by the authenticating edge (session/API gateway is
// out of scope here); the engine only trusts that it is present and non-zero.
const HeaderAgencyID = "X-Agency-ID"

// Middleware extracts the agency ID header and injects a Scope into the
// request context. Requests without a usable scope pass through unscoped and
// are rejected later by RequireAgency or by the services themselves.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v := r.Header.Get(HeaderAgencyID); v != "" {
			if id, err := strconv.ParseUint(v, 10, 32); err == nil && id > 0 {
				r = r.WithContext(WithScope(r.Context(), Scope{AgencyID: uint(id)}))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAgency rejects requests whose context has no valid scope.
func RequireAgency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"missing_agency"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
