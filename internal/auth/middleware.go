package auth

import (
	"net/http"
)

// Middleware authenticates requests with a Verifier.
type Middleware struct {
	Verifier Verifier
	Policy   Policy
}

// NewMiddleware constructs an auth middleware. A nil verifier disables auth.
func NewMiddleware(verifier Verifier, policy Policy) *Middleware {
	if verifier == nil {
		verifier = Disabled{}
	}
	return &Middleware{Verifier: verifier, Policy: policy}
}

// Wrap applies authentication to the handler.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}
		identity, err := m.Verifier.Verify(r)
		if err != nil {
			if _, basic := m.Verifier.(BasicVerifier); basic {
				w.Header().Set("WWW-Authenticate", `Basic realm="thermo"`)
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}
