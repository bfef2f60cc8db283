// Package authmw provides HTTP middleware for bearer token authentication.
// Each token identifies one dashboard persona.
package authmw

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"slices"
	"strings"
)

// Personas known to the dashboard.
const (
	PersonaFieldWorker  = "field-worker"
	PersonaTeamLead     = "team-lead"
	PersonaFinanceAdmin = "finance-admin"
	PersonaProcurement  = "procurement-officer"
	PersonaService      = "service"
)

var personas = []string{
	PersonaFieldWorker,
	PersonaTeamLead,
	PersonaFinanceAdmin,
	PersonaProcurement,
	PersonaService,
}

type personaKey struct{}

type credential struct {
	token   []byte
	persona string
}

// BearerTokens returns middleware that validates the Authorization header
// against tokens (token -> persona) and stores the matching persona in the
// request context. Every configured token is compared in constant time so
// the response time does not reveal which one matched.
func BearerTokens(tokens map[string]string) func(http.Handler) http.Handler {
	creds := make([]credential, 0, len(tokens))
	for tok, persona := range tokens {
		creds = append(creds, credential{token: []byte(tok), persona: persona})
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")

			if !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, `{"error":"missing or malformed authorization header"}`, http.StatusUnauthorized)
				return
			}

			got := []byte(auth[len("Bearer "):])

			persona := ""
			for _, c := range creds {
				if subtle.ConstantTimeCompare(got, c.token) == 1 && persona == "" {
					persona = c.persona
				}
			}
			if persona == "" {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPersona(r.Context(), persona)))
		})
	}
}

// WithPersona returns a context carrying persona.
func WithPersona(ctx context.Context, persona string) context.Context {
	return context.WithValue(ctx, personaKey{}, persona)
}

// PersonaFromContext returns the authenticated persona, or "" when the
// request was not authenticated.
func PersonaFromContext(ctx context.Context) string {
	p, _ := ctx.Value(personaKey{}).(string)
	return p
}

// ParseTokens parses a comma-separated list of persona:token pairs, e.g.
// "team-lead:abc,finance-admin:def", into a token -> persona map.
func ParseTokens(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		persona, token, ok := strings.Cut(pair, ":")
		persona, token = strings.TrimSpace(persona), strings.TrimSpace(token)
		if !ok || token == "" {
			return nil, fmt.Errorf("token entry %q: want persona:token", persona)
		}
		if !slices.Contains(personas, persona) {
			return nil, fmt.Errorf("unknown persona %q", persona)
		}
		if _, dup := out[token]; dup {
			return nil, fmt.Errorf("token for %q is reused", persona)
		}
		out[token] = persona
	}
	return out, nil
}
