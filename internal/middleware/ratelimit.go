package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"genjobs/internal/admission"
)

// Admission consults gate once per request for class. Callers are keyed by
// the authenticated user id, falling back to the client IP.
func Admission(gate admission.Gate, class admission.Class, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := UserIDFromContext(r.Context())
			if caller == "" {
				caller = "ip:" + clientIPForRateLimit(r)
			}
			decision, err := gate.Admit(r.Context(), caller, class)
			if err != nil {
				logger.Warn().Err(err).Str("class", string(class)).Msg("admission check failed, admitting")
				next.ServeHTTP(w, r)
				return
			}
			if !decision.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfterSeconds))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{
						"code":                "AdmissionDenied",
						"message":             "rate limit exceeded",
						"retry_after_seconds": decision.RetryAfterSeconds,
					},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIPForRateLimit(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if ip == "" {
				continue
			}
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		if net.ParseIP(host) != nil {
			return host
		}
	} else if net.ParseIP(r.RemoteAddr) != nil {
		return r.RemoteAddr
	}

	return r.RemoteAddr
}
