package utils

import (
	"net/http"
	"strings"
)

var (
	allowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	allowedHeaders = []string{
		"Content-Type",
		"Connect-Protocol-Version",
		"Connect-Timeout-Ms",
		"Authorization",
		"X-User-Agent",
	}
	exposedHeaders = []string{
		"Grpc-Status",
		"Grpc-Message",
		"Grpc-Status-Details-Bin",
	}
)

// WithCORS lets browser clients on any origin call the API, including
// Connect streaming endpoints.
func WithCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			h.ServeHTTP(w, r)
			return
		}
		header := w.Header()
		header.Set("Access-Control-Allow-Origin", origin)
		header.Add("Vary", "Origin")
		header.Set("Access-Control-Expose-Headers", strings.Join(exposedHeaders, ", "))
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			header.Set("Access-Control-Allow-Methods", strings.Join(allowedMethods, ", "))
			header.Set("Access-Control-Allow-Headers", strings.Join(allowedHeaders, ", "))
			header.Set("Access-Control-Max-Age", "7200")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}
