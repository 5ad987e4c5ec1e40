package dispatcher

import (
	"encoding/json"
	"net/http"

	"github.com/melosso/portway/internal/gatewayerr"
)

// securityHeaders are applied to every response, success or failure, per
// §6 ("Security headers on all responses").
func applySecurityHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	h.Set("Referrer-Policy", "no-referrer")
	h.Set("Permissions-Policy", "geolocation=(), camera=(), microphone=()")
}

// writeError renders err into the error envelope of §6 and sets the status
// implied by its Kind, echoing requestID in X-Request-ID as documented in
// §7.
func writeError(w http.ResponseWriter, requestID string, err error) {
	w.Header().Set("X-Request-ID", requestID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(gatewayerr.StatusOf(err))
	_ = json.NewEncoder(w).Encode(gatewayerr.ToEnvelope(err, requestID))
}

// writeJSON renders v as a JSON body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// notFoundPath renders the 404 body documented in §4.9 ("naming the
// attempted method and path").
func notFoundPath(method, path string) error {
	return gatewayerr.WithDetail(gatewayerr.KindNotFound, "no endpoint matches this path",
		"method="+method+" path="+path)
}
