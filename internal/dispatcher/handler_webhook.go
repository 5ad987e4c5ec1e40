package dispatcher

import (
	"io"
	"net/http"
	"strings"

	"github.com/melosso/portway/internal/gatewayerr"
)

// handleWebhook implements the fixed ingestion path of §4.10: the segment
// after the endpoint name in /api/<env>/webhook/<endpoint>/<id> is the
// webhook id, not a forwarded remainder.
func (d *Dispatcher) handleWebhook(req *requestContext) error {
	id, _, _ := strings.Cut(req.parsed.Remainder, "/")
	if id == "" {
		return gatewayerr.New(gatewayerr.KindNotFound, "unknown webhook id")
	}

	body, err := io.ReadAll(req.r.Body)
	if err != nil {
		return gatewayerr.Wrap(gatewayerr.KindValidation, "failed to read request body", err)
	}

	newID, err := d.deps.Webhooks.Ingest(req.ctx, req.parsed.Environment, req.endpoint.Webhook, id, body)
	if err != nil {
		return err
	}
	writeJSON(req.w, http.StatusCreated, map[string]interface{}{"id": newID})
	return nil
}
