package dispatcher

import (
	"encoding/json"
	"net/http"

	"github.com/melosso/portway/internal/gatewayerr"
)

// compositeStepResponse is the wire shape of one bundled step result in the
// composite endpoint's aggregated response (§4.8 step 3).
type compositeStepResponse struct {
	StatusCode int         `json:"statusCode"`
	Body       interface{} `json:"body"`
}

func (d *Dispatcher) handleComposite(req *requestContext) error {
	var body map[string]interface{}
	if req.r.Body != nil && req.r.ContentLength != 0 {
		if err := json.NewDecoder(req.r.Body).Decode(&body); err != nil {
			return gatewayerr.Wrap(gatewayerr.KindValidation, "invalid JSON request body", err)
		}
	}
	if body == nil {
		body = map[string]interface{}{}
	}

	context := make(map[string]interface{}, len(req.r.URL.Query()))
	for k, vv := range req.r.URL.Query() {
		if len(vv) > 0 {
			context[k] = vv[0]
		}
	}

	results, err := d.orchestrator.Run(req.ctx, req.endpoint.Composite, body, req.parsed.Environment, req.principal, req.requestID, context)
	if err != nil {
		return err
	}

	out := make(map[string]compositeStepResponse, len(results))
	for name, r := range results {
		out[name] = compositeStepResponse{StatusCode: r.StatusCode, Body: r.Body}
	}
	writeJSON(req.w, http.StatusOK, out)
	return nil
}
