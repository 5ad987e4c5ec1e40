package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/melosso/portway/internal/composite"
	"github.com/melosso/portway/internal/gatewayerr"
)

// Invoke satisfies composite.Dispatcher: it is the in-process call-out each
// composite step uses to reach another catalog endpoint. Unlike ServeHTTP it
// skips rate limiting and bearer-token verification — the composite request
// has already cleared both at the gateway boundary (§4.8 step 2c, "the
// principal that issued the composite request carries through to each
// step") — but it still runs method/environment/scope admission for the
// target endpoint, so a step cannot reach an endpoint the caller's token
// does not hold scope for.
func (d *Dispatcher) Invoke(ctx context.Context, call composite.Call) (*composite.Result, error) {
	namespace, name := "", call.Endpoint
	if i := strings.LastIndex(call.Endpoint, "/"); i >= 0 {
		namespace, name = call.Endpoint[:i], call.Endpoint[i+1:]
	}

	snap := d.deps.Catalog.Current()
	ep, ok := snap.Lookup(namespace, name)
	if !ok {
		return nil, gatewayerr.WithDetail(gatewayerr.KindNotFound, "composite step targets an unknown endpoint", call.Endpoint)
	}
	if !d.deps.Environments.Allowed(call.Environment) || !ep.AllowsEnvironment(call.Environment) {
		return nil, gatewayerr.WithDetail(gatewayerr.KindAuthorization, "environment not permitted", call.Environment)
	}
	if !ep.AllowsMethod(call.Method) {
		return nil, gatewayerr.WithDetail(gatewayerr.KindMethodDenied, "method not allowed for this endpoint", call.Method)
	}

	rec, ok := d.deps.Tokens.LookupByUsername(call.Principal, time.Now())
	if !ok {
		return nil, gatewayerr.New(gatewayerr.KindAuth, "composite principal no longer holds a valid token")
	}
	if err := d.deps.Gate.Check(rec, call.Environment, ep); err != nil {
		return nil, err
	}

	bodyBytes, err := json.Marshal(call.Body)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindInternal, "failed to encode step body", err)
	}

	path := "/api/" + call.Environment + "/"
	if namespace != "" {
		path += namespace + "/"
	}
	path += name

	r := httptest.NewRequest(call.Method, path, bytes.NewReader(bodyBytes))
	w := httptest.NewRecorder()

	req := &requestContext{
		ctx:       ctx,
		w:         w,
		r:         r,
		parsed:    &ParsedPath{Environment: call.Environment, Namespace: namespace, EndpointRaw: name},
		endpoint:  ep,
		principal: call.Principal,
		requestID: "",
	}

	if err := d.route(req); err != nil {
		status := gatewayerr.StatusOf(err)
		return &composite.Result{StatusCode: status, Body: gatewayerr.ToEnvelope(err, "")}, nil
	}

	result := w.Result()
	var decoded interface{}
	if result.Body != nil {
		_ = json.NewDecoder(result.Body).Decode(&decoded)
	}
	return &composite.Result{StatusCode: result.StatusCode, Body: decoded}, nil
}

var _ http.Handler = (*Dispatcher)(nil)
