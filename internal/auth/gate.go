package auth

import (
	"fmt"
	"strings"

	"github.com/melosso/portway/internal/catalog"
	"github.com/melosso/portway/internal/gatewayerr"
)

// Gate implements the scope & environment checks of §4.3.
type Gate struct{}

// NewGate constructs a Gate. It is stateless; a value type would do equally
// well, but a constructor keeps call sites consistent with the gateway's
// other components (auth.NewGate(), ratelimit.New(), ...).
func NewGate() *Gate { return &Gate{} }

// endpointScopeName renders the scope-matching name for an endpoint,
// prefixing composite/webhook endpoints per §4.3.
func endpointScopeName(e *catalog.Endpoint) string {
	name := e.Name
	if e.Namespace != "" {
		name = e.Namespace + "/" + name
	}
	switch e.Kind {
	case catalog.KindComposite:
		return "composite/" + name
	case catalog.KindWebhook:
		return "webhook/" + name
	default:
		return name
	}
}

// Check returns nil if rec is allowed to call endpoint in environment,
// otherwise a *gatewayerr.Error carrying the 403 envelope described in
// §4.3 ("body enumerating the available patterns and the requested value").
func (g *Gate) Check(rec *Record, environment string, e *catalog.Endpoint) error {
	if !matchesAny(rec.AllowedEnvironments, environment) {
		return denyError("environment not permitted for this token", rec.AllowedEnvironments, environment)
	}

	scopeName := endpointScopeName(e)
	if !matchesAny(rec.AllowedScopes, scopeName) {
		return denyError("endpoint not permitted for this token", rec.AllowedScopes, scopeName)
	}

	if !e.AllowsEnvironment(environment) {
		return denyError("environment not permitted by endpoint", strings.Join(e.AllowedEnvironments, ","), environment)
	}

	return nil
}

func matchesAny(csv, value string) bool {
	for _, pattern := range splitCSV(csv) {
		if catalog.MatchPattern(pattern, value) {
			return true
		}
	}
	return false
}

func denyError(message, available, requested string) error {
	return gatewayerr.WithDetail(
		gatewayerr.KindAuthorization,
		message,
		fmt.Sprintf("availableScopes=%q requestedValue=%q", available, requested),
	)
}
