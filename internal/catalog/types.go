// Package catalog implements the config loader (C1): it walks the on-disk
// endpoint descriptor tree, parses and validates each entity.json, and
// publishes a read-only snapshot that the rest of the gateway consults.
package catalog

import "regexp"

// Kind is the tagged variant selecting an endpoint's method-set.
// Per the design notes, Portway avoids a class hierarchy: Kind is a plain
// enum and each handler package switches on it explicitly.
type Kind string

const (
	KindSQL       Kind = "SQL"
	KindProxy     Kind = "Proxy"
	KindComposite Kind = "Composite"
	KindWebhook   Kind = "Webhook"
	KindStatic    Kind = "Static"
	KindFiles     Kind = "Files"
)

var nameRE = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ReservedNamespaces lists namespace names a descriptor may not declare.
var ReservedNamespaces = map[string]bool{
	"api": true, "docs": true, "swagger": true, "health": true,
	"admin": true, "system": true, "composite": true, "webhook": true,
	"files": true,
}

// Endpoint is the immutable, kind-tagged catalog entry. Kind-specific data
// lives in one of the *Spec structs below, reachable via the matching
// pointer field (exactly one is non-nil, chosen by Kind).
type Endpoint struct {
	Kind                Kind
	Name                string
	Namespace           string
	DisplayName         string
	AllowedMethods      []string
	AllowedEnvironments []string
	IsPrivate           bool

	SQL       *SQLSpec
	Proxy     *ProxySpec
	Composite *CompositeSpec
	Webhook   *WebhookSpec
}

// Key returns the catalog's uniqueness key for this endpoint.
func (e *Endpoint) Key() Key { return Key{Namespace: e.Namespace, Name: e.Name} }

// AllowsMethod reports whether method is permitted, falling back to the
// kind's default method set when AllowedMethods is empty.
func (e *Endpoint) AllowsMethod(method string) bool {
	methods := e.AllowedMethods
	if len(methods) == 0 {
		methods = defaultMethodsByKind[e.Kind]
	}
	for _, m := range methods {
		if m == method {
			return true
		}
	}
	return false
}

var defaultMethodsByKind = map[Kind][]string{
	KindSQL:       {"GET", "POST", "PUT", "DELETE"},
	KindProxy:     {"GET", "POST", "PUT", "PATCH", "DELETE"},
	KindComposite: {"POST"},
	KindWebhook:   {"POST"},
	KindStatic:    {"GET", "HEAD"},
	KindFiles:     {"GET", "POST"},
}

// AllowsEnvironment reports whether env is permitted by this endpoint's own
// allow-list. An empty list admits every environment (the global gate still
// applies separately).
func (e *Endpoint) AllowsEnvironment(env string) bool {
	if len(e.AllowedEnvironments) == 0 {
		return true
	}
	for _, allowed := range e.AllowedEnvironments {
		if matchPattern(allowed, env) {
			return true
		}
	}
	return false
}

// matchPattern implements the exact / trailing-wildcard rule shared by scope
// and environment matching ("6*" matches "600").
func matchPattern(pattern, value string) bool {
	if pattern == "*" {
		return true
	}
	if len(pattern) > 0 && pattern[len(pattern)-1] == '*' {
		prefix := pattern[:len(pattern)-1]
		return len(value) >= len(prefix) && value[:len(prefix)] == prefix
	}
	return pattern == value
}

// MatchPattern exports the shared wildcard rule for auth.Gate to reuse.
func MatchPattern(pattern, value string) bool { return matchPattern(pattern, value) }

// Key is the catalog lookup key: (namespace, name). A missing namespace is
// represented as the empty string.
type Key struct {
	Namespace string
	Name      string
}

// SQLSpec is the kind-specific payload for a SQL endpoint.
type SQLSpec struct {
	Schema          string
	ObjectName      string
	PrimaryKey      string
	AllowedColumns  []string
	AliasToDatabase map[string]string
	DatabaseToAlias map[string]string
	ProcedureName   string
}

// ProxySpec is the kind-specific payload for a reverse-proxy endpoint.
type ProxySpec struct {
	UpstreamURL string
	Type        string // "standard" | "composite"
}

// CompositeStep is one declarative call in a composite endpoint's sequence.
type CompositeStep struct {
	Name                   string
	TargetEndpoint         string
	Method                 string
	SourceProperty         string
	IsArray                bool
	ArrayProperty          string
	DependsOn              []string
	TemplateTransformations map[string]string
}

// CompositeSpec is the kind-specific payload for a composite endpoint.
type CompositeSpec struct {
	UpstreamBase string
	Steps        []CompositeStep
}

// WebhookSpec is the kind-specific payload for a webhook ingester endpoint.
type WebhookSpec struct {
	TargetTable    string
	AllowedColumns []string // accepted webhook ids
}
