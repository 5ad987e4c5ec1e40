// Package dispatcher implements the endpoint dispatcher / router (C10):
// it parses each incoming request's path per the grammar in §4.9, applies
// the rate-limit, auth, and scope gates in order, and hands the request to
// the handler selected by the matched endpoint's kind.
package dispatcher

import (
	"time"

	"github.com/go-kit/log"

	"github.com/melosso/portway/internal/audit"
	"github.com/melosso/portway/internal/auth"
	"github.com/melosso/portway/internal/blobstore"
	"github.com/melosso/portway/internal/cache"
	"github.com/melosso/portway/internal/catalog"
	"github.com/melosso/portway/internal/composite"
	"github.com/melosso/portway/internal/environment"
	"github.com/melosso/portway/internal/netpolicy"
	"github.com/melosso/portway/internal/proxy"
	"github.com/melosso/portway/internal/ratelimit"
	"github.com/melosso/portway/internal/sqlexec"
	"github.com/melosso/portway/internal/webhook"
)

// Deps bundles every singleton the dispatcher wires together. It is
// constructed once at startup (see cmd/portway) and passed down — the
// design notes call for explicit values over package-level singletons.
type Deps struct {
	Catalog      *catalog.Holder
	Tokens       *auth.Store
	Gate         *auth.Gate
	Limiter      *ratelimit.Limiter
	Environments *environment.Registry
	SQLPool      *sqlexec.Pool
	SQL          *sqlexec.Executor
	Proxy        *proxy.Engine
	NetPolicy    *netpolicy.Policy
	Cache        cache.Provider
	SingleFlight *cache.SingleFlight
	Webhooks     *webhook.Ingester
	Blobs        *blobstore.Facade
	Audit        *audit.Queue
	Logger       log.Logger

	ODataMaxTop           int
	DefaultCacheTTL       time.Duration
	SingleFlightWait      time.Duration
	SingleFlightLease     time.Duration
	CommandTimeout        time.Duration
	RequestBodyLimitBytes int64
}

// Dispatcher is the router described by C10. It also implements
// composite.Dispatcher so the orchestrator can call back into it without
// an import cycle (the interface lives in package composite per the design
// notes on cyclic references).
type Dispatcher struct {
	deps         Deps
	orchestrator *composite.Orchestrator
}

// New constructs a Dispatcher and its composite orchestrator, wiring the
// orchestrator's callback to the dispatcher itself.
func New(deps Deps) *Dispatcher {
	if deps.Audit == nil {
		deps.Audit = audit.New(10000)
	}
	d := &Dispatcher{deps: deps}
	d.orchestrator = composite.New(d)
	return d
}
