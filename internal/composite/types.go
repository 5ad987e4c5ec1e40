// Package composite implements the composite orchestrator (C9): a
// declarative, dependency-ordered sequence of calls against other catalog
// endpoints, threading each step's response into the next via template
// substitution.
package composite

import "context"

// Call is one invocation the orchestrator hands to the in-process
// dispatcher. Principal carries the authenticated username, never the raw
// token, per §4.8 step 2c.
type Call struct {
	Endpoint    string
	Method      string
	Body        map[string]interface{}
	Environment string
	Principal   string
}

// Result is a dispatcher response, decoded enough for template
// substitution and for the orchestrator's own aggregated response.
type Result struct {
	StatusCode int
	Body       interface{} // decoded JSON: map[string]interface{}, []interface{}, or a scalar
}

// Success reports whether the result's status is in the 2xx range.
func (r *Result) Success() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// Dispatcher is the in-process call-out the orchestrator depends on. It is
// satisfied by internal/dispatcher, kept as an interface here to avoid the
// import cycle a composite-endpoint call into the dispatcher would
// otherwise create (the dispatcher is itself what routes to composite).
type Dispatcher interface {
	Invoke(ctx context.Context, call Call) (*Result, error)
}
