package composite

import (
	"context"
	"fmt"

	"github.com/melosso/portway/internal/catalog"
	"github.com/melosso/portway/internal/gatewayerr"
)

// Orchestrator runs a composite endpoint's step list (§4.8).
type Orchestrator struct {
	dispatcher Dispatcher
}

// New constructs an Orchestrator against dispatcher.
func New(dispatcher Dispatcher) *Orchestrator {
	return &Orchestrator{dispatcher: dispatcher}
}

// Run executes spec's steps in dependency order against body, returning the
// per-step results keyed by step name. It aborts on the first step (or
// array element) whose response is non-success.
func (o *Orchestrator) Run(ctx context.Context, spec *catalog.CompositeSpec, body map[string]interface{}, environment, principal, requestID string, context_ map[string]interface{}) (map[string]*Result, error) {
	ordered := topoSort(spec.Steps)
	results := make(map[string]*Result, len(ordered))

	for _, step := range ordered {
		if step.IsArray {
			elements, err := arrayInput(body, step.ArrayProperty)
			if err != nil {
				return results, err
			}
			bodies := make([]interface{}, 0, len(elements))
			var lastStatus int
			for i, elem := range elements {
				transformed, err := transform(step, elem, requestID, results, context_)
				if err != nil {
					return results, gatewayerr.WithDetail(gatewayerr.KindValidation,
						"failed to build request for composite step", fmt.Sprintf("step=%s index=%d err=%v", step.Name, i, err))
				}
				res, err := o.dispatcher.Invoke(ctx, Call{
					Endpoint: step.TargetEndpoint, Method: step.Method, Body: transformed,
					Environment: environment, Principal: principal,
				})
				if err != nil {
					return results, gatewayerr.Wrap(gatewayerr.KindUpstreamFailure, fmt.Sprintf("composite step %q (element %d) failed", step.Name, i), err)
				}
				if !res.Success() {
					return results, abortError(step.Name, res.StatusCode)
				}
				bodies = append(bodies, res.Body)
				lastStatus = res.StatusCode
			}
			// Indexable by position so $prev.<arrayStep>.<index>... and the
			// final bundle both see every element, not just the last one.
			results[step.Name] = &Result{StatusCode: lastStatus, Body: bodies}
			continue
		}

		input := scalarInput(body, step.SourceProperty)
		transformed, err := transform(step, input, requestID, results, context_)
		if err != nil {
			return results, gatewayerr.WithDetail(gatewayerr.KindValidation,
				"failed to build request for composite step", fmt.Sprintf("step=%s err=%v", step.Name, err))
		}

		res, err := o.dispatcher.Invoke(ctx, Call{
			Endpoint: step.TargetEndpoint, Method: step.Method, Body: transformed,
			Environment: environment, Principal: principal,
		})
		if err != nil {
			return results, gatewayerr.Wrap(gatewayerr.KindUpstreamFailure, fmt.Sprintf("composite step %q failed", step.Name), err)
		}
		if !res.Success() {
			return results, abortError(step.Name, res.StatusCode)
		}
		results[step.Name] = res
	}

	return results, nil
}

func abortError(stepName string, status int) error {
	return gatewayerr.WithDetail(gatewayerr.KindUpstreamFailure,
		"composite orchestration aborted", fmt.Sprintf("step=%s upstreamStatus=%d", stepName, status))
}

func scalarInput(body map[string]interface{}, sourceProperty string) interface{} {
	if sourceProperty == "" {
		return body
	}
	return body[sourceProperty]
}

func arrayInput(body map[string]interface{}, arrayProperty string) ([]interface{}, error) {
	raw, ok := body[arrayProperty]
	if !ok {
		return nil, gatewayerr.WithDetail(gatewayerr.KindValidation, "missing array property for composite step", arrayProperty)
	}
	arr, ok := raw.([]interface{})
	if !ok {
		return nil, gatewayerr.WithDetail(gatewayerr.KindValidation, "array property is not a JSON array", arrayProperty)
	}
	return arr, nil
}

// transform applies step.TemplateTransformations on top of input, producing
// the request body for one dispatcher call. Transformation keys not present
// in input's own fields are added; input fields with no corresponding
// transformation pass through unchanged when input is itself an object.
func transform(step catalog.CompositeStep, input interface{}, requestID string, prior map[string]*Result, context_ map[string]interface{}) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if obj, ok := input.(map[string]interface{}); ok {
		for k, v := range obj {
			out[k] = v
		}
	} else if input != nil {
		out["value"] = input
	}

	for key, expr := range step.TemplateTransformations {
		resolved, err := resolveTemplate(expr, requestID, prior, context_)
		if err != nil {
			return nil, err
		}
		out[key] = resolved
	}
	return out, nil
}
