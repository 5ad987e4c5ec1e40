package composite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/melosso/portway/internal/catalog"
)

type fakeDispatcher struct {
	calls     []Call
	responses map[string]*Result // keyed by Endpoint
	err       map[string]error
}

func (f *fakeDispatcher) Invoke(ctx context.Context, call Call) (*Result, error) {
	f.calls = append(f.calls, call)
	if err, ok := f.err[call.Endpoint]; ok {
		return nil, err
	}
	if r, ok := f.responses[call.Endpoint]; ok {
		return r, nil
	}
	return &Result{StatusCode: 200, Body: map[string]interface{}{}}, nil
}

func TestRun_OrdersStepsByDependsOn(t *testing.T) {
	spec := &catalog.CompositeSpec{Steps: []catalog.CompositeStep{
		{Name: "second", TargetEndpoint: "B", Method: "POST", DependsOn: []string{"first"}},
		{Name: "first", TargetEndpoint: "A", Method: "POST"},
	}}
	fake := &fakeDispatcher{responses: map[string]*Result{
		"A": {StatusCode: 200, Body: map[string]interface{}{"id": "1"}},
		"B": {StatusCode: 201},
	}}
	orch := New(fake)

	_, err := orch.Run(context.Background(), spec, map[string]interface{}{}, "600", "alice", "req-1", nil)
	require.NoError(t, err)
	require.Len(t, fake.calls, 2)
	require.Equal(t, "A", fake.calls[0].Endpoint)
	require.Equal(t, "B", fake.calls[1].Endpoint)
}

func TestRun_PrevTemplateSubstitution(t *testing.T) {
	spec := &catalog.CompositeSpec{Steps: []catalog.CompositeStep{
		{Name: "create", TargetEndpoint: "Orders", Method: "POST"},
		{Name: "followup", TargetEndpoint: "OrderLines", Method: "POST", DependsOn: []string{"create"},
			TemplateTransformations: map[string]string{"orderId": "$prev.create.id"}},
	}}
	fake := &fakeDispatcher{responses: map[string]*Result{
		"Orders":     {StatusCode: 200, Body: map[string]interface{}{"id": "ORD-1"}},
		"OrderLines": {StatusCode: 200},
	}}
	orch := New(fake)

	_, err := orch.Run(context.Background(), spec, map[string]interface{}{}, "600", "alice", "req-1", nil)
	require.NoError(t, err)
	require.Equal(t, "ORD-1", fake.calls[1].Body["orderId"])
}

func TestRun_GuidRequestIdAndContextSubstitution(t *testing.T) {
	spec := &catalog.CompositeSpec{Steps: []catalog.CompositeStep{
		{Name: "s1", TargetEndpoint: "X", Method: "POST", TemplateTransformations: map[string]string{
			"traceId": "$requestid",
			"token":   "$guid",
			"tenant":  "$context.tenant",
		}},
	}}
	fake := &fakeDispatcher{}
	orch := New(fake)

	_, err := orch.Run(context.Background(), spec, map[string]interface{}{}, "600", "alice", "req-42", map[string]interface{}{"tenant": "acme"})
	require.NoError(t, err)
	require.Equal(t, "req-42", fake.calls[0].Body["traceId"])
	require.NotEmpty(t, fake.calls[0].Body["token"])
	require.Equal(t, "acme", fake.calls[0].Body["tenant"])
}

func TestRun_ArrayStepExecutesOncePerElement(t *testing.T) {
	spec := &catalog.CompositeSpec{Steps: []catalog.CompositeStep{
		{Name: "lines", TargetEndpoint: "Lines", Method: "POST", IsArray: true, ArrayProperty: "items"},
	}}
	fake := &fakeDispatcher{}
	orch := New(fake)

	body := map[string]interface{}{"items": []interface{}{
		map[string]interface{}{"sku": "A"},
		map[string]interface{}{"sku": "B"},
	}}
	_, err := orch.Run(context.Background(), spec, body, "600", "alice", "req-1", nil)
	require.NoError(t, err)
	require.Len(t, fake.calls, 2)
	require.Equal(t, "A", fake.calls[0].Body["sku"])
	require.Equal(t, "B", fake.calls[1].Body["sku"])
}

func TestRun_ArrayStepBundlesEveryElementAndStaysIndexable(t *testing.T) {
	spec := &catalog.CompositeSpec{Steps: []catalog.CompositeStep{
		{Name: "CreateOrderLines", TargetEndpoint: "Lines", Method: "POST", IsArray: true, ArrayProperty: "items"},
		{Name: "header", TargetEndpoint: "Header", Method: "POST", DependsOn: []string{"CreateOrderLines"},
			TemplateTransformations: map[string]string{"firstKey": "$prev.CreateOrderLines.0.d.TransactionKey"}},
	}}
	fake := &fakeDispatcher{responses: map[string]*Result{
		"Lines": {StatusCode: 200, Body: map[string]interface{}{"d": map[string]interface{}{"TransactionKey": "TX-1"}}},
	}}
	orch := New(fake)

	body := map[string]interface{}{"items": []interface{}{
		map[string]interface{}{"sku": "A"},
		map[string]interface{}{"sku": "B"},
		map[string]interface{}{"sku": "C"},
	}}
	results, err := orch.Run(context.Background(), spec, body, "600", "alice", "req-1", nil)
	require.NoError(t, err)
	require.Len(t, fake.calls, 4, "3 line elements plus the header step")

	lines, ok := results["CreateOrderLines"].Body.([]interface{})
	require.True(t, ok, "array step result must be indexable, not the last element's body")
	require.Len(t, lines, 3, "all three elements must survive, not just the last")

	require.Equal(t, "TX-1", fake.calls[3].Body["firstKey"])
}

func TestRun_AbortsOnFirstFailure(t *testing.T) {
	spec := &catalog.CompositeSpec{Steps: []catalog.CompositeStep{
		{Name: "a", TargetEndpoint: "A", Method: "POST"},
		{Name: "b", TargetEndpoint: "B", Method: "POST", DependsOn: []string{"a"}},
		{Name: "c", TargetEndpoint: "C", Method: "POST", DependsOn: []string{"b"}},
	}}
	fake := &fakeDispatcher{responses: map[string]*Result{
		"A": {StatusCode: 200},
		"B": {StatusCode: 409},
	}}
	orch := New(fake)

	_, err := orch.Run(context.Background(), spec, map[string]interface{}{}, "600", "alice", "req-1", nil)
	require.Error(t, err)
	require.Len(t, fake.calls, 2, "step c must never be invoked after b fails")
}
