package dispatcher

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/melosso/portway/internal/catalog"
	"github.com/melosso/portway/internal/gatewayerr"
	"github.com/melosso/portway/internal/odata"
	"github.com/melosso/portway/internal/sqlexec"
)

// collectionResponse is the wire shape for a GET collection, per §6.
type collectionResponse struct {
	Count    int         `json:"Count"`
	Value    interface{} `json:"Value"`
	NextLink *string     `json:"NextLink"`
}

func (d *Dispatcher) handleSQL(req *requestContext) error {
	spec := req.endpoint.SQL
	switch req.r.Method {
	case http.MethodGet:
		if req.parsed.HasID {
			return d.handleSQLGetByID(req, spec)
		}
		return d.handleSQLGetCollection(req, spec)
	case http.MethodPost, http.MethodPut, http.MethodDelete:
		return d.handleSQLWrite(req, spec)
	default:
		return gatewayerr.New(gatewayerr.KindMethodDenied, "method not allowed for SQL endpoints")
	}
}

func (d *Dispatcher) handleSQLGetByID(req *requestContext, spec *catalog.SQLSpec) error {
	idFilter := odata.SynthesizeIDFilter(spec.PrimaryKey, req.parsed.IDValue, req.parsed.IDKind)
	row, err := d.deps.SQL.QueryByID(req.ctx, req.parsed.Environment, spec, idFilter, d.deps.ODataMaxTop)
	if err != nil {
		return err
	}
	writeJSON(req.w, http.StatusOK, row)
	return nil
}

func (d *Dispatcher) handleSQLGetCollection(req *requestContext, spec *catalog.SQLSpec) error {
	q := req.r.URL.Query()
	top, err := parseNonNegativeInt(q.Get("$top"))
	if err != nil {
		return gatewayerr.WithDetail(gatewayerr.KindValidation, "invalid $top", err.Error())
	}
	skip, err := parseNonNegativeInt(q.Get("$skip"))
	if err != nil {
		return gatewayerr.WithDetail(gatewayerr.KindValidation, "invalid $skip", err.Error())
	}

	odReq := odata.Request{
		Top:     top,
		Skip:    skip,
		Select:  q.Get("$select"),
		Filter:  q.Get("$filter"),
		OrderBy: q.Get("$orderby"),
	}
	if odReq.OrderBy == "" {
		// P5 requires a stable order across pages: without this, a first
		// page taken in arbitrary DB order and a later $skip page ordered
		// by primary key could visit the same row twice or skip one. The
		// primary key is used only when it resolves to an allowed alias.
		if alias, ok := spec.DatabaseToAlias[spec.PrimaryKey]; ok {
			odReq.OrderBy = alias
		} else {
			for _, c := range spec.AllowedColumns {
				if c == spec.PrimaryKey {
					odReq.OrderBy = c
					break
				}
			}
		}
	}

	result, err := d.deps.SQL.Query(req.ctx, req.parsed.Environment, spec, odReq, d.deps.ODataMaxTop)
	if err != nil {
		return err
	}

	effectiveTop := top
	if effectiveTop <= 0 {
		effectiveTop = 100
	}

	resp := collectionResponse{Count: len(result.Rows), Value: rowsOrEmpty(result.Rows)}
	if result.NextLink {
		link := buildNextLink(req, effectiveTop, skip+effectiveTop)
		resp.NextLink = &link
	}
	writeJSON(req.w, http.StatusOK, resp)
	return nil
}

func rowsOrEmpty(rows []sqlexec.Row) interface{} {
	if rows == nil {
		return []sqlexec.Row{}
	}
	return rows
}

func (d *Dispatcher) handleSQLWrite(req *requestContext, spec *catalog.SQLSpec) error {
	if spec.ProcedureName == "" {
		return gatewayerr.New(gatewayerr.KindMethodDenied, "this endpoint accepts no write methods")
	}

	var body map[string]interface{}
	if req.r.Body != nil {
		dec := json.NewDecoder(req.r.Body)
		if err := dec.Decode(&body); err != nil && req.r.ContentLength != 0 {
			return gatewayerr.Wrap(gatewayerr.KindValidation, "invalid JSON request body", err)
		}
	}
	if body == nil {
		body = map[string]interface{}{}
	}
	if req.parsed.HasID {
		body[spec.PrimaryKey] = req.parsed.IDValue
	}

	method := procedureMethodFor(req.r.Method)
	row, err := d.deps.SQL.Execute(req.ctx, req.parsed.Environment, spec, method, req.principal, body)
	if err != nil {
		return err
	}
	writeJSON(req.w, http.StatusOK, row)
	return nil
}

func procedureMethodFor(httpMethod string) sqlexec.ProcedureMethod {
	switch httpMethod {
	case http.MethodPost:
		return sqlexec.MethodInsert
	case http.MethodPut:
		return sqlexec.MethodUpdate
	default:
		return sqlexec.MethodDelete
	}
}

func parseNonNegativeInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return n, nil
}

// buildNextLink renders the /api/<env>/[<ns>/]<endpoint>?$top=T&$skip=S+T
// link documented in §6, preserving every other query parameter from the
// original request.
func buildNextLink(req *requestContext, top, skip int) string {
	q := req.r.URL.Query()
	q.Set("$top", strconv.Itoa(top))
	q.Set("$skip", strconv.Itoa(skip))

	path := "/api/" + req.parsed.Environment + "/"
	if req.parsed.Namespace != "" {
		path += req.parsed.Namespace + "/"
	}
	path += req.parsed.EndpointRaw

	u := url.URL{Path: path, RawQuery: q.Encode()}
	return u.String()
}
