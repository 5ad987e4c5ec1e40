package sqlexec

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/melosso/portway/internal/catalog"
	"github.com/melosso/portway/internal/environment"
	"github.com/melosso/portway/internal/gatewayerr"
	"github.com/melosso/portway/internal/odata"
)

// Row is one result row, keyed by alias (already reshaped via
// databaseToAlias, §4.6).
type Row map[string]interface{}

// CollectionResult is the output of a GET collection call.
type CollectionResult struct {
	Rows     []Row
	NextLink bool // true iff the translator's extra (top+1'th) row was present
}

// Executor runs translated OData queries and stored-procedure calls against
// the pooled SQL Server connection for each environment.
type Executor struct {
	pool *Pool
	envs *environment.Registry
}

// New constructs an Executor.
func New(pool *Pool, envs *environment.Registry) *Executor {
	return &Executor{pool: pool, envs: envs}
}

func (e *Executor) db(environmentName string) (*sql.DB, error) {
	settings, ok := e.envs.Lookup(environmentName)
	if !ok {
		return nil, gatewayerr.New(gatewayerr.KindUnavailable, "environment is not configured")
	}
	db, err := e.pool.Get(environmentName, settings.ConnectionString)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindInternal, "database operation failed", err)
	}
	return db, nil
}

// Query runs a GET collection request: translate req against spec, execute
// it, and reshape the returned rows. NextLink is set when the translator's
// extra row came back.
func (e *Executor) Query(ctx context.Context, environmentName string, spec *catalog.SQLSpec, req odata.Request, maxTop int) (*CollectionResult, error) {
	translated, err := odata.Translate(req, odata.Options{
		Schema:     spec.Schema,
		ObjectName: spec.ObjectName,
		Columns:    odata.ColumnMap{AllowedColumns: spec.AllowedColumns, AliasToDatabase: spec.AliasToDatabase},
		MaxTop:     maxTop,
	})
	if err != nil {
		return nil, err
	}

	db, err := e.db(environmentName)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, translated.SQL, translated.Params...)
	if err != nil {
		return nil, sanitise(err)
	}
	defer rows.Close()

	shaped, err := scanRows(rows, spec.DatabaseToAlias)
	if err != nil {
		return nil, sanitise(err)
	}

	result := &CollectionResult{Rows: shaped}
	if len(shaped) > translated.RequestedTop {
		result.NextLink = true
		result.Rows = shaped[:translated.RequestedTop]
	}
	return result, nil
}

// QueryByID runs a GET-by-id request: idFilter is the synthesised
// "primaryKey eq v" expression built by the caller (dispatcher), top forced
// to 1 as mandated by §4.5. A missing row is KindNotFound, not an empty
// collection.
func (e *Executor) QueryByID(ctx context.Context, environmentName string, spec *catalog.SQLSpec, idFilter string, maxTop int) (Row, error) {
	result, err := e.Query(ctx, environmentName, spec, odata.Request{Filter: idFilter, Top: 1}, maxTop)
	if err != nil {
		return nil, err
	}
	if len(result.Rows) == 0 {
		return nil, gatewayerr.New(gatewayerr.KindNotFound, "no row matches the requested id")
	}
	return result.Rows[0], nil
}

// ProcedureMethod is the @Method value passed to the stored procedure.
type ProcedureMethod string

const (
	MethodInsert ProcedureMethod = "INSERT"
	MethodUpdate ProcedureMethod = "UPDATE"
	MethodDelete ProcedureMethod = "DELETE"
)

// Execute runs spec.ProcedureName for a POST/PUT/DELETE, binding @Method,
// @UserName, and one @<column> parameter per body property (§4.6). For
// DELETE, body MUST carry only the primary key. Properties outside
// spec.AllowedColumns are rejected with 400 before anything is sent to the
// database.
func (e *Executor) Execute(ctx context.Context, environmentName string, spec *catalog.SQLSpec, method ProcedureMethod, username string, body map[string]interface{}) (Row, error) {
	if spec.ProcedureName == "" {
		return nil, gatewayerr.New(gatewayerr.KindMethodDenied, "this endpoint has no associated stored procedure")
	}

	allowed := make(map[string]bool, len(spec.AllowedColumns))
	for _, c := range spec.AllowedColumns {
		allowed[c] = true
	}

	args := []interface{}{sql.Named("Method", string(method)), sql.Named("UserName", username)}
	var sb []string
	for alias, value := range body {
		if !allowed[alias] {
			return nil, gatewayerr.WithDetail(gatewayerr.KindValidation, "property is not writable on this endpoint", alias)
		}
		dbcol := alias
		if mapped, ok := spec.AliasToDatabase[alias]; ok {
			dbcol = mapped
		}
		sb = append(sb, fmt.Sprintf("@%s = @%s", dbcol, dbcol))
		args = append(args, sql.Named(dbcol, value))
	}

	query := fmt.Sprintf("EXEC [%s].[%s] @Method = @Method, @UserName = @UserName", spec.Schema, spec.ProcedureName)
	for _, clause := range sb {
		query += ", " + clause
	}

	db, err := e.db(environmentName)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, sanitise(err)
	}
	defer rows.Close()

	shaped, err := scanRows(rows, spec.DatabaseToAlias)
	if err != nil {
		return nil, sanitise(err)
	}
	if len(shaped) == 0 {
		return nil, nil
	}
	return shaped[0], nil
}

// scanRows reads every row of rs into a Row keyed by the database-to-alias
// mapping, falling back to the raw column name when it carries no alias.
func scanRows(rs *sql.Rows, databaseToAlias map[string]string) ([]Row, error) {
	cols, err := rs.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rs.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			alias := col
			if a, ok := databaseToAlias[col]; ok {
				alias = a
			}
			row[alias] = values[i]
		}
		out = append(out, row)
	}
	return out, rs.Err()
}
