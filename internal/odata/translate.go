package odata

import (
	"fmt"
	"strings"

	"github.com/melosso/portway/internal/gatewayerr"
)

// Translated is the output of Translate: a parameterised SQL statement
// ready for the executor, plus whether an extra row was requested to
// detect a further page (§4.5: "MUST request top+1 rows").
type Translated struct {
	SQL           string
	Params        []interface{}
	RequestedTop  int // the caller's original $top, before the +1 adjustment
	FetchedTop    int // the row count emitted into the SQL as TOP or FETCH NEXT (RequestedTop+1)
}

// Options configures one translation call.
type Options struct {
	Schema     string
	ObjectName string
	Columns    ColumnMap
	MaxTop     int // cap from configuration; 0 means no cap
}

// Translate turns req into a parameterised SELECT against
// [Schema].[ObjectName], applying alias resolution throughout (P6).
func Translate(req Request, opts Options) (*Translated, error) {
	top := req.Top
	if top <= 0 {
		top = 100
	}
	if opts.MaxTop > 0 && top > opts.MaxTop {
		return nil, gatewayerr.WithDetail(gatewayerr.KindValidation, "$top exceeds the configured maximum",
			fmt.Sprintf("requested=%d max=%d", top, opts.MaxTop))
	}
	skip := req.Skip
	if skip < 0 {
		return nil, gatewayerr.New(gatewayerr.KindValidation, "$skip must not be negative")
	}

	pb := &paramBuilder{}

	selectSQL, err := emitSelect(req.Select, opts.Columns)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindValidation, "invalid $select", err)
	}

	whereSQL := ""
	if strings.TrimSpace(req.Filter) != "" {
		ast, err := ParseFilter(req.Filter)
		if err != nil {
			return nil, gatewayerr.Wrap(gatewayerr.KindValidation, "invalid $filter", err)
		}
		whereSQL, err = ast.emit(opts.Columns, pb)
		if err != nil {
			return nil, gatewayerr.Wrap(gatewayerr.KindValidation, "invalid $filter", err)
		}
	}

	orderSQL, err := emitOrderBy(req.OrderBy, opts.Columns)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindValidation, "invalid $orderby", err)
	}

	fetchedTop := top + 1

	// SQL Server's OFFSET/FETCH needs an ORDER BY and cannot be combined
	// with TOP, so ordered reads page with OFFSET/FETCH and unordered reads
	// use TOP. The dispatcher supplies a default $orderby from the
	// endpoint's primary key when that key is an allowed column.
	if skip > 0 && orderSQL == "" {
		return nil, gatewayerr.New(gatewayerr.KindValidation, "$skip requires $orderby (or a resolvable default ordering)")
	}
	var sb strings.Builder
	if orderSQL != "" {
		fmt.Fprintf(&sb, "SELECT %s FROM [%s].[%s]", selectSQL, opts.Schema, opts.ObjectName)
	} else {
		fmt.Fprintf(&sb, "SELECT TOP %d %s FROM [%s].[%s]", fetchedTop, selectSQL, opts.Schema, opts.ObjectName)
	}
	if whereSQL != "" {
		fmt.Fprintf(&sb, " WHERE %s", whereSQL)
	}
	if orderSQL != "" {
		fmt.Fprintf(&sb, " ORDER BY %s OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", orderSQL, skip, fetchedTop)
	}

	return &Translated{
		SQL:          sb.String(),
		Params:       pb.params,
		RequestedTop: top,
		FetchedTop:   fetchedTop,
	}, nil
}

func emitSelect(raw string, cols ColumnMap) (string, error) {
	aliases := ParseSelect(raw)
	if len(aliases) == 0 {
		aliases = cols.AllowedColumns
	}
	parts := make([]string, 0, len(aliases))
	for _, alias := range aliases {
		dbcol, ok := cols.dbColumn(alias)
		if !ok {
			return "", fmt.Errorf("unknown or disallowed alias %q in $select", alias)
		}
		if dbcol == alias {
			parts = append(parts, fmt.Sprintf("[%s]", dbcol))
		} else {
			parts = append(parts, fmt.Sprintf("[%s] AS [%s]", dbcol, alias))
		}
	}
	return strings.Join(parts, ", "), nil
}

func emitOrderBy(raw string, cols ColumnMap) (string, error) {
	items, err := ParseOrderBy(raw)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(items))
	for _, it := range items {
		dbcol, ok := cols.dbColumn(it.Alias)
		if !ok {
			return "", fmt.Errorf("unknown or disallowed alias %q in $orderby", it.Alias)
		}
		dir := "ASC"
		if it.Desc {
			dir = "DESC"
		}
		parts = append(parts, fmt.Sprintf("[%s] %s", dbcol, dir))
	}
	return strings.Join(parts, ", "), nil
}

// IDLiteralKind distinguishes the three id shapes in the path grammar
// (§4.5 "Id-based requests").
type IDLiteralKind int

const (
	IDNumber IDLiteralKind = iota
	IDString
	IDGUID
)

// SynthesizeIDFilter builds the "primaryKey eq v" filter text the dispatcher
// passes down when the path carries an id-suffix, preserving the literal
// form implied by the id's shape.
func SynthesizeIDFilter(primaryKey, value string, kind IDLiteralKind) string {
	switch kind {
	case IDString:
		return fmt.Sprintf("%s eq '%s'", primaryKey, strings.ReplaceAll(value, "'", "''"))
	case IDGUID:
		return fmt.Sprintf("%s eq guid'%s'", primaryKey, value)
	default:
		return fmt.Sprintf("%s eq %s", primaryKey, value)
	}
}
