package odata

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func productsCols() ColumnMap {
	return ColumnMap{
		AllowedColumns:  []string{"Code", "Name"},
		AliasToDatabase: map[string]string{"Code": "ItemCode", "Name": "Description"},
	}
}

func TestScenario1_SelectFilterTop(t *testing.T) {
	req := Request{Select: "Code", Filter: "Name eq 'Widget'", Top: 2}
	out, err := Translate(req, Options{Schema: "dbo", ObjectName: "Products", Columns: productsCols(), MaxTop: 1000})
	require.NoError(t, err)

	require.Contains(t, out.SQL, "SELECT TOP 3 [ItemCode] AS [Code] FROM [dbo].[Products]")
	require.Contains(t, out.SQL, "WHERE [Description] = @p0")
	require.Equal(t, []interface{}{"Widget"}, out.Params)
	require.Equal(t, 2, out.RequestedTop)
	require.Equal(t, 3, out.FetchedTop)
}

func TestScenario2_IDBasedFilter(t *testing.T) {
	filter := SynthesizeIDFilter("ItemCode", "X-1", IDString)
	require.Equal(t, `ItemCode eq 'X-1'`, filter)

	req := Request{Filter: filter, Top: 1}
	cols := ColumnMap{AllowedColumns: []string{"ItemCode", "Code", "Name"}, AliasToDatabase: map[string]string{"Code": "ItemCode", "Name": "Description"}}
	out, err := Translate(req, Options{Schema: "dbo", ObjectName: "Products", Columns: cols})
	require.NoError(t, err)
	require.Contains(t, out.SQL, "WHERE [ItemCode] = @p0")
	require.Equal(t, []interface{}{"X-1"}, out.Params)
}

func TestP6_UnknownAliasRejectedInFilterSelectOrderBy(t *testing.T) {
	cols := productsCols()

	_, err := Translate(Request{Filter: "Secret eq 1"}, Options{Schema: "dbo", ObjectName: "Products", Columns: cols})
	require.Error(t, err)

	_, err = Translate(Request{Select: "Secret"}, Options{Schema: "dbo", ObjectName: "Products", Columns: cols})
	require.Error(t, err)

	_, err = Translate(Request{OrderBy: "Secret desc"}, Options{Schema: "dbo", ObjectName: "Products", Columns: cols})
	require.Error(t, err)
}

func TestP6_NoRawAliasEverReachesSQLUnlessAllowed(t *testing.T) {
	cols := productsCols()
	out, err := Translate(Request{Filter: "Code eq 'x' and Name eq 'y'"}, Options{Schema: "dbo", ObjectName: "Products", Columns: cols})
	require.NoError(t, err)
	require.NotContains(t, out.SQL, "Secret")
	for _, col := range []string{"ItemCode", "Description"} {
		require.True(t, strings.Contains(out.SQL, col))
	}
}

func TestFilterPrecedence_NotAndOr(t *testing.T) {
	cols := productsCols()
	out, err := Translate(Request{Filter: "Code eq 'a' or Name eq 'b' and not (Code eq 'c')"},
		Options{Schema: "dbo", ObjectName: "Products", Columns: cols})
	require.NoError(t, err)
	// "not" binds tighter than "and", "and" binds tighter than "or":
	// Code eq 'a' OR (Name eq 'b' AND (NOT (Code eq 'c')))
	require.Contains(t, out.SQL, "OR")
	require.Contains(t, out.SQL, "AND")
	require.Contains(t, out.SQL, "NOT")
}

func TestFilterFunctions(t *testing.T) {
	cols := productsCols()
	out, err := Translate(Request{Filter: "contains(Name,'wid')"}, Options{Schema: "dbo", ObjectName: "Products", Columns: cols})
	require.NoError(t, err)
	require.Contains(t, out.SQL, "[Description] LIKE '%' + @p0 + '%'")
	require.Equal(t, []interface{}{"wid"}, out.Params)
}

func TestFilterStringEscaping(t *testing.T) {
	toks, err := lex(`'it''s'`)
	require.NoError(t, err)
	require.Equal(t, "it's", toks[0].text)
}

func TestFilterGUIDAndNullLiterals(t *testing.T) {
	cols := ColumnMap{AllowedColumns: []string{"Id"}}
	out, err := Translate(Request{Filter: "Id eq guid'550e8400-e29b-41d4-a716-446655440000'"},
		Options{Schema: "dbo", ObjectName: "Products", Columns: cols})
	require.NoError(t, err)
	require.Equal(t, []interface{}{"550e8400-e29b-41d4-a716-446655440000"}, out.Params)

	out2, err := Translate(Request{Filter: "Id eq null"}, Options{Schema: "dbo", ObjectName: "Products", Columns: cols})
	require.NoError(t, err)
	require.Contains(t, out2.SQL, "[Id] IS NULL")
	require.Empty(t, out2.Params)
}

func TestTopCapRejected(t *testing.T) {
	cols := productsCols()
	_, err := Translate(Request{Top: 5000}, Options{Schema: "dbo", ObjectName: "Products", Columns: cols, MaxTop: 1000})
	require.Error(t, err)
}

func TestP5_OrderByPaginationVisitsEachRowOnce(t *testing.T) {
	// Simulates two consecutive pages sharing one $orderby, confirming the
	// OFFSET/FETCH windows for page 1 (skip=0,top=2) and page 2
	// (skip=2,top=2) are disjoint and contiguous.
	cols := productsCols()
	page1, err := Translate(Request{Top: 2, Skip: 0, OrderBy: "Code"}, Options{Schema: "dbo", ObjectName: "Products", Columns: cols})
	require.NoError(t, err)
	require.Contains(t, page1.SQL, "OFFSET 0 ROWS FETCH NEXT 3 ROWS ONLY")

	page2, err := Translate(Request{Top: 2, Skip: 2, OrderBy: "Code"}, Options{Schema: "dbo", ObjectName: "Products", Columns: cols})
	require.NoError(t, err)
	require.Contains(t, page2.SQL, "OFFSET 2 ROWS FETCH NEXT 3 ROWS ONLY")
}

func TestSkipWithoutOrderByRejected(t *testing.T) {
	cols := productsCols()
	_, err := Translate(Request{Top: 2, Skip: 2}, Options{Schema: "dbo", ObjectName: "Products", Columns: cols})
	require.Error(t, err)
}
