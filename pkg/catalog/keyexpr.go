package catalog

import (
	"fmt"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
)

// KeyColumn extracts the column referenced by a serialized partition key
// expression. The catalog stores the key as an expression so it can grow
// richer forms later, but today only plain column references are valid
// distribution keys.
func KeyColumn(expr string) (string, error) {
	p := parser.New()
	stmt, err := p.ParseOneStmt("SELECT "+expr, "", "")
	if err != nil {
		return "", fmt.Errorf("could not parse partition key expression %q: %w", expr, err)
	}
	sel, ok := stmt.(*ast.SelectStmt)
	if !ok || sel.Fields == nil || len(sel.Fields.Fields) != 1 {
		return "", fmt.Errorf("partition key expression %q must be a single column reference", expr)
	}
	col, ok := sel.Fields.Fields[0].Expr.(*ast.ColumnNameExpr)
	if !ok {
		return "", fmt.Errorf("partition key expression %q must be a single column reference", expr)
	}
	return col.Name.Name.O, nil
}
