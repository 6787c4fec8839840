// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package sqlgen

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ga-tools/poliops-transfer/internal/catalog"
)

// columnSeparator matches the layout of the legacy report queries.
const columnSeparator = ",  \n"

var identifierRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ReportQuery builds the SELECT for one company's report and returns it with its
// single parameter, the start of the fiscal range in ODBC canonical form.
// The restricted column list is used only when the report asks for it and the
// company has one; otherwise every column is selected.
func ReportQuery(company catalog.Company, report catalog.Report) (string, []interface{}, error) {
	if !identifierRE.MatchString(company.DBName) {
		return "", nil, fmt.Errorf("invalid database name %q", company.DBName)
	}
	if !identifierRE.MatchString(report.TableName) {
		return "", nil, fmt.Errorf("invalid table name %q", report.TableName)
	}

	columns := "*"
	if report.HasMDAColumns && company.MDAColumns != nil {
		quoted := make([]string, len(company.MDAColumns))
		for i, col := range company.MDAColumns {
			quoted[i] = QuoteIdentifier(col)
		}
		columns = strings.Join(quoted, columnSeparator)
	}

	query := fmt.Sprintf(`SELECT %s
FROM %s.dbo.%s
WHERE [Date] >= CONVERT(datetime, @p1, 120)
ORDER BY dex_row_ts DESC`,
		columns, company.DBName, report.TableName)

	return query, []interface{}{company.DateFrom + " 00:00:00.000"}, nil
}

// QuoteIdentifier bracket-quotes a SQL Server identifier.
func QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}
