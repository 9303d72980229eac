package adapter

import (
	"strings"

	"github.com/nkoub/recordlinkage/internal/errors"
)

type dialect interface {
	quote(ident string) string
	columnsQuery(schema, table string) (string, []interface{})
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "mysql":
		return mysqlDialect{}, nil
	case "sqlserver":
		return sqlServerDialect{}, nil
	case "sqlite3":
		return sqliteDialect{}, nil
	default:
		return nil, errors.WithHint(
			errors.Configf("unsupported database driver %q", driver),
			"use mysql, sqlserver or sqlite3")
	}
}

type mysqlDialect struct{}

func (mysqlDialect) quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (mysqlDialect) columnsQuery(schema, table string) (string, []interface{}) {
	query := `
		SELECT COLUMN_NAME
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE()) AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`
	return query, []interface{}{schema, table}
}

type sqlServerDialect struct{}

func (sqlServerDialect) quote(ident string) string {
	return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
}

func (sqlServerDialect) columnsQuery(schema, table string) (string, []interface{}) {
	if schema == "" {
		schema = "dbo"
	}
	query := `
		SELECT c.COLUMN_NAME
		FROM INFORMATION_SCHEMA.COLUMNS c
		WHERE c.TABLE_SCHEMA = @p1 AND c.TABLE_NAME = @p2
		ORDER BY c.ORDINAL_POSITION
	`
	return query, []interface{}{schema, table}
}

type sqliteDialect struct{}

func (sqliteDialect) quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (sqliteDialect) columnsQuery(_, table string) (string, []interface{}) {
	return `SELECT name FROM pragma_table_info(?) ORDER BY cid`, []interface{}{table}
}
