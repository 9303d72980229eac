package adapter

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nkoub/recordlinkage/internal/errors"
)

// TableQuery 表查询参数
type TableQuery struct {
	// Name 结果表名，默认为 Table
	Name string
	// Schema 可选，MySQL 默认当前库，SQL Server 默认 dbo
	Schema string
	Table  string
	// IDColumn 记录ID列（必填）
	IDColumn string
	// Columns 加载的列，为空时加载除ID外全部列
	Columns []string
	// Where 过滤条件，原样拼接
	Where string
}

// SQLSource 数据库数据源
type SQLSource struct {
	db      *sql.DB
	dialect dialect
}

// OpenSQL 连接数据库（mysql/sqlserver/sqlite3）
func OpenSQL(driver, dsn string) (*SQLSource, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", driver)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "ping %s", driver)
	}
	return &SQLSource{db: db, dialect: d}, nil
}

// NewSQLSource 使用已有连接
func NewSQLSource(db *sql.DB, driver string) (*SQLSource, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	return &SQLSource{db: db, dialect: d}, nil
}

// Columns 获取表的列
func (s *SQLSource) Columns(ctx context.Context, schema, table string) ([]string, error) {
	query, args := s.dialect.columnsQuery(schema, table)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "list columns of %s", table)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrapf(err, "scan column of %s", table)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "list columns of %s", table)
	}
	if len(columns) == 0 {
		return nil, errors.Dataf("table %q has no columns or does not exist", table)
	}
	return columns, nil
}

// LoadTable 读取整表到内存，NULL 为空值
func (s *SQLSource) LoadTable(ctx context.Context, q TableQuery) (*Table, error) {
	if q.Table == "" || q.IDColumn == "" {
		return nil, errors.Configf("sql source requires table and id column")
	}

	columns := q.Columns
	if len(columns) == 0 {
		all, err := s.Columns(ctx, q.Schema, q.Table)
		if err != nil {
			return nil, err
		}
		for _, c := range all {
			if c != q.IDColumn {
				columns = append(columns, c)
			}
		}
	}

	name := q.Name
	if name == "" {
		name = q.Table
	}
	table, err := NewTable(name, columns)
	if err != nil {
		return nil, err
	}

	query := s.selectQuery(q, columns)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, "query %s", q.Table)
	}
	defer rows.Close()

	for rows.Next() {
		var id sql.NullString
		row := make([]sql.NullString, len(columns))
		dest := make([]interface{}, 0, len(columns)+1)
		dest = append(dest, &id)
		for i := range row {
			dest = append(dest, &row[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrapf(err, "scan %s", q.Table)
		}
		if !id.Valid {
			return nil, errors.Dataf("table %q: null value in id column %q", q.Table, q.IDColumn)
		}
		if err := table.AppendRow(id.String, row); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "query %s", q.Table)
	}
	return table, nil
}

func (s *SQLSource) selectQuery(q TableQuery, columns []string) string {
	quoted := make([]string, 0, len(columns)+1)
	quoted = append(quoted, s.dialect.quote(q.IDColumn))
	for _, c := range columns {
		quoted = append(quoted, s.dialect.quote(c))
	}

	from := s.dialect.quote(q.Table)
	if q.Schema != "" {
		from = s.dialect.quote(q.Schema) + "." + from
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(quoted, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(from)
	if q.Where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(q.Where)
	}
	// 固定顺序
	sb.WriteString(" ORDER BY ")
	sb.WriteString(s.dialect.quote(q.IDColumn))
	return sb.String()
}

// Close 关闭连接
func (s *SQLSource) Close() error {
	return s.db.Close()
}
