package adapter

import (
	"database/sql"

	"github.com/nkoub/recordlinkage/internal/errors"
)

// Collection 记录集合接口（只读，有序）
type Collection interface {
	// Name 集合名称，用于日志和错误
	Name() string

	// IDs 按集合顺序返回记录ID
	IDs() []string

	// Len 记录数
	Len() int

	// Columns 属性列名
	Columns() []string

	// HasColumn 是否有该列
	HasColumn(name string) bool

	// Value 取属性值，空值或记录/列不存在时返回 false
	Value(id, attribute string) (string, bool)
}

// KeyedValue 列中的一个值
type KeyedValue struct {
	ID    string
	Value string
	Valid bool
}

// Column 按记录顺序取出一列
func Column(c Collection, attribute string) ([]KeyedValue, error) {
	if err := RequireColumns(c, attribute); err != nil {
		return nil, err
	}
	ids := c.IDs()
	out := make([]KeyedValue, len(ids))
	for i, id := range ids {
		v, ok := c.Value(id, attribute)
		out[i] = KeyedValue{ID: id, Value: v, Valid: ok}
	}
	return out, nil
}

// RequireColumns 检查列是否存在，缺失时返回 data error
func RequireColumns(c Collection, attributes ...string) error {
	for _, attr := range attributes {
		if !c.HasColumn(attr) {
			return errors.WithHintf(
				errors.Dataf("attribute %q not found in collection %q", attr, c.Name()),
				"available attributes: %v", c.Columns())
		}
	}
	return nil
}

// Table 内存表
type Table struct {
	name    string
	columns []string
	colIdx  map[string]int
	ids     []string
	pos     map[string]int
	rows    [][]sql.NullString
}

// NewTable 创建空表
func NewTable(name string, columns []string) (*Table, error) {
	colIdx := make(map[string]int, len(columns))
	for i, col := range columns {
		if col == "" {
			return nil, errors.Dataf("table %q: empty column name at position %d", name, i)
		}
		if _, dup := colIdx[col]; dup {
			return nil, errors.Dataf("table %q: duplicate column %q", name, col)
		}
		colIdx[col] = i
	}
	return &Table{
		name:    name,
		columns: append([]string(nil), columns...),
		colIdx:  colIdx,
		pos:     make(map[string]int),
	}, nil
}

// Append 添加记录，未给出的属性为空值
func (t *Table) Append(id string, values map[string]string) error {
	row := make([]sql.NullString, len(t.columns))
	for attr, v := range values {
		i, ok := t.colIdx[attr]
		if !ok {
			return errors.Dataf("table %q: record %q sets unknown attribute %q", t.name, id, attr)
		}
		row[i] = sql.NullString{String: v, Valid: true}
	}
	return t.AppendRow(id, row)
}

// AppendRow 按列顺序添加记录
func (t *Table) AppendRow(id string, row []sql.NullString) error {
	if len(row) != len(t.columns) {
		return errors.Dataf("table %q: record %q has %d values, schema has %d columns",
			t.name, id, len(row), len(t.columns))
	}
	if _, dup := t.pos[id]; dup {
		return errors.Dataf("table %q: duplicate record id %q", t.name, id)
	}
	t.pos[id] = len(t.ids)
	t.ids = append(t.ids, id)
	t.rows = append(t.rows, row)
	return nil
}

func (t *Table) Name() string { return t.name }

// IDs 返回的切片不可修改
func (t *Table) IDs() []string { return t.ids }

func (t *Table) Len() int { return len(t.ids) }

func (t *Table) Columns() []string { return append([]string(nil), t.columns...) }

func (t *Table) HasColumn(name string) bool {
	_, ok := t.colIdx[name]
	return ok
}

func (t *Table) Value(id, attribute string) (string, bool) {
	p, ok := t.pos[id]
	if !ok {
		return "", false
	}
	i, ok := t.colIdx[attribute]
	if !ok {
		return "", false
	}
	v := t.rows[p][i]
	return v.String, v.Valid
}

// Position 记录在集合中的位置（从0开始）
func (t *Table) Position(id string) (int, bool) {
	p, ok := t.pos[id]
	return p, ok
}
