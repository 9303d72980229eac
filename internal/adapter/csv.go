package adapter

import (
	"database/sql"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nkoub/recordlinkage/internal/errors"
)

// CSVOptions CSV 读取选项
type CSVOptions struct {
	// Name 表名，默认为文件名
	Name string
	// IDColumn 记录ID列，为空时用行号（从0开始）
	IDColumn string
	// Columns 加载的列，为空时全部加载
	Columns []string
	// NullValues 视为空值的内容，默认空字符串
	NullValues []string
	// Comma 分隔符，默认 ','
	Comma rune
}

// LoadCSVFile 读取带表头的 CSV 文件
func LoadCSVFile(path string, opts CSVOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	if opts.Name == "" {
		opts.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return LoadCSV(f, opts)
}

// LoadCSV 从 r 读取带表头的 CSV
func LoadCSV(r io.Reader, opts CSVOptions) (*Table, error) {
	reader := csv.NewReader(r)
	if opts.Comma != 0 {
		reader.Comma = opts.Comma
	}
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.Dataf("csv %q: missing header row", opts.Name)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "csv %q: read header", opts.Name)
	}
	header = append([]string(nil), header...)

	headerIdx := make(map[string]int, len(header))
	for i, h := range header {
		headerIdx[strings.TrimSpace(h)] = i
	}

	idIdx := -1
	if opts.IDColumn != "" {
		i, ok := headerIdx[opts.IDColumn]
		if !ok {
			return nil, errors.Dataf("csv %q: id column %q not in header", opts.Name, opts.IDColumn)
		}
		idIdx = i
	}

	columns := opts.Columns
	if len(columns) == 0 {
		for _, h := range header {
			h = strings.TrimSpace(h)
			if h != opts.IDColumn {
				columns = append(columns, h)
			}
		}
	}
	fieldIdx := make([]int, len(columns))
	for i, col := range columns {
		idx, ok := headerIdx[col]
		if !ok {
			return nil, errors.Dataf("csv %q: column %q not in header", opts.Name, col)
		}
		fieldIdx[i] = idx
	}

	nulls := opts.NullValues
	if len(nulls) == 0 {
		nulls = []string{""}
	}
	isNull := make(map[string]bool, len(nulls))
	for _, n := range nulls {
		isNull[n] = true
	}

	table, err := NewTable(opts.Name, columns)
	if err != nil {
		return nil, err
	}

	for rowNum := 0; ; rowNum++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "csv %q: read row %d", opts.Name, rowNum)
		}

		id := strconv.Itoa(rowNum)
		if idIdx >= 0 {
			id = record[idIdx]
			if isNull[id] {
				return nil, errors.Dataf("csv %q: row %d has null id", opts.Name, rowNum)
			}
		}

		row := make([]sql.NullString, len(columns))
		for i, idx := range fieldIdx {
			cell := record[idx]
			if !isNull[cell] {
				row[i] = sql.NullString{String: cell, Valid: true}
			}
		}
		if err := table.AppendRow(id, row); err != nil {
			return nil, err
		}
	}
	return table, nil
}
