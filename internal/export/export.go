// Package export writes feature matrices to files and streams.
package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nkoub/recordlinkage/internal/errors"
	"github.com/nkoub/recordlinkage/internal/features"
)

// Format is an output encoding.
type Format string

const (
	CSV      Format = "csv"
	JSON     Format = "json"
	Markdown Format = "markdown"
)

// ParseFormat resolves a format name.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "csv":
		return CSV, nil
	case "json":
		return JSON, nil
	case "markdown", "md":
		return Markdown, nil
	}
	return "", errors.WithHint(
		errors.Configf("unknown output format %q", name),
		"use one of: csv, json, markdown")
}

// FormatFromPath infers the format from a file extension, defaulting to
// CSV.
func FormatFromPath(path string) Format {
	f, err := ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return CSV
	}
	return f
}

// FormatValue renders a cell. Missing cells are empty; other values use
// the shortest representation that round-trips.
func FormatValue(v float64) string {
	if features.IsMissing(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Header returns the column names of a CSV export.
func Header(m *features.Matrix) []string {
	return append([]string{"id_a", "id_b"}, m.Labels()...)
}

// WriteCSV writes a header line followed by one line per row.
func WriteCSV(w io.Writer, m *features.Matrix) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(m)); err != nil {
		return errors.Wrap(err, "write csv header")
	}
	record := make([]string, 2+m.Width())
	for i, r := range m.All() {
		record[0], record[1] = r.Pair.A, r.Pair.B
		for j, v := range r.Values {
			record[2+j] = FormatValue(v)
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrapf(err, "write csv row %d", i)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush csv")
}

// WriteJSON writes the matrix as indented JSON.
func WriteJSON(w io.Writer, m *features.Matrix) error {
	data, err := m.ToJSON()
	if err != nil {
		return errors.Wrap(err, "encode json")
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return errors.Wrap(err, "write json")
	}
	return nil
}

// WriteMarkdown writes the matrix as a markdown table. Missing cells are
// rendered as a dash.
func WriteMarkdown(w io.Writer, m *features.Matrix) error {
	bw := bufio.NewWriter(w)
	header := Header(m)
	fmt.Fprintf(bw, "| %s |\n", strings.Join(header, " | "))
	fmt.Fprintf(bw, "|%s\n", strings.Repeat("------|", len(header)))

	cells := make([]string, len(header))
	for _, r := range m.All() {
		cells[0], cells[1] = escapeCell(r.Pair.A), escapeCell(r.Pair.B)
		for j, v := range r.Values {
			if features.IsMissing(v) {
				cells[2+j] = "-"
			} else {
				cells[2+j] = FormatValue(v)
			}
		}
		fmt.Fprintf(bw, "| %s |\n", strings.Join(cells, " | "))
	}
	return errors.Wrap(bw.Flush(), "write markdown")
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// Write encodes the matrix in the given format.
func Write(w io.Writer, f Format, m *features.Matrix) error {
	switch f {
	case CSV:
		return WriteCSV(w, m)
	case JSON:
		return WriteJSON(w, m)
	case Markdown:
		return WriteMarkdown(w, m)
	}
	_, err := ParseFormat(string(f))
	return err
}

// WriteFile writes the matrix to path. An empty format is inferred from
// the extension. The file is written to a temporary sibling first and
// renamed into place, so readers never see a partial export.
func WriteFile(path string, f Format, m *features.Matrix) (err error) {
	if f == "" {
		f = FormatFromPath(path)
	}
	if _, err := ParseFormat(string(f)); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()
	if err = Write(tmp, f, m); err != nil {
		return err
	}
	if err = tmp.Chmod(0o644); err != nil {
		return errors.Wrapf(err, "chmod %s", tmp.Name())
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmp.Name())
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "rename to %s", path)
	}
	return nil
}
