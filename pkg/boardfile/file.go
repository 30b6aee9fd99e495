package boardfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Decode reads a whole document from r.
func Decode(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading board: %w", err)
	}
	return Parse(data)
}

// Encode writes doc to w at CurrentVersion.
func Encode(w io.Writer, doc *Document, pretty bool) error {
	data, err := Marshal(doc, pretty)
	if err != nil {
		return err
	}
	if pretty {
		data = append(data, '\n')
	}
	_, err = w.Write(data)
	return err
}

// ReadFile loads a board document from disk.
func ReadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// FileMode is the permission given to newly created board files.
const FileMode os.FileMode = 0o644

// WriteFile saves doc to path. The file is written to a temporary sibling
// and renamed so a failed save never truncates an existing board. An
// existing board keeps its permissions; a new one gets FileMode.
func WriteFile(path string, doc *Document) error {
	data, err := Marshal(doc, true)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".board-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	mode := FileMode
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// ErrNoHeader is returned by ImportCSV for input without a header row.
var ErrNoHeader = errors.New("csv has no header row")

// ImportCSV reads tabular rows keyed by the header row. Blank header
// cells are named "Column N". Short rows leave missing keys empty.
func ImportCSV(r io.Reader) ([]map[string]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			h = fmt.Sprintf("Column %d", i+1)
		}
		header[i] = h
	}

	var rows []map[string]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ParseError{Err: err}
		}
		if isBlank(rec) {
			continue
		}
		row := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(rec) {
				row[h] = strings.TrimSpace(rec[i])
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
