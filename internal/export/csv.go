package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteCSV writes the sheet with a header row
func WriteCSV(w io.Writer, s Sheet) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(s.Columns); err != nil {
		return err
	}
	for i := range s.Rows {
		if err := writer.Write(s.Record(i)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteCSVFiles writes one <name>.csv per sheet into dir and returns the paths
func WriteCSVFiles(dir string, sheets []Sheet) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}

	paths := make([]string, 0, len(sheets))
	for _, s := range sheets {
		path := filepath.Join(dir, s.Name+".csv")
		if err := writeFile(path, func(w io.Writer) error { return WriteCSV(w, s) }); err != nil {
			return paths, fmt.Errorf("write %s: %w", s.Name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
