package testkit

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// WriteFiles generates the model's data and writes it under dir in the
// on-disk layout the CLI reads: <name>_binerized.csv with a leading unnamed
// index column, and <name>_binary.net.txt.
func (s ModelSpec) WriteFiles(dir, name string) error {
	net, table, err := s.Generate()
	if err != nil {
		return err
	}

	// 1. Network description
	var b strings.Builder
	fmt.Fprintf(&b, "%s network\n", name)
	fmt.Fprintf(&b, "%s %d\n", net.Target, net.TargetValue)
	for _, f := range net.Features {
		flag := 0
		if f.Sensitive {
			flag = 1
		}
		fmt.Fprintf(&b, "%s %d\n", f.Name, flag)
	}
	if err := os.WriteFile(filepath.Join(dir, name+"_binary.net.txt"), []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write network file: %w", err)
	}

	// 2. Dataset
	f, err := os.Create(filepath.Join(dir, name+"_binerized.csv"))
	if err != nil {
		return fmt.Errorf("failed to create dataset file: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(append([]string{""}, table.Header...)); err != nil {
		f.Close()
		return err
	}
	record := make([]string, len(table.Header)+1)
	for i, row := range table.Rows {
		record[0] = strconv.Itoa(i)
		for j, v := range row {
			record[j+1] = strconv.Itoa(v)
		}
		if err := w.Write(record); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write dataset file: %w", err)
	}
	return f.Close()
}
