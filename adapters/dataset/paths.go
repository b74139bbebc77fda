package dataset

import (
	"os"
	"path/filepath"
)

// TablePath returns the binarized dataset of name under dir. The CSV file
// wins; an .xlsx file with the same stem is used when no CSV exists.
func TablePath(dir, name string) string {
	csvPath := filepath.Join(dir, name+"_binerized.csv")
	if _, err := os.Stat(csvPath); err == nil {
		return csvPath
	}
	xlsxPath := filepath.Join(dir, name+"_binerized.xlsx")
	if _, err := os.Stat(xlsxPath); err == nil {
		return xlsxPath
	}
	return csvPath
}

// NetworkPath returns the network description of name under dir.
func NetworkPath(dir, name string) string {
	return filepath.Join(dir, name+"_binary.net.txt")
}
