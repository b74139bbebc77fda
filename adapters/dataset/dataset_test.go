package dataset

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"fairnb/domain/core"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadTable_CSV(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "toy_binerized.csv", ",income, sex_,age\n0,1,0,1\n1,0,1,1\n\n2,1,1,0\n")

	table, err := NewTableReader(nil).ReadTable(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"income", "sex", "age"}, table.Header)
	assert.Equal(t, 3, table.Len())
	assert.Equal(t, []int{0, 1, 1}, table.Rows[1])
	idx, ok := table.Column("sex")
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestReadTable_CSVWithoutIndex(t *testing.T) {
	path := writeFile(t, t.TempDir(), "plain.csv", "y,a\n1,0\n0,1.0\n")

	table, err := NewTableReader(nil).ReadTable(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "a"}, table.Header)
	assert.Equal(t, [][]int{{1, 0}, {0, 1}}, table.Rows)
}

func TestReadTable_XLSX(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "toy_binerized.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"income", "sex_"},
		{1, 0},
		{0, 1},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	table, err := NewTableReader(nil).ReadTable(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"income", "sex"}, table.Header)
	assert.Equal(t, [][]int{{1, 0}, {0, 1}}, table.Rows)
}

func TestReadTable_Errors(t *testing.T) {
	dir := t.TempDir()
	reader := NewTableReader(nil)

	_, err := reader.ReadTable(filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)

	path := writeFile(t, dir, "bad.csv", "y,a\n1,yes\n")
	_, err = reader.ReadTable(path)
	assert.ErrorIs(t, err, core.ErrNonBinaryValue)
	assert.True(t, core.IsInputError(err))

	path = writeFile(t, dir, "dup.csv", "y,a,a_\n1,0,1\n")
	_, err = reader.ReadTable(path)
	assert.ErrorIs(t, err, core.ErrMalformedInput)

	path = writeFile(t, dir, "empty.csv", "")
	_, err = reader.ReadTable(path)
	assert.ErrorIs(t, err, core.ErrMalformedInput)
}

func TestNormalizeColumn(t *testing.T) {
	assert.Equal(t, "race", NormalizeColumn(" race_ "))
	assert.Equal(t, "race_", NormalizeColumn("race__"))
	assert.Equal(t, "age", NormalizeColumn("age"))
}

func TestParseNetwork(t *testing.T) {
	src := strings.Join([]string{
		"network adult",
		"income 1",
		"sex_ 1",
		"",
		"age 0",
		"comment",
		"race 1",
	}, "\n")

	net, err := ParseNetwork(bufio.NewScanner(strings.NewReader(src)))
	require.NoError(t, err)

	assert.Equal(t, "income", net.Target)
	assert.Equal(t, 1, net.TargetValue)
	assert.Equal(t, []string{"sex", "age", "race"}, net.LeafNames())
	assert.Equal(t, []int{0, 2}, net.SensitiveIDs())
}

func TestParseNetwork_Errors(t *testing.T) {
	cases := map[string]string{
		"no features": "header only\n",
		"bad flag":    "h\ny 1\na x\n",
		"bad target":  "h\ny 2\na 1\n",
		"duplicate":   "h\ny 1\na 0\na 1\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseNetwork(bufio.NewScanner(strings.NewReader(src)))
			assert.ErrorIs(t, err, core.ErrMalformedInput)
		})
	}
}

func TestReadNetworkAndPaths(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "toy_binary.net.txt", "net\ny 0\na 1\n")

	net, err := NetworkFileReader{}.ReadNetwork(NetworkPath(dir, "toy"))
	require.NoError(t, err)
	assert.Equal(t, 0, net.TargetValue)

	assert.Equal(t, filepath.Join(dir, "toy_binerized.csv"), TablePath(dir, "toy"))
	writeFile(t, dir, "toy_binerized.xlsx", "")
	assert.Equal(t, filepath.Join(dir, "toy_binerized.xlsx"), TablePath(dir, "toy"))
	writeFile(t, dir, "toy_binerized.csv", "y\n1\n")
	assert.Equal(t, filepath.Join(dir, "toy_binerized.csv"), TablePath(dir, "toy"))

	_, err = NetworkFileReader{}.ReadNetwork(filepath.Join(dir, "nope.txt"))
	assert.Error(t, err)
}
