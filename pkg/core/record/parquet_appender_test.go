package record

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParquetAppender_RejectsUnknownTable(t *testing.T) {
	dir := t.TempDir()
	a, err := NewParquetAppender(filepath.Join(dir, "mysql.parquet"), filepath.Join(dir, "http.parquet"))
	require.NoError(t, err)
	defer a.Close()

	assert.Error(t, a.BeginRow("not-a-table"))
}

func TestParquetAppender_AppendColumnRequiresBeginRow(t *testing.T) {
	dir := t.TempDir()
	a, err := NewParquetAppender(filepath.Join(dir, "mysql.parquet"), filepath.Join(dir, "http.parquet"))
	require.NoError(t, err)
	defer a.Close()

	assert.Error(t, a.AppendColumn(0, "x"))
}

func TestParquetAppender_WriteRowAndClose(t *testing.T) {
	dir := t.TempDir()
	mysqlPath := filepath.Join(dir, "mysql.parquet")
	httpPath := filepath.Join(dir, "http.parquet")
	a, err := NewParquetAppender(mysqlPath, httpPath)
	require.NoError(t, err)

	require.NoError(t, a.BeginRow(TableMySQL))
	for i, v := range []interface{}{int64(1), uint32(2), int32(3), "request", "127.0.0.1", uint16(3306), "SELECT 1"} {
		require.NoError(t, a.AppendColumn(i, v))
	}
	require.NoError(t, a.EndRow())

	require.NoError(t, a.Close())

	_, err = os.Stat(mysqlPath)
	assert.NoError(t, err)
	_, err = os.Stat(httpPath)
	assert.NoError(t, err)
}

func TestParquetAppender_ColumnIndexOutOfRange(t *testing.T) {
	dir := t.TempDir()
	a, err := NewParquetAppender(filepath.Join(dir, "mysql.parquet"), filepath.Join(dir, "http.parquet"))
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.BeginRow(TableMySQL))
	assert.Error(t, a.AppendColumn(99, "x"))
}
