package record

import "fmt"

// Appender is the abstract row-appender interface from spec §6:
// begin_row/append_column/end_row against a named table. The core treats
// the sink behind it as borrowed for the duration of a tick (spec §5).
type Appender interface {
	BeginRow(table string) error
	AppendColumn(index int, value interface{}) error
	EndRow() error
}

func columnsFor(table string) ([]string, error) {
	switch table {
	case TableMySQL:
		return mysqlColumns, nil
	case TableHTTP:
		return httpColumns, nil
	default:
		return nil, fmt.Errorf("record: unknown table %q", table)
	}
}
