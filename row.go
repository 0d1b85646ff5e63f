package oracle

import (
	"fmt"

	"github.com/sijms-go-ora-thin/oracle/internal/ttc"
)

// rowMeta is the one column-metadata record per cursor. Every Row holds a
// pointer to it rather than a copy: downstream equality and charset checks
// rely on identity, so copying per row would be a defect, not an
// optimization miss.
type rowMeta struct {
	columns []ttc.ColumnMetadata
	names   []string
}

func newRowMeta(columns []ttc.ColumnMetadata) *rowMeta {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return &rowMeta{columns: columns, names: names}
}

// Row is one decoded result row. It references its cursor's shared column
// metadata; the values themselves are owned by the caller once yielded.
type Row struct {
	meta   *rowMeta
	values []Value
}

// ColumnNames returns the projected column names, in select-list order.
func (r *Row) ColumnNames() []string { return r.meta.names }

// Len returns the number of columns.
func (r *Row) Len() int { return len(r.values) }

// Get returns the value at column index i.
func (r *Row) Get(i int) Value { return r.values[i] }

// GetByName returns the value of the named column, or a Null value when no
// column has that name.
func (r *Row) GetByName(name string) Value {
	for i, n := range r.meta.names {
		if n == name {
			return r.values[i]
		}
	}
	return Value{}
}

func (r *Row) String() string {
	return fmt.Sprintf("Row%v", r.values)
}

// RowSet is a fully materialized query result, for results small enough to
// hold in memory; Session.Query produces one. All rows share one metadata
// record.
type RowSet struct {
	meta *rowMeta
	rows []Row
}

// ColumnNames returns the projected column names.
func (rs *RowSet) ColumnNames() []string { return rs.meta.names }

// Len returns the number of rows.
func (rs *RowSet) Len() int { return len(rs.rows) }

// Rows returns the materialized rows.
func (rs *RowSet) Rows() []Row { return rs.rows }

// Row returns row i.
func (rs *RowSet) Row(i int) *Row { return &rs.rows[i] }
