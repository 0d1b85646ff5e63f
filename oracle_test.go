package oracle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sijms-go-ora-thin/oracle/internal/oratype"
	"github.com/sijms-go-ora-thin/oracle/internal/protocol"
	"github.com/sijms-go-ora-thin/oracle/internal/ttc"
)

func testCursor(t *testing.T, rows []ttc.Row) *Cursor {
	t.Helper()
	caps := protocol.NewCapabilities()
	stmt := ttc.NewStatement(nil, caps, nil, "SELECT id, name FROM t", false)
	stmt.Columns = []ttc.ColumnMetadata{
		{Name: "ID", OracleType: oratype.TypeNumber},
		{Name: "NAME", OracleType: oratype.TypeVarchar2},
	}
	c := &Cursor{stmt: stmt, meta: newRowMeta(stmt.Columns)}
	c.buf = c.adoptRows(rows)
	return c
}

func sampleRows(n int) []ttc.Row {
	rows := make([]ttc.Row, n)
	for i := range rows {
		rows[i] = ttc.Row{Values: []oratype.Value{
			oratype.NumberValue("1"),
			oratype.TextValue("VariableChar"),
		}}
	}
	return rows
}

// Every row of a cursor references the same metadata record; identity, not
// equality, is the contract.
func TestRowsShareOneMetadataRecord(t *testing.T) {
	c := testCursor(t, sampleRows(5))
	var seen []*rowMeta
	for {
		row, err := c.Next()
		require.NoError(t, err)
		if row == nil {
			break
		}
		seen = append(seen, row.meta)
	}
	require.Len(t, seen, 5)
	for _, m := range seen {
		assert.Same(t, seen[0], m)
	}
}

func TestCursorNextIsTerminalAfterExhaustion(t *testing.T) {
	c := testCursor(t, sampleRows(1))
	row, err := c.Next()
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, []string{"ID", "NAME"}, row.ColumnNames())
	assert.Equal(t, "1", row.Get(0).Text)

	for i := 0; i < 3; i++ {
		row, err = c.Next()
		require.NoError(t, err)
		assert.Nil(t, row, "exhaustion is terminal")
	}
}

func TestRowStreamConsumesCursorInPlace(t *testing.T) {
	c := testCursor(t, sampleRows(3))
	first, err := c.Next()
	require.NoError(t, err)
	require.NotNil(t, first)

	stream := c.IntoStream()
	count := 0
	for {
		row, err := stream.Next()
		require.NoError(t, err)
		if row == nil {
			break
		}
		count++
	}
	assert.Equal(t, 2, count, "rows taken before IntoStream are not replayed")
}

func TestRowGetByName(t *testing.T) {
	c := testCursor(t, sampleRows(1))
	row, err := c.Next()
	require.NoError(t, err)
	assert.Equal(t, "VariableChar", row.GetByName("NAME").Text)
	assert.True(t, row.GetByName("MISSING").IsNull())
}

func TestNullIsDistinctFromEmptyText(t *testing.T) {
	null := oratype.Null()
	empty := oratype.TextValue("")
	assert.True(t, null.IsNull())
	assert.False(t, empty.IsNull())
	assert.NotEqual(t, null.Kind, empty.Kind)
}

func TestErrorTaxonomy(t *testing.T) {
	oraErr := &Error{Kind: ErrOracle, Code: 942, Message: "ORA-00942: table or view does not exist"}
	assert.True(t, IsOracleError(oraErr, 942))
	assert.False(t, IsOracleError(oraErr, 1017))
	assert.Contains(t, oraErr.Error(), "ORA-00942")

	lobErr := &Error{Kind: ErrLobTooLarge, Actual: 1 << 30, Limit: 1 << 20}
	assert.Contains(t, lobErr.Error(), "exceeds")

	protoErr := protocolError("fetch", errors.New("short read"))
	assert.Equal(t, ErrProtocol, protoErr.Kind)
	assert.Contains(t, protoErr.Error(), "fetch")

	wrapped := ioError(errors.New("connection reset"))
	var e *Error
	require.ErrorAs(t, error(wrapped), &e)
	assert.Equal(t, ErrIo, e.Kind)
	assert.EqualError(t, errors.Unwrap(wrapped), "connection reset")
}

func TestConnectRejectsBadDescriptor(t *testing.T) {
	_, err := Connect("(DESCRIPTION=(ADDRESS=(PORT=1521)))", "scott", "tiger")
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, ErrInvalidConnectString, e.Kind)
}

func TestReadClobLimitedRejectsOversized(t *testing.T) {
	c := testCursor(t, nil)
	loc := oratype.NewLobLocator(make([]byte, 40), 2048, 8132, oratype.LobClob)
	_, err := c.ReadClobLimited(loc, 1024)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, ErrLobTooLarge, e.Kind)
	assert.Equal(t, uint64(2048), e.Actual)
	assert.Equal(t, uint64(1024), e.Limit)
}

func TestLobLocatorSizeHelpers(t *testing.T) {
	loc := oratype.NewLobLocator(make([]byte, 40), 1536, 8132, oratype.LobClob)
	assert.Equal(t, uint64(1536), loc.Size())
	assert.Equal(t, "1.5 KiB", loc.SizeHuman())
	assert.True(t, loc.Exceeds(1024))
	assert.False(t, loc.Exceeds(2048))
}
