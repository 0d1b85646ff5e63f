package ttc

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sijms-go-ora-thin/oracle/internal/oratype"
	"github.com/sijms-go-ora-thin/oracle/internal/protocol"
	"github.com/sijms-go-ora-thin/oracle/internal/wire"
)

func TestClassify(t *testing.T) {
	cases := map[string]StmtKind{
		"SELECT 1 FROM dual":                 KindSelect,
		"  with x as (select 1) select *":    KindSelect,
		"UPDATE t SET a = 1":                 KindDML,
		"insert into t values (1)":           KindDML,
		"DELETE FROM t":                      KindDML,
		"BEGIN NULL; END;":                   KindPLSQL,
		"declare x number; begin null; end;": KindPLSQL,
		"ALTER SESSION SET x = y":            KindOther,
	}
	for sql, want := range cases {
		assert.Equal(t, want, classify(sql), sql)
	}
}

func TestExeOptionBits(t *testing.T) {
	caps := protocol.NewCapabilities()
	st := NewStatement(nil, caps, nil, "SELECT id FROM t", false)
	op := st.exeOption(25)
	assert.NotZero(t, op&ExecOptionParse, "first execute parses")
	assert.NotZero(t, op&ExecOptionExecute)
	assert.NotZero(t, op&ExecOptionNotPLSQL)
	assert.Zero(t, op&ExecOptionCommit)

	st.parsed = true
	op = st.exeOption(25)
	assert.Zero(t, op&ExecOptionParse, "reparsing an open cursor is skipped")
}

func TestValidateColumnsRejectsUnknownType(t *testing.T) {
	err := validateColumns([]ColumnMetadata{
		{Name: "ID", OracleType: oratype.TypeNumber},
		{Name: "GEOM", OracleType: 127},
	})
	var ute *UnsupportedTypeError
	require.ErrorAs(t, err, &ute)
	assert.Equal(t, "GEOM", ute.Column)
	assert.Equal(t, 127, ute.TypeNum)

	assert.NoError(t, validateColumns([]ColumnMetadata{
		{Name: "A", OracleType: oratype.TypeVarchar2},
		{Name: "B", OracleType: oratype.TypeCLOB},
		{Name: "C", OracleType: oratype.TypeTimestampTZ},
	}))
}

// serveResponse writes one DATA packet carrying body after draining the
// client's request bytes.
func serveResponse(t *testing.T, server net.Conn, body []byte) {
	t.Helper()
	head := make([]byte, 8)
	if _, err := readFullConn(server, head); err != nil {
		return
	}
	reqLen := int(binary.BigEndian.Uint16(head))
	rest := make([]byte, reqLen-8)
	if _, err := readFullConn(server, rest); err != nil {
		return
	}
	payload := append([]byte{0, 0}, body...)
	pkt := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint16(pkt[0:], uint16(len(pkt)))
	pkt[4] = 6 // DATA
	copy(pkt[8:], payload)
	server.Write(pkt)
}

func readFullConn(c net.Conn, buf []byte) (int, error) {
	got := 0
	for got < len(buf) {
		n, err := c.Read(buf[got:])
		if err != nil {
			return got, err
		}
		got += n
	}
	return got, nil
}

// TestFetchDecodesRowsAndRecoversEndOfFetch drives a FETCH response through
// the dispatcher: row header, one row, then the 1403 completion record. The
// caller sees the row and a terminated cursor, never an error.
func TestFetchDecodesRowsAndRecoversEndOfFetch(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	w := wire.NewWriteBuffer()
	w.PutByte(MsgTypeRowHeader)
	w.PutByte(0) // flags
	w.PutUB(1)   // num requests
	w.PutUB(0)   // iteration number
	w.PutUB(1)   // num iters
	w.PutUB(0)   // buffer length
	w.PutUB(0)   // bit vector length
	w.PutUB(0)   // rxhrid length
	w.PutByte(MsgTypeRowData)
	w.PutCLR([]byte{0xC1, 0x02}) // NUMBER 1
	w.PutByte(MsgTypeError)
	w.PutBytes(buildErrorBody(3, 1403, 1, "ORA-01403: no data found", 12))

	go serveResponse(t, server, w.Bytes())

	caps := protocol.NewCapabilities()
	caps.ServerTTCFieldVersion = 12
	session := wire.NewSession(wire.NewConn(client))
	st := NewStatement(session, caps, nil, "SELECT id FROM sample_datatypes_tbl", false)
	st.Columns = []ColumnMetadata{{Name: "ID", OracleType: oratype.TypeNumber}}

	rows, err := st.Fetch(25)
	require.NoError(t, err, "1403 must not surface as an error")
	require.Len(t, rows, 1)
	assert.Equal(t, oratype.KindNumber, rows[0].Values[0].Kind)
	assert.Equal(t, "1", rows[0].Values[0].Text)
	assert.False(t, st.HasMore)
	require.NotNil(t, st.LastError)
	assert.True(t, st.LastError.IsEndOfFetch())
	assert.Equal(t, uint16(3), st.CursorID(), "cursor id from the completion record sticks")
}

// A real server error inside a fetch surfaces as *OracleError with the ORA
// code, after the response terminates.
func TestFetchSurfacesOracleError(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	w := wire.NewWriteBuffer()
	w.PutByte(MsgTypeError)
	w.PutBytes(buildErrorBody(3, 942, 0, "ORA-00942: table or view does not exist", 12))

	go serveResponse(t, server, w.Bytes())

	caps := protocol.NewCapabilities()
	caps.ServerTTCFieldVersion = 12
	session := wire.NewSession(wire.NewConn(client))
	st := NewStatement(session, caps, nil, "SELECT * FROM missing", false)
	st.Columns = []ColumnMetadata{{Name: "X", OracleType: oratype.TypeVarchar2}}

	_, err := st.Fetch(25)
	var oe *OracleError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, uint32(942), oe.Code)
	assert.Contains(t, oe.Message, "ORA-00942")
}
