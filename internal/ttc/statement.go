package ttc

import (
	"fmt"
	"strings"

	"github.com/sijms-go-ora-thin/oracle/internal/protocol"
	"github.com/sijms-go-ora-thin/oracle/internal/tracelog"
	"github.com/sijms-go-ora-thin/oracle/internal/wire"
)

// StmtKind classifies a statement text the way the server's execute option
// bits need.
type StmtKind int

const (
	KindSelect StmtKind = iota
	KindDML
	KindPLSQL
	KindOther
)

func classify(text string) StmtKind {
	u := strings.ToUpper(strings.TrimSpace(text))
	switch {
	case strings.HasPrefix(u, "SELECT"), strings.HasPrefix(u, "WITH"):
		return KindSelect
	case strings.HasPrefix(u, "UPDATE"), strings.HasPrefix(u, "INSERT"), strings.HasPrefix(u, "DELETE"):
		return KindDML
	case strings.HasPrefix(u, "DECLARE"), strings.HasPrefix(u, "BEGIN"):
		return KindPLSQL
	default:
		return KindOther
	}
}

func hasReturningClause(u string) bool {
	return strings.Contains(strings.ToUpper(u), "RETURNING")
}

// Statement is one open cursor's execute/fetch lifecycle: the cursor id
// is reused across fetches once assigned, and end-of-fetch arrives as an
// error record carrying 1403.
type Statement struct {
	session    *wire.Session
	caps       *protocol.Capabilities
	tracer     tracelog.Tracer
	text       string
	kind       StmtKind
	returning  bool
	cursorID   uint16
	parsed     bool
	autoCommit bool

	Columns   []ColumnMetadata
	HasMore   bool
	RowCount  uint64
	LastError *ErrorInfo
}

// NewStatement prepares (but does not execute) sql against session.
func NewStatement(session *wire.Session, caps *protocol.Capabilities, tracer tracelog.Tracer, sql string, autoCommit bool) *Statement {
	return &Statement{
		session:    session,
		caps:       caps,
		tracer:     tracer,
		text:       sql,
		kind:       classify(sql),
		returning:  hasReturningClause(sql),
		autoCommit: autoCommit,
	}
}

// CursorID returns the server-assigned cursor id: zero until the first
// execute's completion record assigns one, then stable for the session.
func (st *Statement) CursorID() uint16 { return st.cursorID }

func (st *Statement) exeOption(rowsToFetch int) uint32 {
	var op uint32
	if st.kind == KindPLSQL || st.returning {
		op |= ExecOptionPLSQLOrReturn
	}
	if st.autoCommit {
		op |= ExecOptionCommit
	}
	if !st.parsed {
		op |= ExecOptionParse
	}
	op |= ExecOptionExecute
	if st.kind != KindPLSQL && !st.returning {
		op |= ExecOptionNotPLSQL
	}
	return op
}

// Execute sends the EXECUTE message (parse+execute on the first call,
// execute-only after) and parses the response: describe info, the
// prefetched rows, and the completion record.
func (st *Statement) Execute(rowsToFetch int) ([]Row, error) {
	st.session.BeginRequest()
	w := wire.NewWriteBuffer()
	w.PutBytes([]byte{3, FuncExecute, 0})
	w.PutUB(uint64(st.exeOption(rowsToFetch)))
	w.PutUB(uint64(st.cursorID))
	if st.cursorID == 0 {
		w.PutByte(1)
	} else {
		w.PutByte(0)
	}
	w.PutUB(uint64(len(st.text)))
	w.PutByte(1)
	w.PutUB(13) // al8i4 slot count
	w.PutBytes([]byte{0, 0})

	fetchGate := st.exeOption(rowsToFetch)
	if fetchGate&ExecOptionDefine == 0 && fetchGate&ExecOptionExecute != 0 && fetchGate&ExecOptionParse != 0 && st.kind == KindSelect {
		w.PutByte(0)
		w.PutUB(uint64(rowsToFetch))
	} else {
		w.PutUB(0)
		w.PutUB(0)
	}
	w.PutUB(1) // long fetch size
	w.PutByte(0)
	w.PutByte(0) // no bind parameters yet
	w.PutBytes([]byte{0, 0, 0, 0, 0})
	w.PutByte(0)
	w.PutByte(0) // no define columns

	if st.caps.TTCFieldVersion >= 4 {
		w.PutByte(0)
		w.PutByte(0)
		w.PutByte(1)
	}
	if st.caps.TTCFieldVersion >= 5 {
		for i := 0; i < 5; i++ {
			w.PutByte(0)
		}
	}
	w.PutBytes([]byte(st.text))
	al8i4 := make([]uint16, 13)
	al8i4[0] = 1
	switch st.kind {
	case KindDML, KindPLSQL:
		al8i4[1] = 1
	case KindOther:
		al8i4[1] = 1
	}
	if st.kind == KindSelect {
		al8i4[7] = 1
	}
	for _, v := range al8i4 {
		w.PutUB(uint64(v))
	}

	if err := st.session.Send(w.Bytes(), 0); err != nil {
		return nil, err
	}
	st.parsed = true
	rows, err := st.readResponse(true, rowsToFetch)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Fetch requests the next batch of rows on the already-executed cursor.
func (st *Statement) Fetch(rowsToFetch int) ([]Row, error) {
	st.session.BeginRequest()
	w := wire.NewWriteBuffer()
	w.PutBytes([]byte{3, FuncFetch, 0})
	w.PutUB(uint64(st.cursorID))
	w.PutUB(uint64(rowsToFetch))
	if err := st.session.Send(w.Bytes(), 0); err != nil {
		return nil, err
	}
	return st.readResponse(false, rowsToFetch)
}

// readResponse drives the dispatch loop shared by EXECUTE and FETCH
// responses; both accept the same message-type set once DESCRIBE_INFO has
// run.
func (st *Statement) readResponse(expectDescribe bool, rowsToFetch int) ([]Row, error) {
	s := wire.NewStream(st.session)
	var rows []Row
	var oraErr *OracleError
	st.LastError = nil
	haveColumns := !expectDescribe && len(st.Columns) > 0
	for {
		msgType, err := s.GetByte()
		if err != nil {
			return nil, err
		}
		switch msgType {
		case MsgTypeDescribeInfo:
			if err := s.SkipChunked(); err != nil {
				return nil, err
			}
			cols, err := ParseDescribeInfo(s, st.caps.TTCFieldVersion)
			if err != nil {
				return nil, err
			}
			if err := validateColumns(cols); err != nil {
				return nil, err
			}
			st.Columns = cols
			haveColumns = true
		case MsgTypeRowHeader:
			if err := skipRowHeader(s); err != nil {
				return nil, err
			}
		case MsgTypeRowData:
			if !haveColumns {
				return nil, fmt.Errorf("ttc: row data received before column metadata")
			}
			row, err := parseRowData(s, st.Columns)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		case MsgTypeError:
			info, err := ParseErrorInfo(s, st.caps.ServerTTCFieldVersion)
			if err != nil {
				return nil, err
			}
			st.LastError = info
			if info.CursorID != 0 {
				st.cursorID = info.CursorID
			}
			st.RowCount = info.RowCount
			if info.IsEndOfFetch() {
				st.HasMore = false
			} else if info.IsError() {
				if st.tracer != nil {
					st.tracer.Printf("ttc: ORA-%05d %s", info.ErrorNum, info.Message)
				}
				st.HasMore = false
				oraErr = &OracleError{Code: info.ErrorNum, Message: info.Message}
			} else {
				st.HasMore = true
			}
		case MsgTypeEndOfResponse:
			if oraErr != nil {
				return rows, oraErr
			}
			return rows, nil
		case MsgTypeParameter:
			if err := skipReturnParameters(s); err != nil {
				return nil, err
			}
		case MsgTypeBitVector:
			if err := skipBitVector(s, len(st.Columns)); err != nil {
				return nil, err
			}
		case MsgTypeStatus:
			if _, err := s.GetUB(); err != nil { // call status
				return nil, err
			}
			if _, err := s.GetUB(); err != nil { // end-to-end seq
				return nil, err
			}
		case MsgTypeServerSidePiggyback:
			if err := skipServerSidePiggyback(s); err != nil {
				return nil, err
			}
		case MsgTypeWarning:
			if err := skipWarning(s); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("ttc: unexpected message type %d in response", msgType)
		}
		if !st.caps.SupportsEndOfResponse && st.LastError != nil {
			// Servers below VersionMinEndOfResponse never send MsgTypeEndOfResponse;
			// the ERROR record itself terminates the exchange.
			if oraErr != nil {
				return rows, oraErr
			}
			return rows, nil
		}
	}
}

// OracleError is the minimal ORA-xxxxx error this layer raises; the root
// package wraps it into the public *oracle.Error taxonomy.
type OracleError struct {
	Code    uint32
	Message string
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("ORA-%05d: %s", e.Code, e.Message)
}

func skipReturnParameters(s *wire.Stream) error {
	numParams, err := s.GetUB()
	if err != nil {
		return err
	}
	for i := uint64(0); i < numParams; i++ {
		if _, err := s.GetUB(); err != nil {
			return err
		}
	}
	numBytes, err := s.GetUB()
	if err != nil {
		return err
	}
	if numBytes > 0 {
		if err := s.Skip(int(numBytes)); err != nil {
			return err
		}
	}
	numPairs, err := s.GetUB()
	if err != nil {
		return err
	}
	for i := uint64(0); i < numPairs; i++ {
		textLen, err := s.GetUB()
		if err != nil {
			return err
		}
		if textLen > 0 {
			if err := s.Skip(int(textLen)); err != nil {
				return err
			}
		}
		binLen, err := s.GetUB()
		if err != nil {
			return err
		}
		if binLen > 0 {
			if err := s.Skip(int(binLen)); err != nil {
				return err
			}
		}
		if _, err := s.GetUB(); err != nil { // keyword num
			return err
		}
	}
	numBytes2, err := s.GetUB()
	if err != nil {
		return err
	}
	if numBytes2 > 0 {
		if err := s.Skip(int(numBytes2)); err != nil {
			return err
		}
	}
	return nil
}

func skipBitVector(s *wire.Stream, numColumns int) error {
	if _, err := s.GetUB(); err != nil { // num columns sent
		return err
	}
	numBytes := (numColumns + 7) / 8
	if numBytes > 0 {
		return s.Skip(numBytes)
	}
	return nil
}

func skipWarning(s *wire.Stream) error {
	if _, err := s.GetUint16BE(); err != nil { // length
		return err
	}
	if _, err := s.GetUint16BE(); err != nil { // flags
		return err
	}
	if _, err := s.GetUint16BE(); err != nil { // error number
		return err
	}
	if _, err := s.GetStrWithLength(); err != nil { // message
		return err
	}
	return nil
}

// skipServerSidePiggyback discards a TNS_MSG_TYPE_SERVER_SIDE_PIGGYBACK
// body; this client tracks none of the session state those updates carry,
// but must still consume each opcode's exact payload.
func skipServerSidePiggyback(s *wire.Stream) error {
	opcode, err := s.GetByte()
	if err != nil {
		return err
	}
	switch opcode {
	case 4: // session return (DRCP)
		if _, err := s.GetUB(); err != nil {
			return err
		}
		if _, err := s.GetUB(); err != nil {
			return err
		}
	case 7: // logical transaction ID
		numBytes, err := s.GetUB()
		if err != nil {
			return err
		}
		if numBytes > 0 {
			return s.SkipChunked()
		}
	case 8: // AC replay context
		if _, err := s.GetUB(); err != nil {
			return err
		}
		if _, err := s.GetUB(); err != nil {
			return err
		}
		numBytes, err := s.GetUB()
		if err != nil {
			return err
		}
		if numBytes > 0 {
			return s.SkipChunked()
		}
	case 9: // extended sync key/value pairs
		numPairs, err := s.GetUB()
		if err != nil {
			return err
		}
		for i := uint64(0); i < numPairs; i++ {
			keyLen, err := s.GetUB()
			if err != nil {
				return err
			}
			if keyLen > 0 {
				if err := s.Skip(int(keyLen)); err != nil {
					return err
				}
			}
			valLen, err := s.GetUB()
			if err != nil {
				return err
			}
			if valLen > 0 {
				if err := s.SkipChunked(); err != nil {
					return err
				}
			}
		}
	case 10: // session signature
		numBytes, err := s.GetUB()
		if err != nil {
			return err
		}
		if numBytes > 0 {
			return s.SkipChunked()
		}
	}
	return nil
}
