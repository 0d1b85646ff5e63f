package ttc

import (
	"fmt"

	"github.com/sijms-go-ora-thin/oracle/internal/protocol"
	"github.com/sijms-go-ora-thin/oracle/internal/wire"
)

// UnsupportedTypeError is raised at describe time when a projected column
// carries a type number this client has no decoder for, so callers learn
// before any row bytes are consumed — never mid-result-set.
type UnsupportedTypeError struct {
	Column  string
	TypeNum int
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("ttc: column %q has unsupported Oracle type %d", e.Column, e.TypeNum)
}

// decodableTypes lists the Oracle type numbers internal/oratype can decode.
var decodableTypes = map[int]struct{}{
	1: {}, 2: {}, 3: {}, 8: {}, 12: {}, 23: {}, 24: {},
	96: {}, 112: {}, 113: {}, 180: {}, 181: {},
}

func validateColumns(cols []ColumnMetadata) error {
	for _, c := range cols {
		if _, ok := decodableTypes[c.OracleType]; !ok {
			return &UnsupportedTypeError{Column: c.Name, TypeNum: c.OracleType}
		}
	}
	return nil
}

// CloseCursor releases a server-side cursor: the close-cursors piggyback
// followed by a ping function call to carry it.
func CloseCursor(session *wire.Session, caps *protocol.Capabilities, cursorID uint16) error {
	session.BeginRequest()
	w := wire.NewWriteBuffer()
	w.PutBytes([]byte{MsgTypePiggyback, FuncCloseCursors, 0, 1, 1, 1})
	w.PutUB(uint64(cursorID))
	w.PutBytes([]byte{3, FuncPing, 0})
	if err := session.Send(w.Bytes(), 0); err != nil {
		return err
	}
	return drainSimpleResponse(session, caps)
}

// Logoff runs the session-release piggyback plus the logoff function call
// and waits for the server's completion record. The caller still closes
// the socket.
func Logoff(session *wire.Session, caps *protocol.Capabilities) error {
	session.BeginRequest()
	payload := []byte{
		MsgTypePiggyback, 0x87, 0, 0, 0, 0x2, 0x1, 0x11,
		0x1, 0, 0, 0, 0x1, 0, 0, 0,
		0, 0, 0x1, 0, 0, 0, 0, 0,
		3, FuncLogoff, 0,
	}
	if err := session.Send(payload, 0); err != nil {
		return err
	}
	return drainSimpleResponse(session, caps)
}

// errOrNil lets the response loops return a typed nil-free error.
func errOrNil(e *OracleError) error {
	if e != nil {
		return e
	}
	return nil
}

// drainSimpleResponse consumes a response that carries no rows: status or
// completion records only.
func drainSimpleResponse(session *wire.Session, caps *protocol.Capabilities) error {
	s := wire.NewStream(session)
	var oraErr *OracleError
	done := false
	for {
		msgType, err := s.GetByte()
		if err != nil {
			return err
		}
		switch msgType {
		case MsgTypeError:
			info, err := ParseErrorInfo(s, caps.ServerTTCFieldVersion)
			if err != nil {
				return err
			}
			if info.IsError() {
				oraErr = &OracleError{Code: info.ErrorNum, Message: info.Message}
			}
			done = true
		case MsgTypeStatus:
			if _, err := s.GetUB(); err != nil { // call status
				return err
			}
			if _, err := s.GetUB(); err != nil { // end-to-end seq
				return err
			}
			done = true
		case MsgTypeServerSidePiggyback:
			if err := skipServerSidePiggyback(s); err != nil {
				return err
			}
		case MsgTypeWarning:
			if err := skipWarning(s); err != nil {
				return err
			}
		case MsgTypeEndOfResponse:
			return errOrNil(oraErr)
		default:
			return fmt.Errorf("ttc: unexpected message type %d in status response", msgType)
		}
		if done && !caps.SupportsEndOfResponse {
			return errOrNil(oraErr)
		}
	}
}
