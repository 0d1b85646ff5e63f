package ttc

import (
	"bytes"
	"fmt"

	"github.com/sijms-go-ora-thin/oracle/internal/protocol"
	"github.com/sijms-go-ora-thin/oracle/internal/tracelog"
	"github.com/sijms-go-ora-thin/oracle/internal/wire"
)

// LOB_OP operation ids.
const (
	lobOpGetSize = 1
	lobOpRead    = 2
)

// LobReader performs LOB_OP calls against an authenticated session to
// dereference a 40-byte locator. The locator bytes are passed through
// verbatim; only the offsets and amounts this client chose are added
// around them.
type LobReader struct {
	session *wire.Session
	caps    *protocol.Capabilities
	tracer  tracelog.Tracer
}

func NewLobReader(session *wire.Session, caps *protocol.Capabilities, tracer tracelog.Tracer) *LobReader {
	if tracer == nil {
		tracer = tracelog.Discard()
	}
	return &LobReader{session: session, caps: caps, tracer: tracer}
}

// Size asks the server for the LOB's current length: characters for CLOB,
// bytes for BLOB.
func (l *LobReader) Size(locator []byte) (uint64, error) {
	l.tracer.Print("read lob size")
	op := &lobOp{locator: locator, operationID: lobOpGetSize}
	if err := l.roundTrip(op); err != nil {
		return 0, err
	}
	l.tracer.Print("lob size: ", op.size)
	return op.size, nil
}

// Read fetches amount units (characters for CLOB, bytes for BLOB) starting
// at offset (1-based, per the protocol) and returns the raw bytes.
func (l *LobReader) Read(locator []byte, offset, amount uint64) ([]byte, error) {
	l.tracer.Printf("read lob data: offset=%d amount=%d", offset, amount)
	op := &lobOp{
		locator:      locator,
		operationID:  lobOpRead,
		sourceOffset: offset,
		size:         amount,
	}
	if err := l.roundTrip(op); err != nil {
		return nil, err
	}
	return op.data.Bytes(), nil
}

// lobOp carries one LOB_OP request/response exchange's state. The write
// path uses the TTC>=3 wide-offset layout, the only one this client can
// negotiate into.
type lobOp struct {
	locator      []byte
	operationID  int
	sourceOffset uint64
	size         uint64
	data         bytes.Buffer
}

func (l *LobReader) roundTrip(op *lobOp) error {
	l.session.BeginRequest()
	if err := l.session.Send(l.buildRequest(op), 0); err != nil {
		return err
	}
	return l.readResponse(op)
}

func (l *LobReader) buildRequest(op *lobOp) []byte {
	w := wire.NewWriteBuffer()
	w.PutBytes([]byte{3, FuncLobOp, 0})
	if len(op.locator) == 0 {
		w.PutByte(0)
	} else {
		w.PutByte(1)
	}
	w.PutUB(uint64(len(op.locator)))
	w.PutByte(0) // no destination locator
	w.PutUB(0)
	w.PutBytes([]byte{0, 0}) // short source/dest offsets, unused at TTC>=3
	w.PutByte(0)             // no charset id
	w.PutByte(0)             // TTC>=3 reserved
	w.PutByte(0)             // null-on-overflow/underflow unused
	w.PutUB(uint64(op.operationID))
	w.PutByte(0) // no SCN
	w.PutUB(0)
	w.PutUB(op.sourceOffset)
	w.PutUB(0)   // destination offset
	w.PutByte(1) // send amount
	if l.caps.TTCFieldVersion >= 4 {
		w.PutBytes([]byte{0, 0, 0, 0, 0, 0})
	}
	w.PutBytes(op.locator)
	w.PutUB(op.size)
	return w.Bytes()
}

func (l *LobReader) readResponse(op *lobOp) error {
	s := wire.NewStream(l.session)
	var oraErr *OracleError
	done := false
	for {
		msgType, err := s.GetByte()
		if err != nil {
			return err
		}
		switch msgType {
		case MsgTypeError:
			info, err := ParseErrorInfo(s, l.caps.ServerTTCFieldVersion)
			if err != nil {
				return err
			}
			if info.IsError() {
				oraErr = &OracleError{Code: info.ErrorNum, Message: info.Message}
			}
			done = true
		case MsgTypeParameter:
			// The server echoes the locator back, then the data size.
			if len(op.locator) > 0 {
				if _, err := s.GetBytes(len(op.locator)); err != nil {
					return err
				}
			}
			size, err := s.GetUB()
			if err != nil {
				return err
			}
			op.size = size
		case MsgTypeStatus:
			if l.caps.HasEOSCapability {
				if _, err := s.GetUB(); err != nil { // end-of-call status
					return err
				}
			}
			done = true
		case MsgTypeLobData:
			chunk, err := s.GetClr()
			if err != nil {
				return err
			}
			op.data.Write(chunk)
		case MsgTypeEndOfResponse:
			return errOrNil(oraErr)
		default:
			return fmt.Errorf("ttc: unexpected message type %d in LOB response", msgType)
		}
		if done && !l.caps.SupportsEndOfResponse {
			return errOrNil(oraErr)
		}
	}
}
