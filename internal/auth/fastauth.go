package auth

import (
	"fmt"

	"github.com/sijms-go-ora-thin/oracle/internal/protocol"
	"github.com/sijms-go-ora-thin/oracle/internal/tracelog"
	"github.com/sijms-go-ora-thin/oracle/internal/ttc"
	"github.com/sijms-go-ora-thin/oracle/internal/wire"
)

// Constants for the sections embedded inside the combined FastAuth
// message.
const (
	serverConvertsChars = 0x01
	encodingMultiByte   = 0x01
	encodingConvLength  = 0x02
	charsetUTF8         = 873
)

// FastLogon runs the 23ai coalesced exchange: one TNS_MSG_TYPE_FAST_AUTH
// message carrying the protocol negotiation, the data-type exchange and
// auth phase 1 together, one combined response, then the ordinary phase 2.
// FastAuth pins the requested ttc_field_version to 19.1 ext 1 — the server
// formats every later response (column metadata included) per this request,
// so the adjustment is recorded in caps before anything else is parsed.
func FastLogon(s *wire.Session, caps *protocol.Capabilities, creds Credentials, info ClientInfo, tracer tracelog.Tracer) error {
	if tracer == nil {
		tracer = tracelog.Discard()
	}
	caps.TTCFieldVersion = protocol.FieldVersion19_1Ext1
	caps.CompileTimeCaps[7] = protocol.FieldVersion19_1Ext1

	msg := buildFastAuthMessage(caps, creds, info)
	tracer.LogPacket("fast auth request", msg)

	s.BeginRequest()
	if err := s.Send(msg, 0); err != nil {
		return err
	}
	session, err := parseFastAuthResponse(s, caps)
	if err != nil {
		return err
	}
	return phaseTwo(s, creds, session)
}

func buildFastAuthMessage(caps *protocol.Capabilities, creds Credentials, info ClientInfo) []byte {
	w := wire.NewWriteBuffer()
	w.PutByte(msgTypeFastAuth)
	w.PutByte(1) // fast auth version
	w.PutByte(serverConvertsChars)
	w.PutByte(0)

	// Embedded protocol-negotiation message.
	w.PutByte(msgTypeProtocol)
	w.PutByte(6) // protocol version
	w.PutByte(0) // array terminator
	w.PutBytes([]byte(driverName))
	w.PutByte(0)

	// Server charset info, zeros until the server declares its own.
	w.PutUint16BE(0)
	w.PutByte(0)
	w.PutUint16BE(0)

	w.PutByte(protocol.FieldVersion19_1Ext1)

	// Embedded data-type message. The charset words here are little-endian
	// on the wire, one of the two deliberate exceptions to the big-endian
	// rule (the other is the ncharset word in the classic exchange).
	w.PutByte(msgTypeDataTypes)
	w.PutBytes([]byte{charsetUTF8 & 0xFF, charsetUTF8 >> 8})
	w.PutBytes([]byte{charsetUTF8 & 0xFF, charsetUTF8 >> 8})
	w.PutByte(encodingMultiByte | encodingConvLength)
	w.PutCLR(caps.CompileTimeCaps)
	w.PutCLR(caps.RuntimeCaps)
	w.PutBytes(protocol.AppendTypeTable(nil))

	// Embedded auth phase 1.
	w.PutBytes(buildPhaseOneMessage(creds, info))
	return w.Bytes()
}

// parseFastAuthResponse walks the combined response's embedded messages:
// protocol reply, data-type acknowledgement, the auth PARAMETER block, and
// a trailing completion record. In the PARAMETER block each key and value
// is preceded by an extra ub4 indicator before its length-prefixed string —
// omitting those reads desynchronizes parsing and the server later rejects
// phase 2 with "Missing AUTH_VFR_DATA".
func parseFastAuthResponse(s *wire.Session, caps *protocol.Capabilities) (*sessionData, error) {
	stream := wire.NewStream(s)
	session := newSessionData()
	seenCompletion := false
	for {
		msgType, err := stream.GetByte()
		if err != nil {
			return nil, err
		}
		switch msgType {
		case msgTypeProtocol:
			if err := parseEmbeddedProtocol(stream, caps); err != nil {
				return nil, err
			}
		case msgTypeDataTypes:
			if err := skipDataTypeAck(stream); err != nil {
				return nil, err
			}
		case msgTypeParameter:
			if err := readFastAuthParams(stream, session); err != nil {
				return nil, err
			}
		case msgTypeError:
			info, err := ttc.ParseErrorInfo(stream, caps.ServerTTCFieldVersion)
			if err != nil {
				return nil, err
			}
			if info.IsError() {
				return nil, &OracleError{Code: int(info.ErrorNum), Message: info.Message}
			}
			seenCompletion = true
		case msgTypeEndOfResponse:
			return session, nil
		default:
			return nil, fmt.Errorf("auth: unexpected message type %d in fast auth response", msgType)
		}
		if seenCompletion && !caps.SupportsEndOfResponse {
			return session, nil
		}
	}
}

func parseEmbeddedProtocol(s *wire.Stream, caps *protocol.Capabilities) error {
	if _, err := s.GetByte(); err != nil { // server protocol version
		return err
	}
	if _, err := s.GetByte(); err != nil { // reserved
		return err
	}
	for { // server banner, null terminated
		b, err := s.GetByte()
		if err != nil {
			return err
		}
		if b == 0 {
			break
		}
	}
	if err := s.Skip(2); err != nil { // server charset (little-endian)
		return err
	}
	flags, err := s.GetByte()
	if err != nil {
		return err
	}
	caps.ServerFlags = flags
	elemBytes, err := s.GetBytes(2)
	if err != nil {
		return err
	}
	numElem := int(elemBytes[0]) | int(elemBytes[1])<<8
	if numElem > 0 {
		if err := s.Skip(numElem * 5); err != nil {
			return err
		}
	}
	fdoLen, err := s.GetUint16BE()
	if err != nil {
		return err
	}
	if err := s.Skip(int(fdoLen)); err != nil {
		return err
	}
	serverCompile, err := s.GetClr()
	if err != nil {
		return err
	}
	serverRuntime, err := s.GetClr()
	if err != nil {
		return err
	}
	caps.AdjustForServerCaps(serverCompile, serverRuntime)
	return nil
}

func skipDataTypeAck(s *wire.Stream) error {
	for {
		dty, err := s.GetUint16BE()
		if err != nil {
			return err
		}
		if dty == 0 {
			return nil
		}
		conv, err := s.GetUint16BE()
		if err != nil {
			return err
		}
		if conv != 0 {
			if err := s.Skip(4); err != nil {
				return err
			}
		}
	}
}

func readFastAuthParams(s *wire.Stream, session *sessionData) error {
	numParams, err := s.GetUB()
	if err != nil {
		return err
	}
	for i := uint64(0); i < numParams; i++ {
		if _, err := s.GetUB(); err != nil { // key indicator
			return err
		}
		key, err := s.GetClr()
		if err != nil {
			return err
		}
		if _, err := s.GetUB(); err != nil { // value indicator
			return err
		}
		value, err := s.GetClr()
		if err != nil {
			return err
		}
		if string(key) == "AUTH_VFR_DATA" {
			vt, err := s.GetUB()
			if err != nil {
				return err
			}
			session.verifierType = uint32(vt)
		} else {
			if _, err := s.GetUB(); err != nil { // flags, discarded
				return err
			}
		}
		if len(key) > 0 {
			session.params[string(key)] = string(value)
		}
	}
	return nil
}
