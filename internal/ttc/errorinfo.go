package ttc

import (
	"github.com/sijms-go-ora-thin/oracle/internal/protocol"
	"github.com/sijms-go-ora-thin/oracle/internal/wire"
)

// ErrorInfo is the end-of-call record every EXECUTE/FETCH response
// carries, trimmed to the fields callers actually need. The record's first
// ub4 is the call status, not the error code; the real code, ErrorNum,
// sits far down the ~30-field record, with RowCount right after it.
type ErrorInfo struct {
	CursorID uint16
	ErrorNum uint32
	RowCount uint64
	Message  string
}

// IsEndOfFetch reports ORA-01403, the sentinel meaning "no more rows" —
// never a user-visible error.
func (e *ErrorInfo) IsEndOfFetch() bool { return e.ErrorNum == endOfFetch }

// IsError reports whether the record represents a real failure, i.e.
// neither success (0) nor the end-of-fetch sentinel (1403).
func (e *ErrorInfo) IsError() bool { return e.ErrorNum != 0 && e.ErrorNum != endOfFetch }

// ParseErrorInfo reads the MSG_TYPE_ERROR body. serverFieldVersion MUST
// be the server's own declared ttc_field_version
// (protocol.Capabilities.ServerTTCFieldVersion), never the client's
// requested one — the two can diverge, and using the wrong one desyncs the
// two trailing ub4 fields gated on field version 20.1.
func ParseErrorInfo(s *wire.Stream, serverFieldVersion byte) (*ErrorInfo, error) {
	info := &ErrorInfo{}

	if _, err := s.GetUB(); err != nil { // end-of-call status
		return nil, err
	}
	if _, err := s.GetUB(); err != nil { // end-to-end sequence number
		return nil, err
	}
	if _, err := s.GetUB(); err != nil { // current row number
		return nil, err
	}
	if _, err := s.GetUB(); err != nil { // error number hint (not the real code)
		return nil, err
	}
	if _, err := s.GetUB(); err != nil { // array elem error
		return nil, err
	}
	if _, err := s.GetUB(); err != nil { // array elem error
		return nil, err
	}
	cursorID, err := s.GetUB()
	if err != nil {
		return nil, err
	}
	info.CursorID = uint16(cursorID)
	if _, err := s.GetUB(); err != nil { // error position
		return nil, err
	}
	if _, err := s.GetByte(); err != nil { // sql type
		return nil, err
	}
	if _, err := s.GetByte(); err != nil { // fatal?
		return nil, err
	}
	if _, err := s.GetByte(); err != nil { // flags
		return nil, err
	}
	if _, err := s.GetByte(); err != nil { // user cursor options
		return nil, err
	}
	if _, err := s.GetByte(); err != nil { // UPI parameter
		return nil, err
	}
	if _, err := s.GetByte(); err != nil { // warning flags
		return nil, err
	}
	if err := skipRowID(s); err != nil {
		return nil, err
	}
	if _, err := s.GetUB(); err != nil { // OS error
		return nil, err
	}
	if _, err := s.GetByte(); err != nil { // statement number
		return nil, err
	}
	if _, err := s.GetByte(); err != nil { // call number
		return nil, err
	}
	if _, err := s.GetUB(); err != nil { // padding
		return nil, err
	}
	if _, err := s.GetUB(); err != nil { // success iters
		return nil, err
	}

	// oerrdd (logical rowid)
	numBytes, err := s.GetUB()
	if err != nil {
		return nil, err
	}
	if numBytes > 0 {
		if err := s.SkipChunked(); err != nil {
			return nil, err
		}
	}

	if err := skipBatchErrorCodes(s); err != nil {
		return nil, err
	}
	if err := skipBatchErrorOffsets(s); err != nil {
		return nil, err
	}
	if err := skipBatchErrorMessages(s); err != nil {
		return nil, err
	}

	errorNum, err := s.GetUB()
	if err != nil {
		return nil, err
	}
	info.ErrorNum = uint32(errorNum)

	rowCount, err := s.GetUB()
	if err != nil {
		return nil, err
	}
	info.RowCount = rowCount

	if serverFieldVersion >= protocol.FieldVersion20_1 {
		if _, err := s.GetUB(); err != nil { // sql_type
			return nil, err
		}
		if _, err := s.GetUB(); err != nil { // server_checksum
			return nil, err
		}
	}

	// Even ORA-01403 carries a message; only a clean success (0) has none.
	if info.ErrorNum != 0 {
		info.Message, err = s.GetStrWithLength()
		if err != nil {
			return nil, err
		}
	}
	return info, nil
}

func skipRowID(s *wire.Stream) error {
	if _, err := s.GetUB(); err != nil { // rba
		return err
	}
	if _, err := s.GetUB(); err != nil { // partition id
		return err
	}
	if _, err := s.GetByte(); err != nil {
		return err
	}
	if _, err := s.GetUB(); err != nil { // block num
		return err
	}
	if _, err := s.GetUB(); err != nil { // slot num
		return err
	}
	return nil
}

func skipBatchErrorCodes(s *wire.Stream) error {
	numErrors, err := s.GetUB()
	if err != nil {
		return err
	}
	if numErrors == 0 {
		return nil
	}
	firstByte, err := s.GetByte()
	if err != nil {
		return err
	}
	for i := uint64(0); i < numErrors; i++ {
		if firstByte == longLengthIndicator {
			if _, err := s.GetUB(); err != nil {
				return err
			}
		}
		if _, err := s.GetUB(); err != nil {
			return err
		}
	}
	if firstByte == longLengthIndicator {
		if err := s.Skip(1); err != nil {
			return err
		}
	}
	return nil
}

func skipBatchErrorOffsets(s *wire.Stream) error {
	numOffsets, err := s.GetUB()
	if err != nil {
		return err
	}
	if numOffsets == 0 {
		return nil
	}
	firstByte, err := s.GetByte()
	if err != nil {
		return err
	}
	for i := uint64(0); i < numOffsets; i++ {
		if firstByte == longLengthIndicator {
			if _, err := s.GetUB(); err != nil {
				return err
			}
		}
		if _, err := s.GetUB(); err != nil {
			return err
		}
	}
	if firstByte == longLengthIndicator {
		if err := s.Skip(1); err != nil {
			return err
		}
	}
	return nil
}

func skipBatchErrorMessages(s *wire.Stream) error {
	count, err := s.GetUB()
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	if err := s.Skip(1); err != nil { // packed size
		return err
	}
	for i := uint64(0); i < count; i++ {
		if _, err := s.GetUB(); err != nil { // chunk length
			return err
		}
		if _, err := s.GetStrWithLength(); err != nil {
			return err
		}
		if err := s.Skip(2); err != nil { // end marker
			return err
		}
	}
	return nil
}
