package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Stream turns a Session's discrete Messages into the continuous,
// refill-on-demand byte stream the L5/L6 response parsers need: a TTC
// response frequently spans more DATA packets than fit in one Message, and
// the parser has no way to know the boundary in advance. Stream calls
// Session.Recv for more bytes exactly when a Get* call would otherwise run
// past what has already arrived.
type Stream struct {
	session *Session
	data    []byte
	pos     int
}

func NewStream(s *Session) *Stream { return &Stream{session: s} }

// NewStaticStream wraps an already fully buffered logical response, for
// parsers that run over bytes captured ahead of time; reading past the end
// fails instead of refilling.
func NewStaticStream(data []byte) *Stream { return &Stream{data: data} }

// Remaining reports how many already-buffered bytes are left; it does not
// trigger a refill, so 0 does not necessarily mean the logical response is
// exhausted (AtEnd has the same limitation: it also looks only at bytes
// already buffered).
func (s *Stream) Remaining() int { return len(s.data) - s.pos }

// AtEnd reports whether every byte received so far has been consumed. It
// never blocks reading more from the socket.
func (s *Stream) AtEnd() bool { return s.pos >= len(s.data) }

func (s *Stream) ensure(n int) error {
	for len(s.data)-s.pos < n {
		if s.session == nil {
			return fmt.Errorf("wire: stream exhausted: need %d, have %d", n, len(s.data)-s.pos)
		}
		msg, err := s.session.Recv()
		if err != nil {
			return err
		}
		s.data = append(s.data, msg.Body...)
	}
	return nil
}

func (s *Stream) read(n int) ([]byte, error) {
	if err := s.ensure(n); err != nil {
		return nil, fmt.Errorf("wire: stream short read: need %d: %w", n, err)
	}
	out := s.data[s.pos : s.pos+n]
	s.pos += n
	return out, nil
}

func (s *Stream) GetByte() (byte, error) {
	b, err := s.read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (s *Stream) GetBytes(n int) ([]byte, error) { return s.read(n) }

func (s *Stream) GetUint16BE() (uint16, error) {
	b, err := s.read(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (s *Stream) GetUint32BE() (uint32, error) {
	b, err := s.read(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// GetUB reads a compressed universal-integer, identical in format to
// ReadBuffer.GetUB.
func (s *Stream) GetUB() (uint64, error) {
	size, err := s.GetByte()
	if err != nil {
		return 0, err
	}
	if size == 0 {
		return 0, nil
	}
	b, err := s.read(int(size))
	if err != nil {
		return 0, err
	}
	var tmp [8]byte
	copy(tmp[8-len(b):], b)
	return binary.BigEndian.Uint64(tmp[:]), nil
}

// GetClr reads a length-prefixed byte sequence, identical in format to
// ReadBuffer.GetClr.
func (s *Stream) GetClr() ([]byte, error) {
	size, err := s.GetByte()
	if err != nil {
		return nil, err
	}
	switch size {
	case 253:
		return nil, ErrTTC
	case 0, 0xFF:
		return nil, nil
	}
	if size != 0xFE {
		return s.read(int(size))
	}
	var out bytes.Buffer
	for {
		chunkSize, err := s.GetByte()
		if err != nil {
			return nil, err
		}
		if chunkSize == 0 {
			break
		}
		chunk, err := s.read(int(chunkSize))
		if err != nil {
			return nil, err
		}
		out.Write(chunk)
	}
	return out.Bytes(), nil
}

// GetDlc reads a "described length + chunked bytes" field, identical in
// format to ReadBuffer.GetDlc.
func (s *Stream) GetDlc() ([]byte, error) {
	length, err := s.GetUB()
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, nil
	}
	out, err := s.GetClr()
	if err != nil {
		return nil, err
	}
	if uint64(len(out)) > length {
		out = out[:length]
	}
	return out, nil
}

// SkipChunked discards an opaque chunked-bytes prelude without retaining
// its content, identical in format to ReadBuffer.SkipChunked.
func (s *Stream) SkipChunked() error {
	_, err := s.GetClr()
	return err
}

func (s *Stream) GetStrWithLength() (string, error) {
	b, err := s.GetClr()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Skip discards n bytes without retaining them.
func (s *Stream) Skip(n int) error {
	_, err := s.read(n)
	return err
}

// Reset drops any buffered leftover bytes so the next read starts a fresh
// logical response and a previous response's trailing bytes can't bleed
// into the next parse. The statement pipeline does not call it; it opens a
// new Stream for each reply instead.
func (s *Stream) Reset() { s.data = nil; s.pos = 0 }
