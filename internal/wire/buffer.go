// Package wire implements the L1 framed transport and L2 universal-integer
// buffer codec of the TNS/TTC protocol: packet read/write with fragment
// reassembly, and the big-endian, length-prefixed encodings every higher
// layer builds requests and parses responses with.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrTTC is returned when a chunked-byte length prefix carries the
// protocol's reserved "TTC error" escape value (253).
var ErrTTC = errors.New("wire: TTC error escape in chunked length")

// UBSize returns the number of bytes a compressed ub-encoding of v will
// occupy on the wire, without performing the encode. Callers building
// single-allocation messages (per the protocol's size-first convention)
// use this to size buffers exactly once.
func UBSize(v uint64) int {
	if v == 0 {
		return 1
	}
	n := 0
	for v > 0 {
		n++
		v >>= 8
	}
	return 1 + n
}

// WriteBuffer accumulates an outgoing TTC message. All multi-byte values
// are big-endian; there is no little-endian path anywhere in this type.
type WriteBuffer struct {
	buf bytes.Buffer
}

func NewWriteBuffer() *WriteBuffer { return &WriteBuffer{} }

func (w *WriteBuffer) Len() int          { return w.buf.Len() }
func (w *WriteBuffer) Bytes() []byte     { return w.buf.Bytes() }
func (w *WriteBuffer) PutByte(b byte)    { w.buf.WriteByte(b) }
func (w *WriteBuffer) PutBytes(b []byte) { w.buf.Write(b) }

// PutUint16/32/64BE write a fixed-width big-endian value, uncompressed.
func (w *WriteBuffer) PutUint16BE(v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	w.buf.Write(tmp[:])
}

func (w *WriteBuffer) PutUint32BE(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	w.buf.Write(tmp[:])
}

func (w *WriteBuffer) PutUint64BE(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	w.buf.Write(tmp[:])
}

// PutUB writes v using the compressed universal-integer encoding: a single
// leading size byte n (n=0 means value is zero, no bytes follow), followed
// by n big-endian value bytes — the minimal big-endian representation of v
// with leading zero bytes stripped.
func (w *WriteBuffer) PutUB(v uint64) {
	if v == 0 {
		w.buf.WriteByte(0)
		return
	}
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	trimmed := bytes.TrimLeft(tmp[:], "\x00")
	w.buf.WriteByte(byte(len(trimmed)))
	w.buf.Write(trimmed)
}

// PutSB writes a signed value using the same compressed scheme, with the
// high bit of the size byte marking a negative value (the sign-in-size-byte
// convention the O5LOGON session-key length fields use).
func (w *WriteBuffer) PutSB(v int64) {
	neg := v < 0
	mag := v
	if neg {
		mag = -mag
	}
	if mag == 0 {
		w.buf.WriteByte(0)
		return
	}
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(mag))
	trimmed := bytes.TrimLeft(tmp[:], "\x00")
	size := byte(len(trimmed))
	if neg {
		size |= 0x80
	}
	w.buf.WriteByte(size)
	w.buf.Write(trimmed)
}

// PutCLR writes data as a length-prefixed byte sequence: direct form when
// len(data) <= 0x40, chunked form (0xFE escape, as used for CLOB/BLOB
// inline payloads) otherwise, terminated by a zero-length chunk.
func (w *WriteBuffer) PutCLR(data []byte) {
	n := len(data)
	if n == 0 {
		w.buf.WriteByte(0)
		return
	}
	if n <= 0x40 {
		w.buf.WriteByte(byte(n))
		w.buf.Write(data)
		return
	}
	w.buf.WriteByte(0xFE)
	for start := 0; start < n; start += 0x40 {
		end := start + 0x40
		if end > n {
			end = n
		}
		chunk := data[start:end]
		w.buf.WriteByte(byte(len(chunk)))
		w.buf.Write(chunk)
	}
	w.buf.WriteByte(0)
}

// PutDLC writes a "described length + chunked bytes" field: a ub4 length
// followed by the chunked-bytes encoding of data, as used for bind/describe
// key-value payloads.
func (w *WriteBuffer) PutDLC(data []byte) {
	w.PutUB(uint64(len(data)))
	w.PutCLR(data)
}

// PutKeyVal writes one AUTH/bind key-value-flags triple: ub4 key length +
// chunked key bytes, ub4 value length + chunked value bytes, ub4 flags.
func (w *WriteBuffer) PutKeyVal(key, val []byte, flags uint32) {
	if len(key) == 0 {
		w.buf.WriteByte(0)
	} else {
		w.PutUB(uint64(len(key)))
		w.PutCLR(key)
	}
	if len(val) == 0 {
		w.buf.WriteByte(0)
	} else {
		w.PutUB(uint64(len(val)))
		w.PutCLR(val)
	}
	w.PutUB(uint64(flags))
}

func (w *WriteBuffer) PutKeyValString(key, val string, flags uint32) {
	w.PutKeyVal([]byte(key), []byte(val), flags)
}

// ReadBuffer parses an incoming TTC message from a byte slice it is handed
// whole. It never reads from the connection itself, so every Get* call
// here is purely synchronous; a response that spans several DATA packets
// is read through Stream, which refills across packets.
type ReadBuffer struct {
	data []byte
	pos  int
}

func NewReadBuffer(data []byte) *ReadBuffer { return &ReadBuffer{data: data} }

func (r *ReadBuffer) Remaining() int { return len(r.data) - r.pos }
func (r *ReadBuffer) Pos() int       { return r.pos }

func (r *ReadBuffer) read(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, fmt.Errorf("wire: short read: need %d, have %d", n, r.Remaining())
	}
	out := r.data[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *ReadBuffer) GetByte() (byte, error) {
	b, err := r.read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *ReadBuffer) GetBytes(n int) ([]byte, error) { return r.read(n) }

func (r *ReadBuffer) GetUint16BE() (uint16, error) {
	b, err := r.read(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *ReadBuffer) GetUint32BE() (uint32, error) {
	b, err := r.read(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// GetUB reads a compressed universal-integer: size byte then that many
// big-endian value bytes, zero-extended into a uint64.
func (r *ReadBuffer) GetUB() (uint64, error) {
	size, err := r.GetByte()
	if err != nil {
		return 0, err
	}
	if size == 0 {
		return 0, nil
	}
	b, err := r.read(int(size))
	if err != nil {
		return 0, err
	}
	var tmp [8]byte
	copy(tmp[8-len(b):], b)
	return binary.BigEndian.Uint64(tmp[:]), nil
}

// GetSB reads a compressed signed integer: the high bit of the size byte
// marks the value negative, the low 7 bits give the byte count.
func (r *ReadBuffer) GetSB() (int64, error) {
	size, err := r.GetByte()
	if err != nil {
		return 0, err
	}
	neg := size&0x80 != 0
	size &= 0x7F
	if size == 0 {
		return 0, nil
	}
	b, err := r.read(int(size))
	if err != nil {
		return 0, err
	}
	var tmp [8]byte
	copy(tmp[8-len(b):], b)
	v := int64(binary.BigEndian.Uint64(tmp[:]))
	if neg {
		v = -v
	}
	return v, nil
}

// GetClr reads a length-prefixed byte sequence. A leading 0 or 0xFF denotes
// the NULL sentinel (nil, nil); 253 is the protocol's reserved "TTC error"
// escape; 0xFE introduces chunked form (each chunk: ub1-ish size byte then
// that many bytes, terminated by a zero-length chunk).
func (r *ReadBuffer) GetClr() ([]byte, error) {
	size, err := r.GetByte()
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
		return r.read(int(size))
	}
	var out bytes.Buffer
	for {
		chunkSize, err := r.GetByte()
		if err != nil {
			return nil, err
		}
		if chunkSize == 0 {
			break
		}
		chunk, err := r.read(int(chunkSize))
		if err != nil {
			return nil, err
		}
		out.Write(chunk)
	}
	return out.Bytes(), nil
}

// GetDlc reads a "described length + chunked bytes" field: a ub4 length
// followed by chunked bytes, truncated to the declared length (some servers
// pad the chunked form past the described length).
func (r *ReadBuffer) GetDlc() ([]byte, error) {
	length, err := r.GetUB()
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, nil
	}
	out, err := r.GetClr()
	if err != nil {
		return nil, err
	}
	if uint64(len(out)) > length {
		out = out[:length]
	}
	return out, nil
}

// SkipChunked discards an opaque chunked-bytes prelude without retaining
// its content. DESCRIBE_INFO responses begin with exactly one such prelude;
// omitting this skip desynchronizes every subsequent ub2 read.
func (r *ReadBuffer) SkipChunked() error {
	_, err := r.GetClr()
	return err
}

// GetNullTermString reads a null-terminated string, consuming at most
// maxSize bytes (or whatever remains, if shorter) when no terminator shows.
func (r *ReadBuffer) GetNullTermString(maxSize int) (string, error) {
	if maxSize > r.Remaining() {
		maxSize = r.Remaining()
	}
	start := r.pos
	b, err := r.read(maxSize)
	if err != nil {
		return "", err
	}
	if idx := bytes.IndexByte(b, 0); idx >= 0 {
		r.pos = start + idx + 1
		return string(b[:idx]), nil
	}
	return string(b), nil
}

// GetKeyVal reads one key-value-flags triple as written by PutKeyVal.
func (r *ReadBuffer) GetKeyVal() (key, val []byte, flags uint32, err error) {
	key, err = r.GetDlc()
	if err != nil {
		return
	}
	val, err = r.GetDlc()
	if err != nil {
		return
	}
	f, err := r.GetUB()
	return key, val, uint32(f), err
}
