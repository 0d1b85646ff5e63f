// Package oratype implements the L7 Oracle type codecs: NUMBER (as an
// exact decimal string), DATE/TIMESTAMP, LOB inline/locator forms, RAW,
// LONG, VARCHAR2 and the shared NULL representation.
package oratype

import "fmt"

// Kind tags which variant a Value holds; decoders dispatch on the Oracle
// type-number byte to produce one.
type Kind int

const (
	KindNull Kind = iota
	KindText
	KindNumber
	KindDate
	KindTimestamp
	KindBytes
	KindInlineClob
	KindInlineBlob
	KindLobRef
)

// Value is the tagged union every decoded column produces. Exactly one of
// the typed accessors is meaningful for a given Kind; Null is a distinct
// state from Text("").
type Value struct {
	Kind      Kind
	Text      string
	Bytes     []byte
	Date      DateTime
	Lob       *LobLocator
	InlineLob []byte
}

func Null() Value { return Value{Kind: KindNull} }

func TextValue(s string) Value { return Value{Kind: KindText, Text: s} }

// NumberValue holds NUMBER's exact decimal string rendering, never a
// binary float round-trip.
func NumberValue(decimal string) Value { return Value{Kind: KindNumber, Text: decimal} }

func DateValue(dt DateTime) Value { return Value{Kind: KindDate, Date: dt} }

func TimestampValue(dt DateTime) Value { return Value{Kind: KindTimestamp, Date: dt} }

func BytesValue(b []byte) Value { return Value{Kind: KindBytes, Bytes: b} }

func InlineClobValue(s string) Value { return Value{Kind: KindInlineClob, Text: s} }

func InlineBlobValue(b []byte) Value { return Value{Kind: KindInlineBlob, InlineLob: b} }

func LobRefValue(loc *LobLocator) Value { return Value{Kind: KindLobRef, Lob: loc} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "<NULL>"
	case KindText, KindNumber, KindInlineClob:
		return v.Text
	case KindDate, KindTimestamp:
		return v.Date.String()
	case KindBytes, KindInlineBlob:
		return fmt.Sprintf("% x", v.Bytes)
	case KindLobRef:
		return fmt.Sprintf("LOB(%d bytes)", v.Lob.Size())
	default:
		return ""
	}
}

// LobKind distinguishes the four LOB column flavors.
type LobKind int

const (
	LobClob LobKind = iota
	LobNClob
	LobBlob
	LobBFile
)

func (k LobKind) String() string {
	switch k {
	case LobClob:
		return "CLOB"
	case LobNClob:
		return "NCLOB"
	case LobBlob:
		return "BLOB"
	case LobBFile:
		return "BFILE"
	default:
		return "LOB"
	}
}

// Locator flag bits within the 40-byte LOB locator: byte 4 carries BLOB
// (0x01), value-based (0x20) and abstract (0x40); byte 6 carries the
// variable-length-charset bit (0x80); byte 7 carries the temporary-LOB
// bit (0x01). Non-flag bytes vary by server version and are treated as
// opaque.
const (
	lobFlagByte1      = 4
	lobFlagBLOB       = 0x01
	lobFlagValueBased = 0x20
	lobFlagAbstract   = 0x40
	lobFlagByte3      = 6
	lobFlagVarCharset = 0x80
	lobFlagByte4      = 7
	lobFlagTemp       = 0x01
)

// LobLocator is the opaque 40-byte handle plus the metadata the server
// prefetches alongside it.
type LobLocator struct {
	Raw             [40]byte
	TotalSize       uint64 // bytes for BLOB, characters for CLOB
	ChunkSize       uint32
	Kind            LobKind
	IsValueBased    bool
	IsAbstract      bool
	IsTemporary     bool
	VariableCharset bool
}

// NewLobLocator builds a LobLocator from the raw bytes the wire sent,
// deriving Kind/flags from the known offsets and leaving every other byte
// untouched for later LOB_OP calls to pass through verbatim.
func NewLobLocator(raw []byte, totalSize uint64, chunkSize uint32, kind LobKind) *LobLocator {
	loc := &LobLocator{TotalSize: totalSize, ChunkSize: chunkSize, Kind: kind}
	copy(loc.Raw[:], raw)
	if len(raw) > lobFlagByte1 {
		f := raw[lobFlagByte1]
		loc.IsValueBased = f&lobFlagValueBased != 0
		loc.IsAbstract = f&lobFlagAbstract != 0
		if f&lobFlagBLOB != 0 && kind != LobBlob {
			loc.Kind = LobBlob
		}
	}
	if len(raw) > lobFlagByte3 {
		loc.VariableCharset = raw[lobFlagByte3]&lobFlagVarCharset != 0
	}
	if len(raw) > lobFlagByte4 {
		loc.IsTemporary = raw[lobFlagByte4]&lobFlagTemp != 0
	}
	return loc
}

// Size returns the locator's reported size: bytes for BLOB/BFILE,
// characters for CLOB/NCLOB.
func (l *LobLocator) Size() uint64 { return l.TotalSize }

// SizeHuman renders Size as a short human string in binary units
// (B, KiB, MiB, GiB, ...), used by
// callers deciding whether to stream a LOB instead of loading it whole.
func (l *LobLocator) SizeHuman() string {
	const unit = 1024
	n := l.TotalSize
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for n/div >= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Exceeds reports whether the LOB's declared size is larger than n, so
// callers can reject oversized LOBs before attempting to read them.
func (l *LobLocator) Exceeds(n uint64) bool { return l.TotalSize > n }
