package oracle

import "github.com/sijms-go-ora-thin/oracle/internal/oratype"

// Value is the tagged union a decoded column yields; see oratype.Value for
// the variant accessors. Null is distinct from Text("").
type Value = oratype.Value

// Kind tags a Value's variant.
type Kind = oratype.Kind

const (
	KindNull       = oratype.KindNull
	KindText       = oratype.KindText
	KindNumber     = oratype.KindNumber
	KindDate       = oratype.KindDate
	KindTimestamp  = oratype.KindTimestamp
	KindBytes      = oratype.KindBytes
	KindInlineClob = oratype.KindInlineClob
	KindInlineBlob = oratype.KindInlineBlob
	KindLobRef     = oratype.KindLobRef
)

// DateTime is the decoded form of DATE/TIMESTAMP columns.
type DateTime = oratype.DateTime

// LobLocator is the opaque 40-byte handle referencing out-of-row LOB
// storage, plus the size and chunk-size the server prefetched with it.
// Dereference it through Cursor.ReadClob/ReadBlob and friends.
type LobLocator = oratype.LobLocator

// LobKind distinguishes CLOB/NCLOB/BLOB/BFILE locators.
type LobKind = oratype.LobKind

const (
	LobClob  = oratype.LobClob
	LobNClob = oratype.LobNClob
	LobBlob  = oratype.LobBlob
	LobBFile = oratype.LobBFile
)
