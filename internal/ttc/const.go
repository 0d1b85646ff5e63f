// Package ttc implements the L5 message dispatcher and L6 statement
// execution layer: EXECUTE/FETCH request framing, the describe-info,
// row-header/row-data and end-of-call error-info response parsers, and
// LOB_OP read support.
package ttc

// Message-type dispatch bytes, the first byte of every TTC response
// message.
const (
	MsgTypeError               = 4
	MsgTypeRowHeader           = 6
	MsgTypeRowData             = 7
	MsgTypeParameter           = 8
	MsgTypeStatus              = 9
	MsgTypeIOVector            = 11
	MsgTypeLobData             = 14
	MsgTypeWarning             = 15
	MsgTypeDescribeInfo        = 16
	MsgTypePiggyback           = 17
	MsgTypeBitVector           = 21
	MsgTypeServerSidePiggyback = 23
	MsgTypeEndOfResponse       = 29
)

// Function codes, the second byte of an outgoing FUNCTION (type 3) message.
const (
	FuncFetch        = 5
	FuncCommit       = 14
	FuncRollback     = 15
	FuncLogoff       = 9
	FuncExecute      = 94
	FuncLobOp        = 96
	FuncPing         = 147
	FuncCloseCursors = 105
	FuncAuthPhaseTwo = 115
	FuncAuthPhaseOne = 118
)

// Execute option bits carried in the EXECUTE message's first ub4.
const (
	ExecOptionParse         = 0x00001
	ExecOptionDefine        = 0x00010 // HasDefine, unused by this client
	ExecOptionBind          = 0x00008
	ExecOptionExecute       = 0x00020
	ExecOptionCommit        = 0x00100
	ExecOptionPLSQLBind     = 0x00400
	ExecOptionNotPLSQL      = 0x08000
	ExecOptionPLSQLOrReturn = 0x40000
)

// Column-metadata field-version gates: each server release past these
// thresholds appends more fields to the describe record.
const (
	fieldVersion12_2     = 8
	fieldVersion23_1     = 17
	fieldVersion23_1Ext3 = 20
	fieldVersion23_4     = 24
)

// longLengthIndicator marks the chunked-bytes escape in a one-byte length
// prefix (0xFE), used by several skip/parse helpers that don't go through
// wire.Stream.GetClr directly.
const longLengthIndicator = 0xFE

// endOfFetch is ORA-01403, the sentinel meaning "no more rows" rather than
// a real error.
const endOfFetch = 1403
