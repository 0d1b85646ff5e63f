// Package protocol implements the L3 handshake and capability negotiation
// layer: CONNECT/ACCEPT, the protocol version exchange, and the data-type
// capability vectors exchanged right after ACCEPT.
package protocol

import (
	"fmt"

	"github.com/sijms-go-ora-thin/oracle/internal/wire"
)

// Protocol version thresholds.
const (
	VersionDesired               = 319
	VersionMinimum               = 300
	VersionMinAccepted           = 315 // 12.1
	VersionMinLargeSDU           = 315
	VersionMinEndOfResponse      = 319
	FieldVersion19_1Ext1    byte = 13
	FieldVersion20_1        byte = 14
)

// AcceptFlags2 bits carried in the ACCEPT packet's extended flags.
const (
	AcceptFlagFastAuth         uint32 = 0x10000000
	AcceptFlagHasEndOfResponse uint32 = 0x02000000
)

// Capabilities holds both negotiation vectors. TTCFieldVersion (what the
// client asked for) and ServerTTCFieldVersion (what the server declared)
// are kept as two separate fields because they can diverge:
// TTCFieldVersion governs how *we* build requests and parse column
// metadata, ServerTTCFieldVersion governs how the error-info record the
// server sends back is actually shaped (it gains extra fields from 20.1
// onward regardless of what we asked for).
type Capabilities struct {
	ProtocolVersion uint16

	SupportsEndOfResponse bool
	SupportsFastAuth      bool

	TTCFieldVersion       byte
	ServerTTCFieldVersion byte

	CompileTimeCaps []byte
	RuntimeCaps     []byte

	ServerCompileTimeCaps []byte
	ServerRuntimeCaps     []byte

	HasEOSCapability  bool // end-of-call-status, from server compile caps byte 15
	HasFSAPCapability bool // fast session-propagate, from server compile caps byte 16

	// ServerFlags is the single flags byte the server sends during protocol
	// negotiation (distinct from the compile/runtime capability vectors);
	// DataTypeNego echoes it back verbatim in its outgoing message.
	ServerFlags byte
}

// NewCapabilities builds the default client-side capability vectors. The
// compile/runtime byte tables are protocol constants, not derived values.
func NewCapabilities() *Capabilities {
	return &Capabilities{
		TTCFieldVersion: 24, // TNS_CCAP_FIELD_VERSION_MAX (23.4)
		CompileTimeCaps: []byte{
			6, 1, 0, 0, 10, 1, 1, 24,
			1, 1, 1, 1, 1, 1, 0, 0x29,
			0x90, 3, 7, 3, 0, 1, 0, 0x6B,
			1, 0, 5, 1, 0, 0, 0, 0,
			0, 0, 0, 0, 1, 2,
		},
		RuntimeCaps: []byte{2, 1, 0, 0, 0, 0, 0},
	}
}

// AdjustForProtocol records the negotiated protocol version and, from
// VersionMinEndOfResponse onward, whether the server advertised end-of-
// response / fast-auth support in the ACCEPT flags.
func (c *Capabilities) AdjustForProtocol(version uint16, flags2 uint32) {
	c.ProtocolVersion = version
	if version >= VersionMinEndOfResponse {
		c.SupportsEndOfResponse = flags2&AcceptFlagHasEndOfResponse != 0
	}
	c.SupportsFastAuth = flags2&AcceptFlagFastAuth != 0
}

// AdjustForServerCaps records the server's declared field version
// unconditionally (ServerTTCFieldVersion) and only *lowers* the client's
// own TTCFieldVersion when the server's is smaller — never raises it.
// Conflating the two fields silently corrupts error-record parsing.
func (c *Capabilities) AdjustForServerCaps(serverCompileCaps, serverRuntimeCaps []byte) {
	c.ServerCompileTimeCaps = serverCompileCaps
	c.ServerRuntimeCaps = serverRuntimeCaps
	if len(serverCompileCaps) > 15 && serverCompileCaps[15]&1 != 0 {
		c.HasEOSCapability = true
	}
	if len(serverCompileCaps) > 16 && serverCompileCaps[16]&1 != 0 {
		c.HasFSAPCapability = true
	}
	const fieldVersionIdx = 7
	if len(serverCompileCaps) > fieldVersionIdx {
		serverVersion := serverCompileCaps[fieldVersionIdx]
		c.ServerTTCFieldVersion = serverVersion
		if serverVersion < c.TTCFieldVersion {
			c.TTCFieldVersion = serverVersion
			c.CompileTimeCaps[fieldVersionIdx] = serverVersion
		}
	}
}

// NeedsExtraErrorFields reports whether the error-info record the server
// sends includes the two extra ub4 fields (sql_type, server_checksum)
// introduced at field version 20.1 — gated on the *server's* declared
// version, independent of what we requested.
func (c *Capabilities) NeedsExtraErrorFields() bool {
	return c.ServerTTCFieldVersion >= FieldVersion20_1
}

// NegotiateProtocol performs the protocol version exchange: send the
// client magic string, parse the server's version byte, charset info, and
// initial compile/runtime capability vectors, recording the server's side
// into caps.
func NegotiateProtocol(s *wire.Session, caps *Capabilities) error {
	s.BeginRequest()
	var out []byte
	out = append(out, 1, 6, 0)
	out = append(out, []byte("OracleClientGo\x00")...)
	if err := s.Send(out, 0); err != nil {
		return err
	}
	msg, err := s.Recv()
	if err != nil {
		return err
	}
	r := wire.NewReadBuffer(msg.Body)
	code, err := r.GetByte()
	if err != nil {
		return err
	}
	if code != 1 {
		return fmt.Errorf("protocol: unexpected message code %d (want 1)", code)
	}
	if _, err := r.GetByte(); err != nil { // protocol server version byte
		return err
	}
	if _, err := r.GetByte(); err != nil { // reserved
		return err
	}
	if _, err := r.GetNullTermString(50); err != nil {
		return err
	}
	if _, err := r.GetUint16BE(); err != nil { // server charset
		return err
	}
	serverFlags, err := r.GetByte()
	if err != nil {
		return err
	}
	caps.ServerFlags = serverFlags
	charsetElemCount, err := r.GetUint16BE()
	if err != nil {
		return err
	}
	if charsetElemCount > 0 {
		if _, err := r.GetBytes(int(charsetElemCount) * 5); err != nil {
			return err
		}
	}
	len1, err := r.GetUint16BE()
	if err != nil {
		return err
	}
	if _, err := r.GetBytes(int(len1)); err != nil {
		return err
	}
	len2, err := r.GetByte()
	if err != nil {
		return err
	}
	serverCompile, err := r.GetBytes(int(len2))
	if err != nil {
		return err
	}
	len3, err := r.GetByte()
	if err != nil {
		return err
	}
	serverRuntime, err := r.GetBytes(int(len3))
	if err != nil {
		return err
	}
	caps.AdjustForServerCaps(serverCompile, serverRuntime)
	return nil
}
