package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
)

// PacketType is the byte-4 discriminator of a TNS packet header.
type PacketType uint8

const (
	PacketTypeConnect  PacketType = 1
	PacketTypeAccept   PacketType = 2
	PacketTypeRefuse   PacketType = 4
	PacketTypeRedirect PacketType = 5
	PacketTypeData     PacketType = 6
	PacketTypeResend   PacketType = 11
	PacketTypeMarker   PacketType = 12
)

// MarkerType distinguishes the payload of a MARKER packet.
type MarkerType uint8

const (
	MarkerTypeBreak     MarkerType = 0
	MarkerTypeInterrupt MarkerType = 1
	MarkerTypeReset     MarkerType = 2
)

const headerSize = 8

// ErrRefused carries the server's reason when a REFUSE packet arrives;
// REFUSE at any point is terminal.
type ErrRefused struct {
	SystemReason, UserReason byte
	Message                  string
}

func (e *ErrRefused) Error() string {
	return fmt.Sprintf("wire: connection refused (system=%d user=%d): %s", e.SystemReason, e.UserReason, e.Message)
}

// ErrMalformed marks a packet whose declared length is too small to be a
// valid header.
var ErrMalformed = errors.New("wire: malformed packet (declared length < header size)")

// Packet is a single framed unit on the wire: 8-byte header + payload.
type Packet struct {
	Type    PacketType
	Flags   byte
	Payload []byte
}

// Marker carries the decoded contents of a MARKER packet, surfaced to
// callers as a distinct control signal rather than a payload.
type Marker struct {
	Type MarkerType
	Data byte
}

// Conn is the L1 framed transport: it reads and writes whole TNS packets
// over a TCP connection, one packet per read, fragmenting outgoing DATA to
// the SDU and exposing MARKER packets for the caller to act on explicitly.
type Conn struct {
	nc          net.Conn
	sdu         uint16 // negotiated session data unit, set after ACCEPT
	largeLength bool   // 4-byte packet length once SDU negotiation raises it
}

func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc, sdu: 2048}
}

func (c *Conn) SetSDU(sdu uint16) { c.sdu = sdu }
func (c *Conn) Close() error      { return c.nc.Close() }

// WriteConnect sends the initial CONNECT packet. When the connect
// descriptor is too large to fit inline (> 230 bytes, the protocol's
// TNS_MAX_CONNECT_DATA) the caller must follow up with a DATA packet
// carrying the descriptor instead.
func (c *Conn) WriteConnect(header []byte, inlineDescriptor []byte) error {
	pkt := append(append([]byte{}, header...), inlineDescriptor...)
	return c.writeRaw(pkt)
}

func (c *Conn) writeRaw(pkt []byte) error {
	_, err := c.nc.Write(pkt)
	return err
}

// WriteRaw writes an already-framed packet verbatim. Exposed so Session can
// replay packets from its RESEND history without reconstructing them.
func (c *Conn) WriteRaw(pkt []byte) error { return c.writeRaw(pkt) }

// WriteData sends a DATA packet, fragmenting into SDU-sized pieces when
// the payload exceeds the negotiated session data unit.
func (c *Conn) WriteData(payload []byte, dataFlags uint16) error {
	for _, raw := range c.DataPackets(payload, dataFlags) {
		if err := c.writeRaw(raw); err != nil {
			return err
		}
	}
	return nil
}

// DataPackets builds the raw framed bytes of every DATA fragment payload
// would be split into, without writing them. Session uses this so it can
// both send and remember the exact bytes for RESEND replay.
func (c *Conn) DataPackets(payload []byte, dataFlags uint16) [][]byte {
	segment := int(c.sdu) - 20
	if segment <= 0 {
		segment = 1024
	}
	if len(payload) == 0 {
		return [][]byte{buildDataPacket(nil, dataFlags)}
	}
	var out [][]byte
	offset := 0
	for offset < len(payload) {
		end := offset + segment
		if end > len(payload) {
			end = len(payload)
		}
		out = append(out, buildDataPacket(payload[offset:end], dataFlags))
		offset = end
	}
	return out
}

func buildDataPacket(chunk []byte, dataFlags uint16) []byte {
	total := headerSize + 2 + len(chunk)
	buf := make([]byte, total)
	binary.BigEndian.PutUint16(buf[0:], uint16(total))
	buf[4] = byte(PacketTypeData)
	buf[5] = 0
	binary.BigEndian.PutUint16(buf[8:], dataFlags)
	copy(buf[10:], chunk)
	return buf
}

// WriteMarker sends a MARKER packet of the given type/data, using the
// protocol's fixed 11-byte marker layout.
func (c *Conn) WriteMarker(t MarkerType, data byte) error {
	return c.writeRaw(BuildMarkerPacket(t, data))
}

// BuildMarkerPacket builds the raw framed bytes of a MARKER packet without
// writing them, so Session can remember it for RESEND replay.
func BuildMarkerPacket(t MarkerType, data byte) []byte {
	return []byte{0, 0xB, 0, 0, byte(PacketTypeMarker), 0, 0, 0, byte(t), 0, data}
}

// readExactly reads n bytes from the socket, retrying on short reads.
func (c *Conn) readExactly(n int) ([]byte, error) {
	buf := make([]byte, n)
	got := 0
	for got < n {
		m, err := c.nc.Read(buf[got:])
		if err != nil {
			return nil, err
		}
		got += m
	}
	return buf, nil
}

// ReadPacket reads exactly one framed packet off the wire. RESEND packets
// are never returned to the caller; they mean "retransmit your last
// request", so ReadPacket returns ErrResend to let Session orchestrate
// the replay.
var ErrResend = errors.New("wire: server requested resend")

func (c *Conn) ReadPacket() (*Packet, error) {
	head, err := c.readExactly(headerSize)
	if err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint16(head)
	if length < headerSize {
		return nil, ErrMalformed
	}
	bodyLen := int(length) - headerSize
	body, err := c.readExactly(bodyLen)
	if err != nil {
		return nil, err
	}
	pt := PacketType(head[4])
	if pt == PacketTypeResend {
		return nil, ErrResend
	}
	if pt == PacketTypeRefuse {
		if len(body) < 4 {
			return nil, ErrMalformed
		}
		dataLen := binary.BigEndian.Uint16(body[2:4])
		msg := ""
		if len(body) >= 4+int(dataLen) {
			msg = string(body[4 : 4+dataLen])
		}
		return nil, &ErrRefused{SystemReason: body[1], UserReason: body[0], Message: msg}
	}
	return &Packet{Type: pt, Flags: head[5], Payload: body}, nil
}

// ReadMarker decodes a MARKER packet's type/data (type at payload offset
// 0, data at offset 2).
func ReadMarker(p *Packet) (*Marker, error) {
	if p.Type != PacketTypeMarker || len(p.Payload) < 3 {
		return nil, fmt.Errorf("wire: not a marker packet")
	}
	return &Marker{Type: MarkerType(p.Payload[0]), Data: p.Payload[2]}, nil
}

// AcceptInfo is the decoded ACCEPT packet body (dataOffset fixed at 32 by
// the protocol). Field layout follows the server's own ACCEPT framing, not
// a fixed struct: NSIFlags1 and SDU width both depend on ProtocolVersion,
// and Flags2 is only present from VersionMinOOBCheck onward.
type AcceptInfo struct {
	Version           uint16
	Options           uint16
	SessionDataUnit   uint32
	TransportDataUnit uint16
	Flags2            uint32
}

const versionMinOOBCheck = 318

func DecodeAccept(p *Packet) (*AcceptInfo, error) {
	b := p.Payload
	if len(b) < 24 {
		return nil, ErrMalformed
	}
	// payload is packetData[8:]; offsets below are relative to payload start.
	info := &AcceptInfo{
		Version: binary.BigEndian.Uint16(b[0:]),
		Options: binary.BigEndian.Uint16(b[2:]),
	}
	if info.Version < versionMinOOBCheck {
		// Legacy (pre-18c) two-byte SDU/TDU fields, at the offsets the
		// compact ACCEPT layout has always used.
		if len(b) < 8 {
			return nil, ErrMalformed
		}
		info.SessionDataUnit = uint32(binary.BigEndian.Uint16(b[4:]))
		info.TransportDataUnit = binary.BigEndian.Uint16(b[6:])
		return info, nil
	}
	// Modern layout: NSI flags at byte 14, four-byte SDU at byte 24, and
	// (since this version gates OOB-check support) an optional flags2
	// word five bytes further on.
	if len(b) < 28 {
		return nil, ErrMalformed
	}
	info.TransportDataUnit = binary.BigEndian.Uint16(b[6:])
	info.SessionDataUnit = binary.BigEndian.Uint32(b[24:])
	if len(b) >= 33 {
		info.Flags2 = binary.BigEndian.Uint32(b[29:])
	}
	return info, nil
}

// RedirectInfo is the decoded REDIRECT packet body.
type RedirectInfo struct {
	Address       string
	ReconnectData string
}

func DecodeRedirect(p *Packet) (*RedirectInfo, error) {
	b := p.Payload
	if len(b) < 2 {
		return nil, ErrMalformed
	}
	dataLen := int(binary.BigEndian.Uint16(b[0:]))
	if len(b) < 2+dataLen {
		return nil, ErrMalformed
	}
	data := string(b[2 : 2+dataLen])
	if p.Flags&0x2 == 0 {
		return &RedirectInfo{Address: data}, nil
	}
	for i := 0; i < len(data); i++ {
		if data[i] == 0 {
			return &RedirectInfo{Address: data[:i], ReconnectData: data[i:]}, nil
		}
	}
	return &RedirectInfo{Address: data}, nil
}
