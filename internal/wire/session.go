package wire

import (
	"bytes"
	"errors"
	"fmt"
)

// ErrConnectionBreak is returned when the server sends a MARKER(BREAK) and
// the recovery handshake (send RESET, drain until the server's own RESET)
// does not converge within a few round trips.
var ErrConnectionBreak = errors.New("wire: connection break")

// Message is the payload of one received DATA packet (after the 2-byte
// data-flags header). Most TTC responses fit in a single DATA packet; a
// response that spans several arrives as several Messages, which Stream
// and RecvAssembled join back together.
type Message struct {
	DataFlags uint16
	Body      []byte
	// FromMarkerReset is set when this message was preceded by a
	// BREAK/RESET recovery cycle, so the caller (normally the error-info
	// parser) knows the accompanying data is a marker-recovered error.
	FromMarkerReset bool
}

// Session is the L1 transport session: it owns the one TCP connection for
// a logged-on or logging-on client, keeps the packet history needed to
// answer RESEND, and hands each received DATA packet to the caller as a
// Message. Exactly one request may be outstanding at a time.
type Session struct {
	conn    *Conn
	history [][]byte // raw packets of the current outstanding request, for RESEND
}

func NewSession(conn *Conn) *Session {
	return &Session{conn: conn}
}

func (s *Session) Conn() *Conn { return s.conn }

// BeginRequest clears the resend history; call this before sending a new
// request so a RESEND from a previous exchange can't replay stale bytes.
func (s *Session) BeginRequest() { s.history = nil }

// Send writes payload as one or more DATA packets (SDU-fragmented) and
// remembers the exact raw bytes sent so a later RESEND can replay them.
func (s *Session) Send(payload []byte, dataFlags uint16) error {
	for _, raw := range s.conn.DataPackets(payload, dataFlags) {
		if err := s.conn.WriteRaw(raw); err != nil {
			return err
		}
		s.history = append(s.history, raw)
	}
	return nil
}

// SendMarker writes a MARKER packet (used for BREAK/RESET during
// cancellation) and remembers it for RESEND.
func (s *Session) SendMarker(t MarkerType, data byte) error {
	raw := BuildMarkerPacket(t, data)
	if err := s.conn.WriteRaw(raw); err != nil {
		return err
	}
	s.history = append(s.history, raw)
	return nil
}

// Recv reads the next DATA packet and returns its body as a Message
// (one packet per call; it does not join packets together), transparently
// handling RESEND (replays the current request's packet history) and
// MARKER BREAK/RESET recovery (drains until the server's RESET, then
// returns the ERROR DATA packet that follows as a FromMarkerReset
// message).
func (s *Session) Recv() (*Message, error) {
	for {
		pkt, err := s.conn.ReadPacket()
		if errors.Is(err, ErrResend) {
			for _, raw := range s.history {
				if werr := s.conn.writeRaw(raw); werr != nil {
					return nil, werr
				}
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		switch pkt.Type {
		case PacketTypeData:
			if len(pkt.Payload) < 2 {
				return nil, fmt.Errorf("wire: data packet too short")
			}
			flags := uint16(pkt.Payload[0])<<8 | uint16(pkt.Payload[1])
			return &Message{DataFlags: flags, Body: pkt.Payload[2:]}, nil
		case PacketTypeMarker:
			msg, err := s.handleMarker(pkt)
			if err != nil {
				return nil, err
			}
			return msg, nil
		case PacketTypeAccept, PacketTypeRedirect:
			return nil, fmt.Errorf("wire: unexpected packet type %d mid-session", pkt.Type)
		default:
			continue
		}
	}
}

// handleMarker implements the recovery cycle: a BREAK (or an INTERRUPT not
// already acked by RESET) must be answered with MARKER(RESET); the client
// then drains packets until it observes the server's own RESET marker, and
// the DATA packet that follows carries the real error to surface.
func (s *Session) handleMarker(first *Packet) (*Message, error) {
	m, err := ReadMarker(first)
	if err != nil {
		return nil, err
	}
	resetSeen := m.Type == MarkerTypeReset
	if !resetSeen {
		if err := s.conn.WriteMarker(MarkerTypeReset, 2); err != nil {
			return nil, err
		}
	}
	for attempts := 0; !resetSeen; attempts++ {
		if attempts > 8 {
			return nil, ErrConnectionBreak
		}
		pkt, err := s.conn.ReadPacket()
		if err != nil {
			return nil, err
		}
		if pkt.Type != PacketTypeMarker {
			continue
		}
		mm, err := ReadMarker(pkt)
		if err != nil {
			return nil, err
		}
		if mm.Type == MarkerTypeReset {
			resetSeen = true
		}
	}
	pkt, err := s.conn.ReadPacket()
	if err != nil {
		return nil, err
	}
	if pkt.Type != PacketTypeData || len(pkt.Payload) < 2 {
		return nil, fmt.Errorf("wire: expected data after marker reset")
	}
	flags := uint16(pkt.Payload[0])<<8 | uint16(pkt.Payload[1])
	return &Message{DataFlags: flags, Body: pkt.Payload[2:], FromMarkerReset: true}, nil
}

// RecvAssembled reads Messages until at least minLen bytes have accumulated
// (used when a single logical TTC message is known to span multiple DATA
// packets, e.g. a large row batch); it returns the concatenation.
func (s *Session) RecvAssembled(minLen int) ([]byte, error) {
	var buf bytes.Buffer
	for buf.Len() < minLen {
		msg, err := s.Recv()
		if err != nil {
			return nil, err
		}
		buf.Write(msg.Body)
	}
	return buf.Bytes(), nil
}
