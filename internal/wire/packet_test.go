package wire

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkerPacketRoundTrip(t *testing.T) {
	raw := BuildMarkerPacket(MarkerTypeReset, 2)
	assert.Equal(t, byte(PacketTypeMarker), raw[4])

	pkt := &Packet{Type: PacketTypeMarker, Payload: raw[8:]}
	m, err := ReadMarker(pkt)
	require.NoError(t, err)
	assert.Equal(t, MarkerTypeReset, m.Type)
	assert.Equal(t, byte(2), m.Data)
}

func TestDataPacketFraming(t *testing.T) {
	c := NewConn(nil)
	raw := buildDataPacket([]byte{0xAA, 0xBB}, 0)
	assert.Equal(t, uint16(len(raw)), binary.BigEndian.Uint16(raw[0:]), "declared length covers header and payload")
	assert.Equal(t, byte(PacketTypeData), raw[4])

	// A payload larger than the SDU splits into several DATA packets.
	c.SetSDU(30)
	packets := c.DataPackets(make([]byte, 25), 0)
	assert.Greater(t, len(packets), 1)
	total := 0
	for _, p := range packets {
		total += len(p) - headerSize - 2
	}
	assert.Equal(t, 25, total)
}

func TestReadPacketRefused(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	go func() {
		defer server.Close()
		reason := "ORA-12514: service unknown"
		body := make([]byte, 4+len(reason))
		body[0] = 1 // user reason
		body[1] = 2 // system reason
		binary.BigEndian.PutUint16(body[2:], uint16(len(reason)))
		copy(body[4:], reason)
		pkt := make([]byte, headerSize+len(body))
		binary.BigEndian.PutUint16(pkt[0:], uint16(len(pkt)))
		pkt[4] = byte(PacketTypeRefuse)
		copy(pkt[headerSize:], body)
		server.Write(pkt)
	}()

	conn := NewConn(client)
	_, err := conn.ReadPacket()
	var refused *ErrRefused
	require.ErrorAs(t, err, &refused)
	assert.Contains(t, refused.Message, "ORA-12514")
}

func TestReadPacketMalformedLength(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	go func() {
		defer server.Close()
		head := make([]byte, headerSize)
		binary.BigEndian.PutUint16(head[0:], 4) // shorter than the header itself
		head[4] = byte(PacketTypeData)
		server.Write(head)
	}()

	conn := NewConn(client)
	_, err := conn.ReadPacket()
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestReadPacketShortHeader(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	go func() {
		server.Write([]byte{0, 10, 0})
		server.Close()
	}()

	conn := NewConn(client)
	_, err := conn.ReadPacket()
	assert.Error(t, err)
}

func TestDecodeAcceptLegacyLayout(t *testing.T) {
	body := make([]byte, 24)
	binary.BigEndian.PutUint16(body[0:], 312) // pre-large-SDU version
	binary.BigEndian.PutUint16(body[2:], 1)
	binary.BigEndian.PutUint16(body[4:], 8192)
	binary.BigEndian.PutUint16(body[6:], 32767)
	info, err := DecodeAccept(&Packet{Type: PacketTypeAccept, Payload: body})
	require.NoError(t, err)
	assert.Equal(t, uint16(312), info.Version)
	assert.Equal(t, uint32(8192), info.SessionDataUnit)
	assert.Equal(t, uint16(32767), info.TransportDataUnit)
}

func TestDecodeAcceptModernLayout(t *testing.T) {
	body := make([]byte, 33)
	binary.BigEndian.PutUint16(body[0:], 319)
	binary.BigEndian.PutUint16(body[6:], 0xFFFF)
	binary.BigEndian.PutUint32(body[24:], 2097152)
	binary.BigEndian.PutUint32(body[29:], 0x10000000) // fast auth flag
	info, err := DecodeAccept(&Packet{Type: PacketTypeAccept, Payload: body})
	require.NoError(t, err)
	assert.Equal(t, uint16(319), info.Version)
	assert.Equal(t, uint32(2097152), info.SessionDataUnit)
	assert.Equal(t, uint32(0x10000000), info.Flags2)
}

func TestDecodeRedirect(t *testing.T) {
	addr := "(ADDRESS=(PROTOCOL=tcp)(HOST=db2)(PORT=1522))"
	body := make([]byte, 2+len(addr))
	binary.BigEndian.PutUint16(body[0:], uint16(len(addr)))
	copy(body[2:], addr)
	info, err := DecodeRedirect(&Packet{Type: PacketTypeRedirect, Payload: body})
	require.NoError(t, err)
	assert.Equal(t, addr, info.Address)
}

func TestSessionRecvReassemblesData(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	go func() {
		defer server.Close()
		payload := append([]byte{0, 0}, []byte("response")...)
		pkt := make([]byte, headerSize+len(payload))
		binary.BigEndian.PutUint16(pkt[0:], uint16(len(pkt)))
		pkt[4] = byte(PacketTypeData)
		copy(pkt[headerSize:], payload)
		server.Write(pkt)
	}()

	s := NewSession(NewConn(client))
	msg, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, "response", string(msg.Body))
	assert.False(t, msg.FromMarkerReset)
}

func TestSessionRecvMarkerRecovery(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	go func() {
		defer server.Close()
		// BREAK marker; the client must answer with RESET.
		server.Write(BuildMarkerPacket(MarkerTypeBreak, 1))
		buf := make([]byte, 11)
		if _, err := readFull(server, buf); err != nil {
			return
		}
		// Server's own RESET, then the DATA packet carrying the error.
		server.Write(BuildMarkerPacket(MarkerTypeReset, 2))
		payload := append([]byte{0, 0}, []byte("err")...)
		pkt := make([]byte, headerSize+len(payload))
		binary.BigEndian.PutUint16(pkt[0:], uint16(len(pkt)))
		pkt[4] = byte(PacketTypeData)
		copy(pkt[headerSize:], payload)
		server.Write(pkt)
	}()

	s := NewSession(NewConn(client))
	msg, err := s.Recv()
	require.NoError(t, err)
	assert.True(t, msg.FromMarkerReset)
	assert.Equal(t, "err", string(msg.Body))
}

func readFull(c net.Conn, buf []byte) (int, error) {
	got := 0
	for got < len(buf) {
		n, err := c.Read(buf[got:])
		if err != nil {
			return got, err
		}
		got += n
	}
	return got, nil
}
