package wire

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticStreamReads(t *testing.T) {
	w := NewWriteBuffer()
	w.PutByte(7)
	w.PutUB(0x01020304)
	w.PutCLR([]byte("abc"))
	s := NewStaticStream(w.Bytes())

	b, err := s.GetByte()
	require.NoError(t, err)
	assert.Equal(t, byte(7), b)
	v, err := s.GetUB()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x01020304), v)
	clr, err := s.GetClr()
	require.NoError(t, err)
	assert.Equal(t, "abc", string(clr))
	assert.True(t, s.AtEnd())

	_, err = s.GetByte()
	assert.Error(t, err, "a static stream cannot refill")
}

func TestStreamRefillsAcrossPackets(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	go func() {
		defer server.Close()
		for _, body := range [][]byte{[]byte("hel"), []byte("lo world")} {
			payload := append([]byte{0, 0}, body...)
			pkt := make([]byte, 8+len(payload))
			binary.BigEndian.PutUint16(pkt[0:], uint16(len(pkt)))
			pkt[4] = byte(PacketTypeData)
			copy(pkt[8:], payload)
			server.Write(pkt)
		}
	}()

	s := NewStream(NewSession(NewConn(client)))
	got, err := s.GetBytes(11)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
}

func TestStreamReset(t *testing.T) {
	s := NewStaticStream([]byte{1, 2, 3})
	_, err := s.GetByte()
	require.NoError(t, err)
	s.Reset()
	assert.Equal(t, 0, s.Remaining())
	assert.True(t, s.AtEnd())
}
