package oratype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sijms-go-ora-thin/oracle/internal/wire"
)

func TestNullSentinelIsDistinctFromEmpty(t *testing.T) {
	for _, typeNum := range []int{TypeVarchar2, TypeChar, TypeNumber, TypeRaw, TypeDate} {
		v, err := DecodeRaw(typeNum, nil)
		require.NoError(t, err)
		assert.Equal(t, KindNull, v.Kind, "type %d", typeNum)
		assert.True(t, v.IsNull())
	}

	text, err := DecodeRaw(TypeVarchar2, []byte("x"))
	require.NoError(t, err)
	assert.NotEqual(t, KindNull, text.Kind)
}

func TestDecodeFoldsWireNullIntoNullValue(t *testing.T) {
	// 0xFF length prefix is the wire's NULL sentinel.
	r := wire.NewReadBuffer([]byte{0xFF})
	v, err := Decode(TypeVarchar2, r)
	require.NoError(t, err)
	assert.Equal(t, KindNull, v.Kind)
	assert.Equal(t, 0, r.Remaining(), "NULL must not consume further bytes")
}

func TestDecodeTextAndRaw(t *testing.T) {
	v, err := DecodeRaw(TypeVarchar2, []byte("VariableChar"))
	require.NoError(t, err)
	assert.Equal(t, KindText, v.Kind)
	assert.Equal(t, "VariableChar", v.Text)

	b, err := DecodeRaw(TypeRaw, []byte{0xDE, 0xAD})
	require.NoError(t, err)
	assert.Equal(t, KindBytes, b.Kind)
	assert.Equal(t, []byte{0xDE, 0xAD}, b.Bytes)
}

func TestDecodeBinaryInteger(t *testing.T) {
	v, err := DecodeRaw(TypeBinaryInteger, []byte{0x00, 0x00, 0x00, 0x2A})
	require.NoError(t, err)
	assert.Equal(t, KindNumber, v.Kind)
	assert.Equal(t, "42", v.Text)

	neg, err := DecodeRaw(TypeBinaryInteger, []byte{0xFF, 0xFF, 0xFF, 0xFF})
	require.NoError(t, err)
	assert.Equal(t, "-1", neg.Text)

	short, err := DecodeRaw(TypeBinaryInteger, []byte{0x07})
	require.NoError(t, err)
	assert.Equal(t, "7", short.Text)
}

func TestDecodeNumberColumn(t *testing.T) {
	v, err := DecodeRaw(TypeNumber, []byte{0xC1, 0x02})
	require.NoError(t, err)
	assert.Equal(t, KindNumber, v.Kind)
	assert.Equal(t, "1", v.Text)
}

func TestDecodeLobNullWhenPrefetchLengthZero(t *testing.T) {
	r := wire.NewReadBuffer([]byte{0})
	v, err := DecodeLob(r, LobClob)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestDecodeLobInlineClob(t *testing.T) {
	w := wire.NewWriteBuffer()
	w.PutUB(17)   // prefetch length
	w.PutUB(17)   // size in characters
	w.PutUB(8132) // chunk size
	locator := make([]byte, 40)
	locator[4] = 0x20 // value-based
	w.PutCLR(locator)
	w.PutCLR([]byte("large text object"))

	v, err := DecodeLob(wire.NewReadBuffer(w.Bytes()), LobClob)
	require.NoError(t, err)
	assert.Equal(t, KindInlineClob, v.Kind)
	assert.Contains(t, v.Text, "large text object")
	require.NotNil(t, v.Lob)
	assert.Equal(t, uint64(17), v.Lob.Size())
	assert.True(t, v.Lob.IsValueBased)
}

func TestDecodeLobLocatorOnly(t *testing.T) {
	w := wire.NewWriteBuffer()
	w.PutUB(1)
	w.PutUB(1 << 20) // 1 MiB declared size
	w.PutUB(8132)
	locator := make([]byte, 40)
	locator[4] = 0x01 // BLOB flag
	w.PutCLR(locator)
	w.PutByte(0) // no prefetched data

	v, err := DecodeLob(wire.NewReadBuffer(w.Bytes()), LobBlob)
	require.NoError(t, err)
	assert.Equal(t, KindLobRef, v.Kind)
	assert.Equal(t, LobBlob, v.Lob.Kind)
	assert.True(t, v.Lob.Exceeds(1<<19))
	assert.False(t, v.Lob.Exceeds(1<<20))
	assert.Equal(t, "1.0 MiB", v.Lob.SizeHuman())
}

func TestLobLocatorFlagBits(t *testing.T) {
	raw := make([]byte, 40)
	raw[4] = 0x01 | 0x40 // BLOB + abstract
	raw[6] = 0x80        // variable-length charset
	raw[7] = 0x01        // temporary
	loc := NewLobLocator(raw, 10, 100, LobClob)
	assert.Equal(t, LobBlob, loc.Kind, "BLOB flag bit overrides the declared kind")
	assert.True(t, loc.IsAbstract)
	assert.True(t, loc.VariableCharset)
	assert.True(t, loc.IsTemporary)
	assert.Equal(t, raw, loc.Raw[:], "non-flag bytes pass through verbatim")
}
