package oratype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDate(t *testing.T) {
	// 2024-05-15 10:30:45
	raw := []byte{120, 124, 5, 15, 11, 31, 46}
	dt, err := DecodeDate(raw)
	require.NoError(t, err)
	assert.Equal(t, 2024, dt.Year)
	assert.Equal(t, 5, dt.Month)
	assert.Equal(t, 15, dt.Day)
	assert.Equal(t, 10, dt.Hour)
	assert.Equal(t, 30, dt.Minute)
	assert.Equal(t, 45, dt.Second)
	assert.Equal(t, "2024-05-15 10:30:45", dt.String())
}

func TestDateEncodeDecodeRoundTrip(t *testing.T) {
	dt := DateTime{Year: 1999, Month: 12, Day: 31, Hour: 23, Minute: 59, Second: 59}
	got, err := DecodeDate(EncodeDate(dt))
	require.NoError(t, err)
	assert.Equal(t, dt, got)
}

func TestDecodeDateRejectsWrongLength(t *testing.T) {
	_, err := DecodeDate([]byte{120, 124, 5})
	assert.Error(t, err)
}

func TestDecodeDateRejectsBadFields(t *testing.T) {
	_, err := DecodeDate([]byte{120, 124, 13, 15, 11, 31, 46})
	assert.Error(t, err, "month 13")
	_, err = DecodeDate([]byte{120, 124, 5, 15, 25, 31, 46})
	assert.Error(t, err, "hour 24")
}

func TestDecodeTimestamp(t *testing.T) {
	raw := []byte{120, 124, 5, 15, 11, 31, 46, 0x07, 0x5B, 0xCD, 0x15}
	dt, err := DecodeTimestamp(raw)
	require.NoError(t, err)
	assert.Equal(t, 123456789, dt.Nanosecond)
	assert.False(t, dt.HasTZ)
}

func TestDecodeTimestampTZ(t *testing.T) {
	raw := []byte{120, 124, 5, 15, 11, 31, 46, 0, 0, 0, 0, 22, 90}
	dt, err := DecodeTimestampTZ(raw)
	require.NoError(t, err)
	assert.True(t, dt.HasTZ)
	assert.Equal(t, 2, dt.TZHourOffset)
	assert.Equal(t, 30, dt.TZMinute)
}
