package oratype

import (
	"fmt"
	"strconv"

	"github.com/sijms-go-ora-thin/oracle/internal/wire"
)

// Decode reads one column value off r for the given Oracle type number,
// using the CLR length-prefix convention shared by every non-LOB type.
// GetClr already folds the NULL sentinel (size byte 0 or 0xFF) into a nil
// slice, so a nil return here always becomes Null(), distinct from an
// empty string or zero-length RAW.
func Decode(typeNum int, r *wire.ReadBuffer) (Value, error) {
	raw, err := r.GetClr()
	if err != nil {
		return Value{}, fmt.Errorf("oratype: decode type %d: %w", typeNum, err)
	}
	return DecodeRaw(typeNum, raw)
}

// DecodeRaw dispatches on an already-extracted column payload (the CLR
// framing already stripped by the caller). A nil raw means NULL, kept
// distinct from an empty string or zero-length RAW.
func DecodeRaw(typeNum int, raw []byte) (Value, error) {
	if raw == nil {
		return Null(), nil
	}
	switch typeNum {
	case TypeVarchar2, TypeChar, TypeLong:
		return TextValue(string(raw)), nil
	case TypeNumber:
		s, err := DecodeNumber(raw)
		if err != nil {
			return Value{}, err
		}
		return NumberValue(s), nil
	case TypeBinaryInteger:
		return NumberValue(decodeBinaryInteger(raw)), nil
	case TypeDate:
		dt, err := DecodeDate(raw)
		if err != nil {
			return Value{}, err
		}
		return DateValue(dt), nil
	case TypeTimestamp:
		dt, err := DecodeTimestamp(raw)
		if err != nil {
			return Value{}, err
		}
		return TimestampValue(dt), nil
	case TypeTimestampTZ:
		dt, err := DecodeTimestampTZ(raw)
		if err != nil {
			return Value{}, err
		}
		return TimestampValue(dt), nil
	case TypeRaw, TypeLongRaw:
		return BytesValue(raw), nil
	default:
		return BytesValue(raw), nil
	}
}

// decodeBinaryInteger renders a big-endian integer of up to four bytes as
// decimal text. A four-byte value is read as signed two's complement;
// shorter values are read as unsigned.
func decodeBinaryInteger(raw []byte) string {
	var v uint32
	for _, b := range raw {
		v = v<<8 | uint32(b)
	}
	if len(raw) == 4 {
		return strconv.FormatInt(int64(int32(v)), 10)
	}
	return strconv.FormatUint(uint64(v), 10)
}

// DecodeLob reads the inline-or-locator LOB wire format used for CLOB/BLOB
// columns: a ub4 prefetch-length indicator of 0 means NULL;
// otherwise size (ub8) and chunk size (ub4) follow for non-BFILE kinds,
// then the locator bytes and, when the server prefetched the value, the
// inline data itself — both CLR-framed.
func DecodeLob(r *wire.ReadBuffer, kind LobKind) (Value, error) {
	numBytes, err := r.GetUB()
	if err != nil {
		return Value{}, fmt.Errorf("oratype: LOB prefetch length: %w", err)
	}
	if numBytes == 0 {
		return Null(), nil
	}
	isBFile := kind == LobBFile
	var size uint64
	var chunkSize uint32
	if !isBFile {
		size, err = r.GetUB()
		if err != nil {
			return Value{}, fmt.Errorf("oratype: LOB size: %w", err)
		}
		cs, err := r.GetUB()
		if err != nil {
			return Value{}, fmt.Errorf("oratype: LOB chunk size: %w", err)
		}
		chunkSize = uint32(cs)
	}
	locatorRaw, err := r.GetClr()
	if err != nil {
		return Value{}, fmt.Errorf("oratype: LOB locator: %w", err)
	}
	loc := NewLobLocator(locatorRaw, size, chunkSize, kind)

	data, err := r.GetClr()
	if err != nil {
		return Value{}, fmt.Errorf("oratype: LOB prefetch data: %w", err)
	}
	if data == nil {
		return LobRefValue(loc), nil
	}
	if kind == LobClob || kind == LobNClob {
		return Value{Kind: KindInlineClob, Text: string(data), Lob: loc}, nil
	}
	return Value{Kind: KindInlineBlob, InlineLob: data, Lob: loc}, nil
}
