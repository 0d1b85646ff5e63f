package ttc

import (
	"github.com/sijms-go-ora-thin/oracle/internal/oratype"
	"github.com/sijms-go-ora-thin/oracle/internal/wire"
)

// Row is one fetched row, decoded into the oratype.Value tagged union per
// column.
type Row struct {
	Values []oratype.Value
}

// skipRowHeader discards the MSG_TYPE_ROW_HEADER body: this client doesn't
// implement the duplicate-column bit-vector optimization the server
// advertises here, so every column is always read fully from ROW_DATA.
func skipRowHeader(s *wire.Stream) error {
	if _, err := s.GetByte(); err != nil { // flags
		return err
	}
	if _, err := s.GetUB(); err != nil { // num requests
		return err
	}
	if _, err := s.GetUB(); err != nil { // iteration number
		return err
	}
	if _, err := s.GetUB(); err != nil { // num iters
		return err
	}
	if _, err := s.GetUB(); err != nil { // buffer length
		return err
	}
	numBytes, err := s.GetUB()
	if err != nil {
		return err
	}
	if numBytes > 0 {
		if _, err := s.GetByte(); err != nil { // repeated length byte
			return err
		}
		if err := s.Skip(int(numBytes - 1)); err != nil {
			return err
		}
	}
	rxhridBytes, err := s.GetUB()
	if err != nil {
		return err
	}
	if rxhridBytes > 0 {
		if err := s.SkipChunked(); err != nil {
			return err
		}
	}
	return nil
}

// parseRowData reads one ROW_DATA body into column values, dispatching
// CLOB and BLOB columns through the inline-or-locator reader and everything
// else (NCLOB and BFILE included) through the plain CLR decoders.
func parseRowData(s *wire.Stream, columns []ColumnMetadata) (Row, error) {
	values := make([]oratype.Value, len(columns))
	for i, col := range columns {
		v, err := decodeColumn(s, col)
		if err != nil {
			return Row{}, err
		}
		values[i] = v
	}
	return Row{Values: values}, nil
}

func decodeColumn(s *wire.Stream, col ColumnMetadata) (oratype.Value, error) {
	switch col.OracleType {
	case oratype.TypeCLOB:
		return streamDecodeLob(s, oratype.LobClob)
	case oratype.TypeBLOB:
		return streamDecodeLob(s, oratype.LobBlob)
	default:
		raw, err := s.GetClr()
		if err != nil {
			return oratype.Value{}, err
		}
		return oratype.DecodeRaw(col.OracleType, raw)
	}
}

func streamDecodeLob(s *wire.Stream, kind oratype.LobKind) (oratype.Value, error) {
	numBytes, err := s.GetUB()
	if err != nil {
		return oratype.Value{}, err
	}
	if numBytes == 0 {
		return oratype.Null(), nil
	}
	var size uint64
	var chunkSize uint32
	if kind != oratype.LobBFile {
		size, err = s.GetUB()
		if err != nil {
			return oratype.Value{}, err
		}
		cs, err := s.GetUB()
		if err != nil {
			return oratype.Value{}, err
		}
		chunkSize = uint32(cs)
	}
	locatorRaw, err := s.GetClr()
	if err != nil {
		return oratype.Value{}, err
	}
	loc := oratype.NewLobLocator(locatorRaw, size, chunkSize, kind)

	data, err := s.GetClr()
	if err != nil {
		return oratype.Value{}, err
	}
	if data == nil {
		return oratype.LobRefValue(loc), nil
	}
	if kind == oratype.LobClob || kind == oratype.LobNClob {
		return oratype.Value{Kind: oratype.KindInlineClob, Text: string(data), Lob: loc}, nil
	}
	return oratype.Value{Kind: oratype.KindInlineBlob, InlineLob: data, Lob: loc}, nil
}
