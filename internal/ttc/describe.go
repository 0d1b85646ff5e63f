package ttc

import "github.com/sijms-go-ora-thin/oracle/internal/wire"

// ColumnMetadata describes one projected column, as carried by a
// DESCRIBE_INFO message. It is shared read-only by every row of the
// cursor.
type ColumnMetadata struct {
	Name       string
	OracleType int
	Precision  int8
	Scale      int8
	MaxSize    uint32
	BufferSize uint32
	CharsetID  uint16
	Nullable   bool
}

// ParseDescribeInfo reads a MSG_TYPE_DESCRIBE_INFO body: the caller has
// already skipped the leading chunked-bytes prelude; what follows is the
// max row size, the column count, a flags byte, then one column metadata
// record per column and a handful of trailing describe fields this client
// has no use for.
func ParseDescribeInfo(s *wire.Stream, ttcFieldVersion byte) ([]ColumnMetadata, error) {
	if _, err := s.GetUB(); err != nil { // max row size
		return nil, err
	}
	numColumns, err := s.GetUB()
	if err != nil {
		return nil, err
	}
	if numColumns > 0 {
		if _, err := s.GetByte(); err != nil { // flags
			return nil, err
		}
	}
	columns := make([]ColumnMetadata, 0, numColumns)
	for i := uint64(0); i < numColumns; i++ {
		col, err := parseColumnMetadata(s, ttcFieldVersion)
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}

	numBytes, err := s.GetUB()
	if err != nil {
		return nil, err
	}
	if numBytes > 0 {
		if err := s.SkipChunked(); err != nil {
			return nil, err
		}
	}
	for i := 0; i < 4; i++ { // dcbflag, dcbmdbz, dcbmnpr, dcbmxpr
		if _, err := s.GetUB(); err != nil {
			return nil, err
		}
	}
	numBytes2, err := s.GetUB()
	if err != nil {
		return nil, err
	}
	if numBytes2 > 0 {
		if err := s.SkipChunked(); err != nil {
			return nil, err
		}
	}
	return columns, nil
}

func parseColumnMetadata(s *wire.Stream, ttcFieldVersion byte) (ColumnMetadata, error) {
	var col ColumnMetadata

	oracleType, err := s.GetByte()
	if err != nil {
		return col, err
	}
	col.OracleType = int(oracleType)
	if _, err := s.GetByte(); err != nil { // flags
		return col, err
	}
	precision, err := s.GetByte()
	if err != nil {
		return col, err
	}
	col.Precision = int8(precision)
	scale, err := s.GetByte()
	if err != nil {
		return col, err
	}
	col.Scale = int8(scale)
	bufferSize, err := s.GetUB()
	if err != nil {
		return col, err
	}
	col.BufferSize = uint32(bufferSize)
	if _, err := s.GetUB(); err != nil { // max array elements
		return col, err
	}
	if _, err := s.GetUB(); err != nil { // cont flags (ub8)
		return col, err
	}
	if _, err := s.GetClr(); err != nil { // OID
		return col, err
	}
	if _, err := s.GetUB(); err != nil { // version
		return col, err
	}
	charsetID, err := s.GetUB()
	if err != nil {
		return col, err
	}
	col.CharsetID = uint16(charsetID)
	if _, err := s.GetByte(); err != nil { // charset form
		return col, err
	}
	maxSize, err := s.GetUB()
	if err != nil {
		return col, err
	}
	col.MaxSize = uint32(maxSize)

	if ttcFieldVersion >= fieldVersion12_2 {
		if _, err := s.GetUB(); err != nil { // oaccolid
			return col, err
		}
	}

	nullable, err := s.GetByte()
	if err != nil {
		return col, err
	}
	col.Nullable = nullable != 0
	if _, err := s.GetByte(); err != nil { // v7 length
		return col, err
	}

	if col.Name, err = readColumnString(s); err != nil {
		return col, err
	}
	if _, err := readColumnString(s); err != nil { // schema
		return col, err
	}
	if _, err := readColumnString(s); err != nil { // type name
		return col, err
	}
	if _, err := s.GetUB(); err != nil { // column position
		return col, err
	}
	if _, err := s.GetUB(); err != nil { // uds flags
		return col, err
	}

	if ttcFieldVersion >= fieldVersion23_1 {
		if _, err := readColumnString(s); err != nil { // domain schema
			return col, err
		}
		if _, err := readColumnString(s); err != nil { // domain name
			return col, err
		}
	}

	if ttcFieldVersion >= fieldVersion23_1Ext3 {
		numAnnotations, err := s.GetUB()
		if err != nil {
			return col, err
		}
		if numAnnotations > 0 {
			if _, err := s.GetByte(); err != nil {
				return col, err
			}
			actualCount, err := s.GetUB()
			if err != nil {
				return col, err
			}
			if _, err := s.GetByte(); err != nil {
				return col, err
			}
			for i := uint64(0); i < actualCount; i++ {
				if _, err := readColumnString(s); err != nil { // key
					return col, err
				}
				if _, err := readColumnString(s); err != nil { // value
					return col, err
				}
				if _, err := s.GetUB(); err != nil { // flags
					return col, err
				}
			}
			if _, err := s.GetUB(); err != nil { // flags
				return col, err
			}
		}
	}

	if ttcFieldVersion >= fieldVersion23_4 {
		if _, err := s.GetUB(); err != nil { // vector dimensions
			return col, err
		}
		if _, err := s.GetByte(); err != nil { // vector format
			return col, err
		}
		if _, err := s.GetByte(); err != nil { // vector flags
			return col, err
		}
	}

	return col, nil
}

// readColumnString mirrors Python's read_str_with_length as seen from the
// wire in describe info: a ub4 presence indicator followed by the usual
// CLR-framed string, rather than the CLR alone that other fields use.
func readColumnString(s *wire.Stream) (string, error) {
	indicator, err := s.GetUB()
	if err != nil {
		return "", err
	}
	if indicator == 0 {
		return "", nil
	}
	return s.GetStrWithLength()
}
