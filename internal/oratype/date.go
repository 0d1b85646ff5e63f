package oratype

import "fmt"

// DateTime is the decoded form of an Oracle DATE/TIMESTAMP/TIMESTAMP_TZ
// column.
type DateTime struct {
	Year, Month, Day       int
	Hour, Minute, Second   int
	Nanosecond             int
	HasTZ                  bool
	TZHourOffset, TZMinute int
}

// DecodeDate decodes the 7-byte Oracle DATE encoding: byte 0 is
// century+100, byte 1 is year-in-century+100, month/day are direct, and
// hour/minute/second are each stored as value+1.
func DecodeDate(data []byte) (DateTime, error) {
	if len(data) != 7 {
		return DateTime{}, fmt.Errorf("oratype: DATE must be 7 bytes, got %d", len(data))
	}
	century := int(data[0]) - 100
	yearInCentury := int(data[1]) - 100
	dt := DateTime{
		Year:   century*100 + yearInCentury,
		Month:  int(data[2]),
		Day:    int(data[3]),
		Hour:   int(data[4]) - 1,
		Minute: int(data[5]) - 1,
		Second: int(data[6]) - 1,
	}
	if err := dt.validate(); err != nil {
		return DateTime{}, err
	}
	return dt, nil
}

// DecodeTimestamp decodes DATE bytes followed by a 4-byte big-endian
// fractional-seconds field (nanoseconds).
func DecodeTimestamp(data []byte) (DateTime, error) {
	if len(data) < 11 {
		return DateTime{}, fmt.Errorf("oratype: TIMESTAMP must be at least 11 bytes, got %d", len(data))
	}
	dt, err := DecodeDate(data[:7])
	if err != nil {
		return DateTime{}, err
	}
	dt.Nanosecond = int(data[7])<<24 | int(data[8])<<16 | int(data[9])<<8 | int(data[10])
	return dt, nil
}

// DecodeTimestampTZ decodes a TIMESTAMP value followed by two timezone
// bytes: the hour byte is offset by 20, the minute byte by 60, matching
// the OCI TZ encoding.
func DecodeTimestampTZ(data []byte) (DateTime, error) {
	if len(data) < 13 {
		return DateTime{}, fmt.Errorf("oratype: TIMESTAMP_TZ must be at least 13 bytes, got %d", len(data))
	}
	dt, err := DecodeTimestamp(data[:11])
	if err != nil {
		return DateTime{}, err
	}
	dt.HasTZ = true
	dt.TZHourOffset = int(data[11]) - 20
	dt.TZMinute = int(data[12]) - 60
	return dt, nil
}

func (dt DateTime) validate() error {
	if dt.Month < 1 || dt.Month > 12 {
		return fmt.Errorf("oratype: invalid DATE month %d", dt.Month)
	}
	if dt.Day < 1 || dt.Day > 31 {
		return fmt.Errorf("oratype: invalid DATE day %d", dt.Day)
	}
	if dt.Hour < 0 || dt.Hour > 23 {
		return fmt.Errorf("oratype: invalid DATE hour %d", dt.Hour)
	}
	if dt.Minute < 0 || dt.Minute > 59 {
		return fmt.Errorf("oratype: invalid DATE minute %d", dt.Minute)
	}
	if dt.Second < 0 || dt.Second > 59 {
		return fmt.Errorf("oratype: invalid DATE second %d", dt.Second)
	}
	return nil
}

// String renders the timestamp in a SQL-literal-like form, mainly for
// debugging and tracing.
func (dt DateTime) String() string {
	s := fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", dt.Year, dt.Month, dt.Day, dt.Hour, dt.Minute, dt.Second)
	if dt.Nanosecond > 0 {
		s += fmt.Sprintf(".%09d", dt.Nanosecond)
	}
	if dt.HasTZ {
		sign := "+"
		h := dt.TZHourOffset
		if h < 0 {
			sign = "-"
			h = -h
		}
		s += fmt.Sprintf(" %s%02d:%02d", sign, h, dt.TZMinute)
	}
	return s
}

// EncodeDate is the inverse of DecodeDate; the codec round-trip tests use
// it.
func EncodeDate(dt DateTime) []byte {
	century := dt.Year/100 + 100
	yearInCentury := dt.Year%100 + 100
	return []byte{
		byte(century), byte(yearInCentury),
		byte(dt.Month), byte(dt.Day),
		byte(dt.Hour + 1), byte(dt.Minute + 1), byte(dt.Second + 1),
	}
}
