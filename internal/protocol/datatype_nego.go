package protocol

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/sijms-go-ora-thin/oracle/internal/wire"
)

// typeAndRep is the client's (type, native-type, representation) table
// sent in the data-type negotiation message: every Oracle type number the
// client is willing to describe and the canonical representation it
// prefers. The table is protocol data, not structural logic.
type typeAndRep struct {
	entries []int16 // flattened (dty, ndty, rep) triples, ndty==0 entries have no rep
}

func (t *typeAndRep) add(dty, ndty, rep int16) {
	t.entries = append(t.entries, dty, ndty)
	if ndty != 0 {
		t.entries = append(t.entries, rep, 0)
	}
}

func defaultTypeTable() *typeAndRep {
	t := &typeAndRep{}
	for _, n := range []int16{
		1, 8, 23, 24, 25, 26, 27, 28, 29, 30, 31, 32, 33, 10, 11, 40, 41, 117, 120,
		290, 291, 292, 293, 294, 298, 299, 300, 301, 302, 303, 304, 305, 306, 307,
		308, 309, 310, 311, 312, 313, 315, 316, 317, 318, 319, 320, 321, 322, 323,
		327, 328, 329, 331, 333, 334, 335, 336, 337, 338, 339, 340, 341, 342, 343,
		344, 345, 346, 348, 349, 354, 355, 359, 363, 380, 381, 382, 383, 384, 385,
		386, 387, 388, 389, 390, 391, 393, 394, 395, 396, 397, 398, 399, 400, 401,
		404, 405, 406, 407, 413, 414, 415, 416, 417, 418, 419, 420, 421, 422, 423,
		424, 425, 426, 427, 429, 430, 431, 432, 433, 449, 450, 454, 455, 456, 457,
		458, 459, 460, 461, 462, 463, 466, 467, 468, 469, 470, 471, 472, 473, 474,
		475, 476, 477, 478, 479, 480, 481, 482, 483, 484, 485, 486, 490, 491, 492,
		493, 494, 495, 496, 498, 499, 500, 501, 502, 509, 510, 513, 514, 516, 517,
		518, 519, 520, 521, 522, 523, 524, 525, 526, 527, 528, 529, 530, 531, 532,
		533, 534, 535, 536, 537, 538, 539, 540, 541, 542, 543, 560, 565, 572, 573,
		574, 575, 576, 578, 580, 581, 582, 583, 584, 585, 96, 97, 100, 101, 102,
		106, 109, 111, 112, 113, 114, 115, 146, 178, 179, 180, 181, 182, 183, 185,
		186, 187, 188, 189, 190, 208, 231, 233, 590, 591, 592,
	} {
		t.add(n, n, 1)
	}
	t.add(2, 2, 10)
	t.add(12, 12, 10)
	t.add(3, 2, 10)
	t.add(4, 2, 10)
	t.add(5, 1, 1)
	t.add(6, 2, 10)
	t.add(7, 2, 10)
	t.add(9, 1, 1)
	for _, n := range []int16{13, 14, 16, 17, 18, 19, 20, 21, 22, 58, 69, 70, 74, 76, 105, 118, 119, 121, 122, 123, 136, 147, 191, 192, 209, 515} {
		t.add(n, 0, 0)
	}
	t.add(15, 23, 1)
	t.add(39, 120, 1)
	t.add(68, 2, 10)
	t.add(91, 2, 10)
	t.add(94, 1, 1)
	t.add(95, 23, 1)
	t.add(104, 11, 1)
	t.add(108, 109, 1)
	t.add(110, 111, 1)
	t.add(116, 102, 1)
	t.add(152, 2, 10)
	t.add(153, 2, 10)
	t.add(154, 2, 10)
	t.add(155, 1, 1)
	t.add(156, 12, 10)
	t.add(172, 2, 10)
	t.add(184, 12, 10)
	t.add(195, 112, 1)
	t.add(196, 113, 1)
	t.add(197, 114, 1)
	t.add(232, 231, 1)
	t.add(241, 109, 1)
	return t
}

// AppendTypeTable appends the type-representation table in its two-byte
// big-endian form (the one used whenever ub2 length fields are in play),
// terminated by a zero entry. The FastAuth message embeds the same table
// inside its coalesced data-type section.
func AppendTypeTable(buf []byte) []byte {
	table := defaultTypeTable()
	var tmp [2]byte
	for i := 0; i < len(table.entries); i++ {
		binary.BigEndian.PutUint16(tmp[:], uint16(table.entries[i]))
		buf = append(buf, tmp[:]...)
	}
	return append(buf, 0, 0)
}

// DataTypeNego performs the L3 data-type capability exchange that follows
// protocol negotiation: client sends its compile/runtime capability bytes
// plus the type-representation table, server replies with message code 2.
func DataTypeNego(s *wire.Session, caps *Capabilities) error {
	compile := append([]byte{}, caps.CompileTimeCaps...)
	runtime := append([]byte{}, caps.RuntimeCaps...)

	serverSupportsUB2Len := len(caps.ServerCompileTimeCaps) > 27 && caps.ServerCompileTimeCaps[27] != 0
	if !serverSupportsUB2Len {
		compile[27] = 0
	}
	serverSupportsChecksum := len(caps.ServerCompileTimeCaps) > 37 && caps.ServerCompileTimeCaps[37]&2 == 2
	if !serverSupportsChecksum {
		compile[37] = 0
		compile[1] = 0
	}

	table := defaultTypeTable()

	var buf []byte
	buf = append(buf, 2, 0, 0, 0, 0)
	buf = append(buf, caps.ServerFlags)
	buf = append(buf, byte(len(compile)))
	buf = append(buf, compile...)
	buf = append(buf, byte(len(runtime)))
	buf = append(buf, runtime...)

	if runtime[1]&1 == 1 {
		buf = append(buf, tzBytes()...)
		if serverSupportsChecksum {
			buf = append(buf, 0, 0, 0, 0)
		}
	}

	var ncharset [2]byte
	binary.LittleEndian.PutUint16(ncharset[:], 0)
	buf = append(buf, ncharset[:]...)

	if compile[27] == 0 {
		for i := 0; i < len(table.entries); i++ {
			buf = append(buf, byte(table.entries[i]))
		}
		buf = append(buf, 0)
	} else {
		buf = AppendTypeTable(buf)
	}

	s.BeginRequest()
	if err := s.Send(buf, 0); err != nil {
		return err
	}
	msg, err := s.Recv()
	if err != nil {
		return err
	}
	r := wire.NewReadBuffer(msg.Body)
	code, err := r.GetByte()
	if err != nil {
		return err
	}
	if code != 2 {
		return fmt.Errorf("protocol: unexpected message code %d (want 2)", code)
	}

	if runtime[1] == 1 {
		if _, err := r.GetBytes(11); err != nil { // DB timezone
			return err
		}
		if serverSupportsChecksum {
			if _, err := r.GetUint32BE(); err != nil {
				return err
			}
		}
	}
	// drain the server's own type-rep acknowledgement list.
	level := 0
	for {
		var num int
		if compile[27] == 0 {
			b, err := r.GetByte()
			if err != nil {
				return err
			}
			num = int(b)
		} else {
			v, err := r.GetUint16BE()
			if err != nil {
				return err
			}
			num = int(v)
		}
		if num == 0 && level == 0 {
			break
		}
		if num == 0 && level == 1 {
			level = 0
			continue
		}
		if level == 3 {
			level = 0
			continue
		}
		level++
	}
	return nil
}

func tzBytes() []byte {
	_, offset := time.Now().Zone()
	hours := int8(offset / 3600)
	minutes := int8((offset / 60) % 60)
	seconds := int8(offset % 60)
	return []byte{128, 0, 0, 0, uint8(hours + 60), uint8(minutes + 60), uint8(seconds + 60), 128, 0, 0, 0}
}
