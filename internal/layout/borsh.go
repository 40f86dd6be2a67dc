package layout

import (
	"encoding/binary"
	"errors"
	"fmt"

	"chainproof-ledger/internal/domain"
)

var (
	// ErrShortBuffer is returned when data ends before all fields are read.
	ErrShortBuffer = errors.New("layout: buffer too short")
	// ErrInvalidOption is returned for an option tag other than 0 or 1.
	ErrInvalidOption = errors.New("layout: invalid option tag")
	// ErrInvalidBool is returned for a bool byte other than 0 or 1.
	ErrInvalidBool = errors.New("layout: invalid bool")
)

// encoder appends Borsh-encoded fields: little-endian integers, u32-length
// prefixed strings and 1-byte option tags.
type encoder struct {
	buf []byte
}

func newEncoder(capacity int) *encoder {
	return &encoder{buf: make([]byte, 0, capacity)}
}

func (e *encoder) raw(b []byte) {
	e.buf = append(e.buf, b...)
}

func (e *encoder) address(a domain.Address) {
	e.buf = append(e.buf, a[:]...)
}

func (e *encoder) u8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *encoder) bool(v bool) {
	if v {
		e.u8(1)
		return
	}
	e.u8(0)
}

func (e *encoder) u16(v uint16) {
	e.buf = binary.LittleEndian.AppendUint16(e.buf, v)
}

func (e *encoder) u32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *encoder) u64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

func (e *encoder) i64(v int64) {
	e.u64(uint64(v))
}

func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) optStr(s *string) {
	if s == nil {
		e.u8(0)
		return
	}
	e.u8(1)
	e.str(*s)
}

func (e *encoder) optI64(v *int64) {
	if v == nil {
		e.u8(0)
		return
	}
	e.u8(1)
	e.i64(*v)
}

// padded returns the encoding zero-filled to space bytes.
func (e *encoder) padded(kind Kind, space int) ([]byte, error) {
	if len(e.buf) > space {
		return nil, fmt.Errorf("layout: %s encodes to %d bytes, account space is %d", kind, len(e.buf), space)
	}
	out := make([]byte, space)
	copy(out, e.buf)
	return out, nil
}

// decoder reads Borsh fields. The first error sticks and later reads are no-ops.
type decoder struct {
	data []byte
	off  int
	err  error
}

func newDecoder(data []byte) *decoder {
	return &decoder{data: data}
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || len(d.data)-d.off < n {
		d.err = ErrShortBuffer
		return nil
	}
	b := d.data[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) address() domain.Address {
	var a domain.Address
	if b := d.take(domain.AddressLength); b != nil {
		copy(a[:], b)
	}
	return a
}

func (d *decoder) u8() uint8 {
	if b := d.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *decoder) bool() bool {
	v := d.u8()
	if v > 1 && d.err == nil {
		d.err = ErrInvalidBool
	}
	return v == 1
}

func (d *decoder) u16() uint16 {
	if b := d.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (d *decoder) u32() uint32 {
	if b := d.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (d *decoder) u64() uint64 {
	if b := d.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (d *decoder) i64() int64 {
	return int64(d.u64())
}

func (d *decoder) str() string {
	n := d.u32()
	if d.err != nil {
		return ""
	}
	if uint64(n) > uint64(len(d.data)-d.off) {
		d.err = ErrShortBuffer
		return ""
	}
	return string(d.take(int(n)))
}

func (d *decoder) option() bool {
	switch tag := d.u8(); tag {
	case 0:
		return false
	case 1:
		return true
	default:
		if d.err == nil {
			d.err = ErrInvalidOption
		}
		return false
	}
}

func (d *decoder) optStr() *string {
	if !d.option() {
		return nil
	}
	s := d.str()
	if d.err != nil {
		return nil
	}
	return &s
}

func (d *decoder) optI64() *int64 {
	if !d.option() {
		return nil
	}
	v := d.i64()
	if d.err != nil {
		return nil
	}
	return &v
}
