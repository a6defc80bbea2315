package record

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	colFixedSize   = 2 + 1 + 4 + 4 // nameLen + type + width + scale
	setFixedSize   = 2 + 4        // nameLen + return code
	tableFixedSize = 2 + 4        // ncol + nrow
)

func fieldSize(f Field) int { return colFixedSize + len(f.Name) }

func cellSize(t FieldType, c cell) int {
	switch t {
	case TypeInt:
		return 4
	case TypeDouble:
		return 8
	case TypeChar:
		return 1
	default:
		if c.null {
			return 4
		}
		return 4 + len(c.data)
	}
}

// encode appends the wire form of sets to dst.
func encode(dst []byte, version byte, sets []*Dataset) []byte {
	dst = append(dst, version)
	if version == VersionExtended {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(len(sets)))
	}
	for _, d := range sets {
		if version == VersionExtended {
			dst = binary.LittleEndian.AppendUint16(dst, uint16(len(d.Name)))
			dst = append(dst, d.Name...)
			dst = binary.LittleEndian.AppendUint32(dst, uint32(d.ReturnCode))
		}
		dst = encodeTable(dst, d)
	}
	return dst
}

func encodeTable(dst []byte, d *Dataset) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(d.Fields)))
	for _, f := range d.Fields {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(len(f.Name)))
		dst = append(dst, f.Name...)
		dst = append(dst, byte(f.Type))
		dst = binary.LittleEndian.AppendUint32(dst, uint32(int32(f.Width)))
		dst = binary.LittleEndian.AppendUint32(dst, uint32(int32(f.Scale)))
	}
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(d.rows)))
	for _, row := range d.rows {
		for i, f := range d.Fields {
			dst = appendCell(dst, f.Type, row[i])
		}
	}
	return dst
}

func appendCell(dst []byte, t FieldType, c cell) []byte {
	switch t {
	case TypeInt:
		v := c.num
		if c.null {
			v = NullInt
		}
		return binary.LittleEndian.AppendUint32(dst, uint32(v))
	case TypeDouble:
		v := c.dbl
		if c.null {
			v = math.NaN()
		}
		return binary.LittleEndian.AppendUint64(dst, math.Float64bits(v))
	case TypeChar:
		if c.null {
			return append(dst, NullChar)
		}
		return append(dst, c.chr)
	default:
		if c.null {
			return binary.LittleEndian.AppendUint32(dst, nullLen)
		}
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(c.data)))
		return append(dst, c.data...)
	}
}

// wireReader is a bounds-checked little-endian cursor over a packed buffer.
type wireReader struct {
	b   []byte
	off int
}

func (r *wireReader) need(n int) error {
	if n < 0 || len(r.b)-r.off < n {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, r.off, len(r.b)-r.off)
	}
	return nil
}

func (r *wireReader) u8() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.b[r.off]
	r.off++
	return v, nil
}

func (r *wireReader) u16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.b[r.off:])
	r.off += 2
	return v, nil
}

func (r *wireReader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.b[r.off:])
	r.off += 4
	return v, nil
}

func (r *wireReader) u64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.b[r.off:])
	r.off += 8
	return v, nil
}

// bytes returns the next n bytes without copying.
func (r *wireReader) bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	v := r.b[r.off : r.off+n : r.off+n]
	r.off += n
	return v, nil
}

func (r *wireReader) str16() (string, error) {
	n, err := r.u16()
	if err != nil {
		return "", err
	}
	b, err := r.bytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decode parses a whole buffer. Byte values of S and R cells alias buf.
func decode(buf []byte) (*RecordSet, error) {
	r := &wireReader{b: buf}
	if len(buf) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", ErrTruncated)
	}
	version, _ := r.u8()
	set := &RecordSet{Version: version}
	switch version {
	case VersionLegacy:
		d := &Dataset{}
		if err := decodeTable(r, d); err != nil {
			return nil, err
		}
		set.Datasets = []*Dataset{d}
	case VersionExtended:
		n, err := r.u16()
		if err != nil {
			return nil, err
		}
		set.Datasets = make([]*Dataset, 0, n)
		for i := 0; i < int(n); i++ {
			d := &Dataset{}
			if d.Name, err = r.str16(); err != nil {
				return nil, err
			}
			rc, err := r.u32()
			if err != nil {
				return nil, err
			}
			d.ReturnCode = int32(rc)
			if err := decodeTable(r, d); err != nil {
				return nil, fmt.Errorf("dataset %d: %w", i, err)
			}
			set.Datasets = append(set.Datasets, d)
		}
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrVersion, version)
	}
	if r.off != len(buf) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(buf)-r.off)
	}
	return set, nil
}

func decodeTable(r *wireReader, d *Dataset) error {
	ncol, err := r.u16()
	if err != nil {
		return err
	}
	d.Fields = make([]Field, 0, ncol)
	for i := 0; i < int(ncol); i++ {
		var f Field
		if f.Name, err = r.str16(); err != nil {
			return err
		}
		t, err := r.u8()
		if err != nil {
			return err
		}
		f.Type = FieldType(t)
		if !f.Type.Valid() {
			return fmt.Errorf("%w: %q in column %q", ErrUnknownType, t, f.Name)
		}
		w, err := r.u32()
		if err != nil {
			return err
		}
		s, err := r.u32()
		if err != nil {
			return err
		}
		f.Width, f.Scale = int(int32(w)), int(int32(s))
		if f.Width < 0 || f.Scale < 0 {
			return fmt.Errorf("%w: column %q width %d scale %d", ErrMalformed, f.Name, f.Width, f.Scale)
		}
		d.Fields = append(d.Fields, f)
	}

	nrow, err := r.u32()
	if err != nil {
		return err
	}
	if nrow > 0 && ncol == 0 {
		return fmt.Errorf("%w: %d rows without columns", ErrMalformed, nrow)
	}
	// every cell takes at least one byte, so the remaining input bounds the row count
	if uint64(nrow)*uint64(ncol) > uint64(len(r.b)-r.off) {
		return fmt.Errorf("%w: %d rows of %d columns", ErrTruncated, nrow, ncol)
	}
	d.rows = make([][]cell, 0, nrow)
	for i := 0; i < int(nrow); i++ {
		row := make([]cell, len(d.Fields))
		for j, f := range d.Fields {
			if row[j], err = readCell(r, f.Type); err != nil {
				return fmt.Errorf("row %d column %q: %w", i, f.Name, err)
			}
		}
		d.rows = append(d.rows, row)
	}
	return nil
}

func readCell(r *wireReader, t FieldType) (cell, error) {
	var c cell
	switch t {
	case TypeInt:
		v, err := r.u32()
		if err != nil {
			return c, err
		}
		c.num = int32(v)
		c.null = c.num == NullInt
	case TypeDouble:
		v, err := r.u64()
		if err != nil {
			return c, err
		}
		c.dbl = math.Float64frombits(v)
		c.null = math.IsNaN(c.dbl)
	case TypeChar:
		v, err := r.u8()
		if err != nil {
			return c, err
		}
		c.chr = v
		c.null = v == NullChar
	default:
		n, err := r.u32()
		if err != nil {
			return c, err
		}
		if n == nullLen {
			c.null = true
			return c, nil
		}
		if c.data, err = r.bytes(int(n)); err != nil {
			return c, err
		}
	}
	return c, nil
}

// PackVersion reports the layout version of a packed buffer from its header.
func PackVersion(buf []byte) (byte, error) {
	if len(buf) == 0 {
		return 0, fmt.Errorf("%w: empty buffer", ErrTruncated)
	}
	switch buf[0] {
	case VersionLegacy, VersionExtended:
		return buf[0], nil
	}
	return 0, fmt.Errorf("%w: 0x%02x", ErrVersion, buf[0])
}
