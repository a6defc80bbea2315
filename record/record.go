// Package record implements the self-describing binary record format carried
// in a business message's content.
//
// A packed buffer holds one or more datasets. Each dataset is a small typed
// table: a field table (name, type, width, scale) followed by rows encoded
// field by field. Two layouts exist and are told apart by the first byte:
//
//	legacy   (0x01): ver | ncol | col... | nrow | row...
//	extended (0x20): ver | nset | { nameLen name rc | ncol | col... | nrow | row... }...
//
//	col: nameLen(u16) name type(u8) width(i32) scale(i32)
//	row: I=i32  D=f64  C=u8  S,R=len(u32) bytes   (little-endian)
//
// Packer builds buffers, Reader walks them with a cursor.
package record

import (
	"errors"
	"fmt"
	"math"
)

// Layout versions, stored in the first byte of every packed buffer.
const (
	VersionLegacy   byte = 0x01
	VersionExtended byte = 0x20
)

// FieldType is the one-byte type tag written into the field table.
type FieldType byte

const (
	TypeInt    FieldType = 'I' // int32
	TypeDouble FieldType = 'D' // float64, rounded to Scale decimal places
	TypeChar   FieldType = 'C' // single byte
	TypeString FieldType = 'S' // text, at most Width bytes
	TypeRaw    FieldType = 'R' // opaque bytes, at most Width bytes
)

func (t FieldType) Valid() bool {
	switch t {
	case TypeInt, TypeDouble, TypeChar, TypeString, TypeRaw:
		return true
	}
	return false
}

func (t FieldType) String() string {
	if t.Valid() {
		return string(rune(t))
	}
	return fmt.Sprintf("FieldType(%d)", byte(t))
}

// Null sentinels. A value equal to its type's sentinel reads back as null.
const (
	NullInt  int32  = math.MinInt32
	NullChar byte   = 0
	nullLen  uint32 = math.MaxUint32
)

// NullDouble returns the double sentinel (NaN).
func NullDouble() float64 { return math.NaN() }

// Field describes one column of a dataset.
type Field struct {
	Name  string
	Type  FieldType
	Width int
	Scale int
}

// cell is one stored value. Which member is meaningful depends on the column type.
type cell struct {
	num  int32
	dbl  float64
	chr  byte
	data []byte
	null bool
}

// Dataset is a named table of typed rows.
type Dataset struct {
	Name       string
	ReturnCode int32
	Fields     []Field

	rows [][]cell
}

// RowCount reports the number of complete rows.
func (d *Dataset) RowCount() int { return len(d.rows) }

// FindField returns the index of the named field or -1.
func (d *Dataset) FindField(name string) int {
	for i := range d.Fields {
		if d.Fields[i].Name == name {
			return i
		}
	}
	return -1
}

// Maps converts the rows into column-name keyed maps. Null values map to nil,
// String fields to string and Raw fields to []byte.
func (d *Dataset) Maps() []map[string]any {
	out := make([]map[string]any, 0, len(d.rows))
	for _, row := range d.rows {
		m := make(map[string]any, len(d.Fields))
		for i, f := range d.Fields {
			c := row[i]
			if c.null {
				m[f.Name] = nil
				continue
			}
			switch f.Type {
			case TypeInt:
				m[f.Name] = c.num
			case TypeDouble:
				m[f.Name] = c.dbl
			case TypeChar:
				m[f.Name] = c.chr
			case TypeString:
				m[f.Name] = string(c.data)
			case TypeRaw:
				m[f.Name] = c.data
			}
		}
		out = append(out, m)
	}
	return out
}

// RecordSet is a decoded buffer: its layout version and datasets in order.
type RecordSet struct {
	Version  byte
	Datasets []*Dataset
}

var (
	ErrMalformed       = errors.New("record: malformed buffer")
	ErrTruncated       = errors.New("record: truncated buffer")
	ErrVersion         = errors.New("record: unsupported version")
	ErrUnknownType     = errors.New("record: unknown field type")
	ErrFieldOrder      = errors.New("record: value does not match next field")
	ErrTypeMismatch    = errors.New("record: column type mismatch")
	ErrNoField         = errors.New("record: no field declared")
	ErrFieldsLocked    = errors.New("record: fields locked after first value")
	ErrFrozen          = errors.New("record: packer frozen")
	ErrInvalidWidth    = errors.New("record: invalid width or scale")
	ErrDatasetNotFound = errors.New("record: dataset not found")
	ErrColumnNotFound  = errors.New("record: column not found")
	ErrNoRow           = errors.New("record: cursor not on a row")
	ErrIncompleteRow   = errors.New("record: incomplete row")
	ErrTooLarge        = errors.New("record: name or count exceeds the format limit")
)

var statusCodes = []struct {
	err  error
	code int
}{
	{ErrMalformed, -1},
	{ErrTruncated, -2},
	{ErrVersion, -3},
	{ErrUnknownType, -4},
	{ErrFieldOrder, -5},
	{ErrTypeMismatch, -6},
	{ErrNoField, -7},
	{ErrFieldsLocked, -8},
	{ErrFrozen, -9},
	{ErrInvalidWidth, -10},
	{ErrDatasetNotFound, -11},
	{ErrColumnNotFound, -12},
	{ErrNoRow, -13},
	{ErrIncompleteRow, -14},
	{ErrTooLarge, -15},
}

// Status maps an error returned by this package to its negative status code.
// nil maps to 0 and foreign errors to -99.
func Status(err error) int {
	if err == nil {
		return 0
	}
	for _, s := range statusCodes {
		if errors.Is(err, s.err) {
			return s.code
		}
	}
	return -99
}
