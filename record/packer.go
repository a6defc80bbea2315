package record

import (
	"fmt"
	"math"
)

// Packer builds a packed buffer section by section.
//
// Every mutating method returns the cumulative packed length on success. On
// failure it returns -1 and an error, and the packer is left exactly as it was
// before the call.
type Packer struct {
	version byte
	buf     []byte
	sets    []*Dataset
	cur     *Dataset
	col     int // index of the next pending field in the current row
	length  int
	frozen  bool
}

// NewPacker returns a packer for the given layout version, ready for values.
func NewPacker(version byte) (*Packer, error) {
	if version != VersionLegacy && version != VersionExtended {
		return nil, fmt.Errorf("%w: 0x%02x", ErrVersion, version)
	}
	p := &Packer{version: version}
	p.BeginPack(nil)
	return p, nil
}

// Version returns the layout version the packer writes.
func (p *Packer) Version() byte { return p.version }

// Len returns the current packed length.
func (p *Packer) Len() int { return p.length }

// BufSize returns the capacity of the retained output buffer.
func (p *Packer) BufSize() int { return cap(p.buf) }

// BeginPack resets the packer to an empty record. A non-nil buf is used as the
// output allocation for EndPack.
func (p *Packer) BeginPack(buf []byte) int {
	if buf != nil {
		p.buf = buf[:0]
	} else {
		p.buf = p.buf[:0]
	}
	p.reset()
	return p.length
}

// BeginPackEx resets the packer and opens the first section under name.
// Legacy packers ignore the name.
func (p *Packer) BeginPackEx(name string) (int, error) {
	p.BeginPack(nil)
	if p.version == VersionLegacy {
		return p.length, nil
	}
	return p.NewDataset(name, 0)
}

func (p *Packer) reset() {
	p.sets = p.sets[:0]
	p.cur = nil
	p.col = 0
	p.frozen = false
	p.length = 1
	if p.version == VersionExtended {
		p.length += 2
		return
	}
	// the legacy layout always has exactly one anonymous section
	p.cur = &Dataset{}
	p.sets = append(p.sets, p.cur)
	p.length += tableFixedSize
}

// SetBuffer continues packing into an existing legacy buffer holding dataLen
// bytes. Rows already present are kept and new rows are appended to them.
func (p *Packer) SetBuffer(buf []byte, dataLen int) (int, error) {
	if p.version != VersionLegacy {
		return -1, fmt.Errorf("%w: SetBuffer needs a legacy packer", ErrVersion)
	}
	if dataLen < 0 || dataLen > len(buf) {
		return -1, fmt.Errorf("%w: data length %d of %d", ErrTruncated, dataLen, len(buf))
	}
	data := make([]byte, dataLen)
	copy(data, buf[:dataLen])
	set, err := decode(data)
	if err != nil {
		return -1, err
	}
	if set.Version != VersionLegacy {
		return -1, fmt.Errorf("%w: buffer is 0x%02x", ErrVersion, set.Version)
	}
	p.buf = buf[:0]
	p.sets = append(p.sets[:0], set.Datasets[0])
	p.cur = set.Datasets[0]
	p.col = 0
	p.frozen = false
	p.length = dataLen
	return p.length, nil
}

// NewDataset closes the current section and opens a new one. Extended layout only.
func (p *Packer) NewDataset(name string, returnCode int32) (int, error) {
	if err := p.writable(); err != nil {
		return -1, err
	}
	if p.version != VersionExtended {
		return -1, fmt.Errorf("%w: legacy layout has a single section", ErrVersion)
	}
	if p.col != 0 {
		return -1, fmt.Errorf("%w: section %q", ErrIncompleteRow, p.cur.Name)
	}
	// names and counts travel as u16
	if len(name) > math.MaxUint16 {
		return -1, fmt.Errorf("%w: section name of %d bytes", ErrTooLarge, len(name))
	}
	if len(p.sets) >= math.MaxUint16 {
		return -1, fmt.Errorf("%w: more than %d sections", ErrTooLarge, math.MaxUint16)
	}
	p.openSection(name, returnCode)
	return p.length, nil
}

func (p *Packer) openSection(name string, returnCode int32) {
	p.cur = &Dataset{Name: name, ReturnCode: returnCode}
	p.sets = append(p.sets, p.cur)
	p.col = 0
	p.length += setFixedSize + len(name) + tableFixedSize
}

// SetReturnCode sets the return code of the current section.
func (p *Packer) SetReturnCode(code int32) (int, error) {
	if err := p.writable(); err != nil {
		return -1, err
	}
	if p.cur == nil {
		return -1, ErrNoField
	}
	p.cur.ReturnCode = code
	return p.length, nil
}

// AddField appends a column to the current section. Without a prior NewDataset
// an anonymous section is opened. Columns cannot be added once the section
// holds a value.
func (p *Packer) AddField(name string, t FieldType, width, scale int) (int, error) {
	if err := p.writable(); err != nil {
		return -1, err
	}
	if !t.Valid() {
		return -1, fmt.Errorf("%w: %q", ErrUnknownType, byte(t))
	}
	if width < 0 || scale < 0 || width > math.MaxInt32 || scale > math.MaxInt32 ||
		((t == TypeString || t == TypeRaw) && width == 0) {
		return -1, fmt.Errorf("%w: %s field %q width %d scale %d", ErrInvalidWidth, t, name, width, scale)
	}
	if p.cur != nil && (len(p.cur.rows) > 0 || p.col > 0) {
		return -1, fmt.Errorf("%w: field %q", ErrFieldsLocked, name)
	}
	if len(name) > math.MaxUint16 {
		return -1, fmt.Errorf("%w: field name of %d bytes", ErrTooLarge, len(name))
	}
	if p.cur != nil && len(p.cur.Fields) >= math.MaxUint16 {
		return -1, fmt.Errorf("%w: more than %d fields", ErrTooLarge, math.MaxUint16)
	}
	if p.cur == nil {
		p.openSection("", 0)
	}
	f := Field{Name: name, Type: t, Width: width, Scale: scale}
	p.cur.Fields = append(p.cur.Fields, f)
	p.length += fieldSize(f)
	return p.length, nil
}

func (p *Packer) AddInt(v int32) (int, error) {
	return p.add(TypeInt, cell{num: v, null: v == NullInt})
}

// AddDouble rounds v to the field's scale before storing it.
func (p *Packer) AddDouble(v float64) (int, error) {
	f, err := p.pending(TypeDouble)
	if err != nil {
		return -1, err
	}
	if math.IsNaN(v) {
		return p.add(TypeDouble, cell{dbl: v, null: true})
	}
	return p.add(TypeDouble, cell{dbl: roundScale(v, f.Scale)})
}

func (p *Packer) AddChar(v byte) (int, error) {
	return p.add(TypeChar, cell{chr: v, null: v == NullChar})
}

// AddString stores at most Width bytes of v.
func (p *Packer) AddString(v string) (int, error) {
	f, err := p.pending(TypeString)
	if err != nil {
		return -1, err
	}
	return p.add(TypeString, cell{data: []byte(truncate(v, f.Width))})
}

// AddRaw stores a copy of at most Width bytes of v. A nil slice is stored as null.
func (p *Packer) AddRaw(v []byte) (int, error) {
	f, err := p.pending(TypeRaw)
	if err != nil {
		return -1, err
	}
	if v == nil {
		return p.add(TypeRaw, cell{null: true})
	}
	if len(v) > f.Width {
		v = v[:f.Width]
	}
	return p.add(TypeRaw, cell{data: append([]byte{}, v...)})
}

// AddNull stores the null sentinel for the next pending field, whatever its type.
func (p *Packer) AddNull() (int, error) {
	f, err := p.pending(0)
	if err != nil {
		return -1, err
	}
	return p.add(f.Type, cell{null: true})
}

// pending returns the next field to fill, checking it against want.
// A zero want accepts any type.
func (p *Packer) pending(want FieldType) (Field, error) {
	if err := p.writable(); err != nil {
		return Field{}, err
	}
	if p.cur == nil || len(p.cur.Fields) == 0 {
		return Field{}, ErrNoField
	}
	f := p.cur.Fields[p.col]
	if want != 0 && f.Type != want {
		return Field{}, fmt.Errorf("%w: field %q is %s, got %s", ErrFieldOrder, f.Name, f.Type, want)
	}
	return f, nil
}

func (p *Packer) add(t FieldType, c cell) (int, error) {
	if _, err := p.pending(t); err != nil {
		return -1, err
	}
	d := p.cur
	if p.col == 0 {
		d.rows = append(d.rows, make([]cell, len(d.Fields)))
	}
	d.rows[len(d.rows)-1][p.col] = c
	p.length += cellSize(t, c)
	p.col++
	if p.col == len(d.Fields) {
		p.col = 0
	}
	return p.length, nil
}

// EndPack writes the packed buffer and freezes the packer. A half-filled row
// is an error.
func (p *Packer) EndPack() (int, error) {
	if p.frozen {
		return p.length, nil
	}
	if p.col != 0 {
		return -1, fmt.Errorf("%w: %d of %d fields filled", ErrIncompleteRow, p.col, len(p.cur.Fields))
	}
	p.buf = encode(p.buf[:0], p.version, p.sets)
	p.frozen = true
	return p.length, nil
}

// Bytes returns the packed buffer. It is valid after EndPack and until the
// packer is reset.
func (p *Packer) Bytes() []byte {
	if !p.frozen {
		return nil
	}
	return p.buf
}

// Unpack opens a reader over a copy of the packed buffer, ending the pack if
// needed. The reader stays valid after the packer is cleared and reused.
func (p *Packer) Unpack() (*Reader, error) {
	if _, err := p.EndPack(); err != nil {
		return nil, err
	}
	return OpenAndCopy(p.buf)
}

// ClearValue drops every section, field and row, keeping the allocation.
func (p *Packer) ClearValue() int {
	p.reset()
	return p.length
}

// ClearDataSet drops the fields and rows of the current section only.
func (p *Packer) ClearDataSet() int {
	p.frozen = false
	if p.cur == nil {
		return p.length
	}
	p.cur.Fields = p.cur.Fields[:0]
	p.cur.rows = p.cur.rows[:0]
	p.col = 0
	p.length = p.measure()
	return p.length
}

// measure recomputes the packed length from scratch. Only valid when no row
// is half filled.
func (p *Packer) measure() int {
	n := 1
	if p.version == VersionExtended {
		n += 2
	}
	for _, d := range p.sets {
		if p.version == VersionExtended {
			n += setFixedSize + len(d.Name)
		}
		n += tableFixedSize
		for _, f := range d.Fields {
			n += fieldSize(f)
		}
		for _, row := range d.rows {
			for i, f := range d.Fields {
				n += cellSize(f.Type, row[i])
			}
		}
	}
	return n
}

func (p *Packer) writable() error {
	if p.frozen {
		return ErrFrozen
	}
	return nil
}

func truncate(s string, width int) string {
	if len(s) > width {
		return s[:width]
	}
	return s
}

func roundScale(v float64, scale int) float64 {
	if scale > 15 || math.IsInf(v, 0) {
		return v
	}
	pow := math.Pow10(scale)
	r := math.Round(v*pow) / pow
	if math.IsInf(r, 0) || math.IsNaN(r) {
		return v
	}
	return r
}
