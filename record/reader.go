package record

import "fmt"

// Reader is a cursor over a decoded buffer. It starts on the first row of the
// first dataset. Column access never moves the cursor.
type Reader struct {
	set     *RecordSet
	data    []byte
	cur     *Dataset
	index   int
	row     int
	wasNull bool
}

// Open decodes buf. String and Raw values returned by the reader alias buf,
// so buf must not be modified while the reader is in use.
func Open(buf []byte) (*Reader, error) {
	set, err := decode(buf)
	if err != nil {
		return nil, err
	}
	r := &Reader{set: set, data: buf}
	if len(set.Datasets) > 0 {
		r.cur = set.Datasets[0]
	}
	return r, nil
}

// OpenAndCopy decodes a private copy of buf.
func OpenAndCopy(buf []byte) (*Reader, error) {
	return Open(append([]byte{}, buf...))
}

func (r *Reader) Version() byte            { return r.set.Version }
func (r *Reader) Bytes() []byte            { return r.data }
func (r *Reader) RecordSet() *RecordSet    { return r.set }
func (r *Reader) DatasetCount() int        { return len(r.set.Datasets) }
func (r *Reader) CurrentDataset() *Dataset { return r.cur }
func (r *Reader) DatasetIndex() int        { return r.index }

// SetCurrentDataset selects the first dataset called name and moves to its first row.
func (r *Reader) SetCurrentDataset(name string) error {
	for i, d := range r.set.Datasets {
		if d.Name == name {
			r.selectDataset(i)
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrDatasetNotFound, name)
}

// SetCurrentDatasetByIndex selects a dataset by position and moves to its first row.
func (r *Reader) SetCurrentDatasetByIndex(i int) error {
	if i < 0 || i >= len(r.set.Datasets) {
		return fmt.Errorf("%w: index %d of %d", ErrDatasetNotFound, i, len(r.set.Datasets))
	}
	r.selectDataset(i)
	return nil
}

func (r *Reader) selectDataset(i int) {
	r.cur = r.set.Datasets[i]
	r.index = i
	r.row = 0
	r.wasNull = false
}

// DatasetName returns the name of the dataset at index i.
func (r *Reader) DatasetName(i int) (string, error) {
	if i < 0 || i >= len(r.set.Datasets) {
		return "", fmt.Errorf("%w: index %d", ErrDatasetNotFound, i)
	}
	return r.set.Datasets[i].Name, nil
}

func (r *Reader) ReturnCode() int32 {
	if r.cur == nil {
		return 0
	}
	return r.cur.ReturnCode
}

func (r *Reader) RowCount() int {
	if r.cur == nil {
		return 0
	}
	return len(r.cur.rows)
}

// Navigation. Positions outside [0, RowCount) are EOF.

func (r *Reader) First() { r.row = 0 }

func (r *Reader) Last() { r.row = r.RowCount() - 1 }

// Next advances one row. At EOF, on either side, it does nothing.
func (r *Reader) Next() {
	if r.row >= 0 && r.row < r.RowCount() {
		r.row++
	}
}

// Go moves to row. An out of range row leaves the cursor at EOF and returns ErrNoRow.
func (r *Reader) Go(row int) error {
	r.row = row
	if r.IsEOF() {
		return fmt.Errorf("%w: %d of %d", ErrNoRow, row, r.RowCount())
	}
	return nil
}

// Row returns the cursor position.
func (r *Reader) Row() int { return r.row }

func (r *Reader) IsEOF() bool { return r.row < 0 || r.row >= r.RowCount() }

func (r *Reader) IsEmpty() bool { return r.RowCount() == 0 }

// WasNull reports whether the last getter read a null sentinel.
func (r *Reader) WasNull() bool { return r.wasNull }

// Column metadata.

func (r *Reader) ColCount() int {
	if r.cur == nil {
		return 0
	}
	return len(r.cur.Fields)
}

// FindColIndex returns the index of the named column in the current dataset or -1.
func (r *Reader) FindColIndex(name string) int {
	if r.cur == nil {
		return -1
	}
	return r.cur.FindField(name)
}

func (r *Reader) field(col int) (Field, error) {
	if r.cur == nil || col < 0 || col >= len(r.cur.Fields) {
		return Field{}, fmt.Errorf("%w: index %d", ErrColumnNotFound, col)
	}
	return r.cur.Fields[col], nil
}

func (r *Reader) colIndex(name string) (int, error) {
	i := r.FindColIndex(name)
	if i < 0 {
		return -1, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	return i, nil
}

func (r *Reader) ColName(col int) (string, error) {
	f, err := r.field(col)
	return f.Name, err
}

func (r *Reader) ColType(col int) (FieldType, error) {
	f, err := r.field(col)
	return f.Type, err
}

func (r *Reader) ColWidth(col int) (int, error) {
	f, err := r.field(col)
	return f.Width, err
}

func (r *Reader) ColScale(col int) (int, error) {
	f, err := r.field(col)
	return f.Scale, err
}

func (r *Reader) ColTypeByName(name string) (FieldType, error) {
	i, err := r.colIndex(name)
	if err != nil {
		return 0, err
	}
	return r.ColType(i)
}

func (r *Reader) ColWidthByName(name string) (int, error) {
	i, err := r.colIndex(name)
	if err != nil {
		return 0, err
	}
	return r.ColWidth(i)
}

func (r *Reader) ColScaleByName(name string) (int, error) {
	i, err := r.colIndex(name)
	if err != nil {
		return 0, err
	}
	return r.ColScale(i)
}

// value returns the cell at (cursor row, col) after checking the column type
// against the accepted set.
func (r *Reader) value(col int, accept ...FieldType) (cell, FieldType, error) {
	r.wasNull = false
	f, err := r.field(col)
	if err != nil {
		return cell{}, 0, err
	}
	ok := false
	for _, t := range accept {
		if f.Type == t {
			ok = true
			break
		}
	}
	if !ok {
		return cell{}, f.Type, fmt.Errorf("%w: column %q is %s", ErrTypeMismatch, f.Name, f.Type)
	}
	if r.IsEOF() {
		return cell{}, f.Type, fmt.Errorf("%w: row %d of %d", ErrNoRow, r.row, r.RowCount())
	}
	c := r.cur.rows[r.row][col]
	r.wasNull = c.null
	return c, f.Type, nil
}

// Typed getters. A null value returns the zero value and sets WasNull.

func (r *Reader) GetInt(col int) (int32, error) {
	c, _, err := r.value(col, TypeInt)
	if err != nil || c.null {
		return 0, err
	}
	return c.num, nil
}

func (r *Reader) GetDouble(col int) (float64, error) {
	c, _, err := r.value(col, TypeDouble)
	if err != nil || c.null {
		return 0, err
	}
	return c.dbl, nil
}

func (r *Reader) GetChar(col int) (byte, error) {
	c, _, err := r.value(col, TypeChar)
	if err != nil || c.null {
		return 0, err
	}
	return c.chr, nil
}

// GetString reads String, Raw and Char columns as text.
func (r *Reader) GetString(col int) (string, error) {
	c, t, err := r.value(col, TypeString, TypeRaw, TypeChar)
	if err != nil || c.null {
		return "", err
	}
	if t == TypeChar {
		return string([]byte{c.chr}), nil
	}
	return string(c.data), nil
}

// GetRaw reads Raw and String columns as bytes.
func (r *Reader) GetRaw(col int) ([]byte, error) {
	c, _, err := r.value(col, TypeRaw, TypeString)
	if err != nil || c.null {
		return nil, err
	}
	return c.data, nil
}

func (r *Reader) GetIntByName(name string) (int32, error) {
	i, err := r.colIndex(name)
	if err != nil {
		return 0, err
	}
	return r.GetInt(i)
}

func (r *Reader) GetDoubleByName(name string) (float64, error) {
	i, err := r.colIndex(name)
	if err != nil {
		return 0, err
	}
	return r.GetDouble(i)
}

func (r *Reader) GetCharByName(name string) (byte, error) {
	i, err := r.colIndex(name)
	if err != nil {
		return 0, err
	}
	return r.GetChar(i)
}

func (r *Reader) GetStringByName(name string) (string, error) {
	i, err := r.colIndex(name)
	if err != nil {
		return "", err
	}
	return r.GetString(i)
}

func (r *Reader) GetRawByName(name string) ([]byte, error) {
	i, err := r.colIndex(name)
	if err != nil {
		return nil, err
	}
	return r.GetRaw(i)
}
