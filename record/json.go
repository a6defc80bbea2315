package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/bytedance/sonic"
	"golang.org/x/text/encoding"
)

var ErrJSONShape = errors.New("record: JSON body must be an object or an array")

var jsonAPI = sonic.Config{UseNumber: true}.Froze()

// JSONOptions controls how PackJSON maps JSON strings.
type JSONOptions struct {
	// TextEncoder converts strings before they are stored. Nil keeps UTF-8.
	TextEncoder *encoding.Encoder
	// StringsAsRaw stores strings in R fields instead of S fields.
	StringsAsRaw bool
}

// PackJSON packs a JSON body into an extended-layout buffer and returns the
// frozen packer.
//
// A flat object becomes one anonymous dataset. An object holding nested
// objects becomes one named dataset per nested object; its other members are
// ignored. An array becomes one anonymous dataset per object element.
//
// Within a dataset members are taken in key order: strings become S or R,
// integers that fit in 32 bits become I, other numbers D (scale 4), arrays of
// numbers R (one byte per element). Nulls, booleans and other shapes are
// skipped.
func PackJSON(body []byte, opt JSONOptions) (*Packer, error) {
	var root any
	if err := jsonAPI.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("record: invalid JSON body: %w", err)
	}

	p, err := NewPacker(VersionExtended)
	if err != nil {
		return nil, err
	}

	switch v := root.(type) {
	case map[string]any:
		if isFlat(v) {
			err = packObject(p, v, opt)
			break
		}
		for _, k := range slices.Sorted(maps.Keys(v)) {
			nested, ok := v[k].(map[string]any)
			if !ok {
				continue
			}
			if _, err = p.NewDataset(k, 0); err != nil {
				break
			}
			if err = packObject(p, nested, opt); err != nil {
				break
			}
		}
	case []any:
		for _, elem := range v {
			obj, ok := elem.(map[string]any)
			if !ok {
				continue
			}
			if _, err = p.NewDataset("", 0); err != nil {
				break
			}
			if err = packObject(p, obj, opt); err != nil {
				break
			}
		}
	default:
		return nil, ErrJSONShape
	}
	if err != nil {
		return nil, err
	}
	if _, err := p.EndPack(); err != nil {
		return nil, err
	}
	return p, nil
}

func isFlat(obj map[string]any) bool {
	for _, v := range obj {
		if _, ok := v.(map[string]any); ok {
			return false
		}
	}
	return true
}

type jsonCell struct {
	name  string
	typ   FieldType
	width int
	num   int32
	dbl   float64
	data  []byte
}

// packObject writes obj as field declarations followed by one row.
func packObject(p *Packer, obj map[string]any, opt JSONOptions) error {
	var cells []jsonCell
	for _, k := range slices.Sorted(maps.Keys(obj)) {
		c, ok, err := classify(k, obj[k], opt)
		if err != nil {
			return err
		}
		if ok {
			cells = append(cells, c)
		}
	}

	for _, c := range cells {
		scale := 0
		if c.typ == TypeDouble {
			scale = 4
		}
		if _, err := p.AddField(c.name, c.typ, c.width, scale); err != nil {
			return fmt.Errorf("record: field %q: %w", c.name, err)
		}
	}
	for _, c := range cells {
		var err error
		switch c.typ {
		case TypeInt:
			_, err = p.AddInt(c.num)
		case TypeDouble:
			_, err = p.AddDouble(c.dbl)
		case TypeString:
			_, err = p.AddString(string(c.data))
		case TypeRaw:
			_, err = p.AddRaw(c.data)
		}
		if err != nil {
			return fmt.Errorf("record: field %q: %w", c.name, err)
		}
	}
	return nil
}

func classify(name string, v any, opt JSONOptions) (jsonCell, bool, error) {
	c := jsonCell{name: name}
	switch x := v.(type) {
	case string:
		data := []byte(x)
		if opt.TextEncoder != nil {
			enc, err := opt.TextEncoder.Bytes(data)
			if err != nil {
				return c, false, fmt.Errorf("record: field %q: encode text: %w", name, err)
			}
			data = enc
		}
		if data == nil {
			data = []byte{}
		}
		c.typ, c.data = TypeString, data
		if opt.StringsAsRaw {
			c.typ = TypeRaw
		}
		// a width of zero is not a valid declaration
		c.width = max(len(data), 1)
	case json.Number:
		if n, err := x.Int64(); err == nil && n >= math.MinInt32 && n <= math.MaxInt32 && !strings.ContainsAny(string(x), ".eE") {
			c.typ, c.width, c.num = TypeInt, 4, int32(n)
			break
		}
		f, err := x.Float64()
		if err != nil {
			return c, false, fmt.Errorf("record: field %q: %w", name, err)
		}
		c.typ, c.width, c.dbl = TypeDouble, 4, f
	case []any:
		data := make([]byte, 0, len(x))
		for _, e := range x {
			n, ok := e.(json.Number)
			if !ok {
				return c, false, nil
			}
			i, err := n.Int64()
			if err != nil {
				return c, false, nil
			}
			data = append(data, byte(i))
		}
		c.typ, c.width, c.data = TypeRaw, max(len(data), 1), data
	default:
		return c, false, nil
	}
	return c, true, nil
}
