package record

import (
	"bytes"
	"errors"
	"testing"

	"golang.org/x/text/encoding/simplifiedchinese"
)

func TestPackJSONFlatObject(t *testing.T) {
	p, err := PackJSON([]byte(`{"name":"alpha","qty":12,"price":3.14159,"mask":[1,2,255],"skip":null}`), JSONOptions{})
	if err != nil {
		t.Fatal(err)
	}
	r, err := Open(p.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if r.DatasetCount() != 1 || r.RowCount() != 1 {
		t.Fatalf("expect one dataset with one row, got %d/%d", r.DatasetCount(), r.RowCount())
	}

	// 字段按 key 排序
	want := []string{"mask", "name", "price", "qty"}
	if r.ColCount() != len(want) {
		t.Fatalf("expect %d columns, got %d", len(want), r.ColCount())
	}
	for i, name := range want {
		if got, _ := r.ColName(i); got != name {
			t.Fatalf("column %d: expect %s, got %s", i, name, got)
		}
	}

	if v, _ := r.GetIntByName("qty"); v != 12 {
		t.Fatalf("expect qty 12, got %d", v)
	}
	if v, _ := r.GetDoubleByName("price"); v != 3.1416 {
		t.Fatalf("expect price rounded to 3.1416, got %v", v)
	}
	if v, _ := r.GetStringByName("name"); v != "alpha" {
		t.Fatalf("expect alpha, got %q", v)
	}
	if v, _ := r.GetRawByName("mask"); !bytes.Equal(v, []byte{1, 2, 255}) {
		t.Fatalf("unexpected mask %v", v)
	}
}

func TestPackJSONNestedAndArray(t *testing.T) {
	p, err := PackJSON([]byte(`{"b":{"x":1},"a":{"y":"z"},"ignored":5}`), JSONOptions{})
	if err != nil {
		t.Fatal(err)
	}
	r, _ := p.Unpack()
	if r.DatasetCount() != 2 {
		t.Fatalf("expect 2 datasets, got %d", r.DatasetCount())
	}
	if name, _ := r.DatasetName(0); name != "a" {
		t.Fatalf("expect first dataset a, got %q", name)
	}
	if err := r.SetCurrentDataset("b"); err != nil {
		t.Fatal(err)
	}
	if v, _ := r.GetIntByName("x"); v != 1 {
		t.Fatalf("expect x 1, got %d", v)
	}

	p, err = PackJSON([]byte(`[{"k":1},"noise",{"k":2}]`), JSONOptions{})
	if err != nil {
		t.Fatal(err)
	}
	r, _ = p.Unpack()
	if r.DatasetCount() != 2 {
		t.Fatalf("expect 2 anonymous datasets, got %d", r.DatasetCount())
	}
	r.SetCurrentDatasetByIndex(1)
	if v, _ := r.GetIntByName("k"); v != 2 {
		t.Fatalf("expect k 2, got %d", v)
	}
}

func TestPackJSONGBKRaw(t *testing.T) {
	p, err := PackJSON([]byte(`{"msg":"你好","empty":""}`), JSONOptions{
		TextEncoder:  simplifiedchinese.GBK.NewEncoder(),
		StringsAsRaw: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	r, _ := p.Unpack()
	if typ, _ := r.ColTypeByName("msg"); typ != TypeRaw {
		t.Fatalf("expect R column, got %s", typ)
	}
	raw, _ := r.GetRawByName("msg")
	if !bytes.Equal(raw, []byte{0xc4, 0xe3, 0xba, 0xc3}) {
		t.Fatalf("expect GBK bytes, got % x", raw)
	}
	if _, err := r.GetRawByName("empty"); err != nil || r.WasNull() {
		t.Fatalf("empty string should be an empty value, not null (%v)", err)
	}
}

func TestPackJSONRejectsScalars(t *testing.T) {
	if _, err := PackJSON([]byte(`42`), JSONOptions{}); !errors.Is(err, ErrJSONShape) {
		t.Fatalf("expect ErrJSONShape, got %v", err)
	}
	if _, err := PackJSON([]byte(`{`), JSONOptions{}); err == nil {
		t.Fatal("expect error for invalid JSON")
	}
}
