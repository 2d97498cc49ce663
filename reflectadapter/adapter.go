// Package reflectadapter lets a sieve.Matcher match Go structs.
//
// Attributes are exported struct fields, including fields promoted from
// embedded structs. A field is named by its `sieve:"name"` tag if it has one,
// and by its Go name otherwise; a tag of "-" hides the field. Nested structs,
// pointers to structs and maps with string keys can be traversed. Slices and
// arrays are multi-valued attributes, except []byte which is a single value.
package reflectadapter

import (
	"fmt"
	"reflect"
	"time"

	"github.com/ezachrisen/sieve"
)

const tagName = "sieve"

var timeType = reflect.TypeOf(time.Time{})

// Field describes one attribute of a struct type.
type Field struct {
	// Name is the attribute name: the tag name or the Go field name.
	Name string

	// Type is the declared type of the field.
	Type reflect.Type

	// Elem is the type of each value of the attribute, with pointers and,
	// for multi-valued attributes, the slice removed.
	Elem reflect.Type

	// Multi reports whether the field is a slice or array.
	Multi bool

	index []int // nil for map entries
}

func (f *Field) String() string {
	if f == nil {
		return "<root>"
	}
	return f.Name + " " + f.Type.String()
}

// Adapter resolves attributes of one root struct type.
type Adapter struct {
	root reflect.Type
}

// New returns an adapter for objects of the type of sample, which must be a
// struct or a pointer to one. Matched objects may be either.
func New(sample any) (*Adapter, error) {
	t := deref(reflect.TypeOf(sample))
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("reflectadapter: %T is not a struct", sample)
	}
	return &Adapter{root: t}, nil
}

// Type returns the root struct type.
func (a *Adapter) Type() reflect.Type {
	return a.root
}

func (a *Adapter) ChildMetadata(parent *Field, attr string) (*Field, error) {
	t := a.root
	if parent != nil {
		t = parent.Elem
	}

	switch {
	case t == timeType:
		return nil, fmt.Errorf("%w: time value has no attribute %s", sieve.ErrUnknownAttribute, attr)
	case t.Kind() == reflect.Struct:
		return structField(t, attr)
	case t.Kind() == reflect.Map && t.Key().Kind() == reflect.String:
		return newField(attr, t.Elem(), nil), nil
	}
	return nil, fmt.Errorf("%w: %s has no attribute %s", sieve.ErrUnknownAttribute, t, attr)
}

func structField(t reflect.Type, attr string) (*Field, error) {
	for _, sf := range reflect.VisibleFields(t) {
		if !sf.IsExported() {
			continue
		}
		name := sf.Name
		if tag, ok := sf.Tag.Lookup(tagName); ok {
			if tag == "-" {
				continue
			}
			if tag != "" {
				name = tag
			}
		}
		if name == attr {
			return newField(name, sf.Type, sf.Index), nil
		}
	}
	return nil, fmt.Errorf("%w: %s has no field %s", sieve.ErrUnknownAttribute, t, attr)
}

func newField(name string, t reflect.Type, index []int) *Field {
	f := &Field{Name: name, Type: t, index: index}
	elem := deref(t)
	if (elem.Kind() == reflect.Slice || elem.Kind() == reflect.Array) && elem.Elem().Kind() != reflect.Uint8 {
		f.Multi = true
		elem = deref(elem.Elem())
	}
	f.Elem = elem
	return f
}

func (a *Adapter) Comparable(f *Field) bool {
	if f == nil {
		return false
	}
	if f.Elem == timeType {
		return true
	}
	switch f.Elem.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.Interface:
		return true
	}
	return false
}

func (a *Adapter) Extract(obj any, attr string, f *Field) ([]any, bool) {
	rv := derefValue(reflect.ValueOf(obj))
	if !rv.IsValid() {
		return nil, false
	}

	var fv reflect.Value
	switch {
	case f.index != nil && rv.Kind() == reflect.Struct:
		v, err := rv.FieldByIndexErr(f.index)
		if err != nil {
			// nil embedded pointer
			return nil, false
		}
		fv = v
	case rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String:
		fv = rv.MapIndex(reflect.ValueOf(attr).Convert(rv.Type().Key()))
		if !fv.IsValid() {
			return nil, false
		}
	default:
		return nil, false
	}

	fv = derefValue(fv)
	if !fv.IsValid() {
		return []any{nil}, false
	}
	if !fv.CanInterface() {
		// promoted through an unexported embedded struct
		return nil, false
	}
	if !f.Multi || (fv.Kind() != reflect.Slice && fv.Kind() != reflect.Array) {
		return []any{fv.Interface()}, false
	}

	vals := make([]any, 0, fv.Len())
	for i := 0; i < fv.Len(); i++ {
		ev := derefValue(fv.Index(i))
		if !ev.IsValid() {
			vals = append(vals, nil)
			continue
		}
		vals = append(vals, ev.Interface())
	}
	return vals, true
}

func deref(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// derefValue follows pointers and interfaces. It returns the zero Value for
// nil.
func derefValue(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

var _ sieve.MetadataAdapter[*Field, string] = (*Adapter)(nil)
