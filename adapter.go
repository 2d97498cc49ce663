package sieve

import (
	"cmp"
	"fmt"
	"reflect"
)

// MetadataAdapter gives the attribute tree access to a particular object
// representation. M is the metadata the adapter attaches to each attribute
// node; A identifies an attribute within its parent.
type MetadataAdapter[M any, A cmp.Ordered] interface {
	// ChildMetadata returns the metadata of attribute attr of an attribute
	// described by parent. For top-level attributes parent is the zero M.
	// An attribute that cannot exist should be reported with
	// ErrUnknownAttribute; the error is surfaced at registration.
	ChildMetadata(parent M, attr A) (M, error)

	// Comparable reports whether values of the attribute support equality
	// and range predicates, as opposed to only null and emptiness tests.
	Comparable(meta M) bool

	// Extract returns the values of attribute attr, described by meta, on
	// obj. It returns no values when the attribute does not resolve. multi
	// is true when the values are the elements of a collection; null and
	// emptiness tests then apply to the collection as a whole.
	Extract(obj any, attr A, meta M) (vals []any, multi bool)
}

// ExtractPath resolves path on obj, following every value of multi-valued
// attributes. It returns no values when the path does not resolve.
func ExtractPath[M any, A cmp.Ordered](a MetadataAdapter[M, A], obj any, path Path[A]) ([]any, error) {
	var meta M
	vals := []any{obj}
	for _, attr := range path {
		m, err := a.ChildMetadata(meta, attr)
		if err != nil {
			return nil, fmt.Errorf("resolving %v in %s: %w", attr, path, err)
		}
		meta = m
		var next []any
		for _, v := range vals {
			if isNil(v) {
				continue
			}
			vs, _ := a.Extract(v, attr, meta)
			next = append(next, vs...)
		}
		vals = next
	}
	return vals, nil
}

// SchemaAdapter matches map[string]any objects (or any map with string keys)
// described by a Schema. Nested maps are nested attributes, lists are
// multi-valued attributes. Values of type Any that hold a slice are
// multi-valued as well.
//
// A SchemaAdapter built from a schema without elements accepts every
// top-level attribute with type Any.
type SchemaAdapter struct {
	schema   Schema
	elements map[string]Type
}

// NewSchemaAdapter returns an adapter for maps described by s.
func NewSchemaAdapter(s Schema) (*SchemaAdapter, error) {
	a := &SchemaAdapter{
		schema:   s,
		elements: make(map[string]Type, len(s.Elements)),
	}
	for _, e := range s.Elements {
		if e.Name == "" {
			return nil, fmt.Errorf("schema %s: element with empty name", s.ID)
		}
		if _, ok := a.elements[e.Name]; ok {
			return nil, fmt.Errorf("schema %s: duplicate element %s", s.ID, e.Name)
		}
		if e.Type == nil {
			return nil, fmt.Errorf("schema %s: element %s has no type", s.ID, e.Name)
		}
		a.elements[e.Name] = e.Type
	}
	return a, nil
}

// Schema returns the schema the adapter was built from.
func (a *SchemaAdapter) Schema() Schema {
	return a.schema
}

func (a *SchemaAdapter) ChildMetadata(parent Type, attr string) (Type, error) {
	if parent == nil {
		if len(a.elements) == 0 {
			return Any{}, nil
		}
		t, ok := a.elements[attr]
		if !ok {
			return nil, fmt.Errorf("%w: %s not in schema %s", ErrUnknownAttribute, attr, a.schema.ID)
		}
		return t, nil
	}

	switch p := parent.(type) {
	case Map:
		if p.ValueType == nil {
			return Any{}, nil
		}
		return p.ValueType, nil
	case List:
		if p.ValueType == nil {
			return Any{}, nil
		}
		return a.ChildMetadata(p.ValueType, attr)
	case Any:
		return Any{}, nil
	default:
		return nil, fmt.Errorf("%w: type %s has no attribute %s", ErrUnknownAttribute, parent, attr)
	}
}

func (a *SchemaAdapter) Comparable(t Type) bool {
	switch t := t.(type) {
	case String, Int, Float, Bool, Duration, Timestamp, Any:
		return true
	case List:
		return t.ValueType == nil || a.Comparable(t.ValueType)
	default:
		return false
	}
}

func (a *SchemaAdapter) Extract(obj any, attr string, t Type) ([]any, bool) {
	v, ok := mapValue(obj, attr)
	if !ok {
		return nil, false
	}
	switch t.(type) {
	case List, Any:
	default:
		return []any{v}, false
	}
	rv := reflect.ValueOf(v)
	if v == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return []any{v}, false
	}
	if _, isBytes := v.([]byte); isBytes {
		return []any{v}, false
	}
	vals := make([]any, rv.Len())
	for i := range vals {
		vals[i] = rv.Index(i).Interface()
	}
	return vals, true
}

// mapValue looks up key in any map with a string-kinded key type.
func mapValue(obj any, key string) (any, bool) {
	if m, ok := obj.(map[string]any); ok {
		v, ok := m[key]
		return v, ok
	}
	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	mv := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
	if !mv.IsValid() {
		return nil, false
	}
	return mv.Interface(), true
}
