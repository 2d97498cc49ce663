package sieve_test

import (
	"fmt"
	"sync/atomic"

	"github.com/ezachrisen/sieve"
)

// -------------------------------------------------- MOCK ADAPTER
// mockAdapter is used for testing.
// Objects are tuples: maps from attribute number to value. A value that is a
// tuple is a nested object, a []any is a multi-valued attribute. The adapter
// counts how many values it extracts so tests can check that each attribute is
// read once per object.
type mockAdapter struct {
	root      *mockField
	extracted atomic.Int64
}

type tuple map[int]any

// mockField describes one attribute. Fields without children are comparable.
type mockField struct {
	name   string
	fields map[int]*mockField
}

func (f *mockField) String() string {
	if f == nil {
		return "<root>"
	}
	return f.name
}

func leaf(name string) *mockField {
	return &mockField{name: name}
}

func object(name string, fields map[int]*mockField) *mockField {
	return &mockField{name: name, fields: fields}
}

func newMockAdapter(fields map[int]*mockField) *mockAdapter {
	return &mockAdapter{root: object("root", fields)}
}

func (m *mockAdapter) ChildMetadata(parent *mockField, attr int) (*mockField, error) {
	if parent == nil {
		parent = m.root
	}
	f, ok := parent.fields[attr]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no attribute %d", sieve.ErrUnknownAttribute, parent, attr)
	}
	return f, nil
}

func (m *mockAdapter) Comparable(f *mockField) bool {
	return len(f.fields) == 0
}

func (m *mockAdapter) Extract(obj any, attr int, f *mockField) ([]any, bool) {
	t, ok := obj.(tuple)
	if !ok {
		return nil, false
	}
	v, ok := t[attr]
	if !ok {
		return nil, false
	}
	if vs, multi := v.([]any); multi {
		m.extracted.Add(int64(len(vs)))
		return vs, true
	}
	m.extracted.Add(1)
	return []any{v}, false
}

// Attribute numbers of the mock person schema.
const (
	pName = iota + 1
	pAge
	pAddress
	pTags
	pNickname
)

const (
	aCity = iota + 1
	aCountry
)

func personSchema() map[int]*mockField {
	return map[int]*mockField{
		pName: leaf("name"),
		pAge:  leaf("age"),
		pAddress: object("address", map[int]*mockField{
			aCity:    leaf("city"),
			aCountry: leaf("country"),
		}),
		pTags:     leaf("tags"),
		pNickname: leaf("nickname"),
	}
}

func newMockMatcher() (*sieve.Matcher[*mockField, int], *mockAdapter) {
	a := newMockAdapter(personSchema())
	return sieve.NewMatcher[*mockField, int](a), a
}

func pred(c sieve.Condition, path ...int) sieve.Predicate[int] {
	return sieve.NewPredicate(c, path...)
}
