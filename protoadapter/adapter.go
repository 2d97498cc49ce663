// Package protoadapter lets a sieve.Matcher match protocol buffer messages.
//
// Attributes are message fields, named by their proto names ("enrollment_date")
// or their JSON names ("enrollmentDate"). Nested messages can be traversed,
// repeated fields are multi-valued attributes, and a field with explicit
// presence that is not set does not resolve. Enum values are matched by
// number. google.protobuf.Timestamp and google.protobuf.Duration values are
// matched as time.Time and time.Duration.
//
// Map fields support null and emptiness tests only; their entries cannot be
// addressed.
package protoadapter

import (
	"fmt"
	"time"

	"github.com/ezachrisen/sieve"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

const (
	timestampName protoreflect.FullName = "google.protobuf.Timestamp"
	durationName  protoreflect.FullName = "google.protobuf.Duration"
)

// Adapter resolves fields of one root message type. Metadata is the field
// descriptor of each attribute; the root has a nil descriptor.
type Adapter struct {
	root protoreflect.MessageDescriptor
}

// New returns an adapter for messages of the type of sample. Matched objects
// may be any proto.Message or protoreflect.Message of that type, including
// dynamic messages.
func New(sample proto.Message) *Adapter {
	return &Adapter{root: sample.ProtoReflect().Descriptor()}
}

// NewFromDescriptor returns an adapter for messages described by md.
func NewFromDescriptor(md protoreflect.MessageDescriptor) *Adapter {
	return &Adapter{root: md}
}

// Descriptor returns the root message descriptor.
func (a *Adapter) Descriptor() protoreflect.MessageDescriptor {
	return a.root
}

func (a *Adapter) ChildMetadata(parent protoreflect.FieldDescriptor, attr string) (protoreflect.FieldDescriptor, error) {
	md := a.root
	if parent != nil {
		if parent.IsMap() || parent.Message() == nil || isWellKnownScalar(parent.Message()) {
			return nil, fmt.Errorf("%w: field %s has no attribute %s", sieve.ErrUnknownAttribute, parent.FullName(), attr)
		}
		md = parent.Message()
	}

	fields := md.Fields()
	fd := fields.ByName(protoreflect.Name(attr))
	if fd == nil {
		fd = fields.ByJSONName(attr)
	}
	if fd == nil {
		return nil, fmt.Errorf("%w: message %s has no field %s", sieve.ErrUnknownAttribute, md.FullName(), attr)
	}
	return fd, nil
}

func (a *Adapter) Comparable(fd protoreflect.FieldDescriptor) bool {
	if fd == nil || fd.IsMap() {
		return false
	}
	switch fd.Kind() {
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return isWellKnownScalar(fd.Message())
	case protoreflect.BytesKind:
		return false
	}
	return true
}

func (a *Adapter) Extract(obj any, attr string, fd protoreflect.FieldDescriptor) ([]any, bool) {
	msg := asMessage(obj)
	if msg == nil || !msg.IsValid() {
		return nil, false
	}
	if msg.Descriptor().FullName() != fd.ContainingMessage().FullName() {
		return nil, false
	}
	if fd.HasPresence() && !msg.Has(fd) {
		return nil, false
	}

	v := msg.Get(fd)
	switch {
	case fd.IsList():
		l := v.List()
		vals := make([]any, l.Len())
		for i := range vals {
			vals[i] = convert(fd, l.Get(i))
		}
		return vals, true
	case fd.IsMap():
		return []any{v.Map()}, false
	}
	return []any{convert(fd, v)}, false
}

func asMessage(obj any) protoreflect.Message {
	switch m := obj.(type) {
	case protoreflect.Message:
		return m
	case proto.Message:
		return m.ProtoReflect()
	}
	return nil
}

// convert returns the Go value predicates compare a field value with.
func convert(fd protoreflect.FieldDescriptor, v protoreflect.Value) any {
	switch fd.Kind() {
	case protoreflect.EnumKind:
		return v.Enum()
	case protoreflect.MessageKind, protoreflect.GroupKind:
		m := v.Message()
		switch m.Descriptor().FullName() {
		case timestampName:
			sec, nanos := secondsNanos(m)
			return time.Unix(sec, nanos).UTC()
		case durationName:
			sec, nanos := secondsNanos(m)
			return time.Duration(sec)*time.Second + time.Duration(nanos)
		}
		return m
	}
	return v.Interface()
}

// secondsNanos reads the fields shared by Timestamp and Duration. It works on
// generated and dynamic messages alike.
func secondsNanos(m protoreflect.Message) (int64, int64) {
	fields := m.Descriptor().Fields()
	sec := m.Get(fields.ByName("seconds")).Int()
	nanos := m.Get(fields.ByName("nanos")).Int()
	return sec, nanos
}

func isWellKnownScalar(md protoreflect.MessageDescriptor) bool {
	n := md.FullName()
	return n == timestampName || n == durationName
}

var _ sieve.MetadataAdapter[protoreflect.FieldDescriptor, string] = (*Adapter)(nil)
