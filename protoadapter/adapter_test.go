package protoadapter_test

import (
	"errors"
	"testing"
	"time"

	"github.com/ezachrisen/sieve"
	"github.com/ezachrisen/sieve/protoadapter"
	"github.com/matryer/is"
	gexpr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

func messages() []*descriptorpb.DescriptorProto {
	return []*descriptorpb.DescriptorProto{
		{
			Name: proto.String("Student"),
			Field: []*descriptorpb.FieldDescriptorProto{
				{
					Name:     proto.String("id"),
					Number:   proto.Int32(1),
					Type:     descriptorpb.FieldDescriptorProto_TYPE_INT64.Enum(),
					JsonName: proto.String("id"),
				},
				{
					Name:     proto.String("enrollment_date"),
					Number:   proto.Int32(2),
					Type:     descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(),
					TypeName: proto.String(".google.protobuf.Timestamp"),
					JsonName: proto.String("enrollmentDate"),
				},
			},
		},
		{
			Name:    proto.String("Empty"),
			Options: &descriptorpb.MessageOptions{Deprecated: proto.Bool(true)},
		},
	}
}

func newMatcher() *sieve.Matcher[protoreflect.FieldDescriptor, string] {
	a := protoadapter.New(&descriptorpb.DescriptorProto{})
	return sieve.NewMatcher[protoreflect.FieldDescriptor, string](a)
}

func TestChildMetadata(t *testing.T) {

	a := protoadapter.New(&descriptorpb.DescriptorProto{})

	cases := map[string]struct {
		path       sieve.Path[string]
		wantErr    error
		comparable bool
	}{
		"scalar":            {path: sieve.Path[string]{"name"}, comparable: true},
		"repeated message":  {path: sieve.Path[string]{"field"}},
		"nested scalar":     {path: sieve.Path[string]{"field", "type_name"}, comparable: true},
		"json name":         {path: sieve.Path[string]{"field", "typeName"}, comparable: true},
		"enum":              {path: sieve.Path[string]{"field", "type"}, comparable: true},
		"nested message":    {path: sieve.Path[string]{"options", "deprecated"}, comparable: true},
		"unknown field":     {path: sieve.Path[string]{"nickname"}, wantErr: sieve.ErrUnknownAttribute},
		"below a scalar":    {path: sieve.Path[string]{"name", "length"}, wantErr: sieve.ErrUnknownAttribute},
		"unknown nested":    {path: sieve.Path[string]{"options", "color"}, wantErr: sieve.ErrUnknownAttribute},
		"recursive message": {path: sieve.Path[string]{"nested_type", "field", "name"}, comparable: true},
	}

	for k, c := range cases {
		t.Run(k, func(t *testing.T) {
			is := is.New(t)
			var fd protoreflect.FieldDescriptor
			var err error
			for _, attr := range c.path {
				fd, err = a.ChildMetadata(fd, attr)
				if err != nil {
					break
				}
			}
			if c.wantErr != nil {
				is.True(errors.Is(err, c.wantErr))
				return
			}
			is.NoErr(err)
			is.Equal(a.Comparable(fd), c.comparable)
		})
	}
}

func TestMatchMessages(t *testing.T) {
	is := is.New(t)
	m := newMatcher()

	register := func(id string, f sieve.Filter[string]) {
		t.Helper()
		_, err := m.Register(id, f, nil)
		is.NoErr(err)
	}

	register("has timestamp field", sieve.Filter[string]{
		Predicates: []sieve.Predicate[string]{
			sieve.NewPredicate(sieve.Eq(".google.protobuf.Timestamp"), "field", "type_name"),
		},
		Projections: []sieve.Path[string]{{"name"}},
	})
	register("has message field", sieve.Filter[string]{
		Predicates: []sieve.Predicate[string]{
			sieve.NewPredicate(sieve.Eq(int32(descriptorpb.FieldDescriptorProto_TYPE_MESSAGE)), "field", "type"),
		},
	})
	register("deprecated", sieve.Filter[string]{
		Predicates: []sieve.Predicate[string]{sieve.NewPredicate(sieve.Eq(true), "options", "deprecated")},
	})
	register("no options", sieve.Filter[string]{
		Predicates: []sieve.Predicate[string]{sieve.NewPredicate(sieve.Null(), "options")},
	})
	register("no fields", sieve.Filter[string]{
		Predicates: []sieve.Predicate[string]{sieve.NewPredicate(sieve.Empty(), "field")},
	})
	register("field names", sieve.Filter[string]{
		Projections: []sieve.Path[string]{{"field", "name"}},
	})

	msgs := messages()

	var student sieve.Matches[string]
	m.Match(msgs[0], &student)
	is.Equal(student.IDs(), []string{"has timestamp field", "has message field", "no options", "field names"})
	is.Equal(student[0].Row, sieve.Row{"Student"})
	is.Equal(student[3].Row, sieve.Row{[]any{"id", "enrollment_date"}})

	var empty sieve.Matches[string]
	m.Match(msgs[1], &empty)
	is.Equal(empty.IDs(), []string{"deprecated", "no fields", "field names"})
	is.Equal(empty[2].Row, sieve.Row{sieve.NoValue{}})
}

func TestMatchDynamicMessage(t *testing.T) {
	is := is.New(t)
	m := newMatcher()

	_, err := m.Register("student", sieve.Filter[string]{
		Predicates: []sieve.Predicate[string]{
			sieve.NewPredicate(sieve.Eq("Student"), "name"),
			sieve.NewPredicate(sieve.Eq(int64(2)), "field", "number"),
		},
	}, nil)
	is.NoErr(err)

	b, err := proto.Marshal(messages()[0])
	is.NoErr(err)
	dyn := dynamicpb.NewMessage((&descriptorpb.DescriptorProto{}).ProtoReflect().Descriptor())
	is.NoErr(proto.Unmarshal(b, dyn))

	is.Equal(m.Match(dyn, nil), 1)
}

func TestWellKnownTypes(t *testing.T) {
	is := is.New(t)

	a := protoadapter.New(&gexpr.Constant{})
	m := sieve.NewMatcher[protoreflect.FieldDescriptor, string](a)

	cutoff := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := m.Register("recent", sieve.Filter[string]{
		Predicates: []sieve.Predicate[string]{sieve.NewPredicate(sieve.Gt(cutoff), "timestamp_value")},
	}, nil)
	is.NoErr(err)
	_, err = m.Register("long", sieve.Filter[string]{
		Predicates: []sieve.Predicate[string]{sieve.NewPredicate(sieve.Ge(time.Hour), "durationValue")},
	}, nil)
	is.NoErr(err)

	_, err = m.Register("seconds", sieve.Filter[string]{
		Predicates: []sieve.Predicate[string]{sieve.NewPredicate(sieve.Gt(0), "duration_value", "seconds")},
	}, nil)
	is.True(errors.Is(err, sieve.ErrUnknownAttribute))

	cases := map[string]struct {
		obj  *gexpr.Constant
		want int
	}{
		"recent timestamp": {
			obj:  &gexpr.Constant{ConstantKind: &gexpr.Constant_TimestampValue{TimestampValue: timestamppb.New(cutoff.Add(time.Minute))}},
			want: 1,
		},
		"old timestamp": {
			obj:  &gexpr.Constant{ConstantKind: &gexpr.Constant_TimestampValue{TimestampValue: timestamppb.New(cutoff.Add(-time.Minute))}},
			want: 0,
		},
		"long duration": {
			obj:  &gexpr.Constant{ConstantKind: &gexpr.Constant_DurationValue{DurationValue: durationpb.New(90 * time.Minute)}},
			want: 1,
		},
		"unset": {
			obj:  &gexpr.Constant{ConstantKind: &gexpr.Constant_StringValue{StringValue: "x"}},
			want: 0,
		},
	}

	for k, c := range cases {
		t.Run(k, func(t *testing.T) {
			is := is.New(t)
			is.Equal(m.Match(c.obj, nil), c.want)
		})
	}
}
