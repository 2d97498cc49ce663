package sieve

import (
	"errors"
	"testing"

	"github.com/matryer/is"
)

func testRoot(t *testing.T) *AttributeNode[Type, string] {
	t.Helper()
	a, err := NewSchemaAdapter(Schema{Elements: []DataElement{
		{Name: "age", Type: Int{}},
		{Name: "address", Type: Map{KeyType: String{}, ValueType: String{}}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	return newRootNode[Type, string](a)
}

func TestAddChild(t *testing.T) {
	is := is.New(t)
	root := testRoot(t)

	age, err := root.AddChild("age")
	is.NoErr(err)
	again, err := root.AddChild("age")
	is.NoErr(err)
	is.True(age == again) // AddChild is idempotent
	is.Equal(root.NumChildren(), 1)
	is.Equal(age.Metadata(), Type(Int{}))
	is.True(age.Parent() == root)
	is.True(!age.IsRoot())

	city, err := must(root.AddChild("address")).AddChild("city")
	is.NoErr(err)
	is.Equal(city.Path(), Path[string]{"address", "city"})
	is.Equal(city.Metadata(), Type(String{}))

	_, err = root.AddChild("height")
	is.True(errors.Is(err, ErrUnknownAttribute))
	is.Equal(root.NumChildren(), 2)
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func TestRemoveChild(t *testing.T) {
	is := is.New(t)
	root := testRoot(t)

	is.True(errors.Is(root.RemoveChild("age"), ErrNoSuchChild))

	must(root.AddChild("age"))
	must(root.AddChild("address"))
	is.NoErr(root.RemoveChild("age"))
	is.True(root.Child("age") == nil)
	is.True(errors.Is(root.RemoveChild("age"), ErrNoSuchChild))
	is.NoErr(root.RemoveChild("address"))
	is.Equal(root.NumChildren(), 0)
	is.True(root.children.Load() == nil)
}

func TestChildrenSnapshot(t *testing.T) {
	is := is.New(t)
	root := testRoot(t)
	must(root.AddChild("age"))

	n := 0
	for c := range root.Children() {
		// adding while iterating does not change the snapshot being iterated
		must(root.AddChild("address"))
		is.Equal(c.Attribute(), "age")
		n++
	}
	is.Equal(n, 1)
	is.Equal(root.NumChildren(), 2)
}

func TestPredicateSubscriptions(t *testing.T) {
	is := is.New(t)
	root := testRoot(t)
	age := must(root.AddChild("age"))
	address := must(root.AddChild("address"))

	s1 := &Subscription[string]{id: "s1", filter: Filter[string]{Predicates: make([]Predicate[string], 1)}}
	s2 := &Subscription[string]{id: "s2", filter: Filter[string]{Predicates: make([]Predicate[string], 1)}}
	p1 := &PredicateSubscription[string]{Subscription: s1, Condition: Gt(18)}
	p2 := &PredicateSubscription[string]{Subscription: s2, Condition: Gt(18)}

	is.True(errors.Is(root.AddPredicateSubscription(p1), ErrInconsistent))

	is.NoErr(age.AddPredicateSubscription(p1))
	is.NoErr(age.AddPredicateSubscription(p2))
	is.True(errors.Is(age.AddPredicateSubscription(p1), ErrDuplicatePredicate))
	is.Equal(age.Predicates().Len(), 2)
	is.Equal(age.Predicates().NumConditions(), 1) // equal conditions share an entry

	// comparisons need a comparable attribute; null tests do not
	is.True(errors.Is(address.AddPredicateSubscription(p1), ErrUnsupportedPredicate))
	is.True(address.Predicates() == nil)
	is.NoErr(address.AddPredicateSubscription(&PredicateSubscription[string]{Subscription: s1, Condition: NotNull()}))
	is.True(!address.Predicates().Comparable())

	ctx := newMatchContext[string](nil)
	age.ProcessValue(ValueOf(21), ctx)
	age.ProcessValue(ValueOf(30), ctx) // a second value fires the same slot again
	is.True(ctx.Satisfied(s1))
	is.True(ctx.Satisfied(s2))
	is.Equal(ctx.states[s1].count, 1)

	before := age.Predicates()
	is.NoErr(age.RemovePredicateSubscription(p1))
	is.Equal(before.Len(), 2) // published sets are never modified
	is.Equal(age.Predicates().Len(), 1)
	is.True(errors.Is(age.RemovePredicateSubscription(p1), ErrInconsistent))
	is.NoErr(age.RemovePredicateSubscription(p2))
	is.True(age.Predicates() == nil)
	is.True(errors.Is(age.RemovePredicateSubscription(p2), ErrInconsistent))
	is.True(age.isGarbage())
	is.True(!address.isGarbage())
}

func TestProjections(t *testing.T) {
	is := is.New(t)
	root := testRoot(t)
	age := must(root.AddChild("age"))

	s := &Subscription[string]{id: "s", filter: Filter[string]{Projections: make([]Path[string], 3)}}
	age.AddProjection(s, 0)
	age.AddProjection(s, 2)
	age.AddProjection(s, 2)
	is.Equal(age.Projections().Len(), 2)
	is.True(age.HasProjections())

	ctx := newMatchContext[string](nil)
	age.ProcessValue(Value{}, ctx)
	is.Equal(ctx.Row(s), Row{NoValue{}, NoValue{}, NoValue{}})

	age.ProcessValue(ValueOf(1), ctx)
	age.ProcessValue(ValueOf(2), ctx)
	is.Equal(ctx.Row(s), Row{[]any{1, 2}, NoValue{}, []any{1, 2}})
	is.True(ctx.Row(s).Has(0))
	is.True(!ctx.Row(s).Has(1))
	is.True(!ctx.Row(s).Has(5))

	is.NoErr(age.RemoveProjections(s))
	is.True(age.Projections() == nil)
	is.True(errors.Is(age.RemoveProjections(s), ErrInconsistent))
}

func TestMatchContextWithoutState(t *testing.T) {
	is := is.New(t)
	ctx := newMatchContext[string]("obj")
	is.Equal(ctx.Object(), "obj")

	vacuous := &Subscription[string]{id: "v"}
	is.True(ctx.Satisfied(vacuous))
	is.True(ctx.Row(vacuous) == nil)

	one := &Subscription[string]{id: "one", filter: Filter[string]{
		Predicates:  make([]Predicate[string], 1),
		Projections: make([]Path[string], 1),
	}}
	is.True(!ctx.Satisfied(one))
	is.Equal(ctx.Row(one), Row{NoValue{}})
}

func TestFilterNormalize(t *testing.T) {
	is := is.New(t)

	f := Filter[string]{Predicates: []Predicate[string]{
		NewPredicate(Gt(1), "a"),
		NewPredicate(Gt(1), "a"),
		NewPredicate(Gt(1), "b"),
		NewPredicate(Gt(2), "a"),
	}}
	n, err := f.normalize()
	is.NoErr(err)
	is.Equal(len(n.Predicates), 3)

	_, err = Filter[string]{Predicates: []Predicate[string]{NewPredicate[string](Null())}}.normalize()
	is.True(errors.Is(err, ErrInvalidFilter))

	_, err = Filter[string]{Predicates: []Predicate[string]{NewPredicate(Condition{Op: Less}, "a")}}.normalize()
	is.True(errors.Is(err, ErrInvalidCondition))

	_, err = Filter[string]{Projections: []Path[string]{{}}}.normalize()
	is.True(errors.Is(err, ErrInvalidFilter))
}

func TestConditionKey(t *testing.T) {
	is := is.New(t)
	is.Equal(OneOf("a", "b").key(), OneOf("a", "b").key())
	is.True(OneOf("a", "b").key() != OneOf("a|string:b").key())
	is.True(OneOf(`a","b`).key() != OneOf("a", "b").key())
	is.True(OneOf("a,b").key() != OneOf("a", "b").key())
	is.True(Eq(1).key() != Eq("1").key())
	is.True(Eq(1).key() != Ne(1).key())

	// paths are compared element by element
	f := Filter[string]{Predicates: []Predicate[string]{
		NewPredicate(Gt(1), "a.b"),
		NewPredicate(Gt(1), "a", "b"),
	}}
	n, err := f.normalize()
	is.NoErr(err)
	is.Equal(len(n.Predicates), 2)
}

func TestComparisonNodesAreLeaves(t *testing.T) {
	is := is.New(t)
	a, err := NewSchemaAdapter(Schema{})
	is.NoErr(err)
	root := newRootNode[Type, string](a)
	x := must(root.AddChild("x"))
	s := &Subscription[string]{id: "s", filter: Filter[string]{Predicates: make([]Predicate[string], 1)}}

	is.NoErr(x.AddPredicateSubscription(&PredicateSubscription[string]{Subscription: s, Condition: Gt(1)}))
	_, err = x.AddChild("y")
	is.True(errors.Is(err, ErrUnsupportedPredicate))
	is.Equal(x.NumChildren(), 0)

	z := must(root.AddChild("z"))
	must(z.AddChild("y"))
	err = z.AddPredicateSubscription(&PredicateSubscription[string]{Subscription: s, Condition: Eq(1)})
	is.True(errors.Is(err, ErrUnsupportedPredicate))
	is.True(z.Predicates() == nil)
	is.NoErr(z.AddPredicateSubscription(&PredicateSubscription[string]{Subscription: s, Condition: Empty()}))
}
