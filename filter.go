package sieve

import (
	"cmp"
	"fmt"
	"strings"
)

// Path is a sequence of attribute identifiers from the root of an object to a
// nested attribute.
type Path[A cmp.Ordered] []A

func (p Path[A]) String() string {
	s := make([]string, len(p))
	for i := range p {
		s[i] = fmt.Sprint(p[i])
	}
	return strings.Join(s, ".")
}

// Predicate tests the attribute at Path with Condition.
type Predicate[A cmp.Ordered] struct {
	Path      Path[A]
	Condition Condition
}

// NewPredicate returns a predicate testing the attribute at path.
func NewPredicate[A cmp.Ordered](c Condition, path ...A) Predicate[A] {
	return Predicate[A]{Path: path, Condition: c}
}

func (p Predicate[A]) String() string {
	return p.Path.String() + " " + p.Condition.String()
}

// Filter is the unit registered with a Matcher: the conjunction of its
// predicates, and the attributes to project into an output row when all
// predicates hold. A filter without predicates matches every object.
type Filter[A cmp.Ordered] struct {
	Predicates []Predicate[A]

	// Projections lists the attributes captured into the output row; the
	// value of Projections[i] is written to slot i.
	Projections []Path[A]
}

// normalize validates f and removes predicates that repeat an earlier
// predicate of the same filter, so that no predicate is counted twice.
func (f Filter[A]) normalize() (Filter[A], error) {
	n := Filter[A]{Projections: f.Projections}
	seen := make(map[string]bool, len(f.Predicates))
	for _, p := range f.Predicates {
		if len(p.Path) == 0 {
			return n, fmt.Errorf("%w: predicate %s has an empty path", ErrInvalidFilter, p.Condition)
		}
		if err := p.Condition.Validate(); err != nil {
			return n, fmt.Errorf("predicate on %s: %w", p.Path, err)
		}
		k := fmt.Sprintf("%#v", p.Path) + "\x00" + p.Condition.key()
		if seen[k] {
			continue
		}
		seen[k] = true
		n.Predicates = append(n.Predicates, p)
	}
	for i, p := range f.Projections {
		if len(p) == 0 {
			return n, fmt.Errorf("%w: projection %d has an empty path", ErrInvalidFilter, i)
		}
	}
	return n, nil
}

// Subscription is a registered filter. It is identified by pointer; its ID is
// unique within the Matcher that created it.
type Subscription[A cmp.Ordered] struct {
	id     string
	meta   any
	filter Filter[A]
}

// ID returns the identifier the subscription was registered with.
func (s *Subscription[A]) ID() string { return s.id }

// Meta returns the value passed to Register. Not used by sieve.
func (s *Subscription[A]) Meta() any { return s.meta }

// Filter returns the filter after duplicate predicates were removed.
func (s *Subscription[A]) Filter() Filter[A] { return s.filter }

// NumPredicates is the number of predicate slots that must match.
func (s *Subscription[A]) NumPredicates() int { return len(s.filter.Predicates) }

func (s *Subscription[A]) String() string { return s.id }

// PredicateSubscription attaches one predicate of a subscription to the node
// of its attribute.
type PredicateSubscription[A cmp.Ordered] struct {
	Subscription *Subscription[A]
	// Slot is the index of the predicate in the subscription's filter.
	Slot      int
	Condition Condition
}

// NoValue fills the slots of a Row whose attribute did not resolve.
type NoValue struct{}

func (NoValue) String() string { return "<no value>" }

// Row holds the projected values of one satisfied subscription.
type Row []any

func newRow(n int) Row {
	r := make(Row, n)
	for i := range r {
		r[i] = NoValue{}
	}
	return r
}

// Has reports whether slot i holds a value.
func (r Row) Has(i int) bool {
	if i < 0 || i >= len(r) {
		return false
	}
	_, missing := r[i].(NoValue)
	return !missing
}
