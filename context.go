package sieve

import "cmp"

// MatchContext accumulates the outcome of matching one object: which
// predicate slots of each subscription fired and the values projected into
// each subscription's row. A MatchContext belongs to a single Match call and is
// never shared between goroutines.
type MatchContext[A cmp.Ordered] struct {
	object any
	states map[*Subscription[A]]*matchState
}

type matchState struct {
	fired   []bool
	count   int
	row     Row
	written []bool
	multi   []bool
}

func newMatchContext[A cmp.Ordered](obj any) *MatchContext[A] {
	return &MatchContext[A]{
		object: obj,
		states: map[*Subscription[A]]*matchState{},
	}
}

// Object returns the object being matched.
func (c *MatchContext[A]) Object() any { return c.object }

func (c *MatchContext[A]) state(s *Subscription[A]) *matchState {
	st, ok := c.states[s]
	if !ok {
		np := len(s.filter.Projections)
		st = &matchState{
			fired:   make([]bool, len(s.filter.Predicates)),
			row:     newRow(np),
			written: make([]bool, np),
			multi:   make([]bool, np),
		}
		c.states[s] = st
	}
	return st
}

// markSatisfied records that the predicate slot of ps held. Repeated reports
// of the same slot, from multi-valued attributes, count once.
func (c *MatchContext[A]) markSatisfied(ps *PredicateSubscription[A]) {
	st := c.state(ps.Subscription)
	if ps.Slot >= len(st.fired) || st.fired[ps.Slot] {
		return
	}
	st.fired[ps.Slot] = true
	st.count++
}

// project writes v into slot pos of the row of s. A slot written more than
// once, by a multi-valued attribute, collects all values in a []any.
func (c *MatchContext[A]) project(s *Subscription[A], pos int, v any) {
	st := c.state(s)
	if pos >= len(st.row) {
		return
	}
	switch {
	case !st.written[pos]:
		st.row[pos] = v
		st.written[pos] = true
	case !st.multi[pos]:
		st.row[pos] = []any{st.row[pos], v}
		st.multi[pos] = true
	default:
		st.row[pos] = append(st.row[pos].([]any), v)
	}
}

// Satisfied reports whether every predicate slot of s fired. A subscription
// without predicates is always satisfied.
func (c *MatchContext[A]) Satisfied(s *Subscription[A]) bool {
	n := s.NumPredicates()
	if n == 0 {
		return true
	}
	st, ok := c.states[s]
	return ok && st.count == n
}

// Row returns the projected row of s, or nil if s projects nothing.
// Slots whose attribute did not resolve hold NoValue.
func (c *MatchContext[A]) Row(s *Subscription[A]) Row {
	if len(s.filter.Projections) == 0 {
		return nil
	}
	if st, ok := c.states[s]; ok {
		return st.row
	}
	return newRow(len(s.filter.Projections))
}
