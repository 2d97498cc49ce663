package sieve

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
)

// PredicateSet holds the predicate subscriptions attached to one attribute
// node. Subscriptions with equal conditions share one evaluation.
//
// A PredicateSet is immutable once published by its node; every change
// produces a new set.
type PredicateSet[A cmp.Ordered] struct {
	comparable bool
	conditions map[string]*conditionEntry[A]
	bySub      map[*PredicateSubscription[A]]string
}

type conditionEntry[A cmp.Ordered] struct {
	cond Condition
	subs []*PredicateSubscription[A]
}

func newPredicateSet[A cmp.Ordered](comparableAttr bool) *PredicateSet[A] {
	return &PredicateSet[A]{
		comparable: comparableAttr,
		conditions: map[string]*conditionEntry[A]{},
		bySub:      map[*PredicateSubscription[A]]string{},
	}
}

// Comparable reports whether comparison predicates may be attached.
func (p *PredicateSet[A]) Comparable() bool { return p.comparable }

// Len is the number of attached predicate subscriptions.
func (p *PredicateSet[A]) Len() int { return len(p.bySub) }

// NumConditions is the number of distinct conditions evaluated per value.
func (p *PredicateSet[A]) NumConditions() int { return len(p.conditions) }

func (p *PredicateSet[A]) isEmpty() bool { return len(p.bySub) == 0 }

func (p *PredicateSet[A]) hasComparisons() bool {
	for _, e := range p.conditions {
		if e.cond.Op.RequiresComparable() {
			return true
		}
	}
	return false
}

func (p *PredicateSet[A]) clone() *PredicateSet[A] {
	return &PredicateSet[A]{
		comparable: p.comparable,
		conditions: maps.Clone(p.conditions),
		bySub:      maps.Clone(p.bySub),
	}
}

// with returns a copy of p with s added.
func (p *PredicateSet[A]) with(s *PredicateSubscription[A]) (*PredicateSet[A], error) {
	if s.Condition.Op.RequiresComparable() && !p.comparable {
		return nil, fmt.Errorf("%w: %s on a non-comparable attribute", ErrUnsupportedPredicate, s.Condition.Op)
	}
	if _, ok := p.bySub[s]; ok {
		return nil, fmt.Errorf("%w: %s slot %d", ErrDuplicatePredicate, s.Subscription, s.Slot)
	}

	k := s.Condition.key()
	next := p.clone()
	e := &conditionEntry[A]{cond: s.Condition}
	if old, ok := next.conditions[k]; ok {
		e.subs = slices.Clone(old.subs)
	}
	e.subs = append(e.subs, s)
	next.conditions[k] = e
	next.bySub[s] = k
	return next, nil
}

// without returns a copy of p with s removed.
func (p *PredicateSet[A]) without(s *PredicateSubscription[A]) (*PredicateSet[A], error) {
	k, ok := p.bySub[s]
	if !ok {
		return nil, fmt.Errorf("%w: predicate of %s slot %d is not attached", ErrInconsistent, s.Subscription, s.Slot)
	}

	next := p.clone()
	old := next.conditions[k]
	subs := slices.DeleteFunc(slices.Clone(old.subs), func(x *PredicateSubscription[A]) bool {
		return x == s
	})
	if len(subs) == 0 {
		delete(next.conditions, k)
	} else {
		next.conditions[k] = &conditionEntry[A]{cond: old.cond, subs: subs}
	}
	delete(next.bySub, s)
	return next, nil
}

// conditionKinds selects which conditions of a set are evaluated.
type conditionKinds int

const (
	allConditions conditionKinds = iota
	comparisons                  // ops that need a comparable attribute
	presenceTests                // null and emptiness tests
)

func (k conditionKinds) includes(op Op) bool {
	switch k {
	case comparisons:
		return op.RequiresComparable()
	case presenceTests:
		return !op.RequiresComparable()
	}
	return true
}

// notifyMatchingSubscribers evaluates each distinct condition against v and
// records every subscriber of a holding condition in ctx.
func (p *PredicateSet[A]) notifyMatchingSubscribers(ctx *MatchContext[A], v Value) {
	p.notify(ctx, v, allConditions)
}

func (p *PredicateSet[A]) notify(ctx *MatchContext[A], v Value, kinds conditionKinds) {
	for _, e := range p.conditions {
		if !kinds.includes(e.cond.Op) || !e.cond.Match(v) {
			continue
		}
		for _, s := range e.subs {
			ctx.markSatisfied(s)
		}
	}
}
