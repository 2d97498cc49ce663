package sieve

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
)

// ProjectionSet records, for one attribute node, the row slots its value is
// captured into. Like PredicateSet it is immutable once published.
type ProjectionSet[A cmp.Ordered] struct {
	positions map[*Subscription[A]][]int
}

func newProjectionSet[A cmp.Ordered]() *ProjectionSet[A] {
	return &ProjectionSet[A]{positions: map[*Subscription[A]][]int{}}
}

// Len is the number of projection slots fed by the node.
func (p *ProjectionSet[A]) Len() int {
	n := 0
	for _, pos := range p.positions {
		n += len(pos)
	}
	return n
}

func (p *ProjectionSet[A]) hasProjections() bool { return len(p.positions) > 0 }

func (p *ProjectionSet[A]) with(s *Subscription[A], position int) *ProjectionSet[A] {
	next := &ProjectionSet[A]{positions: maps.Clone(p.positions)}
	pos := slices.Clone(next.positions[s])
	if !slices.Contains(pos, position) {
		pos = append(pos, position)
	}
	next.positions[s] = pos
	return next
}

// without removes every slot of s.
func (p *ProjectionSet[A]) without(s *Subscription[A]) (*ProjectionSet[A], error) {
	if _, ok := p.positions[s]; !ok {
		return nil, fmt.Errorf("%w: %s has no projection here", ErrInconsistent, s)
	}
	next := &ProjectionSet[A]{positions: maps.Clone(p.positions)}
	delete(next.positions, s)
	return next, nil
}

func (p *ProjectionSet[A]) processProjections(ctx *MatchContext[A], v Value) {
	if !v.Present {
		return
	}
	for s, pos := range p.positions {
		for _, i := range pos {
			ctx.project(s, i, v.Val)
		}
	}
}
