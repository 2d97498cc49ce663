package sieve

import (
	"cmp"
	"fmt"
	"iter"
	"maps"
	"sync/atomic"
)

// AttributeNode is one segment of an attribute path in the tree shared by all
// subscriptions of a Matcher. It holds the predicates and projections that
// subscriptions attached to its attribute.
//
// Readers may use a node concurrently with one writer. The children map, the
// predicate set and the projection set are immutable snapshots replaced
// atomically, so a reader always sees a node either before or after a change.
// Mutating methods must be serialised by the caller.
type AttributeNode[M any, A cmp.Ordered] struct {
	// attribute and metadata are the zero values only for the root
	attribute A
	metadata  M
	root      bool

	adapter MetadataAdapter[M, A]

	// back-reference used for pruning; nil for the root
	parent *AttributeNode[M, A]

	// nil until the first child is added
	children atomic.Pointer[map[A]*AttributeNode[M, A]]

	// The root never holds predicates. Non-leaf nodes only hold null and
	// emptiness tests: a node with comparisons gets no children, and a node
	// with children gets no comparisons.
	predicates atomic.Pointer[PredicateSet[A]]

	// The root never holds projections.
	projections atomic.Pointer[ProjectionSet[A]]
}

func newRootNode[M any, A cmp.Ordered](adapter MetadataAdapter[M, A]) *AttributeNode[M, A] {
	return &AttributeNode[M, A]{
		adapter: adapter,
		root:    true,
	}
}

// Attribute returns the attribute identifier; the zero A for the root.
func (n *AttributeNode[M, A]) Attribute() A {
	return n.attribute
}

// Metadata returns the adapter's metadata; the zero M for the root.
func (n *AttributeNode[M, A]) Metadata() M {
	return n.metadata
}

func (n *AttributeNode[M, A]) Parent() *AttributeNode[M, A] {
	return n.parent
}

func (n *AttributeNode[M, A]) IsRoot() bool {
	return n.root
}

// Path returns the attribute path from the root to n.
func (n *AttributeNode[M, A]) Path() Path[A] {
	var p Path[A]
	for x := n; x != nil && !x.root; x = x.parent {
		p = append(Path[A]{x.attribute}, p...)
	}
	return p
}

// Children iterates over a snapshot of the current children in no particular
// order. Sort externally if a stable order is needed.
func (n *AttributeNode[M, A]) Children() iter.Seq[*AttributeNode[M, A]] {
	snap := n.children.Load()
	return func(yield func(*AttributeNode[M, A]) bool) {
		if snap == nil {
			return
		}
		for _, c := range *snap {
			if !yield(c) {
				return
			}
		}
	}
}

// Child returns the child for attr, or nil if there is none.
func (n *AttributeNode[M, A]) Child(attr A) *AttributeNode[M, A] {
	if snap := n.children.Load(); snap != nil {
		return (*snap)[attr]
	}
	return nil
}

func (n *AttributeNode[M, A]) NumChildren() int {
	if snap := n.children.Load(); snap != nil {
		return len(*snap)
	}
	return 0
}

func (n *AttributeNode[M, A]) HasPredicates() bool {
	ps := n.predicates.Load()
	return ps != nil && !ps.isEmpty()
}

func (n *AttributeNode[M, A]) HasProjections() bool {
	ps := n.projections.Load()
	return ps != nil && ps.hasProjections()
}

// Predicates returns the current predicate set, or nil.
func (n *AttributeNode[M, A]) Predicates() *PredicateSet[A] { return n.predicates.Load() }

// Projections returns the current projection set, or nil.
func (n *AttributeNode[M, A]) Projections() *ProjectionSet[A] { return n.projections.Load() }

// ProcessValue captures v into the projections of the node, then evaluates
// the node's predicates against it. It does not descend into children.
func (n *AttributeNode[M, A]) ProcessValue(v Value, ctx *MatchContext[A]) {
	if ps := n.projections.Load(); ps != nil {
		ps.processProjections(ctx, v)
	}
	if ps := n.predicates.Load(); ps != nil {
		ps.notifyMatchingSubscribers(ctx, v)
	}
}

// ProcessElements processes the non-empty elements of a multi-valued
// attribute. Null and emptiness tests are evaluated once against the
// collection; comparisons and projections see every element.
func (n *AttributeNode[M, A]) ProcessElements(elems []any, ctx *MatchContext[A]) {
	projs := n.projections.Load()
	preds := n.predicates.Load()
	if preds != nil {
		preds.notify(ctx, ValueOf(elems), presenceTests)
	}
	for _, e := range elems {
		v := ValueOf(e)
		if projs != nil {
			projs.processProjections(ctx, v)
		}
		if preds != nil {
			preds.notify(ctx, v, comparisons)
		}
	}
}

// AddChild returns the child for attr, creating it if it does not exist.
// The metadata of a new child is derived from n's metadata by the adapter.
// A node holding comparison predicates cannot get children.
func (n *AttributeNode[M, A]) AddChild(attr A) (*AttributeNode[M, A], error) {
	cur := n.children.Load()
	if cur != nil {
		if c, ok := (*cur)[attr]; ok {
			return c, nil
		}
	}
	if ps := n.predicates.Load(); ps != nil && ps.hasComparisons() {
		return nil, fmt.Errorf("%w: %s holds comparisons and cannot have nested attribute %v",
			ErrUnsupportedPredicate, n.Path(), attr)
	}

	meta, err := n.adapter.ChildMetadata(n.metadata, attr)
	if err != nil {
		return nil, err
	}
	child := &AttributeNode[M, A]{
		attribute: attr,
		metadata:  meta,
		adapter:   n.adapter,
		parent:    n,
	}

	next := make(map[A]*AttributeNode[M, A], n.NumChildren()+1)
	if cur != nil {
		maps.Copy(next, *cur)
	}
	next[attr] = child
	n.children.Store(&next)
	return child, nil
}

// RemoveChild detaches the child for attr. Readers that already hold the
// child may finish with it. Removing a child that does not exist is a
// contract violation reported with ErrNoSuchChild.
func (n *AttributeNode[M, A]) RemoveChild(attr A) error {
	cur := n.children.Load()
	if cur == nil {
		return fmt.Errorf("%w: %v", ErrNoSuchChild, attr)
	}
	if _, ok := (*cur)[attr]; !ok {
		return fmt.Errorf("%w: %v", ErrNoSuchChild, attr)
	}
	if len(*cur) == 1 {
		n.children.Store(nil)
		return nil
	}
	next := maps.Clone(*cur)
	delete(next, attr)
	n.children.Store(&next)
	return nil
}

// AddPredicateSubscription attaches s to the node. Comparisons are rejected
// on attributes that are not comparable and on nodes with children.
func (n *AttributeNode[M, A]) AddPredicateSubscription(s *PredicateSubscription[A]) error {
	if n.root {
		return fmt.Errorf("%w: the root cannot hold predicates", ErrInconsistent)
	}
	if s.Condition.Op.RequiresComparable() && n.NumChildren() > 0 {
		return fmt.Errorf("%w: %s on %s, which has nested attributes",
			ErrUnsupportedPredicate, s.Condition.Op, n.Path())
	}
	ps := n.predicates.Load()
	if ps == nil {
		ps = newPredicateSet[A](n.adapter.Comparable(n.metadata))
	}
	next, err := ps.with(s)
	if err != nil {
		return err
	}
	n.predicates.Store(next)
	return nil
}

func (n *AttributeNode[M, A]) RemovePredicateSubscription(s *PredicateSubscription[A]) error {
	ps := n.predicates.Load()
	if ps == nil {
		return fmt.Errorf("%w: %s has no predicates", ErrInconsistent, n)
	}
	next, err := ps.without(s)
	if err != nil {
		return err
	}
	if next.isEmpty() {
		next = nil
	}
	n.predicates.Store(next)
	return nil
}

// AddProjection captures the node's value into slot position of the row of s.
func (n *AttributeNode[M, A]) AddProjection(s *Subscription[A], position int) {
	ps := n.projections.Load()
	if ps == nil {
		ps = newProjectionSet[A]()
	}
	n.projections.Store(ps.with(s, position))
}

// RemoveProjections removes all projection slots of s from the node.
func (n *AttributeNode[M, A]) RemoveProjections(s *Subscription[A]) error {
	ps := n.projections.Load()
	if ps == nil {
		return fmt.Errorf("%w: %s has no projections", ErrInconsistent, n)
	}
	next, err := ps.without(s)
	if err != nil {
		return err
	}
	if !next.hasProjections() {
		next = nil
	}
	n.projections.Store(next)
	return nil
}

// isGarbage reports whether nothing retains the node any more.
func (n *AttributeNode[M, A]) isGarbage() bool {
	return !n.HasPredicates() && !n.HasProjections() && n.NumChildren() == 0
}

func (n *AttributeNode[M, A]) String() string {
	if n.root {
		return "AttributeNode(<root>)"
	}
	return fmt.Sprintf("AttributeNode(%v)", n.attribute)
}
