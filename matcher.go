package sieve

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// Matcher indexes registered filters in an attribute tree and matches objects
// against all of them at once.
type Matcher[M any, A cmp.Ordered] struct {
	adapter MetadataAdapter[M, A]
	root    *AttributeNode[M, A]

	// Serialises Register and Unregister. Match never takes it.
	mu sync.Mutex

	// registrations by subscription ID; guarded by mu
	regs map[string]*registration[M, A]

	// subscriptions in registration order, published for Match
	subs atomic.Pointer[[]*Subscription[A]]

	opts MatcherOptions
	log  logrus.FieldLogger
}

// registration remembers where a subscription is attached in the tree so it
// can be detached again.
type registration[M any, A cmp.Ordered] struct {
	sub         *Subscription[A]
	predicates  []attachedPredicate[M, A]
	projections []*AttributeNode[M, A]
}

type attachedPredicate[M any, A cmp.Ordered] struct {
	node *AttributeNode[M, A]
	ps   *PredicateSubscription[A]
}

// See the functional definitions below for the meaning.
type MatcherOptions struct {
	Name   string
	Logger logrus.FieldLogger
}

type MatcherOption func(o *MatcherOptions)

// Given an array of MatcherOption functions, apply their effect
// on the MatcherOptions struct.
func applyMatcherOptions(o *MatcherOptions, opts ...MatcherOption) {
	for _, opt := range opts {
		opt(o)
	}
}

// WithName names the matcher in log entries.
func WithName(name string) MatcherOption {
	return func(o *MatcherOptions) {
		o.Name = name
	}
}

// WithLogger sets the logger for registry lifecycle events.
// Default: discard all output
func WithLogger(l logrus.FieldLogger) MatcherOption {
	return func(o *MatcherOptions) {
		o.Logger = l
	}
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// NewMatcher returns an empty matcher that reads objects through adapter.
func NewMatcher[M any, A cmp.Ordered](adapter MetadataAdapter[M, A], opts ...MatcherOption) *Matcher[M, A] {
	m := &Matcher[M, A]{
		adapter: adapter,
		root:    newRootNode(adapter),
		regs:    map[string]*registration[M, A]{},
	}
	applyMatcherOptions(&m.opts, opts...)
	if m.opts.Logger == nil {
		m.opts.Logger = discardLogger()
	}
	m.log = m.opts.Logger.WithField("matcher", m.opts.Name)
	m.subs.Store(&[]*Subscription[A]{})
	return m
}

// Root returns the root of the attribute tree.
func (m *Matcher[M, A]) Root() *AttributeNode[M, A] {
	return m.root
}

// Register indexes filter f under id. The meta value is returned by
// Subscription.Meta and is not used by the matcher.
//
// Registration is atomic: if any predicate or projection cannot be attached
// (unknown attribute, comparison on a non-comparable attribute) the tree is
// left as it was and the error is returned.
func (m *Matcher[M, A]) Register(id string, f Filter[A], meta any) (*Subscription[A], error) {
	if len(strings.TrimSpace(id)) == 0 {
		return nil, fmt.Errorf("%w: required subscription ID", ErrInvalidFilter)
	}
	nf, err := f.normalize()
	if err != nil {
		return nil, fmt.Errorf("registering %s: %w", id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.regs[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSubscription, id)
	}

	sub := &Subscription[A]{id: id, meta: meta, filter: nf}
	reg := &registration[M, A]{sub: sub}

	for i, p := range nf.Predicates {
		node, err := m.extend(p.Path)
		if err != nil {
			m.rollback(reg, node)
			return nil, fmt.Errorf("registering %s: predicate %s: %w", id, p, err)
		}
		ps := &PredicateSubscription[A]{Subscription: sub, Slot: i, Condition: p.Condition}
		if err := node.AddPredicateSubscription(ps); err != nil {
			m.rollback(reg, node)
			return nil, fmt.Errorf("registering %s: predicate %s: %w", id, p, err)
		}
		reg.predicates = append(reg.predicates, attachedPredicate[M, A]{node: node, ps: ps})
	}

	for i, p := range nf.Projections {
		node, err := m.extend(p)
		if err != nil {
			m.rollback(reg, node)
			return nil, fmt.Errorf("registering %s: projection %s: %w", id, p, err)
		}
		node.AddProjection(sub, i)
		if !slices.Contains(reg.projections, node) {
			reg.projections = append(reg.projections, node)
		}
	}

	m.regs[id] = reg
	subs := append(slices.Clone(*m.subs.Load()), sub)
	m.subs.Store(&subs)

	m.log.WithFields(logrus.Fields{
		"subscription": id,
		"predicates":   len(nf.Predicates),
		"projections":  len(nf.Projections),
	}).Debug("registered subscription")
	return sub, nil
}

// extend walks the tree along path, adding missing nodes, and returns the
// node of the last attribute. On error it returns the deepest node reached so
// the caller can prune what was added.
func (m *Matcher[M, A]) extend(path Path[A]) (*AttributeNode[M, A], error) {
	n := m.root
	for _, attr := range path {
		c, err := n.AddChild(attr)
		if err != nil {
			return n, err
		}
		n = c
	}
	return n, nil
}

// rollback detaches everything attached for reg so far, and prunes from
// failed, the node where the failing attachment was attempted.
func (m *Matcher[M, A]) rollback(reg *registration[M, A], failed *AttributeNode[M, A]) {
	if err := m.detach(reg); err != nil {
		m.log.WithError(err).WithField("subscription", reg.sub.id).Error("rolling back registration")
	}
	m.prune(failed)
}

// Unregister removes s from the matcher and prunes attribute nodes that no
// other subscription uses.
func (m *Matcher[M, A]) Unregister(s *Subscription[A]) error {
	if s == nil {
		return fmt.Errorf("%w: nil subscription", ErrSubscriptionNotFound)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	reg, ok := m.regs[s.id]
	if !ok || reg.sub != s {
		return fmt.Errorf("%w: %s", ErrSubscriptionNotFound, s.id)
	}
	return m.unregister(reg)
}

// UnregisterID removes the subscription registered under id.
func (m *Matcher[M, A]) UnregisterID(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, ok := m.regs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSubscriptionNotFound, id)
	}
	return m.unregister(reg)
}

func (m *Matcher[M, A]) unregister(reg *registration[M, A]) error {
	// Unpublish first so that no new Match reports the subscription while
	// it is being detached.
	subs := slices.DeleteFunc(slices.Clone(*m.subs.Load()), func(s *Subscription[A]) bool {
		return s == reg.sub
	})
	m.subs.Store(&subs)
	delete(m.regs, reg.sub.id)

	if err := m.detach(reg); err != nil {
		m.log.WithError(err).WithField("subscription", reg.sub.id).Error("unregistering subscription")
		return fmt.Errorf("unregistering %s: %w", reg.sub.id, err)
	}
	m.log.WithField("subscription", reg.sub.id).Debug("unregistered subscription")
	return nil
}

// detach removes every predicate and projection of reg from the tree and
// prunes the nodes left unused.
func (m *Matcher[M, A]) detach(reg *registration[M, A]) error {
	var result *multierror.Error
	for _, ap := range reg.predicates {
		if err := ap.node.RemovePredicateSubscription(ap.ps); err != nil {
			result = multierror.Append(result, fmt.Errorf("predicate on %s: %w", ap.node.Path(), err))
		}
		m.prune(ap.node)
	}
	for _, n := range reg.projections {
		if err := n.RemoveProjections(reg.sub); err != nil {
			result = multierror.Append(result, fmt.Errorf("projection of %s: %w", n.Path(), err))
		}
		m.prune(n)
	}
	reg.predicates = nil
	reg.projections = nil
	return result.ErrorOrNil()
}

// prune removes n if it is garbage, then its parent if that became garbage,
// and so on up to, but not including, the root.
func (m *Matcher[M, A]) prune(n *AttributeNode[M, A]) {
	for n != nil && !n.root && n.isGarbage() {
		p := n.parent
		if p.Child(n.attribute) != n {
			// already detached by an earlier prune of the same registration
			return
		}
		if err := p.RemoveChild(n.attribute); err != nil {
			m.log.WithError(err).WithField("path", n.Path().String()).Error("pruning attribute node")
			return
		}
		m.log.WithField("path", n.Path().String()).Debug("pruned attribute node")
		n = p
	}
}

// Subscription returns the subscription registered under id.
func (m *Matcher[M, A]) Subscription(id string) (*Subscription[A], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, ok := m.regs[id]
	if !ok {
		return nil, false
	}
	return reg.sub, true
}

// Subscriptions returns the registered subscriptions in registration order.
func (m *Matcher[M, A]) Subscriptions() []*Subscription[A] {
	return slices.Clone(*m.subs.Load())
}

// Len is the number of registered subscriptions.
func (m *Matcher[M, A]) Len() int {
	return len(*m.subs.Load())
}
