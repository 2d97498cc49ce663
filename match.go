package sieve

import (
	"cmp"
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/sync/errgroup"
)

// Sink receives the subscriptions an object satisfied.
type Sink[A cmp.Ordered] interface {
	// Matched is called once per satisfied subscription. row is nil for
	// subscriptions without projections.
	Matched(s *Subscription[A], row Row)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc[A cmp.Ordered] func(s *Subscription[A], row Row)

func (f SinkFunc[A]) Matched(s *Subscription[A], row Row) { f(s, row) }

// Match is one satisfied subscription.
type Match[A cmp.Ordered] struct {
	Subscription *Subscription[A]
	Row          Row
}

// Matches is a Sink collecting the matches of one object in notification
// order, which is the registration order of the subscriptions.
type Matches[A cmp.Ordered] []Match[A]

func (ms *Matches[A]) Matched(s *Subscription[A], row Row) {
	*ms = append(*ms, Match[A]{Subscription: s, Row: row})
}

// IDs returns the IDs of the matched subscriptions.
func (ms Matches[A]) IDs() []string {
	ids := make([]string, len(ms))
	for i := range ms {
		ids[i] = ms[i].Subscription.ID()
	}
	return ids
}

// String renders the matches as a table.
func (ms Matches[A]) String() string {
	tw := table.NewWriter()
	tw.SetTitle("\nSIEVE MATCHES\n")
	tw.AppendHeader(table.Row{"\nSubscription", "\nPredicates", "\nRow"})
	for _, m := range ms {
		tw.AppendRow(table.Row{
			m.Subscription.ID(),
			fmt.Sprintf("%d", m.Subscription.NumPredicates()),
			formatRow(m.Row),
		})
	}
	style := table.StyleLight
	style.Format.Header = text.FormatDefault
	tw.SetStyle(style)
	return tw.Render()
}

func formatRow(r Row) string {
	if r == nil {
		return ""
	}
	s := make([]string, len(r))
	for i := range r {
		s[i] = fmt.Sprintf("%v", r[i])
	}
	return "[" + strings.Join(s, ", ") + "]"
}

// Match evaluates obj against every registered subscription and calls sink
// for each satisfied one. It returns the number of satisfied subscriptions.
// sink may be nil.
//
// Match is safe for concurrent use, including concurrently with Register and
// Unregister. Subscriptions registered or unregistered while Match runs may
// or may not be reported.
func (m *Matcher[M, A]) Match(obj any, sink Sink[A]) int {
	subs := *m.subs.Load()
	if len(subs) == 0 {
		return 0
	}

	ctx := newMatchContext[A](obj)
	m.walk(m.root, ValueOf(obj), ctx)

	n := 0
	for _, s := range subs {
		if !ctx.Satisfied(s) {
			continue
		}
		n++
		if sink != nil {
			sink.Matched(s, ctx.Row(s))
		}
	}
	return n
}

// walk feeds the values of each child of n, extracted from v, to the child
// and descends into it. An attribute that does not resolve is fed once as an
// absent value so that null and emptiness tests below it can hold. The
// elements of a multi-valued attribute are fed together, then descended into
// one by one.
func (m *Matcher[M, A]) walk(n *AttributeNode[M, A], v Value, ctx *MatchContext[A]) {
	children := n.children.Load()
	if children == nil {
		return
	}
	for _, child := range *children {
		if v.null() {
			m.process(child, Value{}, ctx)
			continue
		}
		vals, multi := m.adapter.Extract(v.Val, child.attribute, child.metadata)
		if len(vals) == 0 {
			m.process(child, Value{}, ctx)
			continue
		}
		if multi {
			child.ProcessElements(vals, ctx)
			for _, cv := range vals {
				m.walk(child, ValueOf(cv), ctx)
			}
			continue
		}
		for _, cv := range vals {
			m.process(child, ValueOf(cv), ctx)
		}
	}
}

func (m *Matcher[M, A]) process(n *AttributeNode[M, A], v Value, ctx *MatchContext[A]) {
	n.ProcessValue(v, ctx)
	m.walk(n, v, ctx)
}

// MatchAll matches objs using up to workers goroutines and returns the
// matches of objs[i] at index i. It stops early, returning the context's
// error, if ctx is cancelled.
func (m *Matcher[M, A]) MatchAll(ctx context.Context, objs []any, workers int) ([]Matches[A], error) {
	if workers < 1 {
		workers = 1
	}
	results := make([]Matches[A], len(objs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range objs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m.Match(objs[i], &results[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
