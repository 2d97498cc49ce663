package sieve

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Stats summarises the size of a matcher's attribute tree.
type Stats struct {
	Subscriptions int
	Nodes         int // excluding the root
	Predicates    int // attached predicate subscriptions
	Conditions    int // distinct conditions evaluated per value
	Projections   int // projection slots
}

func (s Stats) String() string {
	return fmt.Sprintf("%s subscriptions, %s attribute nodes, %s predicates (%s distinct), %s projections",
		humanize.Comma(int64(s.Subscriptions)),
		humanize.Comma(int64(s.Nodes)),
		humanize.Comma(int64(s.Predicates)),
		humanize.Comma(int64(s.Conditions)),
		humanize.Comma(int64(s.Projections)))
}

// Stats walks the current tree and counts its contents.
func (m *Matcher[M, A]) Stats() Stats {
	s := Stats{Subscriptions: m.Len()}
	var count func(n *AttributeNode[M, A])
	count = func(n *AttributeNode[M, A]) {
		for c := range n.Children() {
			s.Nodes++
			if ps := c.Predicates(); ps != nil {
				s.Predicates += ps.Len()
				s.Conditions += ps.NumConditions()
			}
			if ps := c.Projections(); ps != nil {
				s.Projections += ps.Len()
			}
			count(c)
		}
	}
	count(m.root)
	return s
}

// sortedChildren returns the children of n ordered by attribute.
func sortedChildren[M any, A cmp.Ordered](n *AttributeNode[M, A]) []*AttributeNode[M, A] {
	children := slices.Collect(n.Children())
	slices.SortFunc(children, func(a, b *AttributeNode[M, A]) int {
		return cmp.Compare(a.attribute, b.attribute)
	})
	return children
}

// Tree returns a tree representation of the attribute nodes, with the number
// of predicates and projections attached to each.
// Recursion is limited to a maximum depth of 20 levels.
//
// Example output:
//
//	root
//	├── address
//	│   └── country [predicates: 1]
//	├── age [predicates: 2]
//	└── name [projections: 1]
func (m *Matcher[M, A]) Tree() string {
	var sb strings.Builder
	sb.WriteString("root\n")
	buildTree(&sb, m.root, "", 0)
	return sb.String()
}

// buildTree recursively builds the tree representation with proper indentation
// and tree characters (├──, └──, │).
// depth limits recursion to a maximum of 20 levels.
func buildTree[M any, A cmp.Ordered](sb *strings.Builder, n *AttributeNode[M, A], prefix string, depth int) {
	if depth >= 20 {
		return
	}
	sorted := sortedChildren(n)
	for i, child := range sorted {
		isLast := i == len(sorted)-1
		var connector, childPrefix string
		if isLast {
			connector = "└── "
			childPrefix = "    "
		} else {
			connector = "├── "
			childPrefix = "│   "
		}

		sb.WriteString(prefix)
		sb.WriteString(connector)
		sb.WriteString(nodeLabel(child))
		sb.WriteString("\n")
		buildTree(sb, child, prefix+childPrefix, depth+1)
	}
}

func nodeLabel[M any, A cmp.Ordered](n *AttributeNode[M, A]) string {
	var parts []string
	if ps := n.Predicates(); ps != nil {
		parts = append(parts, fmt.Sprintf("predicates: %d", ps.Len()))
	}
	if ps := n.Projections(); ps != nil {
		parts = append(parts, fmt.Sprintf("projections: %d", ps.Len()))
	}
	label := fmt.Sprint(n.attribute)
	if len(parts) > 0 {
		label += " [" + strings.Join(parts, ", ") + "]"
	}
	return label
}

// String lists every attribute node with its metadata and attachments.
func (m *Matcher[M, A]) String() string {
	tw := table.NewWriter()
	tw.SetTitle("\nSIEVE ATTRIBUTE TREE\n")
	tw.AppendHeader(table.Row{"\nPath", "\nMetadata", "Compar-\nable", "Predi-\ncates", "Distinct\nConditions", "Projec-\ntions"})

	var rows func(n *AttributeNode[M, A])
	rows = func(n *AttributeNode[M, A]) {
		for _, c := range sortedChildren(n) {
			var preds, conds, projs int
			if ps := c.Predicates(); ps != nil {
				preds, conds = ps.Len(), ps.NumConditions()
			}
			if ps := c.Projections(); ps != nil {
				projs = ps.Len()
			}
			tw.AppendRow(table.Row{
				c.Path().String(),
				fmt.Sprintf("%v", c.metadata),
				trueFalse(m.adapter.Comparable(c.metadata)),
				preds,
				conds,
				projs,
			})
			rows(c)
		}
	}
	rows(m.root)

	style := table.StyleLight
	style.Format.Header = text.FormatDefault
	tw.SetStyle(style)
	return tw.Render()
}

func trueFalse(b bool) string {
	if b {
		return "yes"
	}
	return ""
}
