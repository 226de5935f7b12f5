package model

import "strings"

// Query is a predicate over nodes used by tree search. A query matches on
// kind and tags; Strict requires every listed tag, otherwise one suffices.
// Stop prevents the search descending into matched nodes and First returns
// only the first match. Subquery redirects matches to a search of their
// descendants, and Altquery is an alternative tried alongside this one.
type Query struct {
	Kind     string
	Tags     []string
	Strict   bool
	Stop     bool
	First    bool
	Subquery *Query
	Altquery *Query
}

// matchNode tests a single node against this query, ignoring Altquery.
func (q *Query) matchNode(n *Node) bool {
	if q.Kind != "" && n.kind != q.Kind {
		return false
	}
	if len(q.Tags) == 0 {
		return true
	}
	if q.Strict {
		for _, tag := range q.Tags {
			if !n.HasTag(tag) {
				return false
			}
		}
		return true
	}
	for _, tag := range q.Tags {
		if n.HasTag(tag) {
			return true
		}
	}
	return false
}

// Select walks the subtree below n in document order and collects nodes
// matching q. The receiver node itself is not a candidate.
func (n *Node) Select(q *Query) []*Node {
	var matched []*Node
	for child := n.firstChild; child != nil; child = child.nextSibling {
		if !selectWalk(child, q, &matched) {
			break
		}
	}
	return matched
}

// selectWalk returns false once the search should stop entirely (a First
// query has matched).
func selectWalk(n *Node, q *Query, matched *[]*Node) bool {
	for alt := q; alt != nil; alt = alt.Altquery {
		if !alt.matchNode(n) {
			continue
		}
		if alt.Subquery != nil {
			// A subquery redirects the search to the matched node's
			// descendants in place of the outer query.
			for child := n.firstChild; child != nil; child = child.nextSibling {
				if !selectWalk(child, alt.Subquery, matched) {
					return false
				}
			}
			return true
		}
		*matched = append(*matched, n)
		if alt.First {
			return false
		}
		if alt.Stop {
			return true
		}
		break
	}
	for child := n.firstChild; child != nil; child = child.nextSibling {
		if !selectWalk(child, q, matched) {
			return false
		}
	}
	return true
}

func (q *Query) String() string {
	var b strings.Builder
	q.describe(&b)
	return b.String()
}

func (q *Query) describe(b *strings.Builder) {
	b.WriteByte('{')
	b.WriteString(q.Kind)
	for _, tag := range q.Tags {
		b.WriteByte('#')
		b.WriteString(tag)
	}
	if q.Strict {
		b.WriteByte('!')
	}
	if q.Stop {
		b.WriteByte('.')
	}
	if q.First {
		b.WriteByte('?')
	}
	b.WriteByte('}')
	if q.Subquery != nil {
		b.WriteByte('>')
		q.Subquery.describe(b)
	}
	if q.Altquery != nil {
		b.WriteByte('|')
		q.Altquery.describe(b)
	}
}
