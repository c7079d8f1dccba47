package query

import (
	"strconv"
	"strings"
)

// Node is a parsed query expression.
type Node interface {
	String() string
	node()
}

// Or matches documents matching any of Nodes. Adjacent terms without an
// operator are joined by Or.
type Or struct {
	Nodes []Node
}

// And matches documents matching all of Nodes.
type And struct {
	Nodes []Node
}

// Not excludes documents matching Node.
type Not struct {
	Node Node
}

// Required marks a clause of an Or that every match must satisfy ("+term").
type Required struct {
	Node Node
}

// Term is a single word. An empty Field means the default search fields.
type Term struct {
	Field string
	Value string
	Pos   int
}

// Phrase is a quoted sequence of words.
type Phrase struct {
	Field string
	Value string
	Pos   int
}

// Range compares Field against Value with Op (>, >=, <, <=).
type Range struct {
	Field string
	Op    string
	Value string
	Pos   int
}

// All matches every document ("*").
type All struct{}

func (*Or) node()       {}
func (*And) node()      {}
func (*Not) node()      {}
func (*Required) node() {}
func (*Term) node()     {}
func (*Phrase) node()   {}
func (*Range) node()    {}
func (*All) node()      {}

func (n *Or) String() string  { return join(n.Nodes, " OR ") }
func (n *And) String() string { return join(n.Nodes, " AND ") }

func (n *Not) String() string      { return "-" + n.Node.String() }
func (n *Required) String() string { return "+" + n.Node.String() }

func (n *Term) String() string {
	return prefix(n.Field) + n.Value
}

func (n *Phrase) String() string {
	return prefix(n.Field) + strconv.Quote(n.Value)
}

func (n *Range) String() string {
	return n.Field + ":" + n.Op + n.Value
}

func (*All) String() string { return "*" }

func join(nodes []Node, sep string) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func prefix(field string) string {
	if field == "" {
		return ""
	}
	return field + ":"
}
