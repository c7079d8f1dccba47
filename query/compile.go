package query

import (
	"strconv"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/guyvdb/dsearch/fault"
	"github.com/guyvdb/dsearch/schema"
)

// Parse parses input and compiles it against s. Bare terms search the
// fields named in defaults, or the schema's default search fields when
// defaults is empty.
func Parse(input string, s *schema.Schema, defaults ...string) (query.Query, error) {
	n, err := ParseAST(input)
	if err != nil {
		return nil, err
	}
	return Compile(input, n, s, defaults...)
}

// Compile turns a parsed expression into a bleve query. input is only used
// in error messages.
func Compile(input string, n Node, s *schema.Schema, defaults ...string) (query.Query, error) {
	if len(defaults) == 0 {
		defaults = s.DefaultSearchFields()
	}

	c := &compiler{input: input, schema: s, defaults: defaults}

	for _, name := range defaults {
		if _, err := c.field(name, 0); err != nil {
			return nil, err
		}
	}

	return c.compile(n)
}

type compiler struct {
	input    string
	schema   *schema.Schema
	defaults []string
}

func (c *compiler) errorf(token string, pos int, reason string) error {
	return &fault.QueryError{Query: c.input, Token: token, Pos: pos, Reason: reason}
}

func (c *compiler) compile(n Node) (query.Query, error) {
	switch n := n.(type) {
	case *All:
		return bleve.NewMatchAllQuery(), nil
	case *Term:
		return c.term(n)
	case *Phrase:
		return c.phrase(n)
	case *Range:
		return c.rng(n)
	case *Required:
		return c.compile(n.Node)
	case *Not:
		return c.clauses([]Node{n}, false)
	case *And:
		return c.clauses(n.Nodes, true)
	case *Or:
		return c.clauses(n.Nodes, false)
	}
	return nil, c.errorf(n.String(), 0, "unsupported expression")
}

// clauses compiles the children of an And (conjunctive) or Or. Negated
// children become must-not clauses; a clause list made only of negations
// matches every document minus the negated ones. In an Or, "+" clauses are
// required and the remaining optional clauses are dropped when any are.
func (c *compiler) clauses(nodes []Node, conjunctive bool) (query.Query, error) {
	var must, should, mustNot []query.Query

	for _, n := range nodes {
		switch n := n.(type) {
		case *Not:
			q, err := c.compile(n.Node)
			if err != nil {
				return nil, err
			}
			mustNot = append(mustNot, q)
		case *Required:
			q, err := c.compile(n.Node)
			if err != nil {
				return nil, err
			}
			must = append(must, q)
		default:
			q, err := c.compile(n)
			if err != nil {
				return nil, err
			}
			if conjunctive {
				must = append(must, q)
			} else {
				should = append(should, q)
			}
		}
	}

	if len(must) == 0 && len(should) > 0 {
		must = append(must, disjunction(should))
	}

	if len(mustNot) == 0 {
		return conjunction(must), nil
	}
	if len(must) == 0 {
		must = append(must, bleve.NewMatchAllQuery())
	}

	b := bleve.NewBooleanQuery()
	b.AddMust(must...)
	b.AddMustNot(mustNot...)
	return b, nil
}

func conjunction(qs []query.Query) query.Query {
	if len(qs) == 1 {
		return qs[0]
	}
	return bleve.NewConjunctionQuery(qs...)
}

func disjunction(qs []query.Query) query.Query {
	if len(qs) == 1 {
		return qs[0]
	}
	return bleve.NewDisjunctionQuery(qs...)
}

// field resolves an indexed field by name.
func (c *compiler) field(name string, pos int) (schema.Field, error) {
	if f, ok := c.schema.Field(name); ok {
		return f, nil
	}
	for _, f := range c.schema.Fields() {
		if f.Name == name && f.Skip {
			return schema.Field{}, c.errorf(name, pos, "field "+name+" is not indexed")
		}
	}
	return schema.Field{}, c.errorf(name, pos, "unknown field "+name)
}

// targets returns the fields a term with the given field name searches.
func (c *compiler) targets(name, token string, pos int) ([]schema.Field, error) {
	if name != "" {
		f, err := c.field(name, pos)
		if err != nil {
			return nil, err
		}
		return []schema.Field{f}, nil
	}

	if len(c.defaults) == 0 {
		return nil, c.errorf(token, pos, "no default search fields for bare term")
	}

	out := make([]schema.Field, 0, len(c.defaults))
	for _, name := range c.defaults {
		f, _ := c.schema.Field(name)
		out = append(out, f)
	}
	return out, nil
}

func (c *compiler) term(n *Term) (query.Query, error) {
	fields, err := c.targets(n.Field, n.String(), n.Pos)
	if err != nil {
		return nil, err
	}
	return c.each(fields, n.Field == "", func(f schema.Field) (query.Query, error) {
		return c.termQuery(f, n.Value, n.String(), n.Pos)
	})
}

func (c *compiler) phrase(n *Phrase) (query.Query, error) {
	fields, err := c.targets(n.Field, n.String(), n.Pos)
	if err != nil {
		return nil, err
	}
	return c.each(fields, n.Field == "", func(f schema.Field) (query.Query, error) {
		switch f.Type {
		case schema.Text:
			q := bleve.NewMatchPhraseQuery(n.Value)
			q.SetField(f.Name)
			return q, nil
		case schema.Keyword:
			q := bleve.NewTermQuery(n.Value)
			q.SetField(f.Name)
			return q, nil
		}
		return c.termQuery(f, n.Value, n.String(), n.Pos)
	})
}

// each compiles one query per field. For default fields, fields whose type
// cannot hold the value are left out; an explicit field reports the error.
func (c *compiler) each(fields []schema.Field, lenient bool, fn func(schema.Field) (query.Query, error)) (query.Query, error) {
	var (
		qs       []query.Query
		firstErr error
	)

	for _, f := range fields {
		q, err := fn(f)
		if err != nil {
			if !lenient {
				return nil, err
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		qs = append(qs, q)
	}

	if len(qs) == 0 {
		return nil, firstErr
	}
	return disjunction(qs), nil
}

func (c *compiler) termQuery(f schema.Field, value, token string, pos int) (query.Query, error) {
	switch f.Type {
	case schema.Text:
		if hasWildcard(value) {
			q := bleve.NewWildcardQuery(strings.ToLower(value))
			q.SetField(f.Name)
			return q, nil
		}
		q := bleve.NewMatchQuery(value)
		q.SetField(f.Name)
		return q, nil

	case schema.Keyword:
		if hasWildcard(value) {
			q := bleve.NewWildcardQuery(value)
			q.SetField(f.Name)
			return q, nil
		}
		q := bleve.NewTermQuery(value)
		q.SetField(f.Name)
		return q, nil

	case schema.Numeric:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, c.errorf(token, pos, "invalid number "+strconv.Quote(value)+" for field "+f.Name)
		}
		incl := true
		q := bleve.NewNumericRangeInclusiveQuery(&v, &v, &incl, &incl)
		q.SetField(f.Name)
		return q, nil

	case schema.Bool:
		v, err := strconv.ParseBool(value)
		if err != nil {
			return nil, c.errorf(token, pos, "invalid bool "+strconv.Quote(value)+" for field "+f.Name)
		}
		q := bleve.NewBoolFieldQuery(v)
		q.SetField(f.Name)
		return q, nil

	case schema.DateTime:
		t, day, err := parseTime(value)
		if err != nil {
			return nil, c.errorf(token, pos, "invalid date "+strconv.Quote(value)+" for field "+f.Name)
		}
		end := t
		endIncl := true
		if day {
			// a bare date matches the whole day
			end = t.Add(24 * time.Hour)
			endIncl = false
		}
		startIncl := true
		q := bleve.NewDateRangeInclusiveQuery(t, end, &startIncl, &endIncl)
		q.SetField(f.Name)
		return q, nil
	}

	return nil, c.errorf(token, pos, "unsupported field type "+f.Type.String())
}

func (c *compiler) rng(n *Range) (query.Query, error) {
	f, err := c.field(n.Field, n.Pos)
	if err != nil {
		return nil, err
	}

	token := n.String()
	if !f.Type.Ranged() {
		return nil, c.errorf(token, n.Pos, "range operator not supported on "+f.Type.String()+" field "+f.Name)
	}

	lower := n.Op == ">" || n.Op == ">="
	incl := n.Op == ">=" || n.Op == "<="

	switch f.Type {
	case schema.Numeric:
		v, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return nil, c.errorf(token, n.Pos, "invalid number "+strconv.Quote(n.Value)+" for field "+f.Name)
		}
		var q *query.NumericRangeQuery
		if lower {
			q = bleve.NewNumericRangeInclusiveQuery(&v, nil, &incl, nil)
		} else {
			q = bleve.NewNumericRangeInclusiveQuery(nil, &v, nil, &incl)
		}
		q.SetField(f.Name)
		return q, nil

	case schema.DateTime:
		t, _, err := parseTime(n.Value)
		if err != nil {
			return nil, c.errorf(token, n.Pos, "invalid date "+strconv.Quote(n.Value)+" for field "+f.Name)
		}
		var q *query.DateRangeQuery
		if lower {
			q = bleve.NewDateRangeInclusiveQuery(t, time.Time{}, &incl, nil)
		} else {
			q = bleve.NewDateRangeInclusiveQuery(time.Time{}, t, nil, &incl)
		}
		q.SetField(f.Name)
		return q, nil

	default:
		var q *query.TermRangeQuery
		if lower {
			q = bleve.NewTermRangeInclusiveQuery(n.Value, "", &incl, nil)
		} else {
			q = bleve.NewTermRangeInclusiveQuery("", n.Value, nil, &incl)
		}
		q.SetField(f.Name)
		return q, nil
	}
}

func hasWildcard(s string) bool {
	return strings.ContainsAny(s, "*?")
}

// parseTime accepts RFC 3339 timestamps and bare dates. day reports a bare
// date.
func parseTime(s string) (t time.Time, day bool, err error) {
	if t, err = time.Parse(time.RFC3339Nano, s); err == nil {
		return t, false, nil
	}
	if t, err = time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t.UTC(), false, nil
	}
	if t, err = time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), true, nil
	}
	return time.Time{}, false, err
}
