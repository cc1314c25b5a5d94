package filter

import (
	"math"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// Predicate is a translated Group.
type Predicate struct {
	// SQL is the joined fragment, empty when no rule survived.
	SQL string
	// Args are the bound values in placeholder order.
	Args []interface{}
	// Terms is the number of emitted fragments.
	Terms int
	// Dropped is the number of skipped rules.
	Dropped int
}

// Empty reports whether the predicate contributes nothing to a WHERE clause.
func (p Predicate) Empty() bool {
	return p.Terms == 0
}

// Grouped returns the SQL parenthesized when it joins more than one fragment.
func (p Predicate) Grouped() string {
	if p.Terms > 1 {
		return "(" + p.SQL + ")"
	}
	return p.SQL
}

// Translate turns the group into a predicate over the catalog columns.
// Placeholders are numbered from firstArg so the predicate can follow
// arguments the caller has already bound.
func (g Group) Translate(catalog Catalog, d Dialect, firstArg int) Predicate {
	if firstArg < 1 {
		firstArg = 1
	}
	var p Predicate
	var parts []string
	bind := func(v interface{}) string {
		p.Args = append(p.Args, v)
		return d.Placeholder(firstArg+len(p.Args)-1, v)
	}
	for _, r := range g.Rules {
		c, ok := r.compile(catalog)
		if !ok {
			p.Dropped++
			continue
		}
		parts = append(parts, c.emit(d, bind))
	}
	p.Terms = len(parts)
	p.SQL = strings.Join(parts, g.connective())
	return p
}

type compiled struct {
	field  Field
	op     Operator
	values []interface{}

	// halfOpen marks a two value range emitted as lower <= col < upper.
	halfOpen bool
}

// compile validates the rule and coerces its values. Nothing is bound until
// the whole rule is known to be usable.
//
// A date-only value names the whole day, so its upper bounds are expressed
// against the start of the following day instead of a last instant.
func (r Rule) compile(catalog Catalog) (compiled, bool) {
	f, ok := catalog[strings.TrimSpace(r.Field)]
	if !ok {
		return compiled{}, false
	}
	op := r.Operator.normalize()
	if !op.appliesTo(f.Kind) {
		return compiled{}, false
	}
	c := compiled{field: f, op: op}

	switch {
	case op == OpBlank || op == OpNotBlank:
		return c, true

	case op.isPattern():
		s, ok := textValue(r.Value)
		if !ok {
			return compiled{}, false
		}
		c.values = []interface{}{likePattern(op, s)}

	case op == OpBetween:
		lower, _, ok := coerce(f.Kind, r.Value)
		if !ok {
			return compiled{}, false
		}
		upper, dateOnly, ok := coerce(f.Kind, r.Value2)
		if !ok {
			return compiled{}, false
		}
		if dateOnly {
			upper = nextDay(upper.(time.Time))
			c.halfOpen = true
		}
		c.values = []interface{}{lower, upper}

	case op == OpOn:
		t, _, ok := dateValue(r.Value)
		if !ok {
			return compiled{}, false
		}
		c.values = []interface{}{startOfDay(t), nextDay(t)}
		c.halfOpen = true

	default:
		v, dateOnly, ok := coerce(f.Kind, r.Value)
		if !ok {
			return compiled{}, false
		}
		if dateOnly {
			switch op {
			case OpLessOrEqual:
				c.op, v = OpLess, nextDay(v.(time.Time))
			case OpGreater, OpAfter:
				c.op, v = OpGreaterOrEqual, nextDay(v.(time.Time))
			}
		}
		c.values = []interface{}{v}
	}
	return c, true
}

func (c compiled) emit(d Dialect, bind func(interface{}) string) string {
	col := c.field.Column
	switch c.op {
	case OpEquals:
		return col + " = " + bind(c.values[0])
	case OpNotEquals:
		return col + " <> " + bind(c.values[0])
	case OpContains, OpStartsWith, OpEndsWith:
		return d.ILike(c.textColumn(d), bind(c.values[0]))
	case OpNotContains:
		return "NOT (" + d.ILike(c.textColumn(d), bind(c.values[0])) + ")"
	case OpGreater, OpAfter:
		return col + " > " + bind(c.values[0])
	case OpGreaterOrEqual:
		return col + " >= " + bind(c.values[0])
	case OpLess, OpBefore:
		return col + " < " + bind(c.values[0])
	case OpLessOrEqual:
		return col + " <= " + bind(c.values[0])
	case OpBetween, OpOn:
		lower := bind(c.values[0])
		upper := bind(c.values[1])
		if c.halfOpen {
			return "(" + col + " >= " + lower + " AND " + col + " < " + upper + ")"
		}
		return col + " BETWEEN " + lower + " AND " + upper
	case OpBlank:
		if c.field.Kind == Text {
			return "(" + col + " IS NULL OR " + col + " = '')"
		}
		return col + " IS NULL"
	case OpNotBlank:
		if c.field.Kind == Text {
			return "(" + col + " IS NOT NULL AND " + col + " <> '')"
		}
		return col + " IS NOT NULL"
	}
	// unreachable, compile only lets known operators through
	return ""
}

func (c compiled) textColumn(d Dialect) string {
	if c.field.Kind == Text {
		return c.field.Column
	}
	return d.Text(c.field.Column)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(op Operator, s string) string {
	s = likeEscaper.Replace(s)
	switch op {
	case OpStartsWith:
		return s + "%"
	case OpEndsWith:
		return "%" + s
	default:
		return "%" + s + "%"
	}
}

// coerce converts v for a column of kind k. dateOnly is set for a date
// value given without a time of day.
func coerce(k Kind, v interface{}) (value interface{}, dateOnly bool, ok bool) {
	switch k {
	case Number:
		f, ok := numberValue(v)
		return f, false, ok
	case Date:
		t, dateOnly, ok := dateValue(v)
		if !ok {
			return nil, false, false
		}
		return t, dateOnly, true
	default:
		s, ok := textValue(v)
		return s, false, ok
	}
}

func textValue(v interface{}) (string, bool) {
	var s string
	switch x := v.(type) {
	case string:
		s = strings.TrimSpace(x)
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case jsoniter.Number:
		s = x.String()
	case int:
		s = strconv.Itoa(x)
	case int64:
		s = strconv.FormatInt(x, 10)
	case bool:
		s = strconv.FormatBool(x)
	default:
		return "", false
	}
	return s, s != ""
}

func numberValue(v interface{}) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case jsoniter.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

const (
	dayLayout      = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
)

// dateValue parses a date rule value. dateOnly is set for YYYY-MM-DD input.
func dateValue(v interface{}) (t time.Time, dateOnly bool, ok bool) {
	switch x := v.(type) {
	case time.Time:
		return x, false, true
	case string:
		s := strings.TrimSpace(x)
		if t, err := time.Parse(dayLayout, s); err == nil {
			return t, true, true
		}
		if t, err := time.Parse(dateTimeLayout, s); err == nil {
			return t, false, true
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC(), false, true
		}
	}
	return time.Time{}, false, false
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func nextDay(t time.Time) time.Time {
	return startOfDay(t).AddDate(0, 0, 1)
}

// EscapeLike escapes the LIKE wildcards and the escape character in s.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}
