package filter

import "strings"

// Where accumulates the conditions of a WHERE clause together with their
// bound arguments, keeping placeholder numbering consistent.
type Where struct {
	dialect Dialect
	parts   []string
	args    []interface{}
}

// NewWhere returns an empty builder for the dialect.
func NewWhere(d Dialect) *Where {
	return &Where{dialect: d}
}

// Arg binds v and returns its placeholder.
func (w *Where) Arg(v interface{}) string {
	w.args = append(w.args, v)
	return w.dialect.Placeholder(len(w.args), v)
}

// And adds a condition. Placeholders in it must come from Arg.
func (w *Where) And(cond string) {
	w.parts = append(w.parts, cond)
}

// AndGroup translates g against the catalog and adds it as one condition.
func (w *Where) AndGroup(g Group, catalog Catalog) Predicate {
	p := g.Translate(catalog, w.dialect, len(w.args)+1)
	if !p.Empty() {
		w.parts = append(w.parts, p.Grouped())
		w.args = append(w.args, p.Args...)
	}
	return p
}

// Clause returns " WHERE ..." or an empty string when nothing was added.
func (w *Where) Clause() string {
	if len(w.parts) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.parts, " AND ")
}

// Args returns the bound arguments in placeholder order.
func (w *Where) Args() []interface{} {
	return w.args
}
