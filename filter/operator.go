package filter

import "strings"

// Operator names a comparison a Rule applies to its field.
type Operator string

// Supported operators. Anything else is dropped by the translator.
const (
	OpEquals         Operator = "equals"
	OpNotEquals      Operator = "not_equals"
	OpContains       Operator = "contains"
	OpNotContains    Operator = "not_contains"
	OpStartsWith     Operator = "starts_with"
	OpEndsWith       Operator = "ends_with"
	OpGreater        Operator = "gt"
	OpGreaterOrEqual Operator = "gte"
	OpLess           Operator = "lt"
	OpLessOrEqual    Operator = "lte"
	OpBetween        Operator = "between"
	OpBlank          Operator = "blank"
	OpNotBlank       Operator = "not_blank"
	OpBefore         Operator = "before"
	OpAfter          Operator = "after"
	OpOn             Operator = "on"
)

var (
	allKinds     = []Kind{Text, Number, Date}
	orderedKinds = []Kind{Number, Date}
	dateKinds    = []Kind{Date}
)

// operatorKinds is the operator allow-list, keyed to the field kinds each
// operator may be used with.
var operatorKinds = map[Operator][]Kind{
	OpEquals:         allKinds,
	OpNotEquals:      allKinds,
	OpContains:       allKinds,
	OpNotContains:    allKinds,
	OpStartsWith:     allKinds,
	OpEndsWith:       allKinds,
	OpGreater:        orderedKinds,
	OpGreaterOrEqual: orderedKinds,
	OpLess:           orderedKinds,
	OpLessOrEqual:    orderedKinds,
	OpBetween:        orderedKinds,
	OpBlank:          allKinds,
	OpNotBlank:       allKinds,
	OpBefore:         dateKinds,
	OpAfter:          dateKinds,
	OpOn:             dateKinds,
}

func (op Operator) normalize() Operator {
	return Operator(strings.ToLower(strings.TrimSpace(string(op))))
}

func (op Operator) appliesTo(k Kind) bool {
	for _, allowed := range operatorKinds[op.normalize()] {
		if allowed == k {
			return true
		}
	}
	return false
}

func (op Operator) isPattern() bool {
	switch op {
	case OpContains, OpNotContains, OpStartsWith, OpEndsWith:
		return true
	}
	return false
}
