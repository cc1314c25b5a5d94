// Package filter translates the row filters sent by the dashboard grids into
// parameterized SQL predicates.
//
// The translator is a permissive pass-filter: a rule naming a field or an
// operator outside the allow-lists, or carrying a value that does not fit the
// field, is skipped. Only malformed JSON is an error, and it is reported by
// Parse before any translation happens.
package filter

import (
	"errors"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrMalformed is returned by Parse when the filter is not valid JSON for a Group.
var ErrMalformed = errors.New("malformed filter")

// Join is the boolean connective between the rules of a Group.
type Join string

const (
	// JoinAnd requires every rule to match. It is the default.
	JoinAnd Join = "and"
	// JoinOr requires at least one rule to match.
	JoinOr Join = "or"
)

// Rule is a single user supplied condition.
type Rule struct {
	Field    string      `json:"field"`
	Operator Operator    `json:"operator"`
	Value    interface{} `json:"value,omitempty"`
	// Value2 is the upper bound of a between rule. Ignored otherwise.
	Value2 interface{} `json:"value2,omitempty"`
}

// Group is an ordered list of rules combined with one Join.
type Group struct {
	Join  Join   `json:"join"`
	Rules []Rule `json:"rules"`
}

// IsEmpty reports whether the group has no rules at all.
func (g Group) IsEmpty() bool {
	return len(g.Rules) == 0
}

func (g Group) connective() string {
	if strings.EqualFold(strings.TrimSpace(string(g.Join)), string(JoinOr)) {
		return " OR "
	}
	return " AND "
}

// Parse decodes the JSON form of a Group. A blank string is an empty group.
func Parse(raw string) (Group, error) {
	var g Group
	if strings.TrimSpace(raw) == "" {
		return g, nil
	}
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return Group{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return g, nil
}
