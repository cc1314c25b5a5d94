package filter

import "github.com/samber/lo"

// Kind decides how rule values are coerced and which operators apply.
type Kind int

const (
	// Text columns compare as strings; blank means NULL or ''.
	Text Kind = iota
	// Number columns accept JSON numbers or numeric strings.
	Number
	// Date columns accept YYYY-MM-DD, "YYYY-MM-DD HH:MM:SS" or RFC 3339 values.
	Date
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case Number:
		return "number"
	case Date:
		return "date"
	}
	return "unknown"
}

// Field maps a filterable field to the SQL expression it reads.
type Field struct {
	Column string
	Kind   Kind
}

// Catalog is the field allow-list of one query. Keys are the identifiers the
// client sends, values are never taken from user input.
type Catalog map[string]Field

// Without returns a copy of the catalog minus the named fields.
func (c Catalog) Without(names ...string) Catalog {
	if len(names) == 0 {
		return c
	}
	return lo.OmitByKeys(c, names)
}
