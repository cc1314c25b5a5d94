package warehouse

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateTimeLayout is the text form of a DateTime parameter.
const DateTimeLayout = "2006-01-02 15:04:05"

var (
	arrayEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

	// Scalar parameters are read in the TabSeparated escaped format.
	scalarEscaper = strings.NewReplacer(`\`, `\\`, "\t", `\t`, "\n", `\n`, "\r", `\r`)
)

// FormatParam renders a Go value in the text form the HTTP interface expects
// for a query parameter.
func FormatParam(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return `\N`
	case string:
		return scalarEscaper.Replace(x)
	case time.Time:
		return x.Format(DateTimeLayout)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case []string:
		quoted := make([]string, len(x))
		for i, s := range x {
			quoted[i] = "'" + arrayEscaper.Replace(s) + "'"
		}
		return "[" + strings.Join(quoted, ",") + "]"
	default:
		return fmt.Sprint(x)
	}
}

// NamedArgs names positional arguments p1..pN, matching the placeholders the
// filter translator emits for ClickHouse.
func NamedArgs(args []interface{}) map[string]interface{} {
	named := make(map[string]interface{}, len(args))
	for i, a := range args {
		named["p"+strconv.Itoa(i+1)] = a
	}
	return named
}
