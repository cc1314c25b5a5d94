package filter

import (
	"fmt"
	"time"
)

// Dialect emits engine specific SQL for the translator.
type Dialect interface {
	// Placeholder returns the bind marker of the n-th (1-based) argument.
	Placeholder(n int, arg interface{}) string
	// ILike returns a case-insensitive LIKE of expr against the pattern bound at ph.
	ILike(expr, ph string) string
	// Text casts expr to a string type.
	Text(expr string) string
	// Name identifies the dialect in logs.
	Name() string
}

type postgresDialect struct{}

// Placeholder casts float arguments to numeric so that a fractional bound
// compared with an integer column is not truncated by the driver.
func (postgresDialect) Placeholder(n int, arg interface{}) string {
	switch arg.(type) {
	case float32, float64:
		return fmt.Sprintf("$%d::numeric", n)
	}
	return fmt.Sprintf("$%d", n)
}

func (postgresDialect) ILike(expr, ph string) string {
	return fmt.Sprintf("%s ILIKE %s", expr, ph)
}

func (postgresDialect) Text(expr string) string {
	return fmt.Sprintf("CAST(%s AS TEXT)", expr)
}

func (postgresDialect) Name() string { return "postgres" }

type mysqlDialect struct{}

func (mysqlDialect) Placeholder(int, interface{}) string {
	return "?"
}

func (mysqlDialect) ILike(expr, ph string) string {
	return fmt.Sprintf("LOWER(%s) LIKE LOWER(%s)", expr, ph)
}

func (mysqlDialect) Text(expr string) string {
	return fmt.Sprintf("CAST(%s AS CHAR)", expr)
}

func (mysqlDialect) Name() string { return "mysql" }

type clickHouseDialect struct{}

// Placeholder returns a typed query parameter, bound as param_pN.
func (clickHouseDialect) Placeholder(n int, arg interface{}) string {
	return fmt.Sprintf("{p%d:%s}", n, ClickHouseType(arg))
}

func (clickHouseDialect) ILike(expr, ph string) string {
	return fmt.Sprintf("%s ILIKE %s", expr, ph)
}

func (clickHouseDialect) Text(expr string) string {
	return fmt.Sprintf("toString(%s)", expr)
}

func (clickHouseDialect) Name() string { return "clickhouse" }

// ClickHouseType is the parameter type used for a bound Go value.
func ClickHouseType(arg interface{}) string {
	switch arg.(type) {
	case float32, float64:
		return "Float64"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "Int64"
	case time.Time:
		return "DateTime"
	default:
		return "String"
	}
}

var (
	// Postgres numbers arguments $1, $2, ... and casts floats to numeric.
	Postgres Dialect = postgresDialect{}
	// MySQL uses positional ? markers.
	MySQL Dialect = mysqlDialect{}
	// ClickHouse uses typed named parameters {p1:Type}.
	ClickHouse Dialect = clickHouseDialect{}
)
