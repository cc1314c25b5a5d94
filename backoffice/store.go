package backoffice

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// Store is the back-office data access used by the Service.
type Store interface {
	// IBMetrics aggregates the wallet metrics of one IB's downline.
	IBMetrics(ctx context.Context, ibid string, start, end time.Time) (ibMetricsRecord, error)
	// OpenPositions groups the open trades of the given platform schema.
	OpenPositions(ctx context.Context, schema string) ([]OpenPosition, error)
	LoginsByClientIDs(ctx context.Context, ids []int64) ([]string, error)
	// ClientIDsByTags returns clients carrying any, or with matchAll every,
	// one of tags.
	ClientIDsByTags(ctx context.Context, tags []string, matchAll bool) ([]int64, error)
	Accounts(ctx context.Context, logins []string) ([]accountRecord, error)
	TagsByClient(ctx context.Context, ids []int64) (map[int64][]string, error)
	// TradingSummaries aggregates the filtered trades per login.
	TradingSummaries(ctx context.Context, f tradeFilter) ([]tradingSummaryRecord, error)
	CashMovements(ctx context.Context, f tradeFilter) ([]CashMovement, error)
	ClosedTrades(ctx context.Context, f tradeFilter, order tradeOrder, limit int) ([]Trade, error)
	HourlyTrades(ctx context.Context, q HourlyDetailsQuery) ([]Trade, error)
	HourlyTotals(ctx context.Context, q HourlyDetailsQuery) (hourlyTotals, error)
	Ping(ctx context.Context) error
	Close() error
}

// ibMetricsRecord is one IB_QUERY row. Sums arrive as DECIMAL.
type ibMetricsRecord struct {
	IBID               string              `db:"ibid"`
	DepositUSD         decimal.NullDecimal `db:"deposit_usd"`
	TotalWithdrawalUSD decimal.NullDecimal `db:"total_withdrawal_usd"`
	IBWithdrawalUSD    decimal.NullDecimal `db:"ib_withdrawal_usd"`
	IBWalletBalance    decimal.NullDecimal `db:"ib_wallet_balance"`
	NetDepositUSD      decimal.NullDecimal `db:"net_deposit_usd"`
}

// accountRecord is one mt4_users row of an audience.
type accountRecord struct {
	Login   string          `db:"login"`
	Group   sql.NullString  `db:"group"`
	Name    sql.NullString  `db:"name"`
	ID      sql.NullString  `db:"ID"`
	RegDate sql.NullString  `db:"REGDATE"`
	Balance sql.NullFloat64 `db:"BALANCE"`
	Equity  sql.NullFloat64 `db:"equity"`
}

// tradingSummaryRecord is the TradingSummary of one login.
type tradingSummaryRecord struct {
	Login string `db:"login"`
	TradingSummary
}

type hourlyTotals struct {
	Count  int64   `db:"total_count"`
	Profit float64 `db:"total_profit"`
}

type clientTag struct {
	ClientID int64  `db:"client_id"`
	Tag      string `db:"tag"`
}

// MySQLStore is the Store backed by the back-office MySQL database.
type MySQLStore struct {
	db *sqlx.DB
}

// OpenMySQL connects to dsn. Time values are parsed and the pool is sized
// with maxConn.
func OpenMySQL(dsn string, maxConn int) (*MySQLStore, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("OpenMySQL() parse dsn err: %w", err)
	}
	cfg.ParseTime = true
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	if _, ok := cfg.Params["charset"]; !ok {
		cfg.Params["charset"] = "utf8mb4"
	}

	db, err := sqlx.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("OpenMySQL() open err: %w", err)
	}
	if maxConn > 0 {
		db.SetMaxOpenConns(maxConn)
		db.SetMaxIdleConns(maxConn)
	}
	db.SetConnMaxLifetime(5 * time.Minute)
	return NewMySQLStore(db), nil
}

// NewMySQLStore wraps an open connection pool.
func NewMySQLStore(db *sqlx.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

// IBMetrics is part of Store.
func (m *MySQLStore) IBMetrics(ctx context.Context, ibid string, start, end time.Time) (ibMetricsRecord, error) {
	query, args, err := sqlx.Named(ibQuery, map[string]interface{}{
		"target_ib":  ibid,
		"start_time": start.Format(sqlTimeLayout),
		"end_time":   end.Format(sqlTimeLayout),
	})
	if err != nil {
		return ibMetricsRecord{}, fmt.Errorf("IBMetrics() bind err: %w", err)
	}

	var rec ibMetricsRecord
	err = m.db.GetContext(ctx, &rec, m.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return ibMetricsRecord{IBID: ibid}, nil
	}
	if err != nil {
		return ibMetricsRecord{}, fmt.Errorf("IBMetrics() query ib %s err: %w", ibid, err)
	}
	return rec, nil
}

// OpenPositions is part of Store.
func (m *MySQLStore) OpenPositions(ctx context.Context, schema string) ([]OpenPosition, error) {
	query, args, err := sqlx.Named(openPositionsQuery(schema), map[string]interface{}{
		"like_test":    "%test%",
		"like_kcm":     "KCM%",
		"like_testkcm": "testKCM%",
	})
	if err != nil {
		return nil, fmt.Errorf("OpenPositions() bind err: %w", err)
	}
	rows := []OpenPosition{}
	if err := m.db.SelectContext(ctx, &rows, m.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("OpenPositions() query err: %w", err)
	}
	return rows, nil
}

// LoginsByClientIDs is part of Store.
func (m *MySQLStore) LoginsByClientIDs(ctx context.Context, ids []int64) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(loginsByClientIDsQuery, ids)
	if err != nil {
		return nil, fmt.Errorf("LoginsByClientIDs() bind err: %w", err)
	}
	var logins []string
	if err := m.db.SelectContext(ctx, &logins, m.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("LoginsByClientIDs() query err: %w", err)
	}
	return logins, nil
}

// ClientIDsByTags is part of Store.
func (m *MySQLStore) ClientIDsByTags(ctx context.Context, tags []string, matchAll bool) ([]int64, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	query, args, err := clientIDsByTagsQuery(tags, matchAll)
	if err != nil {
		return nil, fmt.Errorf("ClientIDsByTags() bind err: %w", err)
	}
	var ids []int64
	if err := m.db.SelectContext(ctx, &ids, m.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("ClientIDsByTags() query err: %w", err)
	}
	return ids, nil
}

// Accounts is part of Store.
func (m *MySQLStore) Accounts(ctx context.Context, logins []string) ([]accountRecord, error) {
	if len(logins) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(accountsQuery, logins)
	if err != nil {
		return nil, fmt.Errorf("Accounts() bind err: %w", err)
	}
	var rows []accountRecord
	if err := m.db.SelectContext(ctx, &rows, m.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("Accounts() query err: %w", err)
	}
	return rows, nil
}

// TagsByClient is part of Store.
func (m *MySQLStore) TagsByClient(ctx context.Context, ids []int64) (map[int64][]string, error) {
	out := make(map[int64][]string)
	if len(ids) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(tagsByClientQuery, ids)
	if err != nil {
		return nil, fmt.Errorf("TagsByClient() bind err: %w", err)
	}
	var rows []clientTag
	if err := m.db.SelectContext(ctx, &rows, m.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("TagsByClient() query err: %w", err)
	}
	for _, r := range rows {
		out[r.ClientID] = append(out[r.ClientID], r.Tag)
	}
	return out, nil
}

// TradingSummaries is part of Store.
func (m *MySQLStore) TradingSummaries(ctx context.Context, f tradeFilter) ([]tradingSummaryRecord, error) {
	query, args := tradingSummaryQuery(f)
	var rows []tradingSummaryRecord
	if err := m.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("TradingSummaries() query err: %w", err)
	}
	return rows, nil
}

// CashMovements is part of Store.
func (m *MySQLStore) CashMovements(ctx context.Context, f tradeFilter) ([]CashMovement, error) {
	query, args := cashMovementsQuery(f)
	var rows []CashMovement
	if err := m.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("CashMovements() query err: %w", err)
	}
	return rows, nil
}

// ClosedTrades is part of Store.
func (m *MySQLStore) ClosedTrades(ctx context.Context, f tradeFilter, order tradeOrder, limit int) ([]Trade, error) {
	query, args := closedTradesQuery(f, order, limit)
	var rows []Trade
	if err := m.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("ClosedTrades() query err: %w", err)
	}
	return rows, nil
}

// HourlyTrades is part of Store.
func (m *MySQLStore) HourlyTrades(ctx context.Context, q HourlyDetailsQuery) ([]Trade, error) {
	query, args := hourlyTradesQuery(q)
	var rows []Trade
	if err := m.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("HourlyTrades() query err: %w", err)
	}
	return rows, nil
}

// HourlyTotals is part of Store.
func (m *MySQLStore) HourlyTotals(ctx context.Context, q HourlyDetailsQuery) (hourlyTotals, error) {
	query, args := hourlyTotalsQuery(q)
	var totals hourlyTotals
	if err := m.db.GetContext(ctx, &totals, query, args...); err != nil {
		return hourlyTotals{}, fmt.Errorf("HourlyTotals() query err: %w", err)
	}
	return totals, nil
}

// Ping is part of Store.
func (m *MySQLStore) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

// Close is part of Store.
func (m *MySQLStore) Close() error {
	return m.db.Close()
}
