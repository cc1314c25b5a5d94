package analytics

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/fxdesk/dashboard-api/cache"
	"github.com/fxdesk/dashboard-api/filter"
	"github.com/fxdesk/dashboard-api/warehouse"
)

const (
	clientReturnCacheTTL = 30 * time.Minute

	// DefaultReturnPageSize is used when ClientReturnQuery.PageSize is 0.
	DefaultReturnPageSize = 50
	// MaxReturnPageSize caps ClientReturnQuery.PageSize.
	MaxReturnPageSize = 500

	defaultReturnSort = "month_trade_profit"
)

// Deposit buckets classify a client by average historical deposit.
const (
	Bucket0To2000     = "0-2000"
	Bucket2000To5000  = "2000-5000"
	Bucket5000To50000 = "5000-50000"
	Bucket50000Plus   = "50000+"
)

var depositBuckets = []string{Bucket0To2000, Bucket2000To5000, Bucket5000To50000, Bucket50000Plus}

// returnSortColumns are the columns a return rate page can be ordered by.
var returnSortColumns = []string{
	"client_id", "net_deposit_hist", "net_deposit_month", "equity",
	"profit_hist", "month_trade_profit", "deposit_avg", "deposit_bucket",
	"return_non_adjusted", "adj_0_2000", "adj_2000_5000", "adj_5000_50000", "adj_50000_plus",
}

// clientReturnSQL computes, per client with trades closed in
// [{month_start}, {month_end}), the month profit, the historical and month
// net deposit, the equity and the return rates. Clients with no positive net
// deposit get a return adjusted by their deposit bucket instead. CEN amounts
// are in cents.
const clientReturnSQL = `SELECT
    tm.client_id AS client_id,
    round(COALESCE(th.deposits_hist, 0) + COALESCE(th.withdrawals_hist, 0), 2) AS net_deposit_hist,
    round(COALESCE(txm.deposits_month, 0) + COALESCE(txm.withdrawals_month, 0), 2) AS net_deposit_month,
    round(COALESCE(eq.equity, 0), 2) AS equity,
    round(COALESCE(eq.equity, 0) - (COALESCE(th.deposits_hist, 0) + COALESCE(th.withdrawals_hist, 0)), 2) AS profit_hist,
    round(tm.month_trade_profit, 2) AS month_trade_profit,
    COALESCE(th.deposits_hist, 0) / greatest(COALESCE(th.deposit_count, 1), 1) AS deposit_avg,
    (COALESCE(th.deposits_hist, 0) + COALESCE(th.withdrawals_hist, 0)) <= 0 AS adjusted,
    multiIf(deposit_avg < 2000, '0-2000', deposit_avg < 5000, '2000-5000', deposit_avg < 50000, '5000-50000', '50000+') AS deposit_bucket,
    if(adjusted AND deposit_bucket = '0-2000', round(COALESCE(eq.equity, 0) / 2000 * 100, 2), NULL) AS adj_0_2000,
    if(adjusted AND deposit_bucket = '2000-5000', round(COALESCE(eq.equity, 0) / 5000 * 100, 2), NULL) AS adj_2000_5000,
    if(adjusted AND deposit_bucket = '5000-50000', round(COALESCE(eq.equity, 0) / 50000 * 100, 2), NULL) AS adj_5000_50000,
    if(adjusted AND deposit_bucket = '50000+', round(COALESCE(eq.equity, 0) / 60000 * 100, 2), NULL) AS adj_50000_plus,
    if(NOT adjusted,
        round((COALESCE(eq.equity, 0) - (th.deposits_hist + th.withdrawals_hist)) / (th.deposits_hist + th.withdrawals_hist) * 100, 2),
        NULL) AS return_non_adjusted
FROM (
    SELECT
        mu.userId AS client_id,
        SUM(if(mu.CURRENCY = 'CEN', toFloat64(t.PROFIT) / 100.0, toFloat64(t.PROFIT))) AS month_trade_profit
    FROM fxbackoffice_mt4_trades t
    INNER JOIN fxbackoffice_mt4_users mu ON t.LOGIN = mu.LOGIN
    WHERE t.CLOSE_TIME >= {month_start:DateTime} AND t.CLOSE_TIME < {month_end:DateTime}
      AND t.CMD IN (0, 1)
      AND mu.userId > 0
      AND mu.sid IN (1, 5, 6)
    GROUP BY mu.userId
) AS tm
LEFT JOIN (
    SELECT
        userId AS client_id,
        SUM(if(upper(CURRENCY) = 'CEN', toFloat64(EQUITY) / 100.0, toFloat64(EQUITY))) AS equity
    FROM fxbackoffice_mt4_users
    WHERE userId > 0 AND sid IN (1, 5, 6)
    GROUP BY userId
) AS eq ON tm.client_id = eq.client_id
LEFT JOIN (
    SELECT
        mu.userId AS client_id,
        sumIf(if(mu.CURRENCY = 'CEN', toFloat64(t.PROFIT) / 100.0, toFloat64(t.PROFIT)), t.PROFIT > 0) AS deposits_hist,
        sumIf(if(mu.CURRENCY = 'CEN', toFloat64(t.PROFIT) / 100.0, toFloat64(t.PROFIT)), t.PROFIT < 0) AS withdrawals_hist,
        countIf(t.PROFIT > 0) AS deposit_count
    FROM fxbackoffice_mt4_trades t
    INNER JOIN fxbackoffice_mt4_users mu ON t.LOGIN = mu.LOGIN
    WHERE t.CMD = 6 AND mu.userId > 0 AND mu.sid IN (1, 5, 6)
    GROUP BY mu.userId
) AS th ON tm.client_id = th.client_id
LEFT JOIN (
    SELECT
        mu.userId AS client_id,
        sumIf(if(mu.CURRENCY = 'CEN', toFloat64(t.PROFIT) / 100.0, toFloat64(t.PROFIT)), t.PROFIT > 0) AS deposits_month,
        sumIf(if(mu.CURRENCY = 'CEN', toFloat64(t.PROFIT) / 100.0, toFloat64(t.PROFIT)), t.PROFIT < 0) AS withdrawals_month
    FROM fxbackoffice_mt4_trades t
    INNER JOIN fxbackoffice_mt4_users mu ON t.LOGIN = mu.LOGIN
    WHERE t.CMD = 6
      AND t.CLOSE_TIME >= {month_start:DateTime} AND t.CLOSE_TIME < {month_end:DateTime}
      AND mu.userId > 0 AND mu.sid IN (1, 5, 6)
    GROUP BY mu.userId
) AS txm ON tm.client_id = txm.client_id`

// ClientReturnQuery selects one page of the client return rates. The month
// window covers MonthStart to MonthEnd, both dates inclusive.
type ClientReturnQuery struct {
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
	Search        string
	DepositBucket string
	MonthStart    time.Time
	MonthEnd      time.Time
}

// ClientReturnRow is the return rate of one client. Only one of the adjusted
// rates is set, and only for clients without a positive net deposit.
type ClientReturnRow struct {
	ClientID          int64    `json:"client_id"`
	NetDepositHist    float64  `json:"net_deposit_hist"`
	NetDepositMonth   float64  `json:"net_deposit_month"`
	Equity            float64  `json:"equity"`
	ProfitHist        float64  `json:"profit_hist"`
	MonthTradeProfit  float64  `json:"month_trade_profit"`
	Adj0To2000        *float64 `json:"adj_0_2000"`
	Adj2000To5000     *float64 `json:"adj_2000_5000"`
	Adj5000To50000    *float64 `json:"adj_5000_50000"`
	Adj50000Plus      *float64 `json:"adj_50000_plus"`
	ReturnNonAdjusted *float64 `json:"return_non_adjusted"`
}

// ClientReturnStatistics describe how a return rate page was produced.
type ClientReturnStatistics struct {
	QueryTimeMs float64 `json:"query_time_ms"`
	FromCache   bool    `json:"from_cache"`
	MonthRange  string  `json:"month_range"`
	RowsRead    int64   `json:"rows_read"`
	BytesRead   int64   `json:"bytes_read"`
}

// ClientReturnResult is one page of client return rates.
type ClientReturnResult struct {
	Data       []ClientReturnRow      `json:"data"`
	Total      int64                  `json:"total"`
	Page       int                    `json:"page"`
	PageSize   int                    `json:"page_size"`
	TotalPages int64                  `json:"total_pages"`
	Statistics ClientReturnStatistics `json:"statistics"`
}

// normalize applies the defaults and validates q.
func (q *ClientReturnQuery) normalize(now time.Time) error {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PageSize == 0 {
		q.PageSize = DefaultReturnPageSize
	}
	if q.Page < 1 {
		return fmt.Errorf("%w: page must be at least 1", ErrInvalidInput)
	}
	if q.PageSize < 1 || q.PageSize > MaxReturnPageSize {
		return fmt.Errorf("%w: page_size must be between 1 and %d", ErrInvalidInput, MaxReturnPageSize)
	}

	q.SortBy = strings.TrimSpace(q.SortBy)
	if !lo.Contains(returnSortColumns, q.SortBy) {
		q.SortBy = defaultReturnSort
	}
	switch q.SortOrder = strings.ToLower(strings.TrimSpace(q.SortOrder)); q.SortOrder {
	case "":
		q.SortOrder = "desc"
	case "asc", "desc":
	default:
		return fmt.Errorf("%w: sort_order must be asc or desc", ErrInvalidInput)
	}

	q.DepositBucket = strings.TrimSpace(q.DepositBucket)
	if q.DepositBucket != "" && !lo.Contains(depositBuckets, q.DepositBucket) {
		return fmt.Errorf("%w: deposit_bucket must be one of %s", ErrInvalidInput, strings.Join(depositBuckets, ", "))
	}

	q.Search = strings.TrimSpace(q.Search)
	if q.MonthStart.IsZero() {
		q.MonthStart = monthStart(now)
	}
	if q.MonthEnd.IsZero() {
		q.MonthEnd = dayStart(now)
	}
	if q.MonthEnd.Before(dayStart(q.MonthStart)) {
		return fmt.Errorf("%w: month_end must not be before month_start", ErrInvalidInput)
	}
	return nil
}

// clientReturnStatements builds the page and count queries for q, which
// share their parameters. A search that is not a client id is ignored.
func clientReturnStatements(q ClientReturnQuery) (page, count string, params map[string]interface{}) {
	w := filter.NewWhere(filter.ClickHouse)
	if id, err := strconv.ParseInt(q.Search, 10, 64); err == nil && id >= 0 {
		w.And("client_id = " + w.Arg(id))
	}
	if q.DepositBucket != "" {
		w.And("deposit_bucket = " + w.Arg(q.DepositBucket))
	}
	from := "FROM (\n" + clientReturnSQL + "\n) AS r" + w.Clause()

	params = warehouse.NamedArgs(w.Args())
	params["month_start"] = dayStart(q.MonthStart)
	params["month_end"] = nextDayStart(q.MonthEnd)
	params["limit"] = int64(q.PageSize)
	params["offset"] = int64((q.Page - 1) * q.PageSize)

	page = fmt.Sprintf("SELECT * %s\nORDER BY %s %s NULLS LAST, client_id\nLIMIT {limit:UInt64} OFFSET {offset:UInt64}",
		from, q.SortBy, strings.ToUpper(q.SortOrder))
	count = "SELECT count() AS total " + from
	return page, count, params
}

func clientReturnCacheKey(q ClientReturnQuery) string {
	return cache.Key("app:client_return:cache",
		"client_return_v2",
		q.MonthStart.Format("2006-01-02"),
		q.MonthEnd.Format("2006-01-02"),
		q.Search,
		q.DepositBucket,
		q.SortBy,
		q.SortOrder,
		q.Page,
		q.PageSize,
	)
}

// ClientReturnRate returns one page of client return rates for the month
// window, the current month to date by default.
func (s *Service) ClientReturnRate(ctx context.Context, q ClientReturnQuery) (ClientReturnResult, error) {
	if err := q.normalize(s.now()); err != nil {
		return ClientReturnResult{}, err
	}

	key := clientReturnCacheKey(q)
	var cached ClientReturnResult
	if s.cacheGet(ctx, "client_return", key, &cached) {
		cached.Statistics.FromCache = true
		if cached.Data == nil {
			cached.Data = []ClientReturnRow{}
		}
		return cached, nil
	}

	v, err := s.coalesce(ctx, &s.returnFlight, "client_return", key, func(ctx context.Context) (interface{}, error) {
		return s.runClientReturnRate(ctx, q, key)
	})
	if err != nil {
		return ClientReturnResult{}, err
	}
	return v.(ClientReturnResult), nil
}

func (s *Service) runClientReturnRate(ctx context.Context, q ClientReturnQuery, key string) (ClientReturnResult, error) {
	begin := time.Now()
	pageSQL, countSQL, params := clientReturnStatements(q)
	s.log.Infof("client return rate: %s ~ %s, search=%q, bucket=%q",
		q.MonthStart.Format("2006-01-02"), q.MonthEnd.Format("2006-01-02"), q.Search, q.DepositBucket)

	var (
		rows  []map[string]interface{}
		total int64
		stats ClientReturnStatistics
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := s.analytics.Query(gctx, pageSQL, params)
		if err != nil {
			return fmt.Errorf("client return rate query: %w", err)
		}
		rows = res.Data
		stats.RowsRead += res.Statistics.RowsRead
		stats.BytesRead += res.Statistics.BytesRead
		return nil
	})
	var countStats ClientReturnStatistics
	g.Go(func() error {
		res, err := s.analytics.Query(gctx, countSQL, params)
		if err != nil {
			return fmt.Errorf("client return rate count: %w", err)
		}
		if len(res.Data) > 0 {
			total = int64(asFloat(res.Data[0]["total"]))
		}
		countStats.RowsRead = res.Statistics.RowsRead
		countStats.BytesRead = res.Statistics.BytesRead
		return nil
	})
	if err := g.Wait(); err != nil {
		return ClientReturnResult{}, err
	}

	data := make([]ClientReturnRow, len(rows))
	for i, row := range rows {
		data[i] = clientReturnRowOf(row)
	}
	stats.RowsRead += countStats.RowsRead
	stats.BytesRead += countStats.BytesRead
	stats.MonthRange = q.MonthStart.Format("2006-01-02") + " ~ " + q.MonthEnd.Format("2006-01-02")
	stats.QueryTimeMs = float64(time.Since(begin).Microseconds()) / 1000

	result := ClientReturnResult{
		Data:       data,
		Total:      total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: (total + int64(q.PageSize) - 1) / int64(q.PageSize),
		Statistics: stats,
	}
	s.cacheSet(ctx, "client_return", key, result, clientReturnCacheTTL)
	return result, nil
}

func clientReturnRowOf(row map[string]interface{}) ClientReturnRow {
	return ClientReturnRow{
		ClientID:          int64(asFloat(row["client_id"])),
		NetDepositHist:    asFloat(row["net_deposit_hist"]),
		NetDepositMonth:   asFloat(row["net_deposit_month"]),
		Equity:            asFloat(row["equity"]),
		ProfitHist:        asFloat(row["profit_hist"]),
		MonthTradeProfit:  asFloat(row["month_trade_profit"]),
		Adj0To2000:        asNullableFloat(row["adj_0_2000"]),
		Adj2000To5000:     asNullableFloat(row["adj_2000_5000"]),
		Adj5000To50000:    asNullableFloat(row["adj_5000_50000"]),
		Adj50000Plus:      asNullableFloat(row["adj_50000_plus"]),
		ReturnNonAdjusted: asNullableFloat(row["return_non_adjusted"]),
	}
}

// asNullableFloat is asFloat keeping null as nil.
func asNullableFloat(v interface{}) *float64 {
	if v == nil {
		return nil
	}
	f := asFloat(v)
	return &f
}
