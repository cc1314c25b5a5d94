package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/fxdesk/dashboard-api/cache"
	"github.com/fxdesk/dashboard-api/filter"
	"github.com/fxdesk/dashboard-api/warehouse"
)

// pnlAnalysisSQL aggregates closed trades per account over
// [{start}, {end}). CEN accounts report in cents and are divided by 100.
const pnlAnalysisSQL = `WITH
    ib_costs AS (
        SELECT ticketSid, sum(commission) AS total_ib_cost
        FROM fxbackoffice_ib_processed_tickets
        WHERE close_time >= {start:DateTime} AND close_time < {end:DateTime}
        GROUP BY ticketSid
    )
SELECT
    t.LOGIN AS account,
    m.userId AS client_id,
    any(m.NAME) AS client_name,
    any(m.GROUP) AS group,
    any(NULLIF(u.country, '')) AS country,
    any(m.ZIPCODE) AS zipcode,
    any(m.CURRENCY) AS currency,
    any(m.sid) AS sid,
    any(u.partnerId) AS partner_id,
    any(ib_sum.net_deposit_usd) AS ib_net_deposit,
    'MT4' AS server,
    countIf(t.CMD IN (0, 1)) AS total_trades,
    sumIf(t.lots, t.CMD IN (0, 1)) / if(any(m.CURRENCY) = 'CEN', 100, 1) AS total_volume_lots,
    sumIf(t.PROFIT, t.CMD IN (0, 1)) / if(any(m.CURRENCY) = 'CEN', 100, 1) AS trade_profit_usd,
    sumIf(t.SWAPS, t.CMD IN (0, 1)) / if(any(m.CURRENCY) = 'CEN', 100, 1) AS swap_usd,
    sumIf(t.COMMISSION, t.CMD IN (0, 1)) / if(any(m.CURRENCY) = 'CEN', 100, 1) AS commission_usd,
    COALESCE(sum(ib.total_ib_cost), 0) AS ib_commission_usd,
    ((sumIf(t.PROFIT + t.SWAPS + t.COMMISSION, t.CMD IN (0, 1)) * -1) / if(any(m.CURRENCY) = 'CEN', 100, 1))
        - COALESCE(sum(ib.total_ib_cost), 0) AS broker_net_revenue,
    sumIf(t.PROFIT, t.CMD = 6) / if(any(m.CURRENCY) = 'CEN', 100, 1) AS period_net_deposit
FROM fxbackoffice_mt4_trades AS t
INNER JOIN fxbackoffice_mt4_users AS m ON t.LOGIN = m.LOGIN
LEFT JOIN fxbackoffice_users AS u ON m.userId = u.id
LEFT JOIN ib_costs AS ib ON t.ticketSid = ib.ticketSid
LEFT JOIN (
    SELECT ibId, sumMerge(net_deposit) AS net_deposit_usd
    FROM ib_downline_net_deposit_agg
    GROUP BY ibId
) AS ib_sum ON toString(u.partnerId) = toString(ib_sum.ibId)
WHERE t.CLOSE_TIME >= {start:DateTime}
    AND t.CLOSE_TIME < {end:DateTime}
    AND t.CMD IN (0, 1, 6)
    AND m.userId > 0
    AND COALESCE(u.isEmployee, 0) != 1`

const pnlSearchSQL = `
    AND (toString(m.userId) LIKE {search:String} OR toString(t.LOGIN) LIKE {search:String})`

const pnlGroupSQL = `
GROUP BY t.LOGIN, m.userId
HAVING total_volume_lots > 0 OR period_net_deposit != 0`

// PnlAnalysisFields are the filterable columns of a PnL analysis row.
var PnlAnalysisFields = filter.Catalog{
	"account":            {Column: "account", Kind: filter.Number},
	"client_id":          {Column: "client_id", Kind: filter.Number},
	"client_name":        {Column: "client_name", Kind: filter.Text},
	"group":              {Column: "`group`", Kind: filter.Text},
	"country":            {Column: "country", Kind: filter.Text},
	"zipcode":            {Column: "zipcode", Kind: filter.Text},
	"currency":           {Column: "currency", Kind: filter.Text},
	"sid":                {Column: "sid", Kind: filter.Number},
	"partner_id":         {Column: "partner_id", Kind: filter.Number},
	"server":             {Column: "server", Kind: filter.Text},
	"total_trades":       {Column: "total_trades", Kind: filter.Number},
	"total_volume_lots":  {Column: "total_volume_lots", Kind: filter.Number},
	"trade_profit_usd":   {Column: "trade_profit_usd", Kind: filter.Number},
	"swap_usd":           {Column: "swap_usd", Kind: filter.Number},
	"commission_usd":     {Column: "commission_usd", Kind: filter.Number},
	"ib_commission_usd":  {Column: "ib_commission_usd", Kind: filter.Number},
	"broker_net_revenue": {Column: "broker_net_revenue", Kind: filter.Number},
	"period_net_deposit": {Column: "period_net_deposit", Kind: filter.Number},
	"ib_net_deposit":     {Column: "ib_net_deposit", Kind: filter.Number},
}

// pnlMetricColumns are filled with 0 when missing. Dimension columns are
// left null.
var pnlMetricColumns = []string{
	"total_trades",
	"total_volume_lots",
	"trade_profit_usd",
	"swap_usd",
	"commission_usd",
	"ib_commission_usd",
	"broker_net_revenue",
	"period_net_deposit",
	"ib_net_deposit",
}

// PnlAnalysisQuery selects trades closed between the Start and End dates,
// both inclusive.
type PnlAnalysisQuery struct {
	Start  time.Time
	End    time.Time
	Search string
	Filter filter.Group
	// ExcludeFields are removed from the filter catalog.
	ExcludeFields []string
}

// PnlAnalysisResult is one PnL analysis response.
type PnlAnalysisResult struct {
	Data         []map[string]interface{} `json:"data"`
	Statistics   Statistics               `json:"statistics"`
	DroppedRules int                      `json:"-"`
}

// pnlStatement is the SQL and parameters of one analysis query.
type pnlStatement struct {
	sql     string
	params  map[string]interface{}
	dropped int
}

func buildPnlStatement(q PnlAnalysisQuery) pnlStatement {
	params := map[string]interface{}{
		"start": dayStart(q.Start),
		"end":   nextDayStart(q.End),
	}

	var sb strings.Builder
	sb.WriteString(pnlAnalysisSQL)
	if search := strings.TrimSpace(q.Search); search != "" {
		sb.WriteString(pnlSearchSQL)
		params["search"] = filter.EscapeLike(search) + "%"
	}
	sb.WriteString(pnlGroupSQL)
	inner := sb.String()

	pred := q.Filter.Translate(PnlAnalysisFields.Without(q.ExcludeFields...), filter.ClickHouse, 1)
	for name, v := range warehouse.NamedArgs(pred.Args) {
		params[name] = v
	}

	stmt := "SELECT * FROM (\n" + inner + "\n) AS analysis"
	if !pred.Empty() {
		stmt += "\nWHERE " + pred.SQL
	}
	stmt += "\nORDER BY ib_commission_usd DESC"

	return pnlStatement{sql: stmt, params: params, dropped: pred.Dropped}
}

func pnlCacheKey(q PnlAnalysisQuery) string {
	filterJSON, _ := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(q.Filter)
	excluded := append([]string(nil), q.ExcludeFields...)
	sort.Strings(excluded)
	return cache.Key("app:pnl:cache",
		"pnl_v2",
		q.Start.Format("2006-01-02"),
		q.End.Format("2006-01-02"),
		strings.TrimSpace(q.Search),
		filterJSON,
		strings.Join(excluded, ","),
	)
}

// PnlAnalysis runs the per account PnL aggregation.
func (s *Service) PnlAnalysis(ctx context.Context, q PnlAnalysisQuery) (PnlAnalysisResult, error) {
	if q.Start.IsZero() || q.End.IsZero() {
		return PnlAnalysisResult{}, fmt.Errorf("%w: start_date and end_date are required", ErrInvalidInput)
	}
	if q.End.Before(dayStart(q.Start)) {
		return PnlAnalysisResult{}, fmt.Errorf("%w: end_date must not be before start_date", ErrInvalidInput)
	}

	key := pnlCacheKey(q)
	var cached PnlAnalysisResult
	if s.cacheGet(ctx, "pnl_analysis", key, &cached) {
		cached.Statistics.FromCache = true
		if cached.Data == nil {
			cached.Data = []map[string]interface{}{}
		}
		return cached, nil
	}

	v, err := s.coalesce(ctx, &s.pnlFlight, "pnl_analysis", key, func(ctx context.Context) (interface{}, error) {
		return s.runPnlAnalysis(ctx, q, key)
	})
	if err != nil {
		return PnlAnalysisResult{}, err
	}
	return v.(PnlAnalysisResult), nil
}

func (s *Service) runPnlAnalysis(ctx context.Context, q PnlAnalysisQuery, key string) (PnlAnalysisResult, error) {
	stmt := buildPnlStatement(q)
	if stmt.dropped > 0 {
		s.log.Debugf("pnl analysis: dropped %d filter rules", stmt.dropped)
	}

	res, err := s.analytics.Query(ctx, stmt.sql, stmt.params)
	if err != nil {
		return PnlAnalysisResult{}, fmt.Errorf("pnl analysis query: %w", err)
	}

	zeroFill(res.Data, pnlMetricColumns)
	result := PnlAnalysisResult{
		Data:         res.Data,
		Statistics:   statisticsOf(res.Statistics),
		DroppedRules: stmt.dropped,
	}
	s.cacheSet(ctx, "pnl_analysis", key, result, pnlCacheTTL)
	return result, nil
}

// zeroFill replaces missing or non-numeric metric values with numbers.
func zeroFill(rows []map[string]interface{}, columns []string) {
	for _, row := range rows {
		for _, col := range columns {
			row[col] = asFloat(row[col])
		}
	}
}
