package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fxdesk/dashboard-api/cache"
)

// ibReportSQL aggregates money movements, trading and IB commissions per IB
// group, once over the report range and once over the month to date.
const ibReportSQL = `WITH
    toDateTime64({r_start:String}, 6) AS r_start,
    toDateTime64({r_end:String}, 6) AS r_end,
    toDateTime64({m_start:String}, 6) AS m_start,
    toDateTime64({m_end:String}, 6) AS m_end,
    toDate32({r_start:String}) AS r_date_start,
    toDate32({r_end:String}) AS r_date_end,
    toDate32({m_start:String}) AS m_date_start,
    toDate32({m_end:String}) AS m_date_end,
    {target_groups:Array(String)} AS target_groups,
    group_mapping AS (
        SELECT t.tag AS group_name, ut.userId AS user_id
        FROM fxbackoffice_tags t
        JOIN fxbackoffice_user_tags ut ON t.id = ut.tagId
        WHERE t.categoryId = 6
          AND (length(target_groups) = 0 OR has(arrayMap(x -> lower(x), target_groups), lower(t.tag)))
    ),
    money_stats AS (
        SELECT
            gm.group_name,
            sumIf(if(upper(tr.processedCurrency) = 'CEN', tr.processedAmount / 100, tr.processedAmount), tr.type = 'deposit' AND tr.processedAt >= r_start AND tr.processedAt < r_end) AS deposit_range,
            sumIf(if(upper(tr.processedCurrency) = 'CEN', tr.processedAmount / 100, tr.processedAmount), tr.type = 'withdrawal' AND tr.processedAt >= r_start AND tr.processedAt < r_end) AS withdrawal_range,
            sumIf(if(upper(tr.processedCurrency) = 'CEN', tr.processedAmount / 100, tr.processedAmount), tr.type = 'ib withdrawal' AND tr.processedAt >= r_start AND tr.processedAt < r_end) AS ib_withdrawal_range,
            sumIf(if(upper(tr.processedCurrency) = 'CEN', tr.processedAmount / 100, tr.processedAmount), tr.type = 'deposit' AND tr.processedAt >= m_start AND tr.processedAt < m_end) AS deposit_month,
            sumIf(if(upper(tr.processedCurrency) = 'CEN', tr.processedAmount / 100, tr.processedAmount), tr.type = 'withdrawal' AND tr.processedAt >= m_start AND tr.processedAt < m_end) AS withdrawal_month,
            sumIf(if(upper(tr.processedCurrency) = 'CEN', tr.processedAmount / 100, tr.processedAmount), tr.type = 'ib withdrawal' AND tr.processedAt >= m_start AND tr.processedAt < m_end) AS ib_withdrawal_month
        FROM fxbackoffice_transactions tr
        INNER JOIN group_mapping gm ON tr.fromUserId = gm.user_id
        WHERE tr.status = 'approved'
          AND tr.type IN ('deposit', 'withdrawal', 'ib withdrawal')
          AND tr.processedAt >= least(r_start, m_start)
        GROUP BY gm.group_name
    ),
    trade_stats AS (
        SELECT
            gm.group_name,
            sumIf(t.lots / if(mu.CURRENCY = 'CEN', 100, 1), t.CLOSE_TIME >= r_start AND t.CLOSE_TIME < r_end) AS volume_range,
            sumIf((t.PROFIT + t.SWAPS + t.COMMISSION) / if(mu.CURRENCY = 'CEN', 100, 1), t.CLOSE_TIME >= r_start AND t.CLOSE_TIME < r_end) AS net_profit_range,
            sumIf(t.COMMISSION / if(mu.CURRENCY = 'CEN', 100, 1), t.CLOSE_TIME >= r_start AND t.CLOSE_TIME < r_end) AS commission_range,
            sumIf(t.SWAPS / if(mu.CURRENCY = 'CEN', 100, 1), t.CLOSE_TIME >= r_start AND t.CLOSE_TIME < r_end) AS swap_range,
            sumIf(t.lots / if(mu.CURRENCY = 'CEN', 100, 1), t.CLOSE_TIME >= m_start AND t.CLOSE_TIME < m_end) AS volume_month,
            sumIf((t.PROFIT + t.SWAPS + t.COMMISSION) / if(mu.CURRENCY = 'CEN', 100, 1), t.CLOSE_TIME >= m_start AND t.CLOSE_TIME < m_end) AS net_profit_month,
            sumIf(t.COMMISSION / if(mu.CURRENCY = 'CEN', 100, 1), t.CLOSE_TIME >= m_start AND t.CLOSE_TIME < m_end) AS commission_month,
            sumIf(t.SWAPS / if(mu.CURRENCY = 'CEN', 100, 1), t.CLOSE_TIME >= m_start AND t.CLOSE_TIME < m_end) AS swap_month
        FROM fxbackoffice_mt4_trades t
        INNER JOIN fxbackoffice_mt4_users mu ON t.LOGIN = mu.LOGIN
        INNER JOIN group_mapping gm ON mu.userId = gm.user_id
        WHERE t.CMD IN (0, 1) AND t.CLOSE_TIME >= least(r_start, m_start)
        GROUP BY gm.group_name
    ),
    ib_commission_stats AS (
        SELECT
            gm.group_name,
            sumIf(st.commission / if(upper(st.currency) = 'CEN', 100, 1), st.date >= r_date_start AND st.date < r_date_end) AS ib_commission_range,
            sumIf(st.commission / if(upper(st.currency) = 'CEN', 100, 1), st.date >= m_date_start AND st.date < m_date_end) AS ib_commission_month
        FROM fxbackoffice_stats_ib_commissions_by_login_sid st
        INNER JOIN fxbackoffice_mt4_users mu ON splitByChar('-', st.fromLoginSid)[2] = toString(mu.LOGIN)
        INNER JOIN group_mapping gm ON mu.userId = gm.user_id
        WHERE st.date >= least(r_date_start, m_date_start)
        GROUP BY gm.group_name
    )
SELECT
    coalesce(m.group_name, t.group_name, i.group_name) AS group,
    round(coalesce(m.deposit_range, 0), 2) AS deposit_range,
    round(coalesce(m.deposit_month, 0), 2) AS deposit_month,
    round(coalesce(m.withdrawal_range, 0), 2) AS withdrawal_range,
    round(coalesce(m.withdrawal_month, 0), 2) AS withdrawal_month,
    round(coalesce(m.ib_withdrawal_range, 0), 2) AS ib_withdrawal_range,
    round(coalesce(m.ib_withdrawal_month, 0), 2) AS ib_withdrawal_month,
    round(coalesce(m.deposit_range, 0) + coalesce(m.withdrawal_range, 0) + coalesce(m.ib_withdrawal_range, 0), 2) AS net_deposit_range,
    round(coalesce(m.deposit_month, 0) + coalesce(m.withdrawal_month, 0) + coalesce(m.ib_withdrawal_month, 0), 2) AS net_deposit_month,
    round(coalesce(t.volume_range, 0), 2) AS volume_range,
    round(coalesce(t.volume_month, 0), 2) AS volume_month,
    round(coalesce(t.net_profit_range, 0), 2) AS profit_range,
    round(coalesce(t.net_profit_month, 0), 2) AS profit_month,
    round(coalesce(t.commission_range, 0), 2) AS commission_range,
    round(coalesce(t.commission_month, 0), 2) AS commission_month,
    round(coalesce(t.swap_range, 0), 2) AS swap_range,
    round(coalesce(t.swap_month, 0), 2) AS swap_month,
    round(coalesce(i.ib_commission_range, 0), 2) AS ib_commission_range,
    round(coalesce(i.ib_commission_month, 0), 2) AS ib_commission_month
FROM money_stats m
FULL OUTER JOIN trade_stats t ON m.group_name = t.group_name
FULL OUTER JOIN ib_commission_stats i ON coalesce(m.group_name, t.group_name) = i.group_name
ORDER BY deposit_range DESC`

// IBReportQuery selects the report range, both dates inclusive, and the
// groups to report on. No groups means all groups.
type IBReportQuery struct {
	Start  time.Time
	End    time.Time
	Groups []string
}

// IBReportRow holds one group's values over the report range and over the
// month of the range end.
type IBReportRow struct {
	Group string `json:"group"`

	DepositRange      float64 `json:"deposit_range"`
	DepositMonth      float64 `json:"deposit_month"`
	WithdrawalRange   float64 `json:"withdrawal_range"`
	WithdrawalMonth   float64 `json:"withdrawal_month"`
	IBWithdrawalRange float64 `json:"ib_withdrawal_range"`
	IBWithdrawalMonth float64 `json:"ib_withdrawal_month"`
	NetDepositRange   float64 `json:"net_deposit_range"`
	NetDepositMonth   float64 `json:"net_deposit_month"`
	VolumeRange       float64 `json:"volume_range"`
	VolumeMonth       float64 `json:"volume_month"`
	ProfitRange       float64 `json:"profit_range"`
	ProfitMonth       float64 `json:"profit_month"`
	CommissionRange   float64 `json:"commission_range"`
	CommissionMonth   float64 `json:"commission_month"`
	SwapRange         float64 `json:"swap_range"`
	SwapMonth         float64 `json:"swap_month"`
	IBCommissionRange float64 `json:"ib_commission_range"`
	IBCommissionMonth float64 `json:"ib_commission_month"`
}

// IBReportResult is one IB report response.
type IBReportResult struct {
	Rows       []IBReportRow `json:"rows"`
	Statistics Statistics    `json:"statistics"`
}

// ibReportWindow is the resolved range and month bounds of a report. The
// end bounds are exclusive.
type ibReportWindow struct {
	rangeStart, rangeEnd time.Time
	monthStart, monthEnd time.Time
	groups               []string
}

func resolveIBReport(q IBReportQuery) (ibReportWindow, error) {
	if q.Start.IsZero() || q.End.IsZero() {
		return ibReportWindow{}, fmt.Errorf("%w: start_date and end_date are required", ErrInvalidInput)
	}
	if q.End.Before(dayStart(q.Start)) {
		return ibReportWindow{}, fmt.Errorf("%w: end_date must not be before start_date", ErrInvalidInput)
	}

	groups := make([]string, 0, len(q.Groups))
	for _, g := range q.Groups {
		if g = strings.TrimSpace(g); g != "" {
			groups = append(groups, g)
		}
	}
	sort.Strings(groups)

	return ibReportWindow{
		rangeStart: dayStart(q.Start),
		rangeEnd:   nextDayStart(q.End),
		monthStart: monthStart(q.End),
		monthEnd:   nextDayStart(q.End),
		groups:     groups,
	}, nil
}

func (w ibReportWindow) params() map[string]interface{} {
	return map[string]interface{}{
		"r_start":       w.rangeStart.Format(updateTimeLayout),
		"r_end":         w.rangeEnd.Format(updateTimeLayout),
		"m_start":       w.monthStart.Format(updateTimeLayout),
		"m_end":         w.monthEnd.Format(updateTimeLayout),
		"target_groups": w.groups,
	}
}

func (w ibReportWindow) cacheKey() string {
	return cache.Key("app:ib_report:cache",
		"ib_report_v1",
		w.rangeStart.Format(updateTimeLayout),
		w.rangeEnd.Format(updateTimeLayout),
		w.monthStart.Format(updateTimeLayout),
		w.monthEnd.Format(updateTimeLayout),
		strings.Join(w.groups, ","),
	)
}

// IBReport runs the per group IB report.
func (s *Service) IBReport(ctx context.Context, q IBReportQuery) (IBReportResult, error) {
	w, err := resolveIBReport(q)
	if err != nil {
		return IBReportResult{}, err
	}

	key := w.cacheKey()
	var cached IBReportResult
	if s.cacheGet(ctx, "ib_report", key, &cached) {
		cached.Statistics.FromCache = true
		return cached, nil
	}

	v, err := s.coalesce(ctx, &s.reportFlight, "ib_report", key, func(ctx context.Context) (interface{}, error) {
		return s.runIBReport(ctx, w, key)
	})
	if err != nil {
		return IBReportResult{}, err
	}
	return v.(IBReportResult), nil
}

func (s *Service) runIBReport(ctx context.Context, w ibReportWindow, key string) (IBReportResult, error) {
	s.log.Infof("ib report: range=%s~%s month=%s~%s groups=%d",
		w.rangeStart.Format(updateTimeLayout), w.rangeEnd.Format(updateTimeLayout),
		w.monthStart.Format(updateTimeLayout), w.monthEnd.Format(updateTimeLayout), len(w.groups))

	res, err := s.prod.Query(ctx, ibReportSQL, w.params())
	if err != nil {
		return IBReportResult{}, fmt.Errorf("ib report query: %w", err)
	}

	rows := make([]IBReportRow, 0, len(res.Data))
	for _, r := range res.Data {
		rows = append(rows, ibReportRowOf(r))
	}
	result := IBReportResult{Rows: rows, Statistics: statisticsOf(res.Statistics)}
	if len(rows) > 0 {
		s.cacheSet(ctx, "ib_report", key, result, ibReportCacheTTL)
	}
	return result, nil
}

func ibReportRowOf(r map[string]interface{}) IBReportRow {
	return IBReportRow{
		Group:             asString(r["group"]),
		DepositRange:      asFloat(r["deposit_range"]),
		DepositMonth:      asFloat(r["deposit_month"]),
		WithdrawalRange:   asFloat(r["withdrawal_range"]),
		WithdrawalMonth:   asFloat(r["withdrawal_month"]),
		IBWithdrawalRange: asFloat(r["ib_withdrawal_range"]),
		IBWithdrawalMonth: asFloat(r["ib_withdrawal_month"]),
		NetDepositRange:   asFloat(r["net_deposit_range"]),
		NetDepositMonth:   asFloat(r["net_deposit_month"]),
		VolumeRange:       asFloat(r["volume_range"]),
		VolumeMonth:       asFloat(r["volume_month"]),
		ProfitRange:       asFloat(r["profit_range"]),
		ProfitMonth:       asFloat(r["profit_month"]),
		CommissionRange:   asFloat(r["commission_range"]),
		CommissionMonth:   asFloat(r["commission_month"]),
		SwapRange:         asFloat(r["swap_range"]),
		SwapMonth:         asFloat(r["swap_month"]),
		IBCommissionRange: asFloat(r["ib_commission_range"]),
		IBCommissionMonth: asFloat(r["ib_commission_month"]),
	}
}
