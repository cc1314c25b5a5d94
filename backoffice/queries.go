package backoffice

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/fxdesk/dashboard-api/filter"
)

// sqlTimeLayout formats bound DATETIME values.
const sqlTimeLayout = "2006-01-02 15:04:05"

// ibQuery aggregates deposits, withdrawals and the IB wallet balance over the
// referral tree of :target_ib. CEN amounts are in cents.
const ibQuery = `
WITH params AS (
    SELECT :target_ib AS target_ib, :start_time AS start_time, :end_time AS end_time
),
referrals AS (
    SELECT it.referralId
    FROM fxbackoffice.ib_tree_with_self it
    JOIN params p ON p.target_ib = it.ibid
),
tx_totals AS (
    SELECT
        SUM(CASE WHEN t.type = 'deposit' THEN normalized_amount ELSE 0 END) AS deposit_usd,
        SUM(CASE WHEN t.type = 'withdrawal' THEN normalized_amount ELSE 0 END) AS withdrawal_usd,
        SUM(CASE WHEN t.type = 'ib withdrawal' THEN normalized_amount ELSE 0 END) AS ib_withdrawal_usd
    FROM (
        SELECT
            t.type,
            CASE WHEN UPPER(t.processedCurrency) = 'CEN' THEN t.processedAmount / 100.0 ELSE t.processedAmount END AS normalized_amount
        FROM fxbackoffice.transactions t
        JOIN params p
        WHERE t.status = 'approved'
          AND t.type IN ('deposit', 'withdrawal', 'ib withdrawal')
          AND t.processedAt >= p.start_time
          AND t.processedAt <= p.end_time
          AND t.fromUserId IN (SELECT referralId FROM referrals)
    ) t
),
wallet_total AS (
    SELECT IFNULL(SUM(mu.balance), 0) AS ib_wallet_balance
    FROM fxbackoffice.mt4_users mu
    WHERE mu.` + "`GROUP`" + ` LIKE 'IB-WALLET%'
      AND mu.userId IN (SELECT referralId FROM referrals)
)
SELECT
    p.target_ib AS ibid,
    IFNULL(tx.deposit_usd, 0) AS deposit_usd,
    IFNULL(tx.withdrawal_usd, 0) + IFNULL(tx.ib_withdrawal_usd, 0) AS total_withdrawal_usd,
    IFNULL(tx.ib_withdrawal_usd, 0) AS ib_withdrawal_usd,
    IFNULL(wt.ib_wallet_balance, 0) AS ib_wallet_balance,
    IFNULL(tx.deposit_usd, 0)
        + (IFNULL(tx.withdrawal_usd, 0) + IFNULL(tx.ib_withdrawal_usd, 0))
        - IFNULL(wt.ib_wallet_balance, 0) AS net_deposit_usd
FROM params p
LEFT JOIN tx_totals tx ON 1=1
LEFT JOIN wallet_total wt ON 1=1`

// openPositionsQuery groups open trades (CLOSE_TIME at the epoch) by symbol,
// leaving out test accounts. schema must come from the platform allow-list.
func openPositionsQuery(schema string) string {
	return fmt.Sprintf(`
SELECT
    t.symbol AS symbol,
    SUM(CASE WHEN t.cmd = 0 THEN t.volume / POW(10, t.DIGITS) ELSE 0 END) AS volume_buy,
    SUM(CASE WHEN t.cmd = 1 THEN t.volume / POW(10, t.DIGITS) ELSE 0 END) AS volume_sell,
    SUM(CASE WHEN t.cmd = 0 THEN t.profit ELSE 0 END) AS profit_buy,
    SUM(CASE WHEN t.cmd = 1 THEN t.profit ELSE 0 END) AS profit_sell,
    SUM(t.profit) AS profit_total
FROM %[1]s.mt4_trades t
WHERE t.CLOSE_TIME = '1970-01-01 00:00:00'
  AND t.cmd IN (0, 1)
  AND t.login NOT LIKE '7%%'
  AND NOT EXISTS (
    SELECT 1
    FROM %[1]s.mt4_users u
    WHERE u.LOGIN = t.login
      AND (
        u.name LIKE :like_test
        OR ((u.`+"`GROUP`"+` LIKE :like_test OR u.name LIKE :like_test)
            AND (u.`+"`GROUP`"+` LIKE :like_kcm OR u.`+"`GROUP`"+` LIKE :like_testkcm))
      )
  )
GROUP BY t.symbol
ORDER BY t.symbol`, schema)
}

const loginsByClientIDsQuery = `SELECT login FROM mt4_live.mt4_users WHERE ID IN (?)`

const accountsQuery = "SELECT login, `group`, name, ID, REGDATE, BALANCE, equity FROM mt4_live.mt4_users WHERE login IN (?)"

const tagsByClientQuery = `SELECT ut.userid AS client_id, t.tag AS tag
FROM fxbackoffice.user_tags ut
JOIN fxbackoffice.tags t ON t.id = ut.tagid
WHERE ut.userid IN (?)`

const clientsWithAnyTagQuery = `SELECT DISTINCT ut.userid AS client_id
FROM fxbackoffice.user_tags ut
JOIN fxbackoffice.tags t ON t.id = ut.tagid
WHERE t.tag IN (?)`

const clientsWithAllTagsQuery = `SELECT ut.userid AS client_id
FROM fxbackoffice.user_tags ut
JOIN fxbackoffice.tags t ON t.id = ut.tagid
WHERE t.tag IN (?)
GROUP BY ut.userid
HAVING COUNT(DISTINCT t.tag) = ?`

func clientIDsByTagsQuery(tags []string, matchAll bool) (string, []interface{}, error) {
	if matchAll {
		return sqlx.In(clientsWithAllTagsQuery, tags, distinctCount(tags))
	}
	return sqlx.In(clientsWithAnyTagQuery, tags)
}

func distinctCount(values []string) int {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	return len(seen)
}

// tradesTable holds the platform trades read by the trading reports.
const tradesTable = "mt4_live.mt4_trades"

// closedTrade matches buys and sells that are no longer open.
const closedTrade = "t.CMD IN (0, 1) AND t.CLOSE_TIME <> '1970-01-01 00:00:00'"

const tradeColumns = `CAST(t.LOGIN AS CHAR) AS login, t.TICKET AS ticket, t.SYMBOL AS symbol,
    CASE WHEN t.CMD = 0 THEN 'buy' ELSE 'sell' END AS side,
    t.VOLUME / 100.0 AS lots,
    DATE_FORMAT(t.OPEN_TIME, '%Y-%m-%d %H:%i:%s') AS open_time,
    DATE_FORMAT(t.CLOSE_TIME, '%Y-%m-%d %H:%i:%s') AS close_time,
    t.OPEN_PRICE AS open_price, t.CLOSE_PRICE AS close_price,
    t.PROFIT AS profit, t.SWAPS AS swaps`

// tradingSummaryColumns aggregate one login. Balance operations are CMD 6.
var tradingSummaryColumns = strings.NewReplacer("{closed}", "t.CLOSE_TIME <> '1970-01-01 00:00:00'").Replace(`CAST(t.LOGIN AS CHAR) AS login,
    COALESCE(SUM(CASE WHEN t.CMD IN (0, 1) AND {closed} THEN t.PROFIT ELSE 0 END), 0) AS pnl_signed,
    ABS(COALESCE(SUM(CASE WHEN t.CMD IN (0, 1) AND {closed} THEN t.PROFIT ELSE 0 END), 0)) AS pnl_net_abs,
    COALESCE(SUM(CASE WHEN t.CMD IN (0, 1) AND {closed} THEN ABS(t.PROFIT) ELSE 0 END), 0) AS pnl_magnitude,
    COALESCE(SUM(CASE WHEN t.CMD IN (0, 1) AND {closed} THEN 1 ELSE 0 END), 0) AS total_orders,
    COALESCE(SUM(CASE WHEN t.CMD = 0 AND {closed} THEN 1 ELSE 0 END), 0) AS buy_orders,
    COALESCE(SUM(CASE WHEN t.CMD = 1 AND {closed} THEN 1 ELSE 0 END), 0) AS sell_orders,
    COALESCE(SUM(CASE WHEN t.CMD IN (0, 1) AND {closed} AND t.PROFIT > 0 THEN t.PROFIT ELSE 0 END), 0) AS win_profit_sum,
    COALESCE(SUM(CASE WHEN t.CMD IN (0, 1) AND {closed} AND t.PROFIT < 0 THEN t.PROFIT ELSE 0 END), 0) AS loss_profit_sum,
    COALESCE(SUM(CASE WHEN t.CMD IN (0, 1) AND {closed} AND t.PROFIT < 0 THEN -t.PROFIT ELSE 0 END), 0) AS loss_profit_abs_sum,
    COALESCE(SUM(CASE WHEN t.CMD IN (0, 1) AND {closed} AND t.PROFIT > 0 THEN 1 ELSE 0 END), 0) AS win_trade_count,
    COALESCE(SUM(CASE WHEN t.CMD IN (0, 1) AND {closed} AND t.PROFIT < 0 THEN 1 ELSE 0 END), 0) AS loss_trade_count,
    COALESCE(SUM(CASE WHEN t.CMD = 0 AND {closed} AND t.PROFIT > 0 THEN 1 ELSE 0 END), 0) AS win_buy_count,
    COALESCE(SUM(CASE WHEN t.CMD = 1 AND {closed} AND t.PROFIT > 0 THEN 1 ELSE 0 END), 0) AS win_sell_count,
    COALESCE(SUM(CASE WHEN t.CMD = 0 AND {closed} AND t.PROFIT < 0 THEN 1 ELSE 0 END), 0) AS loss_buy_count,
    COALESCE(SUM(CASE WHEN t.CMD = 1 AND {closed} AND t.PROFIT < 0 THEN 1 ELSE 0 END), 0) AS loss_sell_count,
    COALESCE(SUM(CASE WHEN t.CMD IN (0, 1) AND {closed} THEN t.SWAPS ELSE 0 END), 0) AS swaps_sum,
    COALESCE(SUM(CASE WHEN t.CMD = 0 AND {closed} THEN t.SWAPS ELSE 0 END), 0) AS buy_swaps_sum,
    COALESCE(SUM(CASE WHEN t.CMD = 1 AND {closed} THEN t.SWAPS ELSE 0 END), 0) AS sell_swaps_sum,
    COALESCE(SUM(CASE WHEN t.CMD = 6 AND t.PROFIT > 0 THEN 1 ELSE 0 END), 0) AS deposit_count,
    COALESCE(SUM(CASE WHEN t.CMD = 6 AND t.PROFIT > 0 THEN t.PROFIT ELSE 0 END), 0) AS deposit_amount,
    COALESCE(SUM(CASE WHEN t.CMD = 6 AND t.PROFIT < 0 THEN 1 ELSE 0 END), 0) AS withdrawal_count,
    COALESCE(SUM(CASE WHEN t.CMD = 6 AND t.PROFIT < 0 THEN -t.PROFIT ELSE 0 END), 0) AS withdrawal_amount,
    COALESCE(SUM(CASE WHEN t.CMD = 6 THEN t.PROFIT ELSE 0 END), 0) AS cash_diff`)

const cashColumns = `CAST(t.LOGIN AS CHAR) AS login, t.TICKET AS ticket,
    DATE_FORMAT(t.CLOSE_TIME, '%Y-%m-%d %H:%i:%s') AS close_time,
    t.PROFIT AS amount_signed, ABS(t.PROFIT) AS amount_abs,
    CASE WHEN t.PROFIT > 0 THEN 'deposit' ELSE 'withdrawal' END AS cash_type,
    t.COMMENT AS comment`

// bindAll binds every value and returns the comma separated placeholders.
func bindAll(w *filter.Where, values []string) string {
	marks := make([]string, len(values))
	for i, v := range values {
		marks[i] = w.Arg(v)
	}
	return strings.Join(marks, ", ")
}

// tradeWhere selects the rows of the requested logins closed inside the
// window. cond is added before the window, symbols only restrict buys and
// sells when cashKept is set so that balance operations are still counted.
func tradeWhere(f tradeFilter, cond string, cashKept bool) *filter.Where {
	w := filter.NewWhere(filter.MySQL)
	w.And("t.LOGIN IN (" + bindAll(w, f.accounts) + ")")
	if cond != "" {
		w.And(cond)
	}
	if f.start != nil {
		w.And("t.CLOSE_TIME >= " + w.Arg(f.start.Format(sqlTimeLayout)))
	}
	if f.end != nil {
		w.And("t.CLOSE_TIME < " + w.Arg(f.end.Format(sqlTimeLayout)))
	}
	if len(f.symbols) > 0 {
		in := "t.SYMBOL IN (" + bindAll(w, f.symbols) + ")"
		if cashKept {
			in = "(t.CMD = 6 OR " + in + ")"
		}
		w.And(in)
	}
	return w
}

func tradingSummaryQuery(f tradeFilter) (string, []interface{}) {
	w := tradeWhere(f, "", true)
	return "SELECT " + tradingSummaryColumns + "\nFROM " + tradesTable + " t" + w.Clause() + "\nGROUP BY t.LOGIN", w.Args()
}

func cashMovementsQuery(f tradeFilter) (string, []interface{}) {
	cash := tradeFilter{accounts: f.accounts, start: f.start, end: f.end}
	w := tradeWhere(cash, "t.CMD = 6 AND t.PROFIT <> 0", false)
	return "SELECT " + cashColumns + "\nFROM " + tradesTable + " t" + w.Clause() + "\nORDER BY t.CLOSE_TIME DESC", w.Args()
}

func closedTradesQuery(f tradeFilter, order tradeOrder, limit int) (string, []interface{}) {
	w := tradeWhere(f, closedTrade, false)
	query := "SELECT " + tradeColumns + "\nFROM " + tradesTable + " t" + w.Clause() +
		"\nORDER BY " + string(order) + "\nLIMIT " + w.Arg(limit)
	return query, w.Args()
}

// hourlyWhere selects the closed trades of one symbol opened, or closed, in
// the window, leaving out test accounts.
func hourlyWhere(q HourlyDetailsQuery) (*filter.Where, string) {
	col := "t.OPEN_TIME"
	if q.TimeType == TimeTypeClose {
		col = "t.CLOSE_TIME"
	}
	w := filter.NewWhere(filter.MySQL)
	w.And(closedTrade)
	w.And("t.SYMBOL = " + w.Arg(q.Symbol))
	w.And(col + " BETWEEN " + w.Arg(q.Start.Format(sqlTimeLayout)) + " AND " + w.Arg(q.End.Format(sqlTimeLayout)))
	w.And("t.LOGIN NOT IN (SELECT LOGIN FROM mt4_live.mt4_users WHERE " +
		"(`GROUP` LIKE " + w.Arg("%test%") + " OR name LIKE " + w.Arg("%test%") + ") AND " +
		"(`GROUP` LIKE " + w.Arg("KCM%") + " OR `GROUP` LIKE " + w.Arg("testKCM%") + "))")
	return w, col
}

func hourlyTradesQuery(q HourlyDetailsQuery) (string, []interface{}) {
	w, col := hourlyWhere(q)
	query := "SELECT " + tradeColumns + "\nFROM " + tradesTable + " t" + w.Clause() +
		"\nORDER BY " + col + " DESC\nLIMIT " + w.Arg(q.Limit)
	return query, w.Args()
}

func hourlyTotalsQuery(q HourlyDetailsQuery) (string, []interface{}) {
	w, _ := hourlyWhere(q)
	return "SELECT COUNT(*) AS total_count, COALESCE(SUM(t.PROFIT), 0) AS total_profit\nFROM " +
		tradesTable + " t" + w.Clause(), w.Args()
}
