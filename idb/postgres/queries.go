package postgres

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fxdesk/dashboard-api/filter"
	"github.com/fxdesk/dashboard-api/idb"
)

const clientSummaryColumns = `client_id, client_name, primary_server, countries, currencies,
	account_count::bigint, account_list,
	COALESCE(total_balance_usd, 0)::float8, COALESCE(total_credit_usd, 0)::float8,
	COALESCE(total_floating_pnl_usd, 0)::float8, COALESCE(total_equity_usd, 0)::float8,
	COALESCE(total_closed_profit_usd, 0)::float8, COALESCE(total_commission_usd, 0)::float8,
	COALESCE(total_deposit_usd, 0)::float8, COALESCE(total_withdrawal_usd, 0)::float8,
	COALESCE(net_deposit_usd, 0)::float8,
	COALESCE(total_volume_lots, 0)::float8, COALESCE(total_overnight_volume_lots, 0)::float8,
	COALESCE(overnight_volume_ratio, 0)::float8,
	COALESCE(total_closed_count, 0)::bigint, COALESCE(total_overnight_count, 0)::bigint,
	COALESCE(closed_sell_volume_lots, 0)::float8, COALESCE(closed_sell_count, 0)::bigint,
	COALESCE(closed_sell_profit_usd, 0)::float8, COALESCE(closed_sell_swap_usd, 0)::float8,
	COALESCE(closed_buy_volume_lots, 0)::float8, COALESCE(closed_buy_count, 0)::bigint,
	COALESCE(closed_buy_profit_usd, 0)::float8, COALESCE(closed_buy_swap_usd, 0)::float8,
	last_updated`

const clientAccountColumns = `client_id, login, server, currency, user_name, user_group, country,
	COALESCE(balance_usd, 0)::float8, COALESCE(credit_usd, 0)::float8,
	COALESCE(floating_pnl_usd, 0)::float8, COALESCE(equity_usd, 0)::float8,
	COALESCE(closed_profit_usd, 0)::float8, COALESCE(commission_usd, 0)::float8,
	COALESCE(deposit_usd, 0)::float8, COALESCE(withdrawal_usd, 0)::float8,
	COALESCE(volume_lots, 0)::float8, last_updated`

const accountsByClientsQuery = `SELECT ` + clientAccountColumns + `
	FROM public.pnl_client_accounts
	WHERE client_id = ANY($1)
	ORDER BY client_id, server, login`

const clientExistsQuery = `SELECT 1 FROM public.pnl_client_summary WHERE client_id = $1`

const maxLastUpdatedQuery = `SELECT MAX(last_updated) FROM public.pnl_client_summary`

const refreshStatusQuery = `SELECT
	MAX(last_updated),
	COUNT(*),
	(SELECT COUNT(*) FROM public.pnl_client_accounts)
	FROM public.pnl_client_summary`

const pnlSummaryQuery = `SELECT login, symbol, user_group, user_name, country,
	COALESCE(balance, 0)::float8,
	COALESCE(total_closed_trades, 0)::bigint, COALESCE(buy_trades_count, 0)::bigint,
	COALESCE(sell_trades_count, 0)::bigint,
	COALESCE(total_closed_volume, 0)::float8, COALESCE(buy_closed_volume, 0)::float8,
	COALESCE(sell_closed_volume, 0)::float8,
	COALESCE(total_closed_pnl, 0)::float8, COALESCE(floating_pnl, 0)::float8,
	last_updated
	FROM pnl_summary WHERE symbol = $1
	ORDER BY login`

// clientSummaryQueries holds the SQL of one ClientSummaries call.
type clientSummaryQueries struct {
	count     string
	countArgs []interface{}
	page      string
	pageArgs  []interface{}
	dropped   int
}

// buildClientSummaryQuery builds the count and page queries. Both share the
// WHERE clause; the page query appends LIMIT and OFFSET arguments.
func buildClientSummaryQuery(q idb.ClientSummaryQuery) clientSummaryQueries {
	w := filter.NewWhere(filter.Postgres)

	if s := strings.TrimSpace(q.Search); s != "" {
		if id, err := strconv.ParseInt(s, 10, 64); err == nil {
			ph := w.Arg(id)
			w.And(fmt.Sprintf("(client_id = %s OR %s = ANY(account_list))", ph, ph))
		} else {
			w.And("client_name ILIKE " + w.Arg("%"+filter.EscapeLike(s)+"%"))
		}
	}

	pred := w.AndGroup(q.Filter, idb.ClientSummaryFields.Without(q.ExcludeFields...))
	where := w.Clause()
	args := w.Args()

	pageArgs := make([]interface{}, 0, len(args)+2)
	pageArgs = append(pageArgs, args...)
	pageArgs = append(pageArgs, q.PageSize, q.Offset())

	return clientSummaryQueries{
		count:     "SELECT COUNT(*) FROM public.pnl_client_summary" + where,
		countArgs: args,
		page: fmt.Sprintf("SELECT %s FROM public.pnl_client_summary%s%s LIMIT $%d OFFSET $%d",
			clientSummaryColumns, where, orderBy(q), len(args)+1, len(args)+2),
		pageArgs: pageArgs,
		dropped:  pred.Dropped,
	}
}

func orderBy(q idb.ClientSummaryQuery) string {
	if !idb.ClientSummarySortFields[q.SortBy] {
		return " ORDER BY client_id ASC"
	}
	direction := "ASC"
	if strings.EqualFold(strings.TrimSpace(string(q.SortOrder)), string(idb.Descending)) {
		direction = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s NULLS LAST, client_id ASC", q.SortBy, direction)
}
