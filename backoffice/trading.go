package backoffice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultTopLimit is the size of the winner and loser lists.
	DefaultTopLimit = 10
	// MaxTopLimit caps TradingAnalysisQuery.LimitTop.
	MaxTopLimit = 100

	// DefaultHourlySymbol is used when HourlyDetailsQuery.Symbol is blank.
	DefaultHourlySymbol = "XAUUSD"
	// DefaultHourlyLimit is used when HourlyDetailsQuery.Limit is 0.
	DefaultHourlyLimit = 100
	// MaxHourlyLimit caps HourlyDetailsQuery.Limit.
	MaxHourlyLimit = 1000

	// recentTradesLimit is the number of trades in TradingAnalysis.TradeDetails.
	recentTradesLimit = 10
)

// Hourly detail windows select trades by open or close time.
const (
	TimeTypeOpen  = "open"
	TimeTypeClose = "close"
)

// TradingSummary aggregates the closed trades and balance operations of one
// login.
type TradingSummary struct {
	PnlSigned        float64 `db:"pnl_signed" json:"pnl_signed"`
	PnlNetAbs        float64 `db:"pnl_net_abs" json:"pnl_net_abs"`
	PnlMagnitude     float64 `db:"pnl_magnitude" json:"pnl_magnitude"`
	TotalOrders      int64   `db:"total_orders" json:"total_orders"`
	BuyOrders        int64   `db:"buy_orders" json:"buy_orders"`
	SellOrders       int64   `db:"sell_orders" json:"sell_orders"`
	WinProfitSum     float64 `db:"win_profit_sum" json:"win_profit_sum"`
	LossProfitSum    float64 `db:"loss_profit_sum" json:"loss_profit_sum"`
	LossProfitAbsSum float64 `db:"loss_profit_abs_sum" json:"loss_profit_abs_sum"`
	WinTradeCount    int64   `db:"win_trade_count" json:"win_trade_count"`
	LossTradeCount   int64   `db:"loss_trade_count" json:"loss_trade_count"`
	WinBuyCount      int64   `db:"win_buy_count" json:"win_buy_count"`
	WinSellCount     int64   `db:"win_sell_count" json:"win_sell_count"`
	LossBuyCount     int64   `db:"loss_buy_count" json:"loss_buy_count"`
	LossSellCount    int64   `db:"loss_sell_count" json:"loss_sell_count"`
	SwapsSum         float64 `db:"swaps_sum" json:"swaps_sum"`
	BuySwapsSum      float64 `db:"buy_swaps_sum" json:"buy_swaps_sum"`
	SellSwapsSum     float64 `db:"sell_swaps_sum" json:"sell_swaps_sum"`
	DepositCount     int64   `db:"deposit_count" json:"deposit_count"`
	DepositAmount    float64 `db:"deposit_amount" json:"deposit_amount"`
	WithdrawalCount  int64   `db:"withdrawal_count" json:"withdrawal_count"`
	WithdrawalAmount float64 `db:"withdrawal_amount" json:"withdrawal_amount"`
	CashDiff         float64 `db:"cash_diff" json:"cash_diff"`
}

// Trade is one closed buy or sell.
type Trade struct {
	Login      string  `db:"login" json:"login"`
	Ticket     int64   `db:"ticket" json:"ticket"`
	Symbol     string  `db:"symbol" json:"symbol"`
	Side       string  `db:"side" json:"side"`
	Lots       float64 `db:"lots" json:"lots"`
	OpenTime   string  `db:"open_time" json:"open_time"`
	CloseTime  string  `db:"close_time" json:"close_time"`
	OpenPrice  float64 `db:"open_price" json:"open_price"`
	ClosePrice float64 `db:"close_price" json:"close_price"`
	Profit     float64 `db:"profit" json:"profit"`
	Swaps      float64 `db:"swaps" json:"swaps"`
}

// CashMovement is a deposit or withdrawal balance operation.
type CashMovement struct {
	Login        string  `db:"login" json:"login"`
	Ticket       int64   `db:"ticket" json:"ticket"`
	CloseTime    string  `db:"close_time" json:"close_time"`
	AmountSigned float64 `db:"amount_signed" json:"amount_signed"`
	AmountAbs    float64 `db:"amount_abs" json:"amount_abs"`
	CashType     string  `db:"cash_type" json:"cash_type"`
	Comment      *string `db:"comment" json:"comment"`
}

// TradingAnalysisQuery selects the trades of a set of logins. Start is
// inclusive, End exclusive, nil leaves that side open.
type TradingAnalysisQuery struct {
	Accounts []string
	Start    *time.Time
	End      *time.Time
	Symbols  []string
	LimitTop int
}

// TradingAnalysis is the result of Service.TradingAnalysis.
type TradingAnalysis struct {
	SummaryByAccount map[string]TradingSummary `json:"summaryByAccount"`
	CashDetails      []CashMovement            `json:"cashDetails"`
	TradeDetails     []Trade                   `json:"tradeDetails"`
	TopWinners       []Trade                   `json:"topWinners"`
	TopLosers        []Trade                   `json:"topLosers"`
}

// HourlyDetailsQuery selects the closed trades of one symbol whose open or
// close time falls in [Start, End].
type HourlyDetailsQuery struct {
	Start    time.Time
	End      time.Time
	Symbol   string
	TimeType string
	Limit    int
}

// HourlyDetails is the result of Service.HourlyDetails.
type HourlyDetails struct {
	Trades      []Trade `json:"trades"`
	TotalCount  int64   `json:"total_count"`
	TotalProfit float64 `json:"total_profit"`
	TimeRange   string  `json:"time_range"`
	Symbol      string  `json:"symbol"`
}

// tradeFilter is the normalized form of a TradingAnalysisQuery.
type tradeFilter struct {
	accounts []string
	start    *time.Time
	end      *time.Time
	symbols  []string
}

// tradeOrder is an ORDER BY clause of the closed trade queries.
type tradeOrder string

const (
	newestFirst   tradeOrder = "t.CLOSE_TIME DESC"
	biggestWins   tradeOrder = "t.PROFIT DESC"
	biggestLosses tradeOrder = "t.PROFIT ASC"
)

// normalizeSymbols drops blank entries and the "null" placeholder some
// clients send for "all symbols".
func normalizeSymbols(symbols []string) []string {
	var out []string
	for _, s := range symbols {
		s = strings.TrimSpace(s)
		if s == "" || strings.EqualFold(s, "null") {
			continue
		}
		out = append(out, s)
	}
	return out
}

func emptyTradingAnalysis() TradingAnalysis {
	return TradingAnalysis{
		SummaryByAccount: map[string]TradingSummary{},
		CashDetails:      []CashMovement{},
		TradeDetails:     []Trade{},
		TopWinners:       []Trade{},
		TopLosers:        []Trade{},
	}
}

// TradingAnalysis summarizes the trading and cash activity of the given
// logins and lists their latest, best and worst closed trades. The queries
// run concurrently and the first failure cancels the rest.
func (s *Service) TradingAnalysis(ctx context.Context, q TradingAnalysisQuery) (TradingAnalysis, error) {
	limit := q.LimitTop
	if limit == 0 {
		limit = DefaultTopLimit
	}
	if limit < 1 || limit > MaxTopLimit {
		return TradingAnalysis{}, fmt.Errorf("%w: limitTop must be between 1 and %d", ErrInvalidInput, MaxTopLimit)
	}
	if q.Start != nil && q.End != nil && q.End.Before(*q.Start) {
		return TradingAnalysis{}, fmt.Errorf("%w: endDate must not be before startDate", ErrInvalidInput)
	}

	out := emptyTradingAnalysis()
	f := tradeFilter{
		accounts: NormalizeIBIDs(q.Accounts),
		start:    q.Start,
		end:      q.End,
		symbols:  normalizeSymbols(q.Symbols),
	}
	if len(f.accounts) == 0 {
		return out, nil
	}

	var summaries []tradingSummaryRecord
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		summaries, err = s.store.TradingSummaries(gctx, f)
		return
	})
	g.Go(func() (err error) {
		out.CashDetails, err = s.store.CashMovements(gctx, f)
		return
	})
	g.Go(func() (err error) {
		out.TradeDetails, err = s.store.ClosedTrades(gctx, f, newestFirst, recentTradesLimit)
		return
	})
	g.Go(func() (err error) {
		out.TopWinners, err = s.store.ClosedTrades(gctx, f, biggestWins, limit)
		return
	})
	g.Go(func() (err error) {
		out.TopLosers, err = s.store.ClosedTrades(gctx, f, biggestLosses, limit)
		return
	})
	if err := g.Wait(); err != nil {
		return TradingAnalysis{}, fmt.Errorf("trading analysis: %w", err)
	}

	for _, r := range summaries {
		out.SummaryByAccount[r.Login] = r.TradingSummary
	}
	if out.CashDetails == nil {
		out.CashDetails = []CashMovement{}
	}
	for _, list := range []*[]Trade{&out.TradeDetails, &out.TopWinners, &out.TopLosers} {
		if *list == nil {
			*list = []Trade{}
		}
	}
	return out, nil
}

// HourlyDetails lists the closed trades of one symbol inside a time window,
// leaving out test accounts, together with the count and profit of every
// matching trade.
func (s *Service) HourlyDetails(ctx context.Context, q HourlyDetailsQuery) (HourlyDetails, error) {
	q.Symbol = strings.TrimSpace(q.Symbol)
	if q.Symbol == "" {
		q.Symbol = DefaultHourlySymbol
	}
	switch q.TimeType = strings.ToLower(strings.TrimSpace(q.TimeType)); q.TimeType {
	case "":
		q.TimeType = TimeTypeOpen
	case TimeTypeOpen, TimeTypeClose:
	default:
		return HourlyDetails{}, fmt.Errorf("%w: time_type must be %q or %q", ErrInvalidInput, TimeTypeOpen, TimeTypeClose)
	}
	if q.Limit == 0 {
		q.Limit = DefaultHourlyLimit
	}
	if q.Limit < 1 || q.Limit > MaxHourlyLimit {
		return HourlyDetails{}, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidInput, MaxHourlyLimit)
	}
	if q.Start.IsZero() || q.End.IsZero() {
		return HourlyDetails{}, fmt.Errorf("%w: start_time and end_time are required", ErrInvalidInput)
	}
	if q.End.Before(q.Start) {
		return HourlyDetails{}, fmt.Errorf("%w: end_time must not be before start_time", ErrInvalidInput)
	}

	var (
		trades []Trade
		totals hourlyTotals
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		trades, err = s.store.HourlyTrades(gctx, q)
		return
	})
	g.Go(func() (err error) {
		totals, err = s.store.HourlyTotals(gctx, q)
		return
	})
	if err := g.Wait(); err != nil {
		return HourlyDetails{}, fmt.Errorf("hourly details: %w", err)
	}
	if trades == nil {
		trades = []Trade{}
	}

	return HourlyDetails{
		Trades:      trades,
		TotalCount:  totals.Count,
		TotalProfit: totals.Profit,
		TimeRange:   q.Start.Format(sqlTimeLayout) + " - " + q.End.Format(sqlTimeLayout),
		Symbol:      q.Symbol,
	}, nil
}
