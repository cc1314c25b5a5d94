package idb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fxdesk/dashboard-api/filter"
)

// ErrNotFound is returned when the requested client does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidQuery is returned for a query that fails validation.
var ErrInvalidQuery = errors.New("invalid query")

// ClientSummary is one row of the per client PnL summary table.
type ClientSummary struct {
	ClientID      int64    `json:"client_id"`
	ClientName    *string  `json:"client_name"`
	PrimaryServer *string  `json:"primary_server"`
	Countries     []string `json:"countries"`
	Currencies    []string `json:"currencies"`

	AccountCount int64   `json:"account_count"`
	AccountList  []int64 `json:"account_list"`

	TotalBalanceUSD      float64 `json:"total_balance_usd"`
	TotalCreditUSD       float64 `json:"total_credit_usd"`
	TotalFloatingPnlUSD  float64 `json:"total_floating_pnl_usd"`
	TotalEquityUSD       float64 `json:"total_equity_usd"`
	TotalClosedProfitUSD float64 `json:"total_closed_profit_usd"`
	TotalCommissionUSD   float64 `json:"total_commission_usd"`

	TotalDepositUSD    float64 `json:"total_deposit_usd"`
	TotalWithdrawalUSD float64 `json:"total_withdrawal_usd"`
	NetDepositUSD      float64 `json:"net_deposit_usd"`

	TotalVolumeLots          float64 `json:"total_volume_lots"`
	TotalOvernightVolumeLots float64 `json:"total_overnight_volume_lots"`
	OvernightVolumeRatio     float64 `json:"overnight_volume_ratio"`
	TotalClosedCount         int64   `json:"total_closed_count"`
	TotalOvernightCount      int64   `json:"total_overnight_count"`

	ClosedSellVolumeLots float64 `json:"closed_sell_volume_lots"`
	ClosedSellCount      int64   `json:"closed_sell_count"`
	ClosedSellProfitUSD  float64 `json:"closed_sell_profit_usd"`
	ClosedSellSwapUSD    float64 `json:"closed_sell_swap_usd"`
	ClosedBuyVolumeLots  float64 `json:"closed_buy_volume_lots"`
	ClosedBuyCount       int64   `json:"closed_buy_count"`
	ClosedBuyProfitUSD   float64 `json:"closed_buy_profit_usd"`
	ClosedBuySwapUSD     float64 `json:"closed_buy_swap_usd"`

	LastUpdated *time.Time `json:"last_updated"`

	Accounts []ClientAccount `json:"accounts"`
}

// ClientAccount is one trading account belonging to a client.
type ClientAccount struct {
	ClientID  int64   `json:"client_id"`
	Login     int64   `json:"login"`
	Server    string  `json:"server"`
	Currency  *string `json:"currency"`
	UserName  *string `json:"user_name"`
	UserGroup *string `json:"user_group"`
	Country   *string `json:"country"`

	BalanceUSD      float64    `json:"balance_usd"`
	CreditUSD       float64    `json:"credit_usd"`
	FloatingPnlUSD  float64    `json:"floating_pnl_usd"`
	EquityUSD       float64    `json:"equity_usd"`
	ClosedProfitUSD float64    `json:"closed_profit_usd"`
	CommissionUSD   float64    `json:"commission_usd"`
	DepositUSD      float64    `json:"deposit_usd"`
	WithdrawalUSD   float64    `json:"withdrawal_usd"`
	VolumeLots      float64    `json:"volume_lots"`
	LastUpdated     *time.Time `json:"last_updated"`
}

// SortOrder is the direction of a sorted query.
type SortOrder string

const (
	// Ascending is the default.
	Ascending SortOrder = "asc"
	// Descending order.
	Descending SortOrder = "desc"
)

const (
	// DefaultPageSize is used when no page size is given.
	DefaultPageSize = 50
	// MaxPageSize is the largest accepted page size.
	MaxPageSize = 1000
)

// ClientSummaryQuery describes a page of the client summary table.
type ClientSummaryQuery struct {
	Page     int
	PageSize int

	// SortBy must be one of ClientSummarySortFields, otherwise the page is
	// sorted by client id.
	SortBy    string
	SortOrder SortOrder

	// Search is either a client id / account login or part of a client name.
	Search string

	Filter filter.Group
	// ExcludeFields are removed from the filter catalog before translation.
	ExcludeFields []string
}

// Validate checks the paging bounds.
func (q ClientSummaryQuery) Validate() error {
	if q.Page < 1 {
		return fmt.Errorf("%w: page must be at least 1", ErrInvalidQuery)
	}
	if q.PageSize < 1 || q.PageSize > MaxPageSize {
		return fmt.Errorf("%w: page_size must be between 1 and %d", ErrInvalidQuery, MaxPageSize)
	}
	return nil
}

// Offset is the number of rows skipped before the page.
func (q ClientSummaryQuery) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// ClientSummaryPage is the result of ClientSummaries.
type ClientSummaryPage struct {
	Rows        []ClientSummary
	Total       int64
	TotalPages  int64
	LastUpdated *time.Time
	// DroppedRules counts filter rules that were skipped.
	DroppedRules int
}

// TotalPages is ceil(total/pageSize), zero for an empty result.
func TotalPages(total int64, pageSize int) int64 {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	size := int64(pageSize)
	return (total + size - 1) / size
}

// RefreshStatus describes the freshness of the summary tables.
type RefreshStatus struct {
	LastUpdated   *time.Time `json:"last_updated"`
	TotalClients  int64      `json:"total_clients"`
	TotalAccounts int64      `json:"total_accounts"`
}

// PnlSummaryRow is the per login, per symbol PnL of the MT5 server.
type PnlSummaryRow struct {
	Login             int64      `json:"login"`
	Symbol            string     `json:"symbol"`
	UserGroup         *string    `json:"user_group"`
	UserName          *string    `json:"user_name"`
	Country           *string    `json:"country"`
	Balance           float64    `json:"balance"`
	TotalClosedTrades int64      `json:"total_closed_trades"`
	BuyTradesCount    int64      `json:"buy_trades_count"`
	SellTradesCount   int64      `json:"sell_trades_count"`
	TotalClosedVolume float64    `json:"total_closed_volume"`
	BuyClosedVolume   float64    `json:"buy_closed_volume"`
	SellClosedVolume  float64    `json:"sell_closed_volume"`
	TotalClosedPnl    float64    `json:"total_closed_pnl"`
	FloatingPnl       float64    `json:"floating_pnl"`
	LastUpdated       *time.Time `json:"last_updated"`
}

// ReportDb is the interface to the reporting database.
type ReportDb interface {
	// Close all connections to the database. Should be called when ReportDb is
	// no longer needed.
	Close()

	ClientSummaries(ctx context.Context, q ClientSummaryQuery) (ClientSummaryPage, error)
	// ClientAccounts returns ErrNotFound when the client is unknown.
	ClientAccounts(ctx context.Context, clientID int64) ([]ClientAccount, error)
	RefreshStatus(ctx context.Context) (RefreshStatus, error)
	PnlSummary(ctx context.Context, symbol string) ([]PnlSummaryRow, error)

	ZipcodeDistribution(ctx context.Context) ([]ZipcodeBucket, error)
	ZipcodeChanges(ctx context.Context, q ZipcodeChangeQuery) (ZipcodeChangePage, error)
	// ZipcodeExclusions lists every exclusion when active is nil.
	ZipcodeExclusions(ctx context.Context, active *bool) ([]ZipcodeExclusion, error)
	ZipcodeChangeFrequency(ctx context.Context, q ChangeFrequencyQuery) (ChangeFrequencyPage, error)

	Health(ctx context.Context) (Health, error)
}

// ReportDbOptions are the options common to all backends.
type ReportDbOptions struct {
	// Maximum connection number for connection pool
	// This means the total number of active queries that can be running
	// concurrently can never be more than this
	MaxConn uint32
}

// Health is the response object that the health endpoint reports.
type Health struct {
	Data        *map[string]interface{} `json:"data,omitempty"`
	DBAvailable bool                    `json:"db-available"`
	Error       string                  `json:"error"`
}
