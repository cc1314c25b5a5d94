// You can build without postgres by `go build --tags nopostgres` but it's on by default
//go:build !nopostgres
// +build !nopostgres

package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/fxdesk/dashboard-api/idb"
	pgutil "github.com/fxdesk/dashboard-api/idb/postgres/internal/util"
)

var readonlyRepeatableRead = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

// availabilityRetry is how long to wait between connection attempts while
// the database is unreachable.
var availabilityRetry = 5 * time.Second

// OpenPostgres connects to the reporting database.
// Returns an error object and a channel that gets closed once the database
// answers a ping. The pool connects lazily so the API can start while the
// database is down.
func OpenPostgres(connection string, opts idb.ReportDbOptions, log *log.Logger) (*ReportDb, chan struct{}, error) {
	postgresConfig, err := pgxpool.ParseConfig(connection)
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't parse config: %v", err)
	}

	if opts.MaxConn != 0 {
		postgresConfig.MaxConns = int32(opts.MaxConn)
	}
	postgresConfig.LazyConnect = true

	db, err := pgxpool.ConnectConfig(context.Background(), postgresConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to postgres: %v", err)
	}

	rdb, ch := openPostgres(db, log)
	return rdb, ch, nil
}

// Allow tests to inject a DB
func openPostgres(db *pgxpool.Pool, logger *log.Logger) (*ReportDb, chan struct{}) {
	rdb := &ReportDb{
		log:  logger,
		db:   db,
		done: make(chan struct{}),
	}

	if rdb.log == nil {
		rdb.log = log.New()
		rdb.log.SetFormatter(&log.JSONFormatter{})
		rdb.log.SetOutput(os.Stdout)
		rdb.log.SetLevel(log.TraceLevel)
	}

	ch := make(chan struct{})
	go rdb.waitAvailable(ch)
	return rdb, ch
}

// ReportDb is an idb.ReportDb implementation
type ReportDb struct {
	log *log.Logger

	db        *pgxpool.Pool
	done      chan struct{}
	closeOnce sync.Once
}

// Close is part of idb.ReportDb.
func (db *ReportDb) Close() {
	db.closeOnce.Do(func() {
		close(db.done)
		db.db.Close()
	})
}

func (db *ReportDb) waitAvailable(ch chan struct{}) {
	for {
		ctx, cancel := context.WithTimeout(context.Background(), availabilityRetry)
		err := db.db.Ping(ctx)
		cancel()
		if err == nil {
			close(ch)
			return
		}
		db.log.WithError(err).Warn("reporting database unavailable, retrying")

		select {
		case <-db.done:
			return
		case <-time.After(availabilityRetry):
		}
	}
}

func (db *ReportDb) txWithRetry(ctx context.Context, opts pgx.TxOptions, f func(pgx.Tx) error) error {
	return pgutil.TxWithRetry(ctx, db.db, opts, f, db.log)
}

// ClientSummaries is part of idb.ReportDb.
func (db *ReportDb) ClientSummaries(ctx context.Context, q idb.ClientSummaryQuery) (idb.ClientSummaryPage, error) {
	if err := q.Validate(); err != nil {
		return idb.ClientSummaryPage{}, err
	}
	queries := buildClientSummaryQuery(q)
	if queries.dropped > 0 {
		db.log.Debugf("client summary: dropped %d filter rules", queries.dropped)
	}

	var page idb.ClientSummaryPage
	f := func(tx pgx.Tx) error {
		page = idb.ClientSummaryPage{DroppedRules: queries.dropped}

		err := tx.QueryRow(ctx, queries.count, queries.countArgs...).Scan(&page.Total)
		if err != nil {
			return fmt.Errorf("count query: %w", err)
		}
		page.TotalPages = idb.TotalPages(page.Total, q.PageSize)

		page.Rows, err = queryClientSummaries(ctx, tx, queries.page, queries.pageArgs)
		if err != nil {
			return err
		}

		if err = attachAccounts(ctx, tx, page.Rows); err != nil {
			return err
		}

		err = tx.QueryRow(ctx, maxLastUpdatedQuery).Scan(&page.LastUpdated)
		if err != nil {
			return fmt.Errorf("last updated query: %w", err)
		}
		return nil
	}
	if err := db.txWithRetry(ctx, readonlyRepeatableRead, f); err != nil {
		return idb.ClientSummaryPage{}, fmt.Errorf("ClientSummaries() err: %w", err)
	}
	return page, nil
}

func queryClientSummaries(ctx context.Context, tx pgx.Tx, query string, args []interface{}) ([]idb.ClientSummary, error) {
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("page query: %w", err)
	}
	defer rows.Close()

	result := make([]idb.ClientSummary, 0)
	for rows.Next() {
		var s idb.ClientSummary
		err = rows.Scan(
			&s.ClientID, &s.ClientName, &s.PrimaryServer, &s.Countries, &s.Currencies,
			&s.AccountCount, &s.AccountList,
			&s.TotalBalanceUSD, &s.TotalCreditUSD,
			&s.TotalFloatingPnlUSD, &s.TotalEquityUSD,
			&s.TotalClosedProfitUSD, &s.TotalCommissionUSD,
			&s.TotalDepositUSD, &s.TotalWithdrawalUSD,
			&s.NetDepositUSD,
			&s.TotalVolumeLots, &s.TotalOvernightVolumeLots,
			&s.OvernightVolumeRatio,
			&s.TotalClosedCount, &s.TotalOvernightCount,
			&s.ClosedSellVolumeLots, &s.ClosedSellCount,
			&s.ClosedSellProfitUSD, &s.ClosedSellSwapUSD,
			&s.ClosedBuyVolumeLots, &s.ClosedBuyCount,
			&s.ClosedBuyProfitUSD, &s.ClosedBuySwapUSD,
			&s.LastUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning client summary: %w", err)
		}
		s.Accounts = []idb.ClientAccount{}
		result = append(result, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("reading client summaries: %w", err)
	}
	return result, nil
}

// attachAccounts loads the accounts of every summary row with one query.
func attachAccounts(ctx context.Context, tx pgx.Tx, summaries []idb.ClientSummary) error {
	if len(summaries) == 0 {
		return nil
	}
	ids := make([]int64, len(summaries))
	index := make(map[int64]int, len(summaries))
	for i, s := range summaries {
		ids[i] = s.ClientID
		index[s.ClientID] = i
	}

	accounts, err := queryAccounts(ctx, tx, ids)
	if err != nil {
		return err
	}
	for _, a := range accounts {
		if i, ok := index[a.ClientID]; ok {
			summaries[i].Accounts = append(summaries[i].Accounts, a)
		}
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

func queryAccounts(ctx context.Context, q querier, clientIDs []int64) ([]idb.ClientAccount, error) {
	rows, err := q.Query(ctx, accountsByClientsQuery, clientIDs)
	if err != nil {
		return nil, fmt.Errorf("accounts query: %w", err)
	}
	defer rows.Close()

	result := make([]idb.ClientAccount, 0)
	for rows.Next() {
		var a idb.ClientAccount
		err = rows.Scan(
			&a.ClientID, &a.Login, &a.Server, &a.Currency, &a.UserName, &a.UserGroup, &a.Country,
			&a.BalanceUSD, &a.CreditUSD,
			&a.FloatingPnlUSD, &a.EquityUSD,
			&a.ClosedProfitUSD, &a.CommissionUSD,
			&a.DepositUSD, &a.WithdrawalUSD,
			&a.VolumeLots, &a.LastUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		result = append(result, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("reading accounts: %w", err)
	}
	return result, nil
}

// ClientAccounts is part of idb.ReportDb.
func (db *ReportDb) ClientAccounts(ctx context.Context, clientID int64) ([]idb.ClientAccount, error) {
	accounts, err := queryAccounts(ctx, db.db, []int64{clientID})
	if err != nil {
		return nil, fmt.Errorf("ClientAccounts() err: %w", err)
	}
	if len(accounts) > 0 {
		return accounts, nil
	}

	var one int
	err = db.db.QueryRow(ctx, clientExistsQuery, clientID).Scan(&one)
	if err == pgx.ErrNoRows {
		return nil, idb.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ClientAccounts() err: %w", err)
	}
	return accounts, nil
}

// RefreshStatus is part of idb.ReportDb.
func (db *ReportDb) RefreshStatus(ctx context.Context) (idb.RefreshStatus, error) {
	var status idb.RefreshStatus
	err := db.db.QueryRow(ctx, refreshStatusQuery).Scan(
		&status.LastUpdated, &status.TotalClients, &status.TotalAccounts)
	if err != nil {
		return idb.RefreshStatus{}, fmt.Errorf("RefreshStatus() err: %w", err)
	}
	return status, nil
}

// PnlSummary is part of idb.ReportDb.
func (db *ReportDb) PnlSummary(ctx context.Context, symbol string) ([]idb.PnlSummaryRow, error) {
	rows, err := db.db.Query(ctx, pnlSummaryQuery, symbol)
	if err != nil {
		return nil, fmt.Errorf("PnlSummary() err: %w", err)
	}
	defer rows.Close()

	result := make([]idb.PnlSummaryRow, 0)
	for rows.Next() {
		var r idb.PnlSummaryRow
		err = rows.Scan(
			&r.Login, &r.Symbol, &r.UserGroup, &r.UserName, &r.Country,
			&r.Balance,
			&r.TotalClosedTrades, &r.BuyTradesCount, &r.SellTradesCount,
			&r.TotalClosedVolume, &r.BuyClosedVolume, &r.SellClosedVolume,
			&r.TotalClosedPnl, &r.FloatingPnl,
			&r.LastUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("PnlSummary() scan err: %w", err)
		}
		result = append(result, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("PnlSummary() err: %w", err)
	}
	return result, nil
}

// Health is part of idb.ReportDb.
func (db *ReportDb) Health(ctx context.Context) (idb.Health, error) {
	var data = make(map[string]interface{})

	status, err := db.RefreshStatus(ctx)
	if err != nil {
		return idb.Health{
			Data:        &data,
			DBAvailable: false,
			Error:       err.Error(),
		}, nil
	}

	data["last-updated"] = status.LastUpdated
	data["total-clients"] = status.TotalClients
	data["total-accounts"] = status.TotalAccounts

	return idb.Health{
		Data:        &data,
		DBAvailable: true,
	}, nil
}
