package backoffice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fxdesk/dashboard-api/util/metrics"
	"github.com/fxdesk/dashboard-api/util/workpool"
)

// LastQueryFilename is the IB aggregation marker file in the data dir.
const LastQueryFilename = "ib_data_last_query.txt"

// IBMetrics are the wallet metrics of an IB downline, in USD.
type IBMetrics struct {
	DepositUSD         float64 `json:"deposit_usd"`
	TotalWithdrawalUSD float64 `json:"total_withdrawal_usd"`
	IBWithdrawalUSD    float64 `json:"ib_withdrawal_usd"`
	IBWalletBalance    float64 `json:"ib_wallet_balance"`
	NetDepositUSD      float64 `json:"net_deposit_usd"`
}

// IBMetricsRow is the metrics of one IB id.
type IBMetricsRow struct {
	IBID string `json:"ibid"`
	IBMetrics
}

// IBAggregation is the result of AggregateIB.
type IBAggregation struct {
	Rows          []IBMetricsRow `json:"rows"`
	Totals        IBMetrics      `json:"totals"`
	LastQueryTime time.Time      `json:"last_query_time"`
}

// decimalMetrics accumulates metrics without float rounding.
type decimalMetrics struct {
	deposit, totalWithdrawal, ibWithdrawal, walletBalance, netDeposit decimal.Decimal
}

func (d *decimalMetrics) add(r ibMetricsRecord) {
	d.deposit = d.deposit.Add(r.DepositUSD.Decimal)
	d.totalWithdrawal = d.totalWithdrawal.Add(r.TotalWithdrawalUSD.Decimal)
	d.ibWithdrawal = d.ibWithdrawal.Add(r.IBWithdrawalUSD.Decimal)
	d.walletBalance = d.walletBalance.Add(r.IBWalletBalance.Decimal)
	d.netDeposit = d.netDeposit.Add(r.NetDepositUSD.Decimal)
}

func (d decimalMetrics) metrics() IBMetrics {
	return IBMetrics{
		DepositUSD:         d.deposit.InexactFloat64(),
		TotalWithdrawalUSD: d.totalWithdrawal.InexactFloat64(),
		IBWithdrawalUSD:    d.ibWithdrawal.InexactFloat64(),
		IBWalletBalance:    d.walletBalance.InexactFloat64(),
		NetDepositUSD:      d.netDeposit.InexactFloat64(),
	}
}

func rowOf(id string, r ibMetricsRecord) IBMetricsRow {
	var d decimalMetrics
	d.add(r)
	if r.IBID != "" {
		id = r.IBID
	}
	return IBMetricsRow{IBID: id, IBMetrics: d.metrics()}
}

// NormalizeIBIDs trims ids and drops the blank ones.
func NormalizeIBIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// AggregateIB computes the wallet metrics of every IB id between start and
// end, inclusive, plus their totals. Aggregations run one at a time. An id
// whose query fails is reported with zero metrics.
func (s *Service) AggregateIB(ctx context.Context, ids []string, start, end time.Time) (IBAggregation, error) {
	ids = NormalizeIBIDs(ids)
	if len(ids) == 0 {
		return IBAggregation{}, fmt.Errorf("%w: ib_ids cannot be empty", ErrInvalidInput)
	}
	if end.Before(start) {
		return IBAggregation{}, fmt.Errorf("%w: end must be greater than or equal to start", ErrInvalidInput)
	}

	s.heavy.Lock()
	defer s.heavy.Unlock()

	begin := time.Now()
	s.log.Infof("ib aggregation: %d ids, %s ~ %s", len(ids), start.Format(sqlTimeLayout), end.Format(sqlTimeLayout))

	records := make([]ibMetricsRecord, len(ids))
	failed := make([]bool, len(ids))
	next := make(chan int, len(ids))
	for i := range ids {
		next <- i
	}
	close(next)

	workers := s.workers
	if workers > len(ids) {
		workers = len(ids)
	}
	pool := workpool.New(workers, func(done <-chan struct{}) bool {
		i, ok := <-next
		if !ok {
			return false
		}
		rec, err := s.store.IBMetrics(ctx, ids[i], start, end)
		if err != nil {
			s.log.WithError(err).WithField("ibid", ids[i]).Error("ib query failed")
			failed[i] = true
			return true
		}
		records[i] = rec
		return true
	})
	if err := pool.RunContext(ctx); err != nil {
		return IBAggregation{}, err
	}

	var totals decimalMetrics
	rows := make([]IBMetricsRow, len(ids))
	for i, id := range ids {
		if failed[i] {
			rows[i] = IBMetricsRow{IBID: id}
			continue
		}
		rows[i] = rowOf(id, records[i])
		totals.add(records[i])
	}

	ts := s.now().UTC()
	if err := s.writeLastRun(ts); err != nil {
		s.log.WithError(err).Warn("failed to write the ib aggregation marker")
	}
	metrics.IBAggregationTimeSeconds.Observe(time.Since(begin).Seconds())
	s.log.Infof("ib aggregation completed: %d rows", len(rows))

	return IBAggregation{Rows: rows, Totals: totals.metrics(), LastQueryTime: ts}, nil
}

func (s *Service) markerPath() string {
	return filepath.Join(s.dataDir, LastQueryFilename)
}

func (s *Service) writeLastRun(ts time.Time) error {
	if s.dataDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return err
	}
	return os.WriteFile(s.markerPath(), []byte(ts.Format(time.RFC3339Nano)), 0644)
}

// LastRun returns the completion time of the last IB aggregation, nil when
// there was none or the marker cannot be read.
func (s *Service) LastRun() *time.Time {
	if s.dataDir == "" {
		return nil
	}
	raw, err := os.ReadFile(s.markerPath())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.WithError(err).Warn("failed to read the ib aggregation marker")
		}
		return nil
	}
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(raw)))
	if err != nil {
		return nil
	}
	return &ts
}
