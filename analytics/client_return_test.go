package analytics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxdesk/dashboard-api/warehouse"
)

func TestClientReturnQueryDefaults(t *testing.T) {
	q := ClientReturnQuery{SortBy: "DROP TABLE", Search: " 42 "}
	now := time.Date(2024, 5, 17, 13, 30, 0, 0, time.UTC)
	require.NoError(t, q.normalize(now))

	assert.Equal(t, ClientReturnQuery{
		Page:       1,
		PageSize:   DefaultReturnPageSize,
		SortBy:     "month_trade_profit",
		SortOrder:  "desc",
		Search:     "42",
		MonthStart: date("2024-05-01"),
		MonthEnd:   date("2024-05-17"),
	}, q)
}

func TestClientReturnQueryInvalid(t *testing.T) {
	now := time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC)
	for name, q := range map[string]ClientReturnQuery{
		"page":      {Page: -1},
		"page size": {PageSize: MaxReturnPageSize + 1},
		"order":     {SortOrder: "sideways"},
		"bucket":    {DepositBucket: "1-2"},
		"window":    {MonthStart: date("2024-05-10"), MonthEnd: date("2024-05-01")},
	} {
		err := q.normalize(now)
		assert.True(t, errors.Is(err, ErrInvalidInput), name)
	}
}

func TestClientReturnStatements(t *testing.T) {
	q := ClientReturnQuery{
		Page:          3,
		PageSize:      20,
		SortBy:        "equity",
		SortOrder:     "asc",
		Search:        "1001",
		DepositBucket: Bucket50000Plus,
		MonthStart:    date("2024-05-01"),
		MonthEnd:      date("2024-05-31"),
	}
	page, count, params := clientReturnStatements(q)

	assert.Contains(t, page, ") AS r WHERE client_id = {p1:Int64} AND deposit_bucket = {p2:String}\nORDER BY")
	assert.True(t, strings.HasSuffix(page, "ORDER BY equity ASC NULLS LAST, client_id\nLIMIT {limit:UInt64} OFFSET {offset:UInt64}"))
	assert.True(t, strings.HasPrefix(count, "SELECT count() AS total FROM ("))
	assert.NotContains(t, count, "ORDER BY")
	assert.Contains(t, page, "t.CLOSE_TIME < {month_end:DateTime}")

	assert.Equal(t, map[string]interface{}{
		"month_start": date("2024-05-01"),
		"month_end":   date("2024-06-01"),
		"p1":          int64(1001),
		"p2":          "50000+",
		"limit":       int64(20),
		"offset":      int64(40),
	}, params)
}

func TestClientReturnStatementsIgnoreTextSearch(t *testing.T) {
	page, _, params := clientReturnStatements(ClientReturnQuery{
		Page: 1, PageSize: 50, SortBy: "client_id", SortOrder: "desc", Search: "smith",
		MonthStart: date("2024-05-01"), MonthEnd: date("2024-05-01"),
	})
	assert.NotContains(t, page, ") AS r WHERE")
	assert.NotContains(t, params, "p1")
}

func returnWarehouse() *fakeWarehouse {
	return &fakeWarehouse{reply: func(sql string) (*warehouse.Result, error) {
		if strings.HasPrefix(sql, "SELECT count()") {
			return &warehouse.Result{
				Data:       []map[string]interface{}{{"total": "51"}},
				Statistics: warehouse.Statistics{RowsRead: 7, BytesRead: 70},
			}, nil
		}
		return &warehouse.Result{
			Data: []map[string]interface{}{{
				"client_id":           "1001",
				"net_deposit_hist":    -250.0,
				"equity":              120.5,
				"month_trade_profit":  33.25,
				"deposit_bucket":      "0-2000",
				"adj_0_2000":          6.03,
				"adj_2000_5000":       nil,
				"return_non_adjusted": nil,
			}},
			Statistics: warehouse.Statistics{RowsRead: 10, BytesRead: 100},
		}, nil
	}}
}

func TestClientReturnRate(t *testing.T) {
	wh := returnWarehouse()
	s, mc := newTestService(wh, &fakeWarehouse{})
	s.now = func() time.Time { return time.Date(2024, 5, 17, 9, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	q := ClientReturnQuery{PageSize: 10}

	res, err := s.ClientReturnRate(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 2, wh.count())

	require.Len(t, res.Data, 1)
	row := res.Data[0]
	assert.Equal(t, int64(1001), row.ClientID)
	assert.Equal(t, -250.0, row.NetDepositHist)
	require.NotNil(t, row.Adj0To2000)
	assert.Equal(t, 6.03, *row.Adj0To2000)
	assert.Nil(t, row.Adj2000To5000)
	assert.Nil(t, row.ReturnNonAdjusted)

	assert.Equal(t, int64(51), res.Total)
	assert.Equal(t, int64(6), res.TotalPages)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, "2024-05-01 ~ 2024-05-17", res.Statistics.MonthRange)
	assert.Equal(t, int64(17), res.Statistics.RowsRead)
	assert.Equal(t, int64(170), res.Statistics.BytesRead)
	assert.False(t, res.Statistics.FromCache)
	assert.Len(t, mc.m, 1)

	res, err = s.ClientReturnRate(ctx, q)
	require.NoError(t, err)
	assert.True(t, res.Statistics.FromCache)
	assert.Equal(t, 2, wh.count())
	assert.Equal(t, int64(1001), res.Data[0].ClientID)
}

func TestClientReturnRateWarehouseError(t *testing.T) {
	wh := &fakeWarehouse{reply: func(string) (*warehouse.Result, error) {
		return nil, warehouse.ErrUnavailable
	}}
	s, mc := newTestService(wh, &fakeWarehouse{})

	_, err := s.ClientReturnRate(context.Background(), ClientReturnQuery{})
	assert.True(t, errors.Is(err, warehouse.ErrUnavailable))
	assert.Empty(t, mc.m)
}

func TestClientReturnRateCoalescesConcurrentRequests(t *testing.T) {
	wh := newGatedWarehouse(returnWarehouse().reply)
	logger, _ := test.NewNullLogger()
	s := New(wh, wh, nil, Options{}, logger)
	q := ClientReturnQuery{MonthStart: date("2024-05-01"), MonthEnd: date("2024-05-31")}

	const callers = 3
	errs := make(chan error, callers)
	go func() {
		_, err := s.ClientReturnRate(context.Background(), q)
		errs <- err
	}()
	// the page and count queries of the first caller
	<-wh.started
	<-wh.started
	for i := 1; i < callers; i++ {
		go func() {
			_, err := s.ClientReturnRate(context.Background(), q)
			errs <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(wh.release)

	for i := 0; i < callers; i++ {
		require.NoError(t, <-errs)
	}
	assert.Equal(t, 2, wh.count())
}
