package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fxdesk/dashboard-api/analytics"
	"github.com/fxdesk/dashboard-api/backoffice"
	"github.com/fxdesk/dashboard-api/filter"
	"github.com/fxdesk/dashboard-api/idb"
	"github.com/fxdesk/dashboard-api/idb/mocks"
	"github.com/fxdesk/dashboard-api/warehouse"
)

type fakeAnalytics struct {
	mu sync.Mutex

	pnlQuery    analytics.PnlAnalysisQuery
	pnl         analytics.PnlAnalysisResult
	groups      analytics.IBGroupList
	reportQuery analytics.IBReportQuery
	report      analytics.IBReportResult
	returnQuery analytics.ClientReturnQuery
	returns     analytics.ClientReturnResult
	err         error
	pingErr     error
	// block makes every call wait for its context.
	block bool
}

func (f *fakeAnalytics) Ping(context.Context) error {
	return f.pingErr
}

func (f *fakeAnalytics) PnlAnalysis(ctx context.Context, q analytics.PnlAnalysisQuery) (analytics.PnlAnalysisResult, error) {
	if f.block {
		<-ctx.Done()
		return analytics.PnlAnalysisResult{}, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pnlQuery = q
	return f.pnl, f.err
}

func (f *fakeAnalytics) IBGroups(ctx context.Context) (analytics.IBGroupList, error) {
	return f.groups, f.err
}

func (f *fakeAnalytics) IBReport(ctx context.Context, q analytics.IBReportQuery) (analytics.IBReportResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reportQuery = q
	return f.report, f.err
}

func (f *fakeAnalytics) ClientReturnRate(ctx context.Context, q analytics.ClientReturnQuery) (analytics.ClientReturnResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.returnQuery = q
	return f.returns, f.err
}

type fakeBackoffice struct {
	ids          []string
	start, end   time.Time
	agg          backoffice.IBAggregation
	lastRun      *time.Time
	source       string
	positions    []backoffice.OpenPosition
	rules        []backoffice.AudienceRule
	preview      backoffice.AudiencePreview
	tradingQuery backoffice.TradingAnalysisQuery
	trading      backoffice.TradingAnalysis
	hourlyQuery  backoffice.HourlyDetailsQuery
	hourly       backoffice.HourlyDetails
	err          error
	pingErr      error
}

func (f *fakeBackoffice) Ping(context.Context) error {
	return f.pingErr
}

func (f *fakeBackoffice) AggregateIB(_ context.Context, ids []string, start, end time.Time) (backoffice.IBAggregation, error) {
	f.ids, f.start, f.end = ids, start, end
	return f.agg, f.err
}

func (f *fakeBackoffice) LastRun() *time.Time {
	return f.lastRun
}

func (f *fakeBackoffice) OpenPositions(_ context.Context, source string) ([]backoffice.OpenPosition, error) {
	f.source = source
	return f.positions, f.err
}

func (f *fakeBackoffice) AudiencePreview(_ context.Context, rules []backoffice.AudienceRule) (backoffice.AudiencePreview, error) {
	f.rules = rules
	if err := backoffice.ValidateAudienceRules(rules); err != nil {
		return backoffice.AudiencePreview{}, err
	}
	return f.preview, f.err
}

func (f *fakeBackoffice) TradingAnalysis(_ context.Context, q backoffice.TradingAnalysisQuery) (backoffice.TradingAnalysis, error) {
	f.tradingQuery = q
	return f.trading, f.err
}

func (f *fakeBackoffice) HourlyDetails(_ context.Context, q backoffice.HourlyDetailsQuery) (backoffice.HourlyDetails, error) {
	f.hourlyQuery = q
	return f.hourly, f.err
}

type testServer struct {
	e          *echo.Echo
	db         *mocks.ReportDb
	analytics  *fakeAnalytics
	backoffice *fakeBackoffice
}

func setupTestServer(t *testing.T, options ExtraOptions) *testServer {
	logger, _ := test.NewNullLogger()
	available := make(chan struct{})
	close(available)

	ts := &testServer{
		db:         &mocks.ReportDb{},
		analytics:  &fakeAnalytics{},
		backoffice: &fakeBackoffice{},
	}
	ts.e = NewServer(Backends{
		DB:          ts.db,
		DBAvailable: available,
		Analytics:   ts.analytics,
		Backoffice:  ts.backoffice,
	}, logger, options)
	t.Cleanup(func() { ts.db.AssertExpectations(t) })
	return ts
}

func (ts *testServer) do(method, target, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &decoded)
	return rec, decoded
}

func requireError(t *testing.T, rec *httptest.ResponseRecorder, body map[string]interface{}, code int, contains string) {
	t.Helper()
	require.Equal(t, code, rec.Code, rec.Body.String())
	assert.Equal(t, false, body["ok"])
	assert.Contains(t, body["error"], contains)
}

func TestHealthCheck(t *testing.T) {
	ts := setupTestServer(t, ExtraOptions{})
	data := map[string]interface{}{"server_version": "16.1"}
	ts.db.On("Health", mock.Anything).Return(idb.Health{Data: &data, DBAvailable: true}, nil)

	rec, body := ts.do(http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, true, body["db-available"])
	assert.NotEmpty(t, body["version"])
	assert.Regexp(t, `^req-[0-9a-f]{8}$`, rec.Header().Get("X-Trace-ID"))
}

func TestHealthCheckReportsFailedPings(t *testing.T) {
	ts := setupTestServer(t, ExtraOptions{})
	ts.db.On("Health", mock.Anything).Return(idb.Health{DBAvailable: true}, nil)
	ts.analytics.pingErr = fmt.Errorf("connection refused")
	ts.backoffice.pingErr = fmt.Errorf("too many connections")

	rec, body := ts.do(http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["db-available"])
	errs, ok := body["errors"].([]interface{})
	require.True(t, ok, "errors missing from %v", body)
	assert.ElementsMatch(t, []interface{}{
		"analytics warehouse error: connection refused",
		"back-office database error: too many connections",
	}, errs)
}

func TestClientSummaries(t *testing.T) {
	ts := setupTestServer(t, ExtraOptions{})
	lastUpdated := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	ts.db.On("ClientSummaries", mock.Anything, mock.MatchedBy(func(q idb.ClientSummaryQuery) bool {
		return q.Page == 2 &&
			q.PageSize == 10 &&
			q.SortBy == "net_deposit_usd" &&
			q.SortOrder == idb.Descending &&
			q.Search == "smith" &&
			len(q.Filter.Rules) == 1 &&
			q.Filter.Rules[0].Operator == filter.OpBetween
	})).Return(idb.ClientSummaryPage{
		Rows:        []idb.ClientSummary{{ClientID: 7}},
		Total:       11,
		TotalPages:  2,
		LastUpdated: &lastUpdated,
	}, nil)

	params := url.Values{}
	params.Set("page", "2")
	params.Set("page_size", "10")
	params.Set("sort_by", "net_deposit_usd")
	params.Set("sort_order", "DESC")
	params.Set("search", " smith ")
	params.Set("filters", `{"join":"and","rules":[{"field":"total_volume_lots","operator":"between","value":1,"value2":10}]}`)
	rec, body := ts.do(http.MethodGet, "/api/v1/client-pnl/summary/paginated?"+params.Encode(), "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, float64(11), body["total"])
	assert.Equal(t, float64(2), body["page"])
	assert.Equal(t, float64(10), body["page_size"])
	assert.Equal(t, float64(2), body["total_pages"])
	assert.Equal(t, "2024-03-01T06:00:00Z", body["last_updated"])
	require.Len(t, body["data"], 1)
}

func TestClientSummariesDefaults(t *testing.T) {
	ts := setupTestServer(t, ExtraOptions{})
	ts.db.On("ClientSummaries", mock.Anything, mock.MatchedBy(func(q idb.ClientSummaryQuery) bool {
		return q.Page == 1 && q.PageSize == idb.DefaultPageSize && q.SortOrder == idb.Ascending && q.Filter.IsEmpty()
	})).Return(idb.ClientSummaryPage{}, nil)

	rec, body := ts.do(http.MethodGet, "/api/v1/client-pnl/summary/paginated", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{}, body["data"])
	assert.Nil(t, body["last_updated"])
}

func TestClientSummariesBadRequest(t *testing.T) {
	testcases := []struct {
		name   string
		query  string
		errMsg string
	}{
		{name: "page not a number", query: "page=abc", errMsg: errUnableToParsePage},
		{name: "page zero", query: "page=0", errMsg: "page must be at least 1"},
		{name: "page size zero", query: "page_size=0", errMsg: "page_size must be between"},
		{name: "page size too large", query: "page_size=1001", errMsg: "page_size must be between"},
		{name: "malformed filters", query: "filters=" + url.QueryEscape(`{"rules":`), errMsg: errUnableToParseFilters},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			ts := setupTestServer(t, ExtraOptions{})
			rec, body := ts.do(http.MethodGet, "/api/v1/client-pnl/summary/paginated?"+tc.query, "")
			requireError(t, rec, body, http.StatusBadRequest, tc.errMsg)
			ts.db.AssertNotCalled(t, "ClientSummaries", mock.Anything, mock.Anything)
		})
	}
}

func TestClientSummariesExcludedFields(t *testing.T) {
	dm, err := ParseDisabledMap([]byte("endpoints:\n  client_pnl_summary:\n    disabled-filter-fields: [client_name]\n"))
	require.NoError(t, err)
	ts := setupTestServer(t, ExtraOptions{DisabledMapConfig: dm})
	ts.db.On("ClientSummaries", mock.Anything, mock.MatchedBy(func(q idb.ClientSummaryQuery) bool {
		return assert.ObjectsAreEqual([]string{"client_name"}, q.ExcludeFields)
	})).Return(idb.ClientSummaryPage{}, nil)

	rec, _ := ts.do(http.MethodGet, "/api/v1/client-pnl/summary/paginated", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestClientAccounts(t *testing.T) {
	ts := setupTestServer(t, ExtraOptions{})
	ts.db.On("ClientAccounts", mock.Anything, int64(42)).Return([]idb.ClientAccount{{ClientID: 42, Login: 1001, Server: "MT4"}}, nil)
	ts.db.On("ClientAccounts", mock.Anything, int64(43)).Return(nil, fmt.Errorf("lookup: %w", idb.ErrNotFound))

	rec, body := ts.do(http.MethodGet, "/api/v1/client-pnl/42/accounts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(42), body["client_id"])
	require.Len(t, body["accounts"], 1)

	rec, body = ts.do(http.MethodGet, "/api/v1/client-pnl/43/accounts", "")
	requireError(t, rec, body, http.StatusNotFound, errClientNotFound)

	rec, body = ts.do(http.MethodGet, "/api/v1/client-pnl/abc/accounts", "")
	requireError(t, rec, body, http.StatusBadRequest, errUnableToParseClientID)
}

func TestRefreshStatus(t *testing.T) {
	ts := setupTestServer(t, ExtraOptions{})
	ts.db.On("RefreshStatus", mock.Anything).Return(idb.RefreshStatus{TotalClients: 5, TotalAccounts: 9}, nil)

	rec, body := ts.do(http.MethodGet, "/api/v1/client-pnl/refresh-status", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(5), body["total_clients"])
	assert.Equal(t, float64(9), body["total_accounts"])
	assert.Equal(t, refreshDataSource, body["data_source"])
}

func TestRefreshStatusDatabaseError(t *testing.T) {
	ts := setupTestServer(t, ExtraOptions{})
	ts.db.On("RefreshStatus", mock.Anything).Return(idb.RefreshStatus{}, fmt.Errorf("connection refused"))

	rec, body := ts.do(http.MethodGet, "/api/v1/client-pnl/refresh-status", "")
	requireError(t, rec, body, http.StatusInternalServerError, errFailedLookingUpRefresh)
}

func TestPnlSummary(t *testing.T) {
	ts := setupTestServer(t, ExtraOptions{})
	ts.db.On("PnlSummary", mock.Anything, "EURUSD").Return([]idb.PnlSummaryRow{{Login: 1, Symbol: "EURUSD"}, {Login: 2, Symbol: "EURUSD"}}, nil)

	rec, body := ts.do(http.MethodGet, "/api/v1/pnl/summary?server=mt5&symbol=EURUSD", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["rows"])

	rec, body = ts.do(http.MethodGet, "/api/v1/pnl/summary?server=MT4&symbol=EURUSD", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{}, body["data"])
	assert.Equal(t, float64(0), body["rows"])

	rec, body = ts.do(http.MethodGet, "/api/v1/pnl/summary?server=MT5", "")
	requireError(t, rec, body, http.StatusBadRequest, errMissingServerOrSymbol)
}

func TestReportingDatabaseUnavailable(t *testing.T) {
	logger, _ := test.NewNullLogger()
	db := &mocks.ReportDb{}
	e := NewServer(Backends{DB: db, DBAvailable: make(chan struct{})}, logger, ExtraOptions{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/client-pnl/refresh-status", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok":false`)
	assert.Contains(t, rec.Body.String(), "reporting database is not available")
	db.AssertNotCalled(t, "RefreshStatus", mock.Anything)
}

func TestPnlAnalysisPost(t *testing.T) {
	ts := setupTestServer(t, ExtraOptions{})
	ts.analytics.pnl = analytics.PnlAnalysisResult{
		Data:         []map[string]interface{}{{"account": 1001.0}, {"account": 1002.0}},
		Statistics:   analytics.Statistics{Elapsed: 0.5, RowsRead: 100},
		DroppedRules: 1,
	}

	rec, body := ts.do(http.MethodPost, "/api/v1/client-pnl-analysis/query", `{
		"start_date": "2024-01-01",
		"end_date": "2024-01-31",
		"search": "100",
		"filters": {"join": "or", "rules": [{"field": "country", "operator": "equals", "value": "TH"}]}
	}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, 0.5, body["statistics"].(map[string]interface{})["elapsed"])
	assert.NotContains(t, body, "dropped_rules")

	q := ts.analytics.pnlQuery
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), q.Start)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), q.End)
	assert.Equal(t, "100", q.Search)
	assert.Equal(t, filter.JoinOr, q.Filter.Join)
	require.Len(t, q.Filter.Rules, 1)
}

func TestPnlAnalysisGetWithStringFilters(t *testing.T) {
	ts := setupTestServer(t, ExtraOptions{})

	params := url.Values{}
	params.Set("start_date", "2024-01-01")
	params.Set("end_date", "2024-01-02")
	params.Set("filters", `{"rules":[{"field":"country","operator":"blank"}]}`)
	rec, body := ts.do(http.MethodGet, "/api/v1/client-pnl-analysis/query?"+params.Encode(), "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []interface{}{}, body["data"])
	require.Len(t, ts.analytics.pnlQuery.Filter.Rules, 1)
	assert.Equal(t, filter.OpBlank, ts.analytics.pnlQuery.Filter.Rules[0].Operator)

	// A filter group sent as a JSON string in the body.
	rec, _ = ts.do(http.MethodPost, "/api/v1/client-pnl-analysis/query",
		`{"start_date":"2024-01-01","end_date":"2024-01-02","filters":"{\"rules\":[{\"field\":\"sid\",\"operator\":\"gt\",\"value\":3}]}"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, ts.analytics.pnlQuery.Filter.Rules, 1)
	assert.Equal(t, "sid", ts.analytics.pnlQuery.Filter.Rules[0].Field)
}

func TestPnlAnalysisErrors(t *testing.T) {
	testcases := []struct {
		name   string
		body   string
		err    error
		code   int
		errMsg string
	}{
		{
			name:   "bad date",
			body:   `{"start_date":"01/01/2024","end_date":"2024-01-31"}`,
			code:   http.StatusBadRequest,
			errMsg: errUnableToParseDate,
		},
		{
			name:   "malformed filters",
			body:   `{"start_date":"2024-01-01","end_date":"2024-01-31","filters":"{oops"}`,
			code:   http.StatusBadRequest,
			errMsg: errUnableToParseFilters,
		},
		{
			name:   "not json",
			body:   `{"start_date":`,
			code:   http.StatusBadRequest,
			errMsg: errUnableToParseBody,
		},
		{
			name:   "invalid input",
			body:   `{"start_date":"2024-01-31","end_date":"2024-01-01"}`,
			err:    fmt.Errorf("%w: end_date must not be before start_date", analytics.ErrInvalidInput),
			code:   http.StatusBadRequest,
			errMsg: "end_date must not be before start_date",
		},
		{
			name:   "warehouse paused",
			body:   `{"start_date":"2024-01-01","end_date":"2024-01-31"}`,
			err:    fmt.Errorf("pnl analysis query: %w", warehouse.ErrUnavailable),
			code:   http.StatusServiceUnavailable,
			errMsg: "might be waking up",
		},
		{
			name:   "warehouse error",
			body:   `{"start_date":"2024-01-01","end_date":"2024-01-31"}`,
			err:    fmt.Errorf("Code: 62. DB::Exception: Syntax error"),
			code:   http.StatusInternalServerError,
			errMsg: "Syntax error",
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			ts := setupTestServer(t, ExtraOptions{})
			ts.analytics.err = tc.err
			rec, body := ts.do(http.MethodPost, "/api/v1/client-pnl-analysis/query", tc.body)
			requireError(t, rec, body, tc.code, tc.errMsg)
		})
	}
}

func TestPnlAnalysisTimeout(t *testing.T) {
	ts := setupTestServer(t, ExtraOptions{Timeout: 10 * time.Millisecond})
	ts.analytics.block = true

	rec, body := ts.do(http.MethodGet, "/api/v1/client-pnl-analysis/query?start_date=2024-01-01&end_date=2024-01-02", "")
	requireError(t, rec, body, http.StatusServiceUnavailable, errTimeout.Error())
}

func TestServiceNotConfigured(t *testing.T) {
	logger, _ := test.NewNullLogger()
	e := NewServer(Backends{DB: &mocks.ReportDb{}}, logger, ExtraOptions{})

	for _, target := range []string{"/api/v1/ib-report/groups", "/api/v1/ib-data/last-run", "/api/v1/open-positions/today", "/api/v1/client-return-rate/query"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, target)
		assert.Contains(t, rec.Body.String(), errServiceNotConfigured, target)
	}
}

func TestDisabledEndpoint(t *testing.T) {
	dm, err := ParseDisabledMap([]byte("endpoints:\n  ib_groups:\n    disabled: true\n  open_positions:\n    disabled-parameters: [source]\n"))
	require.NoError(t, err)
	ts := setupTestServer(t, ExtraOptions{DisabledMapConfig: dm})

	rec, body := ts.do(http.MethodGet, "/api/v1/ib-report/groups", "")
	requireError(t, rec, body, http.StatusNotFound, errEndpointDisabled)

	rec, body = ts.do(http.MethodGet, "/api/v1/open-positions/today?source=mt4_live2", "")
	requireError(t, rec, body, http.StatusBadRequest, "provided disabled parameter: source")

	rec, _ = ts.do(http.MethodGet, "/api/v1/open-positions/today", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDisabledParameterInBody(t *testing.T) {
	dm, err := ParseDisabledMap([]byte(`
endpoints:
  pnl_analysis:
    disabled-parameters: [search]
  ib_report:
    disabled-parameters: [groups]
  ib_data_query:
    disabled-parameters: [start]
  audience_preview:
    disabled-parameters: [rules]
`))
	require.NoError(t, err)

	testcases := []struct {
		name   string
		target string
		body   string
		param  string
	}{
		{
			name:   "pnl analysis search",
			target: "/api/v1/client-pnl-analysis/query",
			body:   `{"start_date":"2024-01-01","end_date":"2024-01-31","search":"100"}`,
			param:  "search",
		},
		{
			name:   "ib report groups",
			target: "/api/v1/ib-report/query",
			body:   `{"start_date":"2024-02-01","end_date":"2024-02-15","groups":["VIP"]}`,
			param:  "groups",
		},
		{
			name:   "ib data start",
			target: "/api/v1/ib-data/query",
			body:   `{"ib_ids":[1],"start":"2024-01-01","end":"2024-01-31"}`,
			param:  "start",
		},
		{
			name:   "audience rules",
			target: "/api/v1/audience/preview",
			body:   `{"rules":[{"type":"customer_ids","ids":[1]}]}`,
			param:  "rules",
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			ts := setupTestServer(t, ExtraOptions{DisabledMapConfig: dm})
			rec, body := ts.do(http.MethodPost, tc.target, tc.body)
			requireError(t, rec, body, http.StatusBadRequest, "provided disabled parameter: "+tc.param)
		})
	}

	// the same request without the disabled field goes through
	ts := setupTestServer(t, ExtraOptions{DisabledMapConfig: dm})
	rec, _ := ts.do(http.MethodPost, "/api/v1/client-pnl-analysis/query", `{"start_date":"2024-01-01","end_date":"2024-01-31","search":" "}`)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, body := ts.do(http.MethodGet, "/api/v1/client-pnl-analysis/query?start_date=2024-01-01&end_date=2024-01-31&search=100", "")
	requireError(t, rec, body, http.StatusBadRequest, "provided disabled parameter: search")
}

func TestIBGroups(t *testing.T) {
	ts := setupTestServer(t, ExtraOptions{})
	ts.analytics.groups = analytics.IBGroupList{
		GroupList:          []analytics.IBGroup{{TagID: "1", TagName: "VIP", UserCount: 3}},
		LastUpdateTime:     "2024-01-01 00:00:00",
		PreviousUpdateTime: "N/A",
		TotalGroups:        1,
	}

	rec, body := ts.do(http.MethodGet, "/api/v1/ib-report/groups", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, float64(1), body["total_groups"])
	assert.Equal(t, "N/A", body["previous_update_time"])
	require.Len(t, body["group_list"], 1)
}

func TestIBReport(t *testing.T) {
	ts := setupTestServer(t, ExtraOptions{})
	ts.analytics.report = analytics.IBReportResult{Rows: []analytics.IBReportRow{{Group: "VIP", DepositRange: 10}}}

	rec, body := ts.do(http.MethodPost, "/api/v1/ib-report/query", `{"start_date":"2024-02-01","end_date":"2024-02-15","groups":["VIP"]}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, []string{"VIP"}, ts.analytics.reportQuery.Groups)
	assert.Equal(t, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), ts.analytics.reportQuery.End)
}

func TestIBData(t *testing.T) {
	ts := setupTestServer(t, ExtraOptions{})
	finished := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	ts.backoffice.agg = backoffice.IBAggregation{
		Rows:          []backoffice.IBMetricsRow{{IBID: "1"}, {IBID: "2"}},
		LastQueryTime: finished,
	}

	rec, body := ts.do(http.MethodPost, "/api/v1/ib-data/query", `{"ib_ids":[1," 2 "],"start":"2024-01-01 00:00:00","end":"2024-01-31T23:59:59Z"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"1", " 2 "}, ts.backoffice.ids)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), ts.backoffice.start)
	assert.Equal(t, time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC), ts.backoffice.end)
	assert.Len(t, body["rows"], 2)
	assert.Equal(t, "2024-02-01T12:00:00Z", body["last_query_time"])

	rec, body = ts.do(http.MethodPost, "/api/v1/ib-data/query", `{"ib_ids":["1"],"start":"yesterday","end":"2024-01-31"}`)
	requireError(t, rec, body, http.StatusBadRequest, errUnableToParseDateTime)

	ts.backoffice.err = fmt.Errorf("%w: ib_ids cannot be empty", backoffice.ErrInvalidInput)
	rec, body = ts.do(http.MethodPost, "/api/v1/ib-data/query", `{"ib_ids":[],"start":"2024-01-01","end":"2024-01-31"}`)
	requireError(t, rec, body, http.StatusBadRequest, "ib_ids cannot be empty")
}

func TestIBDataLastRun(t *testing.T) {
	ts := setupTestServer(t, ExtraOptions{})

	rec, body := ts.do(http.MethodGet, "/api/v1/ib-data/last-run", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, "last_query_time")
	assert.Nil(t, body["last_query_time"])

	last := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	ts.backoffice.lastRun = &last
	_, body = ts.do(http.MethodGet, "/api/v1/ib-data/last-run", "")
	assert.Equal(t, "2024-02-01T12:00:00Z", body["last_query_time"])
}

func TestOpenPositions(t *testing.T) {
	ts := setupTestServer(t, ExtraOptions{})
	ts.backoffice.positions = []backoffice.OpenPosition{{Symbol: "XAUUSD", VolumeBuy: 2, ProfitTotal: -10}}

	rec, body := ts.do(http.MethodGet, "/api/v1/open-positions/today?source=mt4_live2", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, backoffice.SourceLive2, ts.backoffice.source)
	require.Len(t, body["items"], 1)
}

func TestAudiencePreview(t *testing.T) {
	ts := setupTestServer(t, ExtraOptions{})
	ts.backoffice.preview = backoffice.AudiencePreview{Total: 0}

	rec, body := ts.do(http.MethodPost, "/api/v1/audience/preview", `{"rules":[{"type":"customer_ids","ids":[1,"2"]},{"type":"account_ids","ids":[5],"include":false}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(0), body["total"])
	assert.Equal(t, []interface{}{}, body["items"])
	require.Len(t, ts.backoffice.rules, 2)
	assert.Equal(t, []backoffice.ID{"1", "2"}, ts.backoffice.rules[0].IDs)
	require.NotNil(t, ts.backoffice.rules[1].Include)
	assert.False(t, *ts.backoffice.rules[1].Include)

	rec, body = ts.do(http.MethodPost, "/api/v1/audience/preview", `{"rules":[{"type":"phone_numbers"}]}`)
	requireError(t, rec, body, http.StatusBadRequest, "unknown type")
}

func TestClientReturnRate(t *testing.T) {
	ts := setupTestServer(t, ExtraOptions{})
	rate := 0.25
	ts.analytics.returns = analytics.ClientReturnResult{
		Data:       []analytics.ClientReturnRow{{ClientID: 7, MonthTradeProfit: 120, Adj0To2000: &rate}},
		Total:      1,
		Page:       2,
		PageSize:   20,
		TotalPages: 1,
		Statistics: analytics.ClientReturnStatistics{FromCache: true, MonthRange: "2024-03-01 ~ 2024-03-15"},
	}

	rec, body := ts.do(http.MethodGet,
		"/api/v1/client-return-rate/query?page=2&page_size=20&sort_by=equity&sort_order=asc&search=7&deposit_bucket=0-2000&month_start=2024-03-01&month_end=2024-03-15", "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, float64(1), body["total"])
	require.Len(t, body["data"], 1)
	row := body["data"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, 0.25, row["adj_0_2000"])
	assert.Nil(t, row["adj_2000_5000"])
	assert.Equal(t, true, body["statistics"].(map[string]interface{})["from_cache"])

	q := ts.analytics.returnQuery
	assert.Equal(t, 2, q.Page)
	assert.Equal(t, 20, q.PageSize)
	assert.Equal(t, "equity", q.SortBy)
	assert.Equal(t, "asc", q.SortOrder)
	assert.Equal(t, "0-2000", q.DepositBucket)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), q.MonthEnd)
}

func TestClientReturnRateErrors(t *testing.T) {
	ts := setupTestServer(t, ExtraOptions{})

	rec, body := ts.do(http.MethodGet, "/api/v1/client-return-rate/query?month_start=March", "")
	requireError(t, rec, body, http.StatusBadRequest, errUnableToParseDate)

	rec, body = ts.do(http.MethodGet, "/api/v1/client-return-rate/query?page=x", "")
	requireError(t, rec, body, http.StatusBadRequest, errUnableToParsePage)

	ts.analytics.err = fmt.Errorf("%w: deposit_bucket must be one of 0-2000", analytics.ErrInvalidInput)
	rec, body = ts.do(http.MethodGet, "/api/v1/client-return-rate/query?deposit_bucket=huge", "")
	requireError(t, rec, body, http.StatusBadRequest, "deposit_bucket")

	ts.analytics.err = warehouse.ErrUnavailable
	rec, body = ts.do(http.MethodGet, "/api/v1/client-return-rate/query", "")
	requireError(t, rec, body, http.StatusServiceUnavailable, errWarehouseUnavailable)
}

func TestTradingAnalysis(t *testing.T) {
	ts := setupTestServer(t, ExtraOptions{})
	ts.backoffice.trading = backoffice.TradingAnalysis{
		SummaryByAccount: map[string]backoffice.TradingSummary{"1001": {PnlSigned: 12.5, TotalOrders: 3}},
		CashDetails:      []backoffice.CashMovement{},
		TradeDetails:     []backoffice.Trade{{Login: "1001", Ticket: 9, Symbol: "XAUUSD", Side: "buy", Profit: 12.5}},
		TopWinners:       []backoffice.Trade{},
		TopLosers:        []backoffice.Trade{},
	}

	rec, body := ts.do(http.MethodPost, "/api/v1/trading/analysis",
		`{"accounts":[1001,"1002"],"startDate":"2025-09-01 00:00:00","symbols":["XAUUSD"],"limitTop":5}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["ok"])
	summary := body["summaryByAccount"].(map[string]interface{})["1001"].(map[string]interface{})
	assert.Equal(t, 12.5, summary["pnl_signed"])
	require.Len(t, body["tradeDetails"], 1)
	assert.Equal(t, []interface{}{}, body["topWinners"])

	q := ts.backoffice.tradingQuery
	assert.Equal(t, []string{"1001", "1002"}, q.Accounts)
	require.NotNil(t, q.Start)
	assert.Equal(t, time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC), *q.Start)
	assert.Nil(t, q.End)
	assert.Equal(t, []string{"XAUUSD"}, q.Symbols)
	assert.Equal(t, 5, q.LimitTop)
}

func TestTradingAnalysisErrors(t *testing.T) {
	ts := setupTestServer(t, ExtraOptions{})

	rec, body := ts.do(http.MethodPost, "/api/v1/trading/analysis", `{"accounts":["1"],"endDate":"soon"}`)
	requireError(t, rec, body, http.StatusBadRequest, errUnableToParseDateTime)

	rec, body = ts.do(http.MethodPost, "/api/v1/trading/analysis", `{"accounts":`)
	requireError(t, rec, body, http.StatusBadRequest, errUnableToParseBody)

	ts.backoffice.err = fmt.Errorf("%w: limitTop must be between 1 and 100", backoffice.ErrInvalidInput)
	rec, body = ts.do(http.MethodPost, "/api/v1/trading/analysis", `{"accounts":["1"],"limitTop":500}`)
	requireError(t, rec, body, http.StatusBadRequest, "limitTop")
}

func TestHourlyDetails(t *testing.T) {
	ts := setupTestServer(t, ExtraOptions{})
	ts.backoffice.hourly = backoffice.HourlyDetails{
		Trades:      []backoffice.Trade{{Login: "1001", Ticket: 1, Symbol: "XAUUSD", Profit: -3}},
		TotalCount:  4,
		TotalProfit: -8.5,
		TimeRange:   "2025-09-01 10:00:00 - 2025-09-01 10:59:59",
		Symbol:      "XAUUSD",
	}

	rec, body := ts.do(http.MethodPost, "/api/v1/trading/hourly-details",
		`{"start_time":"2025-09-01 10:00:00","end_time":"2025-09-01 10:59:59","time_type":"close","limit":50}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(4), body["total_count"])
	assert.Equal(t, -8.5, body["total_profit"])
	require.Len(t, body["trades"], 1)

	q := ts.backoffice.hourlyQuery
	assert.Equal(t, time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC), q.Start)
	assert.Equal(t, time.Date(2025, 9, 1, 10, 59, 59, 0, time.UTC), q.End)
	assert.Equal(t, "close", q.TimeType)
	assert.Equal(t, 50, q.Limit)
	assert.Empty(t, q.Symbol)

	ts.backoffice.err = fmt.Errorf("%w: start_time and end_time are required", backoffice.ErrInvalidInput)
	rec, body = ts.do(http.MethodPost, "/api/v1/trading/hourly-details", `{"symbol":"EURUSD"}`)
	requireError(t, rec, body, http.StatusBadRequest, "start_time and end_time are required")
}

func TestZipcodeDistribution(t *testing.T) {
	ts := setupTestServer(t, ExtraOptions{})
	ts.db.On("ZipcodeDistribution", mock.Anything).Return([]idb.ZipcodeBucket{
		{Zipcode: "000001", ClientCount: 12},
		{Zipcode: "UNKNOWN", ClientCount: 2, ClientIDs: []int64{3, 9}},
	}, nil)

	rec, body := ts.do(http.MethodGet, "/api/v1/zipcode/distribution", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["rows"])
	data := body["data"].([]interface{})
	assert.Nil(t, data[0].(map[string]interface{})["client_ids"])
	assert.Equal(t, []interface{}{float64(3), float64(9)}, data[1].(map[string]interface{})["client_ids"])
}

func TestZipcodeChanges(t *testing.T) {
	ts := setupTestServer(t, ExtraOptions{})
	after := "000002"
	ts.db.On("ZipcodeChanges", mock.Anything, idb.ZipcodeChangeQuery{
		Start:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Page:     2,
		PageSize: 10,
	}).Return(idb.ZipcodeChangePage{
		Rows:  []idb.ZipcodeChange{{ClientID: 1, ZipcodeAfter: &after, ChangeTime: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)}},
		Total: 11,
	}, nil)

	rec, body := ts.do(http.MethodGet, "/api/v1/zipcode/changes?start=2025-01-01%2000:00:00&page=2&page_size=10", "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(11), body["rows"])
	assert.Equal(t, float64(2), body["page"])
	require.Len(t, body["data"], 1)
	assert.Nil(t, body["data"].([]interface{})[0].(map[string]interface{})["zipcode_before"])

	rec, body = ts.do(http.MethodGet, "/api/v1/zipcode/changes?start=2025-02-01&end=2025-01-01", "")
	requireError(t, rec, body, http.StatusBadRequest, "end must not be before start")

	rec, body = ts.do(http.MethodGet, "/api/v1/zipcode/changes?page_size=5000", "")
	requireError(t, rec, body, http.StatusBadRequest, "page_size")
}

func TestZipcodeExclusions(t *testing.T) {
	ts := setupTestServer(t, ExtraOptions{})
	ts.db.On("ZipcodeExclusions", mock.Anything, (*bool)(nil)).Return([]idb.ZipcodeExclusion{{ID: 1, IsActive: true}}, nil)
	ts.db.On("ZipcodeExclusions", mock.Anything, mock.MatchedBy(func(active *bool) bool {
		return active != nil && !*active
	})).Return(nil, nil)

	rec, body := ts.do(http.MethodGet, "/api/v1/zipcode/exclusions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["rows"])

	rec, body = ts.do(http.MethodGet, "/api/v1/zipcode/exclusions?is_active=false", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{}, body["data"])

	rec, body = ts.do(http.MethodGet, "/api/v1/zipcode/exclusions?is_active=maybe", "")
	requireError(t, rec, body, http.StatusBadRequest, errUnableToParseIsActive)
}

func TestZipcodeChangeFrequency(t *testing.T) {
	ts := setupTestServer(t, ExtraOptions{})
	ts.db.On("ZipcodeChangeFrequency", mock.Anything, idb.ChangeFrequencyQuery{WindowDays: 30, Page: 1, PageSize: idb.DefaultPageSize}).
		Return(idb.ChangeFrequencyPage{Rows: []idb.ChangeFrequency{{ClientID: 4, Changes: 3}}, Total: 1}, nil)

	rec, body := ts.do(http.MethodGet, "/api/v1/zipcode/change-frequency", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(30), body["window_days"])
	assert.Equal(t, float64(1), body["rows"])

	rec, body = ts.do(http.MethodGet, "/api/v1/zipcode/change-frequency?window_days=400", "")
	requireError(t, rec, body, http.StatusBadRequest, "window_days")

	rec, body = ts.do(http.MethodGet, "/api/v1/zipcode/change-frequency?window_days=week", "")
	requireError(t, rec, body, http.StatusBadRequest, errUnableToParseWindowDays)
}

func TestUnknownRoute(t *testing.T) {
	ts := setupTestServer(t, ExtraOptions{})

	rec, body := ts.do(http.MethodGet, "/api/v1/nope", "")
	requireError(t, rec, body, http.StatusNotFound, "Not Found")
	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))
}
