package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/fxdesk/dashboard-api/analytics"
	"github.com/fxdesk/dashboard-api/backoffice"
	"github.com/fxdesk/dashboard-api/filter"
	"github.com/fxdesk/dashboard-api/idb"
	"github.com/fxdesk/dashboard-api/util/metrics"
	"github.com/fxdesk/dashboard-api/version"
	"github.com/fxdesk/dashboard-api/warehouse"
)

// AnalyticsService runs the warehouse reports.
type AnalyticsService interface {
	PnlAnalysis(ctx context.Context, q analytics.PnlAnalysisQuery) (analytics.PnlAnalysisResult, error)
	IBGroups(ctx context.Context) (analytics.IBGroupList, error)
	IBReport(ctx context.Context, q analytics.IBReportQuery) (analytics.IBReportResult, error)
	ClientReturnRate(ctx context.Context, q analytics.ClientReturnQuery) (analytics.ClientReturnResult, error)
	Ping(ctx context.Context) error
}

// BackofficeService runs the back-office reports.
type BackofficeService interface {
	AggregateIB(ctx context.Context, ids []string, start, end time.Time) (backoffice.IBAggregation, error)
	LastRun() *time.Time
	OpenPositions(ctx context.Context, source string) ([]backoffice.OpenPosition, error)
	AudiencePreview(ctx context.Context, rules []backoffice.AudienceRule) (backoffice.AudiencePreview, error)
	TradingAnalysis(ctx context.Context, q backoffice.TradingAnalysisQuery) (backoffice.TradingAnalysis, error)
	HourlyDetails(ctx context.Context, q backoffice.HourlyDetailsQuery) (backoffice.HourlyDetails, error)
	Ping(ctx context.Context) error
}

// ServerImplementation implements the dashboard handlers.
type ServerImplementation struct {
	db idb.ReportDb

	// analytics and backoffice are optional, their endpoints answer 503
	// when they are not configured.
	analytics  AnalyticsService
	backoffice BackofficeService

	timeout time.Duration

	log *log.Logger

	disabledParams *DisabledMap
}

// refreshDataSource is the table reported by the refresh status endpoint.
const refreshDataSource = "pnl_client_summary"

// mt5Server is the only server with a PnL summary table.
const mt5Server = "MT5"

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
)

//////////////////////
// Helper functions //
//////////////////////

func (si *ServerImplementation) verifyHandler(operationID string, ctx echo.Context) error {
	return Verify(si.disabledParams, operationID, ctx, si.log)
}

// verifyBody checks the decoded body of a POST handler.
func (si *ServerImplementation) verifyBody(operationID string, supplied map[string]bool) error {
	return VerifyFields(si.disabledParams, operationID, supplied)
}

// verifyError converts a Verify failure to a response.
func verifyError(ctx echo.Context, err error) error {
	if errors.Is(err, ErrVerifyFailedEndpoint) {
		return notFound(ctx, errEndpointDisabled)
	}
	return badRequest(ctx, err.Error())
}

// parseFilters decodes the filters parameter. Both a group object and a
// JSON string holding one are accepted.
func parseFilters(raw []byte) (filter.Group, error) {
	raw = []byte(strings.TrimSpace(string(raw)))
	if len(raw) == 0 || string(raw) == "null" {
		return filter.Group{}, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return filter.Group{}, fmt.Errorf("%w: %v", filter.ErrMalformed, err)
		}
		return filter.Parse(s)
	}
	return filter.Parse(string(raw))
}

// parseDate parses a YYYY-MM-DD date, the empty string is the zero time.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, errors.New(errUnableToParseDate)
	}
	return t, nil
}

// parseDateTime accepts "YYYY-MM-DD HH:MM:SS", RFC 3339 and plain dates.
func parseDateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{dateTimeLayout, "2006-01-02T15:04:05", time.RFC3339Nano, dateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New(errUnableToParseDateTime)
}

// parseOptionalDateTime is parseDateTime with the empty string as the zero
// time.
func parseOptionalDateTime(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	return parseDateTime(s)
}

// parseIntParam parses an optional integer query parameter.
func parseIntParam(ctx echo.Context, name string, def int, errMsg string) (int, error) {
	raw := strings.TrimSpace(ctx.QueryParam(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(errMsg)
	}
	return v, nil
}

func recordDroppedRules(endpoint string, dropped int) {
	if dropped > 0 {
		metrics.DroppedFilterRules.WithLabelValues(endpoint).Add(float64(dropped))
	}
}

// ping runs a data source ping under the handler timeout.
func (si *ServerImplementation) ping(ctx echo.Context, ping func(context.Context) error) error {
	return callWithTimeout(ctx.Request().Context(), si.log, si.timeout, ping)
}

////////////////////////////
// Handler implementation //
////////////////////////////

// MakeHealthCheck returns health check information about the service and
// the reporting database. Returns 200 if healthy.
// (GET /health)
func (si *ServerImplementation) MakeHealthCheck(ctx echo.Context) error {
	var err error
	var errors []string
	var health idb.Health

	err = callWithTimeout(
		ctx.Request().Context(), si.log, si.timeout, func(ctx context.Context) error {
			var err error
			health, err = si.db.Health(ctx)
			return err
		})
	if err != nil {
		return backendError(ctx, fmt.Errorf("%s: %w", errFailedLookingUpHealth, err))
	}

	if health.Error != "" {
		errors = append(errors, fmt.Sprintf("database error: %s", health.Error))
	}
	if si.analytics == nil {
		errors = append(errors, "analytics warehouse is not configured")
	} else if err := si.ping(ctx, si.analytics.Ping); err != nil {
		errors = append(errors, fmt.Sprintf("analytics warehouse error: %v", err))
	}
	if si.backoffice == nil {
		errors = append(errors, "back-office database is not configured")
	} else if err := si.ping(ctx, si.backoffice.Ping); err != nil {
		errors = append(errors, fmt.Sprintf("back-office database error: %v", err))
	}

	return ctx.JSON(http.StatusOK, HealthCheckResponse{
		OK:          health.DBAvailable,
		Version:     version.Version(),
		Data:        health.Data,
		DBAvailable: health.DBAvailable,
		Errors:      errors,
	})
}

// SearchClientSummaries returns a page of the client PnL summary.
// (GET /api/v1/client-pnl/summary/paginated)
func (si *ServerImplementation) SearchClientSummaries(ctx echo.Context) error {
	if err := si.verifyHandler(ClientSummaryEndpoint, ctx); err != nil {
		return verifyError(ctx, err)
	}

	page, err := parseIntParam(ctx, "page", 1, errUnableToParsePage)
	if err != nil {
		return badRequest(ctx, err.Error())
	}
	pageSize, err := parseIntParam(ctx, "page_size", idb.DefaultPageSize, errUnableToParsePageSize)
	if err != nil {
		return badRequest(ctx, err.Error())
	}
	group, err := parseFilters([]byte(ctx.QueryParam("filters")))
	if err != nil {
		return badRequest(ctx, fmt.Sprintf("%s: %v", errUnableToParseFilters, err))
	}

	order := idb.Ascending
	if strings.EqualFold(strings.TrimSpace(ctx.QueryParam("sort_order")), string(idb.Descending)) {
		order = idb.Descending
	}

	q := idb.ClientSummaryQuery{
		Page:          page,
		PageSize:      pageSize,
		SortBy:        strings.TrimSpace(ctx.QueryParam("sort_by")),
		SortOrder:     order,
		Search:        strings.TrimSpace(ctx.QueryParam("search")),
		Filter:        group,
		ExcludeFields: si.disabledParams.ExcludedFields(ClientSummaryEndpoint),
	}
	if err := q.Validate(); err != nil {
		return badRequest(ctx, err.Error())
	}

	var result idb.ClientSummaryPage
	err = callWithTimeout(ctx.Request().Context(), si.log, si.timeout, func(ctx context.Context) error {
		var err error
		result, err = si.db.ClientSummaries(ctx, q)
		return err
	})
	if err != nil {
		return backendError(ctx, fmt.Errorf("%s: %w", errFailedSearchingSummaries, err))
	}
	recordDroppedRules(ClientSummaryEndpoint, result.DroppedRules)

	rows := result.Rows
	if rows == nil {
		rows = []idb.ClientSummary{}
	}
	return ctx.JSON(http.StatusOK, ClientSummaryResponse{
		OK:          true,
		Data:        rows,
		Total:       result.Total,
		Page:        q.Page,
		PageSize:    q.PageSize,
		TotalPages:  result.TotalPages,
		LastUpdated: result.LastUpdated,
	})
}

// LookupClientAccounts lists the accounts of one client.
// (GET /api/v1/client-pnl/:client_id/accounts)
func (si *ServerImplementation) LookupClientAccounts(ctx echo.Context) error {
	if err := si.verifyHandler(ClientAccountsEndpoint, ctx); err != nil {
		return verifyError(ctx, err)
	}

	clientID, err := strconv.ParseInt(ctx.Param("client_id"), 10, 64)
	if err != nil {
		return badRequest(ctx, errUnableToParseClientID)
	}

	var accounts []idb.ClientAccount
	err = callWithTimeout(ctx.Request().Context(), si.log, si.timeout, func(ctx context.Context) error {
		var err error
		accounts, err = si.db.ClientAccounts(ctx, clientID)
		return err
	})
	if errors.Is(err, idb.ErrNotFound) {
		return notFound(ctx, fmt.Sprintf("%s: %d", errClientNotFound, clientID))
	}
	if err != nil {
		return backendError(ctx, fmt.Errorf("%s: %w", errFailedLookingUpAccounts, err))
	}

	return ctx.JSON(http.StatusOK, ClientAccountsResponse{
		OK:       true,
		ClientID: clientID,
		Accounts: accounts,
	})
}

// LookupRefreshStatus reports when the summary tables were last refreshed.
// (GET /api/v1/client-pnl/refresh-status)
func (si *ServerImplementation) LookupRefreshStatus(ctx echo.Context) error {
	if err := si.verifyHandler(RefreshStatusEndpoint, ctx); err != nil {
		return verifyError(ctx, err)
	}

	var status idb.RefreshStatus
	err := callWithTimeout(ctx.Request().Context(), si.log, si.timeout, func(ctx context.Context) error {
		var err error
		status, err = si.db.RefreshStatus(ctx)
		return err
	})
	if err != nil {
		return backendError(ctx, fmt.Errorf("%s: %w", errFailedLookingUpRefresh, err))
	}

	return ctx.JSON(http.StatusOK, RefreshStatusResponse{
		OK:            true,
		RefreshStatus: status,
		DataSource:    refreshDataSource,
	})
}

// SearchPnlSummary returns the per login PnL of one symbol. Only the MT5
// server has summary data, other servers get an empty result.
// (GET /api/v1/pnl/summary)
func (si *ServerImplementation) SearchPnlSummary(ctx echo.Context) error {
	if err := si.verifyHandler(PnlSummaryEndpoint, ctx); err != nil {
		return verifyError(ctx, err)
	}

	server := strings.TrimSpace(ctx.QueryParam("server"))
	symbol := strings.TrimSpace(ctx.QueryParam("symbol"))
	if server == "" || symbol == "" {
		return badRequest(ctx, errMissingServerOrSymbol)
	}
	if !strings.EqualFold(server, mt5Server) {
		return ctx.JSON(http.StatusOK, PnlSummaryResponse{OK: true, Data: []idb.PnlSummaryRow{}})
	}

	var rows []idb.PnlSummaryRow
	err := callWithTimeout(ctx.Request().Context(), si.log, si.timeout, func(ctx context.Context) error {
		var err error
		rows, err = si.db.PnlSummary(ctx, symbol)
		return err
	})
	if err != nil {
		return backendError(ctx, fmt.Errorf("%s: %w", errFailedSearchingPnlSummary, err))
	}
	if rows == nil {
		rows = []idb.PnlSummaryRow{}
	}

	return ctx.JSON(http.StatusOK, PnlSummaryResponse{OK: true, Data: rows, Rows: len(rows)})
}

// SearchPnlAnalysis runs the per account PnL analysis with query parameters.
// (GET /api/v1/client-pnl-analysis/query)
func (si *ServerImplementation) SearchPnlAnalysis(ctx echo.Context) error {
	req := PnlAnalysisRequest{
		StartDate: ctx.QueryParam("start_date"),
		EndDate:   ctx.QueryParam("end_date"),
		Search:    ctx.QueryParam("search"),
		Filters:   []byte(ctx.QueryParam("filters")),
	}
	return si.pnlAnalysis(ctx, req)
}

// QueryPnlAnalysis runs the per account PnL analysis with a JSON body.
// (POST /api/v1/client-pnl-analysis/query)
func (si *ServerImplementation) QueryPnlAnalysis(ctx echo.Context) error {
	var req PnlAnalysisRequest
	if err := ctx.Bind(&req); err != nil {
		return badRequest(ctx, errUnableToParseBody)
	}
	return si.pnlAnalysis(ctx, req)
}

func (si *ServerImplementation) pnlAnalysis(ctx echo.Context, req PnlAnalysisRequest) error {
	if err := si.verifyHandler(PnlAnalysisEndpoint, ctx); err != nil {
		return verifyError(ctx, err)
	}
	if err := si.verifyBody(PnlAnalysisEndpoint, req.suppliedFields()); err != nil {
		return verifyError(ctx, err)
	}
	if si.analytics == nil {
		return timeoutError(ctx, errServiceNotConfigured)
	}

	start, err := parseDate(req.StartDate)
	if err != nil {
		return badRequest(ctx, err.Error())
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		return badRequest(ctx, err.Error())
	}
	group, err := parseFilters(req.Filters)
	if err != nil {
		return badRequest(ctx, fmt.Sprintf("%s: %v", errUnableToParseFilters, err))
	}

	q := analytics.PnlAnalysisQuery{
		Start:         start,
		End:           end,
		Search:        req.Search,
		Filter:        group,
		ExcludeFields: si.disabledParams.ExcludedFields(PnlAnalysisEndpoint),
	}

	var result analytics.PnlAnalysisResult
	err = callWithTimeout(ctx.Request().Context(), si.log, si.timeout, func(ctx context.Context) error {
		var err error
		result, err = si.analytics.PnlAnalysis(ctx, q)
		return err
	})
	if err != nil {
		return backendError(ctx, fmt.Errorf("%s: %w", errFailedPnlAnalysis, err))
	}
	recordDroppedRules(PnlAnalysisEndpoint, result.DroppedRules)

	data := result.Data
	if data == nil {
		data = []map[string]interface{}{}
	}
	return ctx.JSON(http.StatusOK, PnlAnalysisResponse{
		OK:         true,
		Data:       data,
		Statistics: result.Statistics,
		Count:      len(data),
	})
}

// LookupIBGroups lists the IB group tags.
// (GET /api/v1/ib-report/groups)
func (si *ServerImplementation) LookupIBGroups(ctx echo.Context) error {
	if err := si.verifyHandler(IBGroupsEndpoint, ctx); err != nil {
		return verifyError(ctx, err)
	}
	if si.analytics == nil {
		return timeoutError(ctx, errServiceNotConfigured)
	}

	var groups analytics.IBGroupList
	err := callWithTimeout(ctx.Request().Context(), si.log, si.timeout, func(ctx context.Context) error {
		var err error
		groups, err = si.analytics.IBGroups(ctx)
		return err
	})
	if err != nil {
		return backendError(ctx, fmt.Errorf("%s: %w", errFailedLookingUpIBGroups, err))
	}
	if groups.GroupList == nil {
		groups.GroupList = []analytics.IBGroup{}
	}

	return ctx.JSON(http.StatusOK, IBGroupsResponse{OK: true, IBGroupList: groups})
}

// QueryIBReport runs the IB group report.
// (POST /api/v1/ib-report/query)
func (si *ServerImplementation) QueryIBReport(ctx echo.Context) error {
	if err := si.verifyHandler(IBReportEndpoint, ctx); err != nil {
		return verifyError(ctx, err)
	}
	if si.analytics == nil {
		return timeoutError(ctx, errServiceNotConfigured)
	}

	var req IBReportRequest
	if err := ctx.Bind(&req); err != nil {
		return badRequest(ctx, errUnableToParseBody)
	}
	if err := si.verifyBody(IBReportEndpoint, req.suppliedFields()); err != nil {
		return verifyError(ctx, err)
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		return badRequest(ctx, err.Error())
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		return badRequest(ctx, err.Error())
	}

	var result analytics.IBReportResult
	err = callWithTimeout(ctx.Request().Context(), si.log, si.timeout, func(ctx context.Context) error {
		var err error
		result, err = si.analytics.IBReport(ctx, analytics.IBReportQuery{Start: start, End: end, Groups: req.Groups})
		return err
	})
	if err != nil {
		return backendError(ctx, fmt.Errorf("%s: %w", errFailedIBReport, err))
	}

	rows := result.Rows
	if rows == nil {
		rows = []analytics.IBReportRow{}
	}
	return ctx.JSON(http.StatusOK, IBReportResponse{
		OK:         true,
		Rows:       rows,
		Statistics: result.Statistics,
		Count:      len(rows),
	})
}

// QueryIBData aggregates the wallet metrics of a list of IBs.
// (POST /api/v1/ib-data/query)
func (si *ServerImplementation) QueryIBData(ctx echo.Context) error {
	if err := si.verifyHandler(IBDataQueryEndpoint, ctx); err != nil {
		return verifyError(ctx, err)
	}
	if si.backoffice == nil {
		return timeoutError(ctx, errServiceNotConfigured)
	}

	var req IBDataRequest
	if err := ctx.Bind(&req); err != nil {
		return badRequest(ctx, errUnableToParseBody)
	}
	if err := si.verifyBody(IBDataQueryEndpoint, req.suppliedFields()); err != nil {
		return verifyError(ctx, err)
	}
	start, err := parseDateTime(req.Start)
	if err != nil {
		return badRequest(ctx, err.Error())
	}
	end, err := parseDateTime(req.End)
	if err != nil {
		return badRequest(ctx, err.Error())
	}
	ids := make([]string, len(req.IBIDs))
	for i, id := range req.IBIDs {
		ids[i] = string(id)
	}

	var result backoffice.IBAggregation
	err = callWithTimeout(ctx.Request().Context(), si.log, si.timeout, func(ctx context.Context) error {
		var err error
		result, err = si.backoffice.AggregateIB(ctx, ids, start, end)
		return err
	})
	if err != nil {
		return backendError(ctx, fmt.Errorf("%s: %w", errFailedIBAggregation, err))
	}

	return ctx.JSON(http.StatusOK, IBDataResponse{OK: true, IBAggregation: result})
}

// LookupIBDataLastRun returns when the last IB aggregation finished.
// (GET /api/v1/ib-data/last-run)
func (si *ServerImplementation) LookupIBDataLastRun(ctx echo.Context) error {
	if err := si.verifyHandler(IBDataLastRunEndpoint, ctx); err != nil {
		return verifyError(ctx, err)
	}
	if si.backoffice == nil {
		return timeoutError(ctx, errServiceNotConfigured)
	}

	return ctx.JSON(http.StatusOK, LastRunResponse{OK: true, LastQueryTime: si.backoffice.LastRun()})
}

// LookupOpenPositions returns today's open positions per symbol.
// (GET /api/v1/open-positions/today)
func (si *ServerImplementation) LookupOpenPositions(ctx echo.Context) error {
	if err := si.verifyHandler(OpenPositionsEndpoint, ctx); err != nil {
		return verifyError(ctx, err)
	}
	if si.backoffice == nil {
		return timeoutError(ctx, errServiceNotConfigured)
	}

	source := strings.TrimSpace(ctx.QueryParam("source"))
	var items []backoffice.OpenPosition
	err := callWithTimeout(ctx.Request().Context(), si.log, si.timeout, func(ctx context.Context) error {
		var err error
		items, err = si.backoffice.OpenPositions(ctx, source)
		return err
	})
	if err != nil {
		return backendError(ctx, fmt.Errorf("%s: %w", errFailedLookingUpPositions, err))
	}
	if items == nil {
		items = []backoffice.OpenPosition{}
	}

	return ctx.JSON(http.StatusOK, OpenPositionsResponse{OK: true, Items: items})
}

// PreviewAudience resolves audience rules into accounts.
// (POST /api/v1/audience/preview)
func (si *ServerImplementation) PreviewAudience(ctx echo.Context) error {
	if err := si.verifyHandler(AudiencePreviewEndpoint, ctx); err != nil {
		return verifyError(ctx, err)
	}
	if si.backoffice == nil {
		return timeoutError(ctx, errServiceNotConfigured)
	}

	var req AudiencePreviewRequest
	if err := ctx.Bind(&req); err != nil {
		return badRequest(ctx, errUnableToParseBody)
	}
	if err := si.verifyBody(AudiencePreviewEndpoint, req.suppliedFields()); err != nil {
		return verifyError(ctx, err)
	}

	var preview backoffice.AudiencePreview
	err := callWithTimeout(ctx.Request().Context(), si.log, si.timeout, func(ctx context.Context) error {
		var err error
		preview, err = si.backoffice.AudiencePreview(ctx, req.Rules)
		return err
	})
	if err != nil {
		return backendError(ctx, fmt.Errorf("%s: %w", errFailedAudiencePreview, err))
	}
	if preview.Items == nil {
		preview.Items = []backoffice.AudienceItem{}
	}

	return ctx.JSON(http.StatusOK, AudiencePreviewResponse{OK: true, AudiencePreview: preview})
}

// SearchClientReturnRate returns a page of client return rates.
// (GET /api/v1/client-return-rate/query)
func (si *ServerImplementation) SearchClientReturnRate(ctx echo.Context) error {
	if err := si.verifyHandler(ClientReturnRateEndpoint, ctx); err != nil {
		return verifyError(ctx, err)
	}
	if si.analytics == nil {
		return timeoutError(ctx, errServiceNotConfigured)
	}

	page, err := parseIntParam(ctx, "page", 1, errUnableToParsePage)
	if err != nil {
		return badRequest(ctx, err.Error())
	}
	pageSize, err := parseIntParam(ctx, "page_size", analytics.DefaultReturnPageSize, errUnableToParsePageSize)
	if err != nil {
		return badRequest(ctx, err.Error())
	}
	monthStart, err := parseDate(ctx.QueryParam("month_start"))
	if err != nil {
		return badRequest(ctx, err.Error())
	}
	monthEnd, err := parseDate(ctx.QueryParam("month_end"))
	if err != nil {
		return badRequest(ctx, err.Error())
	}

	q := analytics.ClientReturnQuery{
		Page:          page,
		PageSize:      pageSize,
		SortBy:        ctx.QueryParam("sort_by"),
		SortOrder:     ctx.QueryParam("sort_order"),
		Search:        ctx.QueryParam("search"),
		DepositBucket: ctx.QueryParam("deposit_bucket"),
		MonthStart:    monthStart,
		MonthEnd:      monthEnd,
	}

	var result analytics.ClientReturnResult
	err = callWithTimeout(ctx.Request().Context(), si.log, si.timeout, func(ctx context.Context) error {
		var err error
		result, err = si.analytics.ClientReturnRate(ctx, q)
		return err
	})
	if err != nil {
		return backendError(ctx, fmt.Errorf("%s: %w", errFailedClientReturnRate, err))
	}
	if result.Data == nil {
		result.Data = []analytics.ClientReturnRow{}
	}

	return ctx.JSON(http.StatusOK, ClientReturnRateResponse{OK: true, ClientReturnResult: result})
}

// QueryTradingAnalysis summarizes the trades and cash movements of a list
// of logins.
// (POST /api/v1/trading/analysis)
func (si *ServerImplementation) QueryTradingAnalysis(ctx echo.Context) error {
	if err := si.verifyHandler(TradingAnalysisEndpoint, ctx); err != nil {
		return verifyError(ctx, err)
	}
	if si.backoffice == nil {
		return timeoutError(ctx, errServiceNotConfigured)
	}

	var req TradingAnalysisRequest
	if err := ctx.Bind(&req); err != nil {
		return badRequest(ctx, errUnableToParseBody)
	}
	if err := si.verifyBody(TradingAnalysisEndpoint, req.suppliedFields()); err != nil {
		return verifyError(ctx, err)
	}
	start, err := parseOptionalDateTime(req.StartDate)
	if err != nil {
		return badRequest(ctx, err.Error())
	}
	end, err := parseOptionalDateTime(req.EndDate)
	if err != nil {
		return badRequest(ctx, err.Error())
	}

	q := backoffice.TradingAnalysisQuery{
		Accounts: make([]string, len(req.Accounts)),
		Symbols:  req.Symbols,
		LimitTop: req.LimitTop,
	}
	for i, id := range req.Accounts {
		q.Accounts[i] = string(id)
	}
	if !start.IsZero() {
		q.Start = &start
	}
	if !end.IsZero() {
		q.End = &end
	}

	var result backoffice.TradingAnalysis
	err = callWithTimeout(ctx.Request().Context(), si.log, si.timeout, func(ctx context.Context) error {
		var err error
		result, err = si.backoffice.TradingAnalysis(ctx, q)
		return err
	})
	if err != nil {
		return backendError(ctx, fmt.Errorf("%s: %w", errFailedTradingAnalysis, err))
	}

	return ctx.JSON(http.StatusOK, TradingAnalysisResponse{OK: true, TradingAnalysis: result})
}

// QueryHourlyDetails lists the trades of one symbol opened or closed inside
// a time window.
// (POST /api/v1/trading/hourly-details)
func (si *ServerImplementation) QueryHourlyDetails(ctx echo.Context) error {
	if err := si.verifyHandler(HourlyDetailsEndpoint, ctx); err != nil {
		return verifyError(ctx, err)
	}
	if si.backoffice == nil {
		return timeoutError(ctx, errServiceNotConfigured)
	}

	var req HourlyDetailsRequest
	if err := ctx.Bind(&req); err != nil {
		return badRequest(ctx, errUnableToParseBody)
	}
	if err := si.verifyBody(HourlyDetailsEndpoint, req.suppliedFields()); err != nil {
		return verifyError(ctx, err)
	}
	start, err := parseOptionalDateTime(req.StartTime)
	if err != nil {
		return badRequest(ctx, err.Error())
	}
	end, err := parseOptionalDateTime(req.EndTime)
	if err != nil {
		return badRequest(ctx, err.Error())
	}

	q := backoffice.HourlyDetailsQuery{
		Start:    start,
		End:      end,
		Symbol:   req.Symbol,
		TimeType: req.TimeType,
		Limit:    req.Limit,
	}
	var result backoffice.HourlyDetails
	err = callWithTimeout(ctx.Request().Context(), si.log, si.timeout, func(ctx context.Context) error {
		var err error
		result, err = si.backoffice.HourlyDetails(ctx, q)
		return err
	})
	if err != nil {
		return backendError(ctx, fmt.Errorf("%s: %w", errFailedHourlyDetails, err))
	}

	return ctx.JSON(http.StatusOK, HourlyDetailsResponse{OK: true, HourlyDetails: result})
}

// LookupZipcodeDistribution counts the enabled clients per zipcode.
// (GET /api/v1/zipcode/distribution)
func (si *ServerImplementation) LookupZipcodeDistribution(ctx echo.Context) error {
	if err := si.verifyHandler(ZipcodeDistributionEndpoint, ctx); err != nil {
		return verifyError(ctx, err)
	}

	var buckets []idb.ZipcodeBucket
	err := callWithTimeout(ctx.Request().Context(), si.log, si.timeout, func(ctx context.Context) error {
		var err error
		buckets, err = si.db.ZipcodeDistribution(ctx)
		return err
	})
	if err != nil {
		return backendError(ctx, fmt.Errorf("%s: %w", errFailedZipcodeLookup, err))
	}
	if buckets == nil {
		buckets = []idb.ZipcodeBucket{}
	}

	return ctx.JSON(http.StatusOK, ZipcodeDistributionResponse{OK: true, Data: buckets, Rows: len(buckets)})
}

// SearchZipcodeChanges returns a page of the zipcode change log, by
// default the last 25 hours.
// (GET /api/v1/zipcode/changes)
func (si *ServerImplementation) SearchZipcodeChanges(ctx echo.Context) error {
	if err := si.verifyHandler(ZipcodeChangesEndpoint, ctx); err != nil {
		return verifyError(ctx, err)
	}

	page, err := parseIntParam(ctx, "page", 1, errUnableToParsePage)
	if err != nil {
		return badRequest(ctx, err.Error())
	}
	pageSize, err := parseIntParam(ctx, "page_size", idb.DefaultPageSize, errUnableToParsePageSize)
	if err != nil {
		return badRequest(ctx, err.Error())
	}
	start, err := parseOptionalDateTime(ctx.QueryParam("start"))
	if err != nil {
		return badRequest(ctx, err.Error())
	}
	end, err := parseOptionalDateTime(ctx.QueryParam("end"))
	if err != nil {
		return badRequest(ctx, err.Error())
	}

	q := idb.ZipcodeChangeQuery{Start: start, End: end, Page: page, PageSize: pageSize}
	if err := q.Validate(); err != nil {
		return badRequest(ctx, err.Error())
	}

	var result idb.ZipcodeChangePage
	err = callWithTimeout(ctx.Request().Context(), si.log, si.timeout, func(ctx context.Context) error {
		var err error
		result, err = si.db.ZipcodeChanges(ctx, q)
		return err
	})
	if err != nil {
		return backendError(ctx, fmt.Errorf("%s: %w", errFailedZipcodeLookup, err))
	}
	if result.Rows == nil {
		result.Rows = []idb.ZipcodeChange{}
	}

	return ctx.JSON(http.StatusOK, ZipcodeChangesResponse{
		OK:       true,
		Data:     result.Rows,
		Rows:     result.Total,
		Page:     q.Page,
		PageSize: q.PageSize,
	})
}

// LookupZipcodeExclusions lists the zipcode rule exclusions, optionally
// only the active or inactive ones.
// (GET /api/v1/zipcode/exclusions)
func (si *ServerImplementation) LookupZipcodeExclusions(ctx echo.Context) error {
	if err := si.verifyHandler(ZipcodeExclusionsEndpoint, ctx); err != nil {
		return verifyError(ctx, err)
	}

	var active *bool
	if raw := strings.TrimSpace(ctx.QueryParam("is_active")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return badRequest(ctx, errUnableToParseIsActive)
		}
		active = &v
	}

	var rows []idb.ZipcodeExclusion
	err := callWithTimeout(ctx.Request().Context(), si.log, si.timeout, func(ctx context.Context) error {
		var err error
		rows, err = si.db.ZipcodeExclusions(ctx, active)
		return err
	})
	if err != nil {
		return backendError(ctx, fmt.Errorf("%s: %w", errFailedZipcodeLookup, err))
	}
	if rows == nil {
		rows = []idb.ZipcodeExclusion{}
	}

	return ctx.JSON(http.StatusOK, ZipcodeExclusionsResponse{OK: true, Data: rows, Rows: len(rows)})
}

// SearchZipcodeChangeFrequency returns a page of the clients whose zipcode
// changed most often in the last window_days days.
// (GET /api/v1/zipcode/change-frequency)
func (si *ServerImplementation) SearchZipcodeChangeFrequency(ctx echo.Context) error {
	if err := si.verifyHandler(ZipcodeChangeFrequencyEndpoint, ctx); err != nil {
		return verifyError(ctx, err)
	}

	windowDays, err := parseIntParam(ctx, "window_days", idb.DefaultFrequencyWindowDays, errUnableToParseWindowDays)
	if err != nil {
		return badRequest(ctx, err.Error())
	}
	page, err := parseIntParam(ctx, "page", 1, errUnableToParsePage)
	if err != nil {
		return badRequest(ctx, err.Error())
	}
	pageSize, err := parseIntParam(ctx, "page_size", idb.DefaultPageSize, errUnableToParsePageSize)
	if err != nil {
		return badRequest(ctx, err.Error())
	}

	q := idb.ChangeFrequencyQuery{WindowDays: windowDays, Page: page, PageSize: pageSize}
	if err := q.Validate(); err != nil {
		return badRequest(ctx, err.Error())
	}

	var result idb.ChangeFrequencyPage
	err = callWithTimeout(ctx.Request().Context(), si.log, si.timeout, func(ctx context.Context) error {
		var err error
		result, err = si.db.ZipcodeChangeFrequency(ctx, q)
		return err
	})
	if err != nil {
		return backendError(ctx, fmt.Errorf("%s: %w", errFailedZipcodeLookup, err))
	}
	if result.Rows == nil {
		result.Rows = []idb.ChangeFrequency{}
	}

	return ctx.JSON(http.StatusOK, ZipcodeChangeFrequencyResponse{
		OK:         true,
		Data:       result.Rows,
		Rows:       result.Total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		WindowDays: q.WindowDays,
	})
}

// return a 400
func badRequest(ctx echo.Context, err string) error {
	return ctx.JSON(http.StatusBadRequest, ErrorResponse{
		Error: err,
	})
}

// return a 503
func timeoutError(ctx echo.Context, err string) error {
	return ctx.JSON(http.StatusServiceUnavailable, ErrorResponse{
		Error: err,
	})
}

// return a 404
func notFound(ctx echo.Context, err string) error {
	return ctx.JSON(http.StatusNotFound, ErrorResponse{
		Error: err,
	})
}

// backendError maps a data source error to a response: 400 for invalid
// input, 404 for unknown rows, 503 for timeouts and a paused warehouse,
// 499 when the client went away and 500 for the rest.
func backendError(ctx echo.Context, err error) error {
	switch {
	case isClientClosedError(err):
		return ctx.JSON(statusClientClosedRequest, ErrorResponse{
			Error: errClientClosed.Error(),
		})
	case isTimeoutError(err):
		return timeoutError(ctx, err.Error())
	case errors.Is(err, warehouse.ErrUnavailable):
		return timeoutError(ctx, errWarehouseUnavailable)
	case errors.Is(err, idb.ErrInvalidQuery),
		errors.Is(err, filter.ErrMalformed),
		errors.Is(err, analytics.ErrInvalidInput),
		errors.Is(err, backoffice.ErrInvalidInput):
		return badRequest(ctx, err.Error())
	case errors.Is(err, idb.ErrNotFound):
		return notFound(ctx, err.Error())
	}

	return ctx.JSON(http.StatusInternalServerError, ErrorResponse{
		Error: err.Error(),
	})
}
