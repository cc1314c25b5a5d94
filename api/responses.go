package api

import (
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/fxdesk/dashboard-api/analytics"
	"github.com/fxdesk/dashboard-api/backoffice"
	"github.com/fxdesk/dashboard-api/idb"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// HealthCheckResponse is returned by GET /health.
type HealthCheckResponse struct {
	OK          bool                    `json:"ok"`
	Version     string                  `json:"version"`
	Data        *map[string]interface{} `json:"data,omitempty"`
	DBAvailable bool                    `json:"db-available"`
	Errors      []string                `json:"errors,omitempty"`
}

// ClientSummaryResponse is one page of the client PnL summary.
type ClientSummaryResponse struct {
	OK          bool                `json:"ok"`
	Data        []idb.ClientSummary `json:"data"`
	Total       int64               `json:"total"`
	Page        int                 `json:"page"`
	PageSize    int                 `json:"page_size"`
	TotalPages  int64               `json:"total_pages"`
	LastUpdated *time.Time          `json:"last_updated"`
}

// ClientAccountsResponse lists the accounts of one client.
type ClientAccountsResponse struct {
	OK       bool                `json:"ok"`
	ClientID int64               `json:"client_id"`
	Accounts []idb.ClientAccount `json:"accounts"`
}

// RefreshStatusResponse describes the freshness of the summary tables.
type RefreshStatusResponse struct {
	OK bool `json:"ok"`
	idb.RefreshStatus
	DataSource string `json:"data_source"`
}

// PnlSummaryResponse is the per symbol PnL summary.
type PnlSummaryResponse struct {
	OK   bool                `json:"ok"`
	Data []idb.PnlSummaryRow `json:"data"`
	Rows int                 `json:"rows"`
}

// PnlAnalysisRequest is the body of POST /api/v1/client-pnl-analysis/query.
// Filters is either a filter group object or its JSON encoded string.
type PnlAnalysisRequest struct {
	StartDate string              `json:"start_date"`
	EndDate   string              `json:"end_date"`
	Search    string              `json:"search"`
	Filters   jsoniter.RawMessage `json:"filters"`
}

func (r PnlAnalysisRequest) suppliedFields() map[string]bool {
	filters := strings.TrimSpace(string(r.Filters))
	return map[string]bool{
		"start_date": strings.TrimSpace(r.StartDate) != "",
		"end_date":   strings.TrimSpace(r.EndDate) != "",
		"search":     strings.TrimSpace(r.Search) != "",
		"filters":    filters != "" && filters != "null" && filters != `""`,
	}
}

// PnlAnalysisResponse is the per account PnL analysis.
type PnlAnalysisResponse struct {
	OK         bool                     `json:"ok"`
	Data       []map[string]interface{} `json:"data"`
	Statistics analytics.Statistics     `json:"statistics"`
	Count      int                      `json:"count"`
}

// IBGroupsResponse is the IB group list.
type IBGroupsResponse struct {
	OK bool `json:"ok"`
	analytics.IBGroupList
}

// IBReportRequest is the body of POST /api/v1/ib-report/query.
type IBReportRequest struct {
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
	Groups    []string `json:"groups"`
}

func (r IBReportRequest) suppliedFields() map[string]bool {
	return map[string]bool{
		"start_date": strings.TrimSpace(r.StartDate) != "",
		"end_date":   strings.TrimSpace(r.EndDate) != "",
		"groups":     len(r.Groups) > 0,
	}
}

// IBReportResponse is the IB group report.
type IBReportResponse struct {
	OK         bool                    `json:"ok"`
	Rows       []analytics.IBReportRow `json:"rows"`
	Statistics analytics.Statistics    `json:"statistics"`
	Count      int                     `json:"count"`
}

// IBDataRequest is the body of POST /api/v1/ib-data/query.
type IBDataRequest struct {
	IBIDs []backoffice.ID `json:"ib_ids"`
	Start string          `json:"start"`
	End   string          `json:"end"`
}

func (r IBDataRequest) suppliedFields() map[string]bool {
	return map[string]bool{
		"ib_ids": len(r.IBIDs) > 0,
		"start":  strings.TrimSpace(r.Start) != "",
		"end":    strings.TrimSpace(r.End) != "",
	}
}

// IBDataResponse is the IB wallet aggregation.
type IBDataResponse struct {
	OK bool `json:"ok"`
	backoffice.IBAggregation
}

// LastRunResponse is the time of the last IB aggregation, null if none.
type LastRunResponse struct {
	OK            bool       `json:"ok"`
	LastQueryTime *time.Time `json:"last_query_time"`
}

// OpenPositionsResponse lists today's open positions per symbol.
type OpenPositionsResponse struct {
	OK    bool                      `json:"ok"`
	Items []backoffice.OpenPosition `json:"items"`
}

// AudiencePreviewRequest is the body of POST /api/v1/audience/preview.
type AudiencePreviewRequest struct {
	Rules []backoffice.AudienceRule `json:"rules"`
}

func (r AudiencePreviewRequest) suppliedFields() map[string]bool {
	return map[string]bool{"rules": len(r.Rules) > 0}
}

// AudiencePreviewResponse is the resolved audience.
type AudiencePreviewResponse struct {
	OK bool `json:"ok"`
	backoffice.AudiencePreview
}

// ClientReturnRateResponse is one page of client return rates.
type ClientReturnRateResponse struct {
	OK bool `json:"ok"`
	analytics.ClientReturnResult
}

// TradingAnalysisRequest is the body of POST /api/v1/trading/analysis.
// StartDate is inclusive and EndDate exclusive.
type TradingAnalysisRequest struct {
	Accounts  []backoffice.ID `json:"accounts"`
	StartDate string          `json:"startDate"`
	EndDate   string          `json:"endDate"`
	Symbols   []string        `json:"symbols"`
	LimitTop  int             `json:"limitTop"`
}

func (r TradingAnalysisRequest) suppliedFields() map[string]bool {
	return map[string]bool{
		"accounts":  len(r.Accounts) > 0,
		"startDate": strings.TrimSpace(r.StartDate) != "",
		"endDate":   strings.TrimSpace(r.EndDate) != "",
		"symbols":   len(r.Symbols) > 0,
		"limitTop":  r.LimitTop != 0,
	}
}

// TradingAnalysisResponse is the trading analysis of a set of logins.
type TradingAnalysisResponse struct {
	OK bool `json:"ok"`
	backoffice.TradingAnalysis
}

// HourlyDetailsRequest is the body of POST /api/v1/trading/hourly-details.
type HourlyDetailsRequest struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Symbol    string `json:"symbol"`
	TimeType  string `json:"time_type"`
	Limit     int    `json:"limit"`
}

func (r HourlyDetailsRequest) suppliedFields() map[string]bool {
	return map[string]bool{
		"start_time": strings.TrimSpace(r.StartTime) != "",
		"end_time":   strings.TrimSpace(r.EndTime) != "",
		"symbol":     strings.TrimSpace(r.Symbol) != "",
		"time_type":  strings.TrimSpace(r.TimeType) != "",
		"limit":      r.Limit != 0,
	}
}

// HourlyDetailsResponse lists the trades of one symbol inside a time window.
type HourlyDetailsResponse struct {
	OK bool `json:"ok"`
	backoffice.HourlyDetails
}

// ZipcodeDistributionResponse counts the enabled clients per zipcode.
type ZipcodeDistributionResponse struct {
	OK   bool                `json:"ok"`
	Data []idb.ZipcodeBucket `json:"data"`
	Rows int                 `json:"rows"`
}

// ZipcodeChangesResponse is one page of zipcode changes. Rows is the number
// of changes in the window.
type ZipcodeChangesResponse struct {
	OK       bool                `json:"ok"`
	Data     []idb.ZipcodeChange `json:"data"`
	Rows     int64               `json:"rows"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"page_size"`
}

// ZipcodeExclusionsResponse lists the zipcode rule exclusions.
type ZipcodeExclusionsResponse struct {
	OK   bool                   `json:"ok"`
	Data []idb.ZipcodeExclusion `json:"data"`
	Rows int                    `json:"rows"`
}

// ZipcodeChangeFrequencyResponse is one page of per client change counts.
// Rows is the number of clients with a change in the window.
type ZipcodeChangeFrequencyResponse struct {
	OK         bool                  `json:"ok"`
	Data       []idb.ChangeFrequency `json:"data"`
	Rows       int64                 `json:"rows"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	WindowDays int                   `json:"window_days"`
}
