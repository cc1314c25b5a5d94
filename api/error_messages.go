package api

const (
	errFailedLookingUpHealth     = "failed while looking up health"
	errFailedSearchingSummaries  = "failed while searching client summaries"
	errFailedLookingUpAccounts   = "failed while looking up client accounts"
	errFailedLookingUpRefresh    = "failed while looking up refresh status"
	errFailedSearchingPnlSummary = "failed while searching pnl summary"
	errFailedPnlAnalysis         = "failed while running pnl analysis"
	errFailedLookingUpIBGroups   = "failed while looking up ib groups"
	errFailedIBReport            = "failed while running ib report"
	errFailedIBAggregation       = "failed while aggregating ib data"
	errFailedLookingUpPositions  = "failed while looking up open positions"
	errFailedAudiencePreview     = "failed while previewing audience"
	errFailedClientReturnRate    = "failed while computing client return rates"
	errFailedTradingAnalysis     = "failed while running trading analysis"
	errFailedHourlyDetails       = "failed while looking up hourly trade details"
	errFailedZipcodeLookup       = "failed while looking up zipcode data"
	errUnableToParseWindowDays   = "window_days must be an integer"
	errUnableToParseIsActive     = "is_active must be true or false"
	errClientNotFound            = "client not found"
	errUnableToParseClientID     = "unable to parse client_id"
	errUnableToParsePage         = "page must be an integer"
	errUnableToParsePageSize     = "page_size must be an integer"
	errUnableToParseFilters      = "unable to parse filters"
	errUnableToParseBody         = "unable to parse request body"
	errUnableToParseDate         = "dates must be formatted as YYYY-MM-DD"
	errUnableToParseDateTime     = "dates must be formatted as YYYY-MM-DD HH:MM:SS or RFC 3339"
	errMissingServerOrSymbol     = "server and symbol are required"
	errWarehouseUnavailable      = "ClickHouse database might be waking up (Paused). Please try again in 30-60 seconds."
	errEndpointDisabled          = "endpoint is disabled"
	errServiceNotConfigured      = "service is not configured"
)
