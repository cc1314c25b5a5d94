package api

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/labstack/echo/v4"
	"gopkg.in/yaml.v3"

	"github.com/fxdesk/dashboard-api/analytics"
	"github.com/fxdesk/dashboard-api/filter"
	"github.com/fxdesk/dashboard-api/idb"
)

// Handler names, used as the keys of the endpoint config.
const (
	HealthCheckEndpoint            = "health"
	ClientSummaryEndpoint          = "client_pnl_summary"
	ClientAccountsEndpoint         = "client_accounts"
	RefreshStatusEndpoint          = "refresh_status"
	PnlSummaryEndpoint             = "pnl_summary"
	PnlAnalysisEndpoint            = "pnl_analysis"
	ClientReturnRateEndpoint       = "client_return_rate"
	IBGroupsEndpoint               = "ib_groups"
	IBReportEndpoint               = "ib_report"
	IBDataQueryEndpoint            = "ib_data_query"
	IBDataLastRunEndpoint          = "ib_data_last_run"
	OpenPositionsEndpoint          = "open_positions"
	AudiencePreviewEndpoint        = "audience_preview"
	TradingAnalysisEndpoint        = "trading_analysis"
	HourlyDetailsEndpoint          = "trading_hourly_details"
	ZipcodeDistributionEndpoint    = "zipcode_distribution"
	ZipcodeChangesEndpoint         = "zipcode_changes"
	ZipcodeExclusionsEndpoint      = "zipcode_exclusions"
	ZipcodeChangeFrequencyEndpoint = "zipcode_change_frequency"
)

// endpointFilterFields lists the filter catalog of every endpoint that
// accepts filters.
var endpointFilterFields = map[string]filter.Catalog{
	ClientSummaryEndpoint: idb.ClientSummaryFields,
	PnlAnalysisEndpoint:   analytics.PnlAnalysisFields,
}

// AllEndpoints returns the endpoint names in a stable order.
func AllEndpoints() []string {
	return []string{
		HealthCheckEndpoint,
		ClientSummaryEndpoint,
		ClientAccountsEndpoint,
		RefreshStatusEndpoint,
		PnlSummaryEndpoint,
		PnlAnalysisEndpoint,
		ClientReturnRateEndpoint,
		IBGroupsEndpoint,
		IBReportEndpoint,
		IBDataQueryEndpoint,
		IBDataLastRunEndpoint,
		OpenPositionsEndpoint,
		AudiencePreviewEndpoint,
		TradingAnalysisEndpoint,
		HourlyDetailsEndpoint,
		ZipcodeDistributionEndpoint,
		ZipcodeChangesEndpoint,
		ZipcodeExclusionsEndpoint,
		ZipcodeChangeFrequencyEndpoint,
	}
}

// EndpointConfig is whether the endpoint is disabled, the optional
// parameters that may not be supplied, and the filter fields removed from
// its catalog.
type EndpointConfig struct {
	EndpointDisabled           bool     `yaml:"disabled"`
	DisabledOptionalParameters []string `yaml:"disabled-parameters,omitempty"`
	DisabledFilterFields       []string `yaml:"disabled-filter-fields,omitempty"`
}

// DisabledMap holds the endpoint configs keyed by endpoint name.
type DisabledMap struct {
	Data map[string]*EndpointConfig `yaml:"endpoints"`
}

// NewDisabledMap creates a map with every endpoint enabled.
func NewDisabledMap() *DisabledMap {
	dm := &DisabledMap{Data: make(map[string]*EndpointConfig)}
	for _, name := range AllEndpoints() {
		dm.Data[name] = &EndpointConfig{}
	}
	return dm
}

// MakeDisabledMapFromFile reads an api config file. Endpoints missing from
// the file stay enabled.
func MakeDisabledMapFromFile(path string) (*DisabledMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("MakeDisabledMapFromFile() err: %w", err)
	}
	return ParseDisabledMap(data)
}

// ParseDisabledMap decodes the YAML form of a DisabledMap and validates
// the endpoint and filter field names.
func ParseDisabledMap(data []byte) (*DisabledMap, error) {
	var supplied DisabledMap
	if err := yaml.Unmarshal(data, &supplied); err != nil {
		return nil, fmt.Errorf("ParseDisabledMap() decode err: %w", err)
	}

	dm := NewDisabledMap()
	for name, ec := range supplied.Data {
		if _, ok := dm.Data[name]; !ok {
			return nil, fmt.Errorf("ParseDisabledMap() unknown endpoint: %s", name)
		}
		if ec == nil {
			continue
		}
		catalog := endpointFilterFields[name]
		for _, field := range ec.DisabledFilterFields {
			if _, ok := catalog[field]; !ok {
				return nil, fmt.Errorf("ParseDisabledMap() unknown filter field %s for endpoint %s", field, name)
			}
		}
		dm.Data[name] = ec
	}
	return dm, nil
}

// String renders the map as YAML. When onlyDisabled is set, endpoints that
// are enabled with nothing disabled are left out.
func (dm *DisabledMap) String(onlyDisabled bool) (string, error) {
	out := DisabledMap{Data: make(map[string]*EndpointConfig)}
	for name, ec := range dm.Data {
		if onlyDisabled && !ec.EndpointDisabled && len(ec.DisabledOptionalParameters) == 0 && len(ec.DisabledFilterFields) == 0 {
			continue
		}
		sorted := *ec
		sorted.DisabledOptionalParameters = sortedCopy(ec.DisabledOptionalParameters)
		sorted.DisabledFilterFields = sortedCopy(ec.DisabledFilterFields)
		out.Data[name] = &sorted
	}
	bytes, err := yaml.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// ExcludedFields returns the filter fields disabled for an endpoint.
func (dm *DisabledMap) ExcludedFields(name string) []string {
	if dm == nil || dm.Data == nil {
		return nil
	}
	if ec, ok := dm.Data[name]; ok {
		return ec.DisabledFilterFields
	}
	return nil
}

func sortedCopy(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}

// ErrVerifyFailedEndpoint an error that signifies that the entire endpoint is disabled
var ErrVerifyFailedEndpoint = errors.New("endpoint is disabled")

// ErrVerifyFailedParameter an error that signifies that a parameter was provided when it was disabled
type ErrVerifyFailedParameter struct {
	ParameterName string
}

func (evfp ErrVerifyFailedParameter) Error() string {
	return fmt.Sprintf("provided disabled parameter: %s", evfp.ParameterName)
}

// DisabledParameterErrorReporter defines an error reporting interface
// for the Verify functions
type DisabledParameterErrorReporter interface {
	Errorf(format string, args ...interface{})
}

// Verify returns nil if the handler can continue, ErrVerifyFailedEndpoint
// if the endpoint is disabled and ErrVerifyFailedParameter if a disabled
// parameter was supplied.
func Verify(dm *DisabledMap, nameOfHandlerFunc string, ctx echo.Context, log DisabledParameterErrorReporter) error {
	if dm == nil || dm.Data == nil {
		return nil
	}

	if val, ok := dm.Data[nameOfHandlerFunc]; ok && val != nil {
		return val.verify(ctx, log)
	}

	log.Errorf("verify function could not find name of handler function in map: %s", nameOfHandlerFunc)
	// Unknown handlers stay enabled.
	return nil
}

// VerifyFields checks the fields of a decoded request body, which Verify
// cannot see once the body has been read. supplied holds the body fields
// that were given a non-empty value.
func VerifyFields(dm *DisabledMap, nameOfHandlerFunc string, supplied map[string]bool) error {
	if dm == nil || dm.Data == nil {
		return nil
	}
	ec, ok := dm.Data[nameOfHandlerFunc]
	if !ok || ec == nil {
		return nil
	}
	if ec.EndpointDisabled {
		return ErrVerifyFailedEndpoint
	}
	for _, paramName := range ec.DisabledOptionalParameters {
		if supplied[paramName] {
			return ErrVerifyFailedParameter{paramName}
		}
	}
	return nil
}

func (ec *EndpointConfig) verify(ctx echo.Context, log DisabledParameterErrorReporter) error {
	if ec.EndpointDisabled {
		return ErrVerifyFailedEndpoint
	}
	if len(ec.DisabledOptionalParameters) == 0 {
		return nil
	}

	queryParams := ctx.QueryParams()
	formParams, formErr := ctx.FormParams()
	if formErr != nil {
		log.Errorf("retrieving form parameters for verification resulted in an error: %v", formErr)
	}

	for _, paramName := range ec.DisabledOptionalParameters {
		if queryParams.Get(paramName) != "" {
			return ErrVerifyFailedParameter{paramName}
		}

		if formErr != nil {
			continue
		}

		if formParams.Get(paramName) != "" {
			return ErrVerifyFailedParameter{paramName}
		}
	}

	return nil
}
