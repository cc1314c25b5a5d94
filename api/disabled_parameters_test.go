package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testingErrorReporter struct {
	ErrorFCalledCount int
}

func (er *testingErrorReporter) Errorf(string, ...interface{}) {
	er.ErrorFCalledCount = er.ErrorFCalledCount + 1
}

func newVerifyContext(target string) echo.Context {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return echo.New().NewContext(req, httptest.NewRecorder())
}

const testAPIConfig = `
endpoints:
  pnl_summary:
    disabled: true
  client_pnl_summary:
    disabled-parameters: [search]
    disabled-filter-fields: [client_name, countries]
`

func TestParseDisabledMap(t *testing.T) {
	dm, err := ParseDisabledMap([]byte(testAPIConfig))
	require.NoError(t, err)

	require.Len(t, dm.Data, len(AllEndpoints()))
	assert.True(t, dm.Data[PnlSummaryEndpoint].EndpointDisabled)
	assert.False(t, dm.Data[PnlAnalysisEndpoint].EndpointDisabled)
	assert.Equal(t, []string{"client_name", "countries"}, dm.ExcludedFields(ClientSummaryEndpoint))
	assert.Empty(t, dm.ExcludedFields(PnlAnalysisEndpoint))
}

func TestParseDisabledMapErrors(t *testing.T) {
	testcases := []struct {
		name   string
		config string
		errMsg string
	}{
		{
			name:   "unknown endpoint",
			config: "endpoints:\n  nope:\n    disabled: true\n",
			errMsg: "unknown endpoint: nope",
		},
		{
			name:   "unknown filter field",
			config: "endpoints:\n  pnl_analysis:\n    disabled-filter-fields: [balance]\n",
			errMsg: "unknown filter field balance for endpoint pnl_analysis",
		},
		{
			name:   "filters on an endpoint without filters",
			config: "endpoints:\n  ib_groups:\n    disabled-filter-fields: [tag_id]\n",
			errMsg: "unknown filter field tag_id",
		},
		{
			name:   "not yaml",
			config: "endpoints: [",
			errMsg: "decode err",
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseDisabledMap([]byte(tc.config))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}

func TestDisabledMapString(t *testing.T) {
	dm, err := ParseDisabledMap([]byte(testAPIConfig))
	require.NoError(t, err)

	out, err := dm.String(true)
	require.NoError(t, err)
	assert.Contains(t, out, "pnl_summary:")
	assert.Contains(t, out, "client_pnl_summary:")
	assert.NotContains(t, out, "ib_groups:")

	all, err := dm.String(false)
	require.NoError(t, err)
	for _, name := range AllEndpoints() {
		assert.Contains(t, all, name+":")
	}

	// The rendered form reads back to the same map.
	again, err := ParseDisabledMap([]byte(all))
	require.NoError(t, err)
	assert.Equal(t, dm, again)
}

func TestVerify(t *testing.T) {
	dm, err := ParseDisabledMap([]byte(testAPIConfig))
	require.NoError(t, err)
	reporter := &testingErrorReporter{}

	err = Verify(dm, PnlSummaryEndpoint, newVerifyContext("/api/v1/pnl/summary"), reporter)
	assert.ErrorIs(t, err, ErrVerifyFailedEndpoint)

	err = Verify(dm, ClientSummaryEndpoint, newVerifyContext("/x?search=abc"), reporter)
	var paramErr ErrVerifyFailedParameter
	require.True(t, errors.As(err, &paramErr))
	assert.Equal(t, "search", paramErr.ParameterName)

	err = Verify(dm, ClientSummaryEndpoint, newVerifyContext("/x?page=2"), reporter)
	assert.NoError(t, err)
	assert.Equal(t, 0, reporter.ErrorFCalledCount)

	err = Verify(dm, "unknown_handler", newVerifyContext("/x"), reporter)
	assert.NoError(t, err)
	assert.Equal(t, 1, reporter.ErrorFCalledCount)
}

func TestVerifyNilMap(t *testing.T) {
	reporter := &testingErrorReporter{}
	assert.NoError(t, Verify(nil, PnlSummaryEndpoint, newVerifyContext("/x"), reporter))
	assert.Equal(t, 0, reporter.ErrorFCalledCount)
}

func TestVerifyFields(t *testing.T) {
	dm, err := ParseDisabledMap([]byte(testAPIConfig))
	require.NoError(t, err)

	err = VerifyFields(dm, ClientSummaryEndpoint, map[string]bool{"search": true, "page": true})
	var paramErr ErrVerifyFailedParameter
	require.True(t, errors.As(err, &paramErr))
	assert.Equal(t, "search", paramErr.ParameterName)

	assert.NoError(t, VerifyFields(dm, ClientSummaryEndpoint, map[string]bool{"search": false}))
	assert.NoError(t, VerifyFields(dm, ClientSummaryEndpoint, nil))
	assert.ErrorIs(t, VerifyFields(dm, PnlSummaryEndpoint, nil), ErrVerifyFailedEndpoint)
	assert.NoError(t, VerifyFields(dm, "unknown_handler", map[string]bool{"search": true}))
	assert.NoError(t, VerifyFields(nil, ClientSummaryEndpoint, map[string]bool{"search": true}))
}
