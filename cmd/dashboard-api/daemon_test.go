package main

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxdesk/dashboard-api/api"
	"github.com/fxdesk/dashboard-api/config"
	"github.com/fxdesk/dashboard-api/util"
)

func createTempDir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "dashboard")
	if err != nil {
		t.Fatalf(err.Error())
	}
	return dir
}

func newDaemonConfig(dataDir string) *daemonConfig {
	cfg := &daemonConfig{}
	cfg.flags = pflag.NewFlagSet("dashboard", 0)
	cfg.dataDir = dataDir
	return cfg
}

// TestParameterConfigErrorWhenBothFileTypesArePresent test that if both file types are there then it is an error
func TestParameterConfigErrorWhenBothFileTypesArePresent(t *testing.T) {
	dataDir := createTempDir(t)
	defer os.RemoveAll(dataDir)
	for _, configFiletype := range config.FileTypes {
		autoloadPath := filepath.Join(dataDir, autoLoadParameterConfigFileName+"."+configFiletype)
		os.WriteFile(autoloadPath, []byte{}, fs.ModePerm)
	}

	err := runDaemon(newDaemonConfig(dataDir))
	errorStr := fmt.Errorf("config filename (%s) in data directory (%s) matched more than one filetype: %v",
		autoLoadParameterConfigFileName, dataDir, config.FileTypes)
	assert.EqualError(t, err, errorStr.Error())
}

// TestDashboardConfigErrorWhenBothFileTypesArePresent test that if both file types are there then it is an error
func TestDashboardConfigErrorWhenBothFileTypesArePresent(t *testing.T) {
	dataDir := createTempDir(t)
	defer os.RemoveAll(dataDir)
	for _, configFiletype := range config.FileTypes {
		autoloadPath := filepath.Join(dataDir, autoLoadConfigFileName+"."+configFiletype)
		os.WriteFile(autoloadPath, []byte{}, fs.ModePerm)
	}

	err := runDaemon(newDaemonConfig(dataDir))
	errorStr := fmt.Errorf("config filename (%s) in data directory (%s) matched more than one filetype: %v",
		autoLoadConfigFileName, dataDir, config.FileTypes)
	assert.EqualError(t, err, errorStr.Error())
}

func TestConfigDoesNotExistExpectError(t *testing.T) {
	dataDir := createTempDir(t)
	defer os.RemoveAll(dataDir)
	tempConfigFile := dataDir + "/dashboard-alt.yml"
	cfg := newDaemonConfig(dataDir)
	cfg.configFile = tempConfigFile
	err := runDaemon(cfg)
	// This error string is probably OS-specific
	errorStr := fmt.Sprintf("open %s: no such file or directory", tempConfigFile)
	assert.EqualError(t, err, errorStr)
}

func TestConfigInvalidExpectError(t *testing.T) {
	dataDir := createTempDir(t)
	defer os.RemoveAll(dataDir)
	tempConfigFile := dataDir + "/dashboard-alt.yml"
	os.WriteFile(tempConfigFile, []byte(";;;"), fs.ModePerm)
	cfg := newDaemonConfig(dataDir)
	cfg.configFile = tempConfigFile
	err := runDaemon(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config file ("+tempConfigFile+")")
	assert.Contains(t, err.Error(), "While parsing config")
}

func TestConfigSpecifiedTwiceExpectError(t *testing.T) {
	dataDir := createTempDir(t)
	defer os.RemoveAll(dataDir)
	tempConfigFile := dataDir + "/dashboard.yml"
	os.WriteFile(tempConfigFile, []byte{}, fs.ModePerm)
	cfg := newDaemonConfig(dataDir)
	cfg.configFile = tempConfigFile
	err := runDaemon(cfg)
	errorStr := fmt.Sprintf("dashboard configuration was found in data directory (%s) as well as supplied via command line.  Only provide one",
		filepath.Join(dataDir, "dashboard.yml"))
	assert.EqualError(t, err, errorStr)
}

func TestDataDirCreateFailExpectError(t *testing.T) {
	dataDir := createTempDir(t)
	defer os.RemoveAll(dataDir)
	// A regular file where a directory is expected.
	blocker := filepath.Join(dataDir, "blocker")
	os.WriteFile(blocker, []byte{}, fs.ModePerm)

	err := runDaemon(newDaemonConfig(filepath.Join(blocker, "data")))
	assert.ErrorContains(t, err, "ResolveDataDir()")
}

func TestLoadAPIConfigGivenAutoLoadAndUserSuppliedExpectError(t *testing.T) {
	for _, configFiletype := range config.FileTypes {
		dataDir := createTempDir(t)
		defer os.RemoveAll(dataDir)

		autoloadPath := filepath.Join(dataDir, autoLoadParameterConfigFileName+"."+configFiletype)
		userSuppliedPath := filepath.Join(dataDir, "foobar.yml")
		os.WriteFile(autoloadPath, []byte{}, fs.ModePerm)
		cfg := &daemonConfig{}
		cfg.dataDir = dataDir
		cfg.suppliedAPIConfigFile = userSuppliedPath

		err := loadParamConfig(cfg)
		errorStr := fmt.Sprintf("api parameter configuration was found in data directory (%s) as well as supplied via command line.  Only provide one",
			autoloadPath)
		assert.EqualError(t, err, errorStr)
	}
}

func TestLoadAPIConfigGivenUserSuppliedExpectSuccess(t *testing.T) {
	dataDir := createTempDir(t)
	defer os.RemoveAll(dataDir)

	userSuppliedPath := filepath.Join(dataDir, "foobar.yml")
	cfg := &daemonConfig{}
	cfg.dataDir = dataDir
	cfg.suppliedAPIConfigFile = userSuppliedPath

	err := loadParamConfig(cfg)
	assert.NoError(t, err)
	assert.Equal(t, userSuppliedPath, cfg.suppliedAPIConfigFile)
}

func TestLoadAPIConfigGivenAutoLoadExpectSuccess(t *testing.T) {
	for _, configFiletype := range config.FileTypes {
		dataDir := createTempDir(t)
		defer os.RemoveAll(dataDir)

		autoloadPath := filepath.Join(dataDir, autoLoadParameterConfigFileName+"."+configFiletype)
		os.WriteFile(autoloadPath, []byte{}, fs.ModePerm)
		cfg := &daemonConfig{}
		cfg.dataDir = dataDir

		err := loadParamConfig(cfg)
		assert.NoError(t, err)
		assert.Equal(t, autoloadPath, cfg.suppliedAPIConfigFile)
	}
}

func TestLoadAPIConfigWithoutDataDir(t *testing.T) {
	cfg := &daemonConfig{}
	assert.NoError(t, loadParamConfig(cfg))
	assert.Empty(t, cfg.suppliedAPIConfigFile)
}

func TestInvalidMetricsModeExpectError(t *testing.T) {
	dataDir := createTempDir(t)
	defer os.RemoveAll(dataDir)

	cfg := newDaemonConfig(dataDir)
	cfg.metricsMode = "loud"
	err := runDaemon(cfg)
	assert.EqualError(t, err, `invalid metrics-mode "LOUD", expected one of [OFF, ON, VERBOSE]`)
}

func TestPidFileExpectSuccess(t *testing.T) {
	dataDir := createTempDir(t)
	defer os.RemoveAll(dataDir)

	pidFilePath := path.Join(dataDir, "pidFile")
	assert.NoError(t, util.CreatePidFile(logger, pidFilePath))
	assert.FileExists(t, pidFilePath)
}

func TestPidFileCreateFailExpectError(t *testing.T) {
	for _, configFiletype := range config.FileTypes {
		dataDir := createTempDir(t)
		defer os.RemoveAll(dataDir)
		autoloadPath := filepath.Join(dataDir, autoLoadConfigFileName+"."+configFiletype)
		os.WriteFile(autoloadPath, []byte{}, fs.ModePerm)

		invalidDir := filepath.Join(dataDir, "foo", "bar")
		cfg := newDaemonConfig(dataDir)
		cfg.pidFilePath = invalidDir

		assert.ErrorContains(t, runDaemon(cfg), "pid file")
		assert.Error(t, util.CreatePidFile(logger, cfg.pidFilePath))
	}
}

func TestInvalidAPIConfigFileExpectError(t *testing.T) {
	dataDir := createTempDir(t)
	defer os.RemoveAll(dataDir)
	autoloadPath := filepath.Join(dataDir, autoLoadParameterConfigFileName+".yml")
	os.WriteFile(autoloadPath, []byte("endpoints:\n  nope:\n    disabled: true\n"), fs.ModePerm)

	err := runDaemon(newDaemonConfig(dataDir))
	assert.ErrorContains(t, err, "unknown endpoint: nope")
}

func TestMakeOptions(t *testing.T) {
	testcases := []struct {
		mode    string
		enabled bool
		verbose bool
	}{
		{metricsModeOff, false, false},
		{metricsModeOn, true, false},
		{metricsModeVerbose, true, true},
	}

	for _, tc := range testcases {
		t.Run(tc.mode, func(t *testing.T) {
			cfg := &daemonConfig{
				metricsMode:  tc.mode,
				queryTimeout: 3 * time.Second,
				readTimeout:  time.Second,
				writeTimeout: 2 * time.Second,
				corsOrigins:  []string{"https://dashboard.example.com"},
			}
			opts := makeOptions(cfg)
			assert.Equal(t, tc.enabled, opts.MetricsEndpoint)
			assert.Equal(t, tc.verbose, opts.MetricsEndpointVerbose)
			assert.Equal(t, 3*time.Second, opts.Timeout)
			assert.Equal(t, time.Second, opts.ReadTimeout)
			assert.Equal(t, 2*time.Second, opts.WriteTimeout)
			assert.Equal(t, cfg.corsOrigins, opts.CORSOrigins)
		})
	}
}

func TestWarehouseConfig(t *testing.T) {
	cfg := &daemonConfig{queryTimeout: 5 * time.Second, warehouseRetry: 3}
	wc := warehouseConfig("prod", warehouseFlags{
		url:      "https://ch.example.com:8443",
		user:     "reader",
		password: "secret",
		database: "mt5",
	}, cfg)
	assert.Equal(t, "prod", wc.Name)
	assert.Equal(t, "https://ch.example.com:8443", wc.URL)
	assert.Equal(t, "reader", wc.User)
	assert.Equal(t, "secret", wc.Password)
	assert.Equal(t, "mt5", wc.Database)
	assert.Equal(t, 5*time.Second, wc.Timeout)
	assert.Equal(t, 3, wc.RetryMax)
}

func TestAnalyticsFromFlagsNotConfigured(t *testing.T) {
	svc, err := analyticsFromFlags(&daemonConfig{}, nil)
	assert.NoError(t, err)
	assert.Nil(t, svc)
}

func TestAnalyticsFromFlagsBadURL(t *testing.T) {
	cfg := &daemonConfig{}
	cfg.clickhouse.url = "ftp://ch.example.com"
	_, err := analyticsFromFlags(cfg, nil)
	assert.ErrorContains(t, err, "unsupported scheme")
}

func TestOpenBackendsDummy(t *testing.T) {
	cfg := &daemonConfig{dummyDb: true}
	backends, closeBackends, err := openBackends(cfg)
	require.NoError(t, err)
	defer closeBackends()

	assert.NotNil(t, backends.DB)
	assert.NotNil(t, backends.DBAvailable)
	assert.Nil(t, backends.Analytics)
	assert.Nil(t, backends.Backoffice)
}

func TestRenderAPIConfig(t *testing.T) {
	dataDir := createTempDir(t)
	defer os.RemoveAll(dataDir)
	apiConfig := filepath.Join(dataDir, "api_config.yml")
	os.WriteFile(apiConfig, []byte("endpoints:\n  pnl_summary:\n    disabled: true\n"), fs.ModePerm)

	out, err := renderAPIConfig(apiConfig, false)
	require.NoError(t, err)
	assert.Contains(t, out, api.PnlSummaryEndpoint+":")
	assert.NotContains(t, out, api.IBGroupsEndpoint+":")

	out, err = renderAPIConfig(apiConfig, true)
	require.NoError(t, err)
	for _, name := range api.AllEndpoints() {
		assert.Contains(t, out, name+":")
	}

	out, err = renderAPIConfig("", true)
	require.NoError(t, err)
	assert.Contains(t, out, api.HealthCheckEndpoint+":")

	_, err = renderAPIConfig(filepath.Join(dataDir, "missing.yml"), false)
	assert.Error(t, err)
}
