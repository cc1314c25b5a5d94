package config

import (
	"fmt"
	"os"

	"github.com/fxdesk/dashboard-api/util"
)

// DataDirEnv names the data directory when --data-dir is not given.
const DataDirEnv = "DASHBOARD_DATA"

// ResolveDataDir returns dataDir, or $DASHBOARD_DATA when it is empty, and
// creates the directory. An empty result means no data directory.
func ResolveDataDir(dataDir string) (string, error) {
	if dataDir == "" {
		dataDir = os.Getenv(DataDirEnv)
	}
	if dataDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("ResolveDataDir(): %w", err)
	}
	return dataDir, nil
}

// ConfigFile returns the config file in dataDir, the empty string when
// there is none. More than one match is an error.
func ConfigFile(dataDir string) (string, error) {
	if dataDir == "" {
		return "", nil
	}
	return util.GetConfigFromDataDir(dataDir, FileName, FileTypes[:])
}
