package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/fxdesk/dashboard-api/analytics"
	"github.com/fxdesk/dashboard-api/api"
	"github.com/fxdesk/dashboard-api/backoffice"
	"github.com/fxdesk/dashboard-api/cache"
	"github.com/fxdesk/dashboard-api/config"
	"github.com/fxdesk/dashboard-api/idb"
	"github.com/fxdesk/dashboard-api/util"
	"github.com/fxdesk/dashboard-api/warehouse"
)

type warehouseFlags struct {
	url      string
	user     string
	password string
	database string
}

type daemonConfig struct {
	flags                 *pflag.FlagSet
	dataDir               string
	configFile            string
	suppliedAPIConfigFile string
	pidFilePath           string

	daemonServerAddr string
	postgresAddr     string
	dummyDb          bool
	maxConn          uint32

	clickhouse     warehouseFlags
	clickhouseProd warehouseFlags
	warehouseRetry int

	mysqlDSN     string
	mysqlMaxConn int
	ibWorkers    int

	redisAddr     string
	redisPassword string
	redisDB       int

	queryTimeout time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
	corsOrigins  []string
	metricsMode  string
}

const (
	metricsModeOff     = "OFF"
	metricsModeOn      = "ON"
	metricsModeVerbose = "VERBOSE"
)

var metricsModes = map[string]bool{
	metricsModeOff:     true,
	metricsModeOn:      true,
	metricsModeVerbose: true,
}

// DaemonCmd creates the main cobra command, initializes flags, and viper aliases
func DaemonCmd() *cobra.Command {
	cfg := &daemonConfig{}
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "run dashboard api daemon",
		Long:  "run dashboard api daemon. Serve api on HTTP.",
		//Args:
		Run: func(cmd *cobra.Command, args []string) {
			if err := runDaemon(cfg); err != nil {
				fmt.Fprintf(os.Stderr, "Exiting with error: %s\n", err.Error())
				os.Exit(1)
			}
		},
	}
	cfg.flags = daemonCmd.Flags()
	cfg.flags.StringVarP(&cfg.dataDir, "data-dir", "i", "", "path to the data directory, or $"+config.DataDirEnv)
	cfg.flags.StringVarP(&cfg.configFile, "configfile", "c", "", "file path to configuration file ("+config.FileName+".yml)")
	cfg.flags.StringVarP(&cfg.pidFilePath, "pidfile", "", "", "name of the file where the pid is written to")

	cfg.flags.StringVarP(&cfg.daemonServerAddr, "server", "S", ":8000", "host:port to serve API on")
	cfg.flags.StringVarP(&cfg.postgresAddr, "postgres", "P", "", "connection string for the reporting postgres database")
	cfg.flags.BoolVarP(&cfg.dummyDb, "dummydb", "n", false, "use dummy reporting database")
	cfg.flags.Uint32VarP(&cfg.maxConn, "max-conn", "", 0, "set the maximum connections allowed in the connection pool, if the maximum is reached subsequent connections will wait until a connection becomes available, or timeout according to the read-timeout setting")

	cfg.flags.StringVarP(&cfg.clickhouse.url, "clickhouse-url", "", "", "http(s) url of the analytics warehouse")
	cfg.flags.StringVarP(&cfg.clickhouse.user, "clickhouse-user", "", "", "analytics warehouse user")
	cfg.flags.StringVarP(&cfg.clickhouse.password, "clickhouse-password", "", "", "analytics warehouse password")
	cfg.flags.StringVarP(&cfg.clickhouse.database, "clickhouse-database", "", "", "analytics warehouse database")
	cfg.flags.StringVarP(&cfg.clickhouseProd.url, "clickhouse-prod-url", "", "", "http(s) url of the back-office replica warehouse, defaults to the analytics warehouse")
	cfg.flags.StringVarP(&cfg.clickhouseProd.user, "clickhouse-prod-user", "", "", "back-office replica warehouse user")
	cfg.flags.StringVarP(&cfg.clickhouseProd.password, "clickhouse-prod-password", "", "", "back-office replica warehouse password")
	cfg.flags.StringVarP(&cfg.clickhouseProd.database, "clickhouse-prod-database", "", "", "back-office replica warehouse database")
	cfg.flags.IntVarP(&cfg.warehouseRetry, "clickhouse-retries", "", 2, "number of retries for failed warehouse requests")

	cfg.flags.StringVarP(&cfg.mysqlDSN, "mysql-dsn", "", "", "data source name of the back-office mysql database")
	cfg.flags.IntVarP(&cfg.mysqlMaxConn, "mysql-max-conn", "", 10, "maximum open connections to the back-office mysql database")
	cfg.flags.IntVarP(&cfg.ibWorkers, "ib-workers", "", backoffice.DefaultWorkers, "number of IB ids aggregated concurrently")

	cfg.flags.StringVarP(&cfg.redisAddr, "redis-addr", "", "", "host:port of the redis cache, caching is disabled when unset")
	cfg.flags.StringVarP(&cfg.redisPassword, "redis-password", "", "", "redis password")
	cfg.flags.IntVarP(&cfg.redisDB, "redis-db", "", 0, "redis database number")

	cfg.flags.DurationVarP(&cfg.queryTimeout, "query-timeout", "", 30*time.Second, "maximum time a request may spend on its data source, disabled when 0")
	cfg.flags.DurationVarP(&cfg.readTimeout, "read-timeout", "", 10*time.Second, "set the maximum duration for reading the entire request")
	cfg.flags.DurationVarP(&cfg.writeTimeout, "write-timeout", "", 2*time.Minute, "set the maximum duration to wait before timing out writes to a http response, breaking connection")
	cfg.flags.StringSliceVarP(&cfg.corsOrigins, "cors-origins", "", nil, "allowed CORS origins, all origins when unset")
	cfg.flags.StringVarP(&cfg.metricsMode, "metrics-mode", "", metricsModeOff, "configure the /metrics endpoint to ["+util.KeysStringBool(metricsModes)+"]")
	cfg.flags.StringVarP(&cfg.suppliedAPIConfigFile, "api-config-file", "", "", "supply an API config file to disable endpoints, parameters and filter fields")

	viper.RegisterAlias("postgres", "postgres-connection-string")
	viper.RegisterAlias("server", "server-address")

	return daemonCmd
}

func loadDashboardConfig(dataDir string, configFile string) error {
	var resolvedConfigPath string
	potentialConfigFile, err := config.ConfigFile(dataDir)
	if err != nil {
		logger.WithError(err).Errorf("dashboard config file error")
		return err
	}
	configs, err := os.Open(potentialConfigFile)
	if err == nil {
		configs.Close()
		if configFile != "" {
			err = fmt.Errorf("dashboard configuration was found in data directory (%s) as well as supplied via command line.  Only provide one",
				potentialConfigFile)
			return err
		}
		resolvedConfigPath = potentialConfigFile
	} else if configFile != "" {
		resolvedConfigPath = configFile
		configs, err = os.Open(resolvedConfigPath)
		if err != nil {
			return err
		}
		configs.Close()
	} else {
		// no config file
		return nil
	}

	configs, err = os.Open(resolvedConfigPath)
	if err != nil {
		return err
	}
	defer configs.Close()
	err = viper.ReadConfig(configs)
	if err != nil {
		err = fmt.Errorf("invalid config file (%s): %w", resolvedConfigPath, err)
		logger.WithError(err).Errorf("dashboard config file error")
		return err
	}
	logger.Infof("Using configuration file: %s", resolvedConfigPath)
	return nil
}

func loadParamConfig(cfg *daemonConfig) error {
	if cfg.dataDir == "" {
		return nil
	}
	potentialParamConfigFile, err := util.GetConfigFromDataDir(cfg.dataDir, autoLoadParameterConfigFileName, config.FileTypes[:])
	if err != nil {
		logger.WithError(err).Errorf("api parameter config file error")
		return err
	}
	paramConfigs, err := os.Open(potentialParamConfigFile)
	if err == nil {
		paramConfigs.Close()
		if cfg.suppliedAPIConfigFile != "" {
			err = fmt.Errorf("api parameter configuration was found in data directory (%s) as well as supplied via command line.  Only provide one",
				potentialParamConfigFile)
			return err
		}
		cfg.suppliedAPIConfigFile = potentialParamConfigFile
		logger.Infof("Auto-loading parameter configuration file: %s", cfg.suppliedAPIConfigFile)
	}
	return nil
}

func runDaemon(cfg *daemonConfig) error {
	var err error
	if err = configureLogger(); err != nil {
		return fmt.Errorf("failed to configure logger: %w", err)
	}

	// Environment files only provide defaults, real variables win.
	if err = config.LoadDotEnv(config.DotEnvFile); err != nil {
		logger.WithError(err).Error("failed to load environment file")
		return err
	}

	cfg.dataDir, err = config.ResolveDataDir(cfg.dataDir)
	if err != nil {
		logger.WithError(err).Error("data directory error")
		return err
	}
	if cfg.dataDir != "" {
		if err = config.LoadDotEnv(filepath.Join(cfg.dataDir, config.DotEnvFile)); err != nil {
			logger.WithError(err).Error("failed to load environment file")
			return err
		}
	}

	if err = loadDashboardConfig(cfg.dataDir, cfg.configFile); err != nil {
		return err
	}

	if err = loadParamConfig(cfg); err != nil {
		return err
	}

	// Flags are bound after the config file is read so that its values are
	// applied to the flags which were not set explicitly.
	config.BindFlagSet(cfg.flags)

	cfg.metricsMode = strings.ToUpper(cfg.metricsMode)
	if cfg.metricsMode == "" {
		cfg.metricsMode = metricsModeOff
	}
	if !metricsModes[cfg.metricsMode] {
		return fmt.Errorf("invalid metrics-mode %q, expected one of [%s]", cfg.metricsMode, util.KeysStringBool(metricsModes))
	}

	if cfg.pidFilePath != "" {
		err = util.CreatePidFile(logger, cfg.pidFilePath)
		if err != nil {
			return err
		}
		defer util.RemovePidFile(logger, cfg.pidFilePath)
	}

	options := makeOptions(cfg)
	if cfg.suppliedAPIConfigFile != "" {
		options.DisabledMapConfig, err = api.MakeDisabledMapFromFile(cfg.suppliedAPIConfigFile)
		if err != nil {
			logger.WithError(err).Errorf("failed to create disabled map config from file")
			return err
		}
		logger.Infof("Using API config: %s", util.JSONOneLine(options.DisabledMapConfig))
	}

	backends, closeBackends, err := openBackends(cfg)
	if err != nil {
		return err
	}
	defer closeBackends()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.WithField("options", util.JSONOneLine(options)).Debug("api options")
	fmt.Printf("serving on %s\n", cfg.daemonServerAddr)
	logger.Infof("serving on %s", cfg.daemonServerAddr)
	api.Serve(ctx, cfg.daemonServerAddr, backends, logger, options)
	logger.Info("shutdown complete")
	return nil
}

// makeOptions converts the daemon configuration into API options.
func makeOptions(cfg *daemonConfig) (options api.ExtraOptions) {
	switch cfg.metricsMode {
	case metricsModeOn:
		options.MetricsEndpoint = true
		options.MetricsEndpointVerbose = false
	case metricsModeVerbose:
		options.MetricsEndpoint = true
		options.MetricsEndpointVerbose = true
	default:
		options.MetricsEndpoint = false
		options.MetricsEndpointVerbose = false
	}
	options.Timeout = cfg.queryTimeout
	options.ReadTimeout = cfg.readTimeout
	options.WriteTimeout = cfg.writeTimeout
	options.CORSOrigins = cfg.corsOrigins
	return
}

// openBackends connects every configured data source. The returned function
// releases them.
func openBackends(cfg *daemonConfig) (api.Backends, func(), error) {
	var backends api.Backends
	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.WithError(err).Warn("failed to close backend")
			}
		}
	}

	db, available, err := reportDbFromFlags(cfg)
	if err != nil {
		return backends, closeAll, err
	}
	closers = append(closers, func() error { db.Close(); return nil })
	backends.DB = db
	backends.DBAvailable = available

	reportCache := cacheFromFlags(cfg)
	closers = append(closers, reportCache.Close)

	svc, err := analyticsFromFlags(cfg, reportCache)
	if err != nil {
		closeAll()
		return backends, func() {}, err
	}
	if svc != nil {
		backends.Analytics = svc
	}

	if cfg.mysqlDSN != "" {
		store, err := backoffice.OpenMySQL(cfg.mysqlDSN, cfg.mysqlMaxConn)
		if err != nil {
			closeAll()
			return backends, func() {}, fmt.Errorf("back-office database: %w", err)
		}
		svc := backoffice.New(store, backoffice.Options{
			DataDir: cfg.dataDir,
			Workers: cfg.ibWorkers,
		}, loggerManager.MakeComponentLogger(logger, "backoffice"))
		closers = append(closers, svc.Close)
		backends.Backoffice = svc
	} else {
		logger.Info("No back-office database configured.")
	}

	return backends, closeAll, nil
}

func reportDbFromFlags(cfg *daemonConfig) (idb.ReportDb, chan struct{}, error) {
	opts := idb.ReportDbOptions{MaxConn: cfg.maxConn}
	dbLogger := loggerManager.MakeComponentLogger(logger, "idb")
	if cfg.postgresAddr != "" {
		db, available, err := idb.ReportDbByName("postgres", cfg.postgresAddr, opts, dbLogger)
		if err != nil {
			return nil, nil, fmt.Errorf("reporting database: %w", err)
		}
		return db, available, nil
	}
	if !cfg.dummyDb {
		logger.Info("No reporting database configured, using dummy database.")
	}
	return idb.ReportDbByName("dummy", "", opts, dbLogger)
}

func cacheFromFlags(cfg *daemonConfig) cache.Cache {
	if cfg.redisAddr == "" {
		logger.Info("No redis configured, report caching disabled.")
		return cache.Noop()
	}
	r := cache.NewRedis(cache.RedisOptions{
		Addr:     cfg.redisAddr,
		Password: cfg.redisPassword,
		DB:       cfg.redisDB,
		Timeout:  5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// Reports still work without the cache, a failed ping is only logged.
	if err := r.Ping(ctx); err != nil {
		logger.WithError(err).Warn("redis is not reachable")
	}
	return r
}

func analyticsFromFlags(cfg *daemonConfig, c cache.Cache) (*analytics.Service, error) {
	if cfg.clickhouse.url == "" {
		logger.Info("No analytics warehouse configured.")
		return nil, nil
	}
	def, err := warehouse.New(warehouseConfig("default", cfg.clickhouse, cfg), loggerManager.MakeComponentLogger(logger, "warehouse"))
	if err != nil {
		return nil, err
	}
	prod := def
	if cfg.clickhouseProd.url != "" {
		prod, err = warehouse.New(warehouseConfig("prod", cfg.clickhouseProd, cfg), loggerManager.MakeComponentLogger(logger, "warehouse"))
		if err != nil {
			return nil, err
		}
	}
	opts := analytics.Options{QueryTimeout: cfg.queryTimeout}
	return analytics.New(def, prod, c, opts, loggerManager.MakeComponentLogger(logger, "analytics")), nil
}

func warehouseConfig(name string, wf warehouseFlags, cfg *daemonConfig) warehouse.Config {
	return warehouse.Config{
		Name:     name,
		URL:      wf.url,
		User:     wf.user,
		Password: wf.password,
		Database: wf.database,
		Timeout:  cfg.queryTimeout,
		RetryMax: cfg.warehouseRetry,
	}
}
