package main

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
	"github.com/spf13/viper"

	"github.com/fxdesk/dashboard-api/config"
	_ "github.com/fxdesk/dashboard-api/idb/dummy"
	_ "github.com/fxdesk/dashboard-api/idb/postgres"
	"github.com/fxdesk/dashboard-api/loggers"
	_ "github.com/fxdesk/dashboard-api/util/disabledeadlock"
	"github.com/fxdesk/dashboard-api/util/metrics"
	"github.com/fxdesk/dashboard-api/version"
)

const autoLoadConfigFileName = config.FileName
const autoLoadParameterConfigFileName = "api_config"

// Calling os.Exit() directly will not honor any defer'd statements.
// Instead, we will create an exit type and handler so that we may panic
// and handle any exit specific errors
type exit struct {
	RC int // The exit code
}

// exitHandler will handle a panic with type of exit (see above)
func exitHandler() {
	if err := recover(); err != nil {
		if exit, ok := err.(exit); ok {
			os.Exit(exit.RC)
		}

		// It's not actually an exit type, restore panic
		panic(err)
	}
}

// Requires that main (and every go-routine that this is used)
// have defer exitHandler() called first
func maybeFail(err error, errfmt string, params ...interface{}) {
	if err == nil {
		return
	}
	logger.WithError(err).Errorf(errfmt, params...)
	panic(exit{1})
}

var rootCmd = &cobra.Command{
	Use:   "dashboard-api",
	Short: "Financial operations dashboard API",
	Long:  `dashboard-api serves the client PnL, IB and back-office reports of the operations dashboard from the reporting database, the analytics warehouse and the back-office database.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		//If no arguments passed, we should fallback to help
		cmd.HelpFunc()(cmd, args)
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if doVersion {
			fmt.Printf("%s\n", version.LongVersion())
			os.Exit(0)
		}
	},
}

var (
	doVersion     bool
	logLevel      string
	logFile       string
	logger        *log.Logger
	loggerManager *loggers.LoggerManager
)

func init() {
	loggerManager = loggers.MakeLoggerManager(os.Stdout)
	logger, _ = loggerManager.MakeRootLogger(log.InfoLevel, "")

	daemonCmd := DaemonCmd()
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(apiConfigCmd)

	// Version should be available globally
	rootCmd.Flags().BoolVarP(&doVersion, "version", "v", false, "print version and exit")

	// Not applied globally to avoid adding to utility commands.
	addFlags := func(cmd *cobra.Command) {
		cmd.Flags().StringVarP(&logLevel, "loglevel", "l", "info", "verbosity of logs: [error, warn, info, debug, trace]")
		cmd.Flags().StringVarP(&logFile, "logfile", "f", "", "file to write logs to, if unset logs are written to standard out")
		cmd.Flags().BoolVarP(&doVersion, "version", "v", false, "print version and exit")
	}
	addFlags(daemonCmd)
	addFlags(apiConfigCmd)

	// Setup configuration file
	viper.SetConfigName(config.FileName)
	// just hard-code yaml since we support multiple yaml filetypes
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.AutomaticEnv()

	// Register metrics with the global prometheus handler.
	metrics.RegisterPrometheusMetrics()
}

// configureLogger applies --loglevel and --logfile to the root logger.
func configureLogger() error {
	level := log.InfoLevel
	if logLevel != "" {
		var err error
		level, err = log.ParseLevel(logLevel)
		if err != nil {
			return err
		}
	}

	file := logFile
	if file == "-" {
		file = ""
	}
	l, err := loggerManager.MakeRootLogger(level, file)
	if err != nil {
		return err
	}
	logger = l
	return nil
}

func main() {
	// Hidden command to generate docs in a given directory
	// dashboard-api generate-docs [path]
	if len(os.Args) == 3 && os.Args[1] == "generate-docs" {
		err := doc.GenMarkdownTree(rootCmd, os.Args[2])
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Setup our exit handler for maybeFail() and other exit panics
	defer exitHandler()

	if err := rootCmd.Execute(); err != nil {
		logger.WithError(err).Error("an error occurred running dashboard-api")
		panic(exit{1})
	}
}
