package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fxdesk/dashboard-api/api"
	"github.com/fxdesk/dashboard-api/config"
)

var (
	apiConfigFile   string
	showAllDisabled bool
)

var apiConfigCmd = &cobra.Command{
	Use:   "api-config",
	Short: "api configuration",
	Long:  "print the endpoint configuration: disabled endpoints, parameters and filter fields",
	Run: func(cmd *cobra.Command, args []string) {
		var err error
		config.BindFlagSet(cmd.Flags())
		err = configureLogger()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to configure logger: %v", err)
			panic(exit{1})
		}

		output, err := renderAPIConfig(apiConfigFile, showAllDisabled)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v", err)
			panic(exit{1})
		}

		fmt.Fprint(os.Stdout, output)
		panic(exit{0})
	},
}

// renderAPIConfig loads the optional API config file and renders it as
// YAML, only the disabled entries unless showAll is set.
func renderAPIConfig(path string, showAll bool) (string, error) {
	dm := api.NewDisabledMap()
	if path != "" {
		var err error
		dm, err = api.MakeDisabledMapFromFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to created disabled map config from file: %w", err)
		}
	}

	output, err := dm.String(!showAll)
	if err != nil {
		return "", fmt.Errorf("failed to output yaml: %w", err)
	}
	return output, nil
}

func init() {
	apiConfigCmd.Flags().BoolVar(&showAllDisabled, "all", false, "show all api config parameters, enabled and disabled")
	apiConfigCmd.Flags().StringVar(&apiConfigFile, "api-config-file", "", "supply an API config file to disable endpoints, parameters and filter fields")
}
