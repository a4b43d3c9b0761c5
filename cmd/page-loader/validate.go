package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var errInvalidConfig = errors.New("configuration is invalid")

func newValidateConfigCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Validate a configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if global.configPath == "" {
				return errors.New("--config is required")
			}
			if doValidate(global.configPath, cmd.OutOrStdout(), cmd.ErrOrStderr()) != 0 {
				return errInvalidConfig
			}
			return nil
		},
	}
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Configuration OK: concurrency=%d, max_concurrent_pages=%d, user_agent=%q\n",
		appCfg.Concurrency, appCfg.MaxConcurrentPages, appCfg.UserAgent)
	return 0
}
