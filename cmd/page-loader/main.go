// Command page-loader saves web pages together with their same-origin assets.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Sriram-PR/page-loader/pkg/config"
)

const version = "1.0.0"

// Environment variables that provide flag defaults
const (
	envOutput   = "PAGE_LOADER_OUTPUT"
	envConfig   = "PAGE_LOADER_CONFIG"
	envLogLevel = "PAGE_LOADER_LOG_LEVEL"
)

// errPagesFailed is returned when at least one page could not be saved; the
// details have already been printed.
var errPagesFailed = errors.New("one or more pages failed")

// globalOptions are the persistent flags shared by every subcommand
type globalOptions struct {
	output     string
	configPath string
	logLevel   string
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		if !errors.Is(err, errPagesFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// newRootCmd builds the command tree writing to stdout and stderr
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	global := &globalOptions{}
	load := &loadOptions{}

	rootCmd := &cobra.Command{
		Use:   "page-loader [flags] <url> [url...]",
		Short: "Download web pages with their same-origin assets",
		Long: `page-loader saves each page as <slug>.html in the output directory, downloads
the page's same-origin stylesheets, scripts and images into <slug>_files/,
and rewrites the saved page to reference the local copies.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd, args, global, load)
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&global.output, "output", "o", os.Getenv(envOutput), "Output directory (default: current working directory)")
	pf.StringVarP(&global.configPath, "config", "c", os.Getenv(envConfig), "Path to YAML config file (optional)")
	pf.StringVar(&global.logLevel, "log-level", envOr(envLogLevel, "info"), "Log level (debug, info, warn, error)")

	f := rootCmd.Flags()
	f.IntVarP(&load.concurrency, "concurrency", "j", 0, "Asset download workers per page (overrides config)")
	f.DurationVar(&load.timeout, "timeout", 0, "Per-asset timeout, e.g. 30s (overrides config)")
	f.BoolVar(&load.robots, "robots", false, "Respect robots.txt for assets")
	f.BoolVar(&load.record, "record", false, "Record outcomes in the state directory")
	f.BoolVar(&load.manifest, "manifest", false, "Write <slug>.manifest.yaml next to each page")
	f.BoolVar(&load.tree, "tree", false, "Print the output directory tree after the run")

	rootCmd.AddCommand(
		newMcpServerCmd(global),
		newReportCmd(global),
		newValidateConfigCmd(global),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "page-loader %s\n", version)
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// setupLogger creates a configured logrus.Logger with the given log level.
func setupLogger(logLevelStr string, out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	level, err := logrus.ParseLevel(logLevelStr)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", logLevelStr, err)
	} else {
		log.SetLevel(level)
		log.Debugf("Setting log level to: %s", level.String())
	}

	return log
}

// loadConfig reads the config file, or returns an empty config when path is
// empty. Callers apply overrides and then Validate.
func loadConfig(path string) (*config.AppConfig, error) {
	if path == "" {
		return &config.AppConfig{}, nil
	}
	return config.Load(path)
}

// validateConfig applies defaults, logs warnings and rejects invalid values
func validateConfig(appCfg *config.AppConfig, log *logrus.Logger) error {
	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	return err
}

// logAppConfig logs the effective configuration at debug level
func logAppConfig(appCfg *config.AppConfig, log *logrus.Logger) {
	log.WithFields(logrus.Fields{
		"user_agent":           appCfg.UserAgent,
		"concurrency":          appCfg.Concurrency,
		"max_concurrent_pages": appCfg.MaxConcurrentPages,
		"delay_per_host":       appCfg.DelayPerHost,
		"max_retries":          appCfg.MaxRetries,
		"page_timeout":         appCfg.PageTimeout,
		"asset_timeout":        appCfg.AssetTimeout,
		"respect_robots_txt":   appCfg.RespectRobotsTxt,
		"record_outcomes":      appCfg.RecordOutcomes,
		"write_manifest":       appCfg.WriteManifest,
	}).Debug("Effective configuration")
}

// signalContext returns a context cancelled on SIGINT or SIGTERM. A second
// signal, or a signal followed by 30s without shutdown, exits the process.
func signalContext(log *logrus.Logger) (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("PANIC in signal handler: %v", r)
			}
		}()
		var sig os.Signal
		select {
		case sig = <-sigChan:
		case <-done:
			return
		}
		log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig = <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		case <-done:
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		close(done)
		cancel()
	}
}
