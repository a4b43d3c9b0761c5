package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Sriram-PR/page-loader/pkg/batch"
	"github.com/Sriram-PR/page-loader/pkg/config"
	"github.com/Sriram-PR/page-loader/pkg/loader"
	"github.com/Sriram-PR/page-loader/pkg/models"
	"github.com/Sriram-PR/page-loader/pkg/storage"
	"github.com/Sriram-PR/page-loader/pkg/utils"
)

const dbGCInterval = 10 * time.Minute

// loadOptions are the root command's download flags
type loadOptions struct {
	concurrency int
	timeout     time.Duration
	robots      bool
	record      bool
	manifest    bool
	tree        bool
}

// applyOverrides copies explicitly set flags onto the config
func (o *loadOptions) applyOverrides(cmd *cobra.Command, appCfg *config.AppConfig) {
	flags := cmd.Flags()
	if flags.Changed("concurrency") {
		appCfg.Concurrency = o.concurrency
	}
	if flags.Changed("timeout") {
		appCfg.AssetTimeout = o.timeout
	}
	if flags.Changed("robots") {
		appCfg.RespectRobotsTxt = o.robots
	}
	if flags.Changed("record") {
		appCfg.RecordOutcomes = o.record
	}
	if flags.Changed("manifest") {
		appCfg.WriteManifest = o.manifest
	}
}

// resolveOutputDir returns dir, or the working directory when dir is empty
func resolveOutputDir(dir string) (string, error) {
	if dir == "" {
		return os.Getwd()
	}
	return filepath.Abs(dir)
}

// runLoad downloads every URL and prints the saved page paths and failed assets
func runLoad(cmd *cobra.Command, urls []string, global *globalOptions, opts *loadOptions) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	log := setupLogger(global.logLevel, stderr)

	appCfg, err := loadConfig(global.configPath)
	if err != nil {
		return err
	}
	opts.applyOverrides(cmd, appCfg)
	if err := validateConfig(appCfg, log); err != nil {
		return err
	}
	logAppConfig(appCfg, log)

	outputDir, err := resolveOutputDir(global.output)
	if err != nil {
		return fmt.Errorf("%w: output dir '%s': %w", utils.ErrInvalidRequest, global.output, err)
	}

	ctx, stop := signalContext(log)
	defer stop()

	logEntry := log.WithField("component", "load")

	var store storage.OutcomeStore
	if appCfg.RecordOutcomes {
		badgerStore, err := storage.NewBadgerStore(appCfg.StateDir, logEntry)
		if err != nil {
			return err
		}
		defer badgerStore.Close()
		go badgerStore.RunGC(ctx, dbGCInterval)
		store = badgerStore
	}

	runner := batch.NewRunner(loader.New(appCfg, store, logEntry), appCfg.MaxConcurrentPages, logEntry)
	runner.OnAsset = func(pageURL string, r models.DownloadResult) {
		assetLog := logEntry.WithFields(logrus.Fields{"page": pageURL, "asset_url": r.Asset.URL()})
		if r.Succeeded() {
			assetLog.Infof("✔ %s", r.Asset.LocalPath)
		} else {
			assetLog.Warnf("✖ %s (%s)", r.Asset.LocalPath, r.Reason)
		}
	}

	outcomes, runErr := runner.Run(ctx, urls, outputDir)

	failed := printOutcomes(stdout, stderr, outcomes)
	if opts.tree {
		if err := utils.WriteTree(stdout, outputDir, logEntry); err != nil {
			log.Warnf("Could not print output tree: %v", err)
		}
	}

	if runErr != nil {
		fmt.Fprintf(stderr, "Error: %v\n", runErr)
		return errPagesFailed
	}
	if failed > 0 {
		return errPagesFailed
	}
	return nil
}

// printOutcomes writes page paths and asset failures to stdout and page errors
// to stderr. It returns the number of failed pages.
func printOutcomes(stdout, stderr io.Writer, outcomes []batch.PageOutcome) int {
	failed := 0
	for _, o := range outcomes {
		if !o.Succeeded() {
			failed++
			fmt.Fprintf(stderr, "Error: %s: %v\n", o.URL, o.Err)
			continue
		}
		fmt.Fprintln(stdout, o.Result.PagePath)
		for _, r := range o.Result.Failed() {
			fmt.Fprintf(stdout, "asset failed: %s (%s)\n", r.Asset.URL(), r.Reason)
		}
	}
	return failed
}
