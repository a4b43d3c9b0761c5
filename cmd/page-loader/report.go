package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sriram-PR/page-loader/pkg/models"
	"github.com/Sriram-PR/page-loader/pkg/storage"
	"github.com/Sriram-PR/page-loader/pkg/utils"
)

func newReportCmd(global *globalOptions) *cobra.Command {
	var (
		stateDir string
		limit    int
		runID    string
		verify   bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show recorded page downloads",
		Long:  "Lists runs recorded with --record, newest first, or the asset outcomes of one run with --run.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := setupLogger(global.logLevel, cmd.ErrOrStderr())

			if stateDir == "" {
				appCfg, err := loadConfig(global.configPath)
				if err != nil {
					return err
				}
				if err := validateConfig(appCfg, log); err != nil {
					return err
				}
				stateDir = appCfg.StateDir
			}

			store, err := storage.NewBadgerStore(stateDir, log.WithField("component", "storage"))
			if err != nil {
				return err
			}
			defer store.Close()

			if runID != "" {
				return writeRunAssets(cmd.OutOrStdout(), store, runID, verify)
			}
			return writeRecentRuns(cmd.OutOrStdout(), store, limit)
		},
	}
	cmd.Flags().StringVar(&stateDir, "state-dir", "", "State directory (default: state_dir from config)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list (0 = all)")
	cmd.Flags().StringVar(&runID, "run", "", "Show the asset outcomes of one run")
	cmd.Flags().BoolVar(&verify, "verify", false, "With --run, check saved assets against their recorded SHA-256")
	return cmd
}

// writeRecentRuns prints a table of the newest runs
func writeRecentRuns(w io.Writer, store storage.OutcomeStore, limit int) error {
	runs, err := store.RecentRuns(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No recorded runs.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTARTED\tSTATUS\tASSETS\tFAILED\tURL\tDETAIL")
	for _, r := range runs {
		detail := r.PagePath
		if r.Status == models.PageStatusFailure {
			detail = r.ErrorType
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			r.RunID, r.StartedAt.Local().Format(time.DateTime), r.Status, r.AssetsTotal, r.AssetsFailed, r.SourceURL, detail)
	}
	return tw.Flush()
}

// writeRunAssets prints the asset outcomes of one run. With verify, saved
// assets are re-hashed and compared with the recorded digest.
func writeRunAssets(w io.Writer, store storage.OutcomeStore, runID string, verify bool) error {
	assets, err := store.AssetsForRun(runID)
	if err != nil {
		return err
	}
	if len(assets) == 0 {
		fmt.Fprintf(w, "No assets recorded for run %s.\n", runID)
		return nil
	}

	var outputDir string
	if verify {
		run, err := findRun(store, runID)
		if err != nil {
			return err
		}
		if run.PagePath == "" {
			return fmt.Errorf("run %s wrote no page; nothing to verify", runID)
		}
		outputDir = filepath.Dir(run.PagePath)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := "STATUS\tBYTES\tLOCAL PATH\tURL\tERROR"
	if verify {
		header += "\tCHECK"
	}
	fmt.Fprintln(tw, header)
	for _, a := range assets {
		line := fmt.Sprintf("%s\t%d\t%s\t%s\t%s", a.Status, a.Bytes, a.LocalPath, a.URL, a.ErrorType)
		if verify {
			line += "\t" + verifyAsset(outputDir, a)
		}
		fmt.Fprintln(tw, line)
	}
	return tw.Flush()
}

// findRun looks a run up in the history
func findRun(store storage.OutcomeStore, runID string) (models.RunRecord, error) {
	runs, err := store.RecentRuns(0)
	if err != nil {
		return models.RunRecord{}, err
	}
	for _, r := range runs {
		if r.RunID == runID {
			return r, nil
		}
	}
	return models.RunRecord{}, fmt.Errorf("run %s not found", runID)
}

func verifyAsset(outputDir string, a models.AssetRecord) string {
	if a.Status != models.AssetStatusSuccess || a.SHA256 == "" {
		return "-"
	}
	ok, err := utils.VerifyFileSHA256(filepath.Join(outputDir, filepath.FromSlash(a.LocalPath)), a.SHA256)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return "missing"
	case err != nil:
		return "error"
	case !ok:
		return "modified"
	}
	return "ok"
}
