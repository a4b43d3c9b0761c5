package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/page-loader/pkg/loader"
	"github.com/Sriram-PR/page-loader/pkg/models"
	"github.com/Sriram-PR/page-loader/pkg/utils"
)

const (
	maxToolConcurrency = 64
	defaultRecentRuns  = 10
	maxRecentRuns      = 100
)

// handleDownloadPage handles the download_page tool
func (s *Server) handleDownloadPage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	urlStr := request.GetString("url", "")
	if urlStr == "" {
		return mcp.NewToolResultError("url parameter is required"), nil
	}
	outputDir := request.GetString("output_dir", s.cfg.OutputDir)

	l := s.loader
	if concurrency := request.GetInt("concurrency", 0); concurrency != 0 {
		if concurrency < 1 || concurrency > maxToolConcurrency {
			return mcp.NewToolResultError(fmt.Sprintf("concurrency must be between 1 and %d", maxToolConcurrency)), nil
		}
		if concurrency != s.cfg.AppConfig.Concurrency {
			l = s.loader.WithConcurrency(concurrency)
		}
	}

	result, err := l.DownloadPage(ctx, urlStr, outputDir)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("download failed (%s): %v", utils.CategorizeError(err), err)), nil
	}
	return mcp.NewToolResultText(formatJSON(pageSummary(result))), nil
}

// handleStartDownload handles the start_download tool
func (s *Server) handleStartDownload(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	urlStr := request.GetString("url", "")
	if urlStr == "" {
		return mcp.NewToolResultError("url parameter is required"), nil
	}
	outputDir := request.GetString("output_dir", s.cfg.OutputDir)

	req := models.PageRequest{SourceURL: urlStr, OutputDir: outputDir}
	if err := req.Validate(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid request: %v", err)), nil
	}

	job, created := s.jobManager.CreateJob(urlStr, outputDir)
	if !created {
		result := map[string]interface{}{
			"status":  "already_running",
			"message": "A download of this URL into this directory is already in progress",
			"job_id":  job.ID,
			"url":     urlStr,
		}
		return mcp.NewToolResultText(formatJSON(result)), nil
	}

	go s.runDownloadJob(job.ID, urlStr, outputDir)

	result := map[string]interface{}{
		"status":     "started",
		"message":    "Download started",
		"job_id":     job.ID,
		"url":        urlStr,
		"output_dir": outputDir,
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleGetJobStatus handles the get_job_status tool
func (s *Server) handleGetJobStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}

	job := s.jobManager.GetJob(jobID)
	if job == nil {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found", jobID)), nil
	}
	return mcp.NewToolResultText(formatJSON(jobSummary(job))), nil
}

// handleListJobs handles the list_jobs tool
func (s *Server) handleListJobs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobs := s.jobManager.ListJobs()
	summaries := make([]map[string]interface{}, 0, len(jobs))
	for _, job := range jobs {
		summaries = append(summaries, jobSummary(job))
	}

	result := map[string]interface{}{
		"jobs":       summaries,
		"total_jobs": len(summaries),
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleCancelJob handles the cancel_job tool
func (s *Server) handleCancelJob(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}
	if s.jobManager.GetJob(jobID) == nil {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found", jobID)), nil
	}

	cancelled := s.jobManager.CancelJob(jobID)
	job := s.jobManager.GetJob(jobID)
	result := map[string]interface{}{
		"job_id":    jobID,
		"cancelled": cancelled,
		"status":    job.Status,
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleRecentRuns handles the recent_runs tool
func (s *Server) handleRecentRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", defaultRecentRuns)
	if limit <= 0 {
		limit = defaultRecentRuns
	}
	if limit > maxRecentRuns {
		limit = maxRecentRuns
	}

	runs, err := s.cfg.Store.RecentRuns(limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read run history: %v", err)), nil
	}
	result := map[string]interface{}{
		"runs":       runs,
		"total_runs": len(runs),
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// runDownloadJob runs a download job in the background once a job slot is free
func (s *Server) runDownloadJob(jobID, rawURL, outputDir string) {
	jobCtx := s.jobManager.GetContext(jobID)
	jobLog := s.log.WithFields(logrus.Fields{"job_id": jobID, "url": rawURL})

	if err := s.jobGate.Acquire(jobCtx, 1); err != nil {
		jobLog.Info("Job cancelled before it started")
		s.jobManager.Finish(jobID, JobStatusCancelled, "", utils.CategorizeError(err), "")
		return
	}
	defer s.jobGate.Release(1)

	s.jobManager.SetRunning(jobID)
	jobLog.Info("Job started")
	progress := loader.Progress{
		OnStage: func(stage models.Stage) { s.jobManager.SetStage(jobID, stage) },
		OnAsset: func(r models.DownloadResult) { s.jobManager.AssetFinished(jobID, r) },
	}

	result, err := s.loader.DownloadPageWithProgress(jobCtx, rawURL, outputDir, progress)
	switch {
	case err == nil:
		s.jobManager.Finish(jobID, JobStatusCompleted, result.PagePath, "", "")
	case errors.Is(err, context.Canceled):
		s.jobManager.Finish(jobID, JobStatusCancelled, "", utils.CategorizeError(err), err.Error())
	default:
		s.jobManager.Finish(jobID, JobStatusFailed, "", utils.CategorizeError(err), err.Error())
	}
}

// pageSummary builds the tool output for a finished page
func pageSummary(result *models.PageResult) map[string]interface{} {
	failed := result.Failed()
	failures := make([]map[string]interface{}, 0, len(failed))
	for _, r := range failed {
		failure := map[string]interface{}{
			"url":        r.Asset.URL(),
			"local_path": r.Asset.LocalPath,
			"reason":     r.Reason,
		}
		if r.Err != nil {
			failure["error"] = r.Err.Error()
		}
		failures = append(failures, failure)
	}

	return map[string]interface{}{
		"run_id":        result.RunID,
		"page_path":     result.PagePath,
		"final_url":     result.FinalURL,
		"assets_dir":    result.AssetsDir,
		"assets_total":  len(result.Assets),
		"assets_failed": len(failed),
		"failures":      failures,
	}
}

// jobSummary builds the tool output for a job
func jobSummary(job *Job) map[string]interface{} {
	result := map[string]interface{}{
		"job_id":        job.ID,
		"url":           job.URL,
		"output_dir":    job.OutputDir,
		"status":        job.Status,
		"started_at":    job.StartedAt.Format(time.RFC3339),
		"assets_done":   job.AssetsDone,
		"assets_failed": job.AssetsFailed,
	}
	if job.Stage != "" {
		result["stage"] = job.Stage
	}
	if job.PagePath != "" {
		result["page_path"] = job.PagePath
	}
	if !job.CompletedAt.IsZero() {
		result["completed_at"] = job.CompletedAt.Format(time.RFC3339)
		result["duration_seconds"] = job.CompletedAt.Sub(job.StartedAt).Seconds()
	}
	if job.ErrorType != "" {
		result["error_type"] = job.ErrorType
	}
	if job.ErrorMessage != "" {
		result["error_message"] = job.ErrorMessage
	}
	return result
}

// formatJSON formats data as an indented JSON string
func formatJSON(data map[string]interface{}) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": %q}", err.Error())
	}
	return string(b)
}
