// Package mcp exposes page downloads as Model Context Protocol tools.
package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/Sriram-PR/page-loader/pkg/config"
	"github.com/Sriram-PR/page-loader/pkg/loader"
	"github.com/Sriram-PR/page-loader/pkg/storage"
)

const (
	serverName    = "page-loader"
	serverVersion = "1.0.0"

	originIdleTimeout = 5 * time.Minute
)

// ServerConfig holds configuration for the MCP server
type ServerConfig struct {
	AppConfig *config.AppConfig
	OutputDir string // Default output directory for tools that omit output_dir
	Transport string // "stdio" or "sse"
	Port      int
	Logger    *logrus.Logger
	Store     storage.OutcomeStore // Optional run history; enables recent_runs
}

// Server wraps the MCP server with page download tools
type Server struct {
	mcpServer  *server.MCPServer
	cfg        *ServerConfig
	log        *logrus.Entry
	loader     *loader.Loader
	jobManager *JobManager
	jobGate    *semaphore.Weighted // Bounds running jobs to MaxConcurrentPages
	stopEvict  context.CancelFunc
}

// NewServer creates a new MCP server instance
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("AppConfig is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	log := cfg.Logger.WithField("component", "mcp")
	return newServer(cfg, loader.New(cfg.AppConfig, cfg.Store, log), log), nil
}

func newServer(cfg *ServerConfig, l *loader.Loader, log *logrus.Entry) *Server {
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}

	mcpServer := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithLogging(),
	)

	s := &Server{
		mcpServer:  mcpServer,
		cfg:        cfg,
		log:        log,
		loader:     l,
		jobManager: NewJobManager(),
		jobGate:    semaphore.NewWeighted(int64(max(cfg.AppConfig.MaxConcurrentPages, 1))),
	}

	s.registerTools()
	return s
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	downloadPageTool := mcp.NewTool("download_page",
		mcp.WithDescription("Download a web page with its same-origin stylesheets, scripts and images, and rewrite the page to use the local copies. Waits for completion."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Absolute http(s) URL of the page"),
		),
		mcp.WithString("output_dir",
			mcp.Description("Directory to write into (defaults to the server's output directory)"),
		),
		mcp.WithNumber("concurrency",
			mcp.Description("Asset download workers for this page (1-64, defaults to the configured value)"),
		),
	)
	s.mcpServer.AddTool(downloadPageTool, s.handleDownloadPage)

	startDownloadTool := mcp.NewTool("start_download",
		mcp.WithDescription("Start a background page download. Returns immediately with a job ID."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Absolute http(s) URL of the page"),
		),
		mcp.WithString("output_dir",
			mcp.Description("Directory to write into (defaults to the server's output directory)"),
		),
	)
	s.mcpServer.AddTool(startDownloadTool, s.handleStartDownload)

	getJobStatusTool := mcp.NewTool("get_job_status",
		mcp.WithDescription("Get the status of a download job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("The job ID returned by start_download"),
		),
	)
	s.mcpServer.AddTool(getJobStatusTool, s.handleGetJobStatus)

	listJobsTool := mcp.NewTool("list_jobs",
		mcp.WithDescription("List all download jobs of this server, oldest first"),
	)
	s.mcpServer.AddTool(listJobsTool, s.handleListJobs)

	cancelJobTool := mcp.NewTool("cancel_job",
		mcp.WithDescription("Cancel a pending or running download job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("The job ID returned by start_download"),
		),
	)
	s.mcpServer.AddTool(cancelJobTool, s.handleCancelJob)

	toolCount := 5
	if s.cfg.Store != nil {
		recentRunsTool := mcp.NewTool("recent_runs",
			mcp.WithDescription("List recorded page downloads, newest first"),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of runs to return (default: 10, max: 100)"),
			),
		)
		s.mcpServer.AddTool(recentRunsTool, s.handleRecentRuns)
		toolCount++
	}

	s.log.Infof("Registered %d MCP tools", toolCount)
}

// Run starts the MCP server with the configured transport
func (s *Server) Run() error {
	switch s.cfg.Transport {
	case "", "stdio", "sse":
		evictCtx, cancel := context.WithCancel(context.Background())
		s.stopEvict = cancel
		go s.loader.RunOriginEviction(evictCtx, originIdleTimeout)
	}

	switch s.cfg.Transport {
	case "", "stdio":
		s.log.Info("Starting MCP server with stdio transport")
		return server.ServeStdio(s.mcpServer)
	case "sse":
		addr := fmt.Sprintf(":%d", s.cfg.Port)
		s.log.Infof("Starting MCP server with SSE transport on %s", addr)
		sseServer := server.NewSSEServer(s.mcpServer)
		return sseServer.Start(addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, sse)", s.cfg.Transport)
	}
}

// Shutdown cancels running jobs
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down MCP server...")
	s.jobManager.CancelAll()
	if s.stopEvict != nil {
		s.stopEvict()
	}
	return nil
}
