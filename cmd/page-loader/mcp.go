package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sriram-PR/page-loader/pkg/mcp"
	"github.com/Sriram-PR/page-loader/pkg/storage"
)

func newMcpServerCmd(global *globalOptions) *cobra.Command {
	var (
		transport string
		port      int
		record    bool
	)

	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Start an MCP server for AI tool integration",
		Long: `Start an MCP (Model Context Protocol) server exposing page downloads as tools.

Available MCP Tools:
  download_page   Download a page and its assets, waiting for completion
  start_download  Start a background page download
  get_job_status  Get the status of a download job
  list_jobs       List download jobs
  cancel_job      Cancel a download job
  recent_runs     List recorded runs (with --record)`,
		Example: `  # Start with stdio transport
  page-loader mcp-server -c config.yaml

  # Start with SSE transport on port 8080
  page-loader mcp-server --transport sse --port 8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMcpServer(cmd, global, transport, port, record)
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport type (stdio, sse)")
	cmd.Flags().IntVar(&port, "port", 8080, "HTTP port (for sse transport)")
	cmd.Flags().BoolVar(&record, "record", false, "Record outcomes in the state directory")
	return cmd
}

// runMcpServer serves until the transport stops; logs go to stderr because
// the stdio transport owns stdout
func runMcpServer(cmd *cobra.Command, global *globalOptions, transport string, port int, record bool) error {
	if transport != "stdio" && transport != "sse" {
		return fmt.Errorf("unknown transport: %s (supported: stdio, sse)", transport)
	}
	log := setupLogger(global.logLevel, cmd.ErrOrStderr())

	appCfg, err := loadConfig(global.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("record") {
		appCfg.RecordOutcomes = record
	}
	if err := validateConfig(appCfg, log); err != nil {
		return err
	}
	logAppConfig(appCfg, log)

	outputDir, err := resolveOutputDir(global.output)
	if err != nil {
		return err
	}

	serverCfg := &mcp.ServerConfig{
		AppConfig: appCfg,
		OutputDir: outputDir,
		Transport: transport,
		Port:      port,
		Logger:    log,
	}
	if appCfg.RecordOutcomes {
		store, err := storage.NewBadgerStore(appCfg.StateDir, log.WithField("component", "storage"))
		if err != nil {
			return err
		}
		defer store.Close()
		serverCfg.Store = store
	}

	server, err := mcp.NewServer(serverCfg)
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}
	defer server.Shutdown(context.Background())

	log.Infof("Starting MCP server (transport: %s)", transport)
	if err := server.Run(); err != nil {
		return fmt.Errorf("MCP server: %w", err)
	}
	return nil
}
