package main

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/page-loader/pkg/storage"
	"github.com/Sriram-PR/page-loader/pkg/utils"
)

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func siteServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/courses", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html><head><link rel="stylesheet" href="/assets/missing.css"></head><body><img src="/assets/logo.png"></body></html>`)
	})
	mux.HandleFunc("/assets/logo.png", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("png")) })
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRoot_DownloadsPage(t *testing.T) {
	server := siteServer(t)
	out := t.TempDir()

	stdout, _, err := execute(t, server.URL+"/courses", "-o", out, "--log-level", "error")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	pagePath := lines[0]
	assert.Equal(t, out, filepath.Dir(pagePath))
	assert.True(t, strings.HasSuffix(pagePath, "-courses.html"))
	assert.Equal(t, "asset failed: "+server.URL+"/assets/missing.css (HTTP_404)", lines[1])

	_, statErr := os.Stat(pagePath)
	assert.NoError(t, statErr)
}

func TestRoot_PageFailureExitsNonZero(t *testing.T) {
	server := siteServer(t)

	stdout, stderr, err := execute(t, server.URL+"/missing", "-o", t.TempDir(), "--log-level", "error")

	require.Error(t, err)
	assert.True(t, errors.Is(err, errPagesFailed))
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "Error: "+server.URL+"/missing")
}

func TestRoot_MixedBatch(t *testing.T) {
	server := siteServer(t)

	stdout, stderr, err := execute(t, server.URL+"/courses", server.URL+"/gone", "-o", t.TempDir(), "--log-level", "error")

	assert.True(t, errors.Is(err, errPagesFailed))
	assert.Contains(t, stdout, "-courses.html")
	assert.Contains(t, stderr, "/gone")
}

func TestRoot_RequiresURL(t *testing.T) {
	_, _, err := execute(t)
	assert.Error(t, err)
}

func TestRoot_TreeAndManifest(t *testing.T) {
	server := siteServer(t)
	out := t.TempDir()

	stdout, _, err := execute(t, server.URL+"/courses", "-o", out, "--tree", "--manifest", "--log-level", "error")
	require.NoError(t, err)

	assert.Contains(t, stdout, filepath.Base(out)+"/")
	assert.Contains(t, stdout, "_files")
	matches, err := filepath.Glob(filepath.Join(out, "*.manifest.yaml"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestRoot_OutputFromEnvironment(t *testing.T) {
	server := siteServer(t)
	out := t.TempDir()
	t.Setenv(envOutput, out)

	stdout, _, err := execute(t, server.URL+"/courses", "--log-level", "error")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, out+string(filepath.Separator)))
}

func TestRoot_InvalidConfigOverride(t *testing.T) {
	server := siteServer(t)

	_, _, err := execute(t, server.URL+"/courses", "-o", t.TempDir(), "-j", "500", "--log-level", "error")

	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrConfigValidation))
}

func TestRoot_RecordAndReport(t *testing.T) {
	server := siteServer(t)
	stateDir := t.TempDir()
	cfgPath := writeConfig(t, "state_dir: "+stateDir+"\n")

	_, _, err := execute(t, server.URL+"/courses", "-o", t.TempDir(), "-c", cfgPath, "--record", "--log-level", "error")
	require.NoError(t, err)

	stdout, _, err := execute(t, "report", "-c", cfgPath, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, stdout, "RUN ID")
	assert.Contains(t, stdout, server.URL+"/courses")
	assert.Contains(t, stdout, "success")

	stdout, _, err = execute(t, "report", "--state-dir", stateDir, "--run", "no-such-run", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No assets recorded")
}

func TestReport_EmptyHistory(t *testing.T) {
	stdout, _, err := execute(t, "report", "--state-dir", t.TempDir(), "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No recorded runs.")
}

func TestValidateConfig(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		stdout, _, err := execute(t, "validate-config", "-c", writeConfig(t, "concurrency: 4\nmax_retries: -1\n"))
		require.NoError(t, err)
		assert.Contains(t, stdout, "WARN: max_retries cannot be negative")
		assert.Contains(t, stdout, "Configuration OK: concurrency=4")
	})

	t.Run("unknown field", func(t *testing.T) {
		_, stderr, err := execute(t, "validate-config", "-c", writeConfig(t, "concurency: 4\n"))
		require.Error(t, err)
		assert.Contains(t, stderr, "concurency")
	})

	t.Run("out of range", func(t *testing.T) {
		_, stderr, err := execute(t, "validate-config", "-c", writeConfig(t, "concurrency: 100\n"))
		require.Error(t, err)
		assert.Contains(t, stderr, "Concurrency")
	})

	t.Run("config required", func(t *testing.T) {
		t.Setenv(envConfig, "")
		_, _, err := execute(t, "validate-config")
		assert.ErrorContains(t, err, "--config is required")
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("empty path yields empty config", func(t *testing.T) {
		cfg, err := loadConfig("")
		require.NoError(t, err)
		assert.Zero(t, cfg.Concurrency)
	})

	t.Run("file not found", func(t *testing.T) {
		_, err := loadConfig("/nonexistent/path/config.yaml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read config")
	})

	t.Run("invalid YAML", func(t *testing.T) {
		_, err := loadConfig(writeConfig(t, "{{invalid yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse config")
	})
}

func TestMcpServer_UnknownTransport(t *testing.T) {
	_, _, err := execute(t, "mcp-server", "--transport", "carrier-pigeon")
	assert.ErrorContains(t, err, "unknown transport")
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "page-loader "+version+"\n", stdout)
}

func TestSetupLogger_InvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := setupLogger("chatty", &buf)
	assert.Equal(t, "info", log.GetLevel().String())
	assert.Contains(t, buf.String(), "Invalid log level")
}

func TestReport_VerifyRun(t *testing.T) {
	server := siteServer(t)
	stateDir := t.TempDir()
	out := t.TempDir()

	stdout, _, err := execute(t, server.URL+"/courses", "-o", out, "--record", "--log-level", "error", "-c", writeConfig(t, "state_dir: "+stateDir+"\n"))
	require.NoError(t, err)
	pagePath := strings.SplitN(stdout, "\n", 2)[0]

	store, err := storage.NewBadgerStore(stateDir, logrus.NewEntry(logrus.New()))
	require.NoError(t, err)
	runs, err := store.RecentRuns(1)
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.Len(t, runs, 1)
	runID := runs[0].RunID

	stdout, _, err = execute(t, "report", "--state-dir", stateDir, "--run", runID, "--verify", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, stdout, "CHECK")
	assert.Regexp(t, `success.*logo\.png.*ok`, stdout)
	assert.Regexp(t, `failure.*missing\.css.*HTTP_404\s+-`, stdout)

	filesDir := strings.TrimSuffix(pagePath, ".html") + "_files"
	logos, err := filepath.Glob(filepath.Join(filesDir, "*logo.png"))
	require.NoError(t, err)
	require.Len(t, logos, 1)
	require.NoError(t, os.WriteFile(logos[0], []byte("tampered"), 0644))

	stdout, _, err = execute(t, "report", "--state-dir", stateDir, "--run", runID, "--verify", "--log-level", "error")
	require.NoError(t, err)
	assert.Regexp(t, `logo\.png.*modified`, stdout)

	_, _, err = execute(t, "report", "--state-dir", stateDir, "--run", "unknown", "--verify", "--log-level", "error")
	require.NoError(t, err, "a run without assets has nothing to verify")
}
