package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/forumwatch/internal/pipeline"
	"github.com/JakeFAU/forumwatch/internal/radar"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "forumwatch.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("logging:\n  development: false\nschedule:\n  enabled: false\n"), 0o600))
	root.SetArgs(append(args, "--config", cfgPath, "--env-file", filepath.Join(dir, "missing.env")))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestScanCommandPrintsSummary(t *testing.T) {
	out, err := execute(t, "scan")
	require.NoError(t, err)

	var summary pipeline.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.True(t, summary.OK)
	assert.NotEmpty(t, summary.ScanID)
	assert.Zero(t, summary.ScannedDomains)
}

func TestRunCommandWithoutAPIKeyStillSucceeds(t *testing.T) {
	t.Setenv("FORUMWATCH_COMPLETION_API_KEY", "")
	out, err := execute(t, "run")
	require.NoError(t, err)
	assert.Contains(t, out, `"ok": true`)
}

func TestDiscoverCommandReportsMissingKey(t *testing.T) {
	t.Setenv("FORUMWATCH_COMPLETION_API_KEY", "")
	_, err := execute(t, "discover")
	require.ErrorIs(t, err, radar.ErrMissingAPIKey)
}

func TestSourcesAddDetectsPlatform(t *testing.T) {
	out, err := execute(t, "sources", "add", "www.boards.test", "--url", "https://boards.test/viewforum.php?f=2")
	require.NoError(t, err)

	var src radar.Source
	require.NoError(t, json.Unmarshal([]byte(out), &src))
	assert.Equal(t, "boards.test", src.Host)
	assert.Equal(t, radar.PlatformPHPBB, src.Platform)
}

func TestSourcesPauseUnknownHost(t *testing.T) {
	_, err := execute(t, "sources", "pause", "missing.test")
	require.ErrorIs(t, err, radar.ErrNotFound)
}

func TestInvalidConfigFailsFast(t *testing.T) {
	t.Setenv("FORUMWATCH_STORAGE_DRIVER", "sqlite")
	_, err := execute(t, "scan")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.driver")
}
