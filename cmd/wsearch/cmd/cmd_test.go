package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/wsearch/pkg/version"
)

// runCommand executes the CLI against a throwaway database with the
// static embedder, returning stdout.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runCommandWithDB(t, filepath.Join(t.TempDir(), "test.db"), args...)
}

func runCommandWithDB(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("WSEARCH_DB_PATH", dbPath)
	t.Setenv("WSEARCH_EMBEDDER", "static")
	t.Setenv("WSEARCH_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "wsearch")
	assert.Contains(t, out, version.Version)
}

func TestVersionCommandJSON(t *testing.T) {
	out, err := runCommand(t, "version", "--json")
	require.NoError(t, err)

	var info version.BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Version, info.Version)
}

func TestEnqueueCommand(t *testing.T) {
	out, err := runCommand(t, "enqueue", "page", "p1", "--workspace", "ws-1")
	require.NoError(t, err)
	assert.Contains(t, out, "queued task")
}

func TestEnqueueRejectsUnknownEntityType(t *testing.T) {
	_, err := runCommand(t, "enqueue", "widget", "w1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown entity type")
}

func TestEnqueueRejectsUnknownOperation(t *testing.T) {
	_, err := runCommand(t, "enqueue", "page", "p1", "--op", "reheat")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown operation")
}

func TestStatusCommandJSON(t *testing.T) {
	out, err := runCommand(t, "status", "--json")
	require.NoError(t, err)

	var report statusReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.False(t, report.HasContent)
}

func TestSearchCommandEmptyIndex(t *testing.T) {
	out, err := runCommand(t, "search", "anything")
	require.NoError(t, err)
	assert.Contains(t, out, "No content has been indexed yet")
}

func TestWorkerCommandRequiresContent(t *testing.T) {
	_, err := runCommand(t, "worker", "--once")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--content is required")
}

func TestEnqueueWorkerSearchRoundTrip(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "e2e.db")

	fixture := `{
  "pages": [{"id": "p1", "workspace_id": "ws-1", "title": "Release Notes", "block_ids": ["b1"]}],
  "blocks": [{"id": "b1", "page_id": "p1", "kind": "paragraph",
              "properties": {"text": "The incident postmortem is scheduled for Friday."}}]
}`
	fixturePath := filepath.Join(dir, "workspace.json")
	require.NoError(t, os.WriteFile(fixturePath, []byte(fixture), 0o644))

	out, err := runCommandWithDB(t, dbPath, "enqueue", "page", "p1", "--workspace", "ws-1")
	require.NoError(t, err)
	require.Contains(t, out, "queued task")

	out, err = runCommandWithDB(t, dbPath, "worker", "--once", "--content", fixturePath)
	require.NoError(t, err)
	assert.Contains(t, out, "processed 1 task(s)")

	out, err = runCommandWithDB(t, dbPath, "search", "incident postmortem", "--workspace", "ws-1")
	require.NoError(t, err)
	assert.Contains(t, out, "b1")

	out, err = runCommandWithDB(t, dbPath, "status", "--json")
	require.NoError(t, err)
	var report statusReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.HasContent)
	assert.Equal(t, 1, report.Tasks["completed"])
}
