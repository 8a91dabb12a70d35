package cmd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/replaydiff/internal/replay"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(new(bytes.Buffer))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunCommandReportsSummary(t *testing.T) {
	oldSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.RawQuery))
	}))
	defer oldSrv.Close()
	newSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("same"))
	}))
	defer newSrv.Close()

	path := filepath.Join(t.TempDir(), "replay.log")
	require.NoError(t, os.WriteFile(path, []byte("same\nother\n"), 0o600))

	out, err := execute(t, "run",
		"--old-url", oldSrv.URL,
		"--new-url", newSrv.URL,
		"-c", "2",
		"--log-path", path,
		"--dev-logs=false",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "succeeded=2 failed=0 diffs=1 workers=2")
}

func TestRunCommandRequiresURLs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replay.log")
	require.NoError(t, os.WriteFile(path, []byte("a=1\n"), 0o600))

	_, err := execute(t, "run", "--log-path", path, "--new-url", "http://new")
	require.ErrorIs(t, err, replay.ErrMissingURL)
}

func TestRunCommandRejectsUnknownMethod(t *testing.T) {
	_, err := execute(t, "run",
		"--old-url", "http://old",
		"--new-url", "http://new",
		"--method", "PUT",
		"--log-path", "replay.log",
	)
	require.ErrorIs(t, err, replay.ErrUnsupportedMethod)
}

func TestRunCommandMissingLog(t *testing.T) {
	_, err := execute(t, "run",
		"--old-url", "http://old",
		"--new-url", "http://new",
		"--log-path", filepath.Join(t.TempDir(), "missing.log"),
		"--dev-logs=false",
	)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestRunCommandReadsConfigFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	logPath := filepath.Join(dir, "replay.log")
	require.NoError(t, os.WriteFile(logPath, []byte("a=1\na=2\na=3\n"), 0o600))
	cfgPath := filepath.Join(dir, "replaydiff.yaml")
	cfgBody := "replay:\n  old_url: " + srv.URL + "\n  new_url: " + srv.URL +
		"\n  concurrency: 4\n  log_path: " + logPath + "\nlogging:\n  development: false\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgBody), 0o600))

	out, err := execute(t, "--config", cfgPath, "run", "-c", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "succeeded=3 failed=0 diffs=0 workers=1")
}
