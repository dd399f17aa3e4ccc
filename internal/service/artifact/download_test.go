package artifact

import (
	"context"
	"crypto/sha256"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// jarServer serves body at /bootstrap.jar and 404 elsewhere.
func jarServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/bootstrap.jar", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(body)
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return ts
}

// TestDownload_WritesNewFile downloads into a missing target.
func TestDownload_WritesNewFile(t *testing.T) {
	t.Parallel()

	body := []byte("PK\x03\x04 fake jar")
	ts := jarServer(t, body)
	target := filepath.Join(t.TempDir(), BootstrapFilename)

	err := NewDownloader().Download(context.Background(), ts.URL+"/bootstrap.jar", target)
	require.NoError(t, err)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, body, got)
}

// TestDownload_ReplacesExistingFile overwrites a stale jar.
func TestDownload_ReplacesExistingFile(t *testing.T) {
	t.Parallel()

	body := []byte("new release")
	ts := jarServer(t, body)
	target := filepath.Join(t.TempDir(), BootstrapFilename)
	require.NoError(t, os.WriteFile(target, []byte("old release"), DefaultFileMode))

	sum := sha256.Sum256(body)

	err := NewDownloader(WithChecksum(sum[:])).Download(context.Background(), ts.URL+"/bootstrap.jar", target)
	require.NoError(t, err)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, body, got)
}

// TestDownload_ChecksumMismatchKeepsOldFile leaves the previous jar in place.
func TestDownload_ChecksumMismatchKeepsOldFile(t *testing.T) {
	t.Parallel()

	ts := jarServer(t, []byte("tampered"))
	target := filepath.Join(t.TempDir(), BootstrapFilename)
	require.NoError(t, os.WriteFile(target, []byte("old release"), DefaultFileMode))

	sum := sha256.Sum256([]byte("expected"))

	err := NewDownloader(WithChecksum(sum[:])).Download(context.Background(), ts.URL+"/bootstrap.jar", target)
	require.Error(t, err)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, []byte("old release"), got)
}

// TestDownload_ChecksumMismatchLeavesNoPlaceholder does not fake a present jar.
func TestDownload_ChecksumMismatchLeavesNoPlaceholder(t *testing.T) {
	t.Parallel()

	ts := jarServer(t, []byte("tampered"))
	target := filepath.Join(t.TempDir(), BootstrapFilename)

	sum := sha256.Sum256([]byte("expected"))

	err := NewDownloader(WithChecksum(sum[:])).Download(context.Background(), ts.URL+"/bootstrap.jar", target)
	require.Error(t, err)

	_, err = os.Stat(target)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestDownload_BadStatus fails on a non-200 response without touching the target.
func TestDownload_BadStatus(t *testing.T) {
	t.Parallel()

	ts := jarServer(t, nil)
	target := filepath.Join(t.TempDir(), BootstrapFilename)

	err := NewDownloader(WithHTTPClient(ts.Client())).Download(context.Background(), ts.URL+"/missing.jar", target)
	require.ErrorIs(t, err, errBadHTTPStatus)

	_, err = os.Stat(target)
	require.ErrorIs(t, err, os.ErrNotExist)
}
