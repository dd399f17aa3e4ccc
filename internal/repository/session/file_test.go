package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/packwiz-deploy/internal/domain/deploy"
)

// TestFileRepository_NotFound verifies Load returns ErrNotFound for a missing file.
func TestFileRepository_NotFound(t *testing.T) {
	t.Parallel()

	repo := NewFileRepository(filepath.Join(t.TempDir(), DefaultFilename))
	s, err := repo.Load(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
	require.Nil(t, s)
}

// TestFileRepository_SaveLoadRemove stores a session, reads it back and removes it.
func TestFileRepository_SaveLoadRemove(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), DefaultFilename)
	repo := NewFileRepository(file)

	want := &deploy.Session{
		RunID:      "7f1c2f4e-3b64-4d0e-9d59-0c4be1f3a911",
		PID:        4242,
		Port:       8123,
		RootDir:    "/srv/pack",
		InstallDir: "/srv/pack/.server",
		LogPath:    "/srv/pack/.bin/packwiz-serve.log",
		StartedAt:  time.Now().UTC().Truncate(time.Second),
	}

	require.NoError(t, repo.Save(context.Background(), want))

	got, err := repo.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, want.RunID, got.RunID)
	require.Equal(t, want.PID, got.PID)
	require.Equal(t, want.Port, got.Port)
	require.Equal(t, want.InstallDir, got.InstallDir)
	require.Equal(t, want.StartedAt.Unix(), got.StartedAt.Unix())

	require.NoError(t, repo.Remove(context.Background()))

	_, err = os.Stat(file)
	require.ErrorIs(t, err, os.ErrNotExist)

	// Removing twice is fine.
	require.NoError(t, repo.Remove(context.Background()))
}

// TestFileRepository_CorruptFile reports a decode error.
func TestFileRepository_CorruptFile(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), DefaultFilename)
	require.NoError(t, os.WriteFile(file, []byte("pid: [not a number"), 0o644))

	_, err := NewFileRepository(file).Load(context.Background())
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotFound)
}
