package stopper

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/packwiz-deploy/internal/domain/deploy"
	"github.com/oshokin/packwiz-deploy/internal/repository/session"
)

// helperEnv makes the test binary idle like a long-running package server.
const helperEnv = "PACKWIZ_DEPLOY_STOPPER_HELPER"

// TestMain lets the test binary stand in for packwiz serve when helperEnv is set.
func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "idle" {
		time.Sleep(time.Minute)
		os.Exit(0)
	}

	os.Exit(m.Run())
}

// startIdle launches the test binary as a fake package server.
func startIdle(t *testing.T) (*exec.Cmd, string) {
	t.Helper()

	executable, err := os.Executable()
	require.NoError(t, err)

	cmd := exec.Command(executable)
	cmd.Env = append(os.Environ(), helperEnv+"=idle")
	require.NoError(t, cmd.Start())

	t.Cleanup(func() {
		_ = cmd.Process.Kill()
	})

	return cmd, executable
}

func newRepo(t *testing.T, record *deploy.Session) *session.FileRepository {
	t.Helper()

	repo := session.NewFileRepository(filepath.Join(t.TempDir(), session.DefaultFilename))
	if record != nil {
		require.NoError(t, repo.Save(context.Background(), record))
	}

	return repo
}

// TestStop_NothingRecorded succeeds without a session.
func TestStop_NothingRecorded(t *testing.T) {
	t.Parallel()

	result, err := New(newRepo(t, nil), "packwiz").Stop(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeNothing, result.Outcome)
	require.Nil(t, result.Session)
}

// TestStop_KillsRecordedProcess terminates a live package server and forgets it.
func TestStop_KillsRecordedProcess(t *testing.T) {
	t.Parallel()

	cmd, executable := startIdle(t)
	repo := newRepo(t, &deploy.Session{RunID: "run-1", PID: cmd.Process.Pid, Port: 8123})

	result, err := New(repo, executable).Stop(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeStopped, result.Outcome)
	require.Equal(t, cmd.Process.Pid, result.Session.PID)

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	select {
	case err = <-waitErr:
		require.Error(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("process was not killed")
	}

	_, err = repo.Load(context.Background())
	require.ErrorIs(t, err, session.ErrNotFound)
}

// TestStop_StaleRecord removes a session of a process that already exited.
func TestStop_StaleRecord(t *testing.T) {
	t.Parallel()

	cmd, executable := startIdle(t)
	require.NoError(t, cmd.Process.Kill())
	_ = cmd.Wait()

	repo := newRepo(t, &deploy.Session{PID: cmd.Process.Pid, Port: 8123})

	killed := false
	s := New(repo, executable, WithKill(func(int) error {
		killed = true
		return nil
	}))

	result, err := s.Stop(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeStale, result.Outcome)
	require.False(t, killed)

	_, err = repo.Load(context.Background())
	require.ErrorIs(t, err, session.ErrNotFound)
}

// TestStop_ForeignProcess never kills a process that is not packwiz.
func TestStop_ForeignProcess(t *testing.T) {
	t.Parallel()

	repo := newRepo(t, &deploy.Session{PID: os.Getpid(), Port: 8123})

	killed := false
	s := New(repo, "packwiz", WithKill(func(int) error {
		killed = true
		return nil
	}))

	result, err := s.Stop(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeStale, result.Outcome)
	require.False(t, killed)
}

// TestMatchesExecutable covers suffixes, case and comm truncation.
func TestMatchesExecutable(t *testing.T) {
	t.Parallel()

	require.True(t, matchesExecutable("packwiz", "packwiz"))
	require.True(t, matchesExecutable("packwiz", "/usr/local/bin/packwiz"))
	require.True(t, matchesExecutable("packwiz.exe", `C:\tools\packwiz.exe`))
	require.True(t, matchesExecutable("PACKWIZ.EXE", "packwiz"))
	require.True(t, matchesExecutable("packwiz-nightly", "/opt/packwiz-nightly-build"))
	require.False(t, matchesExecutable("java", "packwiz"))
	require.False(t, matchesExecutable("pack", "packwiz"))
	require.False(t, matchesExecutable("", "packwiz"))
}
