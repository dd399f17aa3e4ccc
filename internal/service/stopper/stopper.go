package stopper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/packwiz-deploy/internal/config"
	"github.com/oshokin/packwiz-deploy/internal/domain/deploy"
	"github.com/oshokin/packwiz-deploy/internal/logger"
	"github.com/oshokin/packwiz-deploy/internal/repository/session"
)

// commLength is how much of an executable name Linux keeps in the process table.
const commLength = 15

// Outcome is what a stop request found.
type Outcome int

// Stop outcomes.
const (
	// OutcomeNothing means no session was recorded.
	OutcomeNothing Outcome = iota
	// OutcomeStale means the recorded process is gone or is not packwiz.
	OutcomeStale
	// OutcomeStopped means the recorded process was killed.
	OutcomeStopped
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeNothing:
		return "nothing to stop"
	case OutcomeStale:
		return "stale session removed"
	case OutcomeStopped:
		return "stopped"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result describes a finished stop request.
type Result struct {
	// Outcome is what happened.
	Outcome Outcome
	// Session is the record that was acted on, nil for OutcomeNothing.
	Session *deploy.Session
}

// Options contains inputs for the stop entry point.
type Options struct {
	// ConfigPath is the settings file; a missing file means defaults.
	ConfigPath string
	// RootDir is the project root the session was recorded under.
	RootDir string
}

// Stopper terminates recorded package servers.
type Stopper struct {
	// repo holds the session record.
	repo session.Repository
	// binary is the configured packwiz executable.
	binary string
	// find looks a process up in the process table.
	find func(pid int) (ps.Process, error)
	// kill terminates a process.
	kill func(pid int) error
}

// Option configures a Stopper.
type Option func(*Stopper)

// WithKill replaces forced termination.
func WithKill(kill func(pid int) error) Option {
	return func(s *Stopper) {
		if kill != nil {
			s.kill = kill
		}
	}
}

// New creates a Stopper reading sessions from repo and expecting binary.
func New(repo session.Repository, binary string, opts ...Option) *Stopper {
	s := &Stopper{
		repo:   repo,
		binary: binary,
		find:   ps.FindProcess,
		kill:   killProcess,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Run loads settings and stops the package server recorded under opts.RootDir.
func Run(ctx context.Context, opts *Options) (*Result, error) {
	ctx = logger.WithName(ctx, "packwiz-deploy-stop")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	rootDir := opts.RootDir
	if rootDir == "" {
		rootDir = "."
	}

	toolDir := cfg.ToolDir
	if !filepath.IsAbs(toolDir) {
		toolDir = filepath.Join(rootDir, toolDir)
	}

	repo := session.NewFileRepository(filepath.Join(toolDir, session.DefaultFilename))

	return New(repo, cfg.PackwizBinary).Stop(ctx)
}

// Stop kills the recorded process if it is still a running packwiz and removes
// the record. A missing record is not an error.
func (s *Stopper) Stop(ctx context.Context) (*Result, error) {
	record, err := s.repo.Load(ctx)
	if errors.Is(err, session.ErrNotFound) {
		logger.Info(ctx, "Nothing to stop")
		return &Result{Outcome: OutcomeNothing}, nil
	}

	if err != nil {
		return nil, err
	}

	ctx = logger.WithKV(ctx, "pid", record.PID, "port", record.Port, "run_id", record.RunID)

	process, err := s.find(record.PID)
	if err != nil {
		return nil, fmt.Errorf("look up process %d: %w", record.PID, err)
	}

	switch {
	case process == nil:
		logger.Warn(ctx, "Recorded package server is no longer running")
	case !matchesExecutable(process.Executable(), s.binary):
		logger.WarnKV(ctx, "Recorded process is not a package server, leaving it alone",
			"executable", process.Executable())
	default:
		if err = s.kill(record.PID); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return nil, fmt.Errorf("kill package server %d: %w", record.PID, err)
		}

		if err = s.repo.Remove(ctx); err != nil {
			return nil, err
		}

		logger.Info(ctx, "Package server stopped")

		return &Result{Outcome: OutcomeStopped, Session: record}, nil
	}

	if err = s.repo.Remove(ctx); err != nil {
		return nil, err
	}

	return &Result{Outcome: OutcomeStale, Session: record}, nil
}

// matchesExecutable compares a process table name with the configured binary,
// ignoring case, the .exe suffix and comm truncation.
func matchesExecutable(actual, binary string) bool {
	want := normalizeExecutable(filepath.Base(strings.ReplaceAll(binary, `\`, "/")))
	got := normalizeExecutable(actual)

	if got == "" || want == "" {
		return false
	}

	if got == want {
		return true
	}

	return len(got) == commLength && strings.HasPrefix(want, got)
}

func normalizeExecutable(name string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".exe")
}

// killProcess terminates pid forcibly.
func killProcess(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}

	return process.Kill()
}
