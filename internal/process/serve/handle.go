package serve

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oshokin/packwiz-deploy/internal/domain/deploy"
)

const (
	// DefaultLogFilename receives packwiz serve output inside the tool directory.
	DefaultLogFilename = "packwiz-serve.log"

	// defaultStopTimeout bounds the wait for the process to exit after a kill.
	defaultStopTimeout = 10 * time.Second

	// maxCapturedOutput caps how much of the log Output returns.
	maxCapturedOutput = 16 << 10

	// logFilePermissions are used for the serve log file.
	logFilePermissions = 0o644
)

var (
	// errBinaryRequired is returned when Spec has no binary.
	errBinaryRequired = errors.New("serve binary must be provided")
	// errStopTimeout is returned when the process does not exit after a kill.
	errStopTimeout = errors.New("package server did not exit in time")
)

// Spec describes how to start packwiz serve.
type Spec struct {
	// Binary is the packwiz executable.
	Binary string
	// Dir is the working directory, the pack root holding pack.toml.
	Dir string
	// Port is passed as --port.
	Port uint16
	// LogPath receives stdout and stderr. It is truncated on start.
	LogPath string
	// Env is appended to the current environment.
	Env []string
	// StopTimeout overrides the default wait after a kill.
	StopTimeout time.Duration
}

// Args returns the packwiz arguments for spec.
func (s *Spec) Args() []string {
	return []string{"serve", "--port", strconv.Itoa(int(s.Port))}
}

// Handle is the running packwiz serve process.
type Handle struct {
	// cmd is the started command.
	cmd *exec.Cmd
	// port is the port the process was asked to bind.
	port uint16
	// logPath is where output is written.
	logPath string
	// stopTimeout bounds the wait in Stop.
	stopTimeout time.Duration
	// done is closed once the process has been reaped.
	done chan struct{}
	// waitErr is the result of cmd.Wait, valid after done is closed.
	waitErr error
	// stopOnce makes Stop kill at most once.
	stopOnce sync.Once
	// stopErr is the result of the first Stop.
	stopErr error
}

// Start launches packwiz serve in the background.
//
// The process is not bound to ctx. It has to survive the run
// when it is kept serving, and Stop is the only way it gets terminated.
func Start(_ context.Context, spec *Spec) (*Handle, error) {
	if spec.Binary == "" {
		return nil, errBinaryRequired
	}

	logPath := spec.LogPath
	if logPath == "" {
		logPath = filepath.Join(os.TempDir(), DefaultLogFilename)
	}

	logFile, err := os.OpenFile(filepath.Clean(logPath), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, logFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("open serve log: %w", err)
	}

	//nolint:gosec,noctx // The binary comes from configuration; see the note on Start.
	cmd := exec.Command(spec.Binary, spec.Args()...)
	cmd.Dir = spec.Dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	if err = cmd.Start(); err != nil {
		_ = logFile.Close()

		return nil, fmt.Errorf("start %s: %w", spec.Binary, err)
	}

	// The child holds its own descriptor now.
	_ = logFile.Close()

	stopTimeout := spec.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = defaultStopTimeout
	}

	h := &Handle{
		cmd:         cmd,
		port:        spec.Port,
		logPath:     logPath,
		stopTimeout: stopTimeout,
		done:        make(chan struct{}),
	}

	go func() {
		h.waitErr = cmd.Wait()
		close(h.done)
	}()

	return h, nil
}

// PID returns the process ID.
func (h *Handle) PID() int {
	return h.cmd.Process.Pid
}

// Port returns the port packwiz serve was started on.
func (h *Handle) Port() uint16 {
	return h.port
}

// LogPath returns the file receiving process output.
func (h *Handle) LogPath() string {
	return h.logPath
}

// IsAlive reports whether the process has not exited yet.
func (h *Handle) IsAlive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// State returns the lifecycle state of the process.
func (h *Handle) State() deploy.ServeState {
	if h.IsAlive() {
		return deploy.ServeRunning
	}

	return deploy.ServeStopped
}

// ExitErr returns the wait error once the process has exited.
func (h *Handle) ExitErr() error {
	if h.IsAlive() {
		return nil
	}

	return h.waitErr
}

// Output returns the captured output, trimmed to the last 16 KiB.
func (h *Handle) Output() string {
	contents, err := os.ReadFile(filepath.Clean(h.logPath))
	if err != nil {
		return ""
	}

	if len(contents) > maxCapturedOutput {
		contents = contents[len(contents)-maxCapturedOutput:]
	}

	return strings.TrimSpace(string(contents))
}

// Stop kills the process and waits for it to be reaped. Calling Stop on an
// exited process or calling it twice is a no-op.
func (h *Handle) Stop(ctx context.Context) error {
	h.stopOnce.Do(func() {
		h.stopErr = h.stop(ctx)
	})

	return h.stopErr
}

func (h *Handle) stop(ctx context.Context) error {
	if !h.IsAlive() {
		return nil
	}

	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill package server: %w", err)
	}

	timer := time.NewTimer(h.stopTimeout)
	defer timer.Stop()

	select {
	case <-h.done:
		return nil
	case <-timer.C:
		return errStopTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
