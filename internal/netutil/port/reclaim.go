package port

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/packwiz-deploy/internal/logger"
)

// errUnsupportedOS indicates there is no port-owner lookup for this platform.
var errUnsupportedOS = errors.New("os not supported")

// OwnerLookup returns the IDs of processes listening on port.
type OwnerLookup func(ctx context.Context, port uint16) ([]int, error)

// Reclaimer kills whatever listens on a port.
type Reclaimer struct {
	// lookup finds listening processes.
	lookup OwnerLookup
	// kill terminates a process by ID.
	kill func(pid int) error
}

// ReclaimerOption configures a Reclaimer.
type ReclaimerOption func(*Reclaimer)

// WithOwnerLookup replaces the platform lookup.
func WithOwnerLookup(lookup OwnerLookup) ReclaimerOption {
	return func(r *Reclaimer) {
		if lookup != nil {
			r.lookup = lookup
		}
	}
}

// WithKill replaces process termination.
func WithKill(kill func(pid int) error) ReclaimerOption {
	return func(r *Reclaimer) {
		if kill != nil {
			r.kill = kill
		}
	}
}

// NewReclaimer creates a Reclaimer using the platform lookup.
func NewReclaimer(opts ...ReclaimerOption) *Reclaimer {
	r := &Reclaimer{
		lookup: PlatformOwners,
		kill:   killProcess,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Reclaim kills every process listening on port except the current one.
// It is best-effort: failures for single processes are joined and returned
// after all owners were tried.
func (r *Reclaimer) Reclaim(ctx context.Context, port uint16) error {
	pids, err := r.lookup(ctx, port)
	if err != nil {
		return fmt.Errorf("look up owners of port %d: %w", port, err)
	}

	if len(pids) == 0 {
		logger.InfoKV(ctx, "No owner found for busy port", "port", port)
		return nil
	}

	thisProcessID := os.Getpid()

	var errs []error

	for _, pid := range pids {
		if pid == thisProcessID {
			continue
		}

		process, findErr := ps.FindProcess(pid)
		if findErr != nil || process == nil {
			continue
		}

		logger.WarnKV(ctx, "Killing process holding port",
			"port", port, "pid", pid, "executable", process.Executable())

		if killErr := r.kill(pid); killErr != nil {
			errs = append(errs, fmt.Errorf("kill %d: %w", pid, killErr))
		}
	}

	return errors.Join(errs...)
}

// PlatformOwners finds listening processes with lsof on Unix-like systems
// and netstat on Windows.
func PlatformOwners(ctx context.Context, port uint16) ([]int, error) {
	osLC := strings.ToLower(runtime.GOOS)

	switch {
	case strings.Contains(osLC, "linux") || strings.Contains(osLC, "darwin") || strings.Contains(osLC, "bsd"):
		// lsof exits 1 when nothing matches, so only the output matters.
		//nolint:gosec // Arguments are built from a port number.
		output, err := exec.CommandContext(ctx, "lsof", "-nP", "-t",
			"-iTCP:"+strconv.Itoa(int(port)), "-sTCP:LISTEN").Output()
		if err != nil && len(output) == 0 {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return nil, nil
			}

			return nil, err
		}

		return parseLsofPIDs(string(output)), nil
	case strings.Contains(osLC, "windows"):
		output, err := exec.CommandContext(ctx, "netstat", "-ano", "-p", "TCP").Output()
		if err != nil {
			return nil, err
		}

		return parseNetstatPIDs(string(output), port), nil
	default:
		return nil, fmt.Errorf("%s port owner lookup: %w", runtime.GOOS, errUnsupportedOS)
	}
}

// parseLsofPIDs reads one process ID per line as printed by `lsof -t`.
func parseLsofPIDs(output string) []int {
	return uniquePIDs(strings.Fields(output))
}

// parseNetstatPIDs picks the owning PID of LISTENING rows bound to port from
// `netstat -ano` output:
//
//	TCP    0.0.0.0:8123     0.0.0.0:0     LISTENING     4242
func parseNetstatPIDs(output string, port uint16) []int {
	suffix := ":" + strconv.Itoa(int(port))

	var candidates []string

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 5 || !strings.EqualFold(fields[0], "TCP") {
			continue
		}

		if !strings.EqualFold(fields[3], "LISTENING") || !strings.HasSuffix(fields[1], suffix) {
			continue
		}

		candidates = append(candidates, fields[4])
	}

	return uniquePIDs(candidates)
}

// uniquePIDs converts numeric strings to PIDs, dropping junk, zero and duplicates.
func uniquePIDs(values []string) []int {
	seen := make(map[int]struct{}, len(values))
	pids := make([]int, 0, len(values))

	for _, value := range values {
		pid, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || pid <= 0 {
			continue
		}

		if _, found := seen[pid]; found {
			continue
		}

		seen[pid] = struct{}{}
		pids = append(pids, pid)
	}

	return pids
}

// killProcess terminates pid forcibly.
func killProcess(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}

	return process.Kill()
}
