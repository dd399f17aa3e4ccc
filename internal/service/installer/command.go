package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// Invocation describes one installer run.
type Invocation struct {
	// JavaBinary runs the jar.
	JavaBinary string
	// BootstrapJar is the installer path, relative to WorkDir or absolute.
	BootstrapJar string
	// WorkDir is the tool-artifact directory the installer runs from.
	WorkDir string
	// PackFolder is the install directory relative to WorkDir.
	PackFolder string
	// PackURL is the served pack.toml.
	PackURL string
	// Env is appended to the current environment.
	Env []string
}

// Args returns the java arguments for inv.
func (inv *Invocation) Args() []string {
	return []string{
		"-jar", inv.BootstrapJar,
		"-g",
		"-s", "server",
		"--pack-folder", inv.PackFolder,
		inv.PackURL,
	}
}

// Outcome is what a finished installer run produced.
type Outcome struct {
	// Output is combined stdout and stderr.
	Output string
	// ExitCode is the process exit status.
	ExitCode int
}

// Succeeded reports a zero exit code.
func (o *Outcome) Succeeded() bool {
	return o.ExitCode == 0
}

// CommandRunner runs the installer as a foreground process.
type CommandRunner struct{}

// Install runs the installer and waits for it. A non-zero exit is reported in
// the Outcome, not as an error; errors mean the process could not run at all.
func (CommandRunner) Install(ctx context.Context, inv *Invocation) (*Outcome, error) {
	//nolint:gosec // The binary and arguments come from configuration and the run itself.
	cmd := exec.CommandContext(ctx, inv.JavaBinary, inv.Args()...)
	cmd.Dir = inv.WorkDir

	if len(inv.Env) > 0 {
		cmd.Env = append(os.Environ(), inv.Env...)
	}

	output, err := cmd.CombinedOutput()
	if err == nil {
		return &Outcome{Output: string(output)}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		return &Outcome{Output: string(output), ExitCode: exitErr.ExitCode()}, nil
	}

	return nil, fmt.Errorf("run %s: %w", inv.JavaBinary, err)
}
