package overlay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/moby/go-archive"

	"github.com/oshokin/packwiz-deploy/internal/logger"
)

// defaultDirMode is used when the target directory has to be created.
const defaultDirMode = 0o755

// errNotDirectory is returned when the overrides path exists but is a file.
var errNotDirectory = errors.New("overrides path is not a directory")

// Apply copies the contents of sourceDir into targetDir recursively, replacing
// files that already exist. It returns false without error when sourceDir does
// not exist.
func Apply(ctx context.Context, sourceDir, targetDir string) (bool, error) {
	sourceDir = filepath.Clean(sourceDir)
	targetDir = filepath.Clean(targetDir)

	info, err := os.Stat(sourceDir)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("stat overrides: %w", err)
	}

	if !info.IsDir() {
		return false, fmt.Errorf("%s: %w", sourceDir, errNotDirectory)
	}

	if err = os.MkdirAll(targetDir, defaultDirMode); err != nil {
		return false, fmt.Errorf("create %s: %w", targetDir, err)
	}

	// Stream the tree through tar, the same way docker copies build contexts.
	//nolint:exhaustruct // Defaults mean uncompressed, whole tree.
	stream, err := archive.TarWithOptions(sourceDir, &archive.TarOptions{})
	if err != nil {
		return false, fmt.Errorf("pack overrides: %w", err)
	}

	defer func() {
		_ = stream.Close()
	}()

	//nolint:exhaustruct // Only ownership handling differs from the defaults.
	if err = archive.Untar(stream, targetDir, &archive.TarOptions{NoLchown: true}); err != nil {
		return false, fmt.Errorf("unpack overrides into %s: %w", targetDir, err)
	}

	logger.InfoKV(ctx, "Applied overrides", "source", sourceDir, "target", targetDir)

	return true, nil
}
