package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/packwiz-deploy/internal/config"
	"github.com/oshokin/packwiz-deploy/internal/domain/deploy"
)

// DefaultFilename is the session record name inside the tool directory.
const DefaultFilename = "serve-session.yaml"

// ErrNotFound is returned when no session has been recorded.
var ErrNotFound = errors.New("session not found")

// Repository defines persistence operations for the serve session.
type Repository interface {
	Load(ctx context.Context) (*deploy.Session, error)
	Save(ctx context.Context, session *deploy.Session) error
	Remove(ctx context.Context) error
}

// FileRepository persists the session to a YAML file on disk.
type FileRepository struct {
	// path is the filesystem location of the session file.
	path string
	// mu protects concurrent access to the session file.
	mu sync.Mutex
}

// NewFileRepository creates a repository that reads and writes YAML at path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Path returns the session file location.
func (r *FileRepository) Path() string {
	return r.path
}

// Load reads the session from disk.
func (r *FileRepository) Load(_ context.Context) (*deploy.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read session file: %w", err)
	}

	var s deploy.Session
	if err = yaml.Unmarshal(contents, &s); err != nil {
		return nil, fmt.Errorf("decode session file: %w", err)
	}

	return &s, nil
}

// Save writes the session to disk, replacing any previous record.
func (r *FileRepository) Save(_ context.Context, s *deploy.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	if err = os.WriteFile(r.path, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}

	return nil
}

// Remove deletes the session file. A missing file is not an error.
func (r *FileRepository) Remove(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}

	return nil
}
