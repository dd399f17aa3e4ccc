package artifact

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/packwiz-deploy/internal/logger"

	// Ensure SHA256 is linked for checksum verification.
	_ "crypto/sha256"
)

const (
	// BootstrapFilename is the name the bootstrap installer is stored under.
	BootstrapFilename = "packwiz-installer-bootstrap.jar"

	// DefaultFileMode is the mode of the downloaded jar.
	DefaultFileMode os.FileMode = 0o644

	// ChecksumFunction verifies the download when a checksum is configured.
	ChecksumFunction crypto.Hash = crypto.SHA256
)

// errBadHTTPStatus is returned for any non-200 download response.
var errBadHTTPStatus = errors.New("unexpected http status")

// Downloader fetches the bootstrap installer over HTTP.
type Downloader struct {
	// client performs the request.
	client *http.Client
	// checksum is the expected SHA-256 digest, nil to skip verification.
	checksum []byte
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Downloader) {
		if client != nil {
			d.client = client
		}
	}
}

// WithChecksum requires the downloaded bytes to hash to sum.
func WithChecksum(sum []byte) Option {
	return func(d *Downloader) {
		d.checksum = sum
	}
}

// NewDownloader creates a Downloader.
func NewDownloader(opts ...Option) *Downloader {
	d := &Downloader{
		client: http.DefaultClient,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Download fetches sourceURL into targetPath, replacing any previous file only
// after the new contents have been fully received and verified.
func (d *Downloader) Download(ctx context.Context, sourceURL, targetPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, http.NoBody)
	if err != nil {
		return err
	}

	response, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", sourceURL, err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%s, %s: %w", sourceURL, response.Status, errBadHTTPStatus)
	}

	targetPath = filepath.Clean(targetPath)

	// go-update renames the existing target aside before swapping, so it must exist.
	createdPlaceholder := false

	if _, err = os.Stat(targetPath); errors.Is(err, os.ErrNotExist) {
		placeholder, createErr := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY, DefaultFileMode)
		if createErr != nil {
			return createErr
		}

		_ = placeholder.Close()
		createdPlaceholder = true
	}

	options := goupdate.Options{
		TargetPath: targetPath,
		TargetMode: DefaultFileMode,
		Checksum:   d.checksum,
		Hash:       ChecksumFunction,
	}

	if err = goupdate.Apply(response.Body, options); err != nil {
		// An empty placeholder would pass for a downloaded jar on the next --skip-download run.
		if createdPlaceholder {
			_ = os.Remove(targetPath)
		}

		return fmt.Errorf("write %s: %w", targetPath, err)
	}

	logger.InfoKV(ctx, "Downloaded bootstrap installer", "url", sourceURL, "path", targetPath,
		"verified", d.checksum != nil)

	return nil
}
