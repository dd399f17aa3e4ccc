package deployer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/packwiz-deploy/internal/config"
	"github.com/oshokin/packwiz-deploy/internal/domain/deploy"
	"github.com/oshokin/packwiz-deploy/internal/logger"
	"github.com/oshokin/packwiz-deploy/internal/netutil/port"
	"github.com/oshokin/packwiz-deploy/internal/process/serve"
	"github.com/oshokin/packwiz-deploy/internal/repository/session"
	"github.com/oshokin/packwiz-deploy/internal/service/artifact"
	"github.com/oshokin/packwiz-deploy/internal/service/installer"
)

var (
	// ErrServeExited is returned when packwiz serve dies before it is ready.
	ErrServeExited = errors.New("package server exited")
	// ErrNotReady is returned when pack.toml was never served.
	ErrNotReady = errors.New("package server did not become ready")
	// ErrInstallerFailed is returned when the bootstrap installer exits with a non-zero code.
	ErrInstallerFailed = errors.New("installer failed")

	// errNotOK is returned by a readiness request for any non-200 answer.
	errNotOK = errors.New("unexpected status")
)

// InstallerError carries the mods the installer could not fetch itself.
type InstallerError struct {
	// ExitCode is the installer exit status.
	ExitCode int
	// ManualDownloads lists mods that must be saved by hand.
	ManualDownloads deploy.ManualDownloads
}

// Error implements error.
func (e *InstallerError) Error() string {
	if len(e.ManualDownloads) == 0 {
		return fmt.Sprintf("%s with exit code %d", ErrInstallerFailed, e.ExitCode)
	}

	return fmt.Sprintf("%s with exit code %d, %d mods need a manual download",
		ErrInstallerFailed, e.ExitCode, len(e.ManualDownloads))
}

// Unwrap makes errors.Is(err, ErrInstallerFailed) hold.
func (e *InstallerError) Unwrap() error {
	return ErrInstallerFailed
}

// PortReclaimer frees a port held by another process.
type PortReclaimer interface {
	Reclaim(ctx context.Context, port uint16) error
}

// Downloader fetches the bootstrap installer.
type Downloader interface {
	Download(ctx context.Context, sourceURL, targetPath string) error
}

// ServeProcess is the running package server as seen by the pipeline.
type ServeProcess interface {
	PID() int
	LogPath() string
	IsAlive() bool
	Output() string
	State() deploy.ServeState
	Stop(ctx context.Context) error
}

// ServeStarter launches the package server.
type ServeStarter interface {
	Start(ctx context.Context, spec *serve.Spec) (ServeProcess, error)
}

// ServeStarterFunc adapts a function to ServeStarter.
type ServeStarterFunc func(ctx context.Context, spec *serve.Spec) (ServeProcess, error)

// Start calls f.
func (f ServeStarterFunc) Start(ctx context.Context, spec *serve.Spec) (ServeProcess, error) {
	return f(ctx, spec)
}

// Installer runs the bootstrap installer to completion.
type Installer interface {
	Install(ctx context.Context, inv *installer.Invocation) (*installer.Outcome, error)
}

// Options contains inputs for the deployment entry point.
type Options struct {
	// ConfigPath is the settings file; a missing file means defaults.
	ConfigPath string
	// Request describes the run.
	Request deploy.Request
}

// Deployer runs deployments with a fixed configuration and set of collaborators.
type Deployer struct {
	// cfg holds tool locations and timings.
	cfg *config.Config
	// prober checks whether ports are bound.
	prober port.Prober
	// reclaimer frees a busy port.
	reclaimer PortReclaimer
	// downloader fetches the bootstrap installer.
	downloader Downloader
	// starter launches packwiz serve.
	starter ServeStarter
	// installer runs the bootstrap installer.
	installer Installer
	// sessions records a kept-alive package server; nil means a file in the tool directory.
	sessions session.Repository
	// httpClient performs readiness and download requests.
	httpClient *http.Client
	// sleep waits between steps and attempts.
	sleep func(ctx context.Context, d time.Duration) error
	// intN feeds port auto-selection.
	intN func(n int) int
	// newRunID names a run.
	newRunID func() string
	// now stamps the session record.
	now func() time.Time
	// extraEnv is appended to the environment of started processes.
	extraEnv []string
}

// Option configures a Deployer.
type Option func(*Deployer)

// WithProber replaces TCP probing of localhost.
func WithProber(prober port.Prober) Option {
	return func(d *Deployer) {
		if prober != nil {
			d.prober = prober
		}
	}
}

// WithReclaimer replaces the platform port reclaimer.
func WithReclaimer(reclaimer PortReclaimer) Option {
	return func(d *Deployer) {
		if reclaimer != nil {
			d.reclaimer = reclaimer
		}
	}
}

// WithDownloader replaces the HTTP downloader.
func WithDownloader(downloader Downloader) Option {
	return func(d *Deployer) {
		if downloader != nil {
			d.downloader = downloader
		}
	}
}

// WithServeStarter replaces launching the real packwiz binary.
func WithServeStarter(starter ServeStarter) Option {
	return func(d *Deployer) {
		if starter != nil {
			d.starter = starter
		}
	}
}

// WithInstaller replaces running the real installer.
func WithInstaller(inst Installer) Option {
	return func(d *Deployer) {
		if inst != nil {
			d.installer = inst
		}
	}
}

// WithSessionRepository replaces the session file in the tool directory.
func WithSessionRepository(repo session.Repository) Option {
	return func(d *Deployer) {
		if repo != nil {
			d.sessions = repo
		}
	}
}

// WithHTTPClient replaces http.DefaultClient for readiness and download requests.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Deployer) {
		if client != nil {
			d.httpClient = client
		}
	}
}

// WithSleep replaces the context-aware timer used for every wait.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Deployer) {
		if sleep != nil {
			d.sleep = sleep
		}
	}
}

// WithRandom replaces the random source of port auto-selection.
func WithRandom(intN func(n int) int) Option {
	return func(d *Deployer) {
		if intN != nil {
			d.intN = intN
		}
	}
}

// WithRunID replaces random run IDs.
func WithRunID(newRunID func() string) Option {
	return func(d *Deployer) {
		if newRunID != nil {
			d.newRunID = newRunID
		}
	}
}

// WithExtraEnv appends env to the environment of packwiz serve and the installer.
func WithExtraEnv(env ...string) Option {
	return func(d *Deployer) {
		d.extraEnv = append(d.extraEnv, env...)
	}
}

// New creates a Deployer for cfg. Collaborators not set through options are
// the real ones.
func New(cfg *config.Config, opts ...Option) (*Deployer, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	d := &Deployer{
		cfg:        cfg,
		prober:     port.TCPProber{},
		reclaimer:  port.NewReclaimer(),
		starter:    ServeStarterFunc(startServe),
		installer:  installer.CommandRunner{},
		httpClient: http.DefaultClient,
		sleep:      sleepContext,
		newRunID:   uuid.NewString,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.downloader == nil {
		checksum, err := cfg.BootstrapChecksum()
		if err != nil {
			return nil, err
		}

		d.downloader = artifact.NewDownloader(
			artifact.WithHTTPClient(d.httpClient),
			artifact.WithChecksum(checksum),
		)
	}

	return d, nil
}

// Run loads settings and performs one deployment. The result is returned on
// failure as well, unless settings could not be loaded.
func Run(ctx context.Context, opts *Options, extra ...Option) (*deploy.Result, error) {
	ctx = logger.WithName(ctx, "packwiz-deploy")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	d, err := New(cfg, extra...)
	if err != nil {
		return nil, fmt.Errorf("initialize deployer: %w", err)
	}

	return d.Deploy(ctx, opts.Request)
}

// startServe adapts serve.Start to ServeStarter.
func startServe(ctx context.Context, spec *serve.Spec) (ServeProcess, error) {
	h, err := serve.Start(ctx, spec)
	if err != nil {
		return nil, err
	}

	return h, nil
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
