package deployer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/oshokin/packwiz-deploy/internal/domain/deploy"
	"github.com/oshokin/packwiz-deploy/internal/logger"
	"github.com/oshokin/packwiz-deploy/internal/netutil/port"
	"github.com/oshokin/packwiz-deploy/internal/process/serve"
	"github.com/oshokin/packwiz-deploy/internal/repository/session"
	"github.com/oshokin/packwiz-deploy/internal/service/artifact"
	"github.com/oshokin/packwiz-deploy/internal/service/installer"
	"github.com/oshokin/packwiz-deploy/internal/service/overlay"
)

// dirMode is used for the tool and install directories.
const dirMode = 0o755

// run is the state of one deployment.
type run struct {
	// d provides configuration and collaborators.
	d *Deployer
	// req is the validated request.
	req deploy.Request
	// rootDir is the absolute project root.
	rootDir string
	// toolDir is the absolute tool-artifact directory.
	toolDir string
	// installDir is the absolute deployment output.
	installDir string
	// result is filled as steps complete.
	result *deploy.Result
	// serve is the package server, nil until it was started.
	serve ServeProcess
	// startedAt is when the package server was started.
	startedAt time.Time
}

// step moves the pipeline into stage.
type step struct {
	stage deploy.Stage
	fn    func(ctx context.Context) error
}

// Deploy runs the pipeline for req. The result describes how far the run got
// and is returned together with any error. Errors are *deploy.StageError.
func (d *Deployer) Deploy(ctx context.Context, req deploy.Request) (*deploy.Result, error) {
	req = req.WithDefaults()

	r := &run{
		d:   d,
		req: req,
		result: &deploy.Result{
			RunID: d.newRunID(),
			Stage: deploy.StageInit,
		},
	}

	ctx = logger.WithKV(ctx, "run_id", r.result.RunID)

	steps := []step{
		{deploy.StagePortSelected, r.selectPort},
		{deploy.StageDirsReady, r.prepareDirs},
		{deploy.StageArtifactReady, r.acquireArtifact},
		{deploy.StageServing, r.startServe},
		{deploy.StageServerConfirmedReady, r.waitReady},
		{deploy.StageInstalled, r.install},
		{deploy.StageOverlaid, r.applyOverlay},
	}

	for _, s := range steps {
		logger.InfoKV(ctx, "Step started", "step", s.stage.Step())

		if err := s.fn(ctx); err != nil {
			r.result.FailedStage = s.stage
			r.result.Stage = deploy.StageFailed
			r.cleanup(ctx, false)

			logger.ErrorKV(ctx, "Deployment failed", "step", s.stage.Step(), "error", err)

			return r.result, &deploy.StageError{Stage: s.stage, Err: err}
		}

		r.result.Stage = s.stage
	}

	r.cleanup(ctx, true)
	r.result.Stage = deploy.StageTerminated

	logger.InfoKV(ctx, "Deployment finished", "install_dir", r.installDir,
		"serve_state", r.result.ServeState.String())

	return r.result, nil
}

func (r *run) selectPort(ctx context.Context) error {
	selector := port.NewSelector(r.d.prober,
		port.WithMaxAttempts(r.d.cfg.MaxPortAttempts),
		port.WithRandom(r.d.intN),
	)

	selected, err := selector.Select(ctx, r.req.Port)
	if err != nil {
		return err
	}

	r.result.Port = selected

	logger.InfoKV(ctx, "Port selected", "port", selected, "requested", r.req.Port != 0)

	return nil
}

func (r *run) prepareDirs(ctx context.Context) error {
	rootDir, err := filepath.Abs(r.req.RootDir)
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}

	r.rootDir = rootDir
	r.toolDir = r.resolve(r.d.cfg.ToolDir)
	r.installDir = r.resolve(r.req.InstallDir)
	r.result.InstallDir = r.installDir

	for _, dir := range []string{r.toolDir, r.installDir} {
		if err = os.MkdirAll(dir, dirMode); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	logger.DebugKV(ctx, "Directories ready", "tool_dir", r.toolDir, "install_dir", r.installDir)

	return nil
}

func (r *run) acquireArtifact(ctx context.Context) error {
	target := filepath.Join(r.toolDir, artifact.BootstrapFilename)

	if r.req.SkipDownload {
		info, err := os.Stat(target)
		if err == nil && !info.IsDir() {
			logger.InfoKV(ctx, "Reusing bootstrap installer", "path", target)
			return nil
		}

		logger.WarnKV(ctx, "Bootstrap installer missing, downloading anyway", "path", target)
	}

	ctx, cancel := context.WithTimeout(ctx, r.d.cfg.DownloadTimeout)
	defer cancel()

	return r.d.downloader.Download(ctx, r.d.cfg.BootstrapURL, target)
}

func (r *run) startServe(ctx context.Context) error {
	if err := r.ensurePortFree(ctx); err != nil {
		return err
	}

	spec := &serve.Spec{
		Binary:      r.d.cfg.PackwizBinary,
		Dir:         r.rootDir,
		Port:        r.result.Port,
		LogPath:     filepath.Join(r.toolDir, serve.DefaultLogFilename),
		Env:         r.d.extraEnv,
		StopTimeout: r.d.cfg.StopTimeout,
	}

	process, err := r.d.starter.Start(ctx, spec)
	if err != nil {
		return err
	}

	r.serve = process
	r.startedAt = r.d.now()
	r.result.PID = process.PID()
	r.result.ServeState = deploy.ServeRunning

	logger.InfoKV(ctx, "Package server started", "pid", process.PID(), "port", spec.Port, "log", spec.LogPath)

	if err = r.d.sleep(ctx, r.d.cfg.SettleDelay); err != nil {
		return err
	}

	if !process.IsAlive() {
		return r.exitedError(ctx)
	}

	return nil
}

// ensurePortFree reclaims the selected port once if something is bound to it.
func (r *run) ensurePortFree(ctx context.Context) error {
	p := r.result.Port

	if !r.d.prober.InUse(ctx, p) {
		return nil
	}

	logger.WarnKV(ctx, "Port is busy, reclaiming", "port", p)

	if err := r.d.reclaimer.Reclaim(ctx, p); err != nil {
		logger.WarnKV(ctx, "Reclaim was incomplete", "port", p, "error", err)
	}

	if err := r.d.sleep(ctx, r.d.cfg.ReclaimWait); err != nil {
		return err
	}

	if r.d.prober.InUse(ctx, p) {
		return fmt.Errorf("port %d: %w", p, port.ErrPortBusy)
	}

	return nil
}

func (r *run) waitReady(ctx context.Context) error {
	packURL := r.packURL()

	var lastErr error

	for attempt := 1; attempt <= r.d.cfg.ReadyAttempts; attempt++ {
		if !r.serve.IsAlive() {
			return r.exitedError(ctx)
		}

		lastErr = r.requestPack(ctx, packURL)
		if lastErr == nil {
			logger.InfoKV(ctx, "Package server is ready", "url", packURL, "attempt", attempt)
			return nil
		}

		logger.DebugKV(ctx, "Package server not ready yet", "attempt", attempt, "error", lastErr)

		if err := r.d.sleep(ctx, r.d.cfg.ReadyInterval); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrNotReady, r.d.cfg.ReadyAttempts, lastErr)
}

// requestPack makes one bounded GET for pack.toml.
func (r *run) requestPack(ctx context.Context, packURL string) error {
	ctx, cancel := context.WithTimeout(ctx, r.d.cfg.ReadyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, packURL, http.NoBody)
	if err != nil {
		return err
	}

	response, err := r.d.httpClient.Do(req)
	if err != nil {
		return err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	_, _ = io.Copy(io.Discard, response.Body)

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s", errNotOK, response.Status)
	}

	return nil
}

func (r *run) install(ctx context.Context) error {
	packFolder, err := filepath.Rel(r.toolDir, r.installDir)
	if err != nil {
		return fmt.Errorf("relative install dir: %w", err)
	}

	inv := &installer.Invocation{
		JavaBinary:   r.d.cfg.JavaBinary,
		BootstrapJar: artifact.BootstrapFilename,
		WorkDir:      r.toolDir,
		PackFolder:   packFolder,
		PackURL:      r.packURL(),
		Env:          r.d.extraEnv,
	}

	outcome, err := r.d.installer.Install(ctx, inv)
	if err != nil {
		return err
	}

	logger.DebugKV(ctx, "Installer finished", "exit_code", outcome.ExitCode, "output", outcome.Output)

	if outcome.Succeeded() {
		return nil
	}

	for _, m := range installer.ParseManualDownloads(outcome.Output) {
		if r.result.ManualDownloads.Add(m) {
			logger.WarnKV(ctx, "Mod needs a manual download", "mod", m.ModName, "file", m.FileName, "url", m.SourceURL)
		}
	}

	return &InstallerError{
		ExitCode:        outcome.ExitCode,
		ManualDownloads: r.result.ManualDownloads,
	}
}

func (r *run) applyOverlay(ctx context.Context) error {
	source := r.resolve(r.d.cfg.OverridesDir)

	applied, err := overlay.Apply(ctx, source, r.installDir)
	if err != nil {
		return err
	}

	if !applied {
		logger.InfoKV(ctx, "No overrides directory, skipping", "path", source)
	}

	r.result.OverlayApplied = applied

	return nil
}

// cleanup stops the package server unless it is kept serving after a
// successful run. It never fails; problems are logged.
func (r *run) cleanup(ctx context.Context, succeeded bool) {
	if r.serve == nil {
		return
	}

	// Teardown has to happen even when the run was interrupted.
	ctx = context.WithoutCancel(ctx)

	if succeeded && r.req.KeepServing {
		r.keepServing(ctx)
		return
	}

	if err := r.serve.Stop(ctx); err != nil {
		logger.WarnKV(ctx, "Failed to stop package server", "pid", r.serve.PID(), "error", err)
	}

	r.result.ServeState = r.serve.State()

	logger.InfoKV(ctx, "Package server stopped", "pid", r.serve.PID(), "state", r.result.ServeState.String())
}

// keepServing records the running package server for a later stop.
func (r *run) keepServing(ctx context.Context) {
	r.result.ServeState = r.serve.State()

	repo := r.d.sessions
	if repo == nil {
		repo = session.NewFileRepository(filepath.Join(r.toolDir, session.DefaultFilename))
	}

	record := &deploy.Session{
		RunID:      r.result.RunID,
		PID:        r.serve.PID(),
		Port:       r.result.Port,
		RootDir:    r.rootDir,
		InstallDir: r.installDir,
		LogPath:    r.serve.LogPath(),
		StartedAt:  r.startedAt,
	}

	if err := repo.Save(ctx, record); err != nil {
		logger.WarnKV(ctx, "Failed to record package server session", "error", err)
	}

	logger.InfoKV(ctx, "Package server left running", "pid", record.PID, "port", record.Port)
}

// exitedError builds ErrServeExited with whatever the process printed.
func (r *run) exitedError(ctx context.Context) error {
	output := r.serve.Output()
	logger.DebugKV(ctx, "Package server output", "output", output)

	if output == "" {
		return ErrServeExited
	}

	return fmt.Errorf("%w, output:\n%s", ErrServeExited, output)
}

// packURL is where the installer and readiness checks fetch pack.toml.
func (r *run) packURL() string {
	return fmt.Sprintf("http://localhost:%d/pack.toml", r.result.Port)
}

// resolve makes path absolute against the project root.
func (r *run) resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}

	return filepath.Join(r.rootDir, path)
}
