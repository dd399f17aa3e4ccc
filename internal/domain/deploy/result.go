package deploy

import "time"

// ManualDownload is a mod the installer could not fetch through the platform API.
type ManualDownload struct {
	// ModName is derived from FileName without version and extension.
	ModName string
	// FileName is the file the operator has to save.
	FileName string
	// SourceURL is the page the file has to be downloaded from.
	SourceURL string
}

// ManualDownloads is an append-only list deduplicated by ModName.
type ManualDownloads []ManualDownload

// Add appends d unless a record with the same ModName exists. It reports whether d was added.
func (m *ManualDownloads) Add(d ManualDownload) bool {
	for _, existing := range *m {
		if existing.ModName == d.ModName {
			return false
		}
	}

	*m = append(*m, d)

	return true
}

// Result summarizes a run. It is returned on success and failure alike.
type Result struct {
	// RunID identifies the run in logs and in the session record.
	RunID string
	// Stage is the last stage reached, StageFailed on failure.
	Stage Stage
	// FailedStage is the stage the failing step was trying to reach.
	FailedStage Stage
	// Port is the packwiz serve port, zero before selection.
	Port uint16
	// PID is the packwiz serve process ID, zero if it never started.
	PID int
	// ServeState is the final state of packwiz serve.
	ServeState ServeState
	// ManualDownloads lists mods the operator must fetch by hand.
	ManualDownloads ManualDownloads
	// OverlayApplied reports whether the overrides directory was copied.
	OverlayApplied bool
	// InstallDir is the absolute deployment output.
	InstallDir string
}

// Failed reports whether the run ended in StageFailed.
func (r *Result) Failed() bool {
	return r != nil && r.Stage == StageFailed
}

// Session records a packwiz serve process left running after a successful run.
type Session struct {
	// RunID is the run that started the process.
	RunID string `yaml:"run_id"`
	// PID is the process ID of packwiz serve.
	PID int `yaml:"pid"`
	// Port is the port packwiz serve listens on.
	Port uint16 `yaml:"port"`
	// RootDir is the absolute project root packwiz serve runs from.
	RootDir string `yaml:"root_dir"`
	// InstallDir is the absolute deployment output.
	InstallDir string `yaml:"install_dir"`
	// LogPath is the file receiving packwiz serve output.
	LogPath string `yaml:"log_path"`
	// StartedAt is when packwiz serve was started.
	StartedAt time.Time `yaml:"started_at"`
}
