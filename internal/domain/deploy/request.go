package deploy

// DefaultInstallDir is where the server build is materialized when no directory is requested.
const DefaultInstallDir = ".server"

// Request describes one deployment run. It is passed by value and never
// modified once the run starts.
type Request struct {
	// RootDir is the project root holding pack.toml; empty means the working directory.
	RootDir string
	// InstallDir is the deployment output, relative to RootDir unless absolute.
	InstallDir string
	// Port is the packwiz serve port; zero picks a free one.
	Port uint16
	// SkipDownload reuses an already downloaded bootstrap installer.
	SkipDownload bool
	// KeepServing leaves packwiz serve running after a successful run.
	KeepServing bool
}

// WithDefaults returns a copy of r with empty directories replaced by defaults.
func (r Request) WithDefaults() Request {
	if r.RootDir == "" {
		r.RootDir = "."
	}

	if r.InstallDir == "" {
		r.InstallDir = DefaultInstallDir
	}

	return r
}
