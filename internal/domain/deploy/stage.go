package deploy

import "fmt"

// Stage is a point in the deployment pipeline.
type Stage int

// Stages in pipeline order. StageFailed is reachable from any other stage.
const (
	StageInit Stage = iota
	StagePortSelected
	StageDirsReady
	StageArtifactReady
	StageServing
	StageServerConfirmedReady
	StageInstalled
	StageOverlaid
	StageTerminated
	StageFailed
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageInit:
		return "Init"
	case StagePortSelected:
		return "PortSelected"
	case StageDirsReady:
		return "DirsReady"
	case StageArtifactReady:
		return "ArtifactReady"
	case StageServing:
		return "Serving"
	case StageServerConfirmedReady:
		return "ServerConfirmedReady"
	case StageInstalled:
		return "Installed"
	case StageOverlaid:
		return "Overlaid"
	case StageTerminated:
		return "Terminated"
	case StageFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Step describes the work that moves the pipeline into s.
func (s Stage) Step() string {
	switch s {
	case StagePortSelected:
		return "select port"
	case StageDirsReady:
		return "prepare directories"
	case StageArtifactReady:
		return "acquire bootstrap installer"
	case StageServing:
		return "start package server"
	case StageServerConfirmedReady:
		return "wait for package server"
	case StageInstalled:
		return "run installer"
	case StageOverlaid:
		return "apply overrides"
	case StageTerminated:
		return "clean up"
	default:
		return s.String()
	}
}

// StageError reports the step a run failed in.
type StageError struct {
	// Stage is the stage the failing step was trying to reach.
	Stage Stage
	// Err is the underlying failure.
	Err error
}

// Error implements error.
func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage.Step(), e.Err)
}

// Unwrap returns the underlying failure.
func (e *StageError) Unwrap() error {
	return e.Err
}

// ServeState is the lifecycle of the background package server.
type ServeState int

// Serve states. A handle only ever moves forward.
const (
	ServeNotStarted ServeState = iota
	ServeRunning
	ServeStopped
)

// String returns the state name.
func (s ServeState) String() string {
	switch s {
	case ServeNotStarted:
		return "NotStarted"
	case ServeRunning:
		return "Running"
	case ServeStopped:
		return "Stopped"
	default:
		return fmt.Sprintf("ServeState(%d)", int(s))
	}
}
