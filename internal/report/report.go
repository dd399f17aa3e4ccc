package report

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/oshokin/packwiz-deploy/internal/domain/deploy"
	"github.com/oshokin/packwiz-deploy/internal/service/stopper"
)

var (
	green  = lipgloss.Color("#a6e3a1")
	red    = lipgloss.Color("#f38ba8")
	yellow = lipgloss.Color("#f9e2af")
	subtle = lipgloss.Color("#a6adc8")

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			Padding(0, 1)

	labelStyle   = lipgloss.NewStyle().Foreground(subtle).Width(12)
	okStyle      = lipgloss.NewStyle().Bold(true).Foreground(green)
	failStyle    = lipgloss.NewStyle().Bold(true).Foreground(red)
	warnStyle    = lipgloss.NewStyle().Bold(true).Foreground(yellow)
	headingStyle = lipgloss.NewStyle().Bold(true)
)

// Render summarizes a deployment. result may be nil when the run failed
// before it started.
func Render(result *deploy.Result, err error) string {
	var rows []string

	switch {
	case err == nil:
		rows = append(rows, okStyle.Render("Deployment finished"))
	default:
		rows = append(rows, failStyle.Render("Deployment failed"))
	}

	if result != nil {
		rows = append(rows, row("Run", result.RunID))

		if result.Failed() {
			rows = append(rows, row("Failed at", result.FailedStage.Step()))
		} else {
			rows = append(rows, row("Stage", result.Stage.String()))
		}

		if result.Port != 0 {
			rows = append(rows, row("Port", strconv.Itoa(int(result.Port))))
		}

		if result.PID != 0 {
			rows = append(rows, row("PID", strconv.Itoa(result.PID)))
		}

		rows = append(rows, row("Server", result.ServeState.String()))

		if result.InstallDir != "" {
			rows = append(rows, row("Output", result.InstallDir))
		}

		if !result.Failed() {
			rows = append(rows, row("Overrides", appliedText(result.OverlayApplied)))
		}
	}

	if err != nil {
		rows = append(rows, row("Reason", reason(err)))
	}

	box := boxStyle.BorderForeground(borderColor(err)).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))

	if result == nil || len(result.ManualDownloads) == 0 {
		return box + "\n"
	}

	return box + "\n" + renderManual(result.ManualDownloads)
}

// RenderStop summarizes a stop request.
func RenderStop(result *stopper.Result) string {
	switch result.Outcome {
	case stopper.OutcomeStopped:
		return okStyle.Render(fmt.Sprintf("Stopped package server %d on port %d",
			result.Session.PID, result.Session.Port)) + "\n"
	case stopper.OutcomeStale:
		return warnStyle.Render(fmt.Sprintf("Package server %d was not running, session removed",
			result.Session.PID)) + "\n"
	default:
		return headingStyle.Render("Nothing to stop") + "\n"
	}
}

func renderManual(downloads deploy.ManualDownloads) string {
	var builder strings.Builder

	builder.WriteString(warnStyle.Render(fmt.Sprintf("%d mods must be downloaded manually:", len(downloads))))
	builder.WriteString("\n")

	for _, d := range downloads {
		builder.WriteString("  ")
		builder.WriteString(headingStyle.Render(d.ModName))
		builder.WriteString("\n    save ")
		builder.WriteString(d.FileName)
		builder.WriteString("\n    from ")
		builder.WriteString(d.SourceURL)
		builder.WriteString("\n")
	}

	return builder.String()
}

func row(label, value string) string {
	return labelStyle.Render(label) + value
}

// reason prints the step error without repeating the step name already shown.
func reason(err error) string {
	var stageErr *deploy.StageError
	if errors.As(err, &stageErr) {
		err = stageErr.Err
	}

	return err.Error()
}

func appliedText(applied bool) string {
	if applied {
		return "applied"
	}

	return "none"
}

func borderColor(err error) lipgloss.Color {
	if err != nil {
		return red
	}

	return green
}
