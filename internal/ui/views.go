package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/linuxmatters/corti/internal/logging"
)

// Palette
var (
	primaryColor = lipgloss.Color("#2E7D9A")
	successColor = lipgloss.Color("#00AA00")
	activeColor  = lipgloss.Color("#FFA500")
	errorColor   = lipgloss.Color("#A40000")
	mutedColor   = lipgloss.Color("#888888")
)

// renderProcessingView renders the main processing view
func renderProcessingView(m Model) string {
	var b strings.Builder

	b.WriteString(renderHeader(m))
	b.WriteString("\n\n")

	b.WriteString(renderLevelQueue(m))
	b.WriteString("\n")

	b.WriteString(renderOverallProgress(m))

	return b.String()
}

// renderHeader renders the application header
func renderHeader(m Model) string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(primaryColor).
		Render("Corti 🐌 - Auditory Periphery Simulator")

	subtitle := lipgloss.NewStyle().
		Foreground(mutedColor).
		Italic(true).
		Render(fmt.Sprintf("Simulating %s at %d level(s)", m.Stimulus, len(m.Levels)))

	return title + "\n" + subtitle
}

// renderLevelQueue renders every level with its status
func renderLevelQueue(m Model) string {
	var b strings.Builder
	for _, lp := range m.Levels {
		b.WriteString(renderLevelEntry(m, lp))
		b.WriteString("\n")
	}
	return b.String()
}

// renderLevelEntry renders a single level in the queue
func renderLevelEntry(m Model, lp LevelProgress) string {
	name := fmt.Sprintf("%g dB SPL", lp.LevelDB)

	switch lp.Status {
	case StatusComplete:
		icon := lipgloss.NewStyle().Foreground(successColor).Render("✓")
		return fmt.Sprintf(" %s %s   %s", icon, name, formatElapsed(lp.ElapsedTime))

	case StatusRunning:
		icon := lipgloss.NewStyle().Foreground(activeColor).Render(spinnerFrames[m.spinnerIndex])
		return fmt.Sprintf(" %s %s\n%s", icon, name, renderLevelDetails(m, lp))

	case StatusError:
		icon := lipgloss.NewStyle().Foreground(errorColor).Render("✗")
		return fmt.Sprintf(" %s %s\n   Error in %s: %v", icon, name, lp.FailedStage, lp.Error)

	default:
		icon := lipgloss.NewStyle().Foreground(mutedColor).Render("○")
		return fmt.Sprintf(" %s %s   queued", icon, name)
	}
}

// renderLevelDetails renders stage progress for a running level
func renderLevelDetails(m Model, lp LevelProgress) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(primaryColor).
		Padding(0, 1).
		Width(60)

	var content strings.Builder

	stage := lp.Stage
	if stage == "" {
		stage = "starting"
	}
	fmt.Fprintf(&content, "Stage %d/%d: %s\n", lp.StageIndex+1, max(len(m.Stages), 1), stage)
	content.WriteString(renderProgressBar(lp.Progress, 40))
	content.WriteString("\n\n")

	elapsed := lp.ElapsedTime.Seconds()
	overall := lp.Overall(len(m.Stages))
	var remaining float64
	if overall > 0 {
		remaining = elapsed/overall - elapsed
	}
	fmt.Fprintf(&content, "⏱  Elapsed: %.1fs | Remaining: ~%.1fs", elapsed, remaining)

	return box.Render(content.String())
}

// renderProgressBar renders a progress bar
func renderProgressBar(progress float64, width int) string {
	progress = min(max(progress, 0), 1)
	filled := int(progress * float64(width))
	empty := width - filled

	filledStyle := lipgloss.NewStyle().Foreground(primaryColor)
	emptyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#444444"))

	bar := filledStyle.Render(strings.Repeat("━", filled)) +
		emptyStyle.Render(strings.Repeat("━", empty))

	return fmt.Sprintf("%s %3d%%", bar, int(progress*100))
}

// renderOverallProgress renders the overall progress footer
func renderOverallProgress(m Model) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(mutedColor).
		Padding(0, 1).
		Width(60)

	content := fmt.Sprintf("%d/%d levels complete", m.CompletedRuns, len(m.Levels))
	if m.FailedRuns > 0 {
		content += fmt.Sprintf(", %d failed", m.FailedRuns)
	}
	content += fmt.Sprintf(" [%s]", formatElapsed(time.Since(m.StartTime)))
	return box.Render(content)
}

// renderCompletionSummary renders the final completion summary
func renderCompletionSummary(m Model) string {
	var b strings.Builder

	if m.Error != nil {
		header := lipgloss.NewStyle().
			Bold(true).
			Foreground(errorColor).
			Render("✗ Simulation failed")
		b.WriteString(header)
		b.WriteString("\n\n")
		fmt.Fprintf(&b, "%v\n", m.Error)
		return b.String()
	}

	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(successColor).
		Render("✨ Simulation Complete!")
	b.WriteString(header)
	b.WriteString("\n\n")

	logging.DisplaySummary(&b, m.Summaries)

	if m.OutputDir != "" {
		b.WriteString("\n")
		b.WriteString(strings.Repeat("─", 60))
		b.WriteString("\n")
		fmt.Fprintf(&b, "Results saved to %s\n", m.OutputDir)
	}
	return b.String()
}

// formatElapsed formats elapsed time as MM:SS or HH:MM:SS
func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	mins := d / time.Minute
	d -= mins * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, mins, s)
	}
	return fmt.Sprintf("%02d:%02d", mins, s)
}
