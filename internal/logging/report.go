// This file writes the plain-text report saved with every run directory.

package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/linuxmatters/corti/internal/anf"
	"github.com/linuxmatters/corti/internal/brainstem"
	"github.com/linuxmatters/corti/internal/cochlea"
	"github.com/linuxmatters/corti/internal/params"
)

// ReportFile is the report's name inside a run directory.
const ReportFile = "report.log"

// =============================================================================
// Report Section Formatting Helpers
// =============================================================================

// writeSection writes a section header with title and dashed underline.
func writeSection(w io.Writer, title string) {
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("-", len(title)))
}

// ReportData contains everything needed to write a run report.
type ReportData struct {
	Dir       string // run directory
	Stimulus  string
	StartTime time.Time
	EndTime   time.Time
	Params    params.ModelParameters
	Summaries []Summary // one per level, in level order
	Files     []string
}

// GenerateReport writes report.log into data.Dir and returns its path.
//
// Report structure:
// 1. Header - stimulus, run directory and timestamp
// 2. Processing Summary - stage timings per level
// 3. Model - the parameters that shaped every level
// 4. Responses - one column per level
// 5. Tips - advice derived from the responses
// 6. Files - archive contents
func GenerateReport(data ReportData) (string, error) {
	path := filepath.Join(data.Dir, ReportFile)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create report: %w", err)
	}
	defer f.Close()

	WriteReport(f, data)
	return path, f.Close()
}

// WriteReport writes the report body to w.
func WriteReport(w io.Writer, data ReportData) {
	writeReportHeader(w, data)
	writeProcessingSummary(w, data)
	writeModel(w, data.Params)
	writeResponses(w, data.Summaries)
	writeTips(w, GenerateSimulationTips(data.Summaries, data.Params))
	writeFiles(w, data)
}

func writeReportHeader(w io.Writer, data ReportData) {
	fmt.Fprintln(w, "Corti Simulation Report")
	fmt.Fprintln(w, "=======================")
	fmt.Fprintf(w, "Stimulus: %s\n", data.Stimulus)
	if data.Dir != "" {
		fmt.Fprintf(w, "Output: %s\n", data.Dir)
	}
	fmt.Fprintf(w, "Completed: %s\n", data.EndTime.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintln(w, "")
}

// writeProcessingSummary outputs stage timings, one column per level.
func writeProcessingSummary(w io.Writer, data ReportData) {
	writeSection(w, "Processing Summary")

	if len(data.Summaries) > 0 {
		t := NewMetricTable(levelHeaders(data.Summaries)...)
		for _, stage := range []string{cochlea.StageName, anf.StageName, brainstem.StageName} {
			values := make([]string, len(data.Summaries))
			for i, s := range data.Summaries {
				if d, ok := s.Timings[stage]; ok {
					values[i] = formatDuration(d)
				}
			}
			t.AddRow(stage, values, "", "")
		}
		fmt.Fprint(w, t.String())
	}

	total := data.EndTime.Sub(data.StartTime)
	fmt.Fprintf(w, "Total: %s", formatDuration(total))
	simulated := 0.0
	for _, s := range data.Summaries {
		simulated += s.Duration
	}
	if simulated > 0 && total > 0 {
		rtf := total.Seconds() / simulated
		fmt.Fprintf(w, " (%.0fx slower than real time)", rtf)
	}
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "")
}

func writeModel(w io.Writer, p params.ModelParameters) {
	writeSection(w, "Model")
	fmt.Fprintf(w, "Sections:       %d\n", p.SectionCount)
	fmt.Fprintf(w, "Sample rate:    %s Hz\n", formatMetric(p.SampleRate, 0))
	fmt.Fprintf(w, "Substeps:       %d per sample\n", p.SubSteps())
	fmt.Fprintf(w, "Nonlinearity:   %s (slope %.1f dB/dB)\n", p.Nonlinearity, p.CompressionSlope)
	if p.Irregularities {
		fmt.Fprintf(w, "Irregularities: %.1f%% (subject %d)\n", p.IrregularityPercent, p.Subject)
	} else {
		fmt.Fprintln(w, "Irregularities: off")
	}
	fmt.Fprintf(w, "Fibers:         %d per section (%.0f%% high-SR, %.0f%% low-SR)\n",
		p.Fibers.FibersPerSection, p.Fibers.HighSRFraction*100, p.Fibers.LowSRFraction*100)
	fmt.Fprintf(w, "Neuropathy:     %s\n", p.Neuropathy)
	fmt.Fprintf(w, "CF weighting:   %v\n", p.CFWeighting)
	fmt.Fprintln(w, "")
}

func writeResponses(w io.Writer, summaries []Summary) {
	if len(summaries) == 0 {
		return
	}
	writeSection(w, "Responses")
	if b := summaries[0].Brainstem; b != "" {
		fmt.Fprintf(w, "Brainstem model: %s\n\n", b)
	}
	fmt.Fprint(w, levelTable(summaries).String())
	fmt.Fprintln(w, "")
}

func writeTips(w io.Writer, tips []SimulationTip) {
	if len(tips) == 0 {
		return
	}
	writeSection(w, "Tips")
	for _, tip := range tips {
		fmt.Fprintf(w, "- %s\n", wrapText(tip.Message, 76, "  "))
	}
	fmt.Fprintln(w, "")
}

func writeFiles(w io.Writer, data ReportData) {
	if len(data.Files) == 0 {
		return
	}
	writeSection(w, "Files")
	for _, f := range data.Files {
		fmt.Fprintln(w, filepath.Base(f))
	}
}

func levelHeaders(summaries []Summary) []string {
	headers := make([]string, len(summaries))
	for i, s := range summaries {
		headers[i] = formatMetric(s.LevelDB, 0) + " dB"
	}
	return headers
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}

	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60

	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}

	hours := minutes / 60
	minutes = minutes % 60
	return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
}
