package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/linuxmatters/corti/internal/params"
)

func TestGenerateReport(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	data := ReportData{
		Dir:       dir,
		Stimulus:  "click",
		StartTime: start,
		EndTime:   start.Add(8 * time.Second),
		Params:    params.WithSections(50, 100e3),
		Summaries: []Summary{Summarize(fakeBundle(40)), Summarize(fakeBundle(80))},
		Files:     []string{filepath.Join(dir, "periphery-40dB-sections.arrow")},
	}

	path, err := GenerateReport(data)
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(dir, ReportFile) {
		t.Errorf("path = %s", path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	report := string(raw)

	for _, want := range []string{
		"Corti Simulation Report",
		"Processing Summary",
		"cochlea",
		"2.0s",
		"500ms",
		"Total: 8.0s (200x slower than real time)",
		"Sections:       50",
		"Neuropathy:     none",
		"Responses",
		"Brainstem model: NELSON_CARNEY_2004",
		"Wave III peak",
		"Tips",
		"Only 50 cochlear sections",
		"periphery-40dB-sections.arrow",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1m 30s"},
		{2*time.Hour + 5*time.Minute + 3*time.Second, "2h 5m 3s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
