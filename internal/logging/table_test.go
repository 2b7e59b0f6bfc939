package logging

import (
	"math"
	"strings"
	"testing"
)

func TestFormatMetric(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		decimals int
		want     string
	}{
		{"zero", 0.0, 2, "0.00"},
		{"positive", 3.14159, 2, "3.14"},
		{"negative", -16.5, 1, "-16.5"},
		{"large", 12345.6789, 2, "12345.68"},
		{"small_normal", 0.001, 3, "0.001"},
		{"very_small_scientific", 0.00001, 2, "1.00e-05"},
		{"very_small_negative", -0.00001, 2, "-1.00e-05"},
		{"nan", math.NaN(), 2, MissingValue},
		{"positive_inf", math.Inf(1), 2, MissingValue},
		{"negative_inf", math.Inf(-1), 2, MissingValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatMetric(tt.value, tt.decimals)
			if got != tt.want {
				t.Errorf("formatMetric(%v, %d) = %q, want %q", tt.value, tt.decimals, got, tt.want)
			}
		})
	}
}

func TestFormatMetricSigned(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		decimals int
		want     string
	}{
		{"positive", 2.5, 1, "+2.5"},
		{"negative", -1.2, 1, "-1.2"},
		{"zero", 0.0, 1, "+0.0"},
		{"nan", math.NaN(), 1, MissingValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatMetricSigned(tt.value, tt.decimals)
			if got != tt.want {
				t.Errorf("formatMetricSigned(%v, %d) = %q, want %q", tt.value, tt.decimals, got, tt.want)
			}
		})
	}
}

func TestFormatMetricLevel(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		ref   float64
		want  string
	}{
		{"reference", 1e-9, 1e-9, "0.0"},
		{"hundredfold", 1e-7, 1e-9, "40.0"},
		{"zero", 0, 1e-9, "< -200"},
		{"nan", math.NaN(), 1e-9, MissingValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatMetricLevel(tt.value, tt.ref, 1); got != tt.want {
				t.Errorf("formatMetricLevel(%v, %v) = %q, want %q", tt.value, tt.ref, got, tt.want)
			}
		})
	}
}

func TestMetricTableString(t *testing.T) {
	t.Run("basic_two_column", func(t *testing.T) {
		table := NewMetricTable("40 dB", "80 dB")
		table.AddRow("Spikes", []string{"120", "480"}, "", "")
		table.AddRow("Wave I latency", []string{"2.10", "1.60"}, "ms", "")

		output := table.String()

		for _, want := range []string{"40 dB", "80 dB", "Wave I latency", "480", "ms"} {
			if !strings.Contains(output, want) {
				t.Errorf("output missing %q:\n%s", want, output)
			}
		}
	})

	t.Run("with_interpretation", func(t *testing.T) {
		table := NewMetricTable("60 dB")
		table.AddRow("Wave V/I ratio", []string{"4.20"}, "", "elevated")

		output := table.String()

		if !strings.Contains(output, "Interpretation") {
			t.Error("Output should contain 'Interpretation' header when rows have interpretations")
		}
		if !strings.Contains(output, "elevated") {
			t.Error("Output should contain interpretation text")
		}
	})

	t.Run("missing_values", func(t *testing.T) {
		table := NewMetricTable("A", "B", "C")
		table.AddRow("Test Metric", []string{"-10.0", ""}, "dB", "")

		lines := strings.Split(table.String(), "\n")
		if got := strings.Count(lines[1], " - "); got != 2 {
			t.Errorf("missing values shown %d times in %q, want 2", got, lines[1])
		}
	})

	t.Run("empty_table", func(t *testing.T) {
		if output := NewMetricTable("A").String(); output != "" {
			t.Errorf("Empty table should return empty string, got %q", output)
		}
	})

	t.Run("add_metric_row_with_nan", func(t *testing.T) {
		table := NewMetricTable("A", "B", "C")
		table.AddMetricRow("Test", []float64{-23.5, math.NaN(), -16.0}, 1, "dB", "")

		lines := strings.Split(table.String(), "\n")
		if len(lines) < 2 {
			t.Fatal("Expected at least 2 lines (header + data)")
		}
		dataLine := lines[1]
		if !strings.Contains(dataLine, "-23.5") || !strings.Contains(dataLine, "-16.0") {
			t.Errorf("values missing from %q", dataLine)
		}
		if !strings.Contains(dataLine, " - ") {
			t.Errorf("NaN value should display as dash in: %q", dataLine)
		}
	})
}

func TestMetricTableAlignment(t *testing.T) {
	table := NewMetricTable("A", "B", "C")
	table.AddRow("Short", []string{"1", "2", "3"}, "", "")
	table.AddRow("Much Longer Label", []string{"100", "200", "300"}, "", "")

	lines := strings.Split(strings.TrimRight(table.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected 3 lines (header + 2 data), got %d", len(lines))
	}
	if len(lines[1]) != len(lines[2]) {
		t.Errorf("data rows differ in width: %q vs %q", lines[1], lines[2])
	}
	if strings.Index(lines[1], "3") != strings.Index(lines[2], "300")+2 {
		t.Errorf("values not right-aligned:\n%s\n%s", lines[1], lines[2])
	}
}
