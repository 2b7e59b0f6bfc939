// This file contains the table formatting used by reports: one labelled row
// per metric and one column per stimulus level.

package logging

import (
	"fmt"
	"math"
	"strings"
)

// MetricRow represents a single row in a comparison table.
// Values are pre-formatted strings so rows can mix precisions.
type MetricRow struct {
	Label          string   // Row label, e.g. "Wave I peak"
	Values         []string // One value per column
	Unit           string   // Unit suffix, "" for unitless
	Interpretation string   // Optional, only shown if any row has one
}

// MetricTable formats aligned columns for metric comparison.
type MetricTable struct {
	Headers []string
	Rows    []MetricRow
}

// String renders the table with aligned columns.
// - Labels are left-aligned
// - Values are right-aligned within their column
// - Units follow the last value column
// - The interpretation column only appears if a row has one
func (t *MetricTable) String() string {
	if len(t.Rows) == 0 {
		return ""
	}

	hasInterpretation := false
	for _, row := range t.Rows {
		if row.Interpretation != "" {
			hasInterpretation = true
			break
		}
	}

	labelWidth := 0
	for _, row := range t.Rows {
		labelWidth = max(labelWidth, len(row.Label))
	}

	valueWidths := make([]int, len(t.Headers))
	for i, header := range t.Headers {
		valueWidths[i] = len(header)
	}
	for _, row := range t.Rows {
		for i, val := range row.Values {
			if i < len(valueWidths) {
				valueWidths[i] = max(valueWidths[i], len(val))
			}
		}
	}

	unitWidth := 0
	for _, row := range t.Rows {
		unitWidth = max(unitWidth, len(row.Unit))
	}

	var sb strings.Builder

	sb.WriteString(strings.Repeat(" ", labelWidth+2))
	for i, header := range t.Headers {
		fmt.Fprintf(&sb, "%*s  ", valueWidths[i], header)
	}
	if unitWidth > 0 {
		sb.WriteString(strings.Repeat(" ", unitWidth+1))
	}
	if hasInterpretation {
		sb.WriteString("Interpretation")
	}
	sb.WriteString("\n")

	for _, row := range t.Rows {
		fmt.Fprintf(&sb, "%-*s  ", labelWidth, row.Label)
		for i := range t.Headers {
			val := MissingValue
			if i < len(row.Values) && row.Values[i] != "" {
				val = row.Values[i]
			}
			fmt.Fprintf(&sb, "%*s  ", valueWidths[i], val)
		}
		if unitWidth > 0 {
			fmt.Fprintf(&sb, "%-*s ", unitWidth, row.Unit)
		}
		if hasInterpretation {
			sb.WriteString(row.Interpretation)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// =============================================================================
// Metric Formatting Helpers
// =============================================================================

// MissingValue is the placeholder for unavailable measurements
const MissingValue = "-"

// formatMetric formats a numeric value with appropriate precision.
// Handles:
// - Regular floats: formatted to specified decimal places
// - Very small values (< 0.0001): scientific notation
// - NaN/Inf: returns MissingValue
func formatMetric(value float64, decimals int) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return MissingValue
	}
	if value != 0 && math.Abs(value) < 0.0001 {
		return fmt.Sprintf("%.2e", value)
	}
	return fmt.Sprintf("%.*f", decimals, value)
}

// formatMetricSigned formats a value with explicit sign for positive values.
func formatMetricSigned(value float64, decimals int) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return MissingValue
	}
	return fmt.Sprintf("%+.*f", decimals, value)
}

// formatMetricLevel formats a linear amplitude in dB relative to ref.
// Zero or negative amplitudes show as the floor.
func formatMetricLevel(value, ref float64, decimals int) string {
	if math.IsNaN(value) {
		return MissingValue
	}
	if value <= 0 {
		return "< -200"
	}
	return fmt.Sprintf("%.*f", decimals, 20*math.Log10(value/ref))
}

// =============================================================================
// Table Builder Helpers
// =============================================================================

// NewMetricTable creates a table with the given column headers.
func NewMetricTable(headers ...string) *MetricTable {
	return &MetricTable{Headers: headers}
}

// AddRow adds a row with pre-formatted values.
func (t *MetricTable) AddRow(label string, values []string, unit string, interpretation string) {
	t.Rows = append(t.Rows, MetricRow{
		Label:          label,
		Values:         values,
		Unit:           unit,
		Interpretation: interpretation,
	})
}

// AddMetricRow adds a row of numeric values, one per column.
// Pass math.NaN() for missing values.
func (t *MetricTable) AddMetricRow(label string, values []float64, decimals int, unit string, interpretation string) {
	formatted := make([]string, len(values))
	for i, v := range values {
		formatted[i] = formatMetric(v, decimals)
	}
	t.AddRow(label, formatted, unit, interpretation)
}
