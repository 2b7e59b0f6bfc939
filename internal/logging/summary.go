// This file reduces a response bundle to the handful of numbers a report
// or console summary shows per stimulus level.

package logging

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/linuxmatters/corti/internal/anf"
	"github.com/linuxmatters/corti/internal/dsp"
	"github.com/linuxmatters/corti/internal/pipeline"
)

// WavePeak locates the largest positive excursion of a brainstem wave.
type WavePeak struct {
	Amplitude float64 // volts, NaN when the brainstem was disabled
	Latency   float64 // seconds after stimulus onset
}

// Summary condenses one run.
type Summary struct {
	RunID    string
	Stimulus string
	LevelDB  float64
	Seed     uint64
	Duration float64 // seconds of simulated time
	Onset    float64 // seconds to the first non-zero stimulus sample

	PeakVelocity     float64 // m/s
	PeakVelocityCF   float64 // Hz, CF of the section carrying PeakVelocity
	PeakDisplacement float64 // m
	EmissionPeak     float64

	Fibers         int
	Spikes         int
	MeanHighSRRate float64 // spikes/s, averaged over sections and time
	MeanLowSRRate  float64

	Brainstem string // model name, empty when disabled
	Waves     [3]WavePeak
	PeakToPeak float64 // of the summed response

	Timings map[string]time.Duration
	Elapsed time.Duration
}

// Summarize computes the summary of b.
func Summarize(b *pipeline.ResponseBundle) Summary {
	s := Summary{
		RunID:    b.RunID,
		Stimulus: b.Stimulus.Name,
		LevelDB:  b.Stimulus.Level(),
		Seed:     b.Seed,
		Duration: b.Stimulus.Duration(),
		Timings:  b.Timings,
	}
	for _, d := range b.Timings {
		s.Elapsed += d
	}

	if bm := b.BasilarMembrane; bm != nil {
		for i, v := range bm.Velocity {
			if p := dsp.Peak(v); p > s.PeakVelocity {
				s.PeakVelocity = p
				s.PeakVelocityCF = bm.CF[i]
			}
		}
		for _, y := range bm.Displacement {
			s.PeakDisplacement = max(s.PeakDisplacement, dsp.Peak(y))
		}
		s.EmissionPeak = dsp.Peak(bm.Emission)
	}

	if an := b.AuditoryNerve; an != nil {
		s.Fibers = len(an.Trains)
		s.Spikes = an.SpikeCount()
		s.MeanHighSRRate = meanRate(an.Rates[anf.HighSR])
		s.MeanLowSRRate = meanRate(an.Rates[anf.LowSR])
	}

	for i := range s.Waves {
		s.Waves[i] = WavePeak{Amplitude: math.NaN(), Latency: math.NaN()}
	}
	s.PeakToPeak = math.NaN()
	if bs := b.Brainstem; bs != nil {
		s.Brainstem = bs.Model.String()
		onset := onsetIndex(b.Stimulus.Samples)
		s.Onset = float64(onset) / bs.SampleRate
		for i, w := range [][]float64{bs.Wave1, bs.Wave3, bs.Wave5} {
			s.Waves[i] = wavePeak(w, onset, bs.SampleRate)
		}
		s.PeakToPeak = peakToPeak(bs.Response)
	}
	return s
}

func meanRate(rates [][]float64) float64 {
	if len(rates) == 0 {
		return math.NaN()
	}
	sum, n := 0.0, 0
	for _, r := range rates {
		for _, v := range r {
			sum += v
		}
		n += len(r)
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// onsetIndex is the first non-zero stimulus sample.
func onsetIndex(x []float64) int {
	for i, v := range x {
		if v != 0 {
			return i
		}
	}
	return 0
}

func wavePeak(w []float64, onset int, fs float64) WavePeak {
	best, at := 0.0, -1
	for i := onset; i < len(w); i++ {
		if w[i] > best {
			best, at = w[i], i
		}
	}
	if at < 0 {
		return WavePeak{Amplitude: 0, Latency: math.NaN()}
	}
	return WavePeak{Amplitude: best, Latency: float64(at-onset) / fs}
}

func peakToPeak(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	lo, hi := x[0], x[0]
	for _, v := range x {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return hi - lo
}

// waveNames label Summary.Waves.
var waveNames = [3]string{"I", "III", "V"}

// centralGain is the wave V to wave I amplitude ratio, NaN when either
// wave is missing.
func (s Summary) centralGain() float64 {
	w1, w5 := s.Waves[0].Amplitude, s.Waves[2].Amplitude
	if math.IsNaN(w1) || math.IsNaN(w5) || w1 <= 0 {
		return math.NaN()
	}
	return w5 / w1
}

// interpretCentralGain describes the wave V/I amplitude ratio. Cochlear
// synaptopathy lowers wave I while central gain holds wave V up, so the
// ratio grows as fibers are lost.
func interpretCentralGain(ratio float64) string {
	switch {
	case math.IsNaN(ratio):
		return ""
	case ratio < 1:
		return "wave V smaller than wave I"
	case ratio < 3:
		return "typical"
	case ratio < 6:
		return "elevated, consistent with fiber loss"
	default:
		return "strongly elevated"
	}
}

// DisplaySummary writes a compact per-level summary for the console.
func DisplaySummary(w io.Writer, summaries []Summary) {
	if len(summaries) == 0 {
		return
	}
	first := summaries[0]
	fmt.Fprintln(w, strings.Repeat("=", 70))
	fmt.Fprintf(w, "SIMULATION: %s\n", first.Stimulus)
	fmt.Fprintln(w, strings.Repeat("=", 70))
	fmt.Fprintf(w, "Duration:  %s\n", formatMilliseconds(first.Duration))
	if first.Brainstem != "" {
		fmt.Fprintf(w, "Brainstem: %s\n", first.Brainstem)
	}
	fmt.Fprintln(w)

	fmt.Fprint(w, levelTable(summaries).String())
}

// levelTable is the headline table shared by the console and the report.
func levelTable(summaries []Summary) *MetricTable {
	t := NewMetricTable(levelHeaders(summaries)...)

	column := func(f func(Summary) float64) []float64 {
		out := make([]float64, len(summaries))
		for i, s := range summaries {
			out[i] = f(s)
		}
		return out
	}
	levels := func(f func(Summary) float64, ref float64) []string {
		out := make([]string, len(summaries))
		for i, s := range summaries {
			out[i] = formatMetricLevel(f(s), ref, 1)
		}
		return out
	}

	t.AddRow("BM velocity peak", levels(func(s Summary) float64 { return s.PeakVelocity }, 1e-9), "dB re 1 nm/s", "")
	t.AddMetricRow("Best CF", column(func(s Summary) float64 { return s.PeakVelocityCF }), 0, "Hz", "")
	t.AddMetricRow("Spikes", column(func(s Summary) float64 { return float64(s.Spikes) }), 0, "", "")
	t.AddMetricRow("High-SR rate", column(func(s Summary) float64 { return s.MeanHighSRRate }), 1, "spikes/s", "")
	t.AddMetricRow("Low-SR rate", column(func(s Summary) float64 { return s.MeanLowSRRate }), 1, "spikes/s", "")
	if first := summaries[0]; first.Brainstem != "" {
		for i, name := range waveNames {
			t.AddMetricRow("Wave "+name+" peak", column(func(s Summary) float64 { return s.Waves[i].Amplitude * 1e6 }), 3, "µV", "")
			t.AddMetricRow("Wave "+name+" latency", column(func(s Summary) float64 { return s.Waves[i].Latency * 1e3 }), 2, "ms", "")
		}
		last := summaries[len(summaries)-1]
		t.AddMetricRow("Wave V/I ratio", column(Summary.centralGain), 2, "", interpretCentralGain(last.centralGain()))
	}
	return t
}

// formatMilliseconds formats a duration given in seconds.
func formatMilliseconds(seconds float64) string {
	return fmt.Sprintf("%.1f ms", seconds*1e3)
}
