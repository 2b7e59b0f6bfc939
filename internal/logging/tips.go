package logging

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/linuxmatters/corti/internal/params"
)

// SimulationTip is one piece of advice derived from a finished run.
type SimulationTip struct {
	Priority int    // Higher = more important (1-10)
	Message  string // Human-readable advice (1-2 sentences)
	RuleID   string // Identifier for testing/logging (e.g., "no_spikes")
}

// MaxSimulationTips is the maximum number of tips to return.
const MaxSimulationTips = 5

// Calibration limits the tips check against.
const (
	maxCalibratedLevel = 100.0 // dB SPL
	minRecord          = 0.010 // seconds
	minSections        = 100
	drivenHighSRRate   = 65.0 // spikes/s, just above the high-SR spontaneous rate
)

type tipRule func([]Summary, params.ModelParameters) *SimulationTip

// GenerateSimulationTips inspects the summaries of one stimulus set and
// returns prioritised suggestions.
func GenerateSimulationTips(summaries []Summary, p params.ModelParameters) []SimulationTip {
	if len(summaries) == 0 {
		return nil
	}

	var tips []SimulationTip
	fired := make(map[string]bool)

	rules := []tipRule{
		tipNoSpikes,
		tipLevelOutOfRange,
		tipNoDrivenResponse,
		tipWaveTruncated,
		tipShortRecord,
		tipCentralGain,
		tipFewSections,
	}
	for _, rule := range rules {
		if tip := rule(summaries, p); tip != nil {
			tips = append(tips, *tip)
			fired[tip.RuleID] = true
		}
	}

	tips = applyExclusions(tips, fired)

	sort.SliceStable(tips, func(i, j int) bool {
		return tips[i].Priority > tips[j].Priority
	})
	if len(tips) > MaxSimulationTips {
		tips = tips[:MaxSimulationTips]
	}
	return tips
}

// applyExclusions drops tips made redundant by a more specific one.
func applyExclusions(tips []SimulationTip, fired map[string]bool) []SimulationTip {
	var result []SimulationTip
	for _, tip := range tips {
		switch tip.RuleID {
		case "no_driven_response":
			if fired["no_spikes"] {
				continue
			}
		case "short_record":
			if fired["wave_truncated"] {
				continue
			}
		case "central_gain_high":
			if fired["no_spikes"] || fired["no_driven_response"] {
				continue
			}
		}
		result = append(result, tip)
	}
	return result
}

// wrapText wraps text at word boundaries to fit within maxWidth columns.
// Continuation lines are prefixed with indent.
func wrapText(text string, maxWidth int, indent string) string {
	words := strings.Fields(text)
	var lines []string
	currentLine := ""

	for _, word := range words {
		if currentLine == "" {
			currentLine = word
		} else if len(currentLine)+1+len(word) <= maxWidth {
			currentLine += " " + word
		} else {
			lines = append(lines, currentLine)
			currentLine = word
		}
	}
	if currentLine != "" {
		lines = append(lines, currentLine)
	}

	return strings.Join(lines, "\n"+indent)
}

// tipNoSpikes fires when any level produced no spikes at all.
func tipNoSpikes(summaries []Summary, _ params.ModelParameters) *SimulationTip {
	for _, s := range summaries {
		if s.Spikes == 0 {
			return &SimulationTip{
				Priority: 10,
				RuleID:   "no_spikes",
				Message:  fmt.Sprintf("No spikes were generated at %.0f dB SPL - check the fiber fractions and the neuropathy setting.", s.LevelDB),
			}
		}
	}
	return nil
}

// tipLevelOutOfRange fires when a level exceeds the calibrated range of
// the middle ear and the nonlinearity.
func tipLevelOutOfRange(summaries []Summary, _ params.ModelParameters) *SimulationTip {
	loudest := math.Inf(-1)
	for _, s := range summaries {
		loudest = max(loudest, s.LevelDB)
	}
	if loudest <= maxCalibratedLevel {
		return nil
	}
	return &SimulationTip{
		Priority: 9,
		RuleID:   "level_out_of_range",
		Message:  fmt.Sprintf("The loudest level (%.0f dB SPL) is above %.0f dB SPL, where the cochlear compression is no longer calibrated.", loudest, maxCalibratedLevel),
	}
}

// tipNoDrivenResponse fires when even the loudest level leaves high-SR
// fibers near their spontaneous rate.
func tipNoDrivenResponse(summaries []Summary, _ params.ModelParameters) *SimulationTip {
	best := math.Inf(-1)
	for _, s := range summaries {
		if !math.IsNaN(s.MeanHighSRRate) {
			best = max(best, s.MeanHighSRRate)
		}
	}
	if math.IsInf(best, -1) || best >= drivenHighSRRate {
		return nil
	}
	return &SimulationTip{
		Priority: 8,
		RuleID:   "no_driven_response",
		Message:  "The auditory nerve barely rises above spontaneous activity - raise the stimulus level or lengthen the stimulus.",
	}
}

// tipWaveTruncated fires when wave V peaks in the last millisecond of the
// record, which usually means the peak lies beyond it.
func tipWaveTruncated(summaries []Summary, _ params.ModelParameters) *SimulationTip {
	for _, s := range summaries {
		lat := s.Waves[2].Latency
		if math.IsNaN(lat) {
			continue
		}
		if s.Onset+lat >= s.Duration-1e-3 {
			return &SimulationTip{
				Priority: 7,
				RuleID:   "wave_truncated",
				Message:  fmt.Sprintf("Wave V peaks at the end of the %.0f dB SPL record - add post-stimulus time so the brainstem response can finish.", s.LevelDB),
			}
		}
	}
	return nil
}

// tipShortRecord fires when the record is too short to hold wave V.
func tipShortRecord(summaries []Summary, _ params.ModelParameters) *SimulationTip {
	if summaries[0].Duration >= minRecord {
		return nil
	}
	return &SimulationTip{
		Priority: 6,
		RuleID:   "short_record",
		Message:  fmt.Sprintf("Records shorter than %.0f ms cut off the later brainstem waves.", minRecord*1e3),
	}
}

// tipCentralGain fires when the wave V/I ratio is elevated at some level.
func tipCentralGain(summaries []Summary, p params.ModelParameters) *SimulationTip {
	for _, s := range summaries {
		ratio := s.centralGain()
		if math.IsNaN(ratio) || ratio < 3 {
			continue
		}
		msg := fmt.Sprintf("Wave V is %.1f times wave I at %.0f dB SPL, a pattern associated with auditory nerve fiber loss.", ratio, s.LevelDB)
		if p.Neuropathy.Kind != params.NoNeuropathy {
			msg = fmt.Sprintf("Wave V is %.1f times wave I at %.0f dB SPL, as expected with %s neuropathy.", ratio, s.LevelDB, p.Neuropathy)
		}
		return &SimulationTip{Priority: 5, RuleID: "central_gain_high", Message: msg}
	}
	return nil
}

// tipFewSections fires for coarse cochlear models.
func tipFewSections(_ []Summary, p params.ModelParameters) *SimulationTip {
	if p.SectionCount >= minSections {
		return nil
	}
	return &SimulationTip{
		Priority: 3,
		RuleID:   "few_sections",
		Message:  fmt.Sprintf("Only %d cochlear sections were simulated - use %d for results comparable with published data.", p.SectionCount, params.DefaultSectionCount),
	}
}
