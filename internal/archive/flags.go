package archive

import (
	"fmt"
	"strings"

	"github.com/linuxmatters/corti/internal/faults"
)

// Flag selects one component of a run for saving.
type Flag rune

const (
	CenterFrequencies Flag = 'c'
	Acceleration      Flag = 'a' // accepted, never produced
	Velocity          Flag = 'v'
	Displacement      Flag = 'y'
	InnerHairCell     Flag = 'i'
	HighSRRates       Flag = 'h'
	MediumSRRates     Flag = 'm' // accepted, the model has no medium class
	LowSRRates        Flag = 'l'
	Emission          Flag = 'e'
	Stimulus          Flag = 's'
	StimulusLevel     Flag = 'd'
	Brainstem         Flag = 'b'
	SpikeTrains       Flag = 'p'
)

// DefaultFlags saves everything a summary needs without the spike trains.
const DefaultFlags = "cavihlmesdb"

var known = map[Flag]string{
	CenterFrequencies: "center frequencies",
	Acceleration:      "basilar membrane acceleration",
	Velocity:          "basilar membrane velocity",
	Displacement:      "basilar membrane displacement",
	InnerHairCell:     "inner hair cell potentials",
	HighSRRates:       "high spontaneous rate fiber rates",
	MediumSRRates:     "medium spontaneous rate fiber rates",
	LowSRRates:        "low spontaneous rate fiber rates",
	Emission:          "otoacoustic emission",
	Stimulus:          "stimulus waveform",
	StimulusLevel:     "stimulus level",
	Brainstem:         "brainstem waves",
	SpikeTrains:       "spike trains",
}

// Unsupported flags are accepted for compatibility and produce nothing.
var unsupported = map[Flag]bool{Acceleration: true, MediumSRRates: true}

// Flags is a parsed save selection.
type Flags map[Flag]bool

// ParseFlags parses a string of flag characters such as "cvihl".
func ParseFlags(s string) (Flags, error) {
	f := make(Flags)
	for _, r := range strings.TrimSpace(s) {
		if _, ok := known[Flag(r)]; !ok {
			return nil, faults.InvalidParameters("unknown save flag %q", r)
		}
		f[Flag(r)] = true
	}
	return f, nil
}

// Has reports whether flag is set.
func (f Flags) Has(flag Flag) bool { return f[flag] }

// Unsupported lists the set flags that produce no output.
func (f Flags) Unsupported() []Flag {
	var out []Flag
	for _, flag := range []Flag{Acceleration, MediumSRRates} {
		if f[flag] {
			out = append(out, flag)
		}
	}
	return out
}

// Describe returns a help line per known flag, in DefaultFlags order
// followed by the rest.
func Describe() []string {
	order := DefaultFlags + "yp"
	lines := make([]string, 0, len(order))
	for _, r := range order {
		line := fmt.Sprintf("'%c' : %s", r, known[Flag(r)])
		if unsupported[Flag(r)] {
			line += " (not supported)"
		}
		lines = append(lines, line)
	}
	return lines
}
