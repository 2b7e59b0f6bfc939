package cochlea

import (
	"math"

	"github.com/linuxmatters/corti/internal/params"
	"github.com/linuxmatters/corti/internal/philox"
)

// cochleaStream is the philox stream index of the pole roughness pattern.
const cochleaStream = 1

// poleState holds the instantaneous pole of every node together with the
// Shera damping, delayed stiffness and delay derived from it.
type poleState struct {
	kind params.Nonlinearity

	start []float64 // pole at rest, after roughness
	max   []float64 // saturated pole

	// Compression hyperbola, per node.
	knee1    []float64 // velocity or displacement at compression onset
	sinTheta []float64
	cosTheta []float64
	sa, sb   []float64
	slope    []float64

	pole []float64
	damp []float64 // Shera D
	rho  []float64 // delayed stiffness gain
	mu   []float64 // delay in periods of the CF
}

func newPoleState(p params.ModelParameters, g *geometry) *poleState {
	n := g.n
	knees := params.CompressionKnees(p.CompressionSlope)

	// Node 0 is the stapes and reuses the basal pole.
	base := make([]float64, n)
	base[0] = p.PolePositions[0]
	copy(base[1:], p.PolePositions)

	// Roughness in [-1, 1) per node, zero when disabled.
	rough := make([]float64, n)
	if p.Irregularities {
		rng := philox.New(p.Subject, cochleaStream)
		for i := range rough {
			rough[i] = rng.Float11()
		}
	}

	s := &poleState{
		kind:     p.Nonlinearity,
		start:    make([]float64, n),
		max:      make([]float64, n),
		knee1:    make([]float64, n),
		sinTheta: make([]float64, n),
		cosTheta: make([]float64, n),
		sa:       make([]float64, n),
		sb:       make([]float64, n),
		slope:    make([]float64, n),
		pole:     make([]float64, n),
		damp:     make([]float64, n),
		rho:      make([]float64, n),
		mu:       make([]float64, n),
	}

	k1, k2 := knees.Vknee1, knees.Vknee2
	if p.Nonlinearity == params.DisplacementNonlinearity {
		k1, k2 = knees.Yknee1, knees.Yknee2
	}
	const factor = 100.0
	for i := 0; i < n; i++ {
		norm := math.Pow(10, rough[i]/20)
		s.start[i] = (1 + p.IrregularityPercent*rough[i]/2) * base[i]
		s.max[i] = knees.MaxPole(base[i])

		ratio := k2 / k1
		theta0 := math.Atan((s.max[i] - s.start[i]) * factor / (ratio - 1))
		theta := theta0 / 2
		sfoc := s.start[i] * factor / ratio
		se := math.Cos((math.Pi - theta0) / 2)

		s.knee1[i] = k1 * norm
		if p.Nonlinearity == params.DisplacementNonlinearity {
			// Displacement knees are defined at 1 kHz and scale with 1/ω.
			s.knee1[i] *= g.omega[g.oneKHz] / g.omega[i]
		}
		s.sinTheta[i] = math.Sin(theta)
		s.cosTheta[i] = math.Cos(theta)
		s.sb[i] = sfoc * se
		s.sa[i] = sfoc * math.Sqrt(1-se*se)
		s.slope[i] = math.Cos(theta) / math.Cos(2*theta)
	}

	for i := 0; i < n; i++ {
		s.pole[i] = s.target(i, 0)
		s.setShera(i, s.pole[i])
	}
	return s
}

// target returns the instantaneous pole for a drive of magnitude x, the
// velocity or displacement of node i.
func (s *poleState) target(i int, x float64) float64 {
	if s.kind == params.Linear {
		return s.start[i]
	}
	const factor = 100.0
	v := math.Abs(x) / s.knee1[i]
	sxp := (v - 1) * s.slope[i]
	r := sxp / s.sa[i]
	syp := s.sb[i] * math.Sqrt(1+r*r)
	sy := sxp*s.sinTheta[i] + syp*s.cosTheta[i]
	return math.Min(s.start[i]+sy/factor, s.max[i])
}

// update moves node i towards the pole for drive x. The Shera parameters
// are only recomputed when the pole moved by more than one percent.
func (s *poleState) update(i int, x float64) {
	p := s.target(i, x)
	if math.Abs(p-s.pole[i]) > poleUpdateDelta*math.Abs(s.pole[i]) {
		s.pole[i] = p
		s.setShera(i, p)
	}
}

func (s *poleState) setShera(i int, p float64) {
	a := (p + math.Sqrt(p*p+sheraC*(1-p*p))) / sheraC
	d := 2 * (p - a)
	s.damp[i] = d
	s.mu[i] = 1 / a
	s.rho[i] = 2 * a * math.Sqrt(1-(d/2)*(d/2)) * math.Exp(-p/a)
}
