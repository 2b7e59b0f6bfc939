package cochlea

import "math"

// Partition and fluid constants.
const (
	cochleaLength    = 0.035 // m
	helicotremaWidth = 0.001 // m
	scalaWidth       = 0.001 // m
	scalaHeight      = 0.001 // m
	fluidDensity     = 1e3   // kg/m³

	// Greenwood place-frequency map, f = A·10^(-αx) - B.
	greenwoodA     = 20682
	greenwoodAlpha = 61.765
	greenwoodB     = 140.6

	// Middle ear.
	stapesArea      = 3e-6
	middleEarR      = 0.30451925e12
	puriaLow        = 600.0  // Hz
	puriaHigh       = 3000.0 // Hz
	puriaGainDB     = 18.0
	zweigN          = 1.5
	sheraMuMax      = 4.3
	sheraC          = 120.8998691636393
	poleUpdateDelta = 0.01 // relative pole change that triggers a parameter update

	// StabilityLimit bounds h·ω for the fastest section under RK4.
	StabilityLimit = 2.0

	// MaxVelocity is the largest basilar membrane velocity, in m/s, treated
	// as physical. Anything larger means the integration diverged.
	MaxVelocity = 1.0
)

// geometry holds the derived, time invariant quantities of the
// transmission line. Index 0 is the stapes node, 1..n-1 are sections.
type geometry struct {
	n        int // nodes including the stapes
	dx       float64
	omega    []float64
	omega2   []float64
	cf       []float64
	zasq     []float64
	tri      *tridiag
	p0x      float64
	dmFactor float64
	rk4      float64
	rk4g     float64
	q0Factor float64
	oneKHz   int // node closest to 1 kHz
}

// GreenwoodCF returns the characteristic frequency at distance x metres
// from the base.
func GreenwoodCF(x float64) float64 {
	return greenwoodA*math.Pow(10, -greenwoodAlpha*x) - greenwoodB
}

func newGeometry(sections int) *geometry {
	n := sections + 1
	bmLength := cochleaLength - helicotremaWidth
	mso := 2 * fluidDensity / (scalaWidth * scalaHeight)
	zl := 1 / (2.303 * greenwoodAlpha)
	omegaCo := 2 * math.Pi * greenwoodA
	mpo := mso * zl * zl / ((4 * zweigN) * (4 * zweigN))
	dx := bmLength / float64(sections)

	g := &geometry{
		n:      n,
		dx:     dx,
		omega:  make([]float64, n),
		omega2: make([]float64, n),
		cf:     make([]float64, n),
		zasq:   make([]float64, n),
	}

	ms := make([]float64, n)
	best := math.Inf(1)
	for i := 0; i < n; i++ {
		f := GreenwoodCF(float64(i) * dx)
		g.cf[i] = f
		g.omega[i] = 2 * math.Pi * f
		g.omega2[i] = g.omega[i] * g.omega[i]
		ms[i] = mso * omegaCo / g.omega[i]
		if d := math.Abs(f - 1000); i > 0 && d < best {
			best, g.oneKHz = d, i
		}
	}

	lower := make([]float64, n)
	diag := make([]float64, n)
	upper := make([]float64, n)
	g.zasq[0] = 1
	diag[0] = 1 + mso*dx
	upper[0] = -1
	for i := 1; i < n; i++ {
		lower[i] = -ms[i]
		g.zasq[i] = g.omega[i] * ms[i] * ms[i-1] * dx * dx / (omegaCo * mpo)
		diag[i] = g.zasq[i] + ms[i] + ms[i-1]
		if i < n-1 {
			upper[i] = -ms[i-1]
		}
	}
	g.tri = newTridiag(lower, diag, upper)

	g.q0Factor = mpo * scalaWidth
	g.p0x = mso * dx / (mpo * scalaWidth)
	g.dmFactor = -g.p0x * stapesArea * middleEarR
	g.rk4 = -(scalaWidth * mpo) / stapesArea
	g.rk4g = (mpo * scalaWidth) / (mso * stapesArea * dx)
	return g
}

// maxCF is the highest characteristic frequency among the sections.
func (g *geometry) maxCF() float64 {
	m := 0.0
	for _, f := range g.cf[1:] {
		if f > m {
			m = f
		}
	}
	return m
}

// tridiag is a constant tridiagonal system, factorised once.
type tridiag struct {
	lower []float64
	cp    []float64 // modified upper diagonal
	inv   []float64 // reciprocal pivots
	dp    []float64 // forward sweep scratch
}

func newTridiag(lower, diag, upper []float64) *tridiag {
	n := len(diag)
	t := &tridiag{
		lower: lower,
		cp:    make([]float64, n),
		inv:   make([]float64, n),
		dp:    make([]float64, n),
	}
	t.inv[0] = 1 / diag[0]
	t.cp[0] = upper[0] * t.inv[0]
	for i := 1; i < n; i++ {
		m := diag[i] - lower[i]*t.cp[i-1]
		t.inv[i] = 1 / m
		t.cp[i] = upper[i] * t.inv[i]
	}
	return t
}

// solve writes the solution of the system for rhs into x. It sweeps base
// to apex, then substitutes back apex to base.
func (t *tridiag) solve(rhs, x []float64) {
	n := len(rhs)
	t.dp[0] = rhs[0] * t.inv[0]
	for i := 1; i < n; i++ {
		t.dp[i] = (rhs[i] - t.lower[i]*t.dp[i-1]) * t.inv[i]
	}
	x[n-1] = t.dp[n-1]
	for i := n - 2; i >= 0; i-- {
		x[i] = t.dp[i] - t.cp[i]*x[i+1]
	}
}
