package cochlea

import (
	"math"

	"github.com/linuxmatters/corti/internal/dsp"
)

// delayLine keeps the recent displacement history of every node, one value
// per stimulus sample, for the delayed stiffness feedback.
type delayLine struct {
	buf    [][]float64
	length []int
	latest int // sample index of the newest stored value
}

func newDelayLine(g *geometry, dt float64) *delayLine {
	d := &delayLine{
		buf:    make([][]float64, g.n),
		length: make([]int, g.n),
	}
	for i := 1; i < g.n; i++ {
		l := int(sheraMuMax/(g.cf[i]*dt)) + 4
		d.length[i] = l
		d.buf[i] = make([]float64, l)
	}
	return d
}

// at returns the stored displacement of node i at sample k, or zero when k
// is before the start or has been overwritten.
func (d *delayLine) at(i, k int) float64 {
	if k < 0 || k > d.latest || k <= d.latest-d.length[i] {
		return 0
	}
	return d.buf[i][k%d.length[i]]
}

// push stores the displacement of every node for the next sample.
func (d *delayLine) push(y []float64) {
	d.latest++
	for i := 1; i < len(y); i++ {
		d.buf[i][d.latest%d.length[i]] = y[i]
	}
}

// read interpolates the displacement of node i delay samples before the
// time latest+frac. current is the displacement at that time.
func (d *delayLine) read(i int, delay, frac, current float64) float64 {
	j := d.latest
	delay = math.Min(delay, float64(d.length[i]-3))
	pos := float64(j) + frac - delay
	k := int(math.Floor(pos))
	u := pos - float64(k)

	switch {
	case k+1 > j:
		// Between the newest stored sample and now.
		y0 := d.at(i, j)
		if frac <= 0 {
			return y0
		}
		return y0 + (current-y0)*(pos-float64(j))/frac
	case k+2 > j:
		y0, y1 := d.at(i, k), d.at(i, k+1)
		return y0 + (y1-y0)*u
	default:
		return dsp.Cubic(d.at(i, k-1), d.at(i, k), d.at(i, k+1), d.at(i, k+2), u)
	}
}
