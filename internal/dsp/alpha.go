package dsp

import "math"

// Alpha convolves a signal with the normalised alpha function
// t/τ² · exp(-t/τ), whose integral is one. It uses the exact
// impulse-invariant recursion, so cost is independent of τ.
type Alpha struct {
	a, gain    float64
	y1, y2, x1 float64
}

// NewAlpha returns an alpha kernel with time constant tau seconds.
func NewAlpha(sampleRate, tau float64) *Alpha {
	dt := 1 / sampleRate
	a := math.Exp(-dt / tau)
	return &Alpha{a: a, gain: dt * dt / (tau * tau)}
}

// ProcessSample filters one sample.
func (f *Alpha) ProcessSample(x float64) float64 {
	y := 2*f.a*f.y1 - f.a*f.a*f.y2 + f.gain*f.a*f.x1
	f.y2, f.y1, f.x1 = f.y1, y, x
	return y
}

// Filter returns the convolution of x with the kernel, sample aligned.
func (f *Alpha) Filter(x []float64) []float64 {
	f.Reset()
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = f.ProcessSample(v)
	}
	return out
}

// Reset clears the filter state.
func (f *Alpha) Reset() {
	f.y1, f.y2, f.x1 = 0, 0, 0
}

// Delay shifts x right by n samples, zero filling, and keeps its length.
func Delay(x []float64, n int) []float64 {
	out := make([]float64, len(x))
	if n < 0 {
		n = 0
	}
	if n < len(x) {
		copy(out[n:], x[:len(x)-n])
	}
	return out
}

// Cubic interpolates between b and c at frac in [0, 1] from the four
// neighbouring samples a, b, c, d.
func Cubic(a, b, c, d, frac float64) float64 {
	cb := c - b
	return b + frac*(cb-(1.0/6.0)*(1-frac)*((d-a-3*cb)*frac+(d+2*a-3*b)))
}

// RMS returns the root mean square of x.
func RMS(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

// Peak returns the largest absolute value in x.
func Peak(x []float64) float64 {
	p := 0.0
	for _, v := range x {
		if a := math.Abs(v); a > p {
			p = a
		}
	}
	return p
}
