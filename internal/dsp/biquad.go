// Package dsp provides the small set of recursive filters used along the
// pathway: middle ear band-pass, hum notches, hair cell low-pass and the
// alpha-function synaptic kernels of the brainstem.
package dsp

import "math"

// Coefficients of a normalised second-order section (a0 == 1).
type Coefficients struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// Section is a biquad in transposed direct form II.
type Section struct {
	Coefficients
	z1, z2 float64
}

// ProcessSample filters one sample.
func (s *Section) ProcessSample(x float64) float64 {
	y := s.B0*x + s.z1
	s.z1 = s.B1*x - s.A1*y + s.z2
	s.z2 = s.B2*x - s.A2*y
	return y
}

// ProcessBlock filters buf in place.
func (s *Section) ProcessBlock(buf []float64) {
	for i, x := range buf {
		buf[i] = s.ProcessSample(x)
	}
}

// Reset clears the filter state.
func (s *Section) Reset() {
	s.z1, s.z2 = 0, 0
}

// Chain is an ordered cascade of sections with an input gain.
type Chain struct {
	sections []Section
	gain     float64
}

// NewChain builds a cascade with unity gain.
func NewChain(coeffs ...Coefficients) *Chain {
	c := &Chain{sections: make([]Section, len(coeffs)), gain: 1}
	for i := range coeffs {
		c.sections[i].Coefficients = coeffs[i]
	}
	return c
}

// WithGain sets the input gain and returns the chain.
func (c *Chain) WithGain(g float64) *Chain {
	c.gain = g
	return c
}

// ProcessSample cascades one sample through every section.
func (c *Chain) ProcessSample(x float64) float64 {
	x *= c.gain
	for i := range c.sections {
		x = c.sections[i].ProcessSample(x)
	}
	return x
}

// ProcessBlock filters buf in place.
func (c *Chain) ProcessBlock(buf []float64) {
	if c.gain != 1 {
		for i := range buf {
			buf[i] *= c.gain
		}
	}
	for i := range c.sections {
		c.sections[i].ProcessBlock(buf)
	}
}

// Filter returns a filtered copy of x, leaving x untouched.
func (c *Chain) Filter(x []float64) []float64 {
	out := append([]float64(nil), x...)
	c.ProcessBlock(out)
	return out
}

// Reset clears all section states.
func (c *Chain) Reset() {
	for i := range c.sections {
		c.sections[i].Reset()
	}
}

// ButterworthBandpass designs the first-order Butterworth band-pass between
// lo and hi Hz by bilinear transform with prewarped edges.
func ButterworthBandpass(sampleRate, lo, hi float64) Coefficients {
	k := 2 * sampleRate
	w1 := k * math.Tan(math.Pi*lo/sampleRate)
	w2 := k * math.Tan(math.Pi*hi/sampleRate)
	bw := w2 - w1
	w0sq := w1 * w2
	d0 := k*k + bw*k + w0sq
	return Coefficients{
		B0: bw * k / d0,
		B1: 0,
		B2: -bw * k / d0,
		A1: (2*w0sq - 2*k*k) / d0,
		A2: (k*k - bw*k + w0sq) / d0,
	}
}

// Notch designs a second-order notch at f0 Hz with quality factor q.
func Notch(sampleRate, f0, q float64) Coefficients {
	w0 := 2 * math.Pi * f0 / sampleRate
	alpha := math.Sin(w0) / (2 * q)
	cos := math.Cos(w0)
	a0 := 1 + alpha
	return Coefficients{
		B0: 1 / a0,
		B1: -2 * cos / a0,
		B2: 1 / a0,
		A1: -2 * cos / a0,
		A2: (1 - alpha) / a0,
	}
}

// Lowpass designs a second-order low-pass at fc Hz with quality factor q.
func Lowpass(sampleRate, fc, q float64) Coefficients {
	w0 := 2 * math.Pi * fc / sampleRate
	alpha := math.Sin(w0) / (2 * q)
	cos := math.Cos(w0)
	a0 := 1 + alpha
	return Coefficients{
		B0: (1 - cos) / 2 / a0,
		B1: (1 - cos) / a0,
		B2: (1 - cos) / 2 / a0,
		A1: -2 * cos / a0,
		A2: (1 - alpha) / a0,
	}
}

// Response evaluates the magnitude response of c at f Hz.
func (c Coefficients) Response(sampleRate, f float64) float64 {
	w := 2 * math.Pi * f / sampleRate
	z1 := complex(math.Cos(w), -math.Sin(w))
	z2 := z1 * z1
	num := complex(c.B0, 0) + complex(c.B1, 0)*z1 + complex(c.B2, 0)*z2
	den := 1 + complex(c.A1, 0)*z1 + complex(c.A2, 0)*z2
	return cmplxAbs(num / den)
}

func cmplxAbs(z complex128) float64 {
	return math.Hypot(real(z), imag(z))
}
