// Package philox implements the Philox2x32-10 counter-based random number
// generator. A generator is fully described by its key and counter, so
// independent streams can be derived from a seed and a stream index without
// sharing state between goroutines.
package philox

import "math"

// Uint2 is a pair of 32 bit words used as counter and result.
type Uint2 struct {
	X, Y uint32
}

const (
	multiplier = 0xD256D193
	weyl       = 0x9E3779B9
	rounds     = 10
)

func mulHiLo(a, b uint32) (lo, hi uint32) {
	prod := uint64(a) * uint64(b)
	return uint32(prod), uint32(prod >> 32)
}

// Block returns the Philox2x32-10 output for a counter and key.
func Block(counter Uint2, key uint32) Uint2 {
	for r := 0; r < rounds; r++ {
		lo, hi := mulHiLo(multiplier, counter.X)
		counter.X = hi ^ key ^ counter.Y
		counter.Y = lo
		key += weyl
	}
	return counter
}

// Key derives a 32 bit stream key from a seed and a stream index.
func Key(seed, stream uint64) uint32 {
	k := Block(Uint2{X: uint32(seed), Y: uint32(seed >> 32)}, 0x5EED).X
	return Block(Uint2{X: uint32(stream), Y: uint32(stream >> 32)}, k).X
}

// Stream draws a deterministic sequence of values. The counter's X word
// counts draws and its Y word is the lane, so sub-streams of one stream share
// the key and never collide. A Stream is not safe for concurrent use; give
// each goroutine its own.
type Stream struct {
	key     uint32
	counter Uint2
}

// New returns the stream identified by seed and stream index.
func New(seed, stream uint64) *Stream {
	return &Stream{key: Key(seed, stream)}
}

// Sub returns an independent child stream, for example one per fiber.
// Children of one parent differ in lane only. A sub-stream's own children
// get a key derived from the parent key and lane. Sub panics if index does
// not fit a lane.
func (s *Stream) Sub(index uint64) *Stream {
	if index >= math.MaxUint32 {
		panic("philox: sub-stream index out of range")
	}
	key := s.key
	if s.counter.Y != 0 {
		key = Key(uint64(s.key)<<32|uint64(s.counter.Y), 0)
	}
	return &Stream{key: key, counter: Uint2{Y: uint32(index) + 1}}
}

// Uint64 returns the next 64 uniformly distributed bits. A lane repeats
// after 2^32 draws.
func (s *Stream) Uint64() uint64 {
	r := Block(s.counter, s.key)
	s.counter.X++
	return uint64(r.X)<<32 | uint64(r.Y)
}

// Float64 returns a uniform value in the open interval (0, 1).
func (s *Stream) Float64() float64 {
	return (float64(s.Uint64()>>11) + 0.5) / (1 << 53)
}

// Float11 returns a uniform value in (-1, 1).
func (s *Stream) Float11() float64 {
	return 2*s.Float64() - 1
}

// ExpFloat64 returns an exponentially distributed value with unit mean.
func (s *Stream) ExpFloat64() float64 {
	return -math.Log(s.Float64())
}

// Intn returns a uniform integer in [0, n). It panics if n <= 0.
func (s *Stream) Intn(n int) int {
	if n <= 0 {
		panic("philox: invalid argument to Intn")
	}
	return int(s.Float64() * float64(n))
}

// Perm returns a pseudo-random permutation of [0, n).
func (s *Stream) Perm(n int) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := s.Intn(i + 1)
		p[i], p[j] = p[j], p[i]
	}
	return p
}
