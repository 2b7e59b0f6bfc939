package stimulus

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/linuxmatters/corti/internal/dsp"
	"github.com/linuxmatters/corti/internal/faults"
	"github.com/linuxmatters/corti/internal/mains"
)

// LoadOption configures Load.
type LoadOption func(*loadConfig)

type loadConfig struct {
	humHz        int
	humHarmonics int
}

// WithHumNotch removes mains hum at hz and its first harmonics before
// calibration. Zero disables the notch.
func WithHumNotch(hz int, harmonics int) LoadOption {
	return func(c *loadConfig) {
		c.humHz = hz
		c.humHarmonics = harmonics
	}
}

// Load reads a WAV recording and calibrates it to each level. The file
// must already be sampled at the model rate; multichannel audio is mixed
// down to mono.
func Load(path string, levels []float64, fs float64, opts ...LoadOption) (Set, error) {
	cfg := loadConfig{humHarmonics: 3}
	for _, opt := range opts {
		opt(&cfg)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, faults.InvalidParameters("%s is not a valid WAV file", filepath.Base(path))
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	if float64(dec.SampleRate) != fs {
		return nil, faults.InvalidParameters("%s is sampled at %d Hz, recordings must be sampled at %g Hz",
			filepath.Base(path), dec.SampleRate, fs)
	}

	samples := mixdown(buf)
	if cfg.humHz > 0 {
		samples = RemoveHum(samples, fs, cfg.humHz, cfg.humHarmonics)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return calibrate(name, Custom, FromRecording, fs, samples, levels)
}

// mixdown averages interleaved channels and scales integer PCM to ±1.
func mixdown(buf *audio.IntBuffer) []float64 {
	channels := 1
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		channels = buf.Format.NumChannels
	}
	depth := buf.SourceBitDepth
	if depth <= 0 {
		depth = 16
	}
	full := float64(int64(1) << (depth - 1))

	frames := len(buf.Data) / channels
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		sum := 0.0
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i*channels+c])
		}
		out[i] = sum / float64(channels) / full
	}
	return out
}

// RemoveHum notches out hz and the next harmonics-1 multiples below Nyquist.
func RemoveHum(x []float64, fs float64, hz, harmonics int) []float64 {
	if hz <= 0 {
		return append([]float64(nil), x...)
	}
	if harmonics < 1 {
		harmonics = 1
	}
	var coeffs []dsp.Coefficients
	for _, f := range mains.Harmonics(hz, harmonics, fs) {
		coeffs = append(coeffs, dsp.Notch(fs, f, 30))
	}
	return dsp.NewChain(coeffs...).Filter(x)
}

// WriteWAV stores samples, scaled so that peak maps to full scale, as
// 16 bit mono PCM. It is used to export stimuli for inspection.
func WriteWAV(path string, samples []float64, fs int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	peak := dsp.Peak(samples)
	if peak == 0 {
		peak = 1
	}
	data := make([]int, len(samples))
	for i, v := range samples {
		data[i] = int(v / peak * 32767)
	}

	enc := wav.NewEncoder(f, fs, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: fs},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return enc.Close()
}
