package mains

import (
	"slices"
	"testing"
)

func TestDetectTimezone(t *testing.T) {
	tests := []struct {
		zone     string
		want     int
		fallback bool
	}{
		{"Europe/London", 50, false},
		{"Europe/Berlin", 50, false},
		{"Australia/Sydney", 50, false},
		{"Asia/Tokyo", 50, false},
		{"America/New_York", 60, false},
		{"America/Toronto", 60, false},
		{"America/Sao_Paulo", 60, false},
		{"Asia/Seoul", 60, false},
		{"UTC", 50, true},
		{"Etc/UTC", 50, true},
	}

	for _, tt := range tests {
		t.Run(tt.zone, func(t *testing.T) {
			d := DetectTimezone(tt.zone)
			if d.Hz != tt.want {
				t.Errorf("DetectTimezone(%q).Hz = %d, want %d", tt.zone, d.Hz, tt.want)
			}
			if d.Fallback != tt.fallback {
				t.Errorf("DetectTimezone(%q).Fallback = %v, want %v", tt.zone, d.Fallback, tt.fallback)
			}
			if d.String() == "" {
				t.Error("empty description")
			}
		})
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		setting string
		want    int
		wantErr bool
	}{
		{"", 0, false},
		{"off", 0, false},
		{"50", 50, false},
		{"60Hz", 60, false},
		{"55", 0, true},
		{"loud", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.setting, func(t *testing.T) {
			got, err := Resolve(tt.setting)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Resolve(%q) error = %v", tt.setting, err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %d, want %d", tt.setting, got, tt.want)
			}
		})
	}

	auto, err := Resolve("auto")
	if err != nil || (auto != 50 && auto != 60) {
		t.Errorf("Resolve(auto) = %d, %v", auto, err)
	}
}

func TestHarmonics(t *testing.T) {
	if got := Harmonics(50, 3, 48000); !slices.Equal(got, []float64{50, 100, 150}) {
		t.Errorf("Harmonics(50, 3) = %v", got)
	}
	// 120 Hz and above are at or past Nyquist for a 240 Hz rate.
	if got := Harmonics(60, 4, 240); !slices.Equal(got, []float64{60}) {
		t.Errorf("Harmonics below Nyquist = %v", got)
	}
}
