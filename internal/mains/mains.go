// Package mains resolves the electrical mains frequency whose hum
// contaminates field recordings used as stimuli.
package mains

import (
	"fmt"
	"strconv"
	"strings"

	tz "github.com/medama-io/go-timezone-country"
	"github.com/thlib/go-timezone-local/tzlocal"
)

// fallbackHz is used when the local timezone cannot be mapped to a country.
const fallbackHz = 50

// Detection records how a mains frequency was chosen.
type Detection struct {
	Hz       int
	Timezone string
	Country  string
	Fallback bool
}

func (d Detection) String() string {
	if d.Fallback {
		return fmt.Sprintf("%d Hz (default, timezone %q not mapped)", d.Hz, d.Timezone)
	}
	return fmt.Sprintf("%d Hz (%s, %s)", d.Hz, d.Country, d.Timezone)
}

// Detect inspects the runtime timezone.
func Detect() Detection {
	zone, err := tzlocal.RuntimeTZ()
	if err != nil {
		return Detection{Hz: fallbackHz, Fallback: true}
	}
	return DetectTimezone(zone)
}

// DetectTimezone maps an IANA timezone to its country's mains frequency.
func DetectTimezone(zone string) Detection {
	d := Detection{Hz: fallbackHz, Timezone: zone, Fallback: true}
	if zone == "UTC" || zone == "GMT" || strings.HasPrefix(zone, "Etc/") {
		return d
	}
	countries, err := tz.NewTimezoneCountryMap()
	if err != nil {
		return d
	}
	country, err := countries.GetCountry(zone)
	if err != nil || country == "" {
		return d
	}
	d.Country = country
	d.Fallback = false
	d.Hz = countryHz(country)
	return d
}

// Resolve interprets a hum setting: "off" or "" disables the notch (0),
// "auto" detects the local frequency, and "50" or "60" are used as given.
func Resolve(setting string) (int, error) {
	s := strings.ToLower(strings.TrimSpace(setting))
	switch s {
	case "", "off", "none":
		return 0, nil
	case "auto":
		return Detect().Hz, nil
	}
	hz, err := strconv.Atoi(strings.TrimSuffix(s, "hz"))
	if err != nil || (hz != 50 && hz != 60) {
		return 0, fmt.Errorf("invalid hum setting %q: want off, auto, 50 or 60", setting)
	}
	return hz, nil
}

// Harmonics lists the hum fundamental and its first n-1 harmonics below the
// Nyquist frequency of sampleRate.
func Harmonics(hz, n int, sampleRate float64) []float64 {
	var out []float64
	for k := 1; k <= n; k++ {
		f := float64(k * hz)
		if f >= sampleRate/2 {
			break
		}
		out = append(out, f)
	}
	return out
}

func countryHz(country string) int {
	// Eastern Japan, Tokyo included, runs at 50 Hz.
	if country == "Japan" {
		return 50
	}
	if sixtyHz[country] {
		return 60
	}
	return fallbackHz
}

var sixtyHz = index(
	// Americas. Brazil has both; 60 Hz dominates.
	"United States", "Canada", "Mexico", "Belize", "Costa Rica", "El Salvador",
	"Guatemala", "Honduras", "Nicaragua", "Panama", "Brazil", "Colombia",
	"Ecuador", "Guyana", "Peru", "Suriname", "Venezuela",
	// Caribbean
	"Bahamas", "Barbados", "Cayman Islands", "Cuba", "Dominican Republic",
	"Haiti", "Jamaica", "Puerto Rico", "Trinidad and Tobago", "U.S. Virgin Islands",
	// Asia and the Pacific
	"South Korea", "Taiwan", "Philippines", "Saudi Arabia", "Guam",
	"American Samoa", "Marshall Islands", "Micronesia", "Palau",
)

func index(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}
