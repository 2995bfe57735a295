// Package anomaly inspects fetched page text for markers of blocking,
// challenges, consent walls and empty result sets.
package anomaly

import (
	"bytes"

	"github.com/JakeFAU/paperscout/internal/crawler"
)

// Markers lists the lowercase substrings that raise each signal.
type Markers struct {
	WeAreSorry []string `mapstructure:"we_are_sorry"`
	Robot      []string `mapstructure:"robot"`
	Captcha    []string `mapstructure:"captcha"`
	Consent    []string `mapstructure:"consent"`
	NoResults  []string `mapstructure:"no_results"`
}

// DefaultMarkers returns the marker table used by Detect.
func DefaultMarkers() Markers {
	return Markers{
		WeAreSorry: []string{"we are sorry"},
		Robot:      []string{"robot"},
		Captcha:    []string{"captcha"},
		Consent:    []string{"consent", "cookie"},
		NoResults:  []string{"no results found"},
	}
}

// Detector evaluates a marker table against page bodies.
type Detector struct {
	markers Markers
}

// New returns a Detector for markers.
func New(markers Markers) *Detector {
	return &Detector{markers: markers}
}

var defaultDetector = New(DefaultMarkers())

// Detect evaluates the default markers against body.
func Detect(body []byte) crawler.AnomalySignals {
	return defaultDetector.Detect(body)
}

// Detect reports which signals fire for body. Matching is case-insensitive.
func (d *Detector) Detect(body []byte) crawler.AnomalySignals {
	lower := bytes.ToLower(body)
	return crawler.AnomalySignals{
		WeAreSorry: containsAny(lower, d.markers.WeAreSorry),
		Robot:      containsAny(lower, d.markers.Robot),
		Captcha:    containsAny(lower, d.markers.Captcha),
		Consent:    containsAny(lower, d.markers.Consent),
		NoResults:  containsAny(lower, d.markers.NoResults),
	}
}

func containsAny(haystack []byte, needles []string) bool {
	for _, n := range needles {
		if n != "" && bytes.Contains(haystack, bytes.ToLower([]byte(n))) {
			return true
		}
	}
	return false
}
