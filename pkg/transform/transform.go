// Package transform implements the pixel operations applied on export.
package transform

import (
	"fmt"
	"strings"
)

// Kind selects the transform applied to an exported image.
type Kind int

const (
	None Kind = iota
	Negate
	Threshold
)

// DefaultCut is the threshold used when none is given.
const DefaultCut = 128

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Negate:
		return "negate"
	case Threshold:
		return "threshold"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind accepts the names printed by String, plus the menu numbers 0, 1 and 2.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "original", "0":
		return None, nil
	case "negate", "negative", "1":
		return Negate, nil
	case "threshold", "2":
		return Threshold, nil
	}
	return None, fmt.Errorf("unknown transform %q (use none, negate or threshold)", s)
}

// Spec is a transform together with its parameter.
type Spec struct {
	Kind Kind
	Cut  int // only used by Threshold
}

func (s Spec) String() string {
	if s.Kind == Threshold {
		return fmt.Sprintf("threshold(%d)", s.Cut)
	}
	return s.Kind.String()
}

// Apply runs the transform over pixels in place.
func (s Spec) Apply(pixels []byte, maxIntensity int) {
	switch s.Kind {
	case Negate:
		NegateInPlace(pixels, maxIntensity)
	case Threshold:
		ThresholdInPlace(pixels, maxIntensity, s.Cut)
	}
}

// NegateInPlace sets every pixel p to maxIntensity-p.
func NegateInPlace(pixels []byte, maxIntensity int) {
	m := byte(maxIntensity)
	for i, p := range pixels {
		pixels[i] = m - p
	}
}

// ThresholdInPlace sets pixels >= cut to maxIntensity and the rest to 0.
func ThresholdInPlace(pixels []byte, maxIntensity, cut int) {
	m := byte(maxIntensity)
	for i, p := range pixels {
		if int(p) >= cut {
			pixels[i] = m
		} else {
			pixels[i] = 0
		}
	}
}
