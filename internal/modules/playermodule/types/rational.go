package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Rational is a frame rate, aspect ratio or sampling rate expressed as N/D.
type Rational struct {
	Num int `json:"num" yaml:"num"`
	Den int `json:"den" yaml:"den"`
}

// Common rates and ratios
var (
	Rate25     = Rational{25, 1}
	Rate50     = Rational{50, 1}
	Rate30000  = Rational{30000, 1001}
	Rate48000  = Rational{48000, 1}
	Aspect4x3  = Rational{4, 3}
	Aspect16x9 = Rational{16, 9}
)

// ParseRational parses "N/D" or a plain integer "N".
func ParseRational(s string) (Rational, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Rational{}, fmt.Errorf("empty rational")
	}

	parts := strings.SplitN(s, "/", 2)
	num, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Rational{}, fmt.Errorf("invalid numerator in %q: %w", s, err)
	}

	den := 1
	if len(parts) == 2 {
		den, err = strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return Rational{}, fmt.Errorf("invalid denominator in %q: %w", s, err)
		}
	}
	if den <= 0 || num < 0 {
		return Rational{}, fmt.Errorf("invalid rational %q", s)
	}

	return Rational{Num: num, Den: den}, nil
}

// IsZero reports whether the rational is unset.
func (r Rational) IsZero() bool {
	return r.Num == 0 || r.Den == 0
}

// Equal compares by value, so 50/2 equals 25/1.
func (r Rational) Equal(o Rational) bool {
	if r.IsZero() || o.IsZero() {
		return r.IsZero() && o.IsZero()
	}
	return int64(r.Num)*int64(o.Den) == int64(o.Num)*int64(r.Den)
}

// Float returns N/D, or 0 when unset.
func (r Rational) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}
