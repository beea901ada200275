package router

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	decimalLiteral  = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)
	infinityLiteral = regexp.MustCompile(`^[+-]?Infinity$`)
)

// coerceID converts a path segment to a number the way a loosely typed
// client would: surrounding whitespace is ignored, an empty segment is 0,
// 0x/0o/0b literals are accepted, and anything unparseable is NaN.
func coerceID(segment string) float64 {
	s := strings.TrimSpace(segment)
	if s == "" {
		return 0
	}
	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			n, err := strconv.ParseUint(s[2:], base, 64)
			if err != nil {
				return math.NaN()
			}
			return float64(n)
		}
	}
	if infinityLiteral.MatchString(s) {
		if s[0] == '-' {
			return math.Inf(-1)
		}
		return math.Inf(1)
	}
	if !decimalLiteral.MatchString(s) {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return math.NaN()
	}
	// Out of range values saturate to ±Inf.
	return f
}

// idValue is the filter value for a coerced id: int64 when integral so it
// compares equal to stored integers on every backend.
func idValue(id float64) any {
	if id == math.Trunc(id) && math.Abs(id) < 1<<63 {
		return int64(id)
	}
	return id
}

// matchable reports whether a coerced id can equal any stored id.
func matchable(id float64) bool {
	return !math.IsNaN(id) && !math.IsInf(id, 0)
}
