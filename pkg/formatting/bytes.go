// Package formatting parses and formats human-readable byte sizes.
package formatting

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// ErrInvalidSize is returned for sizes ParseBytes cannot read.
var ErrInvalidSize = errors.New("invalid byte size")

// units are base-1024.
var units = []string{"B", "KB", "MB", "GB", "TB"}

var sizePattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([A-Za-z]*)$`)

// ParseBytes reads sizes such as "512", "64KB", or "1.5 mb".
func ParseBytes(s string) (int64, error) {
	m := sizePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	unit := strings.ToUpper(m[2])
	if unit == "" {
		unit = "B"
	}
	exp := slices.Index(units, unit)
	if exp < 0 {
		return 0, fmt.Errorf("%w: unknown unit %q", ErrInvalidSize, m[2])
	}

	return int64(n * math.Pow(1024, float64(exp))), nil
}

// FormatBytes renders n with one decimal in the largest unit that keeps
// the value at or above one.
func FormatBytes(n int64) string {
	if n < 1024 {
		return strconv.FormatInt(n, 10) + " B"
	}

	v := float64(n)
	exp := 0
	for v >= 1024 && exp < len(units)-1 {
		v /= 1024
		exp++
	}
	return strconv.FormatFloat(v, 'f', 1, 64) + " " + units[exp]
}
