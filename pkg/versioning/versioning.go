// Package versioning parses and advances the semantic version strings
// carried by pattern rows.
package versioning

import (
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// ErrInvalidVersion indicates a version string is not strict MAJOR.MINOR.PATCH.
var ErrInvalidVersion = errors.New("version must be MAJOR.MINOR.PATCH")

// Initial is the version assigned to a newly seeded pattern.
const Initial = "1.0.0"

// Parse strictly parses v. Prerelease and build metadata are rejected
// because pattern versions only ever advance through NextMinor.
func Parse(v string) (*semver.Version, error) {
	sv, err := semver.StrictNewVersion(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVersion, v)
	}
	if sv.Prerelease() != "" || sv.Metadata() != "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVersion, v)
	}
	return sv, nil
}

// NextMinor increments MINOR and resets PATCH: 1.2.3 -> 1.3.0.
func NextMinor(v string) (string, error) {
	sv, err := Parse(v)
	if err != nil {
		return "", err
	}
	next := sv.IncMinor()
	return next.String(), nil
}

// Valid reports whether v parses.
func Valid(v string) bool {
	_, err := Parse(v)
	return err == nil
}

// Compare returns -1, 0, or 1. Invalid versions sort before valid ones.
func Compare(a, b string) int {
	av, aerr := Parse(a)
	bv, berr := Parse(b)
	switch {
	case aerr != nil && berr != nil:
		return 0
	case aerr != nil:
		return -1
	case berr != nil:
		return 1
	}
	return av.Compare(bv)
}
