package addon

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ErrInvalidVersion is returned for version strings that are not dot-separated non-negative integers.
var ErrInvalidVersion = errors.New("invalid version")

// Version is a dotted version split into its integer components.
// Ordering is lexicographic over the integers, so 10.0 sorts after 9.9.
type Version []int

// ParseVersion splits s on dots and parses each component as a non-negative integer.
func ParseVersion(s string) (Version, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidVersion)
	}

	parts := strings.Split(s, ".")
	v := make(Version, 0, len(parts))

	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
		}

		v = append(v, n)
	}

	return v, nil
}

// Compare returns -1, 0 or +1 depending on whether v sorts before, equal to or after other.
// A version that is a strict prefix of another sorts first (1.0 < 1.0.0).
func (v Version) Compare(other Version) int {
	return slices.Compare(v, other)
}

// Less reports whether v sorts strictly before other.
func (v Version) Less(other Version) bool {
	return v.Compare(other) < 0
}

// String joins the components back with dots.
func (v Version) String() string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}

	return strings.Join(parts, ".")
}
