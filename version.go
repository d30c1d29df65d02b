package boot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidVersion is returned when a string cannot be parsed as a kernel
// version.
var ErrInvalidVersion = errors.New("boot: invalid kernel version")

// Version is a kernel version triple.
type Version struct {
	Major uint32
	Minor uint32
	Patch uint32
}

// ParseVersion parses a dotted "major.minor.patch" version string.
func ParseVersion(s string) (Version, error) {
	major, rest, ok := strings.Cut(s, ".")
	if !ok {
		return Version{}, ErrInvalidVersion
	}
	minor, patch, ok := strings.Cut(rest, ".")
	if !ok {
		return Version{}, ErrInvalidVersion
	}

	var v Version
	for _, part := range []struct {
		s   string
		dst *uint32
	}{
		{major, &v.Major},
		{minor, &v.Minor},
		{patch, &v.Patch},
	} {
		n, err := strconv.ParseUint(part.s, 10, 32)
		if err != nil {
			return Version{}, ErrInvalidVersion
		}
		*part.dst = uint32(n)
	}
	return v, nil
}

// String returns the dotted version string.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0 or 1 depending on whether v is older than, equal to
// or newer than other.
func (v Version) Compare(other Version) int {
	for _, pair := range [][2]uint32{
		{v.Major, other.Major},
		{v.Minor, other.Minor},
		{v.Patch, other.Patch},
	} {
		switch {
		case pair[0] < pair[1]:
			return -1
		case pair[0] > pair[1]:
			return 1
		}
	}
	return 0
}
