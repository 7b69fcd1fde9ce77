package kibana

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ServerVersion is the version advertised by the server's status endpoint,
// reduced to its numeric triple. Build metadata and prerelease labels
// ("9.3.0-SNAPSHOT", "9.3.0+build.42") are discarded during parsing.
type ServerVersion struct {
	Major uint64
	Minor uint64
	Patch uint64
}

var versionDigits = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)

// ParseServerVersion extracts the first three dot-separated numeric
// components from an arbitrary version string.
func ParseServerVersion(s string) (ServerVersion, error) {
	s = strings.TrimSpace(s)
	if v, err := semver.NewVersion(s); err == nil {
		return ServerVersion{Major: v.Major(), Minor: v.Minor(), Patch: v.Patch()}, nil
	}

	// Not valid semver; salvage the leading numeric triple.
	m := versionDigits.FindStringSubmatch(s)
	if m == nil {
		return ServerVersion{}, fmt.Errorf("unparseable server version %q", s)
	}
	major, _ := strconv.ParseUint(m[1], 10, 64)
	minor, _ := strconv.ParseUint(m[2], 10, 64)
	var patch uint64
	if m[3] != "" {
		patch, _ = strconv.ParseUint(m[3], 10, 64)
	}
	return ServerVersion{Major: major, Minor: minor, Patch: patch}, nil
}

// MustParseServerVersion is ParseServerVersion for static inputs.
func MustParseServerVersion(s string) ServerVersion {
	v, err := ParseServerVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v ServerVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// IsZero reports whether no version was recorded.
func (v ServerVersion) IsZero() bool {
	return v.Major == 0 && v.Minor == 0 && v.Patch == 0
}

// AtLeast compares major.minor only. Feature gates ignore the patch level.
func (v ServerVersion) AtLeast(min ServerVersion) bool {
	if v.Major != min.Major {
		return v.Major > min.Major
	}
	return v.Minor >= min.Minor
}

// PushCompatible is the push floor: the current server must have the same
// major as the version recorded at the last pull and a minor at least as
// high. Patch differences are always allowed.
func PushCompatible(recorded, current ServerVersion) bool {
	return recorded.Major == current.Major && current.Minor >= recorded.Minor
}
