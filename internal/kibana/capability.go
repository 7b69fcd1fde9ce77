package kibana

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Family is one of the managed object categories.
type Family string

const (
	FamilySavedObjects Family = "saved_objects"
	FamilySpaces       Family = "spaces"
	FamilyWorkflows    Family = "workflows"
	FamilyAgents       Family = "agents"
	FamilyTools        Family = "tools"
)

// AllFamilies lists every family in the order commands process them.
func AllFamilies() []Family {
	return []Family{FamilySpaces, FamilySavedObjects, FamilyWorkflows, FamilyAgents, FamilyTools}
}

// familyAliases maps the user-facing --api spellings onto families.
var familyAliases = map[string]Family{
	"saved_objects": FamilySavedObjects,
	"object":        FamilySavedObjects,
	"objects":       FamilySavedObjects,
	"spaces":        FamilySpaces,
	"space":         FamilySpaces,
	"workflows":     FamilyWorkflows,
	"workflow":      FamilyWorkflows,
	"agents":        FamilyAgents,
	"agent":         FamilyAgents,
	"tools":         FamilyTools,
	"tool":          FamilyTools,
}

// ParseFamily resolves a --api value, accepting singular aliases.
func ParseFamily(s string) (Family, error) {
	if f, ok := familyAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return f, nil
	}
	return "", fmt.Errorf("unknown API family %q", s)
}

// Profile selects which endpoint and payload variant an adapter uses.
type Profile string

const (
	ProfileTechPreview Profile = "tech_preview"
	ProfileGA          Profile = "ga"
)

// capability holds the version thresholds for one family. The matrix is
// data; every support decision in the tool goes through these lookups.
type capability struct {
	min *semver.Version
	ga  *semver.Version
}

var capabilityMatrix = map[Family]capability{
	FamilySpaces:       {min: semver.MustParse("8.0.0"), ga: semver.MustParse("8.0.0")},
	FamilySavedObjects: {min: semver.MustParse("8.0.0"), ga: semver.MustParse("8.0.0")},
	FamilyAgents:       {min: semver.MustParse("9.2.0"), ga: semver.MustParse("9.3.0")},
	FamilyTools:        {min: semver.MustParse("9.2.0"), ga: semver.MustParse("9.3.0")},
	FamilyWorkflows:    {min: semver.MustParse("9.3.0"), ga: semver.MustParse("9.3.0")},
}

// MinVersion returns the lowest server version that supports the family.
func MinVersion(f Family) ServerVersion {
	c := capabilityMatrix[f]
	return ServerVersion{Major: c.min.Major(), Minor: c.min.Minor(), Patch: c.min.Patch()}
}

// IsSupported reports whether the server version satisfies the family's
// minimum. The patch level is ignored.
func IsSupported(f Family, v ServerVersion) bool {
	return v.AtLeast(MinVersion(f))
}

// ProfileFor distinguishes the tech-preview band (at or above minimum but
// below GA) from the GA band.
func ProfileFor(f Family, v ServerVersion) Profile {
	c := capabilityMatrix[f]
	ga := ServerVersion{Major: c.ga.Major(), Minor: c.ga.Minor(), Patch: c.ga.Patch()}
	if v.AtLeast(ga) {
		return ProfileGA
	}
	return ProfileTechPreview
}

// UnsupportedReason renders the required-vs-detected line used in command
// summaries.
func UnsupportedReason(f Family, v ServerVersion) string {
	return fmt.Sprintf("%s requires server >= %s, detected %s", f, MinVersion(f), v)
}

// Support is the answer to a per-family version query.
type Support struct {
	OK       bool
	Required ServerVersion
	Detected ServerVersion
}

// Reason is empty for supported families.
func (s Support) Reason(f Family) string {
	if s.OK {
		return ""
	}
	return UnsupportedReason(f, s.Detected)
}
