package trait

import "fmt"

// Section identifies the visibility and persistence category of a property.
//
// The three sections behave differently:
//   - State holds live operational values (on/off, level, position). State
//     properties may be transitioned, incremented, and fanned out across
//     groups.
//   - Config holds behavioural settings. Config never fans out across groups.
//   - Metadata holds descriptive values (name, manufacturer) and is never
//     persisted as operational state.
type Section string

const (
	SectionState    Section = "s"
	SectionConfig   Section = "c"
	SectionMetadata Section = "m"
)

// AllSections returns all valid sections.
func AllSections() []Section {
	return []Section{SectionState, SectionConfig, SectionMetadata}
}

// ParseSection converts a wire path component into a Section.
// Accepts both the short path form ("s") and the long form ("state").
func ParseSection(s string) (Section, error) {
	switch s {
	case "s", "state":
		return SectionState, nil
	case "c", "config":
		return SectionConfig, nil
	case "m", "metadata":
		return SectionMetadata, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSection, s)
	}
}

// String returns the long human-readable name of the section.
func (s Section) String() string {
	switch s {
	case SectionState:
		return "state"
	case SectionConfig:
		return "config"
	case SectionMetadata:
		return "metadata"
	default:
		return string(s)
	}
}

// Valid reports whether the section is one of the three known sections.
func (s Section) Valid() bool {
	return s == SectionState || s == SectionConfig || s == SectionMetadata
}
