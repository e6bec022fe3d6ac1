package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/weft-home/weft/internal/trait"
)

// ErrBadPath is returned when a path does not follow the addressing
// scheme.
var ErrBadPath = errors.New("protocol: malformed path")

// ErrBadModifier is returned when write modifiers conflict or fail to
// parse.
var ErrBadModifier = errors.New("protocol: invalid write modifier")

// Kind is the shape of resource a path addresses.
type Kind int

const (
	// KindEndpoint addresses the endpoint itself.
	KindEndpoint Kind = iota

	// KindSection addresses a whole section.
	KindSection

	// KindProperty addresses one property.
	KindProperty

	// KindMethod addresses a method invocation.
	KindMethod
)

// methodSection marks the pseudo-section carrying method invocations.
const methodSection = "f"

// groupPrefix marks paths addressing a group.
const groupPrefix = "g"

// Address is a parsed endpoint path.
type Address struct {
	// Endpoint is the endpoint identifier, "g/<id>" for groups.
	Endpoint string

	// Group reports whether the address targets a group.
	Group bool

	Kind    Kind
	Section trait.Section

	// Trait and Name locate the property or method within the endpoint.
	Trait string
	Name  string
}

// ParseAddress parses a path into an Address.
func ParseAddress(path string) (Address, error) {
	p := strings.TrimPrefix(path, "/")
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return Address{}, fmt.Errorf("%w: empty path", ErrBadPath)
	}

	segs := strings.Split(p, "/")

	var addr Address
	if segs[0] == groupPrefix {
		if len(segs) < 2 {
			return Address{}, fmt.Errorf("%w: group path needs an id", ErrBadPath)
		}
		addr.Group = true
		addr.Endpoint = groupPrefix + "/" + segs[1]
		segs = segs[2:]
	} else {
		addr.Endpoint = segs[0]
		segs = segs[1:]
	}
	if addr.Endpoint == "" || strings.HasSuffix(addr.Endpoint, "/") {
		return Address{}, fmt.Errorf("%w: empty endpoint id", ErrBadPath)
	}

	if len(segs) == 0 {
		addr.Kind = KindEndpoint
		return addr, nil
	}

	if segs[0] == methodSection {
		// /{endpoint}/f/{trait}?{method}
		if len(segs) != 2 {
			return Address{}, fmt.Errorf("%w: method path needs trait?method", ErrBadPath)
		}
		traitID, name, ok := strings.Cut(segs[1], "?")
		if !ok || traitID == "" || name == "" {
			return Address{}, fmt.Errorf("%w: method path needs trait?method", ErrBadPath)
		}
		addr.Kind = KindMethod
		addr.Trait = traitID
		addr.Name = name
		return addr, nil
	}

	section, err := trait.ParseSection(segs[0])
	if err != nil {
		return Address{}, fmt.Errorf("%w: %s", ErrBadPath, segs[0])
	}
	addr.Section = section

	switch len(segs) {
	case 1:
		addr.Kind = KindSection
		return addr, nil
	case 3:
		if segs[1] == "" || segs[2] == "" {
			return Address{}, fmt.Errorf("%w: empty trait or property", ErrBadPath)
		}
		addr.Kind = KindProperty
		addr.Trait = segs[1]
		addr.Name = segs[2]
		return addr, nil
	default:
		return Address{}, fmt.Errorf("%w: %s", ErrBadPath, path)
	}
}

// Path renders the address back into its canonical path form.
func (a Address) Path() string {
	var b strings.Builder
	b.WriteByte('/')
	b.WriteString(a.Endpoint)
	switch a.Kind {
	case KindEndpoint:
	case KindSection:
		b.WriteByte('/')
		b.WriteString(string(a.Section))
	case KindProperty:
		fmt.Fprintf(&b, "/%s/%s/%s", string(a.Section), a.Trait, a.Name)
	case KindMethod:
		fmt.Fprintf(&b, "/%s/%s?%s", methodSection, a.Trait, a.Name)
	}
	return b.String()
}

// PropertyKey returns the trait key the address names. The declared
// type is unknown at the path level; endpoints coerce against their own
// declared keys.
func (a Address) PropertyKey() trait.PropertyKey {
	return trait.PropertyKey{Section: a.Section, Trait: a.Trait, Name: a.Name}
}

// MethodKey returns the method key the address names.
func (a Address) MethodKey() trait.MethodKey {
	return trait.MethodKey{Trait: a.Trait, Name: a.Name}
}

// PropertyPath builds the canonical path of a property on an endpoint.
func PropertyPath(endpointID string, key trait.PropertyKey) string {
	return fmt.Sprintf("/%s/%s/%s/%s", endpointID, string(key.Section), key.Trait, key.Name)
}

// SectionPath builds the canonical path of a section on an endpoint.
func SectionPath(endpointID string, section trait.Section) string {
	return fmt.Sprintf("/%s/%s", endpointID, string(section))
}

// MethodPath builds the canonical invocation path of a method.
func MethodPath(endpointID string, key trait.MethodKey) string {
	return fmt.Sprintf("/%s/%s/%s?%s", endpointID, methodSection, key.Trait, key.Name)
}

// WriteOp selects how a PUT applies its payload.
type WriteOp int

const (
	// OpSet replaces the property value.
	OpSet WriteOp = iota

	// OpIncrement adds the payload to the property.
	OpIncrement

	// OpToggle inverts a boolean property. No payload.
	OpToggle

	// OpInsert adds the payload to an array property.
	OpInsert

	// OpRemove removes the payload from an array property.
	OpRemove
)

// Modifiers are the parsed write modifiers of a request query.
type Modifiers struct {
	Op       WriteOp
	Duration time.Duration
	Origin   string
}

// ParseModifiers interprets a request query. At most one write
// operation modifier may be present.
func ParseModifiers(query map[string]string) (Modifiers, error) {
	var m Modifiers
	ops := 0
	for k, v := range query {
		switch k {
		case "inc":
			m.Op = OpIncrement
			ops++
		case "tog":
			m.Op = OpToggle
			ops++
		case "ins":
			m.Op = OpInsert
			ops++
		case "rem":
			m.Op = OpRemove
			ops++
		case "d":
			secs, err := strconv.ParseFloat(v, 64)
			if err != nil || secs < 0 {
				return Modifiers{}, fmt.Errorf("%w: d=%q", ErrBadModifier, v)
			}
			m.Duration = time.Duration(secs * float64(time.Second))
		case "origin":
			m.Origin = v
		default:
			return Modifiers{}, fmt.Errorf("%w: unknown modifier %q", ErrBadModifier, k)
		}
	}
	if ops > 1 {
		return Modifiers{}, fmt.Errorf("%w: multiple write operations", ErrBadModifier)
	}
	return m, nil
}

// Query renders the modifiers back into request query form.
func (m Modifiers) Query() map[string]string {
	q := make(map[string]string)
	switch m.Op {
	case OpIncrement:
		q["inc"] = "1"
	case OpToggle:
		q["tog"] = "1"
	case OpInsert:
		q["ins"] = "1"
	case OpRemove:
		q["rem"] = "1"
	}
	if m.Duration > 0 {
		q["d"] = strconv.FormatFloat(m.Duration.Seconds(), 'f', -1, 64)
	}
	if m.Origin != "" {
		q["origin"] = m.Origin
	}
	if len(q) == 0 {
		return nil
	}
	return q
}
