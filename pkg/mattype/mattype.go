// Package mattype resolves engine type codes into element width, numeric
// kind and channel count using the engine's naming convention
// (<prefix>_<bits><kind><channels>, e.g. CV_8UC3).
package mattype

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/teslashibe/go-cvstream/pkg/engine"
)

// Kind is the numeric kind of a channel value.
type Kind byte

// Kinds, named after the first letter of the type label's letter group.
const (
	Unsigned Kind = 'U'
	Signed   Kind = 'S'
	Float    Kind = 'F'
)

// String returns the kind letter.
func (k Kind) String() string {
	return string(rune(k))
}

// Tag is the resolved metadata of a type code.
type Tag struct {
	Code     engine.MatType
	Bits     int    // 8, 16, 32 or 64
	Channels int    // 0 when the label carries no channel count
	Kind     Kind
	Label    string // Constant name, e.g. "CV_8UC3"
}

// HasChannels reports whether the label specified a channel count.
func (t Tag) HasChannels() bool {
	return t.Channels > 0
}

// ElemSize returns the byte width of a single channel value.
func (t Tag) ElemSize() int {
	return t.Bits / 8
}

// String implements fmt.Stringer.
func (t Tag) String() string {
	if t.HasChannels() {
		return fmt.Sprintf("%s(%d-bit %s x%d)", t.Label, t.Bits, t.Kind, t.Channels)
	}
	return fmt.Sprintf("%s(%d-bit %s)", t.Label, t.Bits, t.Kind)
}

// labelPattern is digits, then letters, then optional digits.
var labelPattern = regexp.MustCompile(`^[A-Za-z0-9]+_([0-9]+)([A-Z]+)([0-9]*)$`)

// ParseLabel parses a constant name such as "CV_16SC2".
// It returns false if the name does not follow the convention or the
// bit width is not 8, 16, 32 or 64.
func ParseLabel(name string) (Tag, bool) {
	m := labelPattern.FindStringSubmatch(name)
	if m == nil {
		return Tag{}, false
	}

	bits, err := strconv.Atoi(m[1])
	if err != nil {
		return Tag{}, false
	}
	switch bits {
	case 8, 16, 32, 64:
	default:
		return Tag{}, false
	}

	channels := 0
	if m[3] != "" {
		if channels, err = strconv.Atoi(m[3]); err != nil || channels < 1 {
			return Tag{}, false
		}
	}

	return Tag{
		Bits:     bits,
		Channels: channels,
		Kind:     Kind(m[2][0]),
		Label:    name,
	}, true
}

// Resolver maps type codes to tags. It is built once from the engine's
// constant table and is safe for concurrent use.
type Resolver struct {
	byCode  map[engine.MatType]Tag
	byLabel map[string]Tag
	ordered []Tag
}

// NewResolver builds a resolver from constants. Names that do not follow
// the convention are ignored. When several names share a code the first
// one wins.
func NewResolver(constants []engine.Constant) *Resolver {
	r := &Resolver{
		byCode:  make(map[engine.MatType]Tag, len(constants)),
		byLabel: make(map[string]Tag, len(constants)),
	}
	for _, c := range constants {
		tag, ok := ParseLabel(c.Name)
		if !ok {
			continue
		}
		tag.Code = c.Value
		r.byLabel[c.Name] = tag
		if _, dup := r.byCode[c.Value]; dup {
			continue
		}
		r.byCode[c.Value] = tag
		r.ordered = append(r.ordered, tag)
	}
	return r
}

// Resolve returns the tag for code. ok is false when no constant matches.
func (r *Resolver) Resolve(code engine.MatType) (tag Tag, ok bool) {
	tag, ok = r.byCode[code]
	return tag, ok
}

// Lookup returns the tag for a constant name.
func (r *Resolver) Lookup(label string) (Tag, bool) {
	tag, ok := r.byLabel[label]
	return tag, ok
}

// Tags returns one tag per distinct code, in declaration order.
func (r *Resolver) Tags() []Tag {
	out := make([]Tag, len(r.ordered))
	copy(out, r.ordered)
	return out
}
