package jsontok

import (
	"fmt"
	"strconv"
	"strings"
)

// frame is one level of the document location: the current key inside an
// object, or the current element index inside an array.
type frame struct {
	key   string
	index int
	array bool
}

// Path tracks the location of the most recent scanner event as an ordered
// sequence of keys and array indices from the document root. It holds one
// frame per open container, so memory is bounded by nesting depth.
//
// Apply pops on ObjectEnd/ArrayEnd. Callers that want to recognize the
// location of a closing container must match before applying the exit event.
type Path struct {
	frames []frame
}

// NewPath returns an empty path positioned at the document root.
func NewPath() *Path {
	return &Path{frames: make([]frame, 0, DefaultMaxDepth)}
}

// Apply updates the path for one event.
func (p *Path) Apply(ev Event) {
	switch ev.Kind {
	case KindKey:
		p.frames[len(p.frames)-1].key = ev.Str()
	case KindObjectStart:
		p.onValue()
		p.frames = append(p.frames, frame{})
	case KindArrayStart:
		p.onValue()
		p.frames = append(p.frames, frame{array: true, index: -1})
	case KindObjectEnd, KindArrayEnd:
		p.frames = p.frames[:len(p.frames)-1]
	default:
		p.onValue()
	}
}

// onValue advances the element index when the enclosing container is an array.
func (p *Path) onValue() {
	if n := len(p.frames); n > 0 && p.frames[n-1].array {
		p.frames[n-1].index++
	}
}

// Depth returns the number of open containers.
func (p *Path) Depth() int { return len(p.frames) }

// Matches reports whether the current location matches pat exactly.
// It performs no allocation.
func (p *Path) Matches(pat Pattern) bool {
	return matchFrames(p.frames, pat)
}

// MatchesContainer reports whether the innermost open container is located
// at pat. Used on ObjectEnd/ArrayEnd events, whose container frame is still
// on the stack until Apply pops it.
func (p *Path) MatchesContainer(pat Pattern) bool {
	if len(p.frames) == 0 {
		return false
	}
	return matchFrames(p.frames[:len(p.frames)-1], pat)
}

func matchFrames(frames []frame, pat Pattern) bool {
	if len(frames) != len(pat.segs) {
		return false
	}
	for i, ps := range pat.segs {
		f := frames[i]
		if ps.anyIndex {
			if !f.array {
				return false
			}
			continue
		}
		if f.array || f.key != ps.key {
			return false
		}
	}
	return true
}

// String renders the location for diagnostics, e.g. "in_network.2.npi.0".
func (p *Path) String() string {
	var b strings.Builder
	for i, f := range p.frames {
		if i > 0 {
			b.WriteByte('.')
		}
		if f.array {
			b.WriteString(strconv.Itoa(f.index))
		} else {
			b.WriteString(f.key)
		}
	}
	return b.String()
}

type patSeg struct {
	key      string
	anyIndex bool
}

// Pattern is a compiled location predicate. Segments are dot-separated keys;
// "#" matches any array index.
type Pattern struct {
	segs []patSeg
}

// ParsePattern compiles a pattern like
// "in_network.#.negotiated_rates.#.provider_groups.#.npi.#".
func ParsePattern(s string) (Pattern, error) {
	if s == "" {
		return Pattern{}, fmt.Errorf("empty pattern")
	}
	parts := strings.Split(s, ".")
	segs := make([]patSeg, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			return Pattern{}, fmt.Errorf("empty segment in pattern %q", s)
		}
		if part == "#" {
			segs = append(segs, patSeg{anyIndex: true})
		} else {
			segs = append(segs, patSeg{key: part})
		}
	}
	return Pattern{segs: segs}, nil
}

// MustPattern is ParsePattern for package-level pattern constants.
func MustPattern(s string) Pattern {
	p, err := ParsePattern(s)
	if err != nil {
		panic(err)
	}
	return p
}
