package hotkey

import (
	"fmt"
	"sort"
	"strings"
)

// ModifierKind identifies a modifier key independent of keyboard side.
type ModifierKind int

const (
	ModCommand ModifierKind = iota
	ModOption
	ModShift
	ModControl
	ModFn
)

// String returns the canonical lowercase name for the modifier kind.
func (k ModifierKind) String() string {
	switch k {
	case ModCommand:
		return "command"
	case ModOption:
		return "option"
	case ModShift:
		return "shift"
	case ModControl:
		return "control"
	case ModFn:
		return "fn"
	default:
		return "unknown"
	}
}

// Symbol returns the display symbol for the modifier kind.
func (k ModifierKind) Symbol() string {
	switch k {
	case ModCommand:
		return "⌘"
	case ModOption:
		return "⌥"
	case ModShift:
		return "⇧"
	case ModControl:
		return "⌃"
	case ModFn:
		return "fn"
	default:
		return "?"
	}
}

// ParseModifierKind parses a modifier kind name. Common aliases from other
// platforms (alt, cmd, super, win, ctrl) are accepted.
func ParseModifierKind(s string) (ModifierKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "command", "cmd", "super", "win", "meta":
		return ModCommand, nil
	case "option", "opt", "alt":
		return ModOption, nil
	case "shift":
		return ModShift, nil
	case "control", "ctrl":
		return ModControl, nil
	case "fn", "function":
		return ModFn, nil
	default:
		return 0, fmt.Errorf("unknown modifier kind %q", s)
	}
}

// ModifierSide specifies which physical side of the keyboard a modifier
// must be pressed on. SideEither matches both.
type ModifierSide int

const (
	SideEither ModifierSide = iota
	SideLeft
	SideRight
)

// String returns the canonical lowercase name for the side.
func (s ModifierSide) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	default:
		return "either"
	}
}

// ParseModifierSide parses a side name. Empty input means SideEither.
func ParseModifierSide(s string) (ModifierSide, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "either":
		return SideEither, nil
	case "left", "l":
		return SideLeft, nil
	case "right", "r":
		return SideRight, nil
	default:
		return 0, fmt.Errorf("unknown modifier side %q", s)
	}
}

// Modifier is a modifier key with an optional side requirement.
type Modifier struct {
	Kind ModifierKind
	Side ModifierSide
}

// Matches reports whether two modifiers refer to the same physical key.
// A SideEither requirement on either side of the comparison matches any side.
func (m Modifier) Matches(other Modifier) bool {
	if m.Kind != other.Kind {
		return false
	}
	if m.Side == SideEither || other.Side == SideEither {
		return true
	}
	return m.Side == other.Side
}

// String returns "kind" or "kind:side" when a side is pinned.
func (m Modifier) String() string {
	if m.Side == SideEither {
		return m.Kind.String()
	}
	return m.Kind.String() + ":" + m.Side.String()
}

// ParseModifier parses "kind" or "kind:side".
func ParseModifier(s string) (Modifier, error) {
	kindStr, sideStr, _ := strings.Cut(s, ":")
	kind, err := ParseModifierKind(kindStr)
	if err != nil {
		return Modifier{}, err
	}
	side, err := ParseModifierSide(sideStr)
	if err != nil {
		return Modifier{}, err
	}
	return Modifier{Kind: kind, Side: side}, nil
}

// Modifiers is a set of modifier keys pressed together.
type Modifiers []Modifier

// NewModifiers builds a modifier set from kinds, all with SideEither.
func NewModifiers(kinds ...ModifierKind) Modifiers {
	mods := make(Modifiers, 0, len(kinds))
	for _, k := range kinds {
		mods = append(mods, Modifier{Kind: k})
	}
	return mods
}

// IsEmpty reports whether no modifiers are present.
func (ms Modifiers) IsEmpty() bool { return len(ms) == 0 }

// Contains reports whether the set contains a modifier matching m,
// honoring side requirements on both sides.
func (ms Modifiers) Contains(m Modifier) bool {
	for _, candidate := range ms {
		if candidate.Matches(m) {
			return true
		}
	}
	return false
}

// ContainsKind reports whether any modifier of the given kind is present.
func (ms Modifiers) ContainsKind(kind ModifierKind) bool {
	for _, m := range ms {
		if m.Kind == kind {
			return true
		}
	}
	return false
}

// IsSubsetOf reports whether every modifier in the set is present in other.
func (ms Modifiers) IsSubsetOf(other Modifiers) bool {
	for _, m := range ms {
		if !other.Contains(m) {
			return false
		}
	}
	return true
}

// MatchesExactly reports whether the set satisfies expected with no extras:
// every expected modifier is present, no unexpected kinds are present, and
// sides are compatible pairwise.
func (ms Modifiers) MatchesExactly(expected Modifiers) bool {
	if !expected.IsSubsetOf(ms) {
		return false
	}
	for _, candidate := range ms {
		var requirement *Modifier
		for i := range expected {
			if expected[i].Kind == candidate.Kind {
				requirement = &expected[i]
				break
			}
		}
		if requirement == nil {
			return false
		}
		if !candidate.Matches(*requirement) {
			return false
		}
	}
	return true
}

// With returns a new set with m added. Existing entries of the same kind
// are replaced.
func (ms Modifiers) With(m Modifier) Modifiers {
	out := make(Modifiers, 0, len(ms)+1)
	for _, existing := range ms {
		if existing.Kind != m.Kind {
			out = append(out, existing)
		}
	}
	return append(out, m)
}

// Without returns a new set with all modifiers of the given kind removed.
func (ms Modifiers) Without(kind ModifierKind) Modifiers {
	out := make(Modifiers, 0, len(ms))
	for _, m := range ms {
		if m.Kind != kind {
			out = append(out, m)
		}
	}
	return out
}

// Sorted returns the modifiers in canonical display order.
func (ms Modifiers) Sorted() Modifiers {
	out := make(Modifiers, len(ms))
	copy(out, ms)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Side < out[j].Side
	})
	return out
}

// String renders the set as concatenated symbols in canonical order.
func (ms Modifiers) String() string {
	var b strings.Builder
	for _, m := range ms.Sorted() {
		b.WriteString(m.Kind.Symbol())
	}
	return b.String()
}
