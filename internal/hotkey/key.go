package hotkey

import (
	"fmt"
	"strings"
)

// Key is a symbolic, layout-independent name for a non-modifier key.
// The zero value KeyNone means no key, which is how modifier-only chords
// and modifier-only hotkeys are expressed.
type Key string

// KeyNone is the absence of a non-modifier key.
const KeyNone Key = ""

// Special keys.
const (
	KeySpace     Key = "space"
	KeyReturn    Key = "return"
	KeyTab       Key = "tab"
	KeyEscape    Key = "escape"
	KeyBackspace Key = "backspace"
	KeyDelete    Key = "delete"

	KeyLeft  Key = "left"
	KeyRight Key = "right"
	KeyUp    Key = "up"
	KeyDown  Key = "down"
)

// IsNone reports whether the key is absent.
func (k Key) IsNone() bool { return k == KeyNone }

// String returns the symbolic name.
func (k Key) String() string { return string(k) }

// validKeys is the set of recognized symbolic key names beyond single
// characters and function keys.
var validKeys = map[Key]bool{
	KeySpace: true, KeyReturn: true, KeyTab: true, KeyEscape: true,
	KeyBackspace: true, KeyDelete: true,
	KeyLeft: true, KeyRight: true, KeyUp: true, KeyDown: true,
}

// ParseKey parses a symbolic key name: a single letter or digit, a
// punctuation character, "f1".."f20", or one of the named special keys.
// An empty string parses to KeyNone.
func ParseKey(s string) (Key, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return KeyNone, nil
	}
	if len(s) == 1 {
		c := s[0]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			return Key(s), nil
		case strings.ContainsRune(".,/;'`\\-=[]", rune(c)):
			return Key(s), nil
		}
		return KeyNone, fmt.Errorf("unknown key %q", s)
	}
	if strings.HasPrefix(s, "f") && len(s) <= 3 {
		var n int
		if _, err := fmt.Sscanf(s, "f%d", &n); err == nil && n >= 1 && n <= 20 {
			return Key(s), nil
		}
	}
	// Aliases kept for imported configs from other tools.
	switch s {
	case "enter":
		return KeyReturn, nil
	case "esc":
		return KeyEscape, nil
	}
	if validKeys[Key(s)] {
		return Key(s), nil
	}
	return KeyNone, fmt.Errorf("unknown key %q", s)
}
