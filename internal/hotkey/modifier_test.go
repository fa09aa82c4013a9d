package hotkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModifierMatchesSides(t *testing.T) {
	either := Modifier{Kind: ModShift}
	left := Modifier{Kind: ModShift, Side: SideLeft}
	right := Modifier{Kind: ModShift, Side: SideRight}

	assert.True(t, either.Matches(left))
	assert.True(t, left.Matches(either))
	assert.True(t, left.Matches(left))
	assert.False(t, left.Matches(right))
	assert.False(t, left.Matches(Modifier{Kind: ModControl, Side: SideLeft}))
}

func TestModifiersMatchesExactly(t *testing.T) {
	cmdOpt := NewModifiers(ModCommand, ModOption)

	assert.True(t, NewModifiers(ModCommand, ModOption).MatchesExactly(cmdOpt))
	// Extra modifier disqualifies.
	assert.False(t, NewModifiers(ModCommand, ModOption, ModShift).MatchesExactly(cmdOpt))
	// Missing modifier disqualifies.
	assert.False(t, NewModifiers(ModCommand).MatchesExactly(cmdOpt))
	// Side-pinned candidate still satisfies an either requirement.
	held := Modifiers{{Kind: ModCommand, Side: SideLeft}, {Kind: ModOption, Side: SideRight}}
	assert.True(t, held.MatchesExactly(cmdOpt))
}

func TestModifiersSubset(t *testing.T) {
	assert.True(t, Modifiers{}.IsSubsetOf(NewModifiers(ModCommand)))
	assert.True(t, NewModifiers(ModCommand).IsSubsetOf(NewModifiers(ModCommand, ModShift)))
	assert.False(t, NewModifiers(ModOption).IsSubsetOf(NewModifiers(ModCommand)))
}

func TestParseModifier(t *testing.T) {
	m, err := ParseModifier("ctrl:left")
	require.NoError(t, err)
	assert.Equal(t, Modifier{Kind: ModControl, Side: SideLeft}, m)

	m, err = ParseModifier("alt")
	require.NoError(t, err)
	assert.Equal(t, Modifier{Kind: ModOption, Side: SideEither}, m)

	_, err = ParseModifier("hyper")
	assert.Error(t, err)
}

func TestParseKey(t *testing.T) {
	for in, want := range map[string]Key{
		"a": Key("a"), "0": Key("0"), "f12": Key("f12"),
		"space": KeySpace, "enter": KeyReturn, "esc": KeyEscape, "": KeyNone,
	} {
		got, err := ParseKey(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"f21", "hyper", "aa"} {
		_, err := ParseKey(in)
		assert.Error(t, err, in)
	}
}

func TestHotkeyString(t *testing.T) {
	assert.Equal(t, "⌥", Hotkey{Modifiers: NewModifiers(ModOption)}.String())
	assert.Equal(t, "⌘⇧D", cmdShiftD().String())
}
