package novel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		title string
		want  string
	}{
		{"simple", "The Long Road Home", "the-long-road-home"},
		{"punctuation", "Hello, World! (Part 2)", "hello-world-part-2"},
		{"leading trailing", "  --Spaced Out--  ", "spaced-out"},
		{"non ascii only", "異世界の旅", ""},
		{"mixed", "幕間 Interlude 3", "interlude-3"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Slugify(tc.title))
		})
	}
}

func TestSluggerCollisions(t *testing.T) {
	t.Parallel()

	s := NewSlugger()
	require.Equal(t, "intermission", s.Unique("intermission"))
	require.Equal(t, "intermission-2", s.Unique("intermission"))
	require.Equal(t, "intermission-3", s.Unique("intermission"))
	require.Equal(t, "prologue", s.Unique("prologue"))
}
