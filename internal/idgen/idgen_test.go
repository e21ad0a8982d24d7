package idgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicLinkIDConverges(t *testing.T) {
	a := DeterministicLinkID("src-1", "tgt-1", "derived")
	b := DeterministicLinkID("src-1", "tgt-1", "derived")
	require.Equal(t, a, b, "two peers computing the same edge must converge on one id")

	c := DeterministicLinkID("src-1", "tgt-1", "related")
	assert.NotEqual(t, a, c, "changing the link type must change the id")
}

func TestID8(t *testing.T) {
	id := "ab123456-7890-4abc-9def-0123456789ab"
	assert.Equal(t, "ab123456", ID8(id))
}

func TestIsUUID(t *testing.T) {
	assert.True(t, IsUUID(NewEntryID()))
	assert.False(t, IsUUID("not-a-uuid"))
	assert.False(t, IsUUID(""))
}

func TestSlug(t *testing.T) {
	cases := []struct{ title, want string }{
		{"Hello World", "hello-world"},
		{"  leading and trailing  ", "leading-and-trailing"},
		{"snake_case/path", "snake-case-path"},
		{"日本語", "entry"},
		{"café déjà vu", "cafe-deja-vu"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Slug(c.title), "title %q", c.title)
	}
}

func TestSlugCapsLength(t *testing.T) {
	long := ""
	for i := 0; i < 200; i++ {
		long += "a"
	}
	got := Slug(long)
	assert.LessOrEqual(t, len(got), maxSlugLen)
}
