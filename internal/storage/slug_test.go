package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidSlug(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		slug string
		want bool
	}{
		{name: "simple", slug: "room-101", want: true},
		{name: "single char", slug: "a", want: true},
		{name: "digits only", slug: "42", want: true},
		{name: "empty", slug: "", want: false},
		{name: "uppercase", slug: "Room-101", want: false},
		{name: "leading hyphen", slug: "-room", want: false},
		{name: "trailing hyphen", slug: "room-", want: false},
		{name: "double hyphen", slug: "room--101", want: false},
		{name: "spaces", slug: "room 101", want: false},
		{name: "unicode", slug: "zimmer-über", want: false},
		{name: "too long", slug: strings.Repeat("a", MaxSlugLength+1), want: false},
		{name: "max length", slug: strings.Repeat("a", MaxSlugLength), want: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ValidSlug(tt.slug))
		})
	}
}

func TestSlugify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "Ocean View Suite", want: "ocean-view-suite"},
		{name: "punctuation", in: "Room #2 (Upstairs)", want: "room-2-upstairs"},
		{name: "consecutive separators", in: "A  --  B", want: "a-b"},
		{name: "leading trailing junk", in: "  ~Loft~  ", want: "loft"},
		{name: "all stripped", in: "日本語", want: "room"},
		{name: "empty", in: "", want: "room"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Slugify(tt.in)
			assert.Equal(t, tt.want, got)
			assert.True(t, ValidSlug(got))
		})
	}
}

func TestSlugifyLongNameStaysValid(t *testing.T) {
	t.Parallel()

	got := Slugify(strings.Repeat("very long name ", 20))
	assert.LessOrEqual(t, len(got), MaxSlugLength)
	assert.True(t, ValidSlug(got))
}

func TestUniqueSlug(t *testing.T) {
	t.Parallel()

	taken := map[string]bool{"ocean-view": true}

	assert.Equal(t, "garden-view", UniqueSlug("Garden View", taken))

	assert.Equal(t, "ocean-view-2", UniqueSlug("Ocean View", taken))

	taken["ocean-view-2"] = true
	assert.Equal(t, "ocean-view-3", UniqueSlug("Ocean View", taken))

	long := strings.Repeat("a", MaxSlugLength)
	taken[long] = true
	collided := UniqueSlug(long, taken)
	assert.True(t, ValidSlug(collided))
	assert.True(t, strings.HasSuffix(collided, "-2"))
}
