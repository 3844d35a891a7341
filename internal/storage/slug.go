package storage

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxSlugLength is the maximum length of a feed URL slug.
const MaxSlugLength = 100

var slugPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// ValidSlug reports whether s is a well-formed feed slug: lowercase
// alphanumerics and single hyphens, no leading/trailing hyphen, at most
// MaxSlugLength characters.
func ValidSlug(s string) bool {
	if s == "" || len(s) > MaxSlugLength {
		return false
	}
	if strings.Contains(s, "--") {
		return false
	}
	return slugPattern.MatchString(s)
}

// Slugify converts a display name into a feed slug. Characters outside
// [a-z0-9] collapse into single hyphens; an empty result falls back to
// "room".
func Slugify(name string) string {
	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	slug := strings.Trim(b.String(), "-")
	if len(slug) > MaxSlugLength {
		slug = strings.Trim(slug[:MaxSlugLength], "-")
	}
	if slug == "" {
		return "room"
	}
	return slug
}

// UniqueSlug derives a slug from name that does not collide with any
// slug in taken, appending -2, -3, ... until a free one is found.
func UniqueSlug(name string, taken map[string]bool) string {
	base := Slugify(name)
	if !taken[base] {
		return base
	}
	for n := 2; ; n++ {
		suffix := fmt.Sprintf("-%d", n)
		candidate := base + suffix
		if len(candidate) > MaxSlugLength {
			candidate = strings.Trim(base[:MaxSlugLength-len(suffix)], "-") + suffix
		}
		if !taken[candidate] {
			return candidate
		}
	}
}
