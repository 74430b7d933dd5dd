package validation

import (
	"errors"
	"regexp"
)

var slugRegex = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ValidateSlug checks a catalogue slug: lowercase words joined by single hyphens.
func ValidateSlug(slug string) error {
	if len(slug) < 3 || len(slug) > 96 {
		return errors.New("slug must be 3-96 characters")
	}
	if !slugRegex.MatchString(slug) {
		return errors.New("slug may contain only lowercase letters, digits and single hyphens between words")
	}
	return nil
}
