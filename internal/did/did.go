// Package did validates decentralized identifiers of the form did:<method>:<method-specific-id>.
package did

import (
	"regexp"

	"didlink/internal/autherr"
)

// MaxLength bounds stored identifiers.
const MaxLength = 512

var pattern = regexp.MustCompile(`^did:[a-z0-9]+:[A-Za-z0-9._%-]+(:[A-Za-z0-9._%-]+)*$`)

// Validate returns a Validation error when s is not a syntactically valid DID.
func Validate(s string) error {
	if s == "" {
		return autherr.Validation("did is required")
	}
	if len(s) > MaxLength || !pattern.MatchString(s) {
		return autherr.Validation("did is malformed")
	}
	return nil
}
