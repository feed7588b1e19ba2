package did

import (
	"errors"
	"strings"
	"testing"

	"didlink/internal/autherr"
)

func TestValidate(t *testing.T) {
	valid := []string{"did:example:abc123", "did:web:example.com", "did:key:z6Mk-abc_1.2", "did:ion:a:b"}
	for _, s := range valid {
		if err := Validate(s); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", s, err)
		}
	}
	invalid := []string{"", "abc", "did:", "did:example", "did:Example:abc", "did:example:", "did:example:a b", "did:example:" + strings.Repeat("a", MaxLength)}
	for _, s := range invalid {
		err := Validate(s)
		if err == nil {
			t.Errorf("Validate(%q) = nil, want error", s)
			continue
		}
		if !errors.Is(err, autherr.ErrValidation) {
			t.Errorf("Validate(%q) kind = %v, want validation", s, autherr.KindOf(err))
		}
	}
}
