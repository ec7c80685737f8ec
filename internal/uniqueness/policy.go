package uniqueness

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultUsernameMinLength = 3
	DefaultPhoneMinLength    = 7

	// UsernameSymbols is the printable punctuation a username may contain
	// besides letters and digits.
	UsernameSymbols = "_.-!@#$%^&*+=?~"

	MessageTooShort    = "must be at least %d characters"
	MessageCharset     = "contains characters that are not allowed"
	MessageUnavailable = "could not check availability, check your connection and try again"
)

// Policy is the local validation applied before any remote check.
type Policy struct {
	MinLength int
	// Allowed reports whether rune r at rune index i may appear in a value.
	Allowed      func(i int, r rune) bool
	TakenMessage string
}

func UsernamePolicy() Policy {
	return Policy{
		MinLength: DefaultUsernameMinLength,
		Allowed: func(_ int, r rune) bool {
			return unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune(UsernameSymbols, r)
		},
		TakenMessage: "this username is already taken",
	}
}

func PhonePolicy() Policy {
	return Policy{
		MinLength: DefaultPhoneMinLength,
		Allowed: func(i int, r rune) bool {
			return (r >= '0' && r <= '9') || (i == 0 && r == '+')
		},
		TakenMessage: "this phone number is already registered",
	}
}

// Validate returns "" when value passes, otherwise the reason it does not.
// Whitespace is rejected whatever Allowed says.
func (p Policy) Validate(value string) string {
	if utf8.RuneCountInString(value) < p.MinLength {
		return fmt.Sprintf(MessageTooShort, p.MinLength)
	}
	i := 0
	for _, r := range value {
		if unicode.IsSpace(r) || (p.Allowed != nil && !p.Allowed(i, r)) {
			return MessageCharset
		}
		i++
	}
	return ""
}
