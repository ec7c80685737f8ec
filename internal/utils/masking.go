package utils

import (
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/blake2b"
)

// MaskingConfig configures how sensitive data should be masked.
type MaskingConfig struct {
	// ShowFirst determines how many characters to show at the start
	ShowFirst int
	// ShowLast determines how many characters to show at the end
	ShowLast int
	// MaskChar is the character used for masking (default: '*')
	MaskChar rune
	// MinLength is the minimum length below which the entire string is masked
	MinLength int
}

// DefaultMaskingConfig provides secure defaults for masking.
var DefaultMaskingConfig = MaskingConfig{
	ShowFirst: 4,
	ShowLast:  4,
	MaskChar:  '*',
	MinLength: 12,
}

// MaskString masks a string, showing only first and last N characters.
// If the string is shorter than MinLength, it's fully masked.
func MaskString(s string, config MaskingConfig) string {
	if s == "" {
		return ""
	}

	runes := []rune(s)
	mask := string(config.MaskChar)
	if len(runes) < config.MinLength || config.ShowFirst+config.ShowLast >= len(runes) {
		return strings.Repeat(mask, len(runes))
	}

	first := string(runes[:config.ShowFirst])
	last := string(runes[len(runes)-config.ShowLast:])
	middleLen := len(runes) - config.ShowFirst - config.ShowLast

	return first + strings.Repeat(mask, middleLen) + last
}

// MaskToken masks an authentication token.
func MaskToken(token string) string {
	// JWT tokens have specific format: header.payload.signature
	if strings.Count(token, ".") == 2 {
		parts := strings.Split(token, ".")
		if len(parts[0]) > 6 {
			parts[0] = parts[0][:6] + "***"
		}
		parts[1] = "***"
		if len(parts[2]) > 4 {
			parts[2] = "***" + parts[2][len(parts[2])-4:]
		}
		return strings.Join(parts, ".")
	}
	return MaskString(token, DefaultMaskingConfig)
}

// MaskPhone masks a phone number, keeping formatting characters and the
// last 4 digits.
func MaskPhone(phone string) string {
	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < 4 {
		return strings.Repeat("*", utf8.RuneCountInString(phone))
	}

	var b strings.Builder
	b.Grow(len(phone))
	seen := 0
	for _, r := range phone {
		if r < '0' || r > '9' {
			b.WriteRune(r)
			continue
		}
		if seen < digits-4 {
			b.WriteByte('*')
		} else {
			b.WriteRune(r)
		}
		seen++
	}
	return b.String()
}

// MaskUsername shows the first two characters of a username.
func MaskUsername(username string) string {
	return MaskString(username, MaskingConfig{ShowFirst: 2, ShowLast: 0, MaskChar: '*', MinLength: 3})
}

// Fingerprint returns a short, stable, non-reversible identifier for value,
// suitable for correlating log lines without logging the value itself.
func Fingerprint(value string) string {
	sum := blake2b.Sum256([]byte(value))
	return hex.EncodeToString(sum[:8])
}
