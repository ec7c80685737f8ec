package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		config   MaskingConfig
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			config:   DefaultMaskingConfig,
			expected: "",
		},
		{
			name:     "short string fully masked",
			input:    "short",
			config:   DefaultMaskingConfig,
			expected: "*****",
		},
		{
			name:     "normal string masked",
			input:    "this-is-a-test-key",
			config:   DefaultMaskingConfig,
			expected: "this**********-key",
		},
		{
			name:     "custom config",
			input:    "abcdefgh12345678",
			config:   MaskingConfig{ShowFirst: 2, ShowLast: 2, MaskChar: '#', MinLength: 6},
			expected: "ab############78",
		},
		{
			name:     "multibyte runes counted once",
			input:    "ñandú-runner",
			config:   MaskingConfig{ShowFirst: 2, ShowLast: 0, MaskChar: '*', MinLength: 3},
			expected: "ña**********",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MaskString(tt.input, tt.config))
		})
	}
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "+*******4567", MaskPhone("+15551234567"))
	assert.Equal(t, "(***) ***-4567", MaskPhone("(555) 123-4567"))
	assert.Equal(t, "***", MaskPhone("123"))
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "eyJhbG***.***.***wxyz", MaskToken("eyJhbGciOiJIUzI1NiJ9.payload.sig-abcdwxyz"))
}

func TestMaskUsername(t *testing.T) {
	assert.Equal(t, "jo*****", MaskUsername("john_do"))
	assert.Equal(t, "**", MaskUsername("jo"))
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("+15551234567")
	assert.Len(t, a, 16)
	assert.Equal(t, a, Fingerprint("+15551234567"))
	assert.NotEqual(t, a, Fingerprint("+15551234568"))
}
