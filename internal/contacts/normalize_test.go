package contacts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already e164", "+15551234567", "+15551234567"},
		{"ten digits", "5551234567", "+15551234567"},
		{"eleven digits with 1", "15551234567", "+15551234567"},
		{"formatted", "(555) 123-4567", "+15551234567"},
		{"formatted with country code", "+1 (555) 123-4567", "+15551234567"},
		{"international without plus", "447911123456", "+447911123456"},
		{"short code stays as is", "86753", "86753"},
		{"empty", "", ""},
		{"whitespace", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePhone(tt.in))
		})
	}
}

func TestNormalizeIdentifier(t *testing.T) {
	assert.Equal(t, "alice@example.com", NormalizeIdentifier("Alice@Example.COM"))
	assert.Equal(t, "+15551234567", NormalizeIdentifier("555-123-4567"))
	assert.Equal(t, "", NormalizeIdentifier(""))
}
