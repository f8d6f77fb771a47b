package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type kind string

func TestDedupeFold(t *testing.T) {
	tests := []struct {
		name     string
		input    []kind
		expected []kind
	}{
		{
			name:     "nil slice",
			input:    nil,
			expected: nil,
		},
		{
			name:     "empty slice",
			input:    []kind{},
			expected: []kind{},
		},
		{
			name:     "folds case and whitespace",
			input:    []kind{"  Push ", "SMS"},
			expected: []kind{"push", "sms"},
		},
		{
			name:     "first occurrence wins",
			input:    []kind{"sms", "push", "SMS", "email", "Push"},
			expected: []kind{"sms", "push", "email"},
		},
		{
			name:     "drops blanks",
			input:    []kind{"", "  ", "email"},
			expected: []kind{"email"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeFold(tt.input))
		})
	}
}
