// Package strings provides string normalization helpers.
package strings

import (
	"strings"
)

// DedupeFold trims and lowercases each value, drops empties and keeps the
// first occurrence of each. Order is preserved.
//
// Example:
//
//	DedupeFold([]ChannelKind{" SMS ", "push", "sms", ""})
//	// Returns: []ChannelKind{"sms", "push"}
func DedupeFold[T ~string](values []T) []T {
	if len(values) == 0 {
		return values
	}

	seen := make(map[T]struct{}, len(values))
	result := make([]T, 0, len(values))

	for _, v := range values {
		folded := T(strings.ToLower(strings.TrimSpace(string(v))))
		if folded == "" {
			continue
		}
		if _, ok := seen[folded]; !ok {
			seen[folded] = struct{}{}
			result = append(result, folded)
		}
	}

	return result
}
