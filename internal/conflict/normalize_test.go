package conflict

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase", "Michael Mann", "michael mann"},
		{"diacritics", "Les Misérables", "les miserables"},
		{"whitespace collapse", "  Val   Kilmer ", "val kilmer"},
		{"combined", "  AMÉLIE  ", "amelie"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestSimilarity(t *testing.T) {
	// equal after normalization
	assert.Equal(t, 1.0, Similarity("Les Misérables", "les miserables"))

	// near matches score high, unrelated strings low
	assert.Greater(t, Similarity("Michael Mann", "Michael Man"), 0.8)
	assert.Less(t, Similarity("Michael Mann", "Kathryn Bigelow"), 0.5)
}
