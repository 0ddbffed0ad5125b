package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntityKeyString(t *testing.T) {
	tests := []struct {
		name string
		key  EntityKey
		want string
	}{
		{
			name: "id wins over title",
			key:  EntityKey{Type: EntityFilm, ID: "tt0113277", Title: "Heat", Year: 1995},
			want: "film:tt0113277",
		},
		{
			name: "title and year",
			key:  EntityKey{Type: EntityFilm, Title: "Heat", Year: 1995},
			want: "film:heat (1995)",
		},
		{
			name: "title only",
			key:  EntityKey{Type: EntityPerson, Title: "Val Kilmer"},
			want: "person:val kilmer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key.String())
		})
	}
}

func TestParseEntityKeyRoundTrip(t *testing.T) {
	keys := []EntityKey{
		{Type: EntityFilm, ID: "tt0113277"},
		{Type: EntityFilm, Title: "heat", Year: 1995},
		{Type: EntityPerson, Title: "val kilmer"},
	}
	for _, k := range keys {
		parsed := ParseEntityKey(k.String())
		assert.Equal(t, k, parsed, "round trip of %q", k.String())
	}
}

func TestEntityKeyIsZero(t *testing.T) {
	assert.True(t, EntityKey{Type: EntityFilm}.IsZero())
	assert.False(t, EntityKey{Type: EntityFilm, ID: "x"}.IsZero())
	assert.False(t, EntityKey{Type: EntityFilm, Title: "x"}.IsZero())
}

func TestResolutionStateTerminal(t *testing.T) {
	assert.False(t, StatePending.Terminal())
	assert.False(t, StatePartiallyResolved.Terminal())
	assert.True(t, StateFullyResolved.Terminal())
	assert.True(t, StateExhausted.Terminal())
}
