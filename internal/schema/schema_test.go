package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerceString(t *testing.T) {
	reg := FilmRegistry()

	got, err := reg.Coerce("director", "  Michael Mann  ")
	require.NoError(t, err)
	assert.Equal(t, "Michael Mann", got)

	_, err = reg.Coerce("director", "   ")
	assert.Error(t, err)

	_, err = reg.Coerce("director", nil)
	assert.Error(t, err)
}

func TestCoerceTruncatesLongStrings(t *testing.T) {
	reg := FilmRegistry()

	long := strings.Repeat("x", 600)
	got, err := reg.Coerce("title", long)
	require.NoError(t, err)
	assert.Len(t, got, 500)
}

func TestCoerceInt(t *testing.T) {
	reg := FilmRegistry()

	tests := []struct {
		name  string
		value any
		want  int64
		ok    bool
	}{
		{"int", 1995, 1995, true},
		{"string digits", "1995", 1995, true},
		{"whole float", 1995.0, 1995, true},
		{"fractional float", 1995.5, 0, false},
		{"garbage", "nineteen", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := reg.Coerce("release_year", tt.value)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerceFloat(t *testing.T) {
	reg := FilmRegistry()

	got, err := reg.Coerce("rating", "7.9")
	require.NoError(t, err)
	assert.Equal(t, 7.9, got)

	got, err = reg.Coerce("rating", 8)
	require.NoError(t, err)
	assert.Equal(t, 8.0, got)

	_, err = reg.Coerce("rating", "high")
	assert.Error(t, err)
}

func TestCoerceURL(t *testing.T) {
	reg := FilmRegistry()

	got, err := reg.Coerce("poster_url", "https://img.example.com/heat.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://img.example.com/heat.jpg", got)

	_, err = reg.Coerce("poster_url", "not a url")
	assert.Error(t, err)

	_, err = reg.Coerce("poster_url", "/relative/path.jpg")
	assert.Error(t, err)
}

func TestCoerceUnknownField(t *testing.T) {
	reg := FilmRegistry()
	_, err := reg.Coerce("shoe_size", "42")
	assert.Error(t, err)
}

func TestForType(t *testing.T) {
	assert.Equal(t, 11, len(FilmRegistry().Names()))
	assert.Equal(t, 5, len(PersonRegistry().Names()))
	assert.Nil(t, ForType("starship"))

	film := ForType("film")
	require.NotNil(t, film)
	spec := film.ByName("release_year")
	require.NotNil(t, spec)
	assert.Equal(t, KindInt, spec.Kind)
	assert.True(t, spec.Required)
}
