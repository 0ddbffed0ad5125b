package schema

import "github.com/filmgrid/enrich-cli/internal/model"

// FilmRegistry returns the built-in field schema for film entities.
func FilmRegistry() *Registry {
	return NewRegistry(model.EntityFilm, []FieldSpec{
		{Name: "title", Kind: KindString, Required: true, MaxLength: 500},
		{Name: "release_year", Kind: KindInt, Required: true},
		{Name: "director", Kind: KindString, MaxLength: 255},
		{Name: "tagline", Kind: KindString, MaxLength: 1000},
		{Name: "overview", Kind: KindString, MaxLength: 4000},
		{Name: "poster_url", Kind: KindURL},
		{Name: "backdrop_url", Kind: KindURL},
		{Name: "runtime_minutes", Kind: KindInt},
		{Name: "rating", Kind: KindFloat},
		{Name: "release_date", Kind: KindDate},
		{Name: "imdb_id", Kind: KindString, MaxLength: 20},
	})
}

// PersonRegistry returns the built-in field schema for person entities.
func PersonRegistry() *Registry {
	return NewRegistry(model.EntityPerson, []FieldSpec{
		{Name: "name", Kind: KindString, Required: true, MaxLength: 255},
		{Name: "birth_year", Kind: KindInt},
		{Name: "birthplace", Kind: KindString, MaxLength: 255},
		{Name: "biography", Kind: KindString, MaxLength: 8000},
		{Name: "headshot_url", Kind: KindURL},
	})
}

// ForType returns the built-in registry for an entity type, or nil when
// the type is unknown.
func ForType(t model.EntityType) *Registry {
	switch t {
	case model.EntityFilm:
		return FilmRegistry()
	case model.EntityPerson:
		return PersonRegistry()
	default:
		return nil
	}
}
