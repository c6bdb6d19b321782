package languages

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
)

// ErrUnsupportedLanguage is returned by Lookup for ids outside the table.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Registry is the immutable language table. It is safe for concurrent use
// because nothing writes to it after NewRegistry returns.
type Registry struct {
	languages map[string]LanguageSpec
	ids       []string
}

// NewRegistry builds the registry from the built-in table. extraEnv maps a
// language id to environment variables layered over the built-in ones;
// entries for unknown ids are ignored.
func NewRegistry(extraEnv map[string]map[string]string) *Registry {
	r := &Registry{
		languages: make(map[string]LanguageSpec),
	}

	for _, spec := range defaultLanguages() {
		env := make(map[string]string, len(spec.Env))
		maps.Copy(env, spec.Env)
		maps.Copy(env, extraEnv[spec.ID])
		spec.Env = env

		r.languages[spec.ID] = spec
		r.ids = append(r.ids, spec.ID)
	}
	sort.Strings(r.ids)

	return r
}

// Lookup returns the LanguageSpec for id. The returned value shares nothing with the
// registry, so callers may not mutate the table through it.
func (r *Registry) Lookup(id string) (LanguageSpec, error) {
	spec, ok := r.languages[id]
	if !ok {
		return LanguageSpec{}, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, id)
	}
	return clone(spec), nil
}

// IDs returns the supported language ids in sorted order.
func (r *Registry) IDs() []string {
	return slices.Clone(r.ids)
}

// List returns every spec sorted by id.
func (r *Registry) List() []LanguageSpec {
	specs := make([]LanguageSpec, 0, len(r.ids))
	for _, id := range r.ids {
		specs = append(specs, clone(r.languages[id]))
	}
	return specs
}

// Infos returns the public projection of every language, sorted by id.
func (r *Registry) Infos() []Info {
	infos := make([]Info, 0, len(r.ids))
	for _, id := range r.ids {
		infos = append(infos, r.languages[id].Info())
	}
	return infos
}

func clone(spec LanguageSpec) LanguageSpec {
	spec.CompileCommand = slices.Clone(spec.CompileCommand)
	spec.RunCommand = slices.Clone(spec.RunCommand)
	spec.Env = maps.Clone(spec.Env)
	return spec
}
