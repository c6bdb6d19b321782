// Package languages holds the static table of supported languages.
//
// Each entry describes how a language is executed: the source file it is
// written to, the interpreter or compiler command templates, the run-stage
// defaults (timeout and memory ceiling) and, for compiled languages, which
// toolchain variant produces the runnable artifact.
//
// The table is built once at start-up and never mutated afterwards. Adding a
// language is one new row in defaultLanguages plus, only when it is compiled
// with a new kind of toolchain, one new Toolchain case in the sandbox compiler.
//
// Usage:
//
//	registry := languages.NewRegistry(nil)
//	spec, err := registry.Lookup("python")
//	if errors.Is(err, languages.ErrUnsupportedLanguage) {
//	    // reject the request
//	}
package languages
