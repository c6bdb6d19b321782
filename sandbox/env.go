package sandbox

import (
	"maps"
	"os"
	"slices"

	"github.com/isdmx/polyrun/config"
	"github.com/isdmx/polyrun/languages"
)

// DefaultPath is used when the service itself runs without PATH.
const DefaultPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

// EnvPolicy decides which host variables reach sandboxed processes.
type EnvPolicy struct {
	// Inherit names the host variables copied through when set.
	Inherit []string
}

// DefaultEnvPolicy passes only what toolchains need to start.
var DefaultEnvPolicy = EnvPolicy{Inherit: config.DefaultInheritEnv}

// Environment builds the environment of a process whose home is the
// workspace dir. The language's variables come last so they win on
// duplicate keys.
func (p EnvPolicy) Environment(spec languages.LanguageSpec, dir string) []string {
	env := make([]string, 0, len(p.Inherit)+len(spec.Env)+3)

	hasPath := false
	for _, key := range p.Inherit {
		value, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		hasPath = hasPath || key == "PATH"
		env = append(env, key+"="+value)
	}
	if !hasPath {
		env = append(env, "PATH="+DefaultPath)
	}

	env = append(env, "HOME="+dir, "TMPDIR="+dir)

	for _, key := range slices.Sorted(maps.Keys(spec.Env)) {
		env = append(env, key+"="+spec.Env[key])
	}
	return env
}
