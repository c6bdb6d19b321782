package languages

// Toolchain identifies how a compiled language turns source into something runnable.
type Toolchain string

const (
	// ToolchainNone marks interpreted languages.
	ToolchainNone Toolchain = ""
	// ToolchainNative produces a native executable (C, C++, Go).
	ToolchainNative Toolchain = "native"
	// ToolchainMono produces a CLI assembly run through the mono shim (C#).
	ToolchainMono Toolchain = "mono"
	// ToolchainJVM produces a class directory run by the java launcher.
	ToolchainJVM Toolchain = "jvm"
)

// Placeholders recognised in command templates.
const (
	PlaceholderSource   = "{source}"
	PlaceholderBinary   = "{binary}"
	PlaceholderClassDir = "{classdir}"
	PlaceholderEntry    = "{entry}"
	PlaceholderDir      = "{dir}"
)

// LanguageSpec describes how to execute one language.
type LanguageSpec struct {
	ID              string
	Name            string
	SourceExtension string

	// CompileCommand is the toolchain template for compiled languages.
	CompileCommand []string
	// RunCommand is the template for the run stage. For interpreted
	// languages it is the interpreter invocation.
	RunCommand []string

	DefaultTimeoutSec int
	MemoryLimitMB     int

	Compiled       bool
	NeedsClassName bool
	Toolchain      Toolchain

	// Env is appended to the inherited environment of both stages.
	Env map[string]string
}

// SourceFile returns the default file name the source is written to.
func (s LanguageSpec) SourceFile() string {
	return "main" + s.SourceExtension
}

// Info is the read-only projection exposed to callers.
type Info struct {
	Language        string `json:"language"`
	Name            string `json:"name"`
	SourceExtension string `json:"source_extension"`
	TimeoutDefault  int    `json:"timeout_default"`
	MemoryLimitMB   int    `json:"memory_limit_mb"`
	Compiled        bool   `json:"compiled"`
}

// Info returns the public projection of the spec.
func (s LanguageSpec) Info() Info {
	return Info{
		Language:        s.ID,
		Name:            s.Name,
		SourceExtension: s.SourceExtension,
		TimeoutDefault:  s.DefaultTimeoutSec,
		MemoryLimitMB:   s.MemoryLimitMB,
		Compiled:        s.Compiled,
	}
}

// JVM flags keep reserved virtual memory inside the address-space ceiling.
var javaRunFlags = []string{
	"-Xmx256m",
	"-Xss8m",
	"-XX:CompressedClassSpaceSize=64m",
	"-XX:ReservedCodeCacheSize=64m",
	"-XX:+UseSerialGC",
	"-XX:TieredStopAtLevel=1",
}

func defaultLanguages() []LanguageSpec {
	javaRun := append([]string{"java"}, javaRunFlags...)
	javaRun = append(javaRun, "-cp", PlaceholderClassDir, PlaceholderEntry)

	return []LanguageSpec{
		{
			ID:                "python",
			Name:              "Python",
			SourceExtension:   ".py",
			RunCommand:        []string{"python3", "-u", PlaceholderSource},
			DefaultTimeoutSec: 10,
			MemoryLimitMB:     256,
		},
		{
			ID:                "javascript",
			Name:              "JavaScript",
			SourceExtension:   ".js",
			RunCommand:        []string{"node", PlaceholderSource},
			DefaultTimeoutSec: 10,
			MemoryLimitMB:     4096,
		},
		{
			ID:                "typescript",
			Name:              "TypeScript",
			SourceExtension:   ".ts",
			RunCommand:        []string{"ts-node", "--transpile-only", PlaceholderSource},
			DefaultTimeoutSec: 15,
			MemoryLimitMB:     4096,
		},
		{
			ID:                "bash",
			Name:              "Bash",
			SourceExtension:   ".sh",
			RunCommand:        []string{"bash", PlaceholderSource},
			DefaultTimeoutSec: 10,
			MemoryLimitMB:     128,
		},
		{
			ID:                "php",
			Name:              "PHP",
			SourceExtension:   ".php",
			RunCommand:        []string{"php", PlaceholderSource},
			DefaultTimeoutSec: 10,
			MemoryLimitMB:     256,
		},
		{
			ID:                "ruby",
			Name:              "Ruby",
			SourceExtension:   ".rb",
			RunCommand:        []string{"ruby", PlaceholderSource},
			DefaultTimeoutSec: 10,
			MemoryLimitMB:     256,
		},
		{
			ID:                "perl",
			Name:              "Perl",
			SourceExtension:   ".pl",
			RunCommand:        []string{"perl", PlaceholderSource},
			DefaultTimeoutSec: 10,
			MemoryLimitMB:     256,
		},
		{
			ID:                "c",
			Name:              "C",
			SourceExtension:   ".c",
			CompileCommand:    []string{"gcc", "-O2", "-std=c11", "-o", PlaceholderBinary, PlaceholderSource, "-lm"},
			RunCommand:        []string{PlaceholderBinary},
			DefaultTimeoutSec: 10,
			MemoryLimitMB:     256,
			Compiled:          true,
			Toolchain:         ToolchainNative,
		},
		{
			ID:                "cpp",
			Name:              "C++",
			SourceExtension:   ".cpp",
			CompileCommand:    []string{"g++", "-O2", "-std=c++17", "-o", PlaceholderBinary, PlaceholderSource},
			RunCommand:        []string{PlaceholderBinary},
			DefaultTimeoutSec: 10,
			MemoryLimitMB:     256,
			Compiled:          true,
			Toolchain:         ToolchainNative,
		},
		{
			ID:                "go",
			Name:              "Go",
			SourceExtension:   ".go",
			CompileCommand:    []string{"go", "build", "-o", PlaceholderBinary, PlaceholderSource},
			RunCommand:        []string{PlaceholderBinary},
			DefaultTimeoutSec: 10,
			// the runtime reserves its heap arena index up front; below
			// ~1GiB of address space it aborts before main
			MemoryLimitMB: 1024,
			Compiled:      true,
			Toolchain:     ToolchainNative,
			Env:           map[string]string{"CGO_ENABLED": "0"},
		},
		{
			ID:                "csharp",
			Name:              "C#",
			SourceExtension:   ".cs",
			CompileCommand:    []string{"mcs", "-out:" + PlaceholderBinary, PlaceholderSource},
			RunCommand:        []string{"mono", PlaceholderBinary},
			DefaultTimeoutSec: 10,
			MemoryLimitMB:     512,
			Compiled:          true,
			Toolchain:         ToolchainMono,
		},
		{
			ID:                "java",
			Name:              "Java",
			SourceExtension:   ".java",
			CompileCommand:    []string{"javac", "-d", PlaceholderClassDir, PlaceholderSource},
			RunCommand:        javaRun,
			DefaultTimeoutSec: 15,
			MemoryLimitMB:     1024,
			Compiled:          true,
			NeedsClassName:    true,
			Toolchain:         ToolchainJVM,
		},
	}
}
