package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJavaClassName(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		expected string
	}{
		{
			name:     "PublicClass",
			source:   "public class Main {\n  public static void main(String[] a) {}\n}",
			expected: "Main",
		},
		{
			name:     "PublicClassWinsOverEarlierClass",
			source:   "class Helper {}\npublic class Solution { }",
			expected: "Solution",
		},
		{
			name:     "PackagePrivateClass",
			source:   "import java.util.*;\nclass Program { }",
			expected: "Program",
		},
		{
			name:     "PublicFinalClass",
			source:   "public final class Hello$World { }",
			expected: "Hello$World",
		},
		{
			name:     "ExtraWhitespace",
			source:   "public   class\n\tSpaced {}",
			expected: "Spaced",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, err := ExtractJavaClassName(tt.source)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, name)
		})
	}
}

func TestExtractJavaClassNameMissing(t *testing.T) {
	for _, source := range []string{
		"",
		"interface Runner { void run(); }",
		"public enum Color { RED }",
		"System.out.println(\"no declarations\");",
	} {
		_, err := ExtractJavaClassName(source)
		assert.ErrorIs(t, err, ErrNoClassDeclaration)
	}
}
