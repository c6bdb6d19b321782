package sandbox

import (
	"errors"
	"regexp"
)

// ErrNoClassDeclaration is returned when Java source declares no class.
var ErrNoClassDeclaration = errors.New("no class declaration found; expected 'public class <Name>' or 'class <Name>'")

var (
	publicClassPattern = regexp.MustCompile(`\bpublic\s+(?:(?:final|abstract|strictfp)\s+)*class\s+([A-Za-z_$][A-Za-z0-9_$]*)`)
	classPattern       = regexp.MustCompile(`\bclass\s+([A-Za-z_$][A-Za-z0-9_$]*)`)
)

// ExtractJavaClassName returns the class the java launcher must be pointed
// at: the first public class, else the first class. This is a textual scan,
// not a parse; a class name inside a comment or string can match.
func ExtractJavaClassName(source string) (string, error) {
	if m := publicClassPattern.FindStringSubmatch(source); m != nil {
		return m[1], nil
	}
	if m := classPattern.FindStringSubmatch(source); m != nil {
		return m[1], nil
	}
	return "", ErrNoClassDeclaration
}
