package storageconfig

import "regexp"

// maskPattern matches the redacted display form of a secret,
// e.g. "*****1234".
var maskPattern = regexp.MustCompile(`^\*{3,}.+$`)

func isMasked(v string) bool {
	return maskPattern.MatchString(v)
}
