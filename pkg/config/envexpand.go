package config

import "os"

// ExpandEnv expands ${VAR} and $VAR references in YAML content using the
// standard library, the same shell-style interpolation the teacher's
// pkg/config/envexpand.go performs before parsing. Missing variables
// expand to the empty string; required-field validation catches the gap.
func ExpandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}
