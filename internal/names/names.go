// Package names validates job names and command arguments.
//
// A job name is one or more segments joined by '+', where each segment
// starts with an ASCII letter or digit and contains only letters, digits
// and hyphens. Segments double as the default argument list for the build
// command, so every segment must itself be a valid argument.
package names

import "regexp"

var (
	nameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-]*(\+[A-Za-z0-9][A-Za-z0-9-]*)*$`)
	argRe  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-]*$`)
)

// ValidName reports whether name is a well-formed job name. The empty
// string is not a valid name.
func ValidName(name string) bool {
	return nameRe.MatchString(name)
}

// ValidArgument reports whether arg is safe to pass to the build command.
// Arguments supplied separately from the name are held to the same
// single-segment grammar.
func ValidArgument(arg string) bool {
	return argRe.MatchString(arg)
}
