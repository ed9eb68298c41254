package testutil

import "regexp"

var ansiSequence = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// StripANSI drops terminal escape sequences so tests can assert on the
// plain text of styled TUI output.
func StripANSI(s string) string {
	return ansiSequence.ReplaceAllString(s, "")
}
