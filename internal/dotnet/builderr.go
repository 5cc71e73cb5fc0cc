package dotnet

import (
	"regexp"
	"strings"
)

// Matches compiler diagnostics such as
// "Program.cs(3,1): error CS0103: The name 'x' does not exist".
var buildErrorPattern = regexp.MustCompile(`^.*?\(\d+,\d+\): error ([A-Z]+\d+):.*$`)

// ParseBuildErrors extracts error lines from build output in first-seen
// order. The build tool prints each error twice, once inline and once in
// the summary; duplicates are dropped.
func ParseBuildErrors(output string) []string {
	seen := map[string]bool{}
	var errs []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !buildErrorPattern.MatchString(line) || seen[line] {
			continue
		}
		seen[line] = true
		errs = append(errs, line)
	}
	return errs
}

// ErrorCode returns the diagnostic code (e.g. "CS0103") of a parsed line.
func ErrorCode(line string) string {
	m := buildErrorPattern.FindStringSubmatch(line)
	if m == nil {
		return ""
	}
	return m[1]
}
