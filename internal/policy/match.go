package policy

import (
	"path"
	"strings"
)

// matchPattern reports whether a repo-relative path matches a pattern.
//
// Pattern forms, checked in order:
//   - "**" matches everything
//   - a pattern ending in "/" is a directory prefix: "tests/" matches
//     tests/foo.go and tests/a/b.txt but not testsuite/x
//   - otherwise the pattern is path.Match glob syntax, tried against the
//     full relative path and, when the pattern has no slash, against the
//     basename ("*.md" matches docs/readme.md)
//
// Paths are normalized to forward slashes before matching. A malformed
// glob matches nothing.
func matchPattern(pattern, p string) bool {
	p = strings.TrimPrefix(strings.ReplaceAll(p, "\\", "/"), "./")

	if pattern == "**" || pattern == "*" {
		return true
	}

	if strings.HasSuffix(pattern, "/") {
		prefix := pattern
		return strings.HasPrefix(p, prefix) || p == strings.TrimSuffix(pattern, "/")
	}

	if ok, err := path.Match(pattern, p); err == nil && ok {
		return true
	}
	if !strings.Contains(pattern, "/") {
		if ok, err := path.Match(pattern, path.Base(p)); err == nil && ok {
			return true
		}
	}
	return false
}
