package transfer

import (
	"path/filepath"
	"strings"
)

// shortenPath rewrites an absolute backing-store path into the
// "<share>/<relative path>" form advertised over the wire, by locating the
// first path *component* equal to name and keeping everything from there
// on, OS separator preserved. This matches components, not raw substrings
// of the path string: a share named "t" never matches the "t" inside
// "/tmp/...", only a path segment that is exactly "t". It returns "" if
// name does not occur as a component at all, which callers must treat as
// "skip this entry" rather than advertise an empty path (see Open
// Question #2).
func shortenPath(name, path string) string {
	clean := filepath.Clean(path)
	parts := strings.Split(clean, string(filepath.Separator))

	for i, part := range parts {
		if part == name {
			return strings.Join(parts[i:], string(filepath.Separator))
		}
	}
	return ""
}
