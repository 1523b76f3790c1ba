package runfiles

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrRejectedPath is returned by Resolve for request paths that are malformed
// or would escape the trusted root. Callers answer it exactly like a missing
// file.
var ErrRejectedPath = errors.New("rejected request path")

// Resolve maps a URL path onto a file below trustedRoot, which must be an
// absolute, clean path.
//
// The check is lexical: the joined path is cleaned and must still lie inside
// trustedRoot. Symlinks are not resolved, so this keeps local development
// hermetic but is not a sandbox.
func Resolve(requestPath, trustedRoot string) (string, error) {
	// User agents always send absolute paths; anything else is handcrafted.
	if !strings.HasPrefix(requestPath, "/") {
		return "", ErrRejectedPath
	}

	rel := filepath.FromSlash(requestPath[1:])
	if filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" || strings.HasPrefix(rel, string(filepath.Separator)) {
		return "", ErrRejectedPath
	}

	// Clean only after joining, or ".." segments slip past the prefix check.
	resolved := filepath.Clean(filepath.Join(trustedRoot, rel))
	if !within(resolved, trustedRoot) {
		return "", ErrRejectedPath
	}
	return resolved, nil
}

// within reports whether p is root or a descendant of it, comparing whole
// path components.
func within(p, root string) bool {
	if p == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(p, prefix)
}
