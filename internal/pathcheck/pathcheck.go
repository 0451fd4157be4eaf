// Package pathcheck performs a structural sanity check on user supplied paths
// before any filesystem work starts.
package pathcheck

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidPath is matched by every error returned from Validate.
var ErrInvalidPath = errors.New("not a path")

// Optional drive letter or root, then separator-delimited segments of word
// characters, hyphens, dots and spaces. One trailing separator is tolerated.
var pathPattern = regexp.MustCompile(`^(?:[a-zA-Z]:[\\/]|/)?(?:[\p{L}\p{N}_\-. ]+[\\/])*(?:[\p{L}\p{N}_\-. ]+)?$`)

// InvalidPathError reports the rejected input.
type InvalidPathError struct {
	Path string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("%s: %q", ErrInvalidPath, e.Path)
}

func (e *InvalidPathError) Is(target error) bool { return target == ErrInvalidPath }

// Validate returns path unchanged when it looks like a filesystem path.
// It does not check that the path exists.
func Validate(path string) (string, error) {
	if path == "" || !pathPattern.MatchString(path) {
		return "", &InvalidPathError{Path: path}
	}
	return path, nil
}
