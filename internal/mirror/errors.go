package mirror

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceNotFound means the source root is missing or not a directory.
	ErrSourceNotFound = errors.New("source not found")
	// ErrDestinationCollision means a mirrored directory already exists.
	ErrDestinationCollision = errors.New("destination already exists")
	// ErrDestinationInsideSource means the destination would be walked as
	// part of the source tree.
	ErrDestinationInsideSource = errors.New("destination is inside source")
)

// CollisionError names the mirrored directory that already exists.
type CollisionError struct {
	Path string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("destination folder %q already exists", e.Path)
}

func (e *CollisionError) Is(target error) bool { return target == ErrDestinationCollision }

// Stage names the per-file step that failed.
type Stage string

const (
	StageCopy     Stage = "copy"
	StageConvert  Stage = "convert"
	StageKeywords Stage = "keywords"
	StageRename   Stage = "rename"
)

// Failure is a recoverable per-file error.
type Failure struct {
	Path  string
	Stage Stage
	Err   error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s %s: %v", f.Stage, f.Path, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }
