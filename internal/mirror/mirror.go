// Package mirror copies a photo/video tree into a fresh destination tree,
// converting HEIC stills to JPEG, dropping live-photo sidecar videos and
// renaming stills after the keywords a vision model finds in them.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/jayzes/piccaption/internal/imaging"
	"github.com/jayzes/piccaption/internal/keywords"
)

// IgnoreFileName is looked up in the source root. It uses gitignore syntax.
const IgnoreFileName = ".piccaptionignore"

// Transcoder converts a HEIC/HEIF buffer to JPEG.
type Transcoder interface {
	ToJPEG(ctx context.Context, src []byte) (imaging.Converted, error)
}

// Namer derives the sanitized keywords for a written still.
type Namer interface {
	Derive(ctx context.Context, imagePath string) ([]string, error)
}

// ProgressFunc is called before each file is processed.
type ProgressFunc func(done, total int, relPath string)

// SourceEntry is one file found in the source tree.
type SourceEntry struct {
	AbsPath string
	RelDir  string
	Name    string
	// Ext is lower-cased.
	Ext string
}

// DestinationPlan is where a source entry is written.
type DestinationPlan struct {
	MirroredDir string
	TargetName  string
}

// Path returns the full destination path.
func (p DestinationPlan) Path() string {
	return filepath.Join(p.MirroredDir, p.TargetName)
}

// RenamedFile records a keyword rename.
type RenamedFile struct {
	Before string
	After  string
}

// Summary describes a finished (or aborted) run.
type Summary struct {
	Directories int
	Files       int
	Copied      int
	Converted   int
	Renamed     int
	Suppressed  int
	Ignored     int
	Renames     []RenamedFile
	Failures    []Failure
}

// Mirror walks a source tree and recreates it under a destination root.
type Mirror struct {
	Transcoder Transcoder
	// Namer may be nil, in which case nothing is renamed.
	Namer  Namer
	Policy Policy
	// ScratchPath is the fixed intermediate file for HEIC conversions.
	ScratchPath string
	Logger      *log.Logger
	OnProgress  ProgressFunc
}

// DefaultScratchPath is used when Mirror.ScratchPath is empty.
func DefaultScratchPath() string {
	return filepath.Join(os.TempDir(), "piccaption-temp.jpg")
}

type run struct {
	m            *Mirror
	log          *log.Logger
	src          string
	walkRoot     string
	dst          string
	matcher      *ignore.GitIgnore
	total        int
	done         int
	scratch      string
	wroteScratch bool
	sum          *Summary
}

// Run mirrors sourceRoot into destRoot. destRoot and every directory below it
// must not exist yet; the run refuses to start otherwise and nothing is
// written. Per-file problems are collected in Summary.Failures and do not
// stop the run. The returned summary is never nil.
func (m *Mirror) Run(ctx context.Context, sourceRoot, destRoot string) (*Summary, error) {
	sum := &Summary{}

	src, err := filepath.Abs(sourceRoot)
	if err != nil {
		return sum, fmt.Errorf("%w: %s: %w", ErrSourceNotFound, sourceRoot, err)
	}
	info, err := os.Stat(src)
	if err != nil || !info.IsDir() {
		return sum, fmt.Errorf("%w: %s", ErrSourceNotFound, sourceRoot)
	}
	// WalkDir does not follow a symlinked root.
	walkRoot, err := filepath.EvalSymlinks(src)
	if err != nil {
		return sum, fmt.Errorf("%w: %s: %w", ErrSourceNotFound, sourceRoot, err)
	}

	dst, err := filepath.Abs(destRoot)
	if err != nil {
		return sum, fmt.Errorf("invalid destination %s: %w", destRoot, err)
	}
	if within(src, dst) || within(walkRoot, resolveExisting(dst)) {
		return sum, fmt.Errorf("%w: %s", ErrDestinationInsideSource, destRoot)
	}

	matcher, err := loadIgnore(src)
	if err != nil {
		return sum, err
	}

	r := &run{
		m:        m,
		log:      m.logger(),
		src:      src,
		walkRoot: walkRoot,
		dst:      dst,
		matcher:  matcher,
		scratch:  m.ScratchPath,
		sum:      sum,
	}
	if r.scratch == "" {
		r.scratch = DefaultScratchPath()
	}
	defer r.cleanup()

	dirs, err := r.scan()
	if err != nil {
		return sum, err
	}

	// Refuse before touching anything.
	for _, rel := range dirs {
		p := filepath.Join(dst, rel)
		if _, err := os.Lstat(p); err == nil {
			return sum, &CollisionError{Path: p}
		} else if !os.IsNotExist(err) {
			return sum, fmt.Errorf("failed to check %s: %w", p, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return sum, fmt.Errorf("failed to create destination parent: %w", err)
	}

	r.log.Info("mirroring", "source", src, "destination", dst, "directories", len(dirs), "files", r.total)
	for _, rel := range dirs {
		if err := r.mirrorDir(ctx, rel); err != nil {
			return sum, err
		}
	}
	return sum, nil
}

func (m *Mirror) logger() *log.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return log.New(io.Discard)
}

// scan lists the directories to mirror, parents first, and counts the files
// they hold.
func (r *run) scan() ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(r.walkRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(r.walkRoot, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if r.ignored(rel, true) {
				return filepath.SkipDir
			}
			dirs = append(dirs, rel)
			return nil
		}
		if !r.ignored(rel, false) {
			r.total++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk source: %w", err)
	}
	return dirs, nil
}

func (r *run) ignored(rel string, dir bool) bool {
	if r.matcher == nil || rel == "." {
		return false
	}
	p := filepath.ToSlash(rel)
	if dir {
		p += "/"
	}
	return r.matcher.MatchesPath(p)
}

func (r *run) mirrorDir(ctx context.Context, rel string) error {
	absDir := filepath.Join(r.src, rel)
	mirrored := filepath.Join(r.dst, rel)

	// Exclusive create: an existing directory is never merged into.
	if err := os.Mkdir(mirrored, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return &CollisionError{Path: mirrored}
		}
		return fmt.Errorf("failed to create %s: %w", mirrored, err)
	}
	r.sum.Directories++

	entries, err := os.ReadDir(absDir)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", absDir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if r.ignored(filepath.Join(rel, e.Name()), false) {
			r.sum.Ignored++
			continue
		}
		names = append(names, e.Name())
	}

	sidecars := NewSidecarIndex(r.m.Policy, names)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.done++
		r.sum.Files++
		if r.m.OnProgress != nil {
			r.m.OnProgress(r.done, r.total, filepath.Join(rel, name))
		}

		entry := SourceEntry{
			AbsPath: filepath.Join(absDir, name),
			RelDir:  rel,
			Name:    name,
			Ext:     Ext(name),
		}
		r.processFile(ctx, entry, mirrored, sidecars)
	}
	return nil
}

func (r *run) processFile(ctx context.Context, e SourceEntry, mirrored string, sidecars SidecarIndex) {
	plan := DestinationPlan{MirroredDir: mirrored, TargetName: e.Name}

	switch r.m.Policy.Classify(e.Name) {
	case ConvertibleStill:
		plan.TargetName = Stem(e.Name) + ".jpg"
		if err := r.convert(ctx, e.AbsPath, plan.Path()); err != nil {
			r.fail(e.AbsPath, StageConvert, err)
			return
		}
		r.sum.Converted++
		r.log.Debug("converted", "from", e.AbsPath, "to", plan.Path())
	case MaybeRedundantVideo:
		if sidecars.Suppresses(r.m.Policy, e.Name) {
			r.sum.Suppressed++
			r.log.Debug("skipped live photo sidecar", "path", e.AbsPath)
			return
		}
		fallthrough
	case CopyableStill, CopyableVideo:
		if err := copyFile(e.AbsPath, plan.Path()); err != nil {
			r.fail(e.AbsPath, StageCopy, err)
			return
		}
		r.sum.Copied++
		r.log.Debug("copied", "from", e.AbsPath, "to", plan.Path())
	default:
		r.sum.Ignored++
		r.log.Debug("ignored", "path", e.AbsPath, "ext", e.Ext)
		return
	}

	if r.m.Namer != nil && r.m.Policy.IsRenamable(plan.TargetName) {
		r.rename(ctx, plan)
	}
}

// convert transcodes a HEIC source through the scratch file into dst.
func (r *run) convert(ctx context.Context, src, dst string) error {
	if r.m.Transcoder == nil {
		return errors.New("no transcoder configured")
	}
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	out, err := r.m.Transcoder.ToJPEG(ctx, data)
	if err != nil {
		return err
	}
	jpeg, err := imaging.EnsureExif(out.JPEG, out.Exif)
	if err != nil {
		return err
	}
	if o := imaging.Orientation(jpeg); o > 1 {
		r.log.Debug("converted image carries orientation", "path", src, "orientation", o)
	}

	if err := os.WriteFile(r.scratch, jpeg, 0o644); err != nil {
		return fmt.Errorf("failed to write scratch file: %w", err)
	}
	r.wroteScratch = true

	if err := copyFile(r.scratch, dst); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

func (r *run) rename(ctx context.Context, plan DestinationPlan) {
	path := plan.Path()
	kws, err := r.m.Namer.Derive(ctx, path)
	if err != nil {
		r.fail(path, StageKeywords, err)
		return
	}

	newName := keywords.BuildName(plan.TargetName, kws)
	if newName == plan.TargetName {
		r.log.Debug("no usable keywords, keeping name", "path", path)
		return
	}

	newPath := filepath.Join(plan.MirroredDir, newName)
	if err := renameNoClobber(path, newPath); err != nil {
		r.fail(path, StageRename, err)
		return
	}
	r.sum.Renamed++
	r.sum.Renames = append(r.sum.Renames, RenamedFile{Before: path, After: newPath})
	r.log.Debug("renamed", "from", plan.TargetName, "to", newName, "keywords", kws)
}

func (r *run) fail(path string, stage Stage, err error) {
	r.sum.Failures = append(r.sum.Failures, Failure{Path: path, Stage: stage, Err: err})
	r.log.Warn(string(stage)+" failed", "path", path, "err", err)
}

func (r *run) cleanup() {
	if r.wroteScratch {
		_ = os.Remove(r.scratch)
	}
}

func loadIgnore(src string) (*ignore.GitIgnore, error) {
	p := filepath.Join(src, IgnoreFileName)
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("error checking for %s: %w", IgnoreFileName, err)
	}
	m, err := ignore.CompileIgnoreFile(p)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", IgnoreFileName, err)
	}
	return m, nil
}

// resolveExisting resolves symlinks in the longest existing prefix of p and
// appends the rest unchanged.
func resolveExisting(p string) string {
	rest := ""
	for {
		if resolved, err := filepath.EvalSymlinks(p); err == nil {
			return filepath.Join(resolved, rest)
		}
		parent := filepath.Dir(p)
		if parent == p {
			return filepath.Join(p, rest)
		}
		rest = filepath.Join(filepath.Base(p), rest)
		p = parent
	}
}

// within reports whether path is root or lies below it.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
