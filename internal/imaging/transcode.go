// Package imaging converts HEIC/HEIF stills to JPEG, carries their EXIF block
// over and prepares downsized previews for keyword inference.
package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

var (
	// ErrNoConverter is returned when none of the converter tools is installed.
	ErrNoConverter = errors.New("no HEIC converter found")
	// ErrDecode wraps converter failures.
	ErrDecode = errors.New("failed to decode HEIC image")
)

// DefaultConverters lists the supported tools in order of preference.
var DefaultConverters = []string{"heif-convert", "magick", "sips", "ffmpeg"}

// lookPath is replaceable so tests can simulate missing tools.
var lookPath = exec.LookPath

// Converted is the result of a HEIC to JPEG conversion.
type Converted struct {
	JPEG []byte
	// Exif is the raw EXIF block of the source, nil when unavailable.
	Exif []byte
}

// HEIFConverter shells out to an installed converter.
type HEIFConverter struct {
	// Converters overrides DefaultConverters.
	Converters []string
	// Quality is the JPEG quality for converters that accept one (1-100).
	Quality int
}

// Tool returns the first available converter.
func (c *HEIFConverter) Tool() (string, error) {
	tools := c.Converters
	if len(tools) == 0 {
		tools = DefaultConverters
	}
	for _, name := range tools {
		if p, err := lookPath(name); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w (tried %s)", ErrNoConverter, strings.Join(tools, ", "))
}

// ToJPEG converts a HEIC/HEIF buffer to JPEG.
func (c *HEIFConverter) ToJPEG(ctx context.Context, src []byte) (Converted, error) {
	tool, err := c.Tool()
	if err != nil {
		return Converted{}, err
	}

	workDir, err := os.MkdirTemp("", "piccaption-heic-*")
	if err != nil {
		return Converted{}, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	inPath := filepath.Join(workDir, "in.heic")
	outPath := filepath.Join(workDir, "out.jpg")
	if err := os.WriteFile(inPath, src, 0o600); err != nil {
		return Converted{}, fmt.Errorf("failed to write temp file: %w", err)
	}

	cmd := exec.CommandContext(ctx, tool, converterArgs(filepath.Base(tool), inPath, outPath, c.quality())...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Converted{}, fmt.Errorf("%w: %s: %w: %s", ErrDecode, filepath.Base(tool), err, strings.TrimSpace(stderr.String()))
	}

	jpeg, err := os.ReadFile(outPath)
	if err != nil {
		return Converted{}, fmt.Errorf("%w: converter produced no output: %w", ErrDecode, err)
	}
	if len(jpeg) == 0 {
		return Converted{}, fmt.Errorf("%w: converter produced an empty file", ErrDecode)
	}

	return Converted{JPEG: jpeg, Exif: extractExif(ctx, inPath)}, nil
}

func (c *HEIFConverter) quality() int {
	if c.Quality <= 0 || c.Quality > 100 {
		return 92
	}
	return c.Quality
}

func converterArgs(tool, in, out string, quality int) []string {
	q := fmt.Sprint(quality)
	switch strings.TrimSuffix(tool, ".exe") {
	case "heif-convert":
		return []string{"-q", q, in, out}
	case "magick":
		return []string{in, "-quality", q, out}
	case "sips":
		return []string{"-s", "format", "jpeg", "-s", "formatOptions", q, in, "--out", out}
	case "ffmpeg":
		// ffmpeg qscale runs 2 (best) to 31.
		return []string{"-loglevel", "error", "-y", "-i", in, "-frames:v", "1", "-q:v", fmt.Sprint(2 + (100-quality)*29/100), out}
	default:
		return []string{in, out}
	}
}

// extractExif returns the raw EXIF block of path via exiftool, or nil when
// exiftool is missing or the file carries no EXIF.
func extractExif(ctx context.Context, path string) []byte {
	tool, err := lookPath("exiftool")
	if err != nil {
		return nil
	}
	out, err := exec.CommandContext(ctx, tool, "-b", "-Exif", path).Output()
	if err != nil || len(out) == 0 {
		return nil
	}
	return out
}
