package mirror

import (
	"path/filepath"
	"strings"
)

// Kind decides what happens to a source file.
type Kind int

const (
	// Ignored files are skipped silently.
	Ignored Kind = iota
	// ConvertibleStill files are transcoded to JPEG.
	ConvertibleStill
	// CopyableStill files are copied verbatim.
	CopyableStill
	// CopyableVideo files are copied verbatim.
	CopyableVideo
	// MaybeRedundantVideo files are copied unless a HEIC with the same stem
	// lives in the same directory.
	MaybeRedundantVideo
)

func (k Kind) String() string {
	switch k {
	case ConvertibleStill:
		return "convertible-still"
	case CopyableStill:
		return "copyable-still"
	case CopyableVideo:
		return "copyable-video"
	case MaybeRedundantVideo:
		return "maybe-redundant-video"
	default:
		return "ignored"
	}
}

// Policy maps lower-cased extensions to kinds and lists which written
// extensions get keyword names.
type Policy struct {
	Kinds     map[string]Kind
	Renamable map[string]bool
}

// DefaultRenamable is the set of still extensions renamed after copy.
var DefaultRenamable = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff"}

// DefaultPolicy returns the stock extension table.
func DefaultPolicy() Policy {
	return Policy{
		Kinds: map[string]Kind{
			".heic": ConvertibleStill,
			".heif": ConvertibleStill,
			".jpg":  CopyableStill,
			".jpeg": CopyableStill,
			".png":  CopyableStill,
			".gif":  CopyableStill,
			".bmp":  CopyableStill,
			".tif":  CopyableStill,
			".tiff": CopyableStill,
			".mp4":  CopyableVideo,
			".mov":  MaybeRedundantVideo,
		},
		Renamable: extSet(DefaultRenamable),
	}
}

// WithRenamable returns a copy of p whose renamable set is exts.
// Extensions are normalised to lower case with a leading dot.
func (p Policy) WithRenamable(exts []string) Policy {
	p.Renamable = extSet(exts)
	return p
}

// Classify returns the kind for a file name.
func (p Policy) Classify(name string) Kind {
	return p.Kinds[Ext(name)]
}

// IsRenamable reports whether a written file gets a keyword name.
func (p Policy) IsRenamable(name string) bool {
	return p.Renamable[Ext(name)]
}

// Ext returns the lower-cased extension of name, including the dot.
func Ext(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// Stem returns name without its extension.
func Stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func extSet(exts []string) map[string]bool {
	set := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = true
	}
	return set
}
