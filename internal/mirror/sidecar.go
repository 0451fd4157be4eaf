package mirror

// SidecarIndex holds the stems of the HEIC stills of a single source
// directory. A .mov with one of these stems is a live-photo companion.
type SidecarIndex map[string]struct{}

// NewSidecarIndex scans the file names of one directory.
func NewSidecarIndex(p Policy, names []string) SidecarIndex {
	idx := make(SidecarIndex)
	for _, n := range names {
		if p.Classify(n) == ConvertibleStill {
			idx[Stem(n)] = struct{}{}
		}
	}
	return idx
}

// Suppresses reports whether name is a redundant sidecar video.
func (s SidecarIndex) Suppresses(p Policy, name string) bool {
	if p.Classify(name) != MaybeRedundantVideo {
		return false
	}
	_, ok := s[Stem(name)]
	return ok
}
