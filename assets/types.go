// Package assets implements the Asset Planner (spec §4.2): it expands
// globs, rewrites target-relative paths for cross-compilation, resolves
// symlinks per policy, assigns destination paths and modes, and produces
// the ordered AssetList the Archive Writer later walks.
//
// Grounded on the teacher's data/control staging in deb/archive.go, which
// this package feeds.
package assets

import "os"

// RawAssetSpec is one undeclared (pre-glob, pre-rewrite) asset entry from
// the resolved manifest: a source glob pattern, a destination, and an
// octal mode string (spec §4.2).
type RawAssetSpec struct {
	SourcePattern string
	Destination   string
	Mode          string
	// Origin records who contributed this entry ("user", "auto",
	// "systemd") so the planner can tag the resulting Asset the same way.
	Origin string
	// IsConffile marks an entry that should also be listed in conffiles
	// once it has an InstalledPath.
	IsConffile bool
}

// Origin identifies what produced an Asset.
type Origin string

const (
	OriginUser    Origin = "user"
	OriginAuto    Origin = "auto"
	OriginSystemd Origin = "systemd"
)

// Asset is one installable file or directory (spec §3).
type Asset struct {
	SourcePath    string // absolute, post-glob; empty for synthesized directories
	InstalledPath string // absolute, under "/"
	Mode          os.FileMode
	IsBuilt       bool // true if SourcePath lives under the build output dir
	IsDir         bool
	IsSymlink     bool
	SymlinkTarget string // verbatim link target, when IsSymlink
	Origin        Origin
	IsConffile    bool
	Size          int64 // populated once staged (spec §4.3 installed-size accounting)

	// Content, when non-nil, is used verbatim as the file body instead of
	// reading SourcePath — for control-generator-synthesized data-archive
	// entries (copyright, gzipped changelog) that have no on-disk source.
	Content []byte
}

// AssetList is an ordered sequence of Asset sorted by InstalledPath,
// stable — the order the Archive Writer uses to emit tar entries (spec
// §3, §8 "Ordering").
type AssetList []Asset

func (l AssetList) Len() int      { return len(l) }
func (l AssetList) Swap(i, j int) { l[i], l[j] = l[j], l[i] }
func (l AssetList) Less(i, j int) bool {
	return l[i].InstalledPath < l[j].InstalledPath
}
