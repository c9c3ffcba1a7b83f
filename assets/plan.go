package assets

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gobwas/glob"

	"github.com/cratedeb/cratedeb/cderrors"
)

// PlanOptions carries the build knobs that affect path rewriting and
// symlink handling (spec §4.2 step 1 and step 4).
type PlanOptions struct {
	// ManifestDir is the directory glob patterns are resolved relative to.
	ManifestDir string
	// Target is the selected target triple; empty means a native build.
	Target string
	// CustomTargetDir overrides the "target/" prefix entirely, when the
	// compiler's target-directory environment variable is set.
	CustomTargetDir string
	// PreserveSymlinks selects the symlink policy of spec §4.2 step 4.
	PreserveSymlinks bool
}

// Warning is a non-fatal message from the planner (spec §7's Warning
// kind): a duplicate destination that got silently dropped, for example.
type Warning struct {
	Msg string
}

func (w Warning) String() string { return w.Msg }

// Plan expands every raw asset spec into staged Asset entries, then
// appends the synthetic directory entries the archive format requires
// (spec §4.2), returning the final sorted AssetList.
func Plan(raws []RawAssetSpec, opts PlanOptions) (AssetList, []Warning, error) {
	var out AssetList
	var warnings []Warning

	for _, raw := range raws {
		pattern, isBuilt := rewriteSourcePrefix(raw.SourcePattern, opts)

		matches, err := expandGlob(opts.ManifestDir, pattern)
		if err != nil {
			return nil, nil, err
		}

		mode, err := parseMode(raw.Mode)
		if err != nil {
			return nil, nil, err
		}

		destIsDir := strings.HasSuffix(raw.Destination, "/")

		for _, srcAbs := range matches {
			installedPath := raw.Destination
			if destIsDir {
				installedPath = strings.TrimSuffix(raw.Destination, "/") + "/" + filepath.Base(srcAbs)
			}
			installedPath = cleanInstalledPath(installedPath)

			asset := Asset{
				SourcePath:    srcAbs,
				InstalledPath: installedPath,
				Mode:          mode,
				IsBuilt:       isBuilt,
				Origin:        Origin(originOrDefault(raw.Origin)),
				IsConffile:    raw.IsConffile,
			}

			if err := applySymlinkPolicy(&asset, opts.PreserveSymlinks); err != nil {
				return nil, nil, err
			}

			if fi, err := os.Lstat(asset.SourcePath); err == nil && !fi.IsDir() {
				asset.Size = fi.Size()
			}

			out = append(out, asset)
		}
	}

	out, dupWarnings := dedupByInstalledPath(out)
	warnings = append(warnings, dupWarnings...)

	sort.Stable(out)

	out = WithDirectories(out)
	sort.Stable(out)

	return out, warnings, nil
}

// rewriteSourcePrefix applies spec §4.2 step 1: cross-compile path
// rewriting and custom target-directory overrides. It reports whether the
// (possibly rewritten) pattern still lives under the build output tree.
func rewriteSourcePrefix(pattern string, opts PlanOptions) (string, bool) {
	isBuilt := strings.HasPrefix(pattern, "target/") || strings.HasPrefix(pattern, "target\\")
	if !isBuilt {
		return pattern, false
	}

	if opts.CustomTargetDir != "" {
		rest := strings.TrimPrefix(pattern, "target/")
		dir := strings.TrimSuffix(opts.CustomTargetDir, "/")
		return dir + "/" + rest, true
	}

	if opts.Target != "" {
		for _, profile := range []string{"release", "debug"} {
			prefix := "target/" + profile + "/"
			if strings.HasPrefix(pattern, prefix) {
				rest := strings.TrimPrefix(pattern, prefix)
				return "target/" + opts.Target + "/" + profile + "/" + rest, true
			}
		}
	}

	return pattern, true
}

// globMeta is the set of characters that mark a pattern as containing
// glob metacharacters, per spec §4.2 step 2.
const globMeta = "*?[{"

func hasGlobMeta(s string) bool {
	return strings.ContainsAny(s, globMeta)
}

// expandGlob resolves pattern (relative to manifestDir unless absolute)
// into a sorted list of absolute file paths. A non-glob pattern that
// doesn't exist, or a glob with zero matches, is a fatal ConfigError
// (spec §4.2 step 2).
func expandGlob(manifestDir, pattern string) ([]string, error) {
	full := pattern
	if !filepath.IsAbs(full) {
		full = filepath.Join(manifestDir, pattern)
	}

	if !hasGlobMeta(pattern) {
		if _, err := os.Stat(full); err != nil {
			return nil, &cderrors.ConfigError{Field: "assets", Msg: fmt.Sprintf("source %q does not exist", full)}
		}
		return []string{full}, nil
	}

	rel, err := filepath.Rel(manifestDir, full)
	if err != nil {
		rel = full
	}
	rel = filepath.ToSlash(rel)

	compiled, err := glob.Compile(rel, '/')
	if err != nil {
		return nil, &cderrors.ConfigError{Field: "assets", Msg: fmt.Sprintf("invalid glob %q: %v", pattern, err)}
	}

	walkRoot := filepath.Join(manifestDir, staticPrefix(rel))

	var matches []string
	err = filepath.WalkDir(walkRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		relPath, err := filepath.Rel(manifestDir, path)
		if err != nil {
			return nil
		}
		relPath = filepath.ToSlash(relPath)
		if compiled.Match(relPath) {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return nil, &cderrors.IoError{Path: walkRoot, Err: err}
	}

	if len(matches) == 0 {
		return nil, &cderrors.ConfigError{Field: "assets", Msg: fmt.Sprintf("glob %q matched no files", pattern)}
	}

	sort.Strings(matches)
	return matches, nil
}

// staticPrefix returns the leading path segments of a slash-separated
// glob pattern that contain no metacharacters, so expandGlob only has to
// walk the subtree that could possibly match.
func staticPrefix(relPattern string) string {
	segments := strings.Split(relPattern, "/")
	var prefix []string
	for _, seg := range segments {
		if hasGlobMeta(seg) {
			break
		}
		prefix = append(prefix, seg)
	}
	return strings.Join(prefix, "/")
}

func parseMode(s string) (os.FileMode, error) {
	if s == "" {
		s = "644"
	}
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, &cderrors.ConfigError{Field: "mode", Msg: fmt.Sprintf("invalid mode %q: %v", s, err)}
	}
	return os.FileMode(v), nil
}

func cleanInstalledPath(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return filepath.ToSlash(filepath.Clean(p))
}

func originOrDefault(o string) string {
	if o == "" {
		return string(OriginUser)
	}
	return o
}

// applySymlinkPolicy implements spec §4.2 step 4: preserve the symlink
// verbatim, or dereference one level and stage the target.
func applySymlinkPolicy(a *Asset, preserve bool) error {
	fi, err := os.Lstat(a.SourcePath)
	if err != nil {
		return &cderrors.IoError{Path: a.SourcePath, Err: err}
	}
	if fi.Mode()&os.ModeSymlink == 0 {
		return nil
	}

	target, err := os.Readlink(a.SourcePath)
	if err != nil {
		return &cderrors.IoError{Path: a.SourcePath, Err: err}
	}

	if preserve {
		a.IsSymlink = true
		a.SymlinkTarget = target
		return nil
	}

	// Dereference once: the effective source becomes the link's target.
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(a.SourcePath), target)
	}
	a.SourcePath = target
	return nil
}

// dedupByInstalledPath keeps the later entry when two assets resolve to
// the same installed path, dropping the earlier one with a warning (spec
// §4.2).
func dedupByInstalledPath(list AssetList) (AssetList, []Warning) {
	lastIndex := make(map[string]int, len(list))
	for i, a := range list {
		lastIndex[a.InstalledPath] = i
	}

	var warnings []Warning
	out := make(AssetList, 0, len(lastIndex))
	seen := make(map[string]bool, len(lastIndex))
	for i, a := range list {
		if lastIndex[a.InstalledPath] != i {
			warnings = append(warnings, Warning{Msg: fmt.Sprintf("duplicate asset destination %s: earlier entry from %s dropped", a.InstalledPath, a.SourcePath)})
			continue
		}
		if seen[a.InstalledPath] {
			continue
		}
		seen[a.InstalledPath] = true
		out = append(out, a)
	}
	return out, warnings
}

// WithDirectories appends one synthetic directory Asset for every unique
// ancestor directory (other than "/") implied by the installed paths
// already in list, mode 0755 (spec §3, §4.2). Idempotent: directories
// already present in list (Asset.IsDir) are not duplicated, so it is
// safe to call again after more assets have been appended — the
// archive writer does this as its last step before writing the data
// tar, once the control generator, strip and systemd add-ons have all
// had a chance to contribute their own assets.
func WithDirectories(list AssetList) AssetList {
	have := make(map[string]bool)
	for _, a := range list {
		if a.IsDir {
			have[a.InstalledPath] = true
		}
	}

	var dirs []string
	for _, a := range list {
		d := filepath.ToSlash(filepath.Dir(a.InstalledPath))
		for d != "/" && d != "." && d != "" {
			if !have[d] {
				have[d] = true
				dirs = append(dirs, d)
			}
			d = filepath.ToSlash(filepath.Dir(d))
		}
	}

	for _, d := range dirs {
		list = append(list, Asset{
			InstalledPath: d,
			Mode:          0755,
			IsDir:         true,
			Origin:        OriginAuto,
		})
	}
	return list
}
