// Package depends implements the Dependency Detector (spec §4.4): it
// inspects dynamically-linked ELF binaries for NEEDED entries, resolves
// the owning Debian package for each shared object via the host's dpkg
// database, and expands the "$auto" sentinel in Depends.
//
// Grounded on arc-language/upkg's pkg/dpkg package, which reads the same
// dpkg status-file stanza format this package's host-introspection
// fallback consults.
package depends

import (
	"bufio"
	"debug/elf"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/cratedeb/cratedeb/assets"
	"github.com/cratedeb/cratedeb/cderrors"
	"github.com/cratedeb/cratedeb/config"
	"github.com/cratedeb/cratedeb/strip"
)

const autoSentinel = "$auto"

// dpkgStatusPath is the standard location of the dpkg package database
// on a Debian/Ubuntu host.
var dpkgStatusPath = "/var/lib/dpkg/status"

// Resolve expands the "$auto" sentinel (or an empty Depends list) in
// cfg.Depends by inspecting every ELF asset under a system bin/lib
// directory (spec §4.4). Non-fatal: when the host cannot introspect
// (missing dpkg database, missing tools), it degrades to the
// user-supplied entries and returns a Warning instead of failing.
func Resolve(cfg *config.PackageConfig, list assets.AssetList) ([]cderrors.Warning, error) {
	auto, userEntries := splitAuto(cfg.Depends)
	if !auto {
		return nil, nil
	}

	var warnings []cderrors.Warning

	sonameOwners, err := loadSonameOwners()
	if err != nil {
		warnings = append(warnings, cderrors.Warning{Msg: fmt.Sprintf("dependency auto-detection unavailable: %v", err)})
		cfg.Depends = userEntries
		return warnings, nil
	}

	needed := make(map[string]bool)
	for _, a := range list {
		if a.IsDir || a.IsSymlink || a.SourcePath == "" {
			continue
		}
		if !strip.IsSystemBinDir(a.InstalledPath) || !strip.IsELF(a.SourcePath) {
			continue
		}
		libs, err := dynamicNeeded(a.SourcePath)
		if err != nil {
			warnings = append(warnings, cderrors.Warning{Msg: fmt.Sprintf("reading NEEDED entries of %s: %v", a.SourcePath, err)})
			continue
		}
		for _, lib := range libs {
			needed[lib] = true
		}
	}

	generated := aggregateRelations(needed, sonameOwners)

	cfg.Depends = config.DedupRelations(userEntries, generated)
	return warnings, nil
}

// splitAuto reports whether list contains the "$auto" sentinel (or is
// empty, which is treated the same per spec §4.4), returning the
// non-sentinel entries in their original order.
func splitAuto(list []string) (bool, []string) {
	if len(list) == 0 {
		return true, nil
	}
	var rest []string
	found := false
	for _, v := range list {
		if v == autoSentinel {
			found = true
			continue
		}
		rest = append(rest, v)
	}
	return found, rest
}

// dynamicNeeded enumerates the DT_NEEDED soname entries of an ELF binary.
func dynamicNeeded(path string) ([]string, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.DynString(elf.DT_NEEDED)
}

// sonameOwner records which installed package provides a given soname,
// and the minimum version to depend on (its installed version).
type sonameOwner struct {
	Package string
	Version string
}

// loadSonameOwners builds a soname -> owning-package index: the installed
// packages and versions come from the host's dpkg status file, and each
// package's shared objects from `dpkg -L` (see sonamesOwnedBy). Returns an
// error when the status file cannot be read (non-Debian host), which the
// caller treats as "cannot introspect" rather than fatal.
func loadSonameOwners() (map[string]sonameOwner, error) {
	if _, err := os.Stat(dpkgStatusPath); err != nil {
		if _, lookErr := exec.LookPath("dpkg-query"); lookErr != nil {
			return nil, fmt.Errorf("no dpkg database on this host")
		}
	}

	packages, err := parseDpkgStatus(dpkgStatusPath)
	if err != nil {
		return nil, err
	}

	owners := make(map[string]sonameOwner)
	for _, pkg := range packages {
		for _, soname := range sonamesOwnedBy(pkg.Name) {
			owners[soname] = sonameOwner{Package: pkg.Name, Version: pkg.Version}
		}
	}
	return owners, nil
}

type dpkgPackage struct {
	Name    string
	Version string
}

// parseDpkgStatus parses the RFC822-stanza dpkg status file, extracting
// just Package/Version per installed package (spec §4.4 step 3).
func parseDpkgStatus(path string) ([]dpkgPackage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pkgs []dpkgPackage
	var cur dpkgPackage

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if cur.Name != "" {
				pkgs = append(pkgs, cur)
			}
			cur = dpkgPackage{}
		case strings.HasPrefix(line, "Package: "):
			cur.Name = strings.TrimPrefix(line, "Package: ")
		case strings.HasPrefix(line, "Version: "):
			cur.Version = strings.TrimPrefix(line, "Version: ")
		}
	}
	if cur.Name != "" {
		pkgs = append(pkgs, cur)
	}
	return pkgs, scanner.Err()
}

// sonamesOwnedBy lists the shared-object sonames a package's shlibs/dpkg
// file database advertises, via `dpkg -L` filtered to *.so* entries.
// Best-effort: an exec failure just yields no sonames for that package.
func sonamesOwnedBy(pkgName string) []string {
	out, err := exec.Command("dpkg", "-L", pkgName).Output()
	if err != nil {
		return nil
	}
	var sonames []string
	for _, line := range strings.Split(string(out), "\n") {
		if strings.Contains(line, ".so") {
			sonames = append(sonames, baseName(line))
		}
	}
	return sonames
}

func baseName(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

// aggregateRelations builds the sorted `pkg (>= version)` relation list
// for every NEEDED soname with a known owner, deduplicating by package
// and keeping the highest version (spec §4.4 step 4).
func aggregateRelations(needed map[string]bool, owners map[string]sonameOwner) []string {
	best := make(map[string]string)
	for soname := range needed {
		owner, ok := owners[soname]
		if !ok {
			continue
		}
		if cur, exists := best[owner.Package]; !exists || versionLess(cur, owner.Version) {
			best[owner.Package] = owner.Version
		}
	}

	var pkgs []string
	for pkg := range best {
		pkgs = append(pkgs, pkg)
	}
	sort.Strings(pkgs)

	var out []string
	for _, pkg := range pkgs {
		out = append(out, fmt.Sprintf("%s (>= %s)", pkg, best[pkg]))
	}
	return out
}

// versionLess is a pragmatic (not fully Debian-policy-compliant) version
// comparison sufficient for picking the higher of two installed versions
// of the same package observed locally. Components that are both plain
// integers compare numerically ("9" < "10"); others compare as strings.
func versionLess(a, b string) bool {
	as := strings.FieldsFunc(a, isVersionSep)
	bs := strings.FieldsFunc(b, isVersionSep)
	for i := 0; i < len(as) || i < len(bs); i++ {
		var av, bv string
		if i < len(as) {
			av = as[i]
		}
		if i < len(bs) {
			bv = bs[i]
		}
		if av != bv {
			an, aerr := strconv.Atoi(av)
			bn, berr := strconv.Atoi(bv)
			if aerr == nil && berr == nil {
				return an < bn
			}
			return av < bv
		}
	}
	return false
}

func isVersionSep(r rune) bool {
	return r == '.' || r == '-' || r == ':' || r == '~'
}
