// Package config implements the Manifest Resolver (spec §4.1): it merges
// the upstream project manifest, an optional user metadata table, a
// selected variant, and CLI overrides into a fully validated PackageConfig.
//
// Per spec §1 and §6, discovery and parsing of the upstream manifest file
// itself is out of scope — this package consumes it as an already-parsed
// Go value (UpstreamManifest). See SPEC_FULL.md "Manifest input boundary".
package config

import (
	"time"

	"github.com/cratedeb/cratedeb/assets"
)

// Priority is one of the Debian package priority levels (spec §3).
type Priority string

const (
	PriorityRequired  Priority = "required"
	PriorityImportant Priority = "important"
	PriorityStandard  Priority = "standard"
	PriorityOptional  Priority = "optional"
	PriorityExtra     Priority = "extra"
)

// validPriorities is the permitted set for Priority, checked by Resolve.
var validPriorities = map[Priority]bool{
	PriorityRequired:  true,
	PriorityImportant: true,
	PriorityStandard:  true,
	PriorityOptional:  true,
	PriorityExtra:     true,
}

// SystemdUnits describes the optional systemd add-on contract (spec §1,
// §4.5): a record of unit files to install and whether they should be
// enabled/started by the generated maintainer scripts. The add-on itself
// lives in package systemd; this struct is just the configuration surface
// threaded through the manifest resolver.
type SystemdUnits struct {
	// UnitFiles maps a source unit file path (relative to ManifestDir) to
	// the unit name it installs as (e.g. "myd.service").
	UnitFiles map[string]string
	Enable    bool
	Start     bool
	Restart   bool
}

// DebMetadata is the shape of both the base `[package.metadata.deb]` table
// and each `[package.metadata.deb.variants.<name>]` subtable (spec §4.1).
// Every field is a pointer/zero-value-means-unset so the cascading merge in
// resolve.go can tell "not set at this layer" apart from "set to the zero
// value".
type DebMetadata struct {
	Name                 string
	Maintainer           string
	Copyright            string
	License              string
	LicenseFile          string
	LicenseFileSkipLines int
	Homepage             string
	Section              string
	Priority             string
	Description          string
	ExtendedDescription     string
	ExtendedDescriptionFile string

	Depends     []string
	PreDepends  []string
	Recommends  []string
	Suggests    []string
	Enhances    []string
	Conflicts   []string
	Breaks      []string
	Replaces    []string
	Provides    []string

	Assets                []assets.RawAssetSpec
	MaintainerScriptsDir  string
	ConfFiles             []string
	TriggersFile          string
	Changelog             string
	SystemdUnits          *SystemdUnits

	Features           []string
	DefaultFeatures    *bool
	SeparateDebugSymbols *bool
	PreserveSymlinks     *bool
	Fast                 *bool
	StripPath            string
	ObjcopyPath          string

	// Variants holds nested `[package.metadata.deb.variants.*]` subtables.
	// Only meaningful on the base (non-variant) DebMetadata.
	Variants map[string]DebMetadata
}

// UpstreamManifest is the parsed record a manifest parser (out of scope
// here, per spec §1) is assumed to hand us. Field names mirror spec §6.
type UpstreamManifest struct {
	Name        string
	Version     string
	License     string
	LicenseFile string
	Description string
	Readme      string
	Homepage    string
	Repository  string
	Authors     []string
	// Binaries lists the names of binary targets the upstream build
	// produces; used to synthesize default assets (spec §4.1).
	Binaries []string

	Metadata DebMetadata
}

// CLIOverrides is the subset of spec §6's CLI flags the Manifest Resolver
// consumes directly (highest-precedence layer). Flag parsing itself is out
// of scope (spec §1); cmd/cratedeb is responsible for populating this.
type CLIOverrides struct {
	DebVersion            string
	NoStrip               bool
	SeparateDebugSymbols  bool
	Fast                  bool
	Target                string
	Variant               string
	ManifestPath          string
	ManifestDir           string
	TargetDir             string // compiler's target-directory override, if set
	Output                string
	Install               bool
	NoBuild               bool
}

// DependencyRelation is a parsed Debian relation clause (spec §3), e.g.
// "libc6 (>= 2.28)". ArchQualifier covers the rare "pkg:any" / "pkg:arch"
// suffix form.
type DependencyRelation struct {
	Package          string
	VersionOp        string // "", "=", ">=", "<=", ">>", "<<"
	Version          string
	ArchQualifier    string
}

// PackageConfig is the fully resolved description of one package (spec
// §3). It is created by Resolve (which also synthesizes the default raw
// assets when none are configured), augmented in place by the Dependency
// Detector (depends package), then frozen before control/archive
// generation.
type PackageConfig struct {
	// Identity
	Name         string
	Version      string
	Revision     string
	Architecture string
	Variant      string

	// Descriptive
	Maintainer             string
	Copyright              string
	License                string
	LicenseFile            string
	LicenseFileSkipLines   int
	Homepage               string
	Section                string
	Priority               Priority
	Description            string
	ExtendedDescription    string

	// Relations — each a list of Debian relation strings; Depends may
	// contain the literal sentinel "$auto".
	Depends    []string
	PreDepends []string
	Recommends []string
	Suggests   []string
	Enhances   []string
	Conflicts  []string
	Breaks     []string
	Replaces   []string
	Provides   []string

	// Files
	RawAssets            []assets.RawAssetSpec
	Assets               assets.AssetList
	MaintainerScriptsDir string
	ConfFiles            []string
	TriggersFile         string
	Changelog            string
	SystemdUnits         *SystemdUnits

	// Build knobs
	Features             []string
	DefaultFeatures      bool
	SeparateDebugSymbols bool
	PreserveSymlinks     bool
	Fast                 bool
	StripPath            string
	ObjcopyPath          string
	TargetDir            string
	ManifestDir          string
	Target               string // empty means native/host build

	// InstalledSize is filled in by the Archive Writer (deb.Builder) while
	// it writes the data archive, before the control file is generated,
	// so the Control Generator can read it without a second pass over the
	// filesystem.
	InstalledSize int64

	// BuildTime is used only for the year in the default copyright
	// string; it has no bearing on archive member mtimes, which are
	// always zero per spec §4.7/§6 for reproducibility.
	BuildTime time.Time
}

// UseXZ reports whether the data archive should be compressed with xz
// instead of gzip — gated on an "lzma" (or "xz") feature flag, mirroring
// original_source/compress.rs (spec §4.6, SPEC_FULL.md).
func (c *PackageConfig) UseXZ() bool {
	for _, f := range c.Features {
		if f == "lzma" || f == "xz" {
			return true
		}
	}
	return false
}

// OutputFilename returns the canonical name of the produced .deb, per spec
// §8 scenario 1: "<name>_<version>[-<revision>]_<arch>.deb".
func (c *PackageConfig) OutputFilename() string {
	v := c.Version
	if c.Revision != "" {
		v = v + "-" + c.Revision
	}
	return c.Name + "_" + v + "_" + c.Architecture + ".deb"
}
