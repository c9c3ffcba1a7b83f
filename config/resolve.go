package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/cratedeb/cratedeb/assets"
	"github.com/cratedeb/cratedeb/cderrors"
)

// tripleArch maps a subset of target triples to Debian architecture
// names (spec §4.7). Extensible; unknown triples are fatal unless the
// caller already knows the answer.
var tripleArch = []struct {
	re   *regexp.Regexp
	arch string
}{
	{regexp.MustCompile(`^x86_64-.*-linux-gnu$`), "amd64"},
	{regexp.MustCompile(`^i686-.*-linux-gnu$`), "i386"},
	{regexp.MustCompile(`^aarch64-.*-linux-gnu$`), "arm64"},
	{regexp.MustCompile(`^armv7-.*-linux-gnueabihf$`), "armhf"},
	{regexp.MustCompile(`^arm-.*-linux-gnueabi$`), "armel"},
}

// ArchitectureForTriple resolves a target triple to a Debian architecture
// name, per spec §4.7.
func ArchitectureForTriple(triple string) (string, error) {
	for _, m := range tripleArch {
		if m.re.MatchString(triple) {
			return m.arch, nil
		}
	}
	return "", &cderrors.ConfigError{Field: "target", Msg: fmt.Sprintf("unrecognized target triple %q", triple)}
}

// nativeArchitecture resolves the Debian architecture of the build host
// when no --target was given.
func nativeArchitecture() (string, error) {
	switch runtime.GOARCH {
	case "amd64":
		return "amd64", nil
	case "386":
		return "i386", nil
	case "arm64":
		return "arm64", nil
	case "arm":
		return "armhf", nil
	default:
		return "", &cderrors.ConfigError{Field: "target", Msg: fmt.Sprintf("no known Debian architecture for host arch %q; pass --target", runtime.GOARCH)}
	}
}

// mergeDebMetadata overlays non-zero fields of overlay onto base,
// last-write-wins for scalars, replace-not-concat for lists (spec §9's
// "concat-or-replace explicitly decided per list field" — generic
// metadata lists replace; only the depends auto/user merge in the
// dependency detector concatenates).
func mergeDebMetadata(base, overlay DebMetadata) DebMetadata {
	out := base

	if overlay.Name != "" {
		out.Name = overlay.Name
	}
	if overlay.Maintainer != "" {
		out.Maintainer = overlay.Maintainer
	}
	if overlay.Copyright != "" {
		out.Copyright = overlay.Copyright
	}
	if overlay.License != "" {
		out.License = overlay.License
	}
	if overlay.LicenseFile != "" {
		out.LicenseFile = overlay.LicenseFile
		out.LicenseFileSkipLines = overlay.LicenseFileSkipLines
	}
	if overlay.Homepage != "" {
		out.Homepage = overlay.Homepage
	}
	if overlay.Section != "" {
		out.Section = overlay.Section
	}
	if overlay.Priority != "" {
		out.Priority = overlay.Priority
	}
	if overlay.Description != "" {
		out.Description = overlay.Description
	}
	if overlay.ExtendedDescription != "" {
		out.ExtendedDescription = overlay.ExtendedDescription
	}
	if overlay.ExtendedDescriptionFile != "" {
		out.ExtendedDescriptionFile = overlay.ExtendedDescriptionFile
	}

	if len(overlay.Depends) > 0 {
		out.Depends = overlay.Depends
	}
	if len(overlay.PreDepends) > 0 {
		out.PreDepends = overlay.PreDepends
	}
	if len(overlay.Recommends) > 0 {
		out.Recommends = overlay.Recommends
	}
	if len(overlay.Suggests) > 0 {
		out.Suggests = overlay.Suggests
	}
	if len(overlay.Enhances) > 0 {
		out.Enhances = overlay.Enhances
	}
	if len(overlay.Conflicts) > 0 {
		out.Conflicts = overlay.Conflicts
	}
	if len(overlay.Breaks) > 0 {
		out.Breaks = overlay.Breaks
	}
	if len(overlay.Replaces) > 0 {
		out.Replaces = overlay.Replaces
	}
	if len(overlay.Provides) > 0 {
		out.Provides = overlay.Provides
	}

	if len(overlay.Assets) > 0 {
		out.Assets = overlay.Assets
	}
	if overlay.MaintainerScriptsDir != "" {
		out.MaintainerScriptsDir = overlay.MaintainerScriptsDir
	}
	if len(overlay.ConfFiles) > 0 {
		out.ConfFiles = overlay.ConfFiles
	}
	if overlay.TriggersFile != "" {
		out.TriggersFile = overlay.TriggersFile
	}
	if overlay.Changelog != "" {
		out.Changelog = overlay.Changelog
	}
	if overlay.SystemdUnits != nil {
		out.SystemdUnits = overlay.SystemdUnits
	}

	if len(overlay.Features) > 0 {
		out.Features = overlay.Features
	}
	if overlay.DefaultFeatures != nil {
		out.DefaultFeatures = overlay.DefaultFeatures
	}
	if overlay.SeparateDebugSymbols != nil {
		out.SeparateDebugSymbols = overlay.SeparateDebugSymbols
	}
	if overlay.PreserveSymlinks != nil {
		out.PreserveSymlinks = overlay.PreserveSymlinks
	}
	if overlay.Fast != nil {
		out.Fast = overlay.Fast
	}
	if overlay.StripPath != "" {
		out.StripPath = overlay.StripPath
	}
	if overlay.ObjcopyPath != "" {
		out.ObjcopyPath = overlay.ObjcopyPath
	}

	return out
}

// Resolve merges the upstream manifest, the user metadata table, the
// selected variant, and CLI overrides into a validated PackageConfig
// (spec §4.1). manifestDir is used to read extended_description_file /
// readme contents and to check license_file existence.
func Resolve(manifest UpstreamManifest, cli CLIOverrides) (*PackageConfig, []cderrors.Warning, error) {
	var warnings []cderrors.Warning

	manifestDir := cli.ManifestDir
	if manifestDir == "" {
		manifestDir = "."
	}

	effective := manifest.Metadata
	variantActive := cli.Variant != ""
	if variantActive {
		variantMeta, ok := manifest.Metadata.Variants[cli.Variant]
		if !ok {
			return nil, nil, &cderrors.ConfigError{Field: "variant", Msg: fmt.Sprintf("unknown variant %q", cli.Variant)}
		}
		effective = mergeDebMetadata(effective, variantMeta)
	}

	cfg := &PackageConfig{
		Variant:     cli.Variant,
		ManifestDir: manifestDir,
		Target:      cli.Target,
		TargetDir:   cli.TargetDir,
		BuildTime:   time.Now(),
	}

	// name
	if effective.Name != "" {
		cfg.Name = effective.Name
	} else {
		cfg.Name = manifest.Name
		if variantActive {
			cfg.Name = cfg.Name + "-" + cli.Variant
		}
	}

	// maintainer
	if effective.Maintainer != "" {
		cfg.Maintainer = effective.Maintainer
	} else if len(manifest.Authors) > 0 {
		cfg.Maintainer = manifest.Authors[0]
	}

	// copyright
	if effective.Copyright != "" {
		cfg.Copyright = effective.Copyright
	} else {
		cfg.Copyright = fmt.Sprintf("%d %s", cfg.BuildTime.Year(), strings.Join(manifest.Authors, ", "))
	}

	cfg.License = effective.License
	if cfg.License == "" {
		cfg.License = manifest.License
	}

	// license_file
	cfg.LicenseFile = effective.LicenseFile
	cfg.LicenseFileSkipLines = effective.LicenseFileSkipLines
	if cfg.LicenseFile == "" {
		cfg.LicenseFile = manifest.LicenseFile
	}
	if cfg.LicenseFile != "" {
		p := cfg.LicenseFile
		if !filepath.IsAbs(p) {
			p = filepath.Join(manifestDir, p)
		}
		if _, err := os.Stat(p); err != nil {
			return nil, nil, &cderrors.ConfigError{Field: "license_file", Msg: fmt.Sprintf("%q does not exist", cfg.LicenseFile)}
		}
	}

	// description (required)
	cfg.Description = effective.Description
	if cfg.Description == "" {
		cfg.Description = manifest.Description
	}
	if cfg.Description == "" {
		return nil, nil, &cderrors.ConfigError{Field: "description", Msg: "no description in manifest or metadata"}
	}

	// extended_description
	switch {
	case effective.ExtendedDescription != "":
		cfg.ExtendedDescription = effective.ExtendedDescription
	case effective.ExtendedDescriptionFile != "":
		b, err := os.ReadFile(filepath.Join(manifestDir, effective.ExtendedDescriptionFile))
		if err != nil {
			return nil, nil, &cderrors.IoError{Path: effective.ExtendedDescriptionFile, Err: err}
		}
		cfg.ExtendedDescription = string(b)
	case manifest.Readme != "":
		if b, err := os.ReadFile(filepath.Join(manifestDir, manifest.Readme)); err == nil {
			cfg.ExtendedDescription = string(b)
		} else {
			warnings = append(warnings, cderrors.Warning{Msg: "extended description is empty: readme unreadable"})
		}
	default:
		warnings = append(warnings, cderrors.Warning{Msg: "extended description is empty"})
	}

	cfg.Homepage = effective.Homepage
	if cfg.Homepage == "" {
		cfg.Homepage = manifest.Homepage
	}
	cfg.Section = effective.Section
	cfg.Priority = Priority(effective.Priority)
	if cfg.Priority != "" && !validPriorities[cfg.Priority] {
		return nil, nil, &cderrors.ConfigError{Field: "priority", Msg: fmt.Sprintf("unknown priority %q", cfg.Priority)}
	}

	// version / revision
	cfg.Version = manifest.Version
	cfg.Revision = "1"
	if cli.DebVersion != "" {
		cfg.Version = cli.DebVersion
		cfg.Revision = ""
	}

	// architecture
	var err error
	if cli.Target != "" {
		cfg.Architecture, err = ArchitectureForTriple(cli.Target)
	} else {
		cfg.Architecture, err = nativeArchitecture()
	}
	if err != nil {
		return nil, nil, err
	}

	// relations
	cfg.Depends = effective.Depends
	cfg.PreDepends = effective.PreDepends
	cfg.Recommends = effective.Recommends
	cfg.Suggests = effective.Suggests
	cfg.Enhances = effective.Enhances
	cfg.Conflicts = effective.Conflicts
	cfg.Breaks = effective.Breaks
	cfg.Replaces = effective.Replaces
	cfg.Provides = effective.Provides

	for _, list := range [][]string{cfg.PreDepends, cfg.Recommends, cfg.Suggests, cfg.Enhances, cfg.Conflicts, cfg.Breaks, cfg.Replaces, cfg.Provides} {
		if err := ParseRelationList(list); err != nil {
			return nil, nil, err
		}
	}
	if err := ParseRelationList(cfg.Depends); err != nil {
		return nil, nil, err
	}

	// files / build knobs
	cfg.RawAssets = effective.Assets
	cfg.MaintainerScriptsDir = effective.MaintainerScriptsDir
	cfg.ConfFiles = effective.ConfFiles
	cfg.TriggersFile = effective.TriggersFile
	cfg.Changelog = effective.Changelog
	cfg.SystemdUnits = effective.SystemdUnits

	cfg.Features = effective.Features
	cfg.DefaultFeatures = boolOr(effective.DefaultFeatures, true)
	cfg.SeparateDebugSymbols = boolOr(effective.SeparateDebugSymbols, false) || cli.SeparateDebugSymbols
	cfg.PreserveSymlinks = boolOr(effective.PreserveSymlinks, false)
	cfg.Fast = boolOr(effective.Fast, false) || cli.Fast
	cfg.StripPath = effective.StripPath
	if cfg.StripPath == "" {
		cfg.StripPath = "strip"
	}
	cfg.ObjcopyPath = effective.ObjcopyPath
	if cfg.ObjcopyPath == "" {
		cfg.ObjcopyPath = "objcopy"
	}

	if len(cfg.RawAssets) == 0 {
		cfg.RawAssets = defaultAssets(manifest, cfg, cli)
	}

	return cfg, warnings, nil
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// defaultAssets synthesizes the fallback asset list (spec §4.1): one
// entry per declared binary under the effective target's release
// directory, plus the readme when present.
func defaultAssets(manifest UpstreamManifest, cfg *PackageConfig, cli CLIOverrides) []assets.RawAssetSpec {
	// Source patterns stay relative to "target/release/"; Plan's own
	// cross-compile rewrite (spec §4.2 step 1) inserts the triple when a
	// non-native target is selected.
	var out []assets.RawAssetSpec
	for _, bin := range manifest.Binaries {
		out = append(out, assets.RawAssetSpec{
			SourcePattern: "target/release/" + bin,
			Destination:   "/usr/bin/" + bin,
			Mode:          "755",
		})
	}

	if manifest.Readme != "" {
		if _, err := os.Stat(filepath.Join(cli.ManifestDir, manifest.Readme)); err == nil {
			out = append(out, assets.RawAssetSpec{
				SourcePattern: manifest.Readme,
				Destination:   "/usr/share/doc/" + cfg.Name + "/README",
				Mode:          "644",
			})
		}
	}

	return out
}
