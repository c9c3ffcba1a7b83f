package main

import (
	"fmt"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/cratedeb/cratedeb/assets"
	"github.com/cratedeb/cratedeb/config"
)

// tomlManifest mirrors the subset of a Cargo.toml this CLI understands.
// Manifest parsing is explicitly out of the core's scope (spec §1) — this
// loader exists only so the cratedeb binary is runnable end to end from a
// real manifest file; config.UpstreamManifest itself stays TOML-agnostic.
type tomlManifest struct {
	Package struct {
		Name        string   `toml:"name"`
		Version     string   `toml:"version"`
		License     string   `toml:"license"`
		LicenseFile string   `toml:"license-file"`
		Description string   `toml:"description"`
		Readme      string   `toml:"readme"`
		Homepage    string   `toml:"homepage"`
		Repository  string   `toml:"repository"`
		Authors     []string `toml:"authors"`

		Metadata struct {
			Deb tomlDebMetadata `toml:"deb"`
		} `toml:"metadata"`

		Bin []struct {
			Name string `toml:"name"`
		} `toml:"bin"`
	} `toml:"package"`
}

type tomlDebMetadata struct {
	Name                    string            `toml:"name"`
	Maintainer              string            `toml:"maintainer"`
	Copyright               string            `toml:"copyright"`
	License                 string            `toml:"license"`
	LicenseFile             string            `toml:"license-file"`
	LicenseFileSkipLines    int               `toml:"license-file-skip-lines"`
	Homepage                string            `toml:"homepage"`
	Section                 string            `toml:"section"`
	Priority                string            `toml:"priority"`
	Description             string            `toml:"description"`
	ExtendedDescription     string            `toml:"extended-description"`
	ExtendedDescriptionFile string            `toml:"extended-description-file"`

	Depends    []string `toml:"depends"`
	PreDepends []string `toml:"pre-depends"`
	Recommends []string `toml:"recommends"`
	Suggests   []string `toml:"suggests"`
	Enhances   []string `toml:"enhances"`
	Conflicts  []string `toml:"conflicts"`
	Breaks     []string `toml:"breaks"`
	Replaces   []string `toml:"replaces"`
	Provides   []string `toml:"provides"`

	Assets               [][]string        `toml:"assets"`
	MaintainerScripts    string            `toml:"maintainer-scripts"`
	ConfFiles            []string          `toml:"conf-files"`
	TriggersFile         string            `toml:"triggers-file"`
	Changelog            string            `toml:"changelog"`

	Features             []string `toml:"features"`
	DefaultFeatures      *bool    `toml:"default-features"`
	SeparateDebugSymbols *bool    `toml:"separate-debug-symbols"`
	PreserveSymlinks     *bool    `toml:"preserve-symlinks"`
	Fast                 *bool    `toml:"fast"`
	StripPath            string   `toml:"strip-path"`
	ObjcopyPath          string   `toml:"objcopy-path"`

	SystemdUnits *tomlSystemdUnits `toml:"systemd-units"`

	Variants map[string]tomlDebMetadata `toml:"variants"`
}

type tomlSystemdUnits struct {
	UnitFiles map[string]string `toml:"unit-files"`
	Enable    bool              `toml:"enable"`
	Start     bool              `toml:"start"`
	Restart   bool              `toml:"restart"`
}

// loadManifest decodes a Cargo.toml at path into an UpstreamManifest.
// When no [[package.bin]] entries are declared, the package name is used
// as the single binary. The manifest directory (against which asset
// source paths and license-file are resolved) is set separately by run,
// via manifestDirOf.
func loadManifest(path string) (config.UpstreamManifest, error) {
	var tm tomlManifest
	if _, err := toml.DecodeFile(path, &tm); err != nil {
		return config.UpstreamManifest{}, fmt.Errorf("decoding manifest %s: %w", path, err)
	}

	var binaries []string
	for _, b := range tm.Package.Bin {
		if b.Name != "" {
			binaries = append(binaries, b.Name)
		}
	}
	if len(binaries) == 0 && tm.Package.Name != "" {
		binaries = []string{tm.Package.Name}
	}

	m := config.UpstreamManifest{
		Name:        tm.Package.Name,
		Version:     tm.Package.Version,
		License:     tm.Package.License,
		LicenseFile: tm.Package.LicenseFile,
		Description: tm.Package.Description,
		Readme:      tm.Package.Readme,
		Homepage:    tm.Package.Homepage,
		Repository:  tm.Package.Repository,
		Authors:     tm.Package.Authors,
		Binaries:    binaries,
		Metadata:    convertDebMetadata(tm.Package.Metadata.Deb),
	}
	return m, nil
}

func convertDebMetadata(d tomlDebMetadata) config.DebMetadata {
	out := config.DebMetadata{
		Name:                    d.Name,
		Maintainer:              d.Maintainer,
		Copyright:               d.Copyright,
		License:                 d.License,
		LicenseFile:             d.LicenseFile,
		LicenseFileSkipLines:    d.LicenseFileSkipLines,
		Homepage:                d.Homepage,
		Section:                 d.Section,
		Priority:                d.Priority,
		Description:             d.Description,
		ExtendedDescription:     d.ExtendedDescription,
		ExtendedDescriptionFile: d.ExtendedDescriptionFile,

		Depends:    d.Depends,
		PreDepends: d.PreDepends,
		Recommends: d.Recommends,
		Suggests:   d.Suggests,
		Enhances:   d.Enhances,
		Conflicts:  d.Conflicts,
		Breaks:     d.Breaks,
		Replaces:   d.Replaces,
		Provides:   d.Provides,

		MaintainerScriptsDir: d.MaintainerScripts,
		ConfFiles:            d.ConfFiles,
		TriggersFile:         d.TriggersFile,
		Changelog:            d.Changelog,

		Features:             d.Features,
		DefaultFeatures:      d.DefaultFeatures,
		SeparateDebugSymbols: d.SeparateDebugSymbols,
		PreserveSymlinks:     d.PreserveSymlinks,
		Fast:                 d.Fast,
		StripPath:            d.StripPath,
		ObjcopyPath:          d.ObjcopyPath,
	}

	for _, entry := range d.Assets {
		out.Assets = append(out.Assets, assetSpecFromTomlEntry(entry))
	}

	if d.SystemdUnits != nil {
		out.SystemdUnits = &config.SystemdUnits{
			UnitFiles: d.SystemdUnits.UnitFiles,
			Enable:    d.SystemdUnits.Enable,
			Start:     d.SystemdUnits.Start,
			Restart:   d.SystemdUnits.Restart,
		}
	}

	if len(d.Variants) > 0 {
		out.Variants = make(map[string]config.DebMetadata, len(d.Variants))
		for name, v := range d.Variants {
			out.Variants[name] = convertDebMetadata(v)
		}
	}

	return out
}

// assetSpecFromTomlEntry converts one ["src", "dst", "mode"] string-array
// entry of the assets array (cargo-deb's asset tuple syntax) into a
// RawAssetSpec.
func assetSpecFromTomlEntry(entry []string) assets.RawAssetSpec {
	var spec assets.RawAssetSpec
	spec.Origin = string(assets.OriginUser)
	if len(entry) > 0 {
		spec.SourcePattern = entry[0]
	}
	if len(entry) > 1 {
		spec.Destination = entry[1]
	}
	if len(entry) > 2 {
		spec.Mode = entry[2]
	}
	return spec
}

func manifestDirOf(manifestPath string) string {
	return filepath.Dir(manifestPath)
}
