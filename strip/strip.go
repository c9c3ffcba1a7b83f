// Package strip implements the Binary Post-Processor (spec §4.3): it
// strips symbols from staged ELF binaries, optionally splits off a
// companion debug-symbols file, and records each processed file's new
// size on its Asset (the installed-size total is summed by package deb).
//
// Grounded on the teacher's fan-out style (the pack's errgroup usage in
// package-operator) for the one-goroutine-per-binary concurrency, and on
// the teacher's own pattern of shelling out to external tools via
// os/exec wrapped in a typed error (cderrors.ToolError).
package strip

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/cratedeb/cratedeb/assets"
	"github.com/cratedeb/cratedeb/cderrors"
	"github.com/cratedeb/cratedeb/config"
)

// systemBinDirs is the set of installed-path prefixes the post-processor
// considers for ELF inspection (spec §4.3).
var systemBinDirs = []string{"/usr/bin", "/usr/sbin", "/usr/lib", "/bin", "/sbin", "/lib"}

func IsSystemBinDir(installedPath string) bool {
	for _, dir := range systemBinDirs {
		if installedPath == dir || strings.HasPrefix(installedPath, dir+"/") {
			return true
		}
	}
	return false
}

const elfMagic = "\x7fELF"

// IsELF reports whether path begins with the ELF magic bytes. Exported
// so the dependency detector can reuse the same cheap check before
// falling back to a full debug/elf parse.
func IsELF(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	buf := make([]byte, 4)
	n, _ := f.Read(buf)
	return n == 4 && string(buf) == elfMagic
}

// Process strips every eligible staged binary in list (spec §4.3),
// fanning out one goroutine per binary via errgroup, and returns
// the (possibly extended, by companion .debug files) AssetList.
//
// stagingDir is the orchestrator's scratch directory (spec §3's
// StagingTree): transformed copies are written under it, keyed by
// installed path, rather than beside the original source files, so the
// build output tree is never mutated and the copies vanish with the
// staging directory on the way out.
//
// When cfg.SeparateDebugSymbols is set, each binary gains a companion
// ".debug" asset. Otherwise, each binary's staged copy is stripped with
// cfg.StripPath unless noStrip (the --no-strip flag, passed in by the
// orchestrator) is set, in which case the asset is returned unchanged.
func Process(cfg *config.PackageConfig, list assets.AssetList, noStrip bool, stagingDir string) (assets.AssetList, error) {
	type job struct {
		index int
		asset assets.Asset
	}

	var jobs []job
	for i, a := range list {
		if a.IsDir || a.IsSymlink || a.SourcePath == "" {
			continue
		}
		if !IsSystemBinDir(a.InstalledPath) {
			continue
		}
		if !IsELF(a.SourcePath) {
			continue
		}
		jobs = append(jobs, job{index: i, asset: a})
	}

	if len(jobs) == 0 {
		return list, nil
	}

	out := make(assets.AssetList, len(list))
	copy(out, list)

	companions := make([]assets.Asset, len(jobs))
	companionSet := make([]bool, len(jobs))

	var g errgroup.Group
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			staged, companion, err := processOne(cfg, j.asset, noStrip, stagingDir)
			if err != nil {
				return err
			}
			out[j.index] = staged
			if companion != nil {
				companions[i] = *companion
				companionSet[i] = true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, ok := range companionSet {
		if ok {
			out = append(out, companions[i])
		}
	}

	return out, nil
}

// processOne strips (or debug-splits) one staged binary, copying it into
// the staging tree so the original staged tree is left untouched, then
// repointing the Asset at the processed copy.
func processOne(cfg *config.PackageConfig, a assets.Asset, noStrip bool, stagingDir string) (assets.Asset, *assets.Asset, error) {
	if cfg.SeparateDebugSymbols {
		return splitDebug(cfg, a, stagingDir)
	}
	if noStrip {
		return a, nil, nil
	}
	return stripInPlace(cfg, a, stagingDir)
}

// stagedPath returns the path under stagingDir a staged copy of the
// asset installed at installedPath+suffix lives at, creating its parent
// directory. Keying by installed path (rather than source basename)
// keeps two binaries with the same filename but different destinations
// from colliding.
func stagedPath(stagingDir, installedPath, suffix string) (string, error) {
	dst := filepath.Join(stagingDir, installedPath+suffix)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", &cderrors.IoError{Path: filepath.Dir(dst), Err: err}
	}
	return dst, nil
}

func stripInPlace(cfg *config.PackageConfig, a assets.Asset, stagingDir string) (assets.Asset, *assets.Asset, error) {
	dst, err := stagedPath(stagingDir, a.InstalledPath, ".stripped")
	if err != nil {
		return a, nil, err
	}
	if err := copyFile(a.SourcePath, dst); err != nil {
		return a, nil, err
	}

	cmd := exec.Command(cfg.StripPath, dst)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return a, nil, &cderrors.ToolError{Tool: cfg.StripPath, Err: fmt.Errorf("%w: %s", err, stderr.String())}
	}

	a.SourcePath = dst
	a.Size = fileSize(dst)
	return a, nil, nil
}

// splitDebug invokes objcopy twice (spec §4.3): once to extract debug
// info into a companion file, once to strip the original while linking
// it to the companion via a .gnu_debuglink section.
func splitDebug(cfg *config.PackageConfig, a assets.Asset, stagingDir string) (assets.Asset, *assets.Asset, error) {
	strippedDst, err := stagedPath(stagingDir, a.InstalledPath, ".stripped")
	if err != nil {
		return a, nil, err
	}
	debugDst, err := stagedPath(stagingDir, a.InstalledPath, ".debug")
	if err != nil {
		return a, nil, err
	}

	if err := copyFile(a.SourcePath, strippedDst); err != nil {
		return a, nil, err
	}

	run := func(args ...string) error {
		cmd := exec.Command(cfg.ObjcopyPath, args...)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return &cderrors.ToolError{Tool: cfg.ObjcopyPath, Err: fmt.Errorf("%w: %s", err, stderr.String())}
		}
		return nil
	}

	if err := run("--only-keep-debug", a.SourcePath, debugDst); err != nil {
		return a, nil, err
	}
	if err := run("--strip-debug", "--strip-unneeded", fmt.Sprintf("--add-gnu-debuglink=%s", debugDst), strippedDst); err != nil {
		return a, nil, err
	}

	a.SourcePath = strippedDst
	a.Size = fileSize(strippedDst)

	companion := assets.Asset{
		SourcePath:    debugDst,
		InstalledPath: "/usr/lib/debug" + a.InstalledPath + ".debug",
		Mode:          0644,
		Origin:        assets.OriginAuto,
		Size:          fileSize(debugDst),
	}
	return a, &companion, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return &cderrors.IoError{Path: src, Err: err}
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return &cderrors.IoError{Path: src, Err: err}
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fi.Mode())
	if err != nil {
		return &cderrors.IoError{Path: dst, Err: err}
	}
	defer out.Close()

	if _, err := copyReaderAt(out, in); err != nil {
		return &cderrors.IoError{Path: dst, Err: err}
	}
	return nil
}

func copyReaderAt(dst *os.File, src *os.File) (int64, error) {
	return dst.ReadFrom(src)
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

