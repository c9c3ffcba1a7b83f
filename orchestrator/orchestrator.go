// Package orchestrator implements the top-level pipeline (spec §4.7):
// it wires the Manifest Resolver, Asset Planner, Binary Post-Processor,
// Dependency Detector, Control Generator, and Archive Writer together and
// owns the staging lifecycle. It returns typed cderrors values; mapping
// them to a process exit status is left to cmd/cratedeb.
//
// Grounded on the teacher's own orchestration in its deleted main.go
// (sequential stage calls, a scratch directory created under the
// system temp dir and removed on the way out) adapted from a
// repository-build driver into a single-package-build driver.
package orchestrator

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/cratedeb/cratedeb/assets"
	"github.com/cratedeb/cratedeb/cderrors"
	"github.com/cratedeb/cratedeb/config"
	"github.com/cratedeb/cratedeb/deb"
	"github.com/cratedeb/cratedeb/depends"
	"github.com/cratedeb/cratedeb/strip"
	"github.com/cratedeb/cratedeb/systemd"
)

// Run executes the full pipeline described by spec §2's data-flow
// diagram and returns the absolute path of the produced .deb on success.
// logger defaults to one writing to stderr when nil.
func Run(manifest config.UpstreamManifest, cli config.CLIOverrides, logger *log.Logger) (string, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "cratedeb: ", 0)
	}

	cfg, warnings, err := config.Resolve(manifest, cli)
	if err != nil {
		return "", err
	}
	logWarnings(logger, warnings)

	planOpts := assets.PlanOptions{
		ManifestDir:      cfg.ManifestDir,
		Target:           cfg.Target,
		CustomTargetDir:  cfg.TargetDir,
		PreserveSymlinks: cfg.PreserveSymlinks,
	}
	planned, planWarnings, err := assets.Plan(cfg.RawAssets, planOpts)
	if err != nil {
		return "", err
	}
	for _, w := range planWarnings {
		logger.Printf("warning: %s", w.String())
	}
	cfg.Assets = planned

	if err := config.ValidateAssets(cfg, planned); err != nil {
		return "", err
	}

	stagingDir, err := os.MkdirTemp("", "cratedeb-")
	if err != nil {
		return "", &cderrors.IoError{Path: os.TempDir(), Err: err}
	}
	defer os.RemoveAll(stagingDir)

	staged, err := strip.Process(cfg, planned, cli.NoStrip, stagingDir)
	if err != nil {
		return "", err
	}
	cfg.Assets = staged

	depWarnings, err := depends.Resolve(cfg, staged)
	if err != nil {
		return "", err
	}
	logWarnings(logger, depWarnings)

	builder, err := deb.NewBuilder(cfg, staged)
	if err != nil {
		return "", err
	}
	if err := builder.LoadMaintainerScripts(); err != nil {
		return "", err
	}
	if err := systemd.Contribute(builder); err != nil {
		return "", err
	}

	outPath, err := outputPath(cfg, cli)
	if err != nil {
		return "", err
	}

	if err := writeAtomically(outPath, builder); err != nil {
		return "", err
	}

	return outPath, nil
}

func logWarnings(logger *log.Logger, warnings []cderrors.Warning) {
	for _, w := range warnings {
		logger.Printf("warning: %s", w.Msg)
	}
}

// outputPath resolves the final .deb path (spec §6): cli.Output when
// given, else "target/[<triple>/]debian/<name>_<version>_<arch>.deb"
// under the manifest directory.
func outputPath(cfg *config.PackageConfig, cli config.CLIOverrides) (string, error) {
	if cli.Output != "" {
		return cli.Output, nil
	}

	targetDir := "target"
	if cfg.TargetDir != "" {
		targetDir = cfg.TargetDir
	}
	debDir := targetDir
	if cfg.Target != "" {
		debDir = filepath.Join(targetDir, cfg.Target)
	}
	debDir = filepath.Join(debDir, "debian")

	if err := os.MkdirAll(filepath.Join(cfg.ManifestDir, debDir), 0755); err != nil {
		return "", &cderrors.IoError{Path: debDir, Err: err}
	}

	return filepath.Join(cfg.ManifestDir, debDir, cfg.OutputFilename()), nil
}

// writeAtomically writes w's output to a temp file beside dst, then
// renames it into place (spec §5's "written via a temporary file and
// atomically renamed").
func writeAtomically(dst string, w io.WriterTo) error {
	dir := filepath.Dir(dst)
	tmp, err := os.CreateTemp(dir, ".cratedeb-*.tmp")
	if err != nil {
		return &cderrors.IoError{Path: dir, Err: err}
	}
	tmpPath := tmp.Name()

	if _, err := w.WriteTo(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &cderrors.IoError{Path: tmpPath, Err: err}
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return &cderrors.IoError{Path: dst, Err: err}
	}
	return nil
}
