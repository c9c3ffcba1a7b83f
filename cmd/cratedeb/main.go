// Command cratedeb assembles a Debian package from a resolved manifest
// (spec §6). It is a thin adapter over the core pipeline in package
// orchestrator: CLI parsing and manifest-file loading are both out of the
// core's scope, so they live here, grounded on arc-language/upkg's
// internal/cli cobra layout.
package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/cratedeb/cratedeb/cderrors"
	"github.com/cratedeb/cratedeb/config"
	"github.com/cratedeb/cratedeb/deb"
	"github.com/cratedeb/cratedeb/orchestrator"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

func newRootCmd() *cobra.Command {
	var cli config.CLIOverrides
	var bump bool

	cmd := &cobra.Command{
		Use:   "cratedeb",
		Short: "Build a Debian package from a Cargo-style manifest",
		Long: `cratedeb assembles a .deb package from a project manifest and its
package.metadata.deb table, following the layered CLI > variant > base >
upstream precedence rules.

A trailing "--" forwards the remaining arguments to the upstream build
tool invoked before packaging, unless --no-build is set.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cli, bump, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cli.Output, "output", "", "path of the produced .deb (default: target/[<triple>/]debian/<name>_<version>_<arch>.deb)")
	flags.BoolVar(&cli.Install, "install", false, "install the produced package with dpkg after building it")
	flags.BoolVar(&cli.NoBuild, "no-build", false, "skip invoking the upstream build tool; package already-built artifacts")
	flags.BoolVar(&cli.NoStrip, "no-strip", false, "do not strip symbols from staged binaries")
	flags.BoolVar(&cli.SeparateDebugSymbols, "separate-debug-symbols", false, "split debug symbols into a companion /usr/lib/debug file instead of discarding them")
	flags.BoolVar(&cli.Fast, "fast", false, "prefer build speed over compression ratio")
	flags.StringVar(&cli.Target, "target", "", "target triple to cross-build for (default: host)")
	flags.StringVar(&cli.Variant, "variant", "", "name of the [package.metadata.deb.variants.<name>] table to apply")
	flags.StringVar(&cli.DebVersion, "deb-version", "", "override the Debian package version (including revision)")
	flags.StringVar(&cli.ManifestPath, "manifest-path", "Cargo.toml", "path to the project manifest")
	flags.BoolVar(&bump, "bump", false, "increment the packaging revision (1 -> 2, a -> b, ...) before building")

	return cmd
}

func run(cli config.CLIOverrides, bump bool, buildArgs []string) error {
	logger := log.New(os.Stderr, "cratedeb: ", 0)

	manifest, err := loadManifest(cli.ManifestPath)
	if err != nil {
		return err
	}
	cli.ManifestDir = manifestDirOf(cli.ManifestPath)

	if bump {
		cli.DebVersion, err = bumpedVersion(manifest, cli)
		if err != nil {
			return err
		}
	}

	if !cli.NoBuild {
		if err := runUpstreamBuild(cli, buildArgs, logger); err != nil {
			return err
		}
	}

	outPath, err := orchestrator.Run(manifest, cli, logger)
	if err != nil {
		return err
	}

	if cli.Install {
		if err := installPackage(outPath, logger); err != nil {
			return err
		}
	}

	fmt.Println(outPath)
	return nil
}

// bumpedVersion resolves the package's current version-revision string
// and increments the revision (deb.BumpVersion), so --bump can be passed
// on every invocation without the caller tracking the last revision
// used. The resolve happens under the same CLI overrides the real build
// will use, minus --deb-version, so a stray earlier override can't
// short-circuit the bump.
func bumpedVersion(manifest config.UpstreamManifest, cli config.CLIOverrides) (string, error) {
	cli.DebVersion = ""
	cfg, _, err := config.Resolve(manifest, cli)
	if err != nil {
		return "", err
	}
	current := cfg.Version
	if cfg.Revision != "" {
		current += "-" + cfg.Revision
	}
	return deb.BumpVersion(current), nil
}

// runUpstreamBuild shells out to the build tool the manifest's ecosystem
// normally drives (spec §6: "a trailing -- forwards remaining arguments to
// the upstream build tool"). Out of scope per spec §1 beyond this plumbing,
// so it's kept to a single best-effort invocation.
func runUpstreamBuild(cli config.CLIOverrides, buildArgs []string, logger *log.Logger) error {
	args := []string{"build", "--release"}
	if cli.Target != "" {
		args = append(args, "--target", cli.Target)
	}
	args = append(args, buildArgs...)

	cmd := exec.Command("cargo", args...)
	cmd.Dir = cli.ManifestDir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	logger.Printf("running upstream build: %s", cmd.String())
	if err := cmd.Run(); err != nil {
		return &cderrors.ToolError{Tool: "cargo", Err: err}
	}
	return nil
}

func installPackage(debPath string, logger *log.Logger) error {
	cmd := exec.Command("dpkg", "-i", debPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	logger.Printf("installing %s", debPath)
	if err := cmd.Run(); err != nil {
		return &cderrors.ToolError{Tool: "dpkg", Err: err}
	}
	return nil
}

// exitCodeFor maps a fatal error kind to a process exit status (spec §7):
// configuration problems exit differently from tool/IO failures so callers
// can distinguish "fix your manifest" from "fix your environment".
func exitCodeFor(err error) int {
	var cfgErr *cderrors.ConfigError
	var ioErr *cderrors.IoError
	var toolErr *cderrors.ToolError
	var fmtErr *cderrors.FormatError

	fmt.Fprintln(os.Stderr, "cratedeb:", err)

	switch {
	case errors.As(err, &cfgErr):
		return 2
	case errors.As(err, &ioErr):
		return 3
	case errors.As(err, &toolErr):
		return 4
	case errors.As(err, &fmtErr):
		return 5
	default:
		return 1
	}
}
