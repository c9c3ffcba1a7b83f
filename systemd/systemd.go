// Package systemd implements the optional systemd add-on described by
// spec §1/§4.5: its only contract with the core is "contributes
// additional assets and maintainer-script fragments". It installs unit
// files as regular assets and appends enable/start/restart snippets to
// the generated postinst/prerm/postrm scripts.
package systemd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/cratedeb/cratedeb/assets"
	"github.com/cratedeb/cratedeb/deb"
)

// Contribute adds one Asset per configured unit file under
// /lib/systemd/system/ to b.Assets, and appends the corresponding
// dh_systemd-style maintainer-script snippets to b's scripts. Call it
// after b.LoadMaintainerScripts, so the snippets append to (rather than
// replace) the configured scripts.
func Contribute(b *deb.Builder) error {
	cfg := b.Config
	units := cfg.SystemdUnits
	if units == nil || len(units.UnitFiles) == 0 {
		return nil
	}

	var unitNames []string
	for src, name := range units.UnitFiles {
		srcPath := filepath.Join(cfg.ManifestDir, src)
		var size int64
		if fi, err := os.Stat(srcPath); err == nil {
			size = fi.Size()
		}
		b.Assets = append(b.Assets, assets.Asset{
			SourcePath:    srcPath,
			InstalledPath: "/lib/systemd/system/" + name,
			Mode:          0644,
			Origin:        assets.OriginSystemd,
			Size:          size,
		})
		unitNames = append(unitNames, name)
	}
	sort.Strings(unitNames)
	sort.Stable(b.Assets)

	if units.Enable {
		for _, name := range unitNames {
			b.AppendScript(deb.FilePostinst, fmt.Sprintf("if [ -d /run/systemd/system ]; then\n\tsystemctl --system daemon-reload >/dev/null || true\n\tdeb-systemd-helper enable %s >/dev/null || true\nfi\n", name))
			b.AppendScript(deb.FilePrerm, fmt.Sprintf("if [ -d /run/systemd/system ]; then\n\tdeb-systemd-helper disable %s >/dev/null || true\nfi\n", name))
			b.AppendScript(deb.FilePostrm, fmt.Sprintf("if [ -d /run/systemd/system ]; then\n\tdeb-systemd-helper mask %s >/dev/null || true\nfi\n", name))
		}
	}
	if units.Start {
		for _, name := range unitNames {
			b.AppendScript(deb.FilePostinst, fmt.Sprintf("if [ -d /run/systemd/system ]; then\n\tsystemctl start %s >/dev/null || true\nfi\n", name))
			b.AppendScript(deb.FilePrerm, fmt.Sprintf("if [ -d /run/systemd/system ]; then\n\tsystemctl stop %s >/dev/null || true\nfi\n", name))
		}
	}
	if units.Restart {
		for _, name := range unitNames {
			b.AppendScript(deb.FilePostinst, fmt.Sprintf("if [ -d /run/systemd/system ] && [ -e /run/systemd/system/%s ]; then\n\tsystemctl restart %s >/dev/null || true\nfi\n", name, name))
		}
	}

	return nil
}
