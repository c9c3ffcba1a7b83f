package deb

import (
	"archive/tar"
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/blakesmith/ar"

	"github.com/cratedeb/cratedeb/assets"
	"github.com/cratedeb/cratedeb/cderrors"
	"github.com/cratedeb/cratedeb/config"
)

// Builder assembles the final .deb from a resolved PackageConfig and its
// planned AssetList (spec §4.5, §4.6). It mirrors the teacher's
// Package.WriteTo shape: build the data archive first (so file digests are
// known), then the control archive, then the outer ar container.
type Builder struct {
	Config *config.PackageConfig
	Assets assets.AssetList

	// Maintainer script bodies, already rendered. Populated by
	// LoadMaintainerScripts and optionally appended to by the systemd
	// add-on before WriteTo runs.
	PreInst, PostInst, PreRm, PostRm, ScriptConfig string

	// Triggers is the verbatim content of the user's triggers file, if any.
	Triggers []byte
}

// NewBuilder constructs a Builder and injects the control-generator's own
// data-archive contributions — the copyright file and, when configured, the
// gzipped changelog (spec §4.5) — as synthesized Asset entries so they flow
// through the same sorted, deterministic write path as everything else.
func NewBuilder(cfg *config.PackageConfig, list assets.AssetList) (*Builder, error) {
	b := &Builder{Config: cfg}

	combined := make(assets.AssetList, len(list))
	copy(combined, list)

	copyrightBody := buildCopyright(cfg)
	combined = append(combined, assets.Asset{
		InstalledPath: "/usr/share/doc/" + cfg.Name + "/copyright",
		Mode:          0644,
		Origin:        assets.OriginAuto,
		Content:       copyrightBody,
		Size:          int64(len(copyrightBody)),
	})

	if cfg.Changelog != "" {
		raw, err := os.ReadFile(filepath.Join(cfg.ManifestDir, cfg.Changelog))
		if err != nil {
			return nil, &cderrors.IoError{Path: cfg.Changelog, Err: err}
		}
		gz, err := gzipBytes(raw, cfg.Fast)
		if err != nil {
			return nil, err
		}
		combined = append(combined, assets.Asset{
			InstalledPath: "/usr/share/doc/" + cfg.Name + "/changelog.Debian.gz",
			Mode:          0644,
			Origin:        assets.OriginAuto,
			Content:       gz,
			Size:          int64(len(gz)),
		})
	}

	if cfg.TriggersFile != "" {
		raw, err := os.ReadFile(filepath.Join(cfg.ManifestDir, cfg.TriggersFile))
		if err != nil {
			return nil, &cderrors.IoError{Path: cfg.TriggersFile, Err: err}
		}
		b.Triggers = raw
	}

	sort.Stable(combined)
	b.Assets = combined
	return b, nil
}

// gzipBytes is a small synchronous helper for the one-shot changelog
// compression (not performance sensitive, unlike the data archive).
func gzipBytes(raw []byte, fast bool) ([]byte, error) {
	var buf bytes.Buffer
	gw := newGzipWriter(&buf, fast)
	if _, err := gw.Write(raw); err != nil {
		return nil, &cderrors.IoError{Path: "changelog", Err: err}
	}
	if err := gw.Close(); err != nil {
		return nil, &cderrors.IoError{Path: "changelog", Err: err}
	}
	return buf.Bytes(), nil
}

// LoadMaintainerScripts reads preinst/postinst/prerm/postrm/config from
// Config.MaintainerScriptsDir, rendering anything found under a
// "templates/" subdirectory of that name through text/template with the
// PackageConfig as data (spec §4.5).
func (b *Builder) LoadMaintainerScripts() error {
	dir := b.Config.MaintainerScriptsDir
	if dir == "" {
		return nil
	}

	scripts := map[ControlFile]*string{
		FilePreinst:  &b.PreInst,
		FilePostinst: &b.PostInst,
		FilePrerm:    &b.PreRm,
		FilePostrm:   &b.PostRm,
		FileConfig:   &b.ScriptConfig,
	}

	for name, dst := range scripts {
		body, err := loadMaintainerScript(dir, string(name), b.Config)
		if err != nil {
			return err
		}
		*dst = body
	}
	return nil
}

func loadMaintainerScript(dir, name string, cfg *config.PackageConfig) (string, error) {
	tmplPath := filepath.Join(dir, "templates", name)
	if raw, err := os.ReadFile(tmplPath); err == nil {
		t, err := template.New(name).Parse(string(raw))
		if err != nil {
			return "", &cderrors.ConfigError{Field: "maintainer_scripts", Msg: fmt.Sprintf("parsing template %s: %v", name, err)}
		}
		var out strings.Builder
		if err := t.Execute(&out, cfg); err != nil {
			return "", &cderrors.ConfigError{Field: "maintainer_scripts", Msg: fmt.Sprintf("rendering template %s: %v", name, err)}
		}
		return out.String(), nil
	}

	plainPath := filepath.Join(dir, name)
	raw, err := os.ReadFile(plainPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", &cderrors.IoError{Path: plainPath, Err: err}
	}
	return string(raw), nil
}

// AppendScript appends a snippet to the named maintainer script, used by
// the systemd add-on to merge in its enable/start/restart fragments (spec
// §4.5 "systemd integration ... contributes additional snippets").
func (b *Builder) AppendScript(name ControlFile, snippet string) {
	switch name {
	case FilePreinst:
		b.PreInst = appendSnippet(b.PreInst, snippet)
	case FilePostinst:
		b.PostInst = appendSnippet(b.PostInst, snippet)
	case FilePrerm:
		b.PreRm = appendSnippet(b.PreRm, snippet)
	case FilePostrm:
		b.PostRm = appendSnippet(b.PostRm, snippet)
	}
}

func appendSnippet(body, snippet string) string {
	if body == "" {
		return "#!/bin/sh\nset -e\n\n" + snippet
	}
	return strings.TrimRight(body, "\n") + "\n\n" + snippet
}

// WriteTo writes the complete .deb to w, satisfying io.WriterTo.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}

	// Directory synthesis runs one last time here, over whatever the
	// control generator, strip and systemd add-ons have appended since
	// Plan: every installed path needs its ancestor directories as
	// entries of their own (spec §3, §8 ordering invariant).
	b.Assets = assets.WithDirectories(b.Assets)
	sort.Stable(b.Assets)

	dataBuf := new(bytes.Buffer)
	md5Map, err := b.buildDataArchive(dataBuf)
	if err != nil {
		return cw.n, fmt.Errorf("building data archive: %w", err)
	}

	controlBuf := new(bytes.Buffer)
	if err := b.buildControlArchive(controlBuf, md5Map); err != nil {
		return cw.n, fmt.Errorf("building control archive: %w", err)
	}

	arW := ar.NewWriter(cw)
	if err := arW.WriteGlobalHeader(); err != nil {
		return cw.n, fmt.Errorf("writing ar global header: %w", err)
	}
	if err := addBufferToAr(arW, string(PkgDebianBinary), []byte("2.0\n")); err != nil {
		return cw.n, fmt.Errorf("writing %s: %w", PkgDebianBinary, err)
	}
	if err := addBufferToAr(arW, string(PkgControlTar), controlBuf.Bytes()); err != nil {
		return cw.n, fmt.Errorf("writing %s: %w", PkgControlTar, err)
	}
	dataName := "data.tar.gz"
	if b.Config.UseXZ() {
		dataName = "data.tar.xz"
	}
	if err := addBufferToAr(arW, dataName, dataBuf.Bytes()); err != nil {
		return cw.n, fmt.Errorf("writing %s: %w", dataName, err)
	}

	return cw.n, nil
}

// buildDataArchive writes the data payload tar, compressed per
// Config.UseXZ()/Fast, and returns the MD5 digest of every regular file
// keyed by installed path. It also updates Config.InstalledSize: the
// total byte size of all regular-file entries, rounded up to whole KiB.
func (b *Builder) buildDataArchive(w io.Writer) (map[string]string, error) {
	var closer io.Closer
	var tarDst io.Writer

	if b.Config.UseXZ() {
		xw, err := newXZWriter(w, b.Config.Fast)
		if err != nil {
			return nil, &cderrors.FormatError{Msg: fmt.Sprintf("opening xz writer: %v", err)}
		}
		tarDst, closer = xw, xw
	} else {
		gw := newGzipWriter(w, b.Config.Fast)
		tarDst, closer = gw, gw
	}

	tw := tar.NewWriter(tarDst)

	md5Map := make(map[string]string)
	var totalBytes int64

	for _, a := range b.Assets {
		name := tarName(a.InstalledPath, a.IsDir)

		hdr := &tar.Header{
			Name:    name,
			Mode:    int64(a.Mode & 0777),
			Uid:     0,
			Gid:     0,
			Uname:   "root",
			Gname:   "root",
			ModTime: time.Unix(0, 0),
		}

		switch {
		case a.IsDir:
			hdr.Typeflag = tar.TypeDir
			if err := tw.WriteHeader(hdr); err != nil {
				return nil, &cderrors.FormatError{Msg: err.Error()}
			}
		case a.IsSymlink:
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = a.SymlinkTarget
			if err := tw.WriteHeader(hdr); err != nil {
				return nil, &cderrors.FormatError{Msg: err.Error()}
			}
		default:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = a.Size
			if err := tw.WriteHeader(hdr); err != nil {
				return nil, &cderrors.FormatError{Msg: err.Error()}
			}

			h := md5.New()
			if a.Content != nil {
				if _, err := io.MultiWriter(tw, h).Write(a.Content); err != nil {
					return nil, &cderrors.IoError{Path: a.InstalledPath, Err: err}
				}
			} else {
				f, err := os.Open(a.SourcePath)
				if err != nil {
					return nil, &cderrors.IoError{Path: a.SourcePath, Err: err}
				}
				if _, err := io.Copy(io.MultiWriter(tw, h), f); err != nil {
					f.Close()
					return nil, &cderrors.IoError{Path: a.SourcePath, Err: err}
				}
				f.Close()
			}
			md5Map[a.InstalledPath] = hex.EncodeToString(h.Sum(nil))
			totalBytes += a.Size
		}
	}

	if err := tw.Close(); err != nil {
		return nil, &cderrors.FormatError{Msg: err.Error()}
	}
	if err := closer.Close(); err != nil {
		return nil, &cderrors.FormatError{Msg: err.Error()}
	}

	b.Config.InstalledSize = (totalBytes + 1023) / 1024
	return md5Map, nil
}

// tarName converts an absolute installed path into the relative,
// "./"-prefixed form Debian data/control tars use.
func tarName(installedPath string, isDir bool) string {
	name := "." + installedPath
	if isDir && !strings.HasSuffix(name, "/") {
		name += "/"
	}
	return name
}

// buildControlArchive writes the control.tar.gz contents: control,
// md5sums, conffiles, triggers, maintainer scripts (spec §4.5). The
// control archive is always gzip, regardless of Config.UseXZ().
func (b *Builder) buildControlArchive(w io.Writer, md5Map map[string]string) error {
	gw := newGzipWriter(w, b.Config.Fast)
	tw := tar.NewWriter(gw)

	writeEntry := func(name ControlFile, content []byte, mode int64) error {
		hdr := &tar.Header{
			Name:    "./" + string(name),
			Size:    int64(len(content)),
			Mode:    mode,
			Uid:     0,
			Gid:     0,
			Uname:   "root",
			Gname:   "root",
			ModTime: time.Unix(0, 0),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		_, err := tw.Write(content)
		return err
	}

	if err := writeEntry(FileControl, []byte(b.generateControlFile()), 0644); err != nil {
		return fmt.Errorf("writing control: %w", err)
	}
	if err := writeEntry(FileMd5sums, []byte(b.generateMd5sums(md5Map)), 0644); err != nil {
		return fmt.Errorf("writing md5sums: %w", err)
	}

	if len(b.Config.ConfFiles) > 0 {
		content := strings.Join(b.Config.ConfFiles, "\n") + "\n"
		if err := writeEntry(FileConffiles, []byte(content), 0644); err != nil {
			return fmt.Errorf("writing conffiles: %w", err)
		}
	}

	if len(b.Triggers) > 0 {
		if err := writeEntry(FileTriggers, b.Triggers, 0644); err != nil {
			return fmt.Errorf("writing triggers: %w", err)
		}
	}

	scripts := map[ControlFile]string{
		FilePreinst:  b.PreInst,
		FilePostinst: b.PostInst,
		FilePrerm:    b.PreRm,
		FilePostrm:   b.PostRm,
		FileConfig:   b.ScriptConfig,
	}
	var names []string
	for name := range scripts {
		names = append(names, string(name))
	}
	sort.Strings(names)
	for _, name := range names {
		body := scripts[ControlFile(name)]
		if body == "" {
			continue
		}
		if err := writeEntry(ControlFile(name), []byte(body), 0755); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gw.Close()
}

// generateControlFile renders the control file in canonical field order
// (spec §4.5), with the Description field's first line unindented and
// continuation lines prefixed with a single space (blank continuations
// become " .").
func (b *Builder) generateControlFile() string {
	c := b.Config
	var out strings.Builder

	writeField := func(field ControlField, value string) {
		if value != "" {
			fmt.Fprintf(&out, "%s: %s\n", field, value)
		}
	}
	writeRel := func(field ControlField, items []string) {
		if len(items) > 0 {
			writeField(field, strings.Join(items, ", "))
		}
	}

	version := c.Version
	if c.Revision != "" {
		version = version + "-" + c.Revision
	}

	for _, field := range controlFieldOrder {
		switch field {
		case FieldPackage:
			writeField(field, c.Name)
		case FieldVersion:
			writeField(field, version)
		case FieldArchitecture:
			writeField(field, c.Architecture)
		case FieldMaintainer:
			writeField(field, c.Maintainer)
		case FieldInstalledSize:
			writeField(field, fmt.Sprintf("%d", c.InstalledSize))
		case FieldDepends:
			writeRel(field, c.Depends)
		case FieldPreDepends:
			writeRel(field, c.PreDepends)
		case FieldRecommends:
			writeRel(field, c.Recommends)
		case FieldSuggests:
			writeRel(field, c.Suggests)
		case FieldEnhances:
			writeRel(field, c.Enhances)
		case FieldConflicts:
			writeRel(field, c.Conflicts)
		case FieldBreaks:
			writeRel(field, c.Breaks)
		case FieldReplaces:
			writeRel(field, c.Replaces)
		case FieldProvides:
			writeRel(field, c.Provides)
		case FieldSection:
			writeField(field, c.Section)
		case FieldPriority:
			writeField(field, string(c.Priority))
		case FieldHomepage:
			writeField(field, c.Homepage)
		case FieldDescription:
			writeDescription(&out, c.Description, c.ExtendedDescription)
		}
	}

	return out.String()
}

func writeDescription(out *strings.Builder, short, extended string) {
	if short == "" {
		return
	}
	fmt.Fprintf(out, "%s: %s\n", FieldDescription, short)
	if extended == "" {
		return
	}
	for _, line := range strings.Split(extended, "\n") {
		if strings.TrimSpace(line) == "" {
			out.WriteString(" .\n")
			continue
		}
		if strings.HasPrefix(line, " ") {
			fmt.Fprintf(out, "%s\n", line)
		} else {
			fmt.Fprintf(out, " %s\n", line)
		}
	}
}

func (b *Builder) generateMd5sums(md5Map map[string]string) string {
	paths := make([]string, 0, len(md5Map))
	for p := range md5Map {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var out strings.Builder
	for _, p := range paths {
		fmt.Fprintf(&out, "%s  %s\n", md5Map[p], strings.TrimPrefix(p, "/"))
	}
	return out.String()
}

// buildCopyright synthesizes /usr/share/doc/<pkg>/copyright from the
// resolved license/copyright fields (spec §4.5). When a license file was
// provided, its content (minus the configured skip-lines) is appended
// verbatim.
func buildCopyright(c *config.PackageConfig) []byte {
	var out strings.Builder
	fmt.Fprintf(&out, "Format: https://www.debian.org/doc/packaging-manuals/copyright-format/1.0/\n")
	fmt.Fprintf(&out, "Upstream-Name: %s\n", c.Name)
	if c.Homepage != "" {
		fmt.Fprintf(&out, "Source: %s\n", c.Homepage)
	}
	out.WriteString("\n")
	fmt.Fprintf(&out, "Files: *\n")
	fmt.Fprintf(&out, "Copyright: %s\n", c.Copyright)
	if c.License != "" {
		fmt.Fprintf(&out, "License: %s\n", c.License)
	}

	if c.LicenseFile != "" {
		if raw, err := os.ReadFile(filepath.Join(c.ManifestDir, c.LicenseFile)); err == nil {
			lines := strings.Split(string(raw), "\n")
			if c.LicenseFileSkipLines > 0 && c.LicenseFileSkipLines < len(lines) {
				lines = lines[c.LicenseFileSkipLines:]
			}
			out.WriteString("\n")
			out.WriteString(strings.Join(lines, "\n"))
		}
	}

	return []byte(out.String())
}
