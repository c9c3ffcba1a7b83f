package deb

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/blakesmith/ar"

	"github.com/cratedeb/cratedeb/assets"
	"github.com/cratedeb/cratedeb/config"
)

func testConfig() *config.PackageConfig {
	return &config.PackageConfig{
		Name:                "hello",
		Version:             "1.2.3",
		Revision:            "1",
		Architecture:        "amd64",
		Maintainer:          "Jane Doe <jane@example.com>",
		Copyright:           "2026 Jane Doe",
		License:             "MIT",
		Description:         "a test package",
		ExtendedDescription: "A longer description.\n\nWith a second paragraph.",
		Depends:             []string{"libc6 (>= 2.28)"},
		Priority:            config.PriorityOptional,
		ManifestDir:         ".",
		StripPath:           "strip",
		ObjcopyPath:         "objcopy",
		BuildTime:           time.Unix(0, 0),
	}
}

func TestGenerateControlFieldOrder(t *testing.T) {
	b := &Builder{Config: testConfig()}
	out := b.generateControlFile()

	fields := parseControlFile(out)
	if len(fields) == 0 {
		t.Fatal("no fields parsed from generated control file")
	}

	var order []ControlField
	for _, f := range fields {
		order = append(order, f.Field)
	}

	wantOrder := []ControlField{FieldPackage, FieldVersion, FieldArchitecture, FieldMaintainer, FieldDepends, FieldPriority, FieldDescription}
	idx := 0
	for _, w := range wantOrder {
		found := false
		for ; idx < len(order); idx++ {
			if order[idx] == w {
				found = true
				idx++
				break
			}
		}
		if !found {
			t.Fatalf("field %s missing or out of order in %v", w, order)
		}
	}
}

func TestWriteDescriptionBlankContinuation(t *testing.T) {
	var out strings.Builder
	writeDescription(&out, "short summary", "first paragraph\n\nsecond paragraph")

	got := out.String()
	want := "Description: short summary\n" +
		" first paragraph\n" +
		" .\n" +
		" second paragraph\n"
	if got != want {
		t.Errorf("writeDescription output mismatch:\ngot:  %q\nwant: %q", got, want)
	}
}

func TestWriteDescriptionEmptyShortIsNoop(t *testing.T) {
	var out strings.Builder
	writeDescription(&out, "", "ignored")
	if out.Len() != 0 {
		t.Errorf("expected no output for empty short description, got %q", out.String())
	}
}

func TestBuildCopyright(t *testing.T) {
	c := testConfig()
	body := string(buildCopyright(c))

	if !strings.Contains(body, "Format: https://www.debian.org/doc/packaging-manuals/copyright-format/1.0/") {
		t.Error("missing Format header")
	}
	if !strings.Contains(body, "Upstream-Name: hello") {
		t.Error("missing Upstream-Name")
	}
	if !strings.Contains(body, "Copyright: 2026 Jane Doe") {
		t.Error("missing Copyright line")
	}
	if !strings.Contains(body, "License: MIT") {
		t.Error("missing License line")
	}
}

func TestBuilderWriteToProducesValidArchive(t *testing.T) {
	cfg := testConfig()
	list := assets.AssetList{
		{
			InstalledPath: "/usr/bin/hello",
			Mode:          0755,
			Content:       []byte("#!/bin/sh\necho hi\n"),
			Size:          int64(len("#!/bin/sh\necho hi\n")),
		},
	}

	b, err := NewBuilder(cfg, list)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	var buf bytes.Buffer
	if _, err := b.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	r := ar.NewReader(&buf)

	hdr, err := r.Next()
	if err != nil {
		t.Fatalf("reading first ar member: %v", err)
	}
	if hdr.Name != string(PkgDebianBinary) {
		t.Fatalf("first member = %q, want %q", hdr.Name, PkgDebianBinary)
	}
	body, _ := io.ReadAll(r)
	if string(body) != "2.0\n" {
		t.Fatalf("debian-binary content = %q", body)
	}

	hdr, err = r.Next()
	if err != nil {
		t.Fatalf("reading second ar member: %v", err)
	}
	if hdr.Name != string(PkgControlTar) {
		t.Fatalf("second member = %q, want %q", hdr.Name, PkgControlTar)
	}
	gz, err := gzip.NewReader(r)
	if err != nil {
		t.Fatalf("control.tar.gz is not valid gzip: %v", err)
	}
	tr := tar.NewReader(gz)
	var sawControl, sawMd5sums bool
	for {
		th, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("reading control tar: %v", err)
		}
		switch th.Name {
		case "./control":
			sawControl = true
		case "./md5sums":
			sawMd5sums = true
		}
	}
	if !sawControl || !sawMd5sums {
		t.Fatalf("control archive missing entries: control=%v md5sums=%v", sawControl, sawMd5sums)
	}

	hdr, err = r.Next()
	if err != nil {
		t.Fatalf("reading third ar member: %v", err)
	}
	if hdr.Name != "data.tar.gz" {
		t.Fatalf("third member = %q, want data.tar.gz", hdr.Name)
	}

	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("expected exactly 3 ar members, found a fourth")
	}
}

func TestBuilderWriteToSynthesizesDirectoriesForAppendedAssets(t *testing.T) {
	cfg := testConfig()
	list := assets.AssetList{
		{
			InstalledPath: "/usr/bin/hello",
			Mode:          0755,
			IsDir:         false,
			Content:       []byte("#!/bin/sh\necho hi\n"),
			Size:          int64(len("#!/bin/sh\necho hi\n")),
		},
	}

	// Plan() never ran, so the list above carries no ancestor-directory
	// entries at all; NewBuilder only adds the copyright file, itself
	// under a path (/usr/share/doc/hello) with no directory entries
	// either. WriteTo must still synthesize every ancestor for both.
	b, err := NewBuilder(cfg, list)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	var buf bytes.Buffer
	if _, err := b.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	r := ar.NewReader(&buf)
	if _, err := r.Next(); err != nil { // debian-binary
		t.Fatalf("reading first ar member: %v", err)
	}
	io.Copy(io.Discard, r)
	if _, err := r.Next(); err != nil { // control.tar.gz
		t.Fatalf("reading second ar member: %v", err)
	}
	io.Copy(io.Discard, r)
	if _, err := r.Next(); err != nil { // data.tar.gz
		t.Fatalf("reading third ar member: %v", err)
	}

	gz, err := gzip.NewReader(r)
	if err != nil {
		t.Fatalf("data.tar.gz is not valid gzip: %v", err)
	}
	tr := tar.NewReader(gz)

	seenDirs := make(map[string]bool)
	for {
		th, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("reading data tar: %v", err)
		}
		if th.Typeflag == tar.TypeDir {
			seenDirs[th.Name] = true
		}
	}

	for _, want := range []string{"./usr/", "./usr/bin/", "./usr/share/", "./usr/share/doc/", "./usr/share/doc/hello/"} {
		if !seenDirs[want] {
			t.Errorf("data archive missing directory entry %q; got %v", want, seenDirs)
		}
	}
}

func TestBuilderWriteToUsesXZWhenConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.Features = []string{"lzma"}

	b, err := NewBuilder(cfg, nil)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	var buf bytes.Buffer
	if _, err := b.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	r := ar.NewReader(&buf)
	var names []string
	for {
		hdr, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("reading ar member: %v", err)
		}
		names = append(names, hdr.Name)
	}

	found := false
	for _, n := range names {
		if n == "data.tar.xz" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a data.tar.xz member, got %v", names)
	}
}
