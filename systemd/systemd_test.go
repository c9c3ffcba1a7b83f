package systemd

import (
	"strings"
	"testing"

	"github.com/cratedeb/cratedeb/config"
	"github.com/cratedeb/cratedeb/deb"
)

func TestContributeNoopWithoutUnits(t *testing.T) {
	cfg := &config.PackageConfig{Name: "hello"}
	b := &deb.Builder{Config: cfg}

	if err := Contribute(b); err != nil {
		t.Fatalf("Contribute: %v", err)
	}
	if len(b.Assets) != 0 {
		t.Errorf("expected no assets added, got %v", b.Assets)
	}
	if b.PostInst != "" {
		t.Errorf("expected no postinst added, got %q", b.PostInst)
	}
}

func TestContributeAddsUnitAsset(t *testing.T) {
	cfg := &config.PackageConfig{
		Name:        "hello",
		ManifestDir: "/src",
		SystemdUnits: &config.SystemdUnits{
			UnitFiles: map[string]string{"contrib/hello.service": "hello.service"},
		},
	}
	b := &deb.Builder{Config: cfg}

	if err := Contribute(b); err != nil {
		t.Fatalf("Contribute: %v", err)
	}
	if len(b.Assets) != 1 {
		t.Fatalf("expected one unit asset, got %d", len(b.Assets))
	}
	a := b.Assets[0]
	if a.InstalledPath != "/lib/systemd/system/hello.service" {
		t.Errorf("InstalledPath = %q", a.InstalledPath)
	}
	if a.SourcePath != "/src/contrib/hello.service" {
		t.Errorf("SourcePath = %q", a.SourcePath)
	}
	if a.Mode != 0644 {
		t.Errorf("Mode = %v, want 0644", a.Mode)
	}
}

func TestContributeEnableAppendsScripts(t *testing.T) {
	cfg := &config.PackageConfig{
		Name:        "hello",
		ManifestDir: "/src",
		SystemdUnits: &config.SystemdUnits{
			UnitFiles: map[string]string{"hello.service": "hello.service"},
			Enable:    true,
		},
	}
	b := &deb.Builder{Config: cfg}

	if err := Contribute(b); err != nil {
		t.Fatalf("Contribute: %v", err)
	}

	if !strings.Contains(b.PostInst, "deb-systemd-helper enable hello.service") {
		t.Errorf("postinst missing enable snippet: %q", b.PostInst)
	}
	if !strings.Contains(b.PreRm, "deb-systemd-helper disable hello.service") {
		t.Errorf("prerm missing disable snippet: %q", b.PreRm)
	}
	if !strings.Contains(b.PostRm, "deb-systemd-helper mask hello.service") {
		t.Errorf("postrm missing mask snippet: %q", b.PostRm)
	}
}

func TestContributeStartAppendsScripts(t *testing.T) {
	cfg := &config.PackageConfig{
		Name:        "hello",
		ManifestDir: "/src",
		SystemdUnits: &config.SystemdUnits{
			UnitFiles: map[string]string{"hello.service": "hello.service"},
			Start:     true,
		},
	}
	b := &deb.Builder{Config: cfg}

	if err := Contribute(b); err != nil {
		t.Fatalf("Contribute: %v", err)
	}
	if !strings.Contains(b.PostInst, "systemctl start hello.service") {
		t.Errorf("postinst missing start snippet: %q", b.PostInst)
	}
	if !strings.Contains(b.PreRm, "systemctl stop hello.service") {
		t.Errorf("prerm missing stop snippet: %q", b.PreRm)
	}
}

func TestContributeAppendsAfterExistingScript(t *testing.T) {
	cfg := &config.PackageConfig{
		Name:        "hello",
		ManifestDir: "/src",
		SystemdUnits: &config.SystemdUnits{
			UnitFiles: map[string]string{"hello.service": "hello.service"},
			Enable:    true,
		},
	}
	b := &deb.Builder{Config: cfg, PostInst: "#!/bin/sh\nset -e\n\necho custom-step\n"}

	if err := Contribute(b); err != nil {
		t.Fatalf("Contribute: %v", err)
	}
	if !strings.HasPrefix(b.PostInst, "#!/bin/sh\nset -e\n\necho custom-step\n") {
		t.Errorf("existing postinst body was not preserved: %q", b.PostInst)
	}
	if !strings.Contains(b.PostInst, "deb-systemd-helper enable hello.service") {
		t.Errorf("enable snippet not appended: %q", b.PostInst)
	}
}
