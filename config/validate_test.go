package config

import (
	"testing"

	"github.com/cratedeb/cratedeb/assets"
)

func TestValidateAssetsAcceptsKnownConfFile(t *testing.T) {
	cfg := &PackageConfig{ConfFiles: []string{"/etc/hello/hello.conf"}}
	planned := assets.AssetList{
		{InstalledPath: "/etc/hello/hello.conf"},
	}
	if err := ValidateAssets(cfg, planned); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateAssetsRejectsUnknownConfFile(t *testing.T) {
	cfg := &PackageConfig{ConfFiles: []string{"/etc/hello/missing.conf"}}
	planned := assets.AssetList{
		{InstalledPath: "/etc/hello/hello.conf"},
	}
	if err := ValidateAssets(cfg, planned); err == nil {
		t.Fatal("expected an error for a conf_files entry with no matching asset")
	}
}
