package main

import (
	"testing"

	"github.com/cratedeb/cratedeb/config"
)

func TestBumpedVersionIncrementsDefaultRevision(t *testing.T) {
	manifest := config.UpstreamManifest{
		Name:        "hello",
		Version:     "0.1.0",
		Description: "says hi",
	}

	got, err := bumpedVersion(manifest, config.CLIOverrides{})
	if err != nil {
		t.Fatalf("bumpedVersion: %v", err)
	}
	if got != "0.1.0-2" {
		t.Errorf("bumpedVersion = %q, want %q", got, "0.1.0-2")
	}
}

func TestBumpedVersionIgnoresStaleDebVersionOverride(t *testing.T) {
	manifest := config.UpstreamManifest{
		Name:        "hello",
		Version:     "0.1.0",
		Description: "says hi",
	}

	got, err := bumpedVersion(manifest, config.CLIOverrides{DebVersion: "9.9.9-9"})
	if err != nil {
		t.Fatalf("bumpedVersion: %v", err)
	}
	if got != "0.1.0-2" {
		t.Errorf("bumpedVersion = %q, want the bump of the resolved default version, got %q", "0.1.0-2", got)
	}
}
