package depends

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cratedeb/cratedeb/assets"
	"github.com/cratedeb/cratedeb/config"
)

func TestSplitAuto(t *testing.T) {
	auto, rest := splitAuto([]string{"$auto", "libfoo1"})
	if !auto {
		t.Fatal("expected $auto to be detected")
	}
	if len(rest) != 1 || rest[0] != "libfoo1" {
		t.Fatalf("rest = %v, want [libfoo1]", rest)
	}

	auto, rest = splitAuto(nil)
	if !auto || rest != nil {
		t.Fatalf("empty Depends should be treated as $auto with no user entries, got auto=%v rest=%v", auto, rest)
	}

	auto, rest = splitAuto([]string{"libfoo1 (>= 1.0)"})
	if auto {
		t.Fatal("no $auto sentinel present, should not be detected")
	}
	if len(rest) != 1 {
		t.Fatalf("rest = %v", rest)
	}
}

func TestParseDpkgStatus(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status")
	content := "Package: libc6\n" +
		"Status: install ok installed\n" +
		"Version: 2.31-13\n" +
		"\n" +
		"Package: libssl3\n" +
		"Version: 3.0.2-0ubuntu1\n" +
		"\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	pkgs, err := parseDpkgStatus(path)
	if err != nil {
		t.Fatalf("parseDpkgStatus: %v", err)
	}
	if len(pkgs) != 2 {
		t.Fatalf("got %d packages, want 2: %+v", len(pkgs), pkgs)
	}
	if pkgs[0].Name != "libc6" || pkgs[0].Version != "2.31-13" {
		t.Errorf("pkgs[0] = %+v", pkgs[0])
	}
	if pkgs[1].Name != "libssl3" || pkgs[1].Version != "3.0.2-0ubuntu1" {
		t.Errorf("pkgs[1] = %+v", pkgs[1])
	}
}

func TestAggregateRelations(t *testing.T) {
	needed := map[string]bool{
		"libc.so.6":  true,
		"libssl.so.3": true,
		"libunowned.so.1": true,
	}
	owners := map[string]sonameOwner{
		"libc.so.6":   {Package: "libc6", Version: "2.31-13"},
		"libssl.so.3": {Package: "libssl3", Version: "3.0.2-0ubuntu1"},
	}

	got := aggregateRelations(needed, owners)
	want := []string{"libc6 (>= 2.31-13)", "libssl3 (>= 3.0.2-0ubuntu1)"}
	if len(got) != len(want) {
		t.Fatalf("aggregateRelations = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("aggregateRelations[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestAggregateRelationsKeepsHighestVersion(t *testing.T) {
	needed := map[string]bool{"liba.so.1": true, "liba.so.2": true}
	owners := map[string]sonameOwner{
		"liba.so.1": {Package: "liba", Version: "1.0"},
		"liba.so.2": {Package: "liba", Version: "2.0"},
	}
	got := aggregateRelations(needed, owners)
	if len(got) != 1 || got[0] != "liba (>= 2.0)" {
		t.Fatalf("aggregateRelations = %v, want [liba (>= 2.0)]", got)
	}
}

func TestVersionLess(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"1.0", "2.0", true},
		{"2.0", "1.0", false},
		{"1.0", "1.0", false},
		{"1.9", "1.10", true},
	}
	for _, c := range cases {
		if got := versionLess(c.a, c.b); got != c.want {
			t.Errorf("versionLess(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestBaseName(t *testing.T) {
	if got := baseName("/usr/lib/x86_64-linux-gnu/libc.so.6"); got != "libc.so.6" {
		t.Errorf("baseName = %q", got)
	}
	if got := baseName("libc.so.6"); got != "libc.so.6" {
		t.Errorf("baseName = %q", got)
	}
}

func TestResolveNoAutoSentinelIsNoop(t *testing.T) {
	cfg := &config.PackageConfig{Depends: []string{"libfoo1 (>= 1.0)"}}
	warnings, err := Resolve(cfg, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	if len(cfg.Depends) != 1 || cfg.Depends[0] != "libfoo1 (>= 1.0)" {
		t.Errorf("Depends mutated when no $auto sentinel present: %v", cfg.Depends)
	}
}

func TestResolveDegradesWhenNoDpkgDatabase(t *testing.T) {
	orig := dpkgStatusPath
	dpkgStatusPath = "/nonexistent/status/path/for/testing"
	defer func() { dpkgStatusPath = orig }()

	cfg := &config.PackageConfig{Depends: []string{"$auto", "libmanual1"}}
	warnings, err := Resolve(cfg, assets.AssetList{})
	if err != nil {
		t.Fatalf("Resolve should degrade gracefully, not error: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected exactly one warning about missing introspection, got %v", warnings)
	}
	if len(cfg.Depends) != 1 || cfg.Depends[0] != "libmanual1" {
		t.Errorf("Depends = %v, want the user-supplied entries preserved", cfg.Depends)
	}
}
