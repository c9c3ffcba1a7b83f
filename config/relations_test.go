package config

import "testing"

func TestParseRelation(t *testing.T) {
	cases := []struct {
		in   string
		want DependencyRelation
	}{
		{"libc6", DependencyRelation{Package: "libc6"}},
		{"libc6 (>= 2.28)", DependencyRelation{Package: "libc6", VersionOp: ">=", Version: "2.28"}},
		{"foo:any", DependencyRelation{Package: "foo", ArchQualifier: "any"}},
		{"libssl1.1 (<< 1.1.1)", DependencyRelation{Package: "libssl1.1", VersionOp: "<<", Version: "1.1.1"}},
	}
	for _, c := range cases {
		got, err := ParseRelation(c.in)
		if err != nil {
			t.Fatalf("ParseRelation(%q) error: %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("ParseRelation(%q) = %+v, want %+v", c.in, got, c.want)
		}
	}
}

func TestParseRelationMalformed(t *testing.T) {
	if _, err := ParseRelation("!!!not a relation"); err == nil {
		t.Fatal("expected an error for a malformed relation")
	}
}

func TestParseRelationListAcceptsAutoSentinel(t *testing.T) {
	if err := ParseRelationList([]string{"$auto", "libc6 (>= 2.28)"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseRelationListSplitsAlternatives(t *testing.T) {
	if err := ParseRelationList([]string{"libssl1.1 | libssl3"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDependencyRelationFormat(t *testing.T) {
	r := DependencyRelation{Package: "libc6", VersionOp: ">=", Version: "2.28"}
	if got, want := r.Format(), "libc6 (>= 2.28)"; got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}

	r2 := DependencyRelation{Package: "foo", ArchQualifier: "any"}
	if got, want := r2.Format(), "foo:any"; got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestDedupRelationsPreservesFirstOccurrenceOrder(t *testing.T) {
	user := []string{"libc6 (>= 2.28)", "libssl3"}
	generated := []string{"libssl3", "libfoo1"}

	got := DedupRelations(user, generated)
	want := []string{"libc6 (>= 2.28)", "libssl3", "libfoo1"}

	if len(got) != len(want) {
		t.Fatalf("DedupRelations = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("DedupRelations[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
