package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cratedeb/cratedeb/cderrors"
)

// relationRe matches one Debian relation clause: a package name, an
// optional version constraint in parentheses, and an optional
// architecture qualifier after a colon. Alternatives joined by "|" are
// parsed clause-by-clause by ParseRelationList.
var relationRe = regexp.MustCompile(`^([a-zA-Z0-9][a-zA-Z0-9+.-]*)(?::([a-zA-Z0-9-]+))?(?:\s*\(\s*(<<|<=|=|>=|>>)\s*([^)]+)\)\s*)?$`)

// ParseRelation parses a single Debian relation clause such as
// "libc6 (>= 2.28)" or "foo:any". Alternatives ("a | b") are not split
// here; ParseRelationList handles those.
func ParseRelation(s string) (DependencyRelation, error) {
	s = strings.TrimSpace(s)
	m := relationRe.FindStringSubmatch(s)
	if m == nil {
		return DependencyRelation{}, &cderrors.ConfigError{Field: "relation", Msg: fmt.Sprintf("malformed relation %q", s)}
	}
	return DependencyRelation{
		Package:       m[1],
		ArchQualifier: m[2],
		VersionOp:     m[3],
		Version:       m[4],
	}, nil
}

// ParseRelationList validates every clause (splitting "a | b" alternatives
// on "|") of every entry in list, returning a ConfigError on the first
// malformed clause. The sentinel "$auto" is accepted verbatim without
// being parsed as a relation.
func ParseRelationList(list []string) error {
	for _, entry := range list {
		if entry == "$auto" {
			continue
		}
		for _, alt := range strings.Split(entry, "|") {
			if _, err := ParseRelation(strings.TrimSpace(alt)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Format renders a DependencyRelation back to Debian relation syntax.
func (r DependencyRelation) Format() string {
	s := r.Package
	if r.ArchQualifier != "" {
		s += ":" + r.ArchQualifier
	}
	if r.VersionOp != "" {
		s += fmt.Sprintf(" (%s %s)", r.VersionOp, r.Version)
	}
	return s
}

// DedupRelations collapses duplicate entries (by exact string) while
// preserving the order of each value's first occurrence, matching
// original_source/util.rs's BTreeSet-backed join but order-preserving as
// spec §4.4 step 5 requires for the generated+user-supplied merge.
func DedupRelations(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, v := range list {
			if seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
