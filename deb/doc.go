// Package deb implements the Control Generator and Archive Writer (spec
// §4.5, §4.6): given a resolved package description and a planned asset
// list, it emits the control archive (control, md5sums, conffiles,
// triggers, maintainer scripts) and the data archive (the planned assets
// plus the synthesized copyright file and gzipped changelog), then
// composes both with the debian-binary member into the final ar-format
// .deb file.
//
// Every archive member is written deterministically: root ownership,
// zero mtimes, and lexicographic entry order, so that two runs over the
// same inputs produce byte-identical output.
package deb
