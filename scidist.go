// Package scidist provides the shared vocabulary of the scidist build tool:
// artifact naming and version comparison.
package scidist

import (
	"path/filepath"
	"strings"

	"golang.org/x/mod/semver"
)

// ArtifactVersion describes one built version of a package, as encoded in
// per-package artifact file names, e.g. the build log build-2.10.12.log or
// the extracted source tree eclib-20231212.
type ArtifactVersion struct {
	Pkg      string
	Upstream string
}

func (av ArtifactVersion) String() string {
	if av.Pkg == "" {
		return av.Upstream
	}
	return av.Pkg + "-" + av.Upstream
}

// ParseVersion constructs an ArtifactVersion from filename, e.g.
// eclib-20231212 (a source tree), which parses into
// ArtifactVersion{Pkg: "eclib", Upstream: "20231212"}, or build-2.10.12.log
// (a build log), which carries no package name.
func ParseVersion(filename string) ArtifactVersion {
	base := strings.TrimSuffix(filepath.Base(filename), ".log")
	idx := strings.LastIndexByte(base, '-')
	if idx == -1 {
		return ArtifactVersion{Upstream: base}
	}
	pkg, upstream := base[:idx], base[idx+1:]
	if pkg == "build" {
		pkg = "" // build-<version>.log files carry no package name
	}
	return ArtifactVersion{Pkg: pkg, Upstream: upstream}
}

// maybeV makes version strings palatable to the semver package, which
// insists on a leading v.
func maybeV(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// CompareVersions compares two upstream version strings. Versions which both
// parse as (possibly v-less) semver are compared semantically. Everything
// else falls back to a string comparison, which is better than mis-applying
// semver.Compare to date-style versions like eclib's 20231212.
func CompareVersions(a, b string) int {
	if va, vb := maybeV(a), maybeV(b); semver.IsValid(va) && semver.IsValid(vb) {
		return semver.Compare(va, vb)
	}
	return strings.Compare(a, b)
}

// VersionLess reports whether the version encoded in filenameA is less than
// the one encoded in filenameB. This can be used with sort.Slice.
func VersionLess(filenameA, filenameB string) bool {
	return CompareVersions(ParseVersion(filenameA).Upstream, ParseVersion(filenameB).Upstream) < 0
}
