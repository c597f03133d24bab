package main

import (
	"context"
	"flag"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio"
	toml "github.com/pelletier/go-toml/v2"
	"golang.org/x/xerrors"

	"github.com/scidist/scidist/internal/build"
	"github.com/scidist/scidist/internal/env"
	"github.com/scidist/scidist/internal/recipe"
)

const scaffoldHelp = `scidist scaffold [-flags] <url>

Create a recipe for an upstream source URL: download the archive, record its
SHA256 hash, and write packages/<name>/build.toml with the detected name and
version. Configure flags and cleanup targets are left for the author to fill
in.

Example:
  % scidist scaffold https://github.com/JohnCremona/eclib/releases/download/v20231212/eclib-20231212.tar.bz2
`

var archiveSuffixes = []string{".tar.gz", ".tgz", ".tar.xz", ".tar.zst", ".tar.bz2", ".tar"}

func trimArchiveSuffix(fn string) string {
	for _, suffix := range archiveSuffixes {
		if strings.HasSuffix(fn, suffix) {
			return strings.TrimSuffix(fn, suffix)
		}
	}
	return fn
}

func nameFromURL(parsed *url.URL) (name string, version string, _ error) {
	if parsed.Host == "github.com" {
		// e.g. /JohnCremona/eclib/archive/v20231212.tar.gz or
		// /coin-or/Cbc/archive/refs/tags/releases/2.10.12.tar.gz
		parts := strings.Split(strings.TrimPrefix(parsed.Path, "/"), "/")
		if len(parts) >= 4 && parts[2] == "archive" {
			name = strings.ToLower(parts[1])
			// The tag is always the last segment; any refs/tags/ or
			// release-directory segments in between carry no version.
			version = trimArchiveSuffix(strings.TrimPrefix(parts[len(parts)-1], "v"))
			return name, version, nil
		}
	}
	pkg := trimArchiveSuffix(filepath.Base(parsed.Path))
	pkg = strings.ReplaceAll(pkg, "_", "-")
	idx := strings.LastIndex(pkg, "-")
	if idx == -1 {
		return "", "", xerrors.Errorf("could not segment %q into <name>-<version>", pkg)
	}
	name = strings.ToLower(pkg[:idx])
	version = pkg[idx+1:]
	return name, version, nil
}

func scaffold(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("scaffold", flag.ExitOnError)
	var (
		name    = fset.String("name", "", "If non-empty and specified with -version, overrides the detected package name")
		version = fset.String("version", "", "If non-empty and specified with -name, overrides the detected package version")
	)
	fset.Usage = usage(fset, scaffoldHelp)
	fset.Parse(args)
	if fset.NArg() != 1 {
		return xerrors.Errorf("syntax: scaffold <url>")
	}
	u := fset.Arg(0)
	parsed, err := url.Parse(u)
	if err != nil {
		return xerrors.Errorf("could not parse URL %q: %v", u, err)
	}

	if *name == "" || *version == "" {
		var err error
		*name, *version, err = nameFromURL(parsed)
		if err != nil {
			return xerrors.Errorf("nameFromURL: %w", err)
		}
	}

	root := env.FindRoot()
	workDir := root.BuildDir(*name)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return err
	}
	_, hash, err := build.Fetch(ctx, u, workDir)
	if err != nil {
		return err
	}

	r := recipe.Recipe{
		Name:    *name,
		Version: *version,
		Source:  u,
		Hash:    hash,
	}
	c, err := toml.Marshal(r)
	if err != nil {
		return err
	}
	fn := root.RecipePath(*name)
	if err := os.MkdirAll(filepath.Dir(fn), 0755); err != nil {
		return err
	}
	if err := renameio.WriteFile(fn, c, 0644); err != nil {
		return err
	}
	log.Printf("scaffolded %s", fn)
	return nil
}
