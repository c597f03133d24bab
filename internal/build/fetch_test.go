package build

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/pgzip"

	"github.com/scidist/scidist/internal/recipe"
)

// writeSourceArchive writes a tarball (optionally gzipped, chosen by the
// name's suffix) laid out like an upstream release: everything below a
// <name>-<version>/ directory.
func writeSourceArchive(t *testing.T, fn string) string {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	files := []struct {
		name     string
		mode     int64
		typeflag byte
		contents string
		linkname string
	}{
		{name: "eclib-20231212/", mode: 0755, typeflag: tar.TypeDir},
		{name: "eclib-20231212/configure", mode: 0755, typeflag: tar.TypeReg, contents: "#!/bin/sh\n"},
		{name: "eclib-20231212/src/curve.cc", mode: 0644, typeflag: tar.TypeReg, contents: "// curve\n"},
		{name: "eclib-20231212/configure.link", mode: 0777, typeflag: tar.TypeSymlink, linkname: "configure"},
	}
	for _, f := range files {
		hdr := &tar.Header{
			Name:     f.name,
			Mode:     f.mode,
			Typeflag: f.typeflag,
			Linkname: f.linkname,
			Size:     int64(len(f.contents)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(f.contents)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	out, err := os.Create(fn)
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()
	if strings.HasSuffix(fn, ".tar.gz") {
		gz := pgzip.NewWriter(out)
		if _, err := gz.Write(buf.Bytes()); err != nil {
			t.Fatal(err)
		}
		if err := gz.Close(); err != nil {
			t.Fatal(err)
		}
	} else {
		if _, err := out.Write(buf.Bytes()); err != nil {
			t.Fatal(err)
		}
	}
	if err := out.Close(); err != nil {
		t.Fatal(err)
	}

	c, err := os.ReadFile(fn)
	if err != nil {
		t.Fatal(err)
	}
	return fmt.Sprintf("%x", sha256.Sum256(c))
}

func extractCtx(t *testing.T, archive string) *Ctx {
	t.Helper()
	workDir := t.TempDir()
	fn := filepath.Join(workDir, archive)
	hash := writeSourceArchive(t, fn)
	r := &recipe.Recipe{
		Name:    "eclib",
		Version: "20231212",
		Source:  "https://example.net/" + archive,
		Hash:    hash,
	}
	return NewCtx(r, workDir, filepath.Join(workDir, "local"), Options{GOOS: "linux"})
}

func TestExtract(t *testing.T) {
	for _, archive := range []string{"eclib-20231212.tar", "eclib-20231212.tar.gz"} {
		t.Run(archive, func(t *testing.T) {
			b := extractCtx(t, archive)
			if err := b.Extract(context.Background()); err != nil {
				t.Fatalf("Extract: %v", err)
			}
			// The leading eclib-20231212/ component must have been stripped.
			fi, err := os.Stat(filepath.Join(b.SourceDir, "configure"))
			if err != nil {
				t.Fatal(err)
			}
			if got, want := fi.Mode().Perm(), os.FileMode(0755); got != want {
				t.Errorf("configure mode = %v, want %v", got, want)
			}
			c, err := os.ReadFile(filepath.Join(b.SourceDir, "src", "curve.cc"))
			if err != nil {
				t.Fatal(err)
			}
			if string(c) != "// curve\n" {
				t.Errorf("curve.cc contents = %q", c)
			}
			if _, err := os.Lstat(filepath.Join(b.SourceDir, "configure.link")); err != nil {
				t.Errorf("symlink not extracted: %v", err)
			}
		})
	}
}

func TestExtractReusesTree(t *testing.T) {
	b := extractCtx(t, "eclib-20231212.tar")
	if err := b.Extract(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Mutate the tree (as the patch stage would), then extract again: the
	// existing tree must be reused, not overwritten.
	marker := filepath.Join(b.SourceDir, "patched")
	if err := os.WriteFile(marker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := b.Extract(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Errorf("source tree was re-extracted: %v", err)
	}
}

func TestExtractHashMismatch(t *testing.T) {
	b := extractCtx(t, "eclib-20231212.tar")
	b.Recipe.Hash = strings.Repeat("0", 64)
	err := b.Extract(context.Background())
	if err == nil || !strings.Contains(err.Error(), "hash mismatch") {
		t.Fatalf("Extract: got %v, want hash mismatch", err)
	}
	if _, err := os.Stat(b.SourceDir); !os.IsNotExist(err) {
		t.Errorf("source tree exists despite hash mismatch")
	}
}

func TestDecompressorBzip2(t *testing.T) {
	// eclib’s GitHub releases ship .tar.bz2 archives.
	if _, err := decompressor("eclib-20231212.tar.bz2", nil); err != nil {
		t.Fatalf("decompressor: %v", err)
	}
}

func TestDecompressorUnsupported(t *testing.T) {
	if _, err := decompressor("eclib-20231212.tar.lz", nil); err == nil {
		t.Fatal("decompressor accepted .tar.lz")
	}
}

func TestFetch(t *testing.T) {
	workDir := t.TempDir()
	want := writeSourceArchive(t, filepath.Join(workDir, "eclib-20231212.tar"))
	// The archive is already present, so no download happens.
	fn, got, err := Fetch(context.Background(), "https://example.net/eclib-20231212.tar", workDir)
	if err != nil {
		t.Fatal(err)
	}
	if fn != filepath.Join(workDir, "eclib-20231212.tar") {
		t.Errorf("Fetch path = %q", fn)
	}
	if got != want {
		t.Errorf("Fetch hash = %q, want %q", got, want)
	}
}
