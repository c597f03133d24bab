package build

import (
	"archive/tar"
	"compress/bzip2"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
	"golang.org/x/xerrors"
)

// Extract ensures b.SourceDir contains the package's extracted source tree,
// downloading and verifying the upstream archive first if necessary. An
// existing tree is reused as-is, including any patches already applied to
// it.
func (b *Ctx) Extract(ctx context.Context) error {
	if _, err := os.Stat(b.SourceDir); err == nil {
		return nil // already extracted
	} else if !os.IsNotExist(err) {
		return err // directory exists, but can’t access it?
	}
	fn := filepath.Join(b.WorkDir, filepath.Base(b.Recipe.Source))
	if err := b.verify(ctx, fn); err != nil {
		return xerrors.Errorf("verify: %v", err)
	}
	// Extract into a temporary directory and rename it into place so that a
	// crash cannot leave a half-extracted tree looking like a source tree.
	tmp, err := os.MkdirTemp(b.WorkDir, "scidist")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)
	if err := extractArchive(fn, tmp); err != nil {
		return err
	}
	return os.Rename(tmp, b.SourceDir)
}

func (b *Ctx) verify(ctx context.Context, fn string) error {
	if _, err := os.Stat(fn); err != nil {
		if !os.IsNotExist(err) {
			return err // file exists, but can’t access it?
		}
		if err := downloadFile(ctx, b.Recipe.Source, fn); err != nil {
			return xerrors.Errorf("download: %v", err)
		}
	}
	log.Printf("verifying %s", fn)
	sum, err := hashFile(fn)
	if err != nil {
		return err
	}
	if got, want := sum, b.Recipe.Hash; got != want {
		return xerrors.Errorf("hash mismatch for %s: got %s, want %s", fn, got, want)
	}
	return nil
}

// Fetch downloads source into workDir unless the archive is already present,
// and returns the archive path along with its SHA256 hex digest. It is used
// by `scidist scaffold` to fill in the hash of a new recipe.
func Fetch(ctx context.Context, source, workDir string) (string, string, error) {
	fn := filepath.Join(workDir, filepath.Base(source))
	if _, err := os.Stat(fn); err != nil {
		if !os.IsNotExist(err) {
			return "", "", err
		}
		if err := downloadFile(ctx, source, fn); err != nil {
			return "", "", xerrors.Errorf("download: %v", err)
		}
	}
	sum, err := hashFile(fn)
	if err != nil {
		return "", "", err
	}
	return fn, sum, nil
}

func hashFile(fn string) (string, error) {
	f, err := os.Open(fn)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

func downloadFile(ctx context.Context, source, fn string) error {
	// We need to disable compression: with some web servers,
	// http.DefaultTransport’s default compression handling results in an
	// unwanted gunzip step, which would break hash verification of .tar.gz
	// downloads.
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DisableCompression = true
	c := &http.Client{Transport: t}
	log.Printf("downloading %s to %s", source, fn)
	req, err := http.NewRequestWithContext(ctx, "GET", source, nil)
	if err != nil {
		return err
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if got, want := resp.StatusCode, http.StatusOK; got != want {
		return xerrors.Errorf("unexpected HTTP status: got %d (%v), want %d", got, resp.Status, want)
	}
	f, err := renameio.TempFile("", fn)
	if err != nil {
		return err
	}
	defer f.Cleanup()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return err
	}
	return f.CloseAtomicallyReplace()
}

// decompressor returns a reader for the archive's compression layer, chosen
// by file name suffix.
func decompressor(fn string, f *os.File) (io.Reader, error) {
	switch {
	case strings.HasSuffix(fn, ".tar.gz") || strings.HasSuffix(fn, ".tgz"):
		return pgzip.NewReader(f)
	case strings.HasSuffix(fn, ".tar.xz"):
		return xz.NewReader(f)
	case strings.HasSuffix(fn, ".tar.bz2"):
		return bzip2.NewReader(f), nil
	case strings.HasSuffix(fn, ".tar.zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	case strings.HasSuffix(fn, ".tar"):
		return f, nil
	}
	return nil, xerrors.Errorf("unsupported archive suffix in %s", filepath.Base(fn))
}

func extractArchive(fn, dir string) error {
	f, err := os.Open(fn)
	if err != nil {
		return err
	}
	defer f.Close()
	r, err := decompressor(fn, f)
	if err != nil {
		return err
	}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return xerrors.Errorf("reading %s: %v", filepath.Base(fn), err)
		}
		// Upstream archives wrap everything in a <name>-<version>/
		// directory; strip it.
		name := stripComponent(hdr.Name)
		if name == "" || !filepath.IsLocal(name) {
			continue
		}
		target := filepath.Join(dir, name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode).Perm()|0700); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode).Perm())
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.Symlink(hdr.Linkname, target); err != nil && !os.IsExist(err) {
				return err
			}
		}
	}
	return nil
}

func stripComponent(name string) string {
	if idx := strings.IndexByte(name, '/'); idx > -1 {
		return name[idx+1:]
	}
	return ""
}
