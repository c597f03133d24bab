package build

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/scidist/scidist/internal/recipe"
	"github.com/scidist/scidist/internal/scidisttest"
)

func TestCleanRemovesStaleArtifacts(t *testing.T) {
	workDir := t.TempDir()
	prefix := filepath.Join(workDir, "local")
	r := &recipe.Recipe{
		Name:    "eclib",
		Version: "20231212",
		Source:  "https://example.net/eclib-20231212.tar.gz",
		Clean: recipe.Clean{
			LibStems:    []string{"libec"},
			IncludeDirs: []string{"eclib"},
			PkgConfig:   []string{"eclib"},
		},
	}
	stale := []string{
		filepath.Join(prefix, "lib", "libec.a"),
		filepath.Join(prefix, "lib", "libec.so"),
		filepath.Join(prefix, "lib", "libec.so.8"),
		filepath.Join(prefix, "lib", "pkgconfig", "eclib.pc"),
		filepath.Join(prefix, "include", "eclib", "curve.h"),
	}
	unrelated := []string{
		filepath.Join(prefix, "lib", "libntl.so.44"),
		filepath.Join(prefix, "lib", "pkgconfig", "ntl.pc"),
		filepath.Join(prefix, "include", "NTL", "ZZ.h"),
	}
	for _, fn := range append(append([]string{}, stale...), unrelated...) {
		scidisttest.WriteFile(t, fn, "stale\n", 0644)
	}

	b := NewCtx(r, workDir, prefix, Options{GOOS: "linux"})
	if err := b.clean(context.Background(), nil, ioutil.Discard); err != nil {
		t.Fatal(err)
	}

	for _, fn := range stale {
		if _, err := os.Stat(fn); !os.IsNotExist(err) {
			t.Errorf("%s still present after clean", fn)
		}
	}
	for _, fn := range unrelated {
		if _, err := os.Stat(fn); err != nil {
			t.Errorf("unrelated file %s: %v", fn, err)
		}
	}
}

func TestRemoveTargetsBadPattern(t *testing.T) {
	// A malformed glob pattern is logged as a warning; cleanup must never
	// block the rebuild.
	RemoveTargets(recipe.TargetSet{Globs: []string{"[broken"}})
}

func TestCleanEmptyPrefix(t *testing.T) {
	workDir := t.TempDir()
	r := &recipe.Recipe{
		Name:    "cbc",
		Version: "2.10.12",
		Source:  "https://example.net/cbc-2.10.12.tar.gz",
		Clean:   recipe.Clean{LibStems: []string{"libCbc"}},
	}
	b := NewCtx(r, workDir, filepath.Join(workDir, "local"), Options{GOOS: "linux"})
	// Nothing installed yet: absence of every target is not an error.
	if err := b.clean(context.Background(), nil, ioutil.Discard); err != nil {
		t.Fatal(err)
	}
}
