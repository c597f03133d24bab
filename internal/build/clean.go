package build

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/scidist/scidist/internal/manifest"
	"github.com/scidist/scidist/internal/recipe"
)

// clean removes artifacts a previous version of the package installed under
// the prefix, so that files of an older, differently laid out build cannot
// shadow the new ones. It runs strictly before configure.
func (b *Ctx) clean(ctx context.Context, env []string, buildLog io.Writer) error {
	ts := b.Recipe.Targets(b.Prefix, b.Opts.GOOS)
	ts.Globs = append(ts.Globs, manifest.Path(b.Prefix, b.Pkg))
	RemoveTargets(ts)
	return nil
}

// RemoveTargets deletes each target that exists. Absence is fine, and
// deletion failures are warnings rather than errors: they must never block
// the rebuild which would fix the version skew. Shared with `scidist clean`.
func RemoveTargets(ts recipe.TargetSet) {
	for _, pattern := range ts.Globs {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			log.Printf("cleanup: %v", err)
			continue
		}
		for _, fn := range matches {
			log.Printf("removing stale %s", fn)
			if err := os.Remove(fn); err != nil && !os.IsNotExist(err) {
				log.Printf("cleanup: %v", err)
			}
		}
	}
	for _, dir := range ts.Dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}
		log.Printf("removing stale %s", dir)
		if err := os.RemoveAll(dir); err != nil {
			log.Printf("cleanup: %v", err)
		}
	}
}
