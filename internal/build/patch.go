package build

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// PatchError reports a textual patch which could not be applied to the
// source tree.
type PatchError struct {
	File   string
	Reason string
}

func (e *PatchError) Error() string { return fmt.Sprintf("patch %s: %s", e.File, e.Reason) }

// patch applies the recipe's ordered textual substitutions to the extracted
// source tree, replacing every occurrence of the search text. Search text
// which does not appear in the file is an error unless the patch declares
// missing_ok. Reapplying a patch to an already patched tree therefore fails
// loudly, too, instead of silently building an unpatched-looking tree.
func (b *Ctx) patch(ctx context.Context, env []string, buildLog io.Writer) error {
	for _, p := range b.Recipe.Patches {
		fn := filepath.Join(b.SourceDir, p.File)
		c, err := os.ReadFile(fn)
		if err != nil {
			if os.IsNotExist(err) {
				return &PatchError{File: p.File, Reason: "file does not exist"}
			}
			return &PatchError{File: p.File, Reason: err.Error()}
		}
		n := bytes.Count(c, []byte(p.Search))
		if n == 0 {
			if p.MissingOK {
				log.Printf("patch %s: %q not present, skipping", p.File, p.Search)
				continue
			}
			return &PatchError{
				File:   p.File,
				Reason: fmt.Sprintf("%q not found (tree already patched?)", p.Search),
			}
		}
		fi, err := os.Stat(fn)
		if err != nil {
			return &PatchError{File: p.File, Reason: err.Error()}
		}
		c = bytes.ReplaceAll(c, []byte(p.Search), []byte(p.Replace))
		if err := os.WriteFile(fn, c, fi.Mode().Perm()); err != nil {
			return &PatchError{File: p.File, Reason: err.Error()}
		}
		log.Printf("patched %s (%d occurrences of %q)", p.File, n, p.Search)
	}
	return nil
}
