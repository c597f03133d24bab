package manifest

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestRoundTrip(t *testing.T) {
	prefix := t.TempDir()
	want := &Manifest{
		Name:    "eclib",
		Version: "20231212",
		Prefix:  prefix,
		BuiltAt: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
		Files: []string{
			prefix + "/lib/libec.so.8",
			prefix + "/include/eclib",
		},
	}
	if err := want.Write(prefix); err != nil {
		t.Fatal(err)
	}
	got, err := Read(prefix, "eclib")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Read: diff (-want +got):\n%s", diff)
	}
}

func TestReadNotFound(t *testing.T) {
	if _, err := Read(t.TempDir(), "nonexistent"); err != ErrNotFound {
		t.Fatalf("Read: got %v, want ErrNotFound", err)
	}
}

func TestWriteReplaces(t *testing.T) {
	prefix := t.TempDir()
	old := &Manifest{Name: "cbc", Version: "2.10.8", Prefix: prefix}
	if err := old.Write(prefix); err != nil {
		t.Fatal(err)
	}
	updated := &Manifest{Name: "cbc", Version: "2.10.12", Prefix: prefix}
	if err := updated.Write(prefix); err != nil {
		t.Fatal(err)
	}
	got, err := Read(prefix, "cbc")
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != "2.10.12" {
		t.Fatalf("Read: version = %q, want %q", got.Version, "2.10.12")
	}
}
