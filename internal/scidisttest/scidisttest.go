// Package scidisttest provides helpers for tests which need a fake
// distribution tree or fake build tools.
package scidisttest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteFile writes contents to path, creating parent directories, and fails
// the test on error.
func WriteFile(t testing.TB, path, contents string, mode os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(contents), mode); err != nil {
		t.Fatal(err)
	}
}

// FakeTool writes an executable shell script to path which appends its argv
// to logPath (one invocation per line) and exits with exitCode. Build tests
// substitute it for configure or make.
func FakeTool(t testing.TB, path, logPath string, exitCode int) {
	t.Helper()
	script := fmt.Sprintf("#!/bin/sh\necho \"$0 $*\" >> %q\nexit %d\n", logPath, exitCode)
	WriteFile(t, path, script, 0755)
}

// Invocations reads the log a FakeTool wrote, one argv per entry. A missing
// log means the tool was never invoked.
func Invocations(t testing.TB, logPath string) []string {
	t.Helper()
	c, err := os.ReadFile(logPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSpace(string(c)), "\n")
}
