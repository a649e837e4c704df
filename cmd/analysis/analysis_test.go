package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeSession(t *testing.T, dir, name string, mod time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("0.1,COMMENT,test\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLatestSessionFile(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)

	writeSession(t, dir, "wheel_test_20260314_080000.csv", base)
	want := writeSession(t, dir, "wheel_test_20260314_090000.csv", base.Add(30*time.Minute))
	writeSession(t, dir, "notes.txt", base.Add(time.Hour)) // non-csv ignored

	got, err := latestSessionFile(dir)
	if err != nil {
		t.Fatalf("latestSessionFile: %v", err)
	}
	if got != want {
		t.Errorf("latestSessionFile = %q, want %q", got, want)
	}
}

func TestLatestSessionFileEmptyDir(t *testing.T) {
	if _, err := latestSessionFile(t.TempDir()); err == nil {
		t.Error("expected an error for an empty directory")
	}
}

func TestSessionFilesSorted(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	writeSession(t, dir, "b.csv", now)
	writeSession(t, dir, "a.csv", now)

	files, err := sessionFiles(dir)
	if err != nil {
		t.Fatalf("sessionFiles: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "a.csv" {
		t.Errorf("files = %v", files)
	}
}
