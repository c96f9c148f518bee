package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "present")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if !Exists(file) {
		t.Error("Exists() = false for existing file")
	}
	if !Exists(dir) {
		t.Error("Exists() = false for existing directory")
	}
	if Exists(filepath.Join(dir, "absent")) {
		t.Error("Exists() = true for missing path")
	}
}

func TestDirExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if !DirExists(dir) {
		t.Error("DirExists() = false for directory")
	}
	if DirExists(file) {
		t.Error("DirExists() = true for regular file")
	}
	if DirExists(filepath.Join(dir, "absent")) {
		t.Error("DirExists() = true for missing path")
	}
}
