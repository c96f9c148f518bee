// Package fileutil provides small filesystem helpers shared by the engine
// installer, the supervisor and the command layer.
package fileutil

import (
	"os"
)

// Exists reports whether a path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// DirExists reports whether a path exists and is a directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
