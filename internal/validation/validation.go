// Package validation provides input validation and sanitization functions
// to prevent common security vulnerabilities like path traversal, injection attacks,
// and resource exhaustion.
package validation

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/mod/semver"
)

// Security limits to prevent resource exhaustion.
const (
	// MaxFolderNameLength is the maximum allowed rules folder name length.
	MaxFolderNameLength = 100
	// MaxPathLength is the maximum allowed path length.
	MaxPathLength = 4096
)

// VersionLatest is the release alias used when no explicit version is pinned.
const VersionLatest = "latest"

// Common validation errors.
var (
	ErrPathTraversal    = errors.New("path traversal detected")
	ErrInvalidFilename  = errors.New("invalid rules file name")
	ErrInvalidFolder    = errors.New("invalid folder name")
	ErrPathTooLong      = errors.New("path too long")
	ErrInvalidExtension = errors.New("extension not allowed")
	ErrEmptyPath        = errors.New("path cannot be empty")
	ErrOutsideRoot      = errors.New("path resolves outside root")
)

// rulesFileNameRegex matches a bare rules document file name.
var rulesFileNameRegex = regexp.MustCompile(`^[a-zA-Z0-9\-_.]+\.json$`)

// folderNameRegex matches an acceptable rules folder name after trimming.
var folderNameRegex = regexp.MustCompile(`^[a-zA-Z0-9\-_ ]+$`)

// versionTagRegex matches a pinned engine release tag (v<major>.<minor>.<patch>).
var versionTagRegex = regexp.MustCompile(`^v\d+\.\d+\.\d+$`)

// reservedFolderNames are device names Windows refuses as file or folder
// names regardless of case.
var reservedFolderNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {},
	"COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {},
	"LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// argumentStripSet is the set of shell metacharacters removed from strings
// before they are passed as subprocess arguments.
const argumentStripSet = "&|;$<>`\\\"'(){}[]*?!#~\n\r"

// ValidatePath normalizes a path and rejects any parent-traversal segment.
// If root is non-empty, the result must also resolve inside root.
// Returns the cleaned path on success.
func ValidatePath(path, root string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}
	if len(path) > MaxPathLength {
		return "", ErrPathTooLong
	}

	cleanPath := filepath.Clean(path)

	for _, segment := range strings.Split(filepath.ToSlash(cleanPath), "/") {
		if segment == ".." {
			return "", ErrPathTraversal
		}
	}

	if root == "" {
		return cleanPath, nil
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve root: %w", err)
	}

	full := cleanPath
	if !filepath.IsAbs(full) {
		full = filepath.Join(absRoot, full)
	}
	absPath, err := filepath.Abs(full)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}

	return cleanPath, nil
}

// ValidateExtension checks a path's extension against an allow-list,
// case-insensitively. Entries may be given with or without a leading dot.
func ValidateExtension(path string, allowed []string) error {
	ext := strings.ToLower(filepath.Ext(path))
	for _, a := range allowed {
		a = strings.ToLower(a)
		if !strings.HasPrefix(a, ".") {
			a = "." + a
		}
		if ext == a {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidExtension, ext)
}

// SanitizeArgument strips shell metacharacters from a string before it is
// used as a subprocess argument. Empty input yields empty output.
func SanitizeArgument(arg string) string {
	if arg == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(arg))
	for _, r := range arg {
		if strings.ContainsRune(argumentStripSet, r) {
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ValidateVersion accepts the literal "latest" or a v<major>.<minor>.<patch>
// tag. Anything else falls back to "latest"; it never returns an error, so a
// malformed setting can not break the acquisition flow. Callers log the
// fallback via logging.ConfigFallback.
func ValidateVersion(version string) string {
	version = strings.TrimSpace(version)
	if version == VersionLatest {
		return VersionLatest
	}
	if versionTagRegex.MatchString(version) && semver.IsValid(version) {
		return version
	}
	return VersionLatest
}

// ValidateRulesFileName strips any path prefix to a bare filename, rejects
// traversal segments, and requires the remaining name to match
// ^[a-zA-Z0-9\-_.]+\.json$. Returns the bare filename on success.
func ValidateRulesFileName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidFilename)
	}
	if strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %v", ErrInvalidFilename, ErrPathTraversal)
	}

	// Strip any directory prefix, regardless of separator style.
	base := filepath.Base(filepath.FromSlash(name))
	if i := strings.LastIndexAny(base, "/\\"); i >= 0 {
		base = base[i+1:]
	}

	if !rulesFileNameRegex.MatchString(base) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, base)
	}
	return base, nil
}

// ValidateFolderName trims whitespace and validates a rules folder name:
// no separators, no traversal, no reserved device names, no control or
// special characters, at most MaxFolderNameLength characters, and matching
// ^[a-zA-Z0-9\-_ ]+$. Returns the trimmed name on success.
func ValidateFolderName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidFolder)
	}
	if len(trimmed) > MaxFolderNameLength {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidFolder, MaxFolderNameLength)
	}
	if strings.ContainsAny(trimmed, "/\\") {
		return "", fmt.Errorf("%w: path separator not allowed", ErrInvalidFolder)
	}
	if strings.Contains(trimmed, "..") {
		return "", fmt.Errorf("%w: %v", ErrInvalidFolder, ErrPathTraversal)
	}
	if _, reserved := reservedFolderNames[strings.ToUpper(trimmed)]; reserved {
		return "", fmt.Errorf("%w: reserved device name %q", ErrInvalidFolder, trimmed)
	}
	if !folderNameRegex.MatchString(trimmed) {
		return "", fmt.Errorf("%w: %q contains invalid characters", ErrInvalidFolder, trimmed)
	}
	return trimmed, nil
}
