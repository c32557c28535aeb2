// Package security guards the files written by the command-line tools
// (plots, scenarios, databases) against escaping their output directory.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// canonical returns the absolute path with symlinks resolved. For a path
// that does not exist yet, the deepest existing ancestor is resolved and
// the rest is appended, so a symlinked parent cannot redirect a new file.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	for dir := filepath.Dir(abs); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rest, err := filepath.Rel(dir, abs)
			if err != nil {
				return "", err
			}
			return filepath.Join(resolved, rest), nil
		}
		if dir == filepath.Dir(dir) {
			return abs, nil
		}
	}
}

// Within returns an error unless path resolves to dir or somewhere below it.
func Within(path, dir string) error {
	target, err := canonical(path)
	if err != nil {
		return err
	}
	root, err := canonical(dir)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return fmt.Errorf("%s is outside %s: %w", path, dir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s escapes %s", path, dir)
	}
	return nil
}

// ValidateOutputPath accepts path if it lies within one of allowedDirs.
// With no allowedDirs, the working directory and the temp directory are
// allowed.
func ValidateOutputPath(path string, allowedDirs ...string) error {
	if len(allowedDirs) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		allowedDirs = []string{cwd, os.TempDir()}
	}
	for _, dir := range allowedDirs {
		if Within(path, dir) == nil {
			return nil
		}
	}
	return fmt.Errorf("%s must be within one of %v", path, allowedDirs)
}

// OutputFile names a file in dir after an arbitrary label, e.g. a run
// label, and checks the result stays in dir.
func OutputFile(dir, label, ext string) (string, error) {
	path := filepath.Join(dir, SanitizeFilename(label)+ext)
	if err := Within(path, dir); err != nil {
		return "", err
	}
	return path, nil
}

// SanitizeFilename keeps ASCII letters, digits, dot, underscore and dash,
// replaces each other run of characters with one underscore and caps the
// length at 128. An empty result becomes "unknown".
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	pendingUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
			r == '.' || r == '_' || r == '-'
		if !ok {
			if !pendingUnderscore {
				b.WriteByte('_')
				pendingUnderscore = true
			}
			continue
		}
		b.WriteRune(r)
		pendingUnderscore = false
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
