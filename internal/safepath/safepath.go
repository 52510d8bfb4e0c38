// Package safepath confines file writes to a root directory.
package safepath

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Join resolves name under root. name must be relative, must not climb out
// of root, and no existing component between root and the target may be a
// symlink. root itself may be reached through symlinks.
func Join(root, name string) (string, error) {
	if strings.TrimSpace(root) == "" {
		return "", errors.New("safety root is required")
	}
	if strings.TrimSpace(name) == "" {
		return "", errors.New("target name is required")
	}
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("target must be relative to the root: %s", name)
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root %s: %w", root, err)
	}
	rootReal, err := filepath.EvalSymlinks(rootAbs)
	if err != nil {
		return "", fmt.Errorf("resolve root symlinks %s: %w", root, err)
	}

	rel := filepath.Clean(name)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path is outside safety root: %s", name)
	}

	target := filepath.Join(rootReal, rel)
	if err := rejectSymlinks(rootReal, rel); err != nil {
		return "", err
	}
	return target, nil
}

// rejectSymlinks walks each component of rel below root.
func rejectSymlinks(root, rel string) error {
	current := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		current = filepath.Join(current, part)
		info, err := os.Lstat(current)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("path contains symlink component: %s", current)
		}
	}
	return nil
}

// SanitizeName maps name onto a portable file name, replacing anything
// outside [A-Za-z0-9._-] with '-'.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	out := strings.Trim(b.String(), ".-")
	if out == "" {
		return "output"
	}
	return out
}
