// Package security keeps study file paths inside the directories they belong to.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePathWithinDirectory checks that filePath resolves inside safeDir.
// Symlinks are resolved on both sides; for a path that does not exist yet,
// its deepest existing parent is resolved instead, so a link planted in the
// work tree cannot redirect a case directory elsewhere.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory path: %w", err)
	}

	canonicalPath := resolveExisting(absPath)
	canonicalSafeDir := resolveExisting(absSafeDir)

	relPath, err := filepath.Rel(canonicalSafeDir, canonicalPath)
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) || filepath.IsAbs(relPath) {
		return fmt.Errorf("path traversal detected: %s attempts to escape %s", filePath, safeDir)
	}
	return nil
}

// resolveExisting evaluates symlinks on the longest existing prefix of p
// and re-attaches the missing tail.
func resolveExisting(p string) string {
	for check := p; ; {
		if resolved, err := filepath.EvalSymlinks(check); err == nil {
			rel, _ := filepath.Rel(check, p)
			return filepath.Join(resolved, rel)
		}
		parent := filepath.Dir(check)
		if parent == check {
			return p
		}
		check = parent
	}
}

// CaseDir returns root/caseID after checking the result stays under root.
func CaseDir(root, caseID string) (string, error) {
	if caseID == "" || caseID != filepath.Base(caseID) || caseID == "." || caseID == ".." {
		return "", fmt.Errorf("case id %q is not a single path component", caseID)
	}
	dir := filepath.Join(root, caseID)
	if err := ValidatePathWithinDirectory(dir, root); err != nil {
		return "", err
	}
	return dir, nil
}

// SanitizeFilename makes a safe filename from an arbitrary string such as a
// field name ("Velocity[0]" becomes "Velocity_0"). Characters other than
// ASCII letters, digits, dot, underscore or dash become a single underscore.
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'), r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
