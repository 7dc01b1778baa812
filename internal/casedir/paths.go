package casedir

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideCase is returned when a step path would resolve outside the
// case directory.
var ErrOutsideCase = errors.New("path escapes the case directory")

// Resolve joins a case-relative path onto caseDir and verifies that the
// result stays inside the case. Absolute paths are rejected, as is the
// case directory itself. The check is lexical; callers that touch the
// filesystem follow up with Contain.
func Resolve(caseDir, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, `\`) {
		return "", fmt.Errorf("%q must be relative to the case directory: %w", rel, ErrOutsideCase)
	}

	joined := filepath.Join(caseDir, filepath.FromSlash(rel))
	r, err := filepath.Rel(caseDir, joined)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", rel, err)
	}
	if r == "." {
		return "", fmt.Errorf("%q refers to the case directory itself: %w", rel, ErrOutsideCase)
	}
	if escapes(r) {
		return "", fmt.Errorf("%q: %w", rel, ErrOutsideCase)
	}
	return joined, nil
}

// Contain verifies that path, a location below caseDir, still lies inside
// the case once symbolic links are resolved. Resolve only checks the path
// text; a linked directory such as constant -> ../shared would otherwise
// let removals and writes reach files outside the case.
//
// Components that do not exist yet are checked lexically. With followLeaf
// false the last element is not resolved, which is what removal needs:
// deleting a link never touches its target.
func Contain(caseDir, path string, followLeaf bool) error {
	root, err := filepath.EvalSymlinks(caseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve case directory %s: %w", caseDir, err)
	}

	dir, leaf := path, ""
	if !followLeaf {
		dir, leaf = filepath.Dir(path), filepath.Base(path)
	}

	// Walk up to the deepest component that exists and resolve that one.
	existing := dir
	var rest []string
	var resolved string
	for {
		found, err := filepath.EvalSymlinks(existing)
		if err == nil {
			resolved = filepath.Join(append([]string{found}, rest...)...)
			break
		}
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to resolve %s: %w", existing, err)
		}
		// A dangling link cannot be checked; refuse to write through it.
		if _, lerr := os.Lstat(existing); lerr == nil {
			return fmt.Errorf("%s is a dangling symbolic link: %w", existing, ErrOutsideCase)
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		rest = append([]string{filepath.Base(existing)}, rest...)
		existing = parent
	}
	if leaf != "" {
		resolved = filepath.Join(resolved, leaf)
	}

	r, err := filepath.Rel(root, resolved)
	if err != nil || escapes(r) {
		return fmt.Errorf("%s resolves to %s outside the case: %w", path, resolved, ErrOutsideCase)
	}
	return nil
}

// escapes reports whether a path produced by filepath.Rel leaves its base.
// A name that merely starts with two dots, like "..run", does not.
func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// HasGlob reports whether the pattern contains glob metacharacters.
func HasGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

// CopyRegularFile copies src to dst with the given permissions, replacing
// dst if it exists. Parent directories of dst are created as needed.
func CopyRegularFile(src, dst string, mode os.FileMode) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", src, err)
	}
	defer func() { _ = srcFile.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dst, err)
	}

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", dst, err)
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		_ = dstFile.Close()
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	if err := dstFile.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return nil
}
