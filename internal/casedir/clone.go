package casedir

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Clone copies a tutorial case from src into a new run directory dst.
//
// Only the inputs are copied: the system and constant directories, the
// initial time directory and any other top-level files. Results of an
// earlier run (processor directories, later time directories, logs,
// postProcessing and the old marker file) are skipped, as are symbolic
// links. dst must not exist or must be an empty directory.
func Clone(src, dst string) error {
	if err := Validate(src); err != nil {
		return err
	}

	absSrc, err := filepath.Abs(src)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", src, err)
	}
	absDst, err := filepath.Abs(dst)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dst, err)
	}
	if rel, err := filepath.Rel(absSrc, absDst); err == nil && !escapes(rel) {
		return fmt.Errorf("run directory %s must not be inside the source case %s", dst, src)
	}

	if err := ensureEmptyDir(dst); err != nil {
		return err
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("error walking source case at %s: %w", path, walkErr)
		}

		relPath, err := filepath.Rel(src, path)
		if err != nil {
			return fmt.Errorf("failed to compute relative path for %s: %w", path, err)
		}
		if relPath == "." {
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		// Results only ever appear at the top level of a case.
		if !strings.ContainsRune(relPath, filepath.Separator) && isResult(d) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}

		dstPath := filepath.Join(dst, relPath)
		if d.IsDir() {
			if err := os.MkdirAll(dstPath, info.Mode().Perm()|0o700); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dstPath, err)
			}
			return nil
		}

		if !info.Mode().IsRegular() {
			return nil
		}
		return CopyRegularFile(path, dstPath, info.Mode())
	})
}

// isResult reports whether a top-level entry was produced by running the
// case rather than being one of its inputs.
func isResult(d fs.DirEntry) bool {
	name := d.Name()
	if d.IsDir() {
		if processorRegex.MatchString(name) || name == PostProcessing {
			return true
		}
		if v, ok := ParseTime(name); ok && v != 0 {
			return true
		}
		return false
	}
	return strings.HasPrefix(name, "log.") || filepath.Ext(name) == MarkerExt
}

func ensureEmptyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create run directory %s: %w", dir, err)
			}
			return nil
		}
		return fmt.Errorf("failed to read run directory %s: %w", dir, err)
	}
	if len(entries) > 0 {
		return fmt.Errorf("run directory %s already exists and is not empty", dir)
	}
	return nil
}
