package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/multierr"

	"github.com/shinji-kodama/caserun/internal/casedir"
)

// RemoveIfExists deletes each path below caseDir, whole directories
// included. Glob patterns such as "processor*" are expanded first. Paths
// that do not exist are not an error. It returns the case-relative paths
// that were actually removed, sorted.
//
// All paths are validated before anything is deleted, so a single bad
// entry leaves the case untouched. A path whose parent directory links
// outside the case is rejected; a link that is itself listed is removed
// without touching its target.
func RemoveIfExists(caseDir string, paths ...string) ([]string, error) {
	var targets []string
	for _, p := range paths {
		resolved, err := casedir.Resolve(caseDir, p)
		if err != nil {
			return nil, err
		}
		matches := []string{resolved}
		if casedir.HasGlob(p) {
			if matches, err = filepath.Glob(resolved); err != nil {
				return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
			}
		}
		// Each match is checked on its own: the pattern text can stay in
		// the case while a linked parent directory points elsewhere.
		for _, m := range matches {
			if err := casedir.Contain(caseDir, m, false); err != nil {
				return nil, err
			}
		}
		targets = append(targets, matches...)
	}

	var removed []string
	var errs error
	for _, target := range targets {
		if _, err := os.Lstat(target); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("failed to inspect %s: %w", target, err))
			continue
		}
		if err := os.RemoveAll(target); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to remove %s: %w", target, err))
			continue
		}
		rel, err := filepath.Rel(caseDir, target)
		if err != nil {
			rel = target
		}
		removed = append(removed, filepath.ToSlash(rel))
	}

	sort.Strings(removed)
	return removed, errs
}

// CopyFile copies the case-relative template from to the case-relative
// target to, replacing the target if it exists.
func CopyFile(caseDir, from, to string) error {
	src, err := casedir.Resolve(caseDir, from)
	if err != nil {
		return err
	}
	dst, err := casedir.Resolve(caseDir, to)
	if err != nil {
		return err
	}
	for _, p := range []string{src, dst} {
		if err := casedir.Contain(caseDir, p, true); err != nil {
			return err
		}
	}

	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("template %s: %w", from, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("template %s is not a regular file", from)
	}
	return casedir.CopyRegularFile(src, dst, info.Mode())
}

// TouchFile creates an empty file at the case-relative path, including
// missing parent directories. An existing file keeps its content; only
// its modification time is updated.
func TouchFile(caseDir, path string) error {
	target, err := casedir.Resolve(caseDir, path)
	if err != nil {
		return err
	}
	if err := casedir.Contain(caseDir, target, true); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}

	now := time.Now()
	if err := os.Chtimes(target, now, now); err != nil {
		return fmt.Errorf("failed to update timestamp of %s: %w", path, err)
	}
	return nil
}
