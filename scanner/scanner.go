// Package scanner walks a local sync root and produces the relative-path
// view the reconciler compares against the remote tree (spec §4.2).
package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Entry is one node found under a scanned root.
type Entry struct {
	MTime int64
	IsDir bool
}

// Scan walks root and returns a map keyed by "/" + path-relative-to-root,
// POSIX-separated, leading slash always present. Hidden entries (any path
// segment starting with ".") are excluded and not descended into.
// Symlinks are followed for mtime but never recursed into as directories
// — they are always reported as files. A root that does not exist returns
// an empty map, not an error; callers are expected to ensure the root
// exists before scanning.
func Scan(root string) (map[string]Entry, error) {
	result := make(map[string]Entry)

	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, err
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relPosix := filepath.ToSlash(rel)

		if isHidden(relPosix) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		isSymlink := d.Type()&fs.ModeSymlink != 0
		isDir := d.IsDir()

		info, statErr := os.Stat(path)
		if statErr != nil {
			// Broken symlink or a race with a concurrent delete: skip it,
			// the next cycle will see whatever state settles.
			return nil
		}

		if isSymlink {
			isDir = false
		}

		result["/"+relPosix] = Entry{
			MTime: info.ModTime().Unix(),
			IsDir: isDir,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func isHidden(relPosix string) bool {
	for _, seg := range strings.Split(relPosix, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
