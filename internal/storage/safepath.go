package storage

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrBadPath is returned for keys that escape the storage root.
var ErrBadPath = errors.New("bad_path")

// EnsureDir creates dir and any missing parents. Existing directories are fine.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure dir %s: %w", dir, err)
	}
	return nil
}

// SafeJoin resolves key against root and returns the absolute path.
// The result always has root plus a separator as its prefix; anything else
// (traversal, absolute paths outside root, the root itself) is ErrBadPath.
func SafeJoin(root, key string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: root: %v", ErrBadPath, err)
	}
	joined, err := joinUnder(filepath.ToSlash(absRoot), key)
	if err != nil {
		return "", err
	}
	return filepath.FromSlash(joined), nil
}

// CleanKey normalizes an object key with the same rules as SafeJoin and
// returns it relative to the store root.
func CleanKey(key string) (string, error) {
	const virtualRoot = "/store"
	joined, err := joinUnder(virtualRoot, key)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(joined, virtualRoot+"/"), nil
}

func joinUnder(root, key string) (string, error) {
	if strings.ContainsRune(key, 0) {
		return "", ErrBadPath
	}
	k := strings.ReplaceAll(key, `\`, "/")
	for strings.HasPrefix(k, "./") {
		k = k[2:]
	}
	k = path.Clean(k)

	var resolved string
	if path.IsAbs(k) {
		resolved = k
	} else {
		resolved = path.Join(root, k)
	}

	prefix := root
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	if resolved == root || !strings.HasPrefix(resolved, prefix) {
		return "", ErrBadPath
	}
	return resolved, nil
}
