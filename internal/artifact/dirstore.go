package artifact

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// DirStore is a Store that copies collected paths into a per-instance
// subdirectory of a local root. It stands in for a real artifact service in
// CLI runs and tests.
type DirStore struct {
	Root string
}

// NewDirStore returns a store rooted at dir.
func NewDirStore(dir string) *DirStore {
	return &DirStore{Root: dir}
}

// Upload copies every path under the instance's subdirectory. Missing
// source paths are reported but do not stop the remaining copies.
func (s *DirStore) Upload(ctx context.Context, instanceID string, paths []string) error {
	dest := filepath.Join(s.Root, sanitize(instanceID))
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("creating artifact directory: %w", err)
	}

	var result *multierror.Error
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		info, err := os.Stat(path)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("artifact path %q: %w", path, err))
			continue
		}
		target := filepath.Join(dest, filepath.Base(strings.TrimRight(path, "/")))
		if info.IsDir() {
			err = copyTree(path, target)
		} else {
			err = copyFile(path, target, info.Mode())
		}
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("copying %q: %w", path, err))
		}
	}
	return result.ErrorOrNil()
}

// sanitize flattens an instance ID into a single path segment.
func sanitize(id string) string {
	return strings.NewReplacer("/", "_", string(filepath.Separator), "_").Replace(id)
}

func copyFile(src, dest string, mode fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func copyTree(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(path, target, info.Mode())
	})
}
