package persist

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Directory is a local folder the user granted for frame files.
type Directory struct {
	path string
}

// OpenDirectory validates that path is an existing, writable directory.
func OpenDirectory(path string) (*Directory, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve folder '%s': %w", path, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("folder '%s': %w", abs, ErrPermissionDenied)
		}
		return nil, fmt.Errorf("folder '%s': %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("'%s' is not a folder", abs)
	}

	// Probe write access the same way a frame write would.
	probe, err := os.CreateTemp(abs, ".framegrab-*")
	if err != nil {
		return nil, fmt.Errorf("folder '%s': %w", abs, ErrPermissionDenied)
	}
	probe.Close()
	os.Remove(probe.Name())

	return &Directory{path: abs}, nil
}

func (d *Directory) Name() string {
	return filepath.Base(d.path)
}

func (d *Directory) Write(ctx context.Context, name string, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if name != filepath.Base(name) {
		return fmt.Errorf("invalid frame file name '%s'", name)
	}

	target := filepath.Join(d.path, name)
	tmp, err := os.CreateTemp(d.path, "."+name+".*")
	if err != nil {
		return fmt.Errorf("create '%s': %w", target, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return fmt.Errorf("write '%s': %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close '%s': %w", target, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("rename '%s': %w", target, err)
	}
	return nil
}
