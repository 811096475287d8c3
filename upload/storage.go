package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Object is a file handed to a Storage.
type Object struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Storage persists accepted uploads and returns where they were written.
// Remove deletes a previously written object by name; removing a missing
// object is not an error.
type Storage interface {
	Write(ctx context.Context, obj Object) (string, error)
	Remove(ctx context.Context, name string) error
}

// DiskStorage writes uploads into a local directory.
type DiskStorage struct {
	dir string
}

var _ Storage = (*DiskStorage)(nil)

// NewDiskStorage returns a DiskStorage rooted at dir. The directory is
// created on first write if missing.
func NewDiskStorage(dir string) *DiskStorage {
	return &DiskStorage{dir: dir}
}

// Dir returns the destination directory.
func (d *DiskStorage) Dir() string { return d.dir }

// Write creates dir/obj.Name exclusively; an existing file with the same
// name is an error rather than being overwritten.
func (d *DiskStorage) Write(ctx context.Context, obj Object) (string, error) {
	if !validName(obj.Name) {
		return "", fmt.Errorf("invalid object name %q", obj.Name)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating upload directory: %w", err)
	}
	path := filepath.Join(d.dir, obj.Name)
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", obj.Name, err)
	}
	_, copyErr := io.Copy(dst, obj.Body)
	closeErr := dst.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("writing %s: %w", obj.Name, err)
	}
	return path, nil
}

func (d *DiskStorage) Remove(_ context.Context, name string) error {
	if !validName(name) {
		return fmt.Errorf("invalid object name %q", name)
	}
	err := os.Remove(filepath.Join(d.dir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", name, err)
	}
	return nil
}

func validName(name string) bool {
	return name != "" && name == filepath.Base(name) && name != "." && name != ".."
}
