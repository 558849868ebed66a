package shell

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/framewright/provision/contracts"
)

type DiskFileSystem struct{}

func NewDiskFileSystem() *DiskFileSystem {
	return &DiskFileSystem{}
}

func (this *DiskFileSystem) Listing(root string) (listing []contracts.FileInfo, err error) {
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		listing = append(listing, FileInfo{path: path, size: info.Size(), mod: info.ModTime(), mode: info.Mode()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return listing, nil
}

func (this *DiskFileSystem) Stat(path string) (contracts.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return FileInfo{path: path, size: info.Size(), mod: info.ModTime(), mode: info.Mode()}, nil
}

func (this *DiskFileSystem) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func (this *DiskFileSystem) Create(path string) (io.WriteCloser, error) {
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return nil, err
	}
	return os.Create(path)
}

func (this *DiskFileSystem) Append(path string) (io.WriteCloser, error) {
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

func (this *DiskFileSystem) Rename(oldPath, newPath string) error {
	return os.Rename(oldPath, newPath)
}

func (this *DiskFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (this *DiskFileSystem) WriteFile(path string, content []byte) error {
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return err
	}
	return os.WriteFile(path, content, 0644)
}

func (this *DiskFileSystem) Delete(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (this *DiskFileSystem) DeleteTree(path string) error {
	return os.RemoveAll(path)
}

// FreeSpace reports available bytes on the volume that holds path,
// walking up to the nearest existing ancestor when the path itself has
// not been created yet.
func (this *DiskFileSystem) FreeSpace(path string) (int64, error) {
	probe := filepath.Clean(path)
	for {
		_, err := os.Stat(probe)
		if err == nil {
			break
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			break
		}
		probe = parent
	}
	var stat unix.Statfs_t
	err := unix.Statfs(probe, &stat)
	if err != nil {
		return 0, err
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}

////////////////////////////////////////

type FileInfo struct {
	path string
	size int64
	mod  time.Time
	mode os.FileMode
}

func (this FileInfo) Path() string       { return this.path }
func (this FileInfo) Size() int64        { return this.size }
func (this FileInfo) ModTime() time.Time { return this.mod }
func (this FileInfo) Mode() os.FileMode  { return this.mode }
