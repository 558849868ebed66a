package shell

import (
	"bytes"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/framewright/provision/contracts"
)

// InMemoryFileSystem backs unit tests; it implements the full
// contracts.FileSystem surface over a map.
type InMemoryFileSystem struct {
	fileSystem map[string]*memoryFile
	Free       int64
}

func NewInMemoryFileSystem() *InMemoryFileSystem {
	return &InMemoryFileSystem{
		fileSystem: make(map[string]*memoryFile),
		Free:       1 << 40,
	}
}

func (this *InMemoryFileSystem) Stat(path string) (contracts.FileInfo, error) {
	target, found := this.fileSystem[path]
	if !found {
		return nil, os.ErrNotExist
	}
	return target, nil
}

func (this *InMemoryFileSystem) Listing(root string) (files []contracts.FileInfo, err error) {
	for path, file := range this.fileSystem {
		if strings.HasPrefix(path, root) {
			files = append(files, file)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path() < files[j].Path() })
	return files, nil
}

func (this *InMemoryFileSystem) Open(path string) (io.ReadCloser, error) {
	target, found := this.fileSystem[path]
	if !found {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(target.contents)), nil
}

func (this *InMemoryFileSystem) Create(path string) (io.WriteCloser, error) {
	_ = this.WriteFile(path, nil)
	return this.fileSystem[path], nil
}

func (this *InMemoryFileSystem) Append(path string) (io.WriteCloser, error) {
	target, found := this.fileSystem[path]
	if !found {
		return this.Create(path)
	}
	return target, nil
}

func (this *InMemoryFileSystem) Rename(oldPath, newPath string) error {
	target, found := this.fileSystem[oldPath]
	if !found {
		return os.ErrNotExist
	}
	target.path = newPath
	this.fileSystem[newPath] = target
	delete(this.fileSystem, oldPath)
	return nil
}

func (this *InMemoryFileSystem) ReadFile(path string) ([]byte, error) {
	target, found := this.fileSystem[path]
	if !found {
		return nil, os.ErrNotExist
	}
	return target.contents, nil
}

func (this *InMemoryFileSystem) WriteFile(path string, content []byte) error {
	this.fileSystem[path] = &memoryFile{
		path:     path,
		contents: content,
		mod:      InMemoryModTime,
	}
	return nil
}

func (this *InMemoryFileSystem) Delete(path string) error {
	delete(this.fileSystem, path)
	return nil
}

func (this *InMemoryFileSystem) DeleteTree(path string) error {
	for candidate := range this.fileSystem {
		if candidate == path || strings.HasPrefix(candidate, path+"/") {
			delete(this.fileSystem, candidate)
		}
	}
	return nil
}

func (this *InMemoryFileSystem) FreeSpace(path string) (int64, error) {
	return this.Free, nil
}

/////////////////////////////////////////////////

type memoryFile struct {
	path     string
	contents []byte
	mod      time.Time
}

var InMemoryModTime = time.Now()

func (this *memoryFile) Path() string       { return this.path }
func (this *memoryFile) Size() int64        { return int64(len(this.contents)) }
func (this *memoryFile) ModTime() time.Time { return this.mod }
func (this *memoryFile) Mode() os.FileMode  { return 0644 }

func (this *memoryFile) Write(p []byte) (n int, err error) {
	this.contents = append(this.contents, p...)
	return len(p), nil
}

func (this *memoryFile) Close() error { return nil }
