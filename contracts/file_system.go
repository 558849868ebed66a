package contracts

import (
	"io"
	"os"
	"time"
)

type PathLister interface {
	Listing(root string) ([]FileInfo, error)
}

type FileOpener interface {
	Open(path string) (io.ReadCloser, error)
}

type FileCreator interface {
	Create(path string) (io.WriteCloser, error)
}

// FileAppender opens a file for appending, creating it if absent. Used
// to continue interrupted downloads in place.
type FileAppender interface {
	Append(path string) (io.WriteCloser, error)
}

type FileRenamer interface {
	Rename(oldPath, newPath string) error
}

type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

type FileWriter interface {
	WriteFile(path string, content []byte) error
}

type Deleter interface {
	Delete(path string) error
}

// TreeDeleter removes a directory tree recursively.
type TreeDeleter interface {
	DeleteTree(path string) error
}

type FileChecker interface {
	Stat(path string) (FileInfo, error)
}

// FreeSpaceChecker reports available bytes on the volume holding path.
type FreeSpaceChecker interface {
	FreeSpace(path string) (int64, error)
}

type FileInfo interface {
	Path() string
	Size() int64
	ModTime() time.Time
	Mode() os.FileMode
}

// FileSystem is the full surface the engine needs from disk. Collaborators
// should depend on the narrow interfaces above instead.
type FileSystem interface {
	PathLister
	FileOpener
	FileCreator
	FileAppender
	FileRenamer
	FileReader
	FileWriter
	Deleter
	TreeDeleter
	FileChecker
	FreeSpaceChecker
}
