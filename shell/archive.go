package shell

import (
	"fmt"
	"os"

	"github.com/mholt/archiver"
)

// ArchiveExtractor unpacks downloaded archives into the declared extract
// path. Format detection goes by file extension.
type ArchiveExtractor struct{}

func NewArchiveExtractor() *ArchiveExtractor {
	return &ArchiveExtractor{}
}

func (this *ArchiveExtractor) Extract(archivePath, destination string) error {
	err := os.MkdirAll(destination, 0755)
	if err != nil {
		return err
	}
	err = archiver.Unarchive(archivePath, destination)
	if err != nil {
		return fmt.Errorf("extraction of %q failed: %w", archivePath, err)
	}
	return nil
}
