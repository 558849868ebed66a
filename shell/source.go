package shell

import (
	"context"
	"io"
	"net/url"
	"time"

	"github.com/framewright/provision/contracts"
)

// FileManifestSource reads the component manifest from local disk.
type FileManifestSource struct {
	fileSystem contracts.FileReader
	path       string
}

func NewFileManifestSource(fileSystem contracts.FileReader, path string) *FileManifestSource {
	return &FileManifestSource{fileSystem: fileSystem, path: path}
}

func (this *FileManifestSource) FetchManifest() ([]byte, error) {
	return this.fileSystem.ReadFile(this.path)
}

// RemoteManifestSource fetches the manifest document through the same
// downloader the engine uses for artifacts.
type RemoteManifestSource struct {
	downloader contracts.Downloader
	address    url.URL
	timeout    time.Duration
}

func NewRemoteManifestSource(downloader contracts.Downloader, address url.URL, timeout time.Duration) *RemoteManifestSource {
	return &RemoteManifestSource{downloader: downloader, address: address, timeout: timeout}
}

func (this *RemoteManifestSource) FetchManifest() ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), this.timeout)
	defer cancel()

	result, err := this.downloader.Download(ctx, contracts.FetchRequest{Address: this.address})
	if err != nil {
		return nil, err
	}
	defer func() { _ = result.Body.Close() }()
	return io.ReadAll(result.Body)
}
