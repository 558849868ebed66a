package contracts

import (
	"context"
	"io"
	"net/url"
)

type FetchRequest struct {
	Address url.URL

	// Offset asks the source to begin at this byte. Sources that cannot
	// honor it return Resumed=false with the full body.
	Offset int64
}

type FetchResult struct {
	Body io.ReadCloser

	// Resumed is true when the source honored the requested offset.
	Resumed bool

	// Length is the number of bytes the body will yield, or -1 when the
	// source does not say.
	Length int64
}

// Downloader is the pluggable fetch primitive. Implementations must
// respect context cancellation mid-stream.
type Downloader interface {
	Download(ctx context.Context, request FetchRequest) (FetchResult, error)
}

// ManifestSource produces the raw manifest document, wherever it lives.
type ManifestSource interface {
	FetchManifest() ([]byte, error)
}

// Extractor relocates an archive's contents into a destination directory.
type Extractor interface {
	Extract(archivePath, destination string) error
}

// ProbeRunner executes a component's post-install probe command with a
// bounded lifetime taken from ctx.
type ProbeRunner interface {
	Probe(ctx context.Context, command, workingDirectory string) (output string, err error)
}
