package core

import (
	"encoding/hex"
	"hash"
	"io"

	"github.com/framewright/provision/contracts"
)

// DigestFile streams the file at path through a fresh hasher and returns
// the lowercase hex digest.
func DigestFile(fileSystem contracts.FileOpener, hasher func() hash.Hash, path string) (string, error) {
	reader, err := fileSystem.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = reader.Close() }()

	digest := hasher()
	_, err = io.Copy(digest, reader)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}
