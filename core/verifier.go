package core

import (
	"context"
	"hash"
	"time"

	"github.com/smartystreets/logging"

	"github.com/framewright/provision/contracts"
)

type VerifierFileSystem interface {
	contracts.FileChecker
	contracts.FileOpener
}

// IntegrityVerifier classifies each manifest file as present, missing, or
// corrupted, then exercises the post-install probe when the files check
// out. It never mutates disk and is safe to call concurrently.
type IntegrityVerifier struct {
	fileSystem   VerifierFileSystem
	hasher       func() hash.Hash
	prober       contracts.ProbeRunner
	probeTimeout time.Duration
	now          func() time.Time
	logger       *logging.Logger
}

func NewIntegrityVerifier(
	fileSystem VerifierFileSystem,
	hasher func() hash.Hash,
	prober contracts.ProbeRunner,
	probeTimeout time.Duration,
) *IntegrityVerifier {
	return &IntegrityVerifier{
		fileSystem:   fileSystem,
		hasher:       hasher,
		prober:       prober,
		probeTimeout: probeTimeout,
		now:          time.Now,
	}
}

func (this *IntegrityVerifier) Verify(ctx context.Context, component contracts.ComponentManifest) contracts.VerificationResult {
	result := contracts.VerificationResult{
		ComponentName: component.Name,
		FileCount:     len(component.Files),
		CheckedAt:     this.now(),
	}

	for _, file := range component.Files {
		fullPath := file.DestinationPath(component.InstallPath)
		info, err := this.fileSystem.Stat(fullPath)
		if err != nil {
			result.MissingFiles = append(result.MissingFiles, file.Filename)
			continue
		}
		// Size mismatch is a fast path; no need to hash content that
		// cannot possibly match.
		if info.Size() != file.SizeBytes {
			result.CorruptedFiles = append(result.CorruptedFiles, file.Filename)
			continue
		}
		actual, err := DigestFile(this.fileSystem, this.hasher, fullPath)
		if err != nil || actual != file.SHA256 {
			result.CorruptedFiles = append(result.CorruptedFiles, file.Filename)
		}
	}

	result.IsValid = result.FilesIntact()
	if result.IsValid && component.PostInstallProbe != "" {
		result.ProbeResult, result.IsValid = this.runProbe(ctx, component)
	}
	return result
}

func (this *IntegrityVerifier) runProbe(ctx context.Context, component contracts.ComponentManifest) (output string, ok bool) {
	bounded, cancel := context.WithTimeout(ctx, this.probeTimeout)
	defer cancel()

	output, err := this.prober.Probe(bounded, component.PostInstallProbe, component.InstallPath)
	if err != nil {
		this.logger.Printf("[WARN] Probe failed for %s: %s", component.Title(), err)
		return err.Error(), false
	}
	return output, true
}
