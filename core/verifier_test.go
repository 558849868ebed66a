package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/smartystreets/assertions/should"
	"github.com/smartystreets/gunit"
	"github.com/smartystreets/logging"

	"github.com/framewright/provision/contracts"
	"github.com/framewright/provision/shell"
)

func TestIntegrityVerifierFixture(t *testing.T) {
	gunit.Run(new(IntegrityVerifierFixture), t)
}

type IntegrityVerifierFixture struct {
	*gunit.Fixture

	fileSystem *shell.InMemoryFileSystem
	prober     *FakeProbeRunner
	verifier   *IntegrityVerifier
	component  contracts.ComponentManifest
}

func (this *IntegrityVerifierFixture) Setup() {
	this.fileSystem = shell.NewInMemoryFileSystem()
	this.prober = &FakeProbeRunner{}
	this.verifier = NewIntegrityVerifier(this.fileSystem, sha256.New, this.prober, time.Second)
	this.verifier.logger = logging.Capture()

	this.component = contracts.ComponentManifest{
		Name:        "codec-pack",
		Version:     "2.0",
		InstallPath: "/opt/framewright/codec-pack",
		Files: []contracts.ManifestFile{
			this.manifestFile("x264.bin", []byte("x264 contents")),
			this.manifestFile("x265.bin", []byte("x265 contents")),
		},
	}
	_ = this.fileSystem.WriteFile("/opt/framewright/codec-pack/x264.bin", []byte("x264 contents"))
	_ = this.fileSystem.WriteFile("/opt/framewright/codec-pack/x265.bin", []byte("x265 contents"))
}

func (this *IntegrityVerifierFixture) manifestFile(name string, contents []byte) contracts.ManifestFile {
	sum := sha256.Sum256(contents)
	address, _ := url.Parse("https://artifacts.example.com/" + name)
	return contracts.ManifestFile{
		Filename:  name,
		SourceURL: contracts.URL(*address),
		SHA256:    hex.EncodeToString(sum[:]),
		SizeBytes: int64(len(contents)),
	}
}

func (this *IntegrityVerifierFixture) verify() contracts.VerificationResult {
	return this.verifier.Verify(context.Background(), this.component)
}

func (this *IntegrityVerifierFixture) TestIntactInstallIsValid() {
	result := this.verify()

	this.So(result.IsValid, should.BeTrue)
	this.So(result.MissingFiles, should.BeEmpty)
	this.So(result.CorruptedFiles, should.BeEmpty)
}

func (this *IntegrityVerifierFixture) TestMissingFileReported() {
	_ = this.fileSystem.Delete("/opt/framewright/codec-pack/x265.bin")

	result := this.verify()

	this.So(result.IsValid, should.BeFalse)
	this.So(result.MissingFiles, should.Resemble, []string{"x265.bin"})
	this.So(result.CorruptedFiles, should.BeEmpty)
}

func (this *IntegrityVerifierFixture) TestFlippedByteReportedAsCorrupted() {
	_ = this.fileSystem.WriteFile("/opt/framewright/codec-pack/x264.bin", []byte("x264 Contents"))

	result := this.verify()

	this.So(result.IsValid, should.BeFalse)
	this.So(result.CorruptedFiles, should.Resemble, []string{"x264.bin"})
}

func (this *IntegrityVerifierFixture) TestSizeMismatchShortCircuitsToCorrupted() {
	_ = this.fileSystem.WriteFile("/opt/framewright/codec-pack/x264.bin", []byte("longer than expected"))

	result := this.verify()

	this.So(result.CorruptedFiles, should.Resemble, []string{"x264.bin"})
}

func (this *IntegrityVerifierFixture) TestProbeRunsOnlyWhenFilesAreIntact() {
	this.component.PostInstallProbe = "codecctl --selftest"
	_ = this.fileSystem.Delete("/opt/framewright/codec-pack/x264.bin")

	_ = this.verify()

	this.So(this.prober.calls, should.Equal, 0)
}

func (this *IntegrityVerifierFixture) TestProbeFailureInvalidatesIntactFiles() {
	this.component.PostInstallProbe = "codecctl --selftest"
	this.prober.err = errors.New("registration required")

	result := this.verify()

	this.So(result.IsValid, should.BeFalse)
	this.So(result.MissingFiles, should.BeEmpty)
	this.So(result.CorruptedFiles, should.BeEmpty)
	this.So(result.ProbeResult, should.ContainSubstring, "registration required")
}

func (this *IntegrityVerifierFixture) TestProbeSuccessRecorded() {
	this.component.PostInstallProbe = "codecctl --selftest"
	this.prober.output = "all codecs registered"

	result := this.verify()

	this.So(result.IsValid, should.BeTrue)
	this.So(result.ProbeResult, should.Equal, "all codecs registered")
	this.So(this.prober.workingDirectory, should.Equal, "/opt/framewright/codec-pack")
}

/////////////////////////////////////////////////////////////////////////////

type FakeProbeRunner struct {
	calls            int
	command          string
	workingDirectory string
	output           string
	err              error
	observedDeadline bool
}

func (this *FakeProbeRunner) Probe(ctx context.Context, command, workingDirectory string) (string, error) {
	this.calls++
	this.command = command
	this.workingDirectory = workingDirectory
	_, this.observedDeadline = ctx.Deadline()
	return this.output, this.err
}
