package core

import (
	"context"
	"errors"
	"fmt"
	"hash"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/smartystreets/clock"
	"github.com/smartystreets/logging"
	"golang.org/x/sync/semaphore"

	"github.com/framewright/provision/contracts"
)

// PartialSuffix marks in-progress downloads. Partials survive failure and
// cancellation so the next attempt resumes instead of restarting.
const PartialSuffix = ".partial"

type OrchestratorConfig struct {
	// MaxRetry bounds per-file re-attempts after mid-stream failures.
	MaxRetry int

	// BackoffBase is the first retry delay; it doubles per attempt.
	BackoffBase time.Duration

	// ProbeTimeout bounds the post-install probe.
	ProbeTimeout time.Duration

	// MaxConcurrentDownloads bounds simultaneous file transfers across
	// all components.
	MaxConcurrentDownloads int64

	// EmitEveryBytes throttles progress events during a transfer.
	EmitEveryBytes int64
}

func (this OrchestratorConfig) withDefaults() OrchestratorConfig {
	if this.MaxRetry == 0 {
		this.MaxRetry = 3
	}
	if this.BackoffBase == 0 {
		this.BackoffBase = 2 * time.Second
	}
	if this.ProbeTimeout == 0 {
		this.ProbeTimeout = 30 * time.Second
	}
	if this.MaxConcurrentDownloads == 0 {
		this.MaxConcurrentDownloads = 3
	}
	if this.EmitEveryBytes == 0 {
		this.EmitEveryBytes = 256 * 1024
	}
	return this
}

type OrchestratorFileSystem interface {
	contracts.FileChecker
	contracts.FileOpener
	contracts.FileCreator
	contracts.FileAppender
	contracts.FileRenamer
	contracts.Deleter
	contracts.TreeDeleter
	contracts.FreeSpaceChecker
}

// Orchestrator executes install, repair, and remove operations against a
// component's exclusive state-machine slot, emitting progress events for
// the lifetime of each operation. Operations run as independent tasks;
// callers subscribe to the broker using the returned operation ID.
type Orchestrator struct {
	fileSystem OrchestratorFileSystem
	downloader contracts.Downloader
	extractor  contracts.Extractor
	prober     contracts.ProbeRunner
	verifier   *IntegrityVerifier
	machine    *StateMachine
	broker     *ProgressBroker
	hasher     func() hash.Hash
	limiter    *semaphore.Weighted
	config     OrchestratorConfig
	sleeper    *clock.Sleeper
	logger     *logging.Logger
}

func NewOrchestrator(
	fileSystem OrchestratorFileSystem,
	downloader contracts.Downloader,
	extractor contracts.Extractor,
	prober contracts.ProbeRunner,
	verifier *IntegrityVerifier,
	machine *StateMachine,
	broker *ProgressBroker,
	hasher func() hash.Hash,
	config OrchestratorConfig,
) *Orchestrator {
	config = config.withDefaults()
	return &Orchestrator{
		fileSystem: fileSystem,
		downloader: downloader,
		extractor:  extractor,
		prober:     prober,
		verifier:   verifier,
		machine:    machine,
		broker:     broker,
		hasher:     hasher,
		limiter:    semaphore.NewWeighted(config.MaxConcurrentDownloads),
		config:     config,
	}
}

// Operation is the handle returned for each accepted request. Events
// carries the complete stream from the first event through the terminal
// one; additional subscribers can attach through the broker by ID.
type Operation struct {
	ID     string
	Events <-chan contracts.ProgressEvent
}

// Install provisions every file in the component manifest. It returns
// once the operation is claimed and running; the work proceeds as an
// independent task.
func (this *Orchestrator) Install(ctx context.Context, component contracts.ComponentManifest) (Operation, error) {
	return this.launch(ctx, component, contracts.OperationInstall)
}

// Repair re-fetches only the missing and corrupted subset, skipping files
// that still verify correctly.
func (this *Orchestrator) Repair(ctx context.Context, component contracts.ComponentManifest) (Operation, error) {
	return this.launch(ctx, component, contracts.OperationRepair)
}

// Remove deletes the component's install tree. Partial failures leave the
// component Failed with the filesystem error attached, never silently
// removed.
func (this *Orchestrator) Remove(ctx context.Context, component contracts.ComponentManifest) (Operation, error) {
	return this.launch(ctx, component, contracts.OperationRemove)
}

func (this *Orchestrator) launch(ctx context.Context, component contracts.ComponentManifest, kind contracts.OperationKind) (Operation, error) {
	err := this.machine.Begin(component.Name, kind)
	if err != nil {
		return Operation{}, err
	}
	operationID := uuid.NewString()
	publisher := this.broker.Open(operationID)
	events, err := this.broker.Subscribe(operationID)
	if err != nil {
		this.machine.Complete(component.Name, contracts.PhaseFailed, err)
		return Operation{}, err
	}
	go this.run(ctx, component, kind, publisher)
	return Operation{ID: operationID, Events: events}, nil
}

func (this *Orchestrator) run(ctx context.Context, component contracts.ComponentManifest, kind contracts.OperationKind, publisher *ProgressPublisher) {
	var err error
	switch kind {
	case contracts.OperationInstall:
		err = this.provision(ctx, component, kind, publisher, component.Files)
	case contracts.OperationRepair:
		err = this.repair(ctx, component, publisher)
	case contracts.OperationRemove:
		err = this.remove(component, publisher)
	}

	if err == nil {
		this.succeed(component, kind, publisher)
		return
	}
	this.fail(component, kind, publisher, err)
}

func (this *Orchestrator) succeed(component contracts.ComponentManifest, kind contracts.OperationKind, publisher *ProgressPublisher) {
	outcome := contracts.PhaseInstalled
	if kind == contracts.OperationRemove {
		outcome = contracts.PhaseNotInstalled
	}
	this.machine.Complete(component.Name, outcome, nil)
	this.logger.Printf("[INFO] %s of %s complete.", kind, component.Title())
	publisher.Publish(contracts.ProgressEvent{
		Component:  component.Name,
		Kind:       kind,
		Percentage: 100,
		Status:     contracts.StatusComplete,
		Terminal:   true,
	})
}

func (this *Orchestrator) fail(component contracts.ComponentManifest, kind contracts.OperationKind, publisher *ProgressPublisher, err error) {
	outcome := contracts.PhaseFailed
	if errors.Is(err, contracts.ProbeFailed) {
		// Files landed intact; the component is repairable, not broken.
		outcome = contracts.PhaseNeedsRepair
	}
	this.machine.Complete(component.Name, outcome, err)
	this.logger.Printf("[WARN] %s of %s failed: %s", kind, component.Title(), err)
	publisher.Publish(contracts.ProgressEvent{
		Component: component.Name,
		Kind:      kind,
		Status:    contracts.StatusError,
		Error:     err.Error(),
		Terminal:  true,
	})
}

func (this *Orchestrator) repair(ctx context.Context, component contracts.ComponentManifest, publisher *ProgressPublisher) error {
	publisher.Publish(contracts.ProgressEvent{
		Component: component.Name,
		Kind:      contracts.OperationRepair,
		Status:    contracts.StatusVerifying,
	})
	result := this.verifier.Verify(ctx, component)
	if result.IsValid {
		return nil
	}

	damaged := make(map[string]struct{}, len(result.MissingFiles)+len(result.CorruptedFiles))
	for _, filename := range result.MissingFiles {
		damaged[filename] = struct{}{}
	}
	for _, filename := range result.CorruptedFiles {
		damaged[filename] = struct{}{}
	}

	var files []contracts.ManifestFile
	for _, file := range component.Files {
		if _, found := damaged[file.Filename]; found {
			files = append(files, file)
		}
	}
	return this.provision(ctx, component, contracts.OperationRepair, publisher, files)
}

func (this *Orchestrator) provision(ctx context.Context, component contracts.ComponentManifest, kind contracts.OperationKind, publisher *ProgressPublisher, files []contracts.ManifestFile) error {
	tracker := newProgressTracker(publisher, component.Name, kind, files, this.config.EmitEveryBytes)
	tracker.emit(contracts.StatusPreparing, "")

	err := this.ensureDiskSpace(component, files)
	if err != nil {
		return err
	}

	for _, file := range files {
		err = this.provisionFile(ctx, component, file, tracker)
		if err != nil {
			return err
		}
	}

	if component.PostInstallProbe != "" {
		tracker.emit(contracts.StatusProbing, "")
		err = this.runProbe(ctx, component)
		if err != nil {
			return err
		}
	}
	return nil
}

func (this *Orchestrator) ensureDiskSpace(component contracts.ComponentManifest, files []contracts.ManifestFile) error {
	var needed int64
	for _, file := range files {
		pending := file.SizeBytes
		if info, err := this.fileSystem.Stat(file.DestinationPath(component.InstallPath) + PartialSuffix); err == nil {
			pending -= info.Size()
		}
		if pending > 0 {
			needed += pending
		}
	}
	free, err := this.fileSystem.FreeSpace(component.InstallPath)
	if err != nil {
		return err
	}
	if free < needed {
		return fmt.Errorf("%w: need %d bytes, %d available under %q",
			contracts.InsufficientDiskSpace, needed, free, component.InstallPath)
	}
	return nil
}

// provisionFile downloads one artifact with resume, verifies its digest,
// then moves it into place and extracts it if it is an archive. A digest
// mismatch discards the bytes and retries the download once.
func (this *Orchestrator) provisionFile(ctx context.Context, component contracts.ComponentManifest, file contracts.ManifestFile, tracker *progressTracker) error {
	destination := file.DestinationPath(component.InstallPath)
	partial := destination + PartialSuffix

	checksumRetried := false
	attempts := 0
	backoff := this.config.BackoffBase
	for {
		err := this.transfer(ctx, file, partial, tracker)
		if err == nil {
			tracker.emit(contracts.StatusVerifying, file.Filename)
			var actual string
			actual, err = DigestFile(this.fileSystem, this.hasher, partial)
			if err == nil && actual == file.SHA256 {
				tracker.finishFile(file)
				return this.place(component, file, partial, destination, tracker)
			}
			if err == nil {
				// Corrupt content is never accepted; one clean retry,
				// then fatal.
				_ = this.fileSystem.Delete(partial)
				tracker.resetFile(file)
				if checksumRetried {
					return fmt.Errorf("%w: %q expected %s got %s", contracts.ChecksumMismatch, file.Filename, file.SHA256, actual)
				}
				this.logger.Printf("[WARN] Checksum mismatch on %q, retrying download once.", file.Filename)
				checksumRetried = true
				continue
			}
		}
		if ctx.Err() != nil {
			return ctx.Err() // partial stays on disk for resume
		}
		if !errors.Is(err, contracts.RetryErr) && !errors.Is(err, contracts.NetworkError) {
			return err
		}
		attempts++
		if attempts > this.config.MaxRetry {
			return fmt.Errorf("%w: gave up on %q after %d attempts: %s", contracts.NetworkError, file.Filename, attempts, err)
		}
		this.logger.Printf("[WARN] Transfer of %q interrupted (%s), resuming shortly.", file.Filename, err)
		this.sleeper.Sleep(backoff)
		backoff *= 2
	}
}

// transfer streams bytes into the partial file, resuming from its current
// length when the source honors range requests.
func (this *Orchestrator) transfer(ctx context.Context, file contracts.ManifestFile, partial string, tracker *progressTracker) error {
	err := this.limiter.Acquire(ctx, 1)
	if err != nil {
		return err
	}
	defer this.limiter.Release(1)

	var offset int64
	if info, statErr := this.fileSystem.Stat(partial); statErr == nil {
		offset = info.Size()
	}

	result, err := this.downloader.Download(ctx, contracts.FetchRequest{Address: *file.SourceURL.Value(), Offset: offset})
	if err != nil {
		return err
	}
	defer func() { _ = result.Body.Close() }()

	var writer io.WriteCloser
	if offset > 0 && result.Resumed {
		writer, err = this.fileSystem.Append(partial)
	} else {
		offset = 0
		writer, err = this.fileSystem.Create(partial)
	}
	if err != nil {
		return err
	}

	tracker.beginFile(file, offset)
	_, err = io.Copy(writer, io.TeeReader(result.Body, tracker.counter()))
	closeErr := writer.Close()
	if err != nil {
		return fmt.Errorf("%w: %s", contracts.NetworkError, err)
	}
	return closeErr
}

func (this *Orchestrator) place(component contracts.ComponentManifest, file contracts.ManifestFile, partial, destination string, tracker *progressTracker) error {
	err := this.fileSystem.Rename(partial, destination)
	if err != nil {
		return err
	}
	if !file.IsArchive() {
		return nil
	}
	tracker.emit(contracts.StatusExtracting, file.Filename)
	return this.extractor.Extract(destination, path.Join(component.InstallPath, file.ExtractPath))
}

func (this *Orchestrator) remove(component contracts.ComponentManifest, publisher *ProgressPublisher) error {
	publisher.Publish(contracts.ProgressEvent{
		Component: component.Name,
		Kind:      contracts.OperationRemove,
		Status:    contracts.StatusRemoving,
	})
	err := this.fileSystem.DeleteTree(component.InstallPath)
	if err != nil {
		return fmt.Errorf("%w: %s", contracts.RemovalFailed, err)
	}
	return nil
}

func (this *Orchestrator) runProbe(ctx context.Context, component contracts.ComponentManifest) error {
	bounded, cancel := context.WithTimeout(ctx, this.config.ProbeTimeout)
	defer cancel()

	output, err := this.prober.Probe(bounded, component.PostInstallProbe, component.InstallPath)
	if err != nil {
		return fmt.Errorf("%w: %s", contracts.ProbeFailed, err)
	}
	this.logger.Printf("[INFO] Probe for %s passed: %s", component.Title(), output)
	return nil
}
