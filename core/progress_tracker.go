package core

import "github.com/framewright/provision/contracts"

// progressTracker computes cumulative progress across every file of one
// operation, so multi-file components report a single monotonic
// percentage instead of per-file sawtooth.
type progressTracker struct {
	publisher   *ProgressPublisher
	component   string
	kind        contracts.OperationKind
	totalBytes  int64
	priorBytes  int64
	currentFile string
	fileBytes   int64
	emitEvery   int64
	sinceEmit   int64
}

func newProgressTracker(
	publisher *ProgressPublisher,
	component string,
	kind contracts.OperationKind,
	files []contracts.ManifestFile,
	emitEvery int64,
) *progressTracker {
	var total int64
	for _, file := range files {
		total += file.SizeBytes
	}
	return &progressTracker{
		publisher:  publisher,
		component:  component,
		kind:       kind,
		totalBytes: total,
		emitEvery:  emitEvery,
	}
}

func (this *progressTracker) beginFile(file contracts.ManifestFile, offset int64) {
	this.currentFile = file.Filename
	this.fileBytes = offset
	this.emit(contracts.StatusDownloading, file.Filename)
}

func (this *progressTracker) finishFile(file contracts.ManifestFile) {
	this.priorBytes += file.SizeBytes
	this.fileBytes = 0
}

// resetFile rewinds the current file's contribution after its bytes were
// discarded for a digest mismatch.
func (this *progressTracker) resetFile(file contracts.ManifestFile) {
	this.fileBytes = 0
}

func (this *progressTracker) emit(status, currentFile string) {
	this.publisher.Publish(contracts.ProgressEvent{
		Component:       this.component,
		Kind:            this.kind,
		Percentage:      this.percentage(),
		Status:          status,
		CurrentFile:     currentFile,
		BytesDownloaded: this.priorBytes + this.fileBytes,
		TotalBytes:      this.totalBytes,
	})
}

// percentage tops out at 99; only the terminal complete event says 100.
func (this *progressTracker) percentage() int {
	if this.totalBytes <= 0 {
		return 0
	}
	percentage := int((this.priorBytes + this.fileBytes) * 100 / this.totalBytes)
	if percentage > 99 {
		percentage = 99
	}
	return percentage
}

// counter adapts the tracker to io.Writer so a TeeReader can feed it
// during transfers.
func (this *progressTracker) counter() *progressCounter {
	return &progressCounter{tracker: this}
}

type progressCounter struct{ tracker *progressTracker }

func (this *progressCounter) Write(buffer []byte) (int, error) {
	count := len(buffer)
	tracker := this.tracker
	tracker.fileBytes += int64(count)
	tracker.sinceEmit += int64(count)
	if tracker.sinceEmit >= tracker.emitEvery {
		tracker.sinceEmit = 0
		tracker.emit(contracts.StatusDownloading, tracker.currentFile)
	}
	return count, nil
}
