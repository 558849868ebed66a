package contracts

import "errors"

// Error taxonomy. Callers classify with errors.Is; wrapped variants carry
// the underlying detail.
var (
	ManifestUnavailable   = errors.New("manifest unavailable")
	ManifestInvalid       = errors.New("manifest invalid")
	ComponentUnknown      = errors.New("unknown component")
	NetworkError          = errors.New("network error")
	ChecksumMismatch      = errors.New("checksum mismatch")
	ProbeFailed           = errors.New("post-install probe failed")
	OperationInProgress   = errors.New("operation already in progress")
	RemovalFailed         = errors.New("removal failed")
	InsufficientDiskSpace = errors.New("insufficient disk space")
)

// RetryErr marks transport failures that are worth another attempt.
// Wrap it (alongside NetworkError) so the retry layer can tell transient
// failures from permanent ones.
var RetryErr = errors.New("retryable")
