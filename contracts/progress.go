package contracts

type OperationKind string

const (
	OperationInstall OperationKind = "install"
	OperationRepair  OperationKind = "repair"
	OperationRemove  OperationKind = "remove"
)

// ProgressEvent is transient and never persisted. Percentage is
// monotonic within one operation; the stream ends with a terminal
// complete or error event.
type ProgressEvent struct {
	OperationID     string        `json:"operation_id"`
	Component       string        `json:"component"`
	Kind            OperationKind `json:"kind"`
	Percentage      int           `json:"percentage"`
	Status          string        `json:"status"`
	CurrentFile     string        `json:"current_file,omitempty"`
	BytesDownloaded int64         `json:"bytes_downloaded"`
	TotalBytes      int64         `json:"total_bytes"`
	Terminal        bool          `json:"terminal"`
	Error           string        `json:"error,omitempty"`
}

const (
	StatusPreparing   = "preparing"
	StatusDownloading = "downloading"
	StatusVerifying   = "verifying"
	StatusExtracting  = "extracting"
	StatusProbing     = "probing"
	StatusRemoving    = "removing"
	StatusComplete    = "complete"
	StatusError       = "error"
)
