package contracts

import "time"

type Phase string

const (
	PhaseNotInstalled Phase = "NotInstalled"
	PhaseInstalling   Phase = "Installing"
	PhaseInstalled    Phase = "Installed"
	PhaseNeedsRepair  Phase = "NeedsRepair"
	PhaseRepairing    Phase = "Repairing"
	PhaseRemoving     Phase = "Removing"
	PhaseFailed       Phase = "Failed"
)

// InFlight reports whether the phase represents an operation that holds
// the component's exclusive slot.
func (this Phase) InFlight() bool {
	return this == PhaseInstalling || this == PhaseRepairing || this == PhaseRemoving
}

// ComponentState is the run-time record for one component. In-memory
// only; after a process restart the phase is re-derived from disk.
type ComponentState struct {
	Name             string              `json:"name"`
	Phase            Phase               `json:"phase"`
	LastError        string              `json:"last_error,omitempty"`
	LastVerification *VerificationResult `json:"last_verification,omitempty"`
}

type VerificationResult struct {
	ComponentName  string    `json:"component_name"`
	IsValid        bool      `json:"is_valid"`
	FileCount      int       `json:"file_count"`
	MissingFiles   []string  `json:"missing_files,omitempty"`
	CorruptedFiles []string  `json:"corrupted_files,omitempty"`
	ProbeResult    string    `json:"probe_result,omitempty"`
	CheckedAt      time.Time `json:"checked_at"`
}

// FilesIntact reports whether every manifest file is present with a
// matching digest, independent of the probe outcome.
func (this VerificationResult) FilesIntact() bool {
	return len(this.MissingFiles) == 0 && len(this.CorruptedFiles) == 0
}
