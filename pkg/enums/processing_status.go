package enums

import "fmt"

// ProcessingStatus tracks a webhook event through the idempotency ledger.
// received and processing are transient; succeeded and failed are terminal.
type ProcessingStatus string

const (
	ProcessingStatusReceived   ProcessingStatus = "received"
	ProcessingStatusProcessing ProcessingStatus = "processing"
	ProcessingStatusSucceeded  ProcessingStatus = "succeeded"
	ProcessingStatusFailed     ProcessingStatus = "failed"
)

var validProcessingStatuses = []ProcessingStatus{
	ProcessingStatusReceived,
	ProcessingStatusProcessing,
	ProcessingStatusSucceeded,
	ProcessingStatusFailed,
}

// String implements fmt.Stringer.
func (s ProcessingStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s ProcessingStatus) IsValid() bool {
	for _, candidate := range validProcessingStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends the event's lifecycle.
func (s ProcessingStatus) IsTerminal() bool {
	return s == ProcessingStatusSucceeded || s == ProcessingStatusFailed
}

// ParseProcessingStatus converts raw input into a ProcessingStatus.
func ParseProcessingStatus(value string) (ProcessingStatus, error) {
	for _, candidate := range validProcessingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid processing status %q", value)
}
