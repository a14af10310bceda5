package ir

// Version constants for the event format and the binary.
const (
	// EventFormatVersion is bumped when the stored event payload encoding changes.
	EventFormatVersion = "1"

	// Version is the tally release version.
	Version = "0.1.0"
)
