package configs

import "time"

// Debugging parameters.
var (
	ShowDebugInfo   = false
	ShowWarnings    = ShowDebugInfo
	ShowStallInfo   = ShowDebugInfo
	ShowClassifierInfo = ShowDebugInfo
	LogToFile       = false
)

// Subjects. Wire-level tags the mailbox routes on.
const (
	Failure            string = "FAILURE"
	SiteFailureUpdate  string = "SITE_FAILURE_UPDATE"
	SiteFailureForward string = "SITE_FAILURE_FORWARD"
)

// I64Min is the sentinel used for "no known safe transaction id yet".
const I64Min int64 = -1 << 63

// System parameters.
const (
	// ReceiveTick is both the heartbeat interval and the stall-logging
	// granularity for the blocking receive phase.
	ReceiveTick = 5 * time.Millisecond
	// StallThreshold is how long the receive phase can run before it starts
	// logging missing (survivor, failing) pairs.
	StallThreshold = 10 * time.Second
	// StallLogInterval is how often a stalled round re-logs the missing set.
	StallLogInterval = 60 * time.Second
	// MaxConnectionHandler caps concurrent inbound mailbox connections.
	MaxConnectionHandler = 16
	// SendDialTimeout bounds a single outbound mailbox dial, and separately
	// each write on the connection.
	SendDialTimeout = 1 * time.Second
)

// WAL parameters for the round audit log (see SPEC_FULL.md §11).
const (
	WALSegmentSize = 8 * 1024 * 1024
)
