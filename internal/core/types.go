package core

import (
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/payments/internal/ledger"
)

// DefaultMaxFailedRows caps the failures kept on a RunResult. Failures past
// the cap are still counted and still reach RunRequest.OnFailure.
const DefaultMaxFailedRows = 1000

// FailedRow is an event the ledger rejected.
type FailedRow struct {
	Seq        int64  `json:"seq"`
	LineNumber int    `json:"line"`
	Kind       string `json:"type"`
	Client     uint16 `json:"client"`
	Tx         uint32 `json:"tx"`
	Reason     string `json:"reason"`
	Code       string `json:"code"`
}

// RunRequest describes one input to process.
type RunRequest struct {
	// Source names the input in logs and in the store, e.g. a file name.
	Source string

	// OnFailure, if set, is called for every rejected event as it happens.
	// Calls are never concurrent.
	OnFailure func(FailedRow)
}

// RunResult is the outcome of a completed run.
type RunResult struct {
	RunID      uuid.UUID
	Source     string
	StartedAt  time.Time
	Duration   time.Duration
	BytesRead  int64
	Events     int64
	Applied    int64
	Failed     int64
	ByKind     map[string]int64
	Accounts   []ledger.Account
	FailedRows []FailedRow
	Truncated  bool // FailedRows hit the cap
	Stored     bool
}
