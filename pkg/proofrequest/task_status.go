package proofrequest

// TaskStatus is a stable signed-integer status code, persisted in the pool
// and surfaced verbatim over the API, per spec §3 and §6. The numbering
// scheme follows the original raiko task-status module: Success is 0; the
// positive range holds the non-terminal lifecycle (Registered,
// SystemPaused, WorkInProgress); failures and cancellations are negative,
// spaced by severity, and CancellationInProgress is the one negative code
// that is not terminal (see IsTerminal).
// When reducing a collection of statuses to one, the smallest code wins
// (worst-case semantics) — see Reduce.
type TaskStatus int32

const (
	StatusSuccess TaskStatus = 0

	StatusRegistered     TaskStatus = 1000
	StatusSystemPaused   TaskStatus = 1500
	StatusWorkInProgress TaskStatus = 2000

	StatusProofFailureGeneric      TaskStatus = -1000
	StatusProofFailureOutOfMemory  TaskStatus = -1100
	StatusGuestProverFailure       TaskStatus = -1200
	StatusNetworkFailure           TaskStatus = -2000
	StatusIoFailure                TaskStatus = -2100
	StatusCancelled                TaskStatus = -3000
	StatusCancelledNeverStarted    TaskStatus = -3100
	StatusCancelledAborted         TaskStatus = -3200
	StatusCancellationInProgress   TaskStatus = -3210
	StatusInvalidOrUnsupportedBlock TaskStatus = -4000
	StatusUnspecifiedFailureReason TaskStatus = -9999
)

var statusNames = map[TaskStatus]string{
	StatusSuccess:                   "Success",
	StatusRegistered:                "Registered",
	StatusSystemPaused:              "SystemPaused",
	StatusWorkInProgress:            "WorkInProgress",
	StatusProofFailureGeneric:       "ProofFailure_Generic",
	StatusProofFailureOutOfMemory:   "ProofFailure_OutOfMemory",
	StatusGuestProverFailure:        "GuestProverFailure",
	StatusNetworkFailure:            "NetworkFailure",
	StatusIoFailure:                 "IoFailure",
	StatusCancelled:                 "Cancelled",
	StatusCancelledNeverStarted:     "Cancelled_NeverStarted",
	StatusCancelledAborted:          "Cancelled_Aborted",
	StatusCancellationInProgress:    "CancellationInProgress",
	StatusInvalidOrUnsupportedBlock: "InvalidOrUnsupportedBlock",
	StatusUnspecifiedFailureReason:  "UnspecifiedFailureReason",
}

// String renders the status name used in logs and API responses.
func (s TaskStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Unknown"
}

// IsTerminal reports whether a status ends the lifecycle of a request key:
// Success, any Cancelled* variant, or any *Failure* variant. A terminal
// status is never followed by a non-terminal status for the same key except
// via an explicit re-enqueue (spec §3 invariants).
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case StatusRegistered, StatusSystemPaused, StatusWorkInProgress, StatusCancellationInProgress:
		return false
	default:
		return true
	}
}

// IsCancellation reports whether s is one of the Cancelled* family, which
// spec §7 treats as distinct from failures even though both are terminal.
func (s TaskStatus) IsCancellation() bool {
	switch s {
	case StatusCancelled, StatusCancelledNeverStarted, StatusCancelledAborted:
		return true
	default:
		return false
	}
}

// Reduce returns the worst-case status among statuses: the smallest integer
// code wins, per spec §3's "reducing a collection of statuses" rule. Reduce
// panics on an empty slice since callers always have at least one status to
// reduce by construction.
func Reduce(statuses []TaskStatus) TaskStatus {
	worst := statuses[0]
	for _, s := range statuses[1:] {
		if s < worst {
			worst = s
		}
	}
	return worst
}
