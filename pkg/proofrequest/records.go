package proofrequest

import "time"

// StatusRecord is one entry of a TaskProvingStatusRecords chain: a status
// transition, an optional proof hex (present only on Success), and the wall
// time the transition was appended.
type StatusRecord struct {
	Status    TaskStatus
	ProofHex  string
	Timestamp time.Time
}

// StatusRecords is the append-only, ordered audit trail for one request key,
// per spec §3. Appends are idempotent: AppendIfChanged is a no-op when the
// new status equals the latest one already recorded.
type StatusRecords []StatusRecord

// Latest returns the most recent record, or the zero value if the chain is
// empty.
func (r StatusRecords) Latest() (StatusRecord, bool) {
	if len(r) == 0 {
		return StatusRecord{}, false
	}
	return r[len(r)-1], true
}

// AppendIfChanged appends rec to the chain unless rec.Status equals the
// latest recorded status, enforcing the idempotence invariant of spec §3.
// It returns the prior status and whether an append occurred.
func (r StatusRecords) AppendIfChanged(rec StatusRecord) (StatusRecords, TaskStatus, bool) {
	if last, ok := r.Latest(); ok {
		if last.Status == rec.Status {
			return r, last.Status, false
		}
		return append(r, rec), last.Status, true
	}
	return append(r, rec), ZeroStatus, true
}

// ZeroStatus is the sentinel "prior status" returned when a chain receives
// its first record (there is no true prior status to report).
const ZeroStatus TaskStatus = StatusRegistered
