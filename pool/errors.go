package pool

import "github.com/cyberhorsey/errors"

// ErrNotFound is returned when the key has no record, matching the
// "StoreError (from the pool)" classification of spec §7: by both backends
// from UpdateStatus and GetStatusHistory, and by MemoryPool also from
// StoreID and RemoveID (RedisPool's StoreID and RemoveID do not check for a
// record).
var ErrNotFound = errors.NotFound.NewWithKeyAndDetail("ERR_TASK_NOT_FOUND", "no record for request key")
