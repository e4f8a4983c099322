/*
ledger.go - Atomic slot reservation against capacity counters

PURPOSE:
  The CapacityLedger is the single serialization point for capacity. All
  shared mutable state lives behind it in the durable store; the engine holds
  no in-process locks across requests, so multiple engine instances against
  the same store stay safe.

CRITICAL INVARIANTS:
  1. Desks <= DeskQuota and Parking <= ParkingQuota, always, even when N
     requests race for the last slot - exactly one winner per remaining slot.
  2. Reserve is all-or-nothing: a desk is never granted while parking is
     denied. If either condition fails, no counter changes.
  3. Counters equal the derived sum of booking records. Only the engine's
     reserve/release protocol mutates them.

CONCURRENCY:
  Implementations must enforce the conditional update at the storage layer
  (guarded UPDATE, SELECT ... FOR UPDATE, or compare-and-swap). Optimistic
  retry-on-conflict is fine but bounded: after MaxReserveAttempts failed
  attempts the call returns ErrBusy rather than blocking.

IMPLEMENTATIONS:
  - booking/store/memory.go: In-memory, for tests and development
  - store/sqlite/sqlite.go:  Guarded single-statement UPDATE, WAL mode
  - store/postgres/postgres.go: Row lock via SELECT ... FOR UPDATE

SEE ALSO:
  - engine.go: The only caller of Reserve/Release
*/
package booking

import "context"

// MaxReserveAttempts caps optimistic retries on counter contention before a
// Reserve or Release surfaces ErrBusy.
const MaxReserveAttempts = 3

// CapacityLedger atomically consumes and returns desk/parking slots for an
// office+date pair.
type CapacityLedger interface {
	// Reserve consumes one desk slot, and one parking slot if withParking,
	// in a single atomic conditional update. Both conditions hold together
	// or nothing changes. Returns a *CapacityError (ErrDeskFull or
	// ErrParkingFull) when a pool is exhausted, ErrBusy when the retry
	// budget runs out under contention.
	Reserve(ctx context.Context, office Office, date Date, withParking bool) error

	// Release returns one desk slot, and one parking slot if hadParking.
	// Returns ErrNotFound when no counter row exists for the pair.
	// Decrements are floor-clamped at zero; a clamp firing indicates ledger
	// corruption and is logged as an invariant violation, never silently
	// absorbed into a negative count.
	Release(ctx context.Context, officeID OfficeID, date Date, hadParking bool) error

	// Counts returns the current counters for the pair. A missing row reads
	// as zero consumption, not an error.
	Counts(ctx context.Context, officeID OfficeID, date Date) (SlotCounts, error)
}
