// Package engine implements the booking and inventory coordination core: the
// schedule store, the booking ledger, and the conversation log. All mutations
// go through per-carpool aggregate locks and database transactions so seat
// counters and booking states can never diverge. Sentinel errors let handlers
// distinguish failure scenarios and pick HTTP status codes.
package engine

import "errors"

// ErrInvalidArgument is returned for malformed input such as negative seat
// counts, unknown weekdays or empty message text.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrNotFound is returned when a referenced carpool or booking does not exist.
var ErrNotFound = errors.New("not found")

// ErrSlotNotFound is returned when a booking names a weekday the carpool does
// not drive on.
var ErrSlotNotFound = errors.New("day slot not found")

// ErrNotOwner is returned when the caller attempts an operation on a resource
// they do not own, such as approving a booking on someone else's carpool.
var ErrNotOwner = errors.New("not owner")

// ErrNotAuthorized is returned when the caller may not see or use a resource,
// such as posting into a conversation without an approved booking.
var ErrNotAuthorized = errors.New("not authorized")

// ErrSelfBooking is returned when a driver tries to book a seat on their own
// carpool.
var ErrSelfBooking = errors.New("self booking forbidden")

// ErrDuplicateResource is returned when creating a carpool for a driver that
// already owns one.
var ErrDuplicateResource = errors.New("duplicate resource")

// ErrDuplicateRequest is returned when a rider already has an active booking
// for the same carpool and day.
var ErrDuplicateRequest = errors.New("duplicate request")

// ErrInvalidTransition is returned when a booking status change violates the
// lifecycle state machine, e.g. approving an already-declined request.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrInventoryConflict is returned when a schedule update would leave a day
// with fewer seats than its currently-approved bookings.
var ErrInventoryConflict = errors.New("inventory conflict")

// ErrSlotExhausted is returned when approving a booking against a slot whose
// seats are already fully taken.
var ErrSlotExhausted = errors.New("slot exhausted")

// ErrResourceGone is returned for operations against a carpool that has been
// deleted. It is distinct from ErrNotFound so clients can drop stale state
// instead of retrying.
var ErrResourceGone = errors.New("resource gone")

// ErrUnavailable is returned after retries against the store are exhausted.
// The operation left no partial state and may be re-issued.
var ErrUnavailable = errors.New("temporarily unavailable")

var domainErrors = []error{
	ErrInvalidArgument,
	ErrNotFound,
	ErrSlotNotFound,
	ErrNotOwner,
	ErrNotAuthorized,
	ErrSelfBooking,
	ErrDuplicateResource,
	ErrDuplicateRequest,
	ErrInvalidTransition,
	ErrInventoryConflict,
	ErrSlotExhausted,
	ErrResourceGone,
}

// isDomainError reports whether err is a deliberate rejection rather than a
// transient store failure. Domain errors are never retried.
func isDomainError(err error) bool {
	for _, domain := range domainErrors {
		if errors.Is(err, domain) {
			return true
		}
	}
	return false
}
