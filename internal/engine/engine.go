package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"
)

const (
	maxTxAttempts  = 3
	initialBackoff = 50 * time.Millisecond
)

// Engine is the authoritative coordinator for carpool schedules, booking
// requests and conversations. One exclusive writer at a time per carpool
// aggregate: every mutation acquires the carpool's mutex, runs a single
// database transaction, then publishes its deltas before releasing the lock.
type Engine struct {
	db  *gorm.DB
	bus Bus

	mu         sync.Mutex
	locks      map[uint]*sync.Mutex
	tombstones map[uint]bool
}

// New creates an engine on top of a migrated database. A nil bus disables
// notifications (used by tests that only exercise state transitions).
func New(db *gorm.DB, bus Bus) *Engine {
	if bus == nil {
		bus = noopBus{}
	}
	return &Engine{
		db:         db,
		bus:        bus,
		locks:      make(map[uint]*sync.Mutex),
		tombstones: make(map[uint]bool),
	}
}

// SetBus swaps the delta bus. Used at startup where the bus (which feeds the
// websocket hub) can only be built after the engine exists, since the hub
// reads its snapshots from the engine.
func (e *Engine) SetBus(bus Bus) {
	if bus == nil {
		bus = noopBus{}
	}
	e.bus = bus
}

// lockFor returns the mutex serializing writes to one carpool aggregate.
func (e *Engine) lockFor(carpoolID uint) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[carpoolID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[carpoolID] = l
	}
	return l
}

func (e *Engine) tombstoned(carpoolID uint) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tombstones[carpoolID]
}

func (e *Engine) addTombstone(carpoolID uint) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tombstones[carpoolID] = true
	// The aggregate can never be written again; its lock entry can go.
	// Writers already queued on the old mutex re-check the tombstone after
	// acquiring it, and later callers get a fresh mutex with the same check.
	delete(e.locks, carpoolID)
}

// withAggregate runs fn inside a transaction while holding the aggregate lock
// for carpoolID, retrying transient store failures with doubling backoff.
// Deltas returned by fn are published after commit, still under the lock, so
// subscribers observe this aggregate's changes in commit order.
func (e *Engine) withAggregate(ctx context.Context, carpoolID uint, fn func(tx *gorm.DB) ([]Delta, error)) error {
	lock := e.lockFor(carpoolID)
	lock.Lock()
	defer lock.Unlock()

	if e.tombstoned(carpoolID) {
		return ErrResourceGone
	}

	deltas, err := e.transact(ctx, fn)
	if err != nil {
		return err
	}
	for _, d := range deltas {
		e.bus.Publish(d)
	}
	return nil
}

// transact is withAggregate without the lock, for operations that create a
// new aggregate and therefore have no ID to lock yet.
func (e *Engine) transact(ctx context.Context, fn func(tx *gorm.DB) ([]Delta, error)) ([]Delta, error) {
	var deltas []Delta
	var err error
	backoff := initialBackoff

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		deltas = nil
		err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var txErr error
			deltas, txErr = fn(tx)
			return txErr
		})
		if err == nil {
			return deltas, nil
		}
		if isDomainError(err) || ctx.Err() != nil {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	log.Printf("engine: transaction failed after %d attempts: %v", maxTxAttempts, err)
	return nil, ErrUnavailable
}

// carpoolErr maps a missing carpool to ErrResourceGone when it was deleted
// and ErrNotFound when it never existed.
func (e *Engine) carpoolErr(carpoolID uint) error {
	if e.tombstoned(carpoolID) {
		return ErrResourceGone
	}
	return ErrNotFound
}
