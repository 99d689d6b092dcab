package engine

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"github.com/unipool/unipool-backend/internal/database"
	"github.com/unipool/unipool-backend/internal/models"
)

// recordBus captures published deltas for assertions.
type recordBus struct {
	mu     sync.Mutex
	deltas []Delta
}

func (b *recordBus) Publish(d Delta) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deltas = append(b.deltas, d)
}

func (b *recordBus) all() []Delta {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Delta, len(b.deltas))
	copy(out, b.deltas)
	return out
}

func (b *recordBus) ofType(t DeltaType) []Delta {
	var out []Delta
	for _, d := range b.all() {
		if d.Type == t {
			out = append(out, d)
		}
	}
	return out
}

func (b *recordBus) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deltas = nil
}

// newTestEngine opens a fresh in-memory sqlite database per test. The shared
// cache DSN plus a single connection keeps every gorm session on the same
// in-memory store.
func newTestEngine(t *testing.T) (*Engine, *recordBus) {
	t.Helper()

	dsn := fmt.Sprintf("file:test-%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.Open(sqlite.Open(dsn))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	bus := &recordBus{}
	return New(db, bus), bus
}

func weekSpec(days ...models.Weekday) CarpoolSpec {
	spec := CarpoolSpec{
		CarModel:          "Toyota Corolla",
		DepartureLocation: "University Main Gate",
	}
	for _, day := range days {
		spec.Schedule = append(spec.Schedule, SlotSpec{
			Day:            day,
			DepartureTime:  "08:00",
			ReturnTime:     "17:30",
			AvailableSeats: 3,
		})
	}
	return spec
}
