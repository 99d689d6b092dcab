package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unipool/unipool-backend/internal/models"
)

func TestCreateCarpool(t *testing.T) {
	eng, bus := newTestEngine(t)
	ctx := context.Background()

	spec := weekSpec(models.Wednesday, models.Monday)
	carpool, err := eng.CreateCarpool(ctx, 1, "Ama", spec)
	require.NoError(t, err)

	assert.Equal(t, uint(1), carpool.DriverID)
	assert.Equal(t, "Ama", carpool.DriverName)
	assert.Equal(t, "Toyota Corolla", carpool.CarModel)
	require.Len(t, carpool.Schedule, 2)

	// Schedule comes back in weekday order regardless of input order.
	assert.Equal(t, models.Monday, carpool.Schedule[0].Day)
	assert.Equal(t, models.Wednesday, carpool.Schedule[1].Day)

	for _, slot := range carpool.Schedule {
		assert.Equal(t, 3, slot.AvailableSeats)
		assert.Equal(t, 3, slot.SeatCapacity)
	}

	deltas := bus.ofType(DeltaCarpoolCreated)
	require.Len(t, deltas, 1)
	assert.Equal(t, carpool.ID, deltas[0].CarpoolID)
}

func TestCreateCarpoolValidation(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	cases := []struct {
		name string
		spec CarpoolSpec
	}{
		{"empty schedule", CarpoolSpec{CarModel: "VW Golf", DepartureLocation: "Hall 7"}},
		{"missing car model", func() CarpoolSpec {
			s := weekSpec(models.Monday)
			s.CarModel = ""
			return s
		}()},
		{"invalid day", func() CarpoolSpec {
			s := weekSpec(models.Monday)
			s.Schedule[0].Day = "Saturday"
			return s
		}()},
		{"duplicate day", func() CarpoolSpec {
			s := weekSpec(models.Monday)
			s.Schedule = append(s.Schedule, s.Schedule[0])
			return s
		}()},
		{"negative seats", func() CarpoolSpec {
			s := weekSpec(models.Monday)
			s.Schedule[0].AvailableSeats = -1
			return s
		}()},
		{"missing departure time", func() CarpoolSpec {
			s := weekSpec(models.Monday)
			s.Schedule[0].DepartureTime = ""
			return s
		}()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := eng.CreateCarpool(ctx, 1, "Ama", tc.spec)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}

	_, err := eng.CreateCarpool(ctx, 0, "Ama", weekSpec(models.Monday))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCreateCarpoolOnePerDriver(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.CreateCarpool(ctx, 1, "Ama", weekSpec(models.Monday))
	require.NoError(t, err)

	_, err = eng.CreateCarpool(ctx, 1, "Ama", weekSpec(models.Tuesday))
	assert.ErrorIs(t, err, ErrDuplicateResource)

	// A different driver is unaffected.
	_, err = eng.CreateCarpool(ctx, 2, "Kofi", weekSpec(models.Tuesday))
	assert.NoError(t, err)
}

func TestUpdateCarpool(t *testing.T) {
	eng, bus := newTestEngine(t)
	ctx := context.Background()

	carpool, err := eng.CreateCarpool(ctx, 1, "Ama", weekSpec(models.Monday))
	require.NoError(t, err)
	bus.reset()

	spec := weekSpec(models.Monday, models.Friday)
	spec.CarModel = "Honda Civic"
	spec.Schedule[0].AvailableSeats = 5

	updated, err := eng.UpdateCarpool(ctx, carpool.ID, 1, spec)
	require.NoError(t, err)
	assert.Equal(t, "Honda Civic", updated.CarModel)
	require.Len(t, updated.Schedule, 2)
	assert.Equal(t, 5, updated.Schedule[0].AvailableSeats)
	assert.Equal(t, 5, updated.Schedule[0].SeatCapacity)

	deltas := bus.ofType(DeltaCarpoolUpdated)
	require.Len(t, deltas, 1)
	assert.Equal(t, carpool.ID, deltas[0].CarpoolID)
}

func TestUpdateCarpoolPreservesApprovedSeats(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	carpool, err := eng.CreateCarpool(ctx, 1, "Ama", weekSpec(models.Monday))
	require.NoError(t, err)

	booking, err := eng.RequestBooking(ctx, carpool.ID, 2, "Kofi", models.Monday)
	require.NoError(t, err)
	_, err = eng.SetBookingStatus(ctx, booking.ID, 1, models.BookingStatusApproved)
	require.NoError(t, err)

	// New capacity 4 on a day with 1 approved booking leaves 3 available.
	spec := weekSpec(models.Monday)
	spec.Schedule[0].AvailableSeats = 4
	updated, err := eng.UpdateCarpool(ctx, carpool.ID, 1, spec)
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Schedule[0].AvailableSeats)
	assert.Equal(t, 4, updated.Schedule[0].SeatCapacity)
}

func TestUpdateCarpoolInventoryConflict(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	carpool, err := eng.CreateCarpool(ctx, 1, "Ama", weekSpec(models.Monday))
	require.NoError(t, err)

	booking, err := eng.RequestBooking(ctx, carpool.ID, 2, "Kofi", models.Monday)
	require.NoError(t, err)
	_, err = eng.SetBookingStatus(ctx, booking.ID, 1, models.BookingStatusApproved)
	require.NoError(t, err)

	// Capacity below the approved count is rejected.
	spec := weekSpec(models.Monday)
	spec.Schedule[0].AvailableSeats = 0
	_, err = eng.UpdateCarpool(ctx, carpool.ID, 1, spec)
	assert.ErrorIs(t, err, ErrInventoryConflict)

	// So is dropping the day entirely while a rider holds a seat on it.
	_, err = eng.UpdateCarpool(ctx, carpool.ID, 1, weekSpec(models.Tuesday))
	assert.ErrorIs(t, err, ErrInventoryConflict)

	// Once the seat is released the same update goes through.
	require.NoError(t, eng.CancelBooking(ctx, booking.ID, 2))
	_, err = eng.UpdateCarpool(ctx, carpool.ID, 1, weekSpec(models.Tuesday))
	assert.NoError(t, err)
}

func TestUpdateCarpoolAuthorization(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	carpool, err := eng.CreateCarpool(ctx, 1, "Ama", weekSpec(models.Monday))
	require.NoError(t, err)

	_, err = eng.UpdateCarpool(ctx, carpool.ID, 2, weekSpec(models.Monday))
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = eng.UpdateCarpool(ctx, carpool.ID+100, 1, weekSpec(models.Monday))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteCarpoolCascades(t *testing.T) {
	eng, bus := newTestEngine(t)
	ctx := context.Background()

	carpool, err := eng.CreateCarpool(ctx, 1, "Ama", weekSpec(models.Monday, models.Tuesday))
	require.NoError(t, err)

	pending, err := eng.RequestBooking(ctx, carpool.ID, 2, "Kofi", models.Monday)
	require.NoError(t, err)
	approved, err := eng.RequestBooking(ctx, carpool.ID, 3, "Esi", models.Tuesday)
	require.NoError(t, err)
	_, err = eng.SetBookingStatus(ctx, approved.ID, 1, models.BookingStatusApproved)
	require.NoError(t, err)
	declined, err := eng.RequestBooking(ctx, carpool.ID, 4, "Yaw", models.Monday)
	require.NoError(t, err)
	_, err = eng.SetBookingStatus(ctx, declined.ID, 1, models.BookingStatusDeclined)
	require.NoError(t, err)
	bus.reset()

	require.NoError(t, eng.DeleteCarpool(ctx, carpool.ID, 1))

	// The ID is tombstoned, not merely absent.
	_, err = eng.GetCarpool(ctx, carpool.ID)
	assert.ErrorIs(t, err, ErrResourceGone)
	assert.ErrorIs(t, eng.DeleteCarpool(ctx, carpool.ID, 1), ErrResourceGone)
	_, err = eng.RequestBooking(ctx, carpool.ID, 5, "Akua", models.Monday)
	assert.ErrorIs(t, err, ErrResourceGone)

	// Bookings went with it.
	for _, riderID := range []uint{2, 3, 4} {
		bookings, err := eng.RiderBookings(ctx, riderID)
		require.NoError(t, err)
		assert.Empty(t, bookings)
	}

	// The aggregate's lock entry is reaped along with the tombstone.
	eng.mu.Lock()
	_, held := eng.locks[carpool.ID]
	eng.mu.Unlock()
	assert.False(t, held)

	deleted := bus.ofType(DeltaCarpoolDeleted)
	require.Len(t, deleted, 1)

	// Only riders with active bookings hear ride_removed.
	removed := bus.ofType(DeltaRideRemoved)
	require.Len(t, removed, 2)
	riders := map[uint]bool{removed[0].RiderID: true, removed[1].RiderID: true}
	assert.True(t, riders[pending.RiderID])
	assert.True(t, riders[approved.RiderID])
	assert.False(t, riders[declined.RiderID])
}

func TestDeleteCarpoolAuthorization(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	carpool, err := eng.CreateCarpool(ctx, 1, "Ama", weekSpec(models.Monday))
	require.NoError(t, err)

	assert.ErrorIs(t, eng.DeleteCarpool(ctx, carpool.ID, 2), ErrNotOwner)
	assert.ErrorIs(t, eng.DeleteCarpool(ctx, carpool.ID+100, 1), ErrNotFound)
}

func TestListCarpoolsFilter(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	specA := weekSpec(models.Monday)
	specA.DepartureLocation = "Accra Central Station"
	_, err := eng.CreateCarpool(ctx, 1, "Ama", specA)
	require.NoError(t, err)

	specB := weekSpec(models.Monday)
	specB.DepartureLocation = "Kumasi City Mall"
	_, err = eng.CreateCarpool(ctx, 2, "Kofi", specB)
	require.NoError(t, err)

	all, err := eng.ListCarpools(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// Substring match is case insensitive.
	accra, err := eng.ListCarpools(ctx, "accra")
	require.NoError(t, err)
	require.Len(t, accra, 1)
	assert.Equal(t, "Accra Central Station", accra[0].DepartureLocation)
	require.Len(t, accra[0].Schedule, 1)

	none, err := eng.ListCarpools(ctx, "takoradi")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCarpoolByDriver(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	created, err := eng.CreateCarpool(ctx, 1, "Ama", weekSpec(models.Monday))
	require.NoError(t, err)

	carpool, err := eng.CarpoolByDriver(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, created.ID, carpool.ID)

	_, err = eng.CarpoolByDriver(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}
