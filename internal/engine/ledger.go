package engine

import (
	"context"
	"errors"

	"github.com/unipool/unipool-backend/internal/models"
	"gorm.io/gorm"
)

// RequestBooking files a pending request for one weekday of a carpool. Seats
// are not reserved at request time; pending requests compete for the seat
// pool and only approval consumes a seat.
func (e *Engine) RequestBooking(ctx context.Context, carpoolID, riderID uint, riderName string, day models.Weekday) (*models.BookingRequest, error) {
	if riderID == 0 || riderName == "" || !day.Valid() {
		return nil, ErrInvalidArgument
	}

	var booking models.BookingRequest
	err := e.withAggregate(ctx, carpoolID, func(tx *gorm.DB) ([]Delta, error) {
		var carpool models.Carpool
		if err := tx.First(&carpool, carpoolID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, e.carpoolErr(carpoolID)
			}
			return nil, err
		}
		if carpool.DriverID == riderID {
			return nil, ErrSelfBooking
		}

		var slot models.DaySlot
		err := tx.Where("carpool_id = ? AND day = ?", carpoolID, day).First(&slot).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrSlotNotFound
			}
			return nil, err
		}

		var active int64
		err = tx.Model(&models.BookingRequest{}).
			Where("carpool_id = ? AND rider_id = ? AND day = ? AND status IN ?",
				carpoolID, riderID, day,
				[]models.BookingStatus{models.BookingStatusPending, models.BookingStatusApproved}).
			Count(&active).Error
		if err != nil {
			return nil, err
		}
		if active > 0 {
			return nil, ErrDuplicateRequest
		}

		booking = models.BookingRequest{
			CarpoolID: carpoolID,
			RiderID:   riderID,
			RiderName: riderName,
			Day:       day,
			Status:    models.BookingStatusPending,
		}
		if err := tx.Create(&booking).Error; err != nil {
			return nil, err
		}
		return []Delta{{Type: DeltaBookingCreated, CarpoolID: carpoolID, RiderID: riderID, Data: booking}}, nil
	})
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// SetBookingStatus lets the carpool's driver approve or decline a pending
// request. Approval decrements the day's seat counter in the same transaction
// as the status change; a slot with no seats left rejects the approval with
// ErrSlotExhausted rather than going negative or clamping.
func (e *Engine) SetBookingStatus(ctx context.Context, bookingID, callerID uint, status models.BookingStatus) (*models.BookingRequest, error) {
	if status != models.BookingStatusApproved && status != models.BookingStatusDeclined {
		return nil, ErrInvalidArgument
	}

	carpoolID, err := e.bookingCarpool(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	var booking models.BookingRequest
	err = e.withAggregate(ctx, carpoolID, func(tx *gorm.DB) ([]Delta, error) {
		if err := tx.First(&booking, bookingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}

		var carpool models.Carpool
		if err := tx.First(&carpool, booking.CarpoolID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, e.carpoolErr(booking.CarpoolID)
			}
			return nil, err
		}
		if carpool.DriverID != callerID {
			return nil, ErrNotOwner
		}
		if booking.Status != models.BookingStatusPending {
			return nil, ErrInvalidTransition
		}

		deltas := []Delta{}
		if status == models.BookingStatusApproved {
			var slot models.DaySlot
			err := tx.Where("carpool_id = ? AND day = ?", booking.CarpoolID, booking.Day).First(&slot).Error
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil, ErrSlotNotFound
				}
				return nil, err
			}
			if slot.AvailableSeats <= 0 {
				return nil, ErrSlotExhausted
			}
			slot.AvailableSeats--
			if err := tx.Save(&slot).Error; err != nil {
				return nil, err
			}
			updated, err := loadCarpool(tx, booking.CarpoolID)
			if err != nil {
				return nil, err
			}
			deltas = append(deltas, Delta{Type: DeltaCarpoolUpdated, CarpoolID: booking.CarpoolID, Data: updated})
		}

		booking.Status = status
		if err := tx.Save(&booking).Error; err != nil {
			return nil, err
		}
		deltas = append(deltas, Delta{
			Type:      DeltaBookingUpdated,
			CarpoolID: booking.CarpoolID,
			RiderID:   booking.RiderID,
			Data:      booking,
		})
		return deltas, nil
	})
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// CancelBooking removes a rider's own booking. Cancelling an approved booking
// releases its seat back to the slot (clamped at capacity) in the same
// transaction; cancelling a pending one touches no seats.
func (e *Engine) CancelBooking(ctx context.Context, bookingID, riderID uint) error {
	carpoolID, err := e.bookingCarpool(ctx, bookingID)
	if err != nil {
		return err
	}

	return e.withAggregate(ctx, carpoolID, func(tx *gorm.DB) ([]Delta, error) {
		var booking models.BookingRequest
		if err := tx.First(&booking, bookingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		if booking.RiderID != riderID {
			return nil, ErrNotOwner
		}

		deltas := []Delta{}
		if booking.Status == models.BookingStatusApproved {
			var slot models.DaySlot
			err := tx.Where("carpool_id = ? AND day = ?", booking.CarpoolID, booking.Day).First(&slot).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, err
			}
			if err == nil {
				if slot.AvailableSeats < slot.SeatCapacity {
					slot.AvailableSeats++
				}
				if err := tx.Save(&slot).Error; err != nil {
					return nil, err
				}
				updated, err := loadCarpool(tx, booking.CarpoolID)
				if err != nil {
					return nil, err
				}
				deltas = append(deltas, Delta{Type: DeltaCarpoolUpdated, CarpoolID: booking.CarpoolID, Data: updated})
			}
		}

		if err := tx.Unscoped().Delete(&booking).Error; err != nil {
			return nil, err
		}
		deltas = append(deltas, Delta{
			Type:      DeltaBookingRemoved,
			CarpoolID: booking.CarpoolID,
			RiderID:   booking.RiderID,
			Data:      booking,
		})
		return deltas, nil
	})
}

// RiderBookings returns every booking the rider has filed.
func (e *Engine) RiderBookings(ctx context.Context, riderID uint) ([]models.BookingRequest, error) {
	var bookings []models.BookingRequest
	err := e.db.WithContext(ctx).Where("rider_id = ?", riderID).Order("id ASC").Find(&bookings).Error
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

// CarpoolBookings returns every booking filed against a carpool.
func (e *Engine) CarpoolBookings(ctx context.Context, carpoolID uint) ([]models.BookingRequest, error) {
	var bookings []models.BookingRequest
	err := e.db.WithContext(ctx).Where("carpool_id = ?", carpoolID).Order("id ASC").Find(&bookings).Error
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

// GetBooking returns one booking visible to its rider or the carpool driver.
func (e *Engine) GetBooking(ctx context.Context, bookingID, callerID uint) (*models.BookingRequest, error) {
	var booking models.BookingRequest
	if err := e.db.WithContext(ctx).First(&booking, bookingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if booking.RiderID != callerID {
		carpool, err := e.GetCarpool(ctx, booking.CarpoolID)
		if err != nil || carpool.DriverID != callerID {
			return nil, ErrNotAuthorized
		}
	}
	return &booking, nil
}

// bookingCarpool resolves the aggregate a booking belongs to. It is an
// unlocked read used only to pick the right lock; the booking is re-read
// inside the transaction.
func (e *Engine) bookingCarpool(ctx context.Context, bookingID uint) (uint, error) {
	var booking models.BookingRequest
	if err := e.db.WithContext(ctx).Select("carpool_id").First(&booking, bookingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return booking.CarpoolID, nil
}

func loadCarpool(tx *gorm.DB, carpoolID uint) (*models.Carpool, error) {
	var carpool models.Carpool
	if err := tx.Preload("Schedule").First(&carpool, carpoolID).Error; err != nil {
		return nil, err
	}
	sortSchedule(carpool.Schedule)
	return &carpool, nil
}
