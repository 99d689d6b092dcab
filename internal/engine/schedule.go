package engine

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/unipool/unipool-backend/internal/models"
	"gorm.io/gorm"
)

// SlotSpec is one weekday entry of a carpool schedule as supplied by the
// driver. AvailableSeats is the seat capacity being offered for that day.
type SlotSpec struct {
	Day            models.Weekday `json:"day" binding:"required"`
	DepartureTime  string         `json:"departureTime" binding:"required"`
	ReturnTime     string         `json:"returnTime" binding:"required"`
	AvailableSeats int            `json:"availableSeats"`
}

// CarpoolSpec carries the driver-editable fields of a carpool.
type CarpoolSpec struct {
	CarModel          string     `json:"carModel" binding:"required"`
	DepartureLocation string     `json:"departureLocation" binding:"required"`
	Schedule          []SlotSpec `json:"schedule" binding:"required"`
}

func (s *CarpoolSpec) validate() error {
	if s.CarModel == "" || s.DepartureLocation == "" || len(s.Schedule) == 0 {
		return ErrInvalidArgument
	}
	seen := make(map[models.Weekday]bool)
	for _, slot := range s.Schedule {
		if !slot.Day.Valid() || slot.DepartureTime == "" || slot.ReturnTime == "" {
			return ErrInvalidArgument
		}
		if slot.AvailableSeats < 0 {
			return ErrInvalidArgument
		}
		if seen[slot.Day] {
			return ErrInvalidArgument
		}
		seen[slot.Day] = true
	}
	return nil
}

// CreateCarpool registers a driver's carpool with its weekly schedule. Each
// driver owns at most one carpool.
func (e *Engine) CreateCarpool(ctx context.Context, driverID uint, driverName string, spec CarpoolSpec) (*models.Carpool, error) {
	if driverID == 0 || driverName == "" {
		return nil, ErrInvalidArgument
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}

	var carpool models.Carpool
	deltas, err := e.transact(ctx, func(tx *gorm.DB) ([]Delta, error) {
		var existing models.Carpool
		err := tx.Where("driver_id = ?", driverID).First(&existing).Error
		if err == nil {
			return nil, ErrDuplicateResource
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		carpool = models.Carpool{
			DriverID:          driverID,
			DriverName:        driverName,
			CarModel:          spec.CarModel,
			DepartureLocation: spec.DepartureLocation,
		}
		for _, slot := range spec.Schedule {
			carpool.Schedule = append(carpool.Schedule, models.DaySlot{
				Day:            slot.Day,
				DepartureTime:  slot.DepartureTime,
				ReturnTime:     slot.ReturnTime,
				AvailableSeats: slot.AvailableSeats,
				SeatCapacity:   slot.AvailableSeats,
			})
		}
		if err := tx.Create(&carpool).Error; err != nil {
			return nil, err
		}
		return []Delta{{Type: DeltaCarpoolCreated, CarpoolID: carpool.ID, Data: carpool}}, nil
	})
	if err != nil {
		return nil, err
	}
	for _, d := range deltas {
		e.bus.Publish(d)
	}

	sortSchedule(carpool.Schedule)
	return &carpool, nil
}

// UpdateCarpool replaces the car, location and schedule of the caller's
// carpool. The seat figure given for a day is its new capacity; seats already
// consumed by approved bookings stay consumed, and an update that would leave
// a day with less capacity than approved bookings fails with
// ErrInventoryConflict.
func (e *Engine) UpdateCarpool(ctx context.Context, carpoolID, driverID uint, spec CarpoolSpec) (*models.Carpool, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}

	var carpool models.Carpool
	err := e.withAggregate(ctx, carpoolID, func(tx *gorm.DB) ([]Delta, error) {
		if err := tx.First(&carpool, carpoolID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, e.carpoolErr(carpoolID)
			}
			return nil, err
		}
		if carpool.DriverID != driverID {
			return nil, ErrNotOwner
		}

		approved, err := approvedCountByDay(tx, carpoolID)
		if err != nil {
			return nil, err
		}
		kept := make(map[models.Weekday]bool)
		slots := make([]models.DaySlot, 0, len(spec.Schedule))
		for _, s := range spec.Schedule {
			kept[s.Day] = true
			if s.AvailableSeats < approved[s.Day] {
				return nil, ErrInventoryConflict
			}
			slots = append(slots, models.DaySlot{
				CarpoolID:      carpoolID,
				Day:            s.Day,
				DepartureTime:  s.DepartureTime,
				ReturnTime:     s.ReturnTime,
				AvailableSeats: s.AvailableSeats - approved[s.Day],
				SeatCapacity:   s.AvailableSeats,
			})
		}
		// A day cannot be dropped while riders hold approved seats on it.
		for day, count := range approved {
			if count > 0 && !kept[day] {
				return nil, ErrInventoryConflict
			}
		}

		carpool.CarModel = spec.CarModel
		carpool.DepartureLocation = spec.DepartureLocation
		if err := tx.Save(&carpool).Error; err != nil {
			return nil, err
		}
		if err := tx.Unscoped().Where("carpool_id = ?", carpoolID).Delete(&models.DaySlot{}).Error; err != nil {
			return nil, err
		}
		if err := tx.Create(&slots).Error; err != nil {
			return nil, err
		}
		carpool.Schedule = slots
		return []Delta{{Type: DeltaCarpoolUpdated, CarpoolID: carpoolID, Data: carpool}}, nil
	})
	if err != nil {
		return nil, err
	}

	sortSchedule(carpool.Schedule)
	return &carpool, nil
}

// DeleteCarpool removes the caller's carpool, cascades to every booking
// referencing it, tombstones the ID, and notifies riders that held active
// bookings with a ride_removed delta.
func (e *Engine) DeleteCarpool(ctx context.Context, carpoolID, driverID uint) error {
	lock := e.lockFor(carpoolID)
	lock.Lock()
	defer lock.Unlock()

	if e.tombstoned(carpoolID) {
		return ErrResourceGone
	}

	deltas, err := e.transact(ctx, func(tx *gorm.DB) ([]Delta, error) {
		var carpool models.Carpool
		if err := tx.First(&carpool, carpoolID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		if carpool.DriverID != driverID {
			return nil, ErrNotOwner
		}

		var bookings []models.BookingRequest
		if err := tx.Where("carpool_id = ?", carpoolID).Find(&bookings).Error; err != nil {
			return nil, err
		}

		if err := tx.Unscoped().Where("carpool_id = ?", carpoolID).Delete(&models.BookingRequest{}).Error; err != nil {
			return nil, err
		}
		if err := tx.Unscoped().Where("carpool_id = ?", carpoolID).Delete(&models.DaySlot{}).Error; err != nil {
			return nil, err
		}
		if err := tx.Unscoped().Delete(&carpool).Error; err != nil {
			return nil, err
		}

		deltas := []Delta{{Type: DeltaCarpoolDeleted, CarpoolID: carpoolID, Data: carpool}}
		for _, b := range bookings {
			if b.Active() {
				deltas = append(deltas, Delta{
					Type:      DeltaRideRemoved,
					CarpoolID: carpoolID,
					RiderID:   b.RiderID,
					Data:      b,
				})
			}
		}
		return deltas, nil
	})
	if err != nil {
		return err
	}

	e.addTombstone(carpoolID)
	for _, d := range deltas {
		e.bus.Publish(d)
	}
	return nil
}

// ListCarpools returns every carpool, optionally filtered by a destination
// substring match on the departure location.
func (e *Engine) ListCarpools(ctx context.Context, location string) ([]models.Carpool, error) {
	var carpools []models.Carpool
	query := e.db.WithContext(ctx).Preload("Schedule")
	if location != "" {
		query = query.Where("LOWER(departure_location) LIKE ?", "%"+strings.ToLower(location)+"%")
	}
	if err := query.Find(&carpools).Error; err != nil {
		return nil, err
	}
	for i := range carpools {
		sortSchedule(carpools[i].Schedule)
	}
	return carpools, nil
}

// GetCarpool returns one carpool with its schedule.
func (e *Engine) GetCarpool(ctx context.Context, carpoolID uint) (*models.Carpool, error) {
	var carpool models.Carpool
	if err := e.db.WithContext(ctx).Preload("Schedule").First(&carpool, carpoolID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, e.carpoolErr(carpoolID)
		}
		return nil, err
	}
	sortSchedule(carpool.Schedule)
	return &carpool, nil
}

// CarpoolByDriver returns the carpool owned by a driver, if any.
func (e *Engine) CarpoolByDriver(ctx context.Context, driverID uint) (*models.Carpool, error) {
	var carpool models.Carpool
	err := e.db.WithContext(ctx).Preload("Schedule").Where("driver_id = ?", driverID).First(&carpool).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	sortSchedule(carpool.Schedule)
	return &carpool, nil
}

func approvedCountByDay(tx *gorm.DB, carpoolID uint) (map[models.Weekday]int, error) {
	var bookings []models.BookingRequest
	err := tx.Where("carpool_id = ? AND status = ?", carpoolID, models.BookingStatusApproved).Find(&bookings).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[models.Weekday]int)
	for _, b := range bookings {
		counts[b.Day]++
	}
	return counts, nil
}

var weekdayOrder = map[models.Weekday]int{
	models.Monday:    0,
	models.Tuesday:   1,
	models.Wednesday: 2,
	models.Thursday:  3,
	models.Friday:    4,
}

func sortSchedule(slots []models.DaySlot) {
	sort.Slice(slots, func(i, j int) bool {
		return weekdayOrder[slots[i].Day] < weekdayOrder[slots[j].Day]
	})
}
