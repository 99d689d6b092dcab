package models

import (
	"gorm.io/gorm"
)

type BookingStatus string

const (
	BookingStatusPending  BookingStatus = "pending"
	BookingStatusApproved BookingStatus = "approved"
	BookingStatusDeclined BookingStatus = "declined"
)

// BookingRequest is a rider's claim on one weekday of a carpool. Cancellation
// deletes the record; declined requests are kept for history and do not block
// a new request for the same day.
type BookingRequest struct {
	gorm.Model
	CarpoolID uint          `json:"carpoolId" gorm:"index;not null"`
	RiderID   uint          `json:"riderId" gorm:"index;not null"`
	RiderName string        `json:"riderName" gorm:"not null"`
	Day       Weekday       `json:"day" gorm:"not null"`
	Status    BookingStatus `json:"status" gorm:"not null;default:'pending'"`
}

// Active reports whether the request still competes for a seat.
func (b *BookingRequest) Active() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusApproved
}
