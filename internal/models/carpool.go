package models

import (
	"gorm.io/gorm"
)

type Weekday string

const (
	Monday    Weekday = "Monday"
	Tuesday   Weekday = "Tuesday"
	Wednesday Weekday = "Wednesday"
	Thursday  Weekday = "Thursday"
	Friday    Weekday = "Friday"
)

// Weekdays lists the valid schedule days in display order.
var Weekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday}

func (d Weekday) Valid() bool {
	for _, day := range Weekdays {
		if d == day {
			return true
		}
	}
	return false
}

type Carpool struct {
	gorm.Model
	DriverID          uint      `json:"driverId" gorm:"uniqueIndex;not null"`
	Driver            *User     `json:"driver,omitempty"`
	DriverName        string    `json:"driverName" gorm:"not null"`
	CarModel          string    `json:"carModel" gorm:"not null"`
	DepartureLocation string    `json:"departureLocation" gorm:"not null"`
	Schedule          []DaySlot `json:"schedule" gorm:"foreignKey:CarpoolID"`
}

// DaySlot is one weekday's departure/return window and seat counter within a
// carpool's schedule. AvailableSeats stays in [0, SeatCapacity]; it is only
// mutated through booking approvals and cancellations.
type DaySlot struct {
	gorm.Model
	CarpoolID      uint    `json:"carpoolId" gorm:"index:idx_carpool_day,unique;not null"`
	Day            Weekday `json:"day" gorm:"index:idx_carpool_day,unique;not null"`
	DepartureTime  string  `json:"departureTime" gorm:"not null"`
	ReturnTime     string  `json:"returnTime" gorm:"not null"`
	AvailableSeats int     `json:"availableSeats" gorm:"not null"`
	SeatCapacity   int     `json:"seatCapacity" gorm:"not null"`
}
