package handlers

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/unipool/unipool-backend/internal/engine"
	"github.com/unipool/unipool-backend/internal/models"
	"github.com/unipool/unipool-backend/internal/queue"
	"github.com/unipool/unipool-backend/pkg/utils"
	"gorm.io/gorm"
)

// CreateBooking files a pending booking request for one weekday of a carpool
func CreateBooking(db *gorm.DB, eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := c.GetUint("userId")

		var input struct {
			CarpoolID uint           `json:"carpoolId" binding:"required"`
			Day       models.Weekday `json:"day" binding:"required"`
		}

		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		var user models.User
		if err := db.First(&user, userId).Error; err != nil {
			c.JSON(404, gin.H{"error": "User not found"})
			return
		}

		booking, err := eng.RequestBooking(c.Request.Context(), input.CarpoolID, userId, user.Username, input.Day)
		if err != nil {
			respondError(c, err)
			return
		}

		// Let the driver know outside the request path
		go notifyDriver(db, eng, booking)

		c.JSON(201, booking)
	}
}

// GetRiderBookings retrieves all bookings the caller filed as a rider
func GetRiderBookings(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := c.GetUint("userId")

		bookings, err := eng.RiderBookings(c.Request.Context(), userId)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(200, bookings)
	}
}

// GetDriverBookings retrieves all bookings against the caller's carpool
func GetDriverBookings(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := c.GetUint("userId")

		carpool, err := eng.CarpoolByDriver(c.Request.Context(), userId)
		if err != nil {
			respondError(c, err)
			return
		}

		bookings, err := eng.CarpoolBookings(c.Request.Context(), carpool.ID)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(200, bookings)
	}
}

// UpdateBookingStatus lets the driver approve or decline a pending booking
func UpdateBookingStatus(db *gorm.DB, eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := c.GetUint("userId")
		bookingID, err := parseID(c.Param("id"))
		if err != nil {
			c.JSON(400, gin.H{"error": "Invalid booking ID"})
			return
		}

		var input struct {
			Status string `json:"status" binding:"required,oneof=approved declined"`
		}

		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		booking, err := eng.SetBookingStatus(c.Request.Context(), bookingID, userId, models.BookingStatus(input.Status))
		if err != nil {
			respondError(c, err)
			return
		}

		go notifyRider(db, eng, booking)

		c.JSON(200, booking)
	}
}

// CancelBooking removes the caller's own booking
func CancelBooking(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := c.GetUint("userId")
		bookingID, err := parseID(c.Param("id"))
		if err != nil {
			c.JSON(400, gin.H{"error": "Invalid booking ID"})
			return
		}

		// Snapshot the booking before it is removed so the event feed can
		// still describe it.
		booking, _ := eng.GetBooking(c.Request.Context(), bookingID, userId)

		if err := eng.CancelBooking(c.Request.Context(), bookingID, userId); err != nil {
			respondError(c, err)
			return
		}

		if booking != nil {
			go notifyCancellation(eng, booking)
		}

		c.JSON(200, gin.H{"message": "Booking cancelled"})
	}
}

// notifyDriver emails the carpool owner about a new request and feeds the
// booking event queue. Failures are logged, never surfaced to the rider.
func notifyDriver(db *gorm.DB, eng *engine.Engine, booking *models.BookingRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	carpool, err := eng.GetCarpool(ctx, booking.CarpoolID)
	if err != nil {
		log.Printf("Failed to load carpool %d for notification: %v", booking.CarpoolID, err)
		return
	}

	var driver models.User
	if err := db.First(&driver, carpool.DriverID).Error; err == nil {
		if err := utils.SendNewBookingRequestEmail(driver.Email, booking.RiderName, string(booking.Day)); err != nil {
			log.Printf("Failed to send booking request email: %v", err)
		}
	}

	publishBookingEvent(ctx, "requested", booking, carpool)
}

// notifyRider emails the rider about the driver's decision and feeds the
// booking event queue.
func notifyRider(db *gorm.DB, eng *engine.Engine, booking *models.BookingRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	carpool, err := eng.GetCarpool(ctx, booking.CarpoolID)
	if err != nil {
		log.Printf("Failed to load carpool %d for notification: %v", booking.CarpoolID, err)
		return
	}

	var rider models.User
	if err := db.First(&rider, booking.RiderID).Error; err == nil {
		switch booking.Status {
		case models.BookingStatusApproved:
			if err := utils.SendBookingApprovedEmail(rider.Email, carpool.DriverName, carpool.CarModel, string(booking.Day)); err != nil {
				log.Printf("Failed to send approval email: %v", err)
			}
		case models.BookingStatusDeclined:
			if err := utils.SendBookingDeclinedEmail(rider.Email, string(booking.Day)); err != nil {
				log.Printf("Failed to send decline email: %v", err)
			}
		}
	}

	publishBookingEvent(ctx, string(booking.Status), booking, carpool)
}

// notifyCancellation feeds the booking event queue; no email, riders already
// know they cancelled.
func notifyCancellation(eng *engine.Engine, booking *models.BookingRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	carpool, err := eng.GetCarpool(ctx, booking.CarpoolID)
	if err != nil {
		return
	}
	publishBookingEvent(ctx, "cancelled", booking, carpool)
}

func publishBookingEvent(ctx context.Context, action string, booking *models.BookingRequest, carpool *models.Carpool) {
	if !queue.Enabled() {
		return
	}
	event := queue.BookingEvent{
		Action:            action,
		BookingID:         booking.ID,
		CarpoolID:         booking.CarpoolID,
		RiderID:           booking.RiderID,
		RiderName:         booking.RiderName,
		Day:               string(booking.Day),
		DriverName:        carpool.DriverName,
		DepartureLocation: carpool.DepartureLocation,
		OccurredAt:        time.Now().UTC().Format(time.RFC3339),
	}
	if err := queue.PublishBookingEvent(ctx, event); err != nil {
		log.Printf("Failed to publish booking event: %v", err)
	}
}
