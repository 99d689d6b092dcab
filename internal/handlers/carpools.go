package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/unipool/unipool-backend/internal/engine"
	"github.com/unipool/unipool-backend/internal/models"
	"gorm.io/gorm"
)

// ListCarpools retrieves all carpools, optionally filtered by departure
// location substring.
func ListCarpools(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		location := c.Query("departureLocation")

		carpools, err := eng.ListCarpools(c.Request.Context(), location)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(200, carpools)
	}
}

// CreateCarpool handles the creation of a carpool by a driver
func CreateCarpool(db *gorm.DB, eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := c.GetUint("userId")

		var spec engine.CarpoolSpec
		if err := c.ShouldBindJSON(&spec); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		var user models.User
		if err := db.First(&user, userId).Error; err != nil {
			c.JSON(404, gin.H{"error": "User not found"})
			return
		}

		carpool, err := eng.CreateCarpool(c.Request.Context(), userId, user.Username, spec)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(201, carpool)
	}
}

// GetMyCarpool retrieves the carpool owned by the caller, if any
func GetMyCarpool(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := c.GetUint("userId")

		carpool, err := eng.CarpoolByDriver(c.Request.Context(), userId)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(200, carpool)
	}
}

// UpdateCarpool replaces the caller's carpool details and schedule
func UpdateCarpool(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := c.GetUint("userId")
		carpoolID, err := parseID(c.Param("id"))
		if err != nil {
			c.JSON(400, gin.H{"error": "Invalid carpool ID"})
			return
		}

		var spec engine.CarpoolSpec
		if err := c.ShouldBindJSON(&spec); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		carpool, err := eng.UpdateCarpool(c.Request.Context(), carpoolID, userId, spec)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(200, carpool)
	}
}

// DeleteCarpool removes the caller's carpool and all bookings against it
func DeleteCarpool(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := c.GetUint("userId")
		carpoolID, err := parseID(c.Param("id"))
		if err != nil {
			c.JSON(400, gin.H{"error": "Invalid carpool ID"})
			return
		}

		if err := eng.DeleteCarpool(c.Request.Context(), carpoolID, userId); err != nil {
			respondError(c, err)
			return
		}

		c.JSON(200, gin.H{"message": "Carpool successfully deleted"})
	}
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
