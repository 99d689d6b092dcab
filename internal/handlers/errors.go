package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/unipool/unipool-backend/internal/engine"
)

// respondError translates an engine error into the matching HTTP status.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidArgument):
		c.JSON(400, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrNotFound), errors.Is(err, engine.ErrSlotNotFound):
		c.JSON(404, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrNotOwner), errors.Is(err, engine.ErrNotAuthorized),
		errors.Is(err, engine.ErrSelfBooking):
		c.JSON(403, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrDuplicateResource), errors.Is(err, engine.ErrDuplicateRequest),
		errors.Is(err, engine.ErrInvalidTransition), errors.Is(err, engine.ErrInventoryConflict),
		errors.Is(err, engine.ErrSlotExhausted):
		c.JSON(409, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrResourceGone):
		c.JSON(410, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrUnavailable):
		c.JSON(503, gin.H{"error": err.Error()})
	default:
		c.JSON(500, gin.H{"error": "internal error"})
	}
}
