package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/unipool/unipool-backend/internal/engine"
)

// PostMessage appends a message to the conversation between the caller and a
// peer on a carpool
func PostMessage(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := c.GetUint("userId")

		var input struct {
			CarpoolID  uint   `json:"carpoolId" binding:"required"`
			ReceiverID uint   `json:"receiverId" binding:"required"`
			Text       string `json:"text" binding:"required"`
		}

		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		message, err := eng.PostMessage(c.Request.Context(), input.CarpoolID, userId, input.ReceiverID, input.Text)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(201, message)
	}
}

// ListMessages retrieves the conversation between the caller and a peer on a
// carpool in append order
func ListMessages(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := c.GetUint("userId")

		carpoolID, err := parseID(c.Query("carpoolId"))
		if err != nil {
			c.JSON(400, gin.H{"error": "Invalid carpool ID"})
			return
		}
		peerID, err := parseID(c.Query("peerId"))
		if err != nil {
			c.JSON(400, gin.H{"error": "Invalid peer ID"})
			return
		}

		messages, err := eng.ListMessages(c.Request.Context(), carpoolID, userId, peerID)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(200, messages)
	}
}
