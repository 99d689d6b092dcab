package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Message is one entry in a (carpool, participant-pair) conversation. Seq is
// assigned by the engine and is strictly increasing within a conversation, so
// ordering by Seq gives the total append order regardless of clock skew.
type Message struct {
	gorm.Model
	CarpoolID  uint      `json:"carpoolId" gorm:"index;not null"`
	SenderID   uint      `json:"senderId" gorm:"not null"`
	ReceiverID uint      `json:"receiverId" gorm:"not null"`
	Text       string    `json:"text" gorm:"not null"`
	Seq        uint64    `json:"seq" gorm:"index:idx_convo_seq;not null"`
	ConvoKey   string    `json:"-" gorm:"index:idx_convo_seq;not null"`
	SentAt     time.Time `json:"sentAt" gorm:"not null"`
}

// ConversationKey identifies the channel shared by two participants on a
// carpool. The pair is ordered so both sides derive the same key.
func ConversationKey(carpoolID, a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d:%d", carpoolID, a, b)
}
