package engine

import (
	"context"
	"errors"
	"time"

	"github.com/unipool/unipool-backend/internal/models"
	"gorm.io/gorm"
)

// PostMessage appends to the conversation between sender and receiver on a
// carpool. One side must be the carpool's driver and the other must hold an
// approved booking on it. Seq is assigned under the aggregate lock, so the
// append order is total within a conversation.
func (e *Engine) PostMessage(ctx context.Context, carpoolID, senderID, receiverID uint, text string) (*models.Message, error) {
	if text == "" || senderID == 0 || receiverID == 0 || senderID == receiverID {
		return nil, ErrInvalidArgument
	}

	var message models.Message
	err := e.withAggregate(ctx, carpoolID, func(tx *gorm.DB) ([]Delta, error) {
		var carpool models.Carpool
		if err := tx.First(&carpool, carpoolID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, e.carpoolErr(carpoolID)
			}
			return nil, err
		}

		if err := authorizePair(tx, &carpool, senderID, receiverID); err != nil {
			return nil, err
		}

		key := models.ConversationKey(carpoolID, senderID, receiverID)
		var last models.Message
		seq := uint64(1)
		err := tx.Where("convo_key = ?", key).Order("seq DESC").First(&last).Error
		if err == nil {
			seq = last.Seq + 1
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		message = models.Message{
			CarpoolID:  carpoolID,
			SenderID:   senderID,
			ReceiverID: receiverID,
			Text:       text,
			Seq:        seq,
			ConvoKey:   key,
			SentAt:     time.Now().UTC(),
		}
		if err := tx.Create(&message).Error; err != nil {
			return nil, err
		}
		return []Delta{{
			Type:       DeltaMessagePosted,
			CarpoolID:  carpoolID,
			SenderID:   senderID,
			ReceiverID: receiverID,
			Data:       message,
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// ListMessages returns the conversation between the caller and a peer on a
// carpool in append order. Repeated calls are prefix-consistent: new messages
// only ever extend the tail.
func (e *Engine) ListMessages(ctx context.Context, carpoolID, callerID, peerID uint) ([]models.Message, error) {
	if callerID == 0 || peerID == 0 || callerID == peerID {
		return nil, ErrInvalidArgument
	}

	key := models.ConversationKey(carpoolID, callerID, peerID)
	var messages []models.Message
	err := e.db.WithContext(ctx).Where("convo_key = ?", key).Order("seq ASC").Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// authorizePair checks that one participant drives the carpool and the other
// holds an approved booking on it.
func authorizePair(tx *gorm.DB, carpool *models.Carpool, a, b uint) error {
	var rider uint
	switch carpool.DriverID {
	case a:
		rider = b
	case b:
		rider = a
	default:
		return ErrNotAuthorized
	}

	var approved int64
	err := tx.Model(&models.BookingRequest{}).
		Where("carpool_id = ? AND rider_id = ? AND status = ?", carpool.ID, rider, models.BookingStatusApproved).
		Count(&approved).Error
	if err != nil {
		return err
	}
	if approved == 0 {
		return ErrNotAuthorized
	}
	return nil
}
