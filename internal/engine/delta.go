package engine

// DeltaType identifies the kind of state change a delta carries.
type DeltaType string

const (
	DeltaCarpoolCreated DeltaType = "carpool_created"
	DeltaCarpoolUpdated DeltaType = "carpool_updated"
	DeltaCarpoolDeleted DeltaType = "carpool_deleted"
	DeltaBookingCreated DeltaType = "booking_created"
	DeltaBookingUpdated DeltaType = "booking_updated"
	DeltaBookingRemoved DeltaType = "booking_removed"
	// DeltaRideRemoved tells a specific rider that a carpool they had a
	// booking on was deleted out from under them.
	DeltaRideRemoved   DeltaType = "ride_removed"
	DeltaMessagePosted DeltaType = "message_posted"
)

// Delta is one committed state change. The key fields (CarpoolID, RiderID,
// sender/receiver) exist so subscribers can be matched without inspecting the
// payload; Data holds the affected entity.
type Delta struct {
	Type       DeltaType   `json:"type"`
	CarpoolID  uint        `json:"carpoolId"`
	RiderID    uint        `json:"riderId,omitempty"`
	SenderID   uint        `json:"senderId,omitempty"`
	ReceiverID uint        `json:"receiverId,omitempty"`
	Data       interface{} `json:"data,omitempty"`
}

// Bus receives every committed delta. Publishing must not block the mutating
// call; implementations buffer or drop. Deltas for one carpool aggregate are
// published in commit order because the engine publishes while still holding
// the aggregate lock.
type Bus interface {
	Publish(delta Delta)
}

type noopBus struct{}

func (noopBus) Publish(Delta) {}
