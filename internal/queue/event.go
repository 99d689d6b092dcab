// Package queue defines the booking lifecycle events published to the
// message broker and the background consumer that turns them into an audit
// log. The feed is best-effort: publish failures never fail the request that
// produced the event.
package queue

// BookingEvent is published whenever a booking request changes state. It
// carries enough denormalized context for downstream consumers to log or
// notify without querying the primary database.
type BookingEvent struct {
	Action            string `json:"action"` // requested, approved, declined, cancelled, ride_removed
	BookingID         uint   `json:"booking_id"`
	CarpoolID         uint   `json:"carpool_id"`
	RiderID           uint   `json:"rider_id"`
	RiderName         string `json:"rider_name"`
	Day               string `json:"day"`
	DriverName        string `json:"driver_name"`
	DepartureLocation string `json:"departure_location"`
	OccurredAt        string `json:"occurred_at"`
}
