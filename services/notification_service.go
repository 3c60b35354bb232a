package services

import (
	"context"
	"fmt"
	"log"

	"turf-booking/models"
	"turf-booking/utils"

	"github.com/pocketbase/pocketbase/core"
	pubnub "github.com/pubnub/go"
)

// NotificationService persists a notification record and pushes it to the
// user's realtime channel. Delivery is best effort and runs behind a circuit
// breaker so a flaky realtime provider cannot slow down the booking paths.
type NotificationService struct {
	app     core.App
	pubnub  *pubnub.PubNub
	breaker *utils.CircuitBreaker
}

func NewNotificationService(app core.App, pn *pubnub.PubNub) *NotificationService {
	return &NotificationService{
		app:     app,
		pubnub:  pn,
		breaker: utils.NewCircuitBreaker("notifications", utils.BreakerSettings{}),
	}
}

func (s *NotificationService) Send(ctx context.Context, userID, title, message, ntype string, metadata map[string]any) error {
	_, err := s.breaker.Execute(ctx, func() (any, error) {
		collection, err := s.app.FindCollectionByNameOrId("notifications")
		if err != nil {
			return nil, fmt.Errorf("notifications collection: %w", err)
		}

		record := core.NewRecord(collection)
		record.Set("user_id", userID)
		record.Set("title", title)
		record.Set("message", message)
		record.Set("type", ntype)
		record.Set("metadata", metadata)
		record.Set("read", false)

		if err := s.app.Save(record); err != nil {
			return nil, fmt.Errorf("save notification: %w", err)
		}

		if s.pubnub != nil {
			s.pubnub.Publish().
				Channel("user-" + userID).
				Message(map[string]any{
					"type":     ntype,
					"title":    title,
					"message":  message,
					"metadata": metadata,
				}).
				Execute()
		}
		return nil, nil
	})
	return err
}

// BookingConfirmed is fire and forget: callers run it in a goroutine and a
// failed notification never fails the booking.
func (s *NotificationService) BookingConfirmed(b *models.Booking) {
	err := s.Send(context.Background(), b.UserID,
		"Booking confirmed",
		fmt.Sprintf("Your %s slot %s on %s is confirmed.", b.Sport, b.TimeSlot, b.Date),
		"booking_confirmed",
		map[string]any{
			"booking_id": b.BookingID,
			"turf_id":    b.TurfID,
			"date":       b.Date,
			"time_slot":  b.TimeSlot,
		})
	if err != nil {
		log.Printf("notify: booking %s confirmation: %v", b.BookingID, err)
	}
}

func (s *NotificationService) BookingCancelled(b *models.Booking, refundEligible bool) {
	message := fmt.Sprintf("Your %s slot %s on %s was cancelled.", b.Sport, b.TimeSlot, b.Date)
	if refundEligible {
		message += " A refund will be processed."
	}

	err := s.Send(context.Background(), b.UserID,
		"Booking cancelled",
		message,
		"booking_cancelled",
		map[string]any{
			"booking_id":      b.BookingID,
			"turf_id":         b.TurfID,
			"date":            b.Date,
			"time_slot":       b.TimeSlot,
			"refund_eligible": refundEligible,
		})
	if err != nil {
		log.Printf("notify: booking %s cancellation: %v", b.BookingID, err)
	}
}
