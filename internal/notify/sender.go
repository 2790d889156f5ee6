package notify

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/tom474/fleetbooking/internal/kafka"
)

// templates maps notification template keys to their message skeletons.
// Placeholders use {param} syntax and are filled from the event params.
var templates = map[string]string{
	"RequesterBookingApproved":  "Your booking request {bookingId} has been approved.",
	"RequesterBookingRejected":  "Your booking request {bookingId} was rejected: {reason}",
	"RequesterBookingCancelled": "Booking request {bookingId} has been cancelled.",
	"DriverNewTripAssigned":     "You have a new trip on {date} at {time}.",
	"DriverTripCancelled":       "Your trip on {date} has been cancelled.",
	"StopSkipped":               "Passengers at stop {stopId} were skipped: {reason}",
	"LeaveApproved":             "Your leave request {requestId} has been approved.",
	"LeaveRejected":             "Your leave request {requestId} was rejected: {reason}",
	"VehicleServiceApproved":    "Vehicle service {requestId} has been approved.",
	"VehicleServiceRejected":    "Vehicle service {requestId} was rejected: {reason}",
	"ActivityApproved":          "Your activity log {requestId} has been approved.",
	"ActivityRejected":          "Your activity log {requestId} was rejected: {reason}",
}

// Sender renders templated notification events consumed from Kafka and
// hands them to the delivery channel. Delivery itself is out of scope
// here; rendered messages are logged.
type Sender struct{}

func NewSender() *Sender {
	return &Sender{}
}

func (s *Sender) Send(ctx context.Context, event kafka.NotificationEvent) error {
	message, err := Render(event.TemplateKey, event.Params)
	if err != nil {
		return err
	}
	log.Printf("notify %s %s: %s", event.Role, event.RecipientID, message)
	return nil
}

// Render fills the template for key with params.
func Render(key string, params map[string]string) (string, error) {
	tpl, ok := templates[key]
	if !ok {
		return "", fmt.Errorf("unknown notification template %q", key)
	}
	message := tpl
	for name, value := range params {
		message = strings.ReplaceAll(message, "{"+name+"}", value)
	}
	return message, nil
}
