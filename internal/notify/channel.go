package notify

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/sitewatch/internal/models"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrNotRetryable         = errors.New("only failed notifications can be retried")
	// ErrPermanent marks a send error that retrying cannot fix.
	ErrPermanent = errors.New("permanent delivery failure")
)

// Message is the payload handed to a channel. NotificationID is the
// delivery row the message belongs to; the dispatcher sets it.
type Message struct {
	Type           models.MessageType
	Severity       models.Severity
	EventID        uint
	NotificationID uint
	SiteID         string
	Subject        string
	Text           string
}

// DeliveryKey identifies one delivery across every attempt of it, so a
// receiver can drop duplicates. Messages sent outside the dispatcher get a
// random key.
func (m Message) DeliveryKey() string {
	if m.NotificationID == 0 {
		return "sitewatch-" + uuid.NewString()
	}
	return "sitewatch-" + strconv.FormatUint(uint64(m.NotificationID), 10)
}

// DeliveryResult is the outcome of one send attempt.
type DeliveryResult struct {
	OK                bool
	ProviderMessageID string
	Err               error
}

func delivered(id string) DeliveryResult {
	return DeliveryResult{OK: true, ProviderMessageID: id}
}

func failed(err error) DeliveryResult {
	return DeliveryResult{Err: err}
}

// Channel sends one message to one recipient. Implementations make a single
// attempt; retries belong to the Dispatcher.
type Channel interface {
	Name() string
	Send(ctx context.Context, recipient string, msg Message) DeliveryResult
}
