package notify

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

// Sender is the part of gomail.Dialer the email channel needs.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type EmailChannel struct {
	sender Sender
	from   string
}

func NewEmailChannel(host string, port int, from, password string) *EmailChannel {
	return &EmailChannel{
		sender: gomail.NewDialer(host, port, from, password),
		from:   from,
	}
}

func NewEmailChannelWithSender(sender Sender, from string) *EmailChannel {
	return &EmailChannel{sender: sender, from: from}
}

func (e *EmailChannel) Name() string { return "email" }

func (e *EmailChannel) Send(ctx context.Context, recipient string, msg Message) DeliveryResult {
	messageID := fmt.Sprintf("<%s@sitewatch>", msg.DeliveryKey())

	m := gomail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", recipient)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", messageID)
	m.SetBody("text/plain", msg.Text)

	// gomail has no context support; abandon the wait when ctx ends
	errc := make(chan error, 1)
	go func() { errc <- e.sender.DialAndSend(m) }()

	select {
	case err := <-errc:
		if err != nil {
			return failed(fmt.Errorf("failed to send email: %w", err))
		}
		return delivered(messageID)
	case <-ctx.Done():
		return failed(ctx.Err())
	}
}
