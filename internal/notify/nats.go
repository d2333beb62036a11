package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Publisher is the part of *nats.Conn the NATS channel uses.
type Publisher interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
}

// NATSChannel publishes messages on a subject. The recipient is the subject
// suffix, appended to the configured prefix.
type NATSChannel struct {
	pub    Publisher
	prefix string
}

type natsPayload struct {
	EventID     uint      `json:"event_id"`
	SiteID      string    `json:"site_id,omitempty"`
	MessageType string    `json:"message_type"`
	Severity    string    `json:"severity"`
	Subject     string    `json:"subject"`
	Text        string    `json:"text"`
	SentAt      time.Time `json:"sent_at"`
}

func NewNATSChannel(pub Publisher, prefix string) *NATSChannel {
	return &NATSChannel{pub: pub, prefix: strings.TrimSuffix(prefix, ".")}
}

func (n *NATSChannel) Name() string { return "nats" }

func (n *NATSChannel) subject(recipient string) string {
	if n.prefix == "" {
		return recipient
	}
	return n.prefix + "." + recipient
}

// Send publishes and flushes, so a nil error means the server has the message.
func (n *NATSChannel) Send(ctx context.Context, recipient string, msg Message) DeliveryResult {
	data, err := json.Marshal(natsPayload{
		EventID:     msg.EventID,
		SiteID:      msg.SiteID,
		MessageType: string(msg.Type),
		Severity:    string(msg.Severity),
		Subject:     msg.Subject,
		Text:        msg.Text,
		SentAt:      time.Now().UTC(),
	})
	if err != nil {
		return failed(fmt.Errorf("%w: failed to marshal nats message: %v", ErrPermanent, err))
	}

	id := msg.DeliveryKey()
	header := nats.Header{}
	// JetStream de-duplicates on this header
	header.Set(nats.MsgIdHdr, id)

	if err := n.pub.PublishMsg(&nats.Msg{
		Subject: n.subject(recipient),
		Data:    data,
		Header:  header,
	}); err != nil {
		return failed(fmt.Errorf("nats publish failed: %w", err))
	}
	if err := n.pub.FlushWithContext(ctx); err != nil {
		return failed(fmt.Errorf("nats flush failed: %w", err))
	}
	return delivered(id)
}

// ConnectNATS opens a connection that keeps reconnecting once established.
func ConnectNATS(url string, log logrus.FieldLogger) (*nats.Conn, error) {
	return nats.Connect(
		url,
		nats.Name("sitewatch"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.WithError(err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("NATS reconnected")
		}),
	)
}
