package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sitewatch/internal/models"
	"github.com/slack-go/slack"
)

type SlackChannel struct {
	client *slack.Client
}

// NewSlackChannel posts with a bot token. apiURL overrides the Slack API
// endpoint and is normally empty.
func NewSlackChannel(token, apiURL string) *SlackChannel {
	opts := []slack.Option{}
	if apiURL != "" {
		opts = append(opts, slack.OptionAPIURL(apiURL))
	}
	return &SlackChannel{client: slack.New(token, opts...)}
}

func (s *SlackChannel) Name() string { return "slack" }

func (s *SlackChannel) Send(ctx context.Context, recipient string, msg Message) DeliveryResult {
	attachment := slack.Attachment{
		Color: getSeverityColor(msg.Severity),
		Title: msg.Subject,
		Text:  msg.Text,
		Fields: []slack.AttachmentField{
			{
				Title: "Site",
				Value: msg.SiteID,
				Short: true,
			},
			{
				Title: "Incident",
				Value: fmt.Sprintf("#%d", msg.EventID),
				Short: true,
			},
		},
		Footer: "SiteWatch",
		Ts:     json.Number(strconv.FormatInt(time.Now().Unix(), 10)),
	}

	_, ts, err := s.client.PostMessageContext(ctx, recipient, slack.MsgOptionAttachments(attachment))
	if err != nil {
		return failed(fmt.Errorf("failed to send slack message: %w", err))
	}
	return delivered(ts)
}

func getSeverityColor(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "#ff0000"
	case models.SeverityHigh:
		return "#ff8c00"
	case models.SeverityMedium:
		return "#ffcc00"
	case models.SeverityInfo:
		return "#36a64f"
	default:
		return "#808080"
	}
}
