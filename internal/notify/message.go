package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/sitewatch/internal/models"
)

const timeLayout = "2006-01-02 15:04 MST"

// FormatOutage renders the full or summary outage message. site may be nil.
func FormatOutage(event *models.AlertEvent, site *models.SiteMonitoring, messageType models.MessageType) Message {
	msg := Message{
		Type:     messageType,
		Severity: event.Severity,
		EventID:  event.ID,
		SiteID:   event.SiteID,
		Subject:  fmt.Sprintf("[%s] %s", strings.ToUpper(string(event.Severity)), event.Title),
	}

	if messageType == models.MessageTypeSummary {
		msg.Text = fmt.Sprintf("%s: %d/%d devices down (%.1f%%) since %s",
			siteLabel(event), event.OutageCount, event.DeviceCount, event.OutagePercentage,
			event.CreatedAt.Format(timeLayout))
		return msg
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Site: %s\n", siteLabel(event))
	fmt.Fprintf(&b, "Status: %s\n", eventLabel(event.EventType))
	fmt.Fprintf(&b, "Severity: %s\n", event.Severity)
	fmt.Fprintf(&b, "Devices down: %d of %d (%.1f%%)\n", event.OutageCount, event.DeviceCount, event.OutagePercentage)
	fmt.Fprintf(&b, "Detected: %s\n", event.CreatedAt.Format(timeLayout))
	if site != nil && (site.ContactName != "" || site.ContactPhone != "") {
		fmt.Fprintf(&b, "Contact: %s %s\n", site.ContactName, site.ContactPhone)
	}
	fmt.Fprintf(&b, "Incident: #%d", event.ID)
	msg.Text = b.String()
	return msg
}

func FormatRecovery(event *models.AlertEvent) Message {
	var downtime time.Duration
	if event.ResolvedAt != nil {
		downtime = event.ResolvedAt.Sub(event.CreatedAt).Round(time.Second)
	}
	return Message{
		Type:     models.MessageTypeRecovery,
		Severity: models.SeverityInfo,
		EventID:  event.ID,
		SiteID:   event.SiteID,
		Subject:  fmt.Sprintf("[RECOVERED] %s", siteLabel(event)),
		Text: fmt.Sprintf("%s is back to normal after %s (incident #%d).",
			siteLabel(event), downtime, event.ID),
	}
}

func siteLabel(event *models.AlertEvent) string {
	if event.SiteName != "" {
		return event.SiteName
	}
	return event.SiteID
}

func eventLabel(t models.EventType) string {
	switch t {
	case models.EventTypeSiteOutage:
		return "site down"
	case models.EventTypeSiteDegraded:
		return "site degraded"
	default:
		return string(t)
	}
}
