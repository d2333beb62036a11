package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sitewatch/internal/models"
)

// SnapshotProvider returns the current counters for every site. An empty
// slice means no sites; an error wrapping ErrProviderUnavailable means the
// readings could not be obtained at all.
type SnapshotProvider interface {
	FetchSnapshots(ctx context.Context) ([]models.SiteSnapshot, error)
}

// ProviderFunc adapts a function to SnapshotProvider.
type ProviderFunc func(ctx context.Context) ([]models.SiteSnapshot, error)

func (f ProviderFunc) FetchSnapshots(ctx context.Context) ([]models.SiteSnapshot, error) {
	return f(ctx)
}

// ValidateSnapshot rejects readings that cannot be classified.
func ValidateSnapshot(s models.SiteSnapshot) error {
	if strings.TrimSpace(s.SiteID) == "" {
		return fmt.Errorf("%w: missing site id", ErrMalformedSnapshot)
	}
	if s.DeviceCount < 0 || s.DeviceOutageCount < 0 {
		return fmt.Errorf("%w: site %s has negative or missing counts (%d/%d)",
			ErrMalformedSnapshot, s.SiteID, s.DeviceOutageCount, s.DeviceCount)
	}
	return nil
}

const sitesPath = "/nms/api/v2.1/sites"

// UISPProvider reads site counters from a UISP/UNMS controller.
type UISPProvider struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewUISPProvider(baseURL, token string, timeout time.Duration) *UISPProvider {
	return &UISPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

type uispSite struct {
	Identification struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"identification"`
	Description struct {
		DeviceCount       *int `json:"deviceCount"`
		DeviceOutageCount *int `json:"deviceOutageCount"`
		Contact           struct {
			Name  string `json:"name"`
			Phone string `json:"phone"`
			Email string `json:"email"`
		} `json:"contact"`
	} `json:"description"`
}

func (p *UISPProvider) FetchSnapshots(ctx context.Context) ([]models.SiteSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+sitesPath, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	req.Header.Set("X-Auth-Token", p.token)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrProviderUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var sites []uispSite
	if err := json.NewDecoder(resp.Body).Decode(&sites); err != nil {
		return nil, fmt.Errorf("%w: decode sites: %v", ErrProviderUnavailable, err)
	}

	snapshots := make([]models.SiteSnapshot, 0, len(sites))
	for _, s := range sites {
		snapshots = append(snapshots, models.SiteSnapshot{
			SiteID:            s.Identification.ID,
			SiteName:          s.Identification.Name,
			DeviceCount:       countOrMissing(s.Description.DeviceCount),
			DeviceOutageCount: countOrMissing(s.Description.DeviceOutageCount),
			ContactName:       s.Description.Contact.Name,
			ContactPhone:      s.Description.Contact.Phone,
			ContactEmail:      s.Description.Contact.Email,
		})
	}
	return snapshots, nil
}

// missing counters are reported as -1 so validation can reject them
func countOrMissing(v *int) int {
	if v == nil {
		return -1
	}
	return *v
}
