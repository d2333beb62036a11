package alert

import (
	"errors"
	"fmt"

	"github.com/sitewatch/internal/models"
	"gorm.io/gorm"
)

// SiteStore reads the last known state of every site. Only the reconciler
// writes it.
type SiteStore struct {
	db *gorm.DB
}

func NewSiteStore(db *gorm.DB) *SiteStore {
	return &SiteStore{db: db}
}

func (s *SiteStore) List() ([]models.SiteMonitoring, error) {
	var sites []models.SiteMonitoring
	if err := s.db.Order("site_name, site_id").Find(&sites).Error; err != nil {
		return nil, err
	}
	return sites, nil
}

// ListOutages returns the sites currently degraded or down, worst first.
func (s *SiteStore) ListOutages() ([]models.SiteMonitoring, error) {
	var sites []models.SiteMonitoring
	if err := s.db.Where("tier IN ?", []models.HealthTier{models.TierDegraded, models.TierDown}).
		Order("outage_percentage DESC, site_id").
		Find(&sites).Error; err != nil {
		return nil, err
	}
	return sites, nil
}

func (s *SiteStore) Get(siteID string) (*models.SiteMonitoring, error) {
	var site models.SiteMonitoring
	if err := s.db.Where("site_id = ?", siteID).First(&site).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSiteNotFound, siteID)
		}
		return nil, err
	}
	return &site, nil
}
