package alert

import (
	"errors"

	"github.com/sitewatch/internal/models"
)

var (
	ErrEventNotFound = models.ErrEventNotFound
	ErrSiteNotFound  = errors.New("site not found")
	// ErrPersistenceConflict reports that a concurrent writer opened the
	// site's incident first. The reconciler treats it as a no-op.
	ErrPersistenceConflict = errors.New("open incident already exists for site")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInvalidInput        = errors.New("invalid input")
)
