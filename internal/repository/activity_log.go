package repository

import (
	"time"

	"github.com/medsupport/helpdesk/internal/domain"
	"github.com/medsupport/helpdesk/internal/ids"
)

// prepareActivityLog fills the identifier and timestamp a caller left empty.
func prepareActivityLog(entry *domain.ActivityLog) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	} else {
		entry.Timestamp = entry.Timestamp.UTC()
	}
	if entry.ID == "" {
		entry.ID = ids.New(entry.Timestamp)
	}
}

// PrepareActivityLog is prepareActivityLog for alternative store implementations.
func PrepareActivityLog(entry *domain.ActivityLog) {
	prepareActivityLog(entry)
}
