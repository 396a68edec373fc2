// Package history records the outcome of every scan (granted or denied,
// online or offline) so guards can review recent activity on the terminal.
package history

import (
	"time"

	"github.com/google/uuid"

	"github.com/nubewired/scangate/internal/offline"
)

// Entry is one recorded scan outcome.
type Entry struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	ContractorName string    `json:"contractorName"`
	Company        string    `json:"company,omitempty"`
	Email          string    `json:"email,omitempty"`
	Result         string    `json:"result"` // "granted" or "denied"
	Reason         string    `json:"reason,omitempty"`
}

// NewEntry builds a history entry from a validation decision.
func NewEntry(d *offline.Decision, at time.Time) *Entry {
	e := &Entry{
		ID:             uuid.NewString(),
		Timestamp:      at,
		ContractorName: "Unknown",
		Result:         string(d.Status),
		Reason:         d.Reason,
	}
	if d.Contractor != nil {
		e.ContractorName = d.Contractor.FullName
		e.Company = d.Contractor.Company
		e.Email = d.Contractor.Email
	}
	return e
}
