package tenant

import (
	"time"
)

// Tenant represents one customer business on the booking platform
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Status constants
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusCancelled = "cancelled"
)

// IsActive reports whether the tenant may receive traffic
func (t *Tenant) IsActive() bool {
	return t != nil && t.Status == StatusActive
}

// ValidStatus reports whether s is a known lifecycle status
func ValidStatus(s string) bool {
	switch s {
	case StatusActive, StatusSuspended, StatusCancelled:
		return true
	}
	return false
}
