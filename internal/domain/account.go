package domain

import "time"

// Account is a billable account (a student) within a tenant. The account row
// exists mainly to be the lock target for per-account serialization; the
// balance itself lives in the entry log and the snapshot cache.
type Account struct {
	ID        string
	TenantID  string
	Name      string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
