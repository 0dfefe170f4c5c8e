package domain

import (
	"encoding/json"
	"time"
)

// AuditLog records who did what to which ledger resource.
type AuditLog struct {
	ID           string
	TenantID     string
	Actor        string // who performed the action
	Action       string // what action (entry.post, entry.reverse, ...)
	ResourceType string // entry, account, snapshot
	ResourceID   string
	BeforeState  JSON
	AfterState   JSON
	Status       string // success, failure, error
	ErrorMessage string
	CreatedAt    time.Time
}

// JSON is a type alias for JSON data
type JSON map[string]any

// AuditAction represents different types of auditable actions
type AuditAction string

const (
	AuditActionEntryPost       AuditAction = "entry.post"
	AuditActionEntryReverse    AuditAction = "entry.reverse"
	AuditActionSnapshotRebuild AuditAction = "snapshot.rebuild"
	AuditActionReconcile       AuditAction = "account.reconcile"
)

// AuditStatus represents the status of an audited action
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailure AuditStatus = "failure"
	AuditStatusError   AuditStatus = "error"
)

// MarshalState converts a domain object to JSON for audit logging
func MarshalState(v any) JSON {
	if v == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return JSON{"error": "failed to marshal state"}
	}

	var result JSON
	if err := json.Unmarshal(data, &result); err != nil {
		return JSON{"error": "failed to unmarshal state"}
	}

	return result
}
