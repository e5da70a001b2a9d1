package models

import (
	"time"

	"github.com/google/uuid"
)

// DataRequestStatus is the state of a sensitive-data access request.
// Pending is the only non-terminal state; expiry is evaluated lazily at read
// time from ExpiresAt, never by a background sweep.
type DataRequestStatus string

const (
	RequestPending  DataRequestStatus = "pending"
	RequestApproved DataRequestStatus = "approved"
	RequestRejected DataRequestStatus = "rejected"
	RequestExpired  DataRequestStatus = "expired"
)

// DataRequest is a time-boxed, two-party-approved request by a privileged
// operator to access another tenant's sensitive field.
type DataRequest struct {
	ID             uuid.UUID         `json:"request_id"`
	RequesterID    string            `json:"requester_id"`
	TargetTenantID uuid.UUID         `json:"target_tenant_id"`
	DataType       string            `json:"data_type"`
	Reason         string            `json:"reason"`
	Status         DataRequestStatus `json:"status"`
	DecidedBy      string            `json:"decided_by,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	ExpiresAt      time.Time         `json:"expires_at"`
}

// Terminal reports whether the request can no longer transition.
func (s DataRequestStatus) Terminal() bool {
	return s != RequestPending
}
