// Package datarequest implements the two-party approval flow for time-boxed
// access to another tenant's sensitive data. The state machine is
// pending -> approved | rejected | expired, all terminal. Expiry is evaluated
// at read time from the stored deadline; there is no background sweep.
package datarequest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keyward/keyward/internal/audit"
	"github.com/keyward/keyward/internal/errs"
	"github.com/keyward/keyward/internal/store"
	"github.com/keyward/keyward/internal/tenant"
	"github.com/keyward/keyward/pkg/models"
)

const (
	maxReasonLen = 500
	// DefaultTTL bounds how long an undecided request stays actionable.
	DefaultTTL = 72 * time.Hour
)

// Service owns the data-request lifecycle. Only privileged operators reach
// it; the privilege check happens at the HTTP layer.
type Service struct {
	kv       store.KV
	auditLog *audit.Log
	tenants  *tenant.Service
	ttl      time.Duration
	now      func() time.Time
}

func NewService(kv store.KV, auditLog *audit.Log, tenants *tenant.Service, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{kv: kv, auditLog: auditLog, tenants: tenants, ttl: ttl, now: time.Now}
}

// SetClock overrides the clock for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Create opens a pending request against the target tenant and audits it
// under that tenant, so the target's trail shows who asked for what.
func (s *Service) Create(ctx context.Context, requesterID string, targetTenantID uuid.UUID, dataType, reason string) (*models.DataRequest, error) {
	dataType = strings.TrimSpace(dataType)
	reason = strings.TrimSpace(reason)
	if dataType == "" {
		return nil, errs.NewValidation("missing_data_type", "data_type is required")
	}
	if reason == "" || len(reason) > maxReasonLen {
		return nil, errs.NewValidation("invalid_reason", "reason is required and must be at most 500 characters")
	}
	if _, err := s.tenants.Get(ctx, targetTenantID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	req := &models.DataRequest{
		ID:             uuid.New(),
		RequesterID:    requesterID,
		TargetTenantID: targetTenantID,
		DataType:       dataType,
		Reason:         reason,
		Status:         models.RequestPending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.ttl),
	}
	if err := s.put(ctx, req); err != nil {
		return nil, err
	}

	s.auditLog.Record(ctx, audit.Event{
		TenantID: targetTenantID,
		Actor:    requesterID,
		Action:   audit.ActionRequestCreated,
		Target:   req.ID.String(),
		Detail:   map[string]string{"data_type": dataType},
	})
	return req, nil
}

// Get returns a request, applying expiry if its deadline has passed.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.DataRequest, error) {
	data, err := s.kv.Get(ctx, store.DataRequestKey(id))
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.NewNotFound("request_not_found", "data request does not exist")
	}
	if err != nil {
		return nil, errs.NewUpstream("storage_error", "failed to load data request")
	}

	var req models.DataRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, errs.NewUpstream("storage_error", "failed to load data request")
	}
	s.applyExpiry(ctx, &req)
	return &req, nil
}

// List returns all requests, newest first, with expiry applied.
func (s *Service) List(ctx context.Context) ([]*models.DataRequest, error) {
	entries, err := s.kv.List(ctx, "dr:", 0)
	if err != nil {
		return nil, errs.NewUpstream("storage_error", "failed to list data requests")
	}

	reqs := make([]*models.DataRequest, 0, len(entries))
	for _, e := range entries {
		var req models.DataRequest
		if err := json.Unmarshal(e.Value, &req); err != nil {
			continue
		}
		s.applyExpiry(ctx, &req)
		reqs = append(reqs, &req)
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].CreatedAt.After(reqs[j].CreatedAt) })
	return reqs, nil
}

// Approve moves a pending request to approved.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, decidedBy string) (*models.DataRequest, error) {
	return s.decide(ctx, id, decidedBy, models.RequestApproved, audit.ActionRequestApproved)
}

// Reject moves a pending request to rejected.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, decidedBy string) (*models.DataRequest, error) {
	return s.decide(ctx, id, decidedBy, models.RequestRejected, audit.ActionRequestRejected)
}

func (s *Service) decide(ctx context.Context, id uuid.UUID, decidedBy string, status models.DataRequestStatus, action string) (*models.DataRequest, error) {
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		return nil, errs.NewConflict("request_closed", "data request is no longer pending")
	}

	req.Status = status
	req.DecidedBy = decidedBy
	if err := s.put(ctx, req); err != nil {
		return nil, err
	}

	s.auditLog.Record(ctx, audit.Event{
		TenantID: req.TargetTenantID,
		Actor:    decidedBy,
		Action:   action,
		Target:   req.ID.String(),
		Detail:   map[string]string{"data_type": req.DataType},
	})
	return req, nil
}

// applyExpiry flips a pending request past its deadline to expired and
// persists the transition best-effort. The returned view is authoritative
// either way.
func (s *Service) applyExpiry(ctx context.Context, req *models.DataRequest) {
	if req.Status != models.RequestPending || s.now().UTC().Before(req.ExpiresAt) {
		return
	}
	req.Status = models.RequestExpired
	if err := s.put(ctx, req); err != nil {
		slog.Warn("failed to persist data request expiry", "request_id", req.ID, "error", err)
	}
}

func (s *Service) put(ctx context.Context, req *models.DataRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return errs.NewUpstream("storage_error", "failed to store data request")
	}
	if err := s.kv.Put(ctx, store.DataRequestKey(req.ID), data, 0); err != nil {
		return errs.NewUpstream("storage_error", "failed to store data request")
	}
	return nil
}
