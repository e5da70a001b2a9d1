// Package names guarantees human-readable names are unique within a scope
// and enforces a rolling change limit per owner. Uniqueness is carried by the
// storage key for the normalized name, claimed with a conditional write, so
// two concurrent claims for the same name cannot both succeed.
package names

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keyward/keyward/internal/errs"
	"github.com/keyward/keyward/internal/store"
	"github.com/keyward/keyward/pkg/models"
)

// ScopeGlobal is the scope for names unique across all tenants, such as user
// display names. Tenant-scoped names use the tenant ID as the scope.
const ScopeGlobal = "global"

const (
	minNameLen = 3
	maxNameLen = 30
)

var nameCharset = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9 _-]*[a-zA-Z0-9]$`)

// Sanitize validates a candidate name and returns its display form. It is a
// pure function with no side effects and runs before any reservation attempt.
func Sanitize(raw string) (string, error) {
	name := strings.Join(strings.Fields(raw), " ")
	if len(name) < minNameLen || len(name) > maxNameLen {
		return "", errs.NewValidation("invalid_name", "name must be 3-30 characters")
	}
	if !nameCharset.MatchString(name) {
		return "", errs.NewValidation("invalid_name", "name may contain letters, digits, spaces, hyphens and underscores")
	}
	return name, nil
}

// Normalize maps a sanitized name to the form uniqueness is decided on.
// "Swift Eagle" and "swift eagle" are the same reservation.
func Normalize(name string) string {
	return strings.ToLower(name)
}

// ChangePolicy bounds how often an owner may change their name.
type ChangePolicy struct {
	Limit  int
	Window time.Duration
}

// Service owns name reservations and per-owner change histories.
type Service struct {
	kv     store.KV
	policy ChangePolicy
	now    func() time.Time
}

func NewService(kv store.KV, policy ChangePolicy) *Service {
	return &Service{kv: kv, policy: policy, now: time.Now}
}

// SetClock overrides the clock for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Reserve claims a name for an owner within a scope. The claim is atomic:
// exactly one of two concurrent callers wins. Re-reserving a name the owner
// already holds is a no-op.
func (s *Service) Reserve(ctx context.Context, name, scope string, ownerID uuid.UUID) error {
	res := models.NameReservation{
		Name:       name,
		Scope:      scope,
		OwnerID:    ownerID,
		ReservedAt: s.now().UTC(),
	}
	data, err := json.Marshal(res)
	if err != nil {
		return errs.NewUpstream("storage_error", "failed to reserve name")
	}

	key := store.NameKey(scope, Normalize(name))
	err = s.kv.PutIfAbsent(ctx, key, data, 0)
	if errors.Is(err, store.ErrKeyExists) {
		holder, herr := s.holder(ctx, key)
		if herr == nil && holder == ownerID {
			return nil
		}
		return errs.NewConflict("name_taken", "name is already reserved")
	}
	if err != nil {
		return errs.NewUpstream("storage_error", "failed to reserve name")
	}
	return nil
}

// Release frees a name. Idempotent: releasing a name that is not held, or
// held by someone else, is a no-op.
func (s *Service) Release(ctx context.Context, name, scope string, ownerID uuid.UUID) error {
	key := store.NameKey(scope, Normalize(name))
	holder, err := s.holder(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return errs.NewUpstream("storage_error", "failed to release name")
	}
	if holder != ownerID {
		return nil
	}
	if err := s.kv.Delete(ctx, key); err != nil && !errors.Is(err, store.ErrNotFound) {
		return errs.NewUpstream("storage_error", "failed to release name")
	}
	return nil
}

// IsUnique reports whether a name is free in a scope. Read-only, so callers
// can fail fast before a full change flow; the authoritative check is the
// conditional write inside Reserve.
func (s *Service) IsUnique(ctx context.Context, name, scope string) (bool, error) {
	_, err := s.kv.Get(ctx, store.NameKey(scope, Normalize(name)))
	if errors.Is(err, store.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, errs.NewUpstream("storage_error", "failed to check name")
	}
	return false, nil
}

// CanChange reports whether the owner is within the rolling change limit.
// When the limit is reached it returns the earliest time a change becomes
// possible again.
func (s *Service) CanChange(ctx context.Context, scope string, ownerID uuid.UUID) (bool, time.Time, error) {
	recent, err := s.recentChanges(ctx, scope, ownerID)
	if err != nil {
		return false, time.Time{}, err
	}
	if len(recent) < s.policy.Limit {
		return true, time.Time{}, nil
	}
	return false, recent[0].Add(s.policy.Window), nil
}

// RecordChange appends a change timestamp to the owner's history, pruning
// entries older than the window.
func (s *Service) RecordChange(ctx context.Context, scope string, ownerID uuid.UUID) error {
	recent, err := s.recentChanges(ctx, scope, ownerID)
	if err != nil {
		return err
	}
	hist := models.NameChangeHistory{
		OwnerID: ownerID,
		Changes: append(recent, s.now().UTC()),
	}
	data, err := json.Marshal(hist)
	if err != nil {
		return errs.NewUpstream("storage_error", "failed to record name change")
	}
	if err := s.kv.Put(ctx, store.NameHistoryKey(scope, ownerID), data, 0); err != nil {
		return errs.NewUpstream("storage_error", "failed to record name change")
	}
	return nil
}

// Current returns the owner's current name in a scope, if any.
func (s *Service) Current(ctx context.Context, scope string, ownerID uuid.UUID) (string, bool, error) {
	data, err := s.kv.Get(ctx, store.NameOwnerKey(scope, ownerID))
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errs.NewUpstream("storage_error", "failed to load name")
	}
	return string(data), true, nil
}

// Change runs the full display-name update: sanitize, rate-limit check,
// claim the new name, release the old one, record the change. Setting the
// name the owner already holds is idempotent and does not consume a change.
func (s *Service) Change(ctx context.Context, scope string, ownerID uuid.UUID, raw string) (string, error) {
	name, err := Sanitize(raw)
	if err != nil {
		return "", err
	}

	current, held, err := s.Current(ctx, scope, ownerID)
	if err != nil {
		return "", err
	}
	if held && Normalize(current) == Normalize(name) {
		return current, nil
	}

	ok, next, err := s.CanChange(ctx, scope, ownerID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errs.NewRateLimit("name_change_limit", "name change limit reached",
			map[string]string{"nextChangeDate": next.UTC().Format(time.RFC3339)})
	}

	if err := s.Reserve(ctx, name, scope, ownerID); err != nil {
		return "", err
	}
	if held {
		if err := s.Release(ctx, current, scope, ownerID); err != nil {
			return "", err
		}
	}
	if err := s.kv.Put(ctx, store.NameOwnerKey(scope, ownerID), []byte(name), 0); err != nil {
		return "", errs.NewUpstream("storage_error", "failed to store name")
	}
	if err := s.RecordChange(ctx, scope, ownerID); err != nil {
		return "", err
	}
	return name, nil
}

// ReleaseAllFor removes the owner's reservation, pointer and change history
// in a scope. Used when the owning account is deleted.
func (s *Service) ReleaseAllFor(ctx context.Context, scope string, ownerID uuid.UUID) error {
	current, held, err := s.Current(ctx, scope, ownerID)
	if err != nil {
		return err
	}
	if held {
		if err := s.Release(ctx, current, scope, ownerID); err != nil {
			return err
		}
	}
	for _, key := range []string{store.NameOwnerKey(scope, ownerID), store.NameHistoryKey(scope, ownerID)} {
		if err := s.kv.Delete(ctx, key); err != nil && !errors.Is(err, store.ErrNotFound) {
			return errs.NewUpstream("storage_error", "failed to remove name data")
		}
	}
	return nil
}

func (s *Service) holder(ctx context.Context, key string) (uuid.UUID, error) {
	data, err := s.kv.Get(ctx, key)
	if err != nil {
		return uuid.Nil, err
	}
	var res models.NameReservation
	if err := json.Unmarshal(data, &res); err != nil {
		return uuid.Nil, err
	}
	return res.OwnerID, nil
}

// recentChanges returns the owner's change timestamps inside the rolling
// window, oldest first.
func (s *Service) recentChanges(ctx context.Context, scope string, ownerID uuid.UUID) ([]time.Time, error) {
	data, err := s.kv.Get(ctx, store.NameHistoryKey(scope, ownerID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewUpstream("storage_error", "failed to load name history")
	}
	var hist models.NameChangeHistory
	if err := json.Unmarshal(data, &hist); err != nil {
		return nil, errs.NewUpstream("storage_error", "failed to load name history")
	}

	cutoff := s.now().UTC().Add(-s.policy.Window)
	recent := hist.Changes[:0]
	for _, ts := range hist.Changes {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}
	return recent, nil
}
