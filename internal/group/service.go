package group

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/mesikahq/patient-monitoring/internal/audit"
	"github.com/mesikahq/patient-monitoring/internal/rbac"
)

// Store persists groups and memberships. ReplaceMembership must be atomic: a
// concurrent reader never observes a principal in zero or two groups.
type Store interface {
	EnsureGroup(ctx context.Context, name string) error
	ReplaceMembership(ctx context.Context, principalID, groupName string) error
	GroupsOf(ctx context.Context, principalID string) ([]string, error)
}

type Service interface {
	// Sync reconciles the principal into exactly the group derived from its
	// role. Idempotent; failures are swallowed and logged so the triggering
	// profile write is never blocked.
	Sync(ctx context.Context, principalID string, role rbac.Role)
	GroupsOf(ctx context.Context, principalID string) ([]string, error)
}

type service struct {
	store  Store
	audit  audit.Service
	logger *logrus.Logger
}

func NewService(store Store, auditService audit.Service, logger *logrus.Logger) Service {
	if logger == nil {
		logger = logrus.New()
	}
	return &service{
		store:  store,
		audit:  auditService,
		logger: logger,
	}
}

func (s *service) Sync(ctx context.Context, principalID string, role rbac.Role) {
	name, err := NameForRole(role)
	if err != nil {
		s.swallow(ctx, &SyncError{PrincipalID: principalID, Role: role, Err: err})
		return
	}

	if err := s.store.EnsureGroup(ctx, name); err != nil {
		s.swallow(ctx, &SyncError{PrincipalID: principalID, Role: role, Err: err})
		return
	}

	if err := s.store.ReplaceMembership(ctx, principalID, name); err != nil {
		s.swallow(ctx, &SyncError{PrincipalID: principalID, Role: role, Err: err})
		return
	}

	if s.audit != nil {
		s.audit.LogEvent(ctx, &audit.Event{
			EventType:   audit.EventGroupSync,
			PrincipalID: principalID,
			Role:        string(role),
			Action:      "SYNC",
			Resource:    "group",
			ResourceID:  name,
			Status:      "success",
		})
	}
}

func (s *service) GroupsOf(ctx context.Context, principalID string) ([]string, error) {
	return s.store.GroupsOf(ctx, principalID)
}

// swallow logs a typed sync failure without returning it. The permission
// engine decides from role directly, so a stale group degrades only
// secondary permission checks.
func (s *service) swallow(ctx context.Context, syncErr *SyncError) {
	s.logger.WithError(syncErr).WithFields(logrus.Fields{
		"principal_id": syncErr.PrincipalID,
		"role":         syncErr.Role,
	}).Warn("Group synchronization failed")

	if s.audit != nil {
		details, _ := json.Marshal(map[string]interface{}{"error": syncErr.Err.Error()})
		s.audit.LogEvent(ctx, &audit.Event{
			EventType:   audit.EventGroupSync,
			PrincipalID: syncErr.PrincipalID,
			Role:        string(syncErr.Role),
			Action:      "SYNC",
			Resource:    "group",
			Status:      "failure",
			Details:     json.RawMessage(details),
		})
	}
}
