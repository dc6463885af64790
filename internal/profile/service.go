package profile

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mesikahq/patient-monitoring/internal/audit"
	"github.com/mesikahq/patient-monitoring/internal/encryption"
	"github.com/mesikahq/patient-monitoring/internal/group"
	"github.com/mesikahq/patient-monitoring/internal/rbac"
)

type Service interface {
	Create(ctx context.Context, caller rbac.Principal, p *Profile) (*Profile, error)
	Get(ctx context.Context, caller rbac.Principal, id string) (*Profile, error)
	List(ctx context.Context, caller rbac.Principal) ([]*Profile, error)
	Update(ctx context.Context, caller rbac.Principal, p *Profile) (*Profile, error)
	Delete(ctx context.Context, caller rbac.Principal, id string) error
	ChangeRole(ctx context.Context, caller rbac.Principal, id string, newRole rbac.Role, licenseNumber, department string) (*Profile, error)

	// ResolveProfile looks up a principal's own profile for identity
	// resolution. It bypasses authorization: a principal always resolves to
	// its own profile or to nothing.
	ResolveProfile(ctx context.Context, principalID string) (*Profile, error)
}

type service struct {
	store   Store
	engine  *rbac.Engine
	groups  group.Service
	encrypt encryption.Service
	audit   audit.Service
}

func NewService(store Store, engine *rbac.Engine, groups group.Service, encrypt encryption.Service, auditService audit.Service) Service {
	return &service{
		store:   store,
		engine:  engine,
		groups:  groups,
		encrypt: encrypt,
		audit:   auditService,
	}
}

func (s *service) Create(ctx context.Context, caller rbac.Principal, p *Profile) (*Profile, error) {
	if !s.engine.AuthorizeKind(caller, rbac.KindProfile, rbac.ActionAdd).Allowed() {
		s.logDenied(ctx, caller, "profile", "", rbac.ActionAdd)
		return nil, ErrProfileNotFound
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.store.GetByPrincipal(ctx, p.PrincipalID); err == nil {
		return nil, ErrProfileExists
	} else if !errors.Is(err, ErrProfileNotFound) {
		return nil, err
	}

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	stored := *p
	if err := s.sealProfile(&stored); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, &stored); err != nil {
		return nil, err
	}

	// Membership follows the role from the first save onward.
	s.groups.Sync(ctx, p.PrincipalID, p.Role)

	s.audit.LogEvent(ctx, &audit.Event{
		EventType:   audit.EventModify,
		PrincipalID: caller.ID,
		Action:      "CREATE",
		Resource:    "profile",
		ResourceID:  p.ID,
		Status:      "success",
	})
	return p, nil
}

func (s *service) Get(ctx context.Context, caller rbac.Principal, id string) (*Profile, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.engine.Authorize(caller, p, rbac.ActionView).Allowed() {
		// Denial presents as not-found so record existence never leaks.
		s.logDenied(ctx, caller, "profile", id, rbac.ActionView)
		return nil, ErrProfileNotFound
	}
	if err := s.openProfile(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *service) List(ctx context.Context, caller rbac.Principal) ([]*Profile, error) {
	if !s.engine.AuthorizeKind(caller, rbac.KindProfile, rbac.ActionList).Allowed() {
		return nil, nil
	}
	profiles, err := s.store.List(ctx, s.engine.Scope(caller, rbac.KindProfile))
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		if err := s.openProfile(p); err != nil {
			return nil, err
		}
	}
	return profiles, nil
}

func (s *service) Update(ctx context.Context, caller rbac.Principal, p *Profile) (*Profile, error) {
	current, err := s.store.Get(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if !s.engine.Authorize(caller, current, rbac.ActionChange).Allowed() {
		s.logDenied(ctx, caller, "profile", p.ID, rbac.ActionChange)
		return nil, ErrProfileNotFound
	}

	// Role is immutable here; mutations go through ChangeRole so group
	// synchronization always fires.
	p.Role = current.Role
	p.PrincipalID = current.PrincipalID
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.CreatedAt = current.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	stored := *p
	if err := s.sealProfile(&stored); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, &stored); err != nil {
		return nil, err
	}

	s.audit.LogEvent(ctx, &audit.Event{
		EventType:   audit.EventModify,
		PrincipalID: caller.ID,
		Action:      "UPDATE",
		Resource:    "profile",
		ResourceID:  p.ID,
		Status:      "success",
	})
	return p, nil
}

func (s *service) Delete(ctx context.Context, caller rbac.Principal, id string) error {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !s.engine.Authorize(caller, p, rbac.ActionDelete).Allowed() {
		s.logDenied(ctx, caller, "profile", id, rbac.ActionDelete)
		return ErrProfileNotFound
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	s.audit.LogEvent(ctx, &audit.Event{
		EventType:   audit.EventDelete,
		PrincipalID: caller.ID,
		Action:      "DELETE",
		Resource:    "profile",
		ResourceID:  id,
		Status:      "success",
	})
	return nil
}

func (s *service) ChangeRole(ctx context.Context, caller rbac.Principal, id string, newRole rbac.Role, licenseNumber, department string) (*Profile, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.engine.Authorize(caller, current, rbac.ActionChange).Allowed() {
		s.logDenied(ctx, caller, "profile", id, rbac.ActionChange)
		return nil, ErrProfileNotFound
	}

	updated := *current
	updated.Role = newRole
	updated.LicenseNumber = licenseNumber
	updated.Department = department
	if err := s.openField(&updated.Phone); err != nil {
		return nil, err
	}
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	updated.UpdatedAt = time.Now().UTC()

	stored := updated
	if err := s.sealProfile(&stored); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, &stored); err != nil {
		return nil, err
	}

	// The role write is not complete until membership is reconciled; sync
	// failures degrade only the derived groups, never the write itself.
	s.groups.Sync(ctx, updated.PrincipalID, updated.Role)

	details, _ := json.Marshal(map[string]interface{}{
		"from": current.Role,
		"to":   newRole,
	})
	s.audit.LogEvent(ctx, &audit.Event{
		EventType:   audit.EventRoleChange,
		PrincipalID: caller.ID,
		Action:      "CHANGE_ROLE",
		Resource:    "profile",
		ResourceID:  id,
		Status:      "success",
		Details:     json.RawMessage(details),
	})
	return &updated, nil
}

func (s *service) ResolveProfile(ctx context.Context, principalID string) (*Profile, error) {
	p, err := s.store.GetByPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if err := s.openProfile(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *service) sealProfile(p *Profile) error {
	var err error
	if p.LicenseNumber, err = s.encrypt.EncryptString(p.LicenseNumber); err != nil {
		return err
	}
	if p.Phone, err = s.encrypt.EncryptString(p.Phone); err != nil {
		return err
	}
	return nil
}

func (s *service) openProfile(p *Profile) error {
	var err error
	if p.LicenseNumber, err = s.encrypt.DecryptString(p.LicenseNumber); err != nil {
		return err
	}
	return s.openField(&p.Phone)
}

func (s *service) openField(field *string) error {
	plain, err := s.encrypt.DecryptString(*field)
	if err != nil {
		return err
	}
	*field = plain
	return nil
}

func (s *service) logDenied(ctx context.Context, caller rbac.Principal, resource, resourceID string, action rbac.Action) {
	role := ""
	if caller.Profile != nil {
		role = string(caller.Profile.Role)
	}
	s.audit.LogEvent(ctx, &audit.Event{
		EventType:   audit.EventDenied,
		PrincipalID: caller.ID,
		Role:        role,
		Action:      string(action),
		Resource:    resource,
		ResourceID:  resourceID,
		Status:      "denied",
	})
}
