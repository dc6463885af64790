package patient

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mesikahq/patient-monitoring/internal/audit"
	"github.com/mesikahq/patient-monitoring/internal/encryption"
	"github.com/mesikahq/patient-monitoring/internal/rbac"
)

type Service interface {
	Create(ctx context.Context, caller rbac.Principal, p *Patient) (*Patient, error)
	Get(ctx context.Context, caller rbac.Principal, id string) (*Patient, error)
	List(ctx context.Context, caller rbac.Principal) ([]*Patient, error)
	Update(ctx context.Context, caller rbac.Principal, p *Patient) (*Patient, error)
	Delete(ctx context.Context, caller rbac.Principal, id string) error

	AssignDoctor(ctx context.Context, caller rbac.Principal, patientID, doctorProfileID string) (*Patient, error)
	ListUnassigned(ctx context.Context, caller rbac.Principal) ([]*Patient, error)

	AddContact(ctx context.Context, caller rbac.Principal, c *EmergencyContact) (*EmergencyContact, error)
	GetContact(ctx context.Context, caller rbac.Principal, id string) (*EmergencyContact, error)
	UpdateContact(ctx context.Context, caller rbac.Principal, c *EmergencyContact) (*EmergencyContact, error)
	DeleteContact(ctx context.Context, caller rbac.Principal, id string) error
	ListContacts(ctx context.Context, caller rbac.Principal, patientID string) ([]*EmergencyContact, error)
}

type service struct {
	store   Store
	engine  *rbac.Engine
	encrypt encryption.Service
	audit   audit.Service
}

func NewService(store Store, engine *rbac.Engine, encrypt encryption.Service, auditService audit.Service) Service {
	return &service{
		store:   store,
		engine:  engine,
		encrypt: encrypt,
		audit:   auditService,
	}
}

func (s *service) Create(ctx context.Context, caller rbac.Principal, p *Patient) (*Patient, error) {
	if !s.engine.AuthorizeKind(caller, rbac.KindPatient, rbac.ActionAdd).Allowed() {
		s.logDenied(ctx, caller, "patient", "", rbac.ActionAdd)
		return nil, ErrPatientNotFound
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	// The owning profile must actually be a patient.
	role, err := s.store.ProfileRole(ctx, p.ProfileID)
	if err != nil || role != rbac.RolePatient {
		return nil, ErrInvalidAssignment
	}
	if err := s.checkAssignment(ctx, p.AssignedDoctorID); err != nil {
		return nil, err
	}

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}

	s.logModify(ctx, caller, audit.EventModify, "CREATE", p.ID)
	return p, nil
}

func (s *service) Get(ctx context.Context, caller rbac.Principal, id string) (*Patient, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.engine.Authorize(caller, p, rbac.ActionView).Allowed() {
		// Denied access is indistinguishable from a missing record.
		s.logDenied(ctx, caller, "patient", id, rbac.ActionView)
		return nil, ErrPatientNotFound
	}
	return p, nil
}

func (s *service) List(ctx context.Context, caller rbac.Principal) ([]*Patient, error) {
	if !s.engine.AuthorizeKind(caller, rbac.KindPatient, rbac.ActionList).Allowed() {
		return nil, nil
	}
	return s.store.List(ctx, s.engine.Scope(caller, rbac.KindPatient))
}

func (s *service) Update(ctx context.Context, caller rbac.Principal, p *Patient) (*Patient, error) {
	current, err := s.store.Get(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if !s.engine.Authorize(caller, current, rbac.ActionChange).Allowed() {
		s.logDenied(ctx, caller, "patient", p.ID, rbac.ActionChange)
		return nil, ErrPatientNotFound
	}

	// Ownership is fixed at creation; assignment changes go through
	// AssignDoctor.
	p.ProfileID = current.ProfileID
	p.AssignedDoctorID = current.AssignedDoctorID
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.CreatedAt = current.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	if err := s.store.Update(ctx, p); err != nil {
		return nil, err
	}

	s.logModify(ctx, caller, audit.EventModify, "UPDATE", p.ID)
	return p, nil
}

func (s *service) Delete(ctx context.Context, caller rbac.Principal, id string) error {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !s.engine.Authorize(caller, p, rbac.ActionDelete).Allowed() {
		s.logDenied(ctx, caller, "patient", id, rbac.ActionDelete)
		return ErrPatientNotFound
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	s.logModify(ctx, caller, audit.EventDelete, "DELETE", id)
	return nil
}

func (s *service) AssignDoctor(ctx context.Context, caller rbac.Principal, patientID, doctorProfileID string) (*Patient, error) {
	p, err := s.store.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if !s.canAssign(caller) || !s.engine.Authorize(caller, p, rbac.ActionChange).Allowed() {
		s.logDenied(ctx, caller, "patient", patientID, rbac.ActionChange)
		return nil, ErrPatientNotFound
	}

	if err := s.checkAssignment(ctx, doctorProfileID); err != nil {
		return nil, err
	}

	p.AssignedDoctorID = doctorProfileID
	p.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, p); err != nil {
		return nil, err
	}

	details, _ := json.Marshal(map[string]interface{}{"assigned_doctor_id": doctorProfileID})
	s.audit.LogEvent(ctx, &audit.Event{
		EventType:   audit.EventModify,
		PrincipalID: caller.ID,
		Action:      "ASSIGN_DOCTOR",
		Resource:    "patient",
		ResourceID:  patientID,
		Status:      "success",
		Details:     json.RawMessage(details),
	})
	return p, nil
}

func (s *service) ListUnassigned(ctx context.Context, caller rbac.Principal) ([]*Patient, error) {
	if !s.canAssign(caller) {
		return nil, nil
	}
	return s.store.ListUnassigned(ctx)
}

func (s *service) AddContact(ctx context.Context, caller rbac.Principal, c *EmergencyContact) (*EmergencyContact, error) {
	parent, err := s.store.Get(ctx, c.PatientID)
	if err != nil {
		return nil, err
	}
	c.OwnerProfileID = parent.ProfileID
	c.DoctorProfileID = parent.AssignedDoctorID

	if !s.engine.Authorize(caller, c, rbac.ActionAdd).Allowed() {
		s.logDenied(ctx, caller, "emergency_contact", "", rbac.ActionAdd)
		return nil, ErrContactNotFound
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	c.ID = uuid.New().String()
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	if err := s.saveContactSealed(ctx, c); err != nil {
		return nil, err
	}

	s.logModify(ctx, caller, audit.EventModify, "CREATE_CONTACT", c.ID)
	return c, nil
}

func (s *service) GetContact(ctx context.Context, caller rbac.Principal, id string) (*EmergencyContact, error) {
	c, err := s.store.GetContact(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.engine.Authorize(caller, c, rbac.ActionView).Allowed() {
		s.logDenied(ctx, caller, "emergency_contact", id, rbac.ActionView)
		return nil, ErrContactNotFound
	}
	if err := s.openContact(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *service) UpdateContact(ctx context.Context, caller rbac.Principal, c *EmergencyContact) (*EmergencyContact, error) {
	current, err := s.store.GetContact(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if !s.engine.Authorize(caller, current, rbac.ActionChange).Allowed() {
		s.logDenied(ctx, caller, "emergency_contact", c.ID, rbac.ActionChange)
		return nil, ErrContactNotFound
	}

	c.PatientID = current.PatientID
	c.OwnerProfileID = current.OwnerProfileID
	c.DoctorProfileID = current.DoctorProfileID
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.CreatedAt = current.CreatedAt
	c.UpdatedAt = time.Now().UTC()

	if err := s.saveContactSealed(ctx, c); err != nil {
		return nil, err
	}

	s.logModify(ctx, caller, audit.EventModify, "UPDATE_CONTACT", c.ID)
	return c, nil
}

func (s *service) DeleteContact(ctx context.Context, caller rbac.Principal, id string) error {
	c, err := s.store.GetContact(ctx, id)
	if err != nil {
		return err
	}
	if !s.engine.Authorize(caller, c, rbac.ActionDelete).Allowed() {
		s.logDenied(ctx, caller, "emergency_contact", id, rbac.ActionDelete)
		return ErrContactNotFound
	}
	if err := s.store.DeleteContact(ctx, id); err != nil {
		return err
	}

	s.logModify(ctx, caller, audit.EventDelete, "DELETE_CONTACT", id)
	return nil
}

func (s *service) ListContacts(ctx context.Context, caller rbac.Principal, patientID string) ([]*EmergencyContact, error) {
	if !s.engine.AuthorizeKind(caller, rbac.KindEmergencyContact, rbac.ActionList).Allowed() {
		return nil, nil
	}
	contacts, err := s.store.ListContacts(ctx, patientID, s.engine.Scope(caller, rbac.KindEmergencyContact))
	if err != nil {
		return nil, err
	}
	for _, c := range contacts {
		if err := s.openContact(c); err != nil {
			return nil, err
		}
	}
	return contacts, nil
}

// checkAssignment validates a prospective doctor assignment. Empty means
// unassigned and is always valid.
func (s *service) checkAssignment(ctx context.Context, doctorProfileID string) error {
	if doctorProfileID == "" {
		return nil
	}
	role, err := s.store.ProfileRole(ctx, doctorProfileID)
	if err != nil || role != rbac.RoleDoctor {
		return ErrInvalidAssignment
	}
	return nil
}

func (s *service) canAssign(caller rbac.Principal) bool {
	if caller.IsSuperuser {
		return true
	}
	role, ok := caller.RoleOf()
	if !ok {
		return false
	}
	caps, err := rbac.Capabilities(role)
	return err == nil && caps.CanAssignPatients
}

func (s *service) saveContactSealed(ctx context.Context, c *EmergencyContact) error {
	stored := *c
	var err error
	if stored.Phone, err = s.encrypt.EncryptString(stored.Phone); err != nil {
		return err
	}
	return s.store.SaveContact(ctx, &stored)
}

func (s *service) openContact(c *EmergencyContact) error {
	plain, err := s.encrypt.DecryptString(c.Phone)
	if err != nil {
		return err
	}
	c.Phone = plain
	return nil
}

func (s *service) logModify(ctx context.Context, caller rbac.Principal, event audit.EventType, action, resourceID string) {
	s.audit.LogEvent(ctx, &audit.Event{
		EventType:   event,
		PrincipalID: caller.ID,
		Action:      action,
		Resource:    "patient",
		ResourceID:  resourceID,
		Status:      "success",
	})
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
