package patient

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesikahq/patient-monitoring/internal/audit"
	"github.com/mesikahq/patient-monitoring/internal/encryption"
	"github.com/mesikahq/patient-monitoring/internal/rbac"
)

type memStore struct {
	mu       sync.Mutex
	patients map[string]*Patient
	contacts map[string]*EmergencyContact
	roles    map[string]rbac.Role // profile id -> role
}

func newMemStore() *memStore {
	return &memStore{
		patients: map[string]*Patient{},
		contacts: map[string]*EmergencyContact{},
		roles:    map[string]rbac.Role{},
	}
}

func (m *memStore) Create(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) GetByProfile(_ context.Context, profileID string) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.patients {
		if p.ProfileID == profileID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrPatientNotFound
}

func (m *memStore) Update(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patients[p.ID]; !ok {
		return ErrPatientNotFound
	}
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patients[id]; !ok {
		return ErrPatientNotFound
	}
	delete(m.patients, id)
	return nil
}

func (m *memStore) List(_ context.Context, filter rbac.Filter) ([]*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Patient
	for _, p := range m.patients {
		if filter.Matches(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) ListUnassigned(_ context.Context) ([]*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Patient
	for _, p := range m.patients {
		if p.AssignedDoctorID == "" {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) ProfileRole(_ context.Context, profileID string) (rbac.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[profileID]
	if !ok {
		return "", ErrPatientNotFound
	}
	return role, nil
}

func (m *memStore) SaveContact(_ context.Context, c *EmergencyContact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.IsPrimaryContact {
		for _, other := range m.contacts {
			if other.PatientID == c.PatientID && other.ID != c.ID {
				other.IsPrimaryContact = false
			}
		}
	}
	cp := *c
	m.contacts[c.ID] = &cp
	return nil
}

func (m *memStore) GetContact(_ context.Context, id string) (*EmergencyContact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[id]
	if !ok {
		return nil, ErrContactNotFound
	}
	cp := *c
	m.resolveRelations(&cp)
	return &cp, nil
}

func (m *memStore) DeleteContact(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.contacts[id]; !ok {
		return ErrContactNotFound
	}
	delete(m.contacts, id)
	return nil
}

func (m *memStore) ListContacts(_ context.Context, patientID string, filter rbac.Filter) ([]*EmergencyContact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*EmergencyContact
	for _, c := range m.contacts {
		if c.PatientID != patientID {
			continue
		}
		cp := *c
		m.resolveRelations(&cp)
		if filter.Matches(&cp) {
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) resolveRelations(c *EmergencyContact) {
	if parent, ok := m.patients[c.PatientID]; ok {
		c.OwnerProfileID = parent.ProfileID
		c.DoctorProfileID = parent.AssignedDoctorID
	}
}

type recordingAudit struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (r *recordingAudit) LogEvent(_ context.Context, event *audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingAudit) QueryEvents(context.Context, map[string]interface{}, int, int) ([]audit.Event, error) {
	return nil, nil
}

type fixture struct {
	svc   Service
	store *memStore
	audit *recordingAudit
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	encrypt, err := encryption.NewService()
	require.NoError(t, err)

	store := newMemStore()
	sink := &recordingAudit{}
	return &fixture{
		svc:   NewService(store, rbac.NewEngine(), encrypt, sink),
		store: store,
		audit: sink,
	}
}

func (f *fixture) withProfile(profileID string, role rbac.Role) {
	f.store.roles[profileID] = role
}

func (f *fixture) mustCreate(t *testing.T, profileID, doctorID string) *Patient {
	t.Helper()
	p, err := f.svc.Create(context.Background(), adminPrincipal(), &Patient{
		ProfileID:           profileID,
		AssignedDoctorID:    doctorID,
		MedicalRecordNumber: "MRN-" + profileID,
		DateOfBirth:         time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return p
}

func adminPrincipal() rbac.Principal {
	return rbac.Principal{
		ID:       "u-admin",
		IsActive: true,
		Profile:  &rbac.ProfileRef{ID: "prof-admin", Role: rbac.RoleAdmin},
	}
}

func rolePrincipal(id, profileID string, role rbac.Role) rbac.Principal {
	return rbac.Principal{
		ID:       id,
		IsActive: true,
		Profile:  &rbac.ProfileRef{ID: profileID, Role: role},
	}
}

func TestCreatePatientRequiresPatientOwner(t *testing.T) {
	f := newFixture(t)
	f.withProfile("prof-d1", rbac.RoleDoctor)

	_, err := f.svc.Create(context.Background(), adminPrincipal(), &Patient{
		ProfileID:           "prof-d1",
		MedicalRecordNumber: "MRN-1",
		DateOfBirth:         time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, ErrInvalidAssignment)

	_, err = f.svc.Create(context.Background(), adminPrincipal(), &Patient{
		ProfileID:           "prof-missing",
		MedicalRecordNumber: "MRN-1",
		DateOfBirth:         time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, ErrInvalidAssignment)
}

func TestCreatePatientRejectsNonDoctorAssignment(t *testing.T) {
	f := newFixture(t)
	f.withProfile("prof-1", rbac.RolePatient)
	f.withProfile("prof-n1", rbac.RoleNurse)

	_, err := f.svc.Create(context.Background(), adminPrincipal(), &Patient{
		ProfileID:           "prof-1",
		AssignedDoctorID:    "prof-n1",
		MedicalRecordNumber: "MRN-1",
		DateOfBirth:         time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, ErrInvalidAssignment)
}

func TestCreatePatientDeniedForMedicalStaff(t *testing.T) {
	f := newFixture(t)
	f.withProfile("prof-1", rbac.RolePatient)

	nurse := rolePrincipal("u-n1", "prof-n1", rbac.RoleNurse)
	_, err := f.svc.Create(context.Background(), nurse, &Patient{
		ProfileID:           "prof-1",
		MedicalRecordNumber: "MRN-1",
		DateOfBirth:         time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, ErrPatientNotFound)
}

func TestPatientCannotDeleteOwnRecord(t *testing.T) {
	f := newFixture(t)
	f.withProfile("prof-7", rbac.RolePatient)
	rec := f.mustCreate(t, "prof-7", "")

	owner := rolePrincipal("u7", "prof-7", rbac.RolePatient)
	err := f.svc.Delete(context.Background(), owner, rec.ID)
	assert.ErrorIs(t, err, ErrPatientNotFound)

	// The record survives.
	_, err = f.svc.Get(context.Background(), owner, rec.ID)
	assert.NoError(t, err)
}

func TestGetPatientDenialPresentsAsNotFound(t *testing.T) {
	f := newFixture(t)
	f.withProfile("prof-7", rbac.RolePatient)
	f.withProfile("prof-8", rbac.RolePatient)
	rec := f.mustCreate(t, "prof-7", "")

	other := rolePrincipal("u8", "prof-8", rbac.RolePatient)
	_, err := f.svc.Get(context.Background(), other, rec.ID)
	assert.ErrorIs(t, err, ErrPatientNotFound)

	missingErr := err
	_, err = f.svc.Get(context.Background(), other, "no-such-id")
	// Denied and missing are the same error to the caller.
	assert.Equal(t, missingErr, err)
}

func TestListPatientsPerRole(t *testing.T) {
	f := newFixture(t)
	f.withProfile("prof-1", rbac.RolePatient)
	f.withProfile("prof-2", rbac.RolePatient)
	f.withProfile("prof-3", rbac.RolePatient)
	f.withProfile("prof-d1", rbac.RoleDoctor)
	f.withProfile("prof-d2", rbac.RoleDoctor)

	p1 := f.mustCreate(t, "prof-1", "prof-d1")
	f.mustCreate(t, "prof-2", "prof-d2")
	f.mustCreate(t, "prof-3", "")
	ctx := context.Background()

	d1 := rolePrincipal("u-d1", "prof-d1", rbac.RoleDoctor)
	mine, err := f.svc.List(ctx, d1)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, p1.ID, mine[0].ID)

	nurse := rolePrincipal("u-n1", "prof-n1", rbac.RoleNurse)
	all, err := f.svc.List(ctx, nurse)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	owner := rolePrincipal("u1", "prof-1", rbac.RolePatient)
	own, err := f.svc.List(ctx, owner)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, p1.ID, own[0].ID)

	orphan := rbac.Principal{ID: "u-orphan", IsActive: true}
	none, err := f.svc.List(ctx, orphan)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpdatePatientPreservesOwnershipAndAssignment(t *testing.T) {
	f := newFixture(t)
	f.withProfile("prof-7", rbac.RolePatient)
	f.withProfile("prof-d1", rbac.RoleDoctor)
	rec := f.mustCreate(t, "prof-7", "prof-d1")

	owner := rolePrincipal("u7", "prof-7", rbac.RolePatient)
	updated, err := f.svc.Update(context.Background(), owner, &Patient{
		ID:                  rec.ID,
		ProfileID:           "prof-8",  // ignored
		AssignedDoctorID:    "prof-d2", // ignored
		MedicalRecordNumber: rec.MedicalRecordNumber,
		DateOfBirth:         rec.DateOfBirth,
		BloodType:           "O-",
	})
	require.NoError(t, err)
	assert.Equal(t, "prof-7", updated.ProfileID)
	assert.Equal(t, "prof-d1", updated.AssignedDoctorID)
	assert.Equal(t, "O-", updated.BloodType)
}

func TestAssignDoctor(t *testing.T) {
	f := newFixture(t)
	f.withProfile("prof-7", rbac.RolePatient)
	f.withProfile("prof-d1", rbac.RoleDoctor)
	f.withProfile("prof-n1", rbac.RoleNurse)
	rec := f.mustCreate(t, "prof-7", "")
	ctx := context.Background()

	// Doctors hold no assignment capability, even over their own patients.
	d1 := rolePrincipal("u-d1", "prof-d1", rbac.RoleDoctor)
	_, err := f.svc.AssignDoctor(ctx, d1, rec.ID, "prof-d1")
	assert.ErrorIs(t, err, ErrPatientNotFound)

	_, err = f.svc.AssignDoctor(ctx, adminPrincipal(), rec.ID, "prof-n1")
	assert.ErrorIs(t, err, ErrInvalidAssignment)

	assigned, err := f.svc.AssignDoctor(ctx, adminPrincipal(), rec.ID, "prof-d1")
	require.NoError(t, err)
	assert.Equal(t, "prof-d1", assigned.AssignedDoctorID)

	// The newly assigned doctor now sees the record.
	_, err = f.svc.Get(ctx, d1, rec.ID)
	assert.NoError(t, err)

	// Clearing the assignment revokes that visibility.
	cleared, err := f.svc.AssignDoctor(ctx, adminPrincipal(), rec.ID, "")
	require.NoError(t, err)
	assert.Empty(t, cleared.AssignedDoctorID)
	_, err = f.svc.Get(ctx, d1, rec.ID)
	assert.ErrorIs(t, err, ErrPatientNotFound)
}

func TestListUnassigned(t *testing.T) {
	f := newFixture(t)
	f.withProfile("prof-1", rbac.RolePatient)
	f.withProfile("prof-2", rbac.RolePatient)
	f.withProfile("prof-d1", rbac.RoleDoctor)
	f.mustCreate(t, "prof-1", "prof-d1")
	p2 := f.mustCreate(t, "prof-2", "")
	ctx := context.Background()

	unassigned, err := f.svc.ListUnassigned(ctx, adminPrincipal())
	require.NoError(t, err)
	require.Len(t, unassigned, 1)
	assert.Equal(t, p2.ID, unassigned[0].ID)

	d1 := rolePrincipal("u-d1", "prof-d1", rbac.RoleDoctor)
	hidden, err := f.svc.ListUnassigned(ctx, d1)
	require.NoError(t, err)
	assert.Empty(t, hidden)
}

func TestAddContactOwnerOnly(t *testing.T) {
	f := newFixture(t)
	f.withProfile("prof-7", rbac.RolePatient)
	f.withProfile("prof-8", rbac.RolePatient)
	rec := f.mustCreate(t, "prof-7", "")
	ctx := context.Background()

	owner := rolePrincipal("u7", "prof-7", rbac.RolePatient)
	c, err := f.svc.AddContact(ctx, owner, &EmergencyContact{
		PatientID: rec.ID,
		Name:      "Ama Mensah",
		Phone:     "555-0101",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)

	other := rolePrincipal("u8", "prof-8", rbac.RolePatient)
	_, err = f.svc.AddContact(ctx, other, &EmergencyContact{
		PatientID: rec.ID,
		Name:      "Kojo Mensah",
		Phone:     "555-0102",
	})
	assert.ErrorIs(t, err, ErrContactNotFound)

	nurse := rolePrincipal("u-n1", "prof-n1", rbac.RoleNurse)
	_, err = f.svc.AddContact(ctx, nurse, &EmergencyContact{
		PatientID: rec.ID,
		Name:      "Nurse Added",
		Phone:     "555-0103",
	})
	assert.ErrorIs(t, err, ErrContactNotFound)
}

// Saving a new primary contact demotes the previous holder in the same write.
func TestPrimaryContactSingleHolder(t *testing.T) {
	f := newFixture(t)
	f.withProfile("prof-7", rbac.RolePatient)
	rec := f.mustCreate(t, "prof-7", "")
	ctx := context.Background()
	owner := rolePrincipal("u7", "prof-7", rbac.RolePatient)

	first, err := f.svc.AddContact(ctx, owner, &EmergencyContact{
		PatientID:        rec.ID,
		Name:             "Ama Mensah",
		Phone:            "555-0101",
		IsPrimaryContact: true,
	})
	require.NoError(t, err)

	second, err := f.svc.AddContact(ctx, owner, &EmergencyContact{
		PatientID:        rec.ID,
		Name:             "Kojo Mensah",
		Phone:            "555-0102",
		IsPrimaryContact: true,
	})
	require.NoError(t, err)

	contacts, err := f.svc.ListContacts(ctx, owner, rec.ID)
	require.NoError(t, err)
	require.Len(t, contacts, 2)

	var primaries []string
	for _, c := range contacts {
		if c.IsPrimaryContact {
			primaries = append(primaries, c.ID)
		}
	}
	assert.Equal(t, []string{second.ID}, primaries)

	demoted, err := f.svc.GetContact(ctx, owner, first.ID)
	require.NoError(t, err)
	assert.False(t, demoted.IsPrimaryContact)
}

func TestContactPhoneEncryptedAtRest(t *testing.T) {
	f := newFixture(t)
	f.withProfile("prof-7", rbac.RolePatient)
	rec := f.mustCreate(t, "prof-7", "")
	ctx := context.Background()
	owner := rolePrincipal("u7", "prof-7", rbac.RolePatient)

	c, err := f.svc.AddContact(ctx, owner, &EmergencyContact{
		PatientID: rec.ID,
		Name:      "Ama Mensah",
		Phone:     "555-0101",
	})
	require.NoError(t, err)

	raw := f.store.contacts[c.ID]
	assert.NotEqual(t, "555-0101", raw.Phone)

	got, err := f.svc.GetContact(ctx, owner, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "555-0101", got.Phone)
}

func TestContactVisibilityFollowsParentAssignment(t *testing.T) {
	f := newFixture(t)
	f.withProfile("prof-7", rbac.RolePatient)
	f.withProfile("prof-d1", rbac.RoleDoctor)
	rec := f.mustCreate(t, "prof-7", "prof-d1")
	ctx := context.Background()
	owner := rolePrincipal("u7", "prof-7", rbac.RolePatient)

	c, err := f.svc.AddContact(ctx, owner, &EmergencyContact{
		PatientID: rec.ID,
		Name:      "Ama Mensah",
		Phone:     "555-0101",
	})
	require.NoError(t, err)

	d1 := rolePrincipal("u-d1", "prof-d1", rbac.RoleDoctor)
	_, err = f.svc.GetContact(ctx, d1, c.ID)
	assert.NoError(t, err)

	// Assigned doctors may update but never delete contacts.
	err = f.svc.DeleteContact(ctx, d1, c.ID)
	assert.ErrorIs(t, err, ErrContactNotFound)

	d2 := rolePrincipal("u-d2", "prof-d2", rbac.RoleDoctor)
	_, err = f.svc.GetContact(ctx, d2, c.ID)
	assert.ErrorIs(t, err, ErrContactNotFound)

	err = f.svc.DeleteContact(ctx, owner, c.ID)
	assert.NoError(t, err)
}

func TestUpdateContactKeepsParentBinding(t *testing.T) {
	f := newFixture(t)
	f.withProfile("prof-7", rbac.RolePatient)
	rec := f.mustCreate(t, "prof-7", "")
	ctx := context.Background()
	owner := rolePrincipal("u7", "prof-7", rbac.RolePatient)

	c, err := f.svc.AddContact(ctx, owner, &EmergencyContact{
		PatientID: rec.ID,
		Name:      "Ama Mensah",
		Phone:     "555-0101",
	})
	require.NoError(t, err)

	updated, err := f.svc.UpdateContact(ctx, owner, &EmergencyContact{
		ID:        c.ID,
		PatientID: "someone-else", // ignored
		Name:      "Ama Owusu",
		Phone:     "555-0199",
	})
	require.NoError(t, err)
	assert.Equal(t, rec.ID, updated.PatientID)
	assert.Equal(t, "Ama Owusu", updated.Name)

	got, err := f.svc.GetContact(ctx, owner, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "555-0199", got.Phone)
}
