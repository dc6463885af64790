package rbac_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mesikahq/patient-monitoring/internal/patient"
	"github.com/mesikahq/patient-monitoring/internal/profile"
	"github.com/mesikahq/patient-monitoring/internal/rbac"
)

func TestScopePerRole(t *testing.T) {
	engine := rbac.NewEngine()

	super := rbac.Principal{ID: "root", IsSuperuser: true, IsActive: true}
	assert.Equal(t, rbac.ScopeAll, engine.Scope(super, rbac.KindPatient))

	admin := principalWithRole("u-a", "prof-a", rbac.RoleAdmin)
	assert.Equal(t, rbac.ScopeAll, engine.Scope(admin, rbac.KindPatient))
	assert.Equal(t, rbac.ScopeAll, engine.Scope(admin, rbac.KindProfile))

	pat := principalWithRole("u7", "prof-7", rbac.RolePatient)
	assert.Equal(t, rbac.Filter{OwnerProfileID: "prof-7"}, engine.Scope(pat, rbac.KindPatient))
	assert.Equal(t, rbac.Filter{OwnerPrincipalID: "u7"}, engine.Scope(pat, rbac.KindProfile))

	doc := principalWithRole("u-d1", "prof-d1", rbac.RoleDoctor)
	assert.Equal(t, rbac.Filter{AssignedDoctorID: "prof-d1"}, engine.Scope(doc, rbac.KindPatient))
	assert.Equal(t, rbac.Filter{AssignedDoctorID: "prof-d1"}, engine.Scope(doc, rbac.KindEmergencyContact))

	nurse := principalWithRole("u-n1", "prof-n1", rbac.RoleNurse)
	assert.Equal(t, rbac.ScopeAll, engine.Scope(nurse, rbac.KindPatient))
	assert.Equal(t, rbac.Filter{OwnerPrincipalID: "u-n1"}, engine.Scope(nurse, rbac.KindProfile))

	orphan := rbac.Principal{ID: "u-orphan", IsActive: true}
	assert.Equal(t, rbac.ScopeNone, engine.Scope(orphan, rbac.KindPatient))

	weird := principalWithRole("u-w", "prof-w", rbac.Role("surgeon"))
	assert.Equal(t, rbac.ScopeNone, engine.Scope(weird, rbac.KindPatient))
}

// A doctor's patient listing is exactly the assigned set.
func TestScopeDoctorListing(t *testing.T) {
	engine := rbac.NewEngine()
	d1 := principalWithRole("u-d1", "prof-d1", rbac.RoleDoctor)

	records := []*patient.Patient{
		{ID: "p1", ProfileID: "prof-1", AssignedDoctorID: "prof-d1"},
		{ID: "p2", ProfileID: "prof-2", AssignedDoctorID: "prof-d2"},
		{ID: "p3", ProfileID: "prof-3"},
	}

	filter := engine.Scope(d1, rbac.KindPatient)
	var visible []string
	for _, r := range records {
		if filter.Matches(r) {
			visible = append(visible, r.ID)
		}
	}
	assert.Equal(t, []string{"p1"}, visible)
}

// Listing visibility and the per-record view decision must agree for every
// principal and every record: a record matches Scope's filter exactly when
// Authorize allows viewing it.
func TestScopeMatchesViewDecision(t *testing.T) {
	engine := rbac.NewEngine()

	principals := []rbac.Principal{
		{ID: "root", IsSuperuser: true, IsActive: true},
		principalWithRole("u-a", "prof-a", rbac.RoleAdmin),
		principalWithRole("u1", "prof-1", rbac.RolePatient),
		principalWithRole("u2", "prof-2", rbac.RolePatient),
		principalWithRole("u-d1", "prof-d1", rbac.RoleDoctor),
		principalWithRole("u-d2", "prof-d2", rbac.RoleDoctor),
		principalWithRole("u-n1", "prof-n1", rbac.RoleNurse),
		principalWithRole("u-ph1", "prof-ph1", rbac.RolePharmacy),
		{ID: "u-orphan", IsActive: true},
		principalWithRole("u-w", "prof-w", rbac.Role("surgeon")),
	}

	profiles := []rbac.Resource{
		&profile.Profile{ID: "prof-1", PrincipalID: "u1", Role: rbac.RolePatient},
		&profile.Profile{ID: "prof-2", PrincipalID: "u2", Role: rbac.RolePatient},
		&profile.Profile{ID: "prof-d1", PrincipalID: "u-d1", Role: rbac.RoleDoctor},
		&profile.Profile{ID: "prof-n1", PrincipalID: "u-n1", Role: rbac.RoleNurse},
	}
	patients := []rbac.Resource{
		&patient.Patient{ID: "p1", ProfileID: "prof-1", AssignedDoctorID: "prof-d1"},
		&patient.Patient{ID: "p2", ProfileID: "prof-2", AssignedDoctorID: "prof-d2"},
		&patient.Patient{ID: "p3", ProfileID: "prof-3"},
	}
	contacts := []rbac.Resource{
		&patient.EmergencyContact{ID: "c1", PatientID: "p1", OwnerProfileID: "prof-1", DoctorProfileID: "prof-d1"},
		&patient.EmergencyContact{ID: "c2", PatientID: "p2", OwnerProfileID: "prof-2", DoctorProfileID: "prof-d2"},
		&patient.EmergencyContact{ID: "c3", PatientID: "p3", OwnerProfileID: "prof-3"},
	}

	byKind := map[rbac.Kind][]rbac.Resource{
		rbac.KindProfile:          profiles,
		rbac.KindPatient:          patients,
		rbac.KindEmergencyContact: contacts,
	}

	for _, p := range principals {
		for kind, records := range byKind {
			filter := engine.Scope(p, kind)
			for _, r := range records {
				name := fmt.Sprintf("%s/%s", p.ID, kind)
				inScope := filter.Matches(r)
				canView := engine.Authorize(p, r, rbac.ActionView).Allowed()
				assert.Equal(t, canView, inScope, "%s record %v", name, r)
			}
		}
	}
}

func TestFilterMatchesEdgeCases(t *testing.T) {
	assert.False(t, rbac.ScopeNone.Matches(&patient.Patient{ID: "p1"}))
	assert.False(t, rbac.ScopeAll.Matches(nil))
	assert.True(t, rbac.ScopeAll.Matches(&patient.Patient{ID: "p1"}))

	// A zero-value filter behaves as None.
	assert.False(t, rbac.Filter{}.Matches(&patient.Patient{ID: "p1"}))

	// A restriction that the record type cannot express never matches.
	byDoctor := rbac.Filter{AssignedDoctorID: "prof-d1"}
	assert.False(t, byDoctor.Matches(&profile.Profile{ID: "prof-d1", PrincipalID: "u-d1"}))
}
