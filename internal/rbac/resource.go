package rbac

// Kind identifies a governed record type. Module-level checks (add, list)
// are made against a Kind before any object exists.
type Kind string

const (
	KindProfile          Kind = "profile"
	KindPatient          Kind = "patient"
	KindEmergencyContact Kind = "emergency_contact"
)

// Resource is any record governed by the engine.
type Resource interface {
	ResourceKind() Kind
}

// PrincipalOwned is a record tied directly to one principal (a profile).
type PrincipalOwned interface {
	OwningPrincipalID() string
}

// PatientOwned is a record tied to one patient-role profile, directly
// (a patient record) or through its parent patient (an emergency contact).
type PatientOwned interface {
	OwningProfileID() string
}

// DoctorAssigned is a record carrying a doctor assignment. An empty id means
// unassigned. Assignment makes the doctor a scoped viewer, not an owner: it
// grants view and change within role capabilities, never delete.
type DoctorAssigned interface {
	AssignedDoctorProfileID() string
}

// IsOwner reports whether the principal owns the record. A record exposing
// neither ownership relation is never owned (fail closed).
func IsOwner(p Principal, r Resource) bool {
	if r == nil {
		return false
	}
	if owned, ok := r.(PrincipalOwned); ok {
		return owned.OwningPrincipalID() != "" && owned.OwningPrincipalID() == p.ID
	}
	if owned, ok := r.(PatientOwned); ok {
		return p.Profile != nil && owned.OwningProfileID() != "" &&
			owned.OwningProfileID() == p.Profile.ID
	}
	return false
}

// IsAssignedDoctor reports whether the principal is a doctor assigned to the
// record's patient.
func IsAssignedDoctor(p Principal, r Resource) bool {
	if r == nil || p.Profile == nil || p.Profile.Role != RoleDoctor {
		return false
	}
	assigned, ok := r.(DoctorAssigned)
	if !ok {
		return false
	}
	return assigned.AssignedDoctorProfileID() != "" &&
		assigned.AssignedDoctorProfileID() == p.Profile.ID
}
