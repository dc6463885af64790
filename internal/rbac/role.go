package rbac

import (
	"errors"
	"fmt"
)

var ErrUnknownRole = errors.New("unknown role")

// Role is the closed set of roles in the patient monitoring system. Every
// authorization decision is keyed off the principal's current role; there is
// no role hierarchy and a principal holds exactly one role at a time.
type Role string

const (
	RolePatient  Role = "patient"
	RoleDoctor   Role = "doctor"
	RoleNurse    Role = "nurse"
	RolePharmacy Role = "pharmacy"
	RoleAdmin    Role = "admin"
)

// CapabilitySet is the static capability tuple for a role, independent of any
// specific record. UI code uses it to decide what to render; Authorize is
// always the final gate.
type CapabilitySet struct {
	IsMedicalStaff          bool `json:"is_medical_staff"`
	CanAccessPatientRecords bool `json:"can_access_patient_records"`
	CanPrescribe            bool `json:"can_prescribe"`
	CanManageUsers          bool `json:"can_manage_users"`
	CanAssignPatients       bool `json:"can_assign_patients"`
}

var capabilities = map[Role]CapabilitySet{
	RolePatient: {},
	RoleDoctor: {
		IsMedicalStaff:          true,
		CanAccessPatientRecords: true,
		CanPrescribe:            true,
	},
	RoleNurse: {
		IsMedicalStaff:          true,
		CanAccessPatientRecords: true,
	},
	RolePharmacy: {
		IsMedicalStaff:          true,
		CanAccessPatientRecords: true,
	},
	RoleAdmin: {
		CanAccessPatientRecords: true,
		CanManageUsers:          true,
		CanAssignPatients:       true,
	},
}

// Roles returns all roles in the registry.
func Roles() []Role {
	return []Role{RolePatient, RoleDoctor, RoleNurse, RolePharmacy, RoleAdmin}
}

// ParseRole validates a raw role string against the registry.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

// Valid reports whether the role is one of the five registered roles.
func (r Role) Valid() bool {
	_, ok := capabilities[r]
	return ok
}

// Capabilities returns the static capability set for a role. It is a pure,
// total function over the registry and fails with ErrUnknownRole for any
// value outside it.
func Capabilities(r Role) (CapabilitySet, error) {
	caps, ok := capabilities[r]
	if !ok {
		return CapabilitySet{}, fmt.Errorf("%w: %q", ErrUnknownRole, r)
	}
	return caps, nil
}

// MedicalStaff reports whether the role is a medical staff role. Unknown
// roles are never staff.
func (r Role) MedicalStaff() bool {
	return capabilities[r].IsMedicalStaff
}
