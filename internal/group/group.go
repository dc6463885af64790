package group

import (
	"fmt"

	"github.com/mesikahq/patient-monitoring/internal/rbac"
)

// Group names, one per role. Membership is a derived projection of the
// profile role and never independently editable.
const (
	GroupPatients       = "Patients"
	GroupDoctors        = "Doctors"
	GroupNurses         = "Nurses"
	GroupPharmacy       = "Pharmacy"
	GroupAdministrators = "Administrators"
)

var roleGroups = map[rbac.Role]string{
	rbac.RolePatient:  GroupPatients,
	rbac.RoleDoctor:   GroupDoctors,
	rbac.RoleNurse:    GroupNurses,
	rbac.RolePharmacy: GroupPharmacy,
	rbac.RoleAdmin:    GroupAdministrators,
}

// NameForRole maps a role to its group name.
func NameForRole(r rbac.Role) (string, error) {
	name, ok := roleGroups[r]
	if !ok {
		return "", fmt.Errorf("%w: %q", rbac.ErrUnknownRole, r)
	}
	return name, nil
}

// Names returns all role-derived group names.
func Names() []string {
	return []string{GroupPatients, GroupDoctors, GroupNurses, GroupPharmacy, GroupAdministrators}
}

// SyncError records a failed group reconciliation. Synchronization is
// best-effort: the error is logged and audited but never propagated to the
// profile write that triggered it.
type SyncError struct {
	PrincipalID string
	Role        rbac.Role
	Err         error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("group sync failed for principal %s (role %s): %v", e.PrincipalID, e.Role, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
