package profile

import (
	"errors"
	"fmt"
	"time"

	"github.com/mesikahq/patient-monitoring/internal/rbac"
)

var (
	ErrProfileNotFound    = errors.New("profile not found")
	ErrProfileExists      = errors.New("principal already has a profile")
	ErrLicenseRequired    = errors.New("license_number required for medical staff")
	ErrLicenseNotAllowed  = errors.New("license_number not allowed for patients")
	ErrDepartmentRequired = errors.New("department required for doctors and nurses")
)

// Profile carries the role and professional credentials attached 1:1 to a
// principal. The role here is the single source of truth for every
// authorization decision; group membership is derived from it, never the
// other way around.
type Profile struct {
	ID            string    `json:"id"`
	PrincipalID   string    `json:"principal_id"`
	Role          rbac.Role `json:"role"`
	Department    string    `json:"department,omitempty"`
	LicenseNumber string    `json:"license_number,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (p *Profile) ResourceKind() rbac.Kind { return rbac.KindProfile }

func (p *Profile) OwningPrincipalID() string { return p.PrincipalID }

// Validate enforces the role/credential invariants: medical staff need a
// license number, patients must not have one, and doctors and nurses need a
// department.
func (p *Profile) Validate() error {
	if !p.Role.Valid() {
		return fmt.Errorf("%w: %q", rbac.ErrUnknownRole, p.Role)
	}

	switch p.Role {
	case rbac.RoleDoctor, rbac.RoleNurse, rbac.RolePharmacy:
		if p.LicenseNumber == "" {
			return ErrLicenseRequired
		}
	case rbac.RolePatient:
		if p.LicenseNumber != "" {
			return ErrLicenseNotAllowed
		}
	}

	if (p.Role == rbac.RoleDoctor || p.Role == rbac.RoleNurse) && p.Department == "" {
		return ErrDepartmentRequired
	}

	return nil
}
