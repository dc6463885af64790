package rbac

// Filter narrows a listing to the rows a principal may see. Stores translate
// it into WHERE clauses; Matches applies the same rule to an in-memory
// record so listing visibility and per-record view decisions cannot drift
// apart.
//
// Exactly one of All, None, or a restriction field is meaningful; zero-value
// Filter means None.
type Filter struct {
	All  bool
	None bool

	// OwnerPrincipalID restricts to records owned directly by a principal.
	OwnerPrincipalID string
	// OwnerProfileID restricts to records owned by a patient profile.
	OwnerProfileID string
	// AssignedDoctorID restricts to records whose patient is assigned to a
	// doctor profile.
	AssignedDoctorID string
}

// ScopeAll and ScopeNone are the unrestricted and empty filters.
var (
	ScopeAll  = Filter{All: true}
	ScopeNone = Filter{None: true}
)

// Scope returns the filter describing which records of the given kind the
// principal may list. It must agree with Authorize on view: a record matches
// the filter exactly when Authorize allows viewing it.
func (e *Engine) Scope(p Principal, kind Kind) Filter {
	if p.IsSuperuser {
		return ScopeAll
	}
	role, ok := p.RoleOf()
	if !ok {
		return ScopeNone
	}
	if role == RoleAdmin {
		return ScopeAll
	}

	switch kind {
	case KindProfile:
		// Every non-admin role sees its own profile row only.
		return Filter{OwnerPrincipalID: p.ID}
	case KindPatient, KindEmergencyContact:
		switch role {
		case RolePatient:
			return Filter{OwnerProfileID: p.Profile.ID}
		case RoleDoctor:
			return Filter{AssignedDoctorID: p.Profile.ID}
		case RoleNurse, RolePharmacy:
			return ScopeAll
		}
	}
	return ScopeNone
}

// Matches reports whether a record is inside the filter.
func (f Filter) Matches(r Resource) bool {
	if f.None || r == nil {
		return false
	}
	if f.All {
		return true
	}
	if f.OwnerPrincipalID != "" {
		owned, ok := r.(PrincipalOwned)
		return ok && owned.OwningPrincipalID() == f.OwnerPrincipalID
	}
	if f.OwnerProfileID != "" {
		owned, ok := r.(PatientOwned)
		return ok && owned.OwningProfileID() == f.OwnerProfileID
	}
	if f.AssignedDoctorID != "" {
		assigned, ok := r.(DoctorAssigned)
		return ok && assigned.AssignedDoctorProfileID() == f.AssignedDoctorID
	}
	return false
}
