package rbac

// DisplayFields returns the listing columns the administrative UI should
// render for a record kind, given the viewer's role. Computed fresh on every
// call so callers may reorder or trim the slice. Display only, never
// authoritative.
func DisplayFields(kind Kind, role Role) []string {
	switch kind {
	case KindProfile:
		if role == RoleAdmin {
			return []string{"user", "role", "department", "license_number", "created_at"}
		}
		return []string{"user", "role", "department", "phone"}
	case KindPatient:
		switch role {
		case RoleAdmin:
			return []string{"medical_record_number", "profile", "assigned_doctor", "date_of_birth", "created_at"}
		case RoleDoctor, RoleNurse, RolePharmacy:
			return []string{"medical_record_number", "profile", "date_of_birth", "blood_type"}
		default:
			return []string{"medical_record_number", "date_of_birth", "blood_type"}
		}
	case KindEmergencyContact:
		return []string{"name", "relationship", "phone", "is_primary_contact"}
	}
	return nil
}
