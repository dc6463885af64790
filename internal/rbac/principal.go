package rbac

// ProfileRef is the slice of a principal's profile the engine needs: its
// identity and current role. The full profile record lives in the profile
// package; decisions here depend on role only, never on group membership.
type ProfileRef struct {
	ID   string
	Role Role
}

// Principal is an authenticated identity making a request. Profile is nil
// when the account has no profile attached; every decision then fails
// closed.
type Principal struct {
	ID          string
	IsSuperuser bool
	IsActive    bool
	Profile     *ProfileRef
}

// RoleOf returns the principal's role and whether it is a registered role.
// A missing profile or an unregistered role value both report false.
func (p Principal) RoleOf() (Role, bool) {
	if p.Profile == nil || !p.Profile.Role.Valid() {
		return "", false
	}
	return p.Profile.Role, true
}
