package rbac

// Action is an operation the engine can be asked to authorize. ActionList is
// the module-level listing check made before any object exists.
type Action string

const (
	ActionView   Action = "view"
	ActionAdd    Action = "add"
	ActionChange Action = "change"
	ActionDelete Action = "delete"
	ActionList   Action = "list"
)

// Decision is the outcome of an authorization check. Denial is a normal
// return value, never an error.
type Decision int

const (
	Deny Decision = iota
	Allow
)

func (d Decision) Allowed() bool { return d == Allow }

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

type policyFunc func(p Principal, role Role, r Resource, a Action) Decision

// Engine is the authorization decision function for the patient monitoring
// system. Per-kind policies live in a single dispatch table so every role's
// treatment of a record type is defined exactly once.
type Engine struct {
	policies map[Kind]policyFunc
}

func NewEngine() *Engine {
	return &Engine{
		policies: map[Kind]policyFunc{
			KindProfile:          profilePolicy,
			KindPatient:          patientPolicy,
			KindEmergencyContact: contactPolicy,
		},
	}
}

// Authorize decides whether the principal may perform the action on the
// record. Evaluation order, first match wins: superuser, admin role, missing
// or unregistered role (deny), per-kind policy, default deny.
func (e *Engine) Authorize(p Principal, r Resource, a Action) Decision {
	if r == nil {
		return Deny
	}
	return e.decide(p, r.ResourceKind(), r, a)
}

// AuthorizeKind is the module-level form of Authorize, used for add and
// listing checks made before an object exists.
func (e *Engine) AuthorizeKind(p Principal, kind Kind, a Action) Decision {
	return e.decide(p, kind, nil, a)
}

func (e *Engine) decide(p Principal, kind Kind, r Resource, a Action) Decision {
	if p.IsSuperuser {
		return Allow
	}
	role, ok := p.RoleOf()
	if !ok {
		// Missing profile or a role outside the registry: fail closed.
		return Deny
	}
	if role == RoleAdmin {
		return Allow
	}
	policy, ok := e.policies[kind]
	if !ok {
		return Deny
	}
	return policy(p, role, r, a)
}

// profilePolicy governs profile records. Add and delete never reach here
// with an allow: only superusers and admins may provision or destroy
// profiles. View and change are owner-only; the module itself is visible to
// every role because scoping narrows the listing to the principal's own row.
func profilePolicy(p Principal, role Role, r Resource, a Action) Decision {
	switch a {
	case ActionAdd, ActionDelete:
		return Deny
	case ActionList:
		return Allow
	case ActionView, ActionChange:
		if r == nil {
			return Allow
		}
		if IsOwner(p, r) {
			return Allow
		}
	}
	return Deny
}

// patientPolicy governs patient records. Patients may view and change but
// never add or delete their own record; doctors are scoped viewers of their
// assigned patients; nurses and pharmacy staff have open view/change access.
func patientPolicy(p Principal, role Role, r Resource, a Action) Decision {
	switch a {
	case ActionAdd, ActionDelete:
		return Deny
	case ActionList:
		return Allow
	case ActionView, ActionChange:
		if r == nil {
			return Allow
		}
		switch role {
		case RolePatient:
			if IsOwner(p, r) {
				return Allow
			}
		case RoleDoctor:
			if IsAssignedDoctor(p, r) {
				return Allow
			}
		case RoleNurse, RolePharmacy:
			return Allow
		}
	}
	return Deny
}

// contactPolicy governs emergency contacts. Ownership is inherited through
// the parent patient. Unlike the patient record itself, contacts may be
// fully managed by their owning patient, including add and delete.
func contactPolicy(p Principal, role Role, r Resource, a Action) Decision {
	switch a {
	case ActionList:
		return Allow
	case ActionAdd:
		if role == RolePatient && (r == nil || IsOwner(p, r)) {
			return Allow
		}
	case ActionDelete:
		if r != nil && role == RolePatient && IsOwner(p, r) {
			return Allow
		}
	case ActionView, ActionChange:
		if r == nil {
			return Allow
		}
		switch role {
		case RolePatient:
			if IsOwner(p, r) {
				return Allow
			}
		case RoleDoctor:
			if IsAssignedDoctor(p, r) {
				return Allow
			}
		case RoleNurse, RolePharmacy:
			return Allow
		}
	}
	return Deny
}
