package patient

import (
	"errors"
	"time"

	"github.com/mesikahq/patient-monitoring/internal/rbac"
)

var (
	ErrPatientNotFound    = errors.New("patient not found")
	ErrContactNotFound    = errors.New("emergency contact not found")
	ErrInvalidAssignment  = errors.New("assigned doctor must be a doctor-role profile")
	ErrInvalidPatientData = errors.New("invalid patient data")
	ErrInvalidContactData = errors.New("invalid emergency contact data")
)

// Patient is the medical record owned by exactly one patient-role profile.
// AssignedDoctorID optionally references a doctor-role profile; assignment
// makes that doctor a scoped viewer of the record, not an owner.
type Patient struct {
	ID                  string    `json:"id"`
	ProfileID           string    `json:"profile_id"`
	AssignedDoctorID    string    `json:"assigned_doctor_id,omitempty"`
	MedicalRecordNumber string    `json:"medical_record_number"`
	DateOfBirth         time.Time `json:"date_of_birth"`
	BloodType           string    `json:"blood_type,omitempty"`
	Allergies           string    `json:"allergies,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (p *Patient) ResourceKind() rbac.Kind { return rbac.KindPatient }

func (p *Patient) OwningProfileID() string { return p.ProfileID }

func (p *Patient) AssignedDoctorProfileID() string { return p.AssignedDoctorID }

func (p *Patient) Validate() error {
	if p.ProfileID == "" || p.MedicalRecordNumber == "" {
		return ErrInvalidPatientData
	}
	if p.DateOfBirth.IsZero() {
		return ErrInvalidPatientData
	}
	return nil
}

// EmergencyContact belongs to one patient. Among the contacts of one patient
// at most one is primary; saving a new primary demotes the previous holder
// within the same write.
type EmergencyContact struct {
	ID               string    `json:"id"`
	PatientID        string    `json:"patient_id"`
	Name             string    `json:"name"`
	Relationship     string    `json:"relationship,omitempty"`
	Phone            string    `json:"phone"`
	IsPrimaryContact bool      `json:"is_primary_contact"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	// Ownership relations resolved from the parent patient on load.
	OwnerProfileID  string `json:"-"`
	DoctorProfileID string `json:"-"`
}

func (c *EmergencyContact) ResourceKind() rbac.Kind { return rbac.KindEmergencyContact }

func (c *EmergencyContact) OwningProfileID() string { return c.OwnerProfileID }

func (c *EmergencyContact) AssignedDoctorProfileID() string { return c.DoctorProfileID }

func (c *EmergencyContact) Validate() error {
	if c.PatientID == "" || c.Name == "" || c.Phone == "" {
		return ErrInvalidContactData
	}
	return nil
}
