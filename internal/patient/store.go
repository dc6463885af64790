package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mesikahq/patient-monitoring/internal/rbac"
)

// Store persists patients and their emergency contacts. SaveContact must be
// atomic with primary demotion: no reader may observe two primary contacts
// for one patient. List methods interpret the scope filter exactly.
type Store interface {
	Create(ctx context.Context, p *Patient) error
	Get(ctx context.Context, id string) (*Patient, error)
	GetByProfile(ctx context.Context, profileID string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter rbac.Filter) ([]*Patient, error)
	ListUnassigned(ctx context.Context) ([]*Patient, error)

	// ProfileRole resolves the role of a profile row, for validating
	// ownership and doctor assignment at write time.
	ProfileRole(ctx context.Context, profileID string) (rbac.Role, error)

	SaveContact(ctx context.Context, c *EmergencyContact) error
	GetContact(ctx context.Context, id string) (*EmergencyContact, error)
	DeleteContact(ctx context.Context, id string) error
	ListContacts(ctx context.Context, patientID string, filter rbac.Filter) ([]*EmergencyContact, error)
}

type postgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) Store {
	return &postgresStore{db: db}
}

const patientColumns = `id, profile_id, assigned_doctor_id, medical_record_number, date_of_birth, blood_type, allergies, created_at, updated_at`

func (s *postgresStore) Create(ctx context.Context, p *Patient) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO patients (id, profile_id, assigned_doctor_id, medical_record_number, date_of_birth, blood_type, allergies, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9)`,
		p.ID, p.ProfileID, p.AssignedDoctorID, p.MedicalRecordNumber,
		p.DateOfBirth, p.BloodType, p.Allergies, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create patient: %w", err)
	}
	return nil
}

func (s *postgresStore) Get(ctx context.Context, id string) (*Patient, error) {
	return s.scanOne(s.db.QueryRow(ctx,
		`SELECT `+patientColumns+` FROM patients WHERE id = $1`, id))
}

func (s *postgresStore) GetByProfile(ctx context.Context, profileID string) (*Patient, error) {
	return s.scanOne(s.db.QueryRow(ctx,
		`SELECT `+patientColumns+` FROM patients WHERE profile_id = $1`, profileID))
}

func (s *postgresStore) Update(ctx context.Context, p *Patient) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE patients
		SET assigned_doctor_id = NULLIF($2, ''), medical_record_number = $3,
		    date_of_birth = $4, blood_type = $5, allergies = $6, updated_at = $7
		WHERE id = $1`,
		p.ID, p.AssignedDoctorID, p.MedicalRecordNumber,
		p.DateOfBirth, p.BloodType, p.Allergies, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

func (s *postgresStore) Delete(ctx context.Context, id string) error {
	// Emergency contacts cascade at the schema level.
	tag, err := s.db.Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

func (s *postgresStore) List(ctx context.Context, filter rbac.Filter) ([]*Patient, error) {
	if filter.None {
		return nil, nil
	}

	query := `SELECT ` + patientColumns + ` FROM patients`
	var args []interface{}
	switch {
	case filter.All:
	case filter.OwnerProfileID != "":
		query += ` WHERE profile_id = $1`
		args = append(args, filter.OwnerProfileID)
	case filter.AssignedDoctorID != "":
		query += ` WHERE assigned_doctor_id = $1`
		args = append(args, filter.AssignedDoctorID)
	default:
		return nil, nil
	}
	query += ` ORDER BY created_at`

	return s.scanMany(ctx, query, args...)
}

func (s *postgresStore) ListUnassigned(ctx context.Context) ([]*Patient, error) {
	return s.scanMany(ctx,
		`SELECT `+patientColumns+` FROM patients WHERE assigned_doctor_id IS NULL ORDER BY created_at`)
}

func (s *postgresStore) ProfileRole(ctx context.Context, profileID string) (rbac.Role, error) {
	var role string
	err := s.db.QueryRow(ctx,
		`SELECT role FROM profiles WHERE id = $1`, profileID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("profile %s: %w", profileID, pgx.ErrNoRows)
		}
		return "", err
	}
	return rbac.ParseRole(role)
}

const contactColumns = `c.id, c.patient_id, c.name, c.relationship, c.phone, c.is_primary_contact,
	c.created_at, c.updated_at, p.profile_id, COALESCE(p.assigned_doctor_id, '')`

func (s *postgresStore) SaveContact(ctx context.Context, c *EmergencyContact) error {
	// Demotion of the previous primary and the upsert share one transaction.
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if c.IsPrimaryContact {
			if _, err := tx.Exec(ctx, `
				UPDATE emergency_contacts SET is_primary_contact = FALSE, updated_at = $3
				WHERE patient_id = $1 AND id <> $2 AND is_primary_contact`,
				c.PatientID, c.ID, c.UpdatedAt); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO emergency_contacts (id, patient_id, name, relationship, phone, is_primary_contact, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name, relationship = EXCLUDED.relationship,
			    phone = EXCLUDED.phone, is_primary_contact = EXCLUDED.is_primary_contact,
			    updated_at = EXCLUDED.updated_at`,
			c.ID, c.PatientID, c.Name, c.Relationship, c.Phone,
			c.IsPrimaryContact, c.CreatedAt, c.UpdatedAt)
		return err
	})
}

func (s *postgresStore) GetContact(ctx context.Context, id string) (*EmergencyContact, error) {
	var c EmergencyContact
	err := s.db.QueryRow(ctx, `
		SELECT `+contactColumns+`
		FROM emergency_contacts c
		JOIN patients p ON p.id = c.patient_id
		WHERE c.id = $1`, id).Scan(
		&c.ID, &c.PatientID, &c.Name, &c.Relationship, &c.Phone, &c.IsPrimaryContact,
		&c.CreatedAt, &c.UpdatedAt, &c.OwnerProfileID, &c.DoctorProfileID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContactNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *postgresStore) DeleteContact(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM emergency_contacts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrContactNotFound
	}
	return nil
}

func (s *postgresStore) ListContacts(ctx context.Context, patientID string, filter rbac.Filter) ([]*EmergencyContact, error) {
	if filter.None {
		return nil, nil
	}

	query := `
		SELECT ` + contactColumns + `
		FROM emergency_contacts c
		JOIN patients p ON p.id = c.patient_id`
	var conds []string
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if patientID != "" {
		conds = append(conds, `c.patient_id = `+arg(patientID))
	}
	switch {
	case filter.All:
	case filter.OwnerProfileID != "":
		conds = append(conds, `p.profile_id = `+arg(filter.OwnerProfileID))
	case filter.AssignedDoctorID != "":
		conds = append(conds, `p.assigned_doctor_id = `+arg(filter.AssignedDoctorID))
	default:
		return nil, nil
	}

	for i, cond := range conds {
		if i == 0 {
			query += ` WHERE ` + cond
		} else {
			query += ` AND ` + cond
		}
	}
	query += ` ORDER BY c.created_at`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []*EmergencyContact
	for rows.Next() {
		var c EmergencyContact
		if err := rows.Scan(&c.ID, &c.PatientID, &c.Name, &c.Relationship, &c.Phone,
			&c.IsPrimaryContact, &c.CreatedAt, &c.UpdatedAt,
			&c.OwnerProfileID, &c.DoctorProfileID); err != nil {
			return nil, err
		}
		contacts = append(contacts, &c)
	}
	return contacts, rows.Err()
}

func (s *postgresStore) scanOne(row pgx.Row) (*Patient, error) {
	var p Patient
	var doctorID *string
	err := row.Scan(&p.ID, &p.ProfileID, &doctorID, &p.MedicalRecordNumber,
		&p.DateOfBirth, &p.BloodType, &p.Allergies, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	if doctorID != nil {
		p.AssignedDoctorID = *doctorID
	}
	return &p, nil
}

func (s *postgresStore) scanMany(ctx context.Context, query string, args ...interface{}) ([]*Patient, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		var p Patient
		var doctorID *string
		if err := rows.Scan(&p.ID, &p.ProfileID, &doctorID, &p.MedicalRecordNumber,
			&p.DateOfBirth, &p.BloodType, &p.Allergies, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if doctorID != nil {
			p.AssignedDoctorID = *doctorID
		}
		patients = append(patients, &p)
	}
	return patients, rows.Err()
}
