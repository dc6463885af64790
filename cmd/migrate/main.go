package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/mesikahq/patient-monitoring/internal/database"
)

const schema = `
CREATE TABLE IF NOT EXISTS principals (
	id UUID PRIMARY KEY,
	username VARCHAR(255) UNIQUE NOT NULL,
	email VARCHAR(255) UNIQUE NOT NULL,
	password_hash VARCHAR(255) NOT NULL,
	is_superuser BOOLEAN NOT NULL DEFAULT false,
	is_active BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS profiles (
	id UUID PRIMARY KEY,
	principal_id UUID UNIQUE NOT NULL REFERENCES principals(id) ON DELETE CASCADE,
	role VARCHAR(20) NOT NULL,
	department VARCHAR(100) NOT NULL DEFAULT '',
	license_number TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP WITH TIME ZONE NOT NULL,
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL
);

CREATE TABLE IF NOT EXISTS patients (
	id UUID PRIMARY KEY,
	profile_id UUID UNIQUE NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
	assigned_doctor_id UUID REFERENCES profiles(id) ON DELETE SET NULL,
	medical_record_number VARCHAR(50) UNIQUE NOT NULL,
	date_of_birth DATE NOT NULL,
	blood_type VARCHAR(10) NOT NULL DEFAULT '',
	allergies TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP WITH TIME ZONE NOT NULL,
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL
);
CREATE INDEX IF NOT EXISTS patients_assigned_doctor_idx ON patients(assigned_doctor_id);

CREATE TABLE IF NOT EXISTS emergency_contacts (
	id UUID PRIMARY KEY,
	patient_id UUID NOT NULL REFERENCES patients(id) ON DELETE CASCADE,
	name VARCHAR(255) NOT NULL,
	relationship VARCHAR(100) NOT NULL DEFAULT '',
	phone TEXT NOT NULL,
	is_primary_contact BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL,
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL
);
CREATE INDEX IF NOT EXISTS emergency_contacts_patient_idx ON emergency_contacts(patient_id);
-- Backstop for the single-primary invariant; the store demotes the previous
-- primary in the same transaction.
CREATE UNIQUE INDEX IF NOT EXISTS emergency_contacts_primary_idx
	ON emergency_contacts(patient_id) WHERE is_primary_contact;

CREATE TABLE IF NOT EXISTS groups (
	name VARCHAR(50) PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS group_members (
	principal_id UUID NOT NULL REFERENCES principals(id) ON DELETE CASCADE,
	group_name VARCHAR(50) NOT NULL REFERENCES groups(name) ON DELETE CASCADE,
	PRIMARY KEY (principal_id, group_name)
);
`

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Error loading .env file: %v", err)
	}

	pgPort := 5432
	if portEnv := os.Getenv("POSTGRES_PORT"); portEnv != "" {
		port, err := strconv.Atoi(portEnv)
		if err != nil {
			log.Fatalf("Invalid POSTGRES_PORT: %v", err)
		}
		pgPort = port
	}

	postgresConfig := database.PostgresConfig{
		Host:        os.Getenv("POSTGRES_HOST"),
		Port:        pgPort,
		Database:    os.Getenv("POSTGRES_DB"),
		User:        os.Getenv("POSTGRES_USER"),
		Password:    os.Getenv("POSTGRES_PASSWORD"),
		SSLMode:     os.Getenv("POSTGRES_SSLMODE"),
		MaxPoolSize: 1,
		ConnTimeout: 5 * time.Second,
	}

	ctx := context.Background()
	db, err := database.Connect(ctx, postgresConfig)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer database.Disconnect(db)

	if _, err := db.Exec(ctx, schema); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("Migration complete")
}
