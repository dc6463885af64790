package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/mesikahq/patient-monitoring/internal/audit"
	"github.com/mesikahq/patient-monitoring/internal/auth"
	"github.com/mesikahq/patient-monitoring/internal/database"
	"github.com/mesikahq/patient-monitoring/internal/encryption"
	"github.com/mesikahq/patient-monitoring/internal/group"
	"github.com/mesikahq/patient-monitoring/internal/profile"
	"github.com/mesikahq/patient-monitoring/internal/rbac"
)

// Bootstraps the system: provisions the five role groups, creates a
// superuser admin account with an admin profile, and reconciles every
// existing principal into the group derived from its role.
func main() {
	username := flag.String("username", "", "Admin username")
	password := flag.String("password", "", "Admin password")
	email := flag.String("email", "", "Admin email")
	syncOnly := flag.Bool("sync-groups", false, "Only reconcile group membership for existing principals")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("Error loading .env file: %v", err)
	}

	esClient, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{os.Getenv("ELASTICSEARCH_URL")},
		Username:  os.Getenv("ELASTICSEARCH_USERNAME"),
		Password:  os.Getenv("ELASTICSEARCH_PASSWORD"),
	})
	if err != nil {
		log.Fatalf("Failed to connect to Elasticsearch: %v", err)
	}
	auditService := audit.NewService(esClient)

	postgresConfig := database.PostgresConfig{
		Host:        os.Getenv("POSTGRES_HOST"),
		Port:        5432,
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

	encryptService, err := encryption.NewService()
	if err != nil {
		log.Fatalf("Failed to initialize encryption service: %v", err)
	}

	engine := rbac.NewEngine()
	groupService := group.NewService(group.NewPostgresStore(db), auditService, nil)
	profileService := profile.NewService(profile.NewPostgresStore(db), engine, groupService, encryptService, auditService)
	authService := auth.NewService(db, profileService, auditService, auth.ServiceConfig{
		JWTSecret:   os.Getenv("JWT_SECRET"),
		TokenExpiry: 24 * time.Hour,
	})

	if err := authService.Initialize(ctx); err != nil {
		log.Fatalf("Failed to initialize auth service: %v", err)
	}

	groupStore := group.NewPostgresStore(db)
	for _, name := range group.Names() {
		if err := groupStore.EnsureGroup(ctx, name); err != nil {
			log.Fatalf("Failed to create group %s: %v", name, err)
		}
		log.Printf("Ensured group: %s", name)
	}

	if *syncOnly {
		reconcileGroups(ctx, db, groupService)
		return
	}

	if *username == "" || *password == "" || *email == "" {
		log.Fatal("Username, password, and email are required. Use -username, -password, and -email flags")
	}

	account, err := authService.CreateAccount(ctx, *username, *email, *password, true)
	if err != nil {
		log.Fatalf("Failed to create admin account: %v", err)
	}
	log.Printf("Created admin account %s (%s)", account.Username, account.ID)

	bootstrapper := rbac.Principal{ID: account.ID, IsSuperuser: true, IsActive: true}
	prof, err := profileService.Create(ctx, bootstrapper, &profile.Profile{
		PrincipalID: account.ID,
		Role:        rbac.RoleAdmin,
	})
	if err != nil {
		log.Fatalf("Failed to create admin profile: %v", err)
	}
	log.Printf("Created admin profile %s", prof.ID)

	reconcileGroups(ctx, db, groupService)
}

func reconcileGroups(ctx context.Context, db *pgxpool.Pool, groups group.Service) {
	rows, err := db.Query(ctx, `SELECT principal_id, role FROM profiles`)
	if err != nil {
		log.Fatalf("Failed to list profiles: %v", err)
	}
	defer rows.Close()

	for rows.Next() {
		var principalID, role string
		if err := rows.Scan(&principalID, &role); err != nil {
			log.Fatalf("Failed to scan profile: %v", err)
		}
		groups.Sync(ctx, principalID, rbac.Role(role))
		log.Printf("Reconciled groups for principal %s (role %s)", principalID, role)
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("Failed to iterate profiles: %v", err)
	}
}
