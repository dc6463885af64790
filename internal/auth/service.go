package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/mesikahq/patient-monitoring/internal/audit"
	"github.com/mesikahq/patient-monitoring/internal/profile"
	"github.com/mesikahq/patient-monitoring/internal/rbac"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPrincipalNotFound  = errors.New("principal not found")
	ErrInvalidToken       = errors.New("invalid token")
)

// Claims carry only the principal's identity. Role, superuser flag, and
// profile state are resolved fresh from storage on every request so
// decisions always reflect state as committed at the start of the request.
type Claims struct {
	jwt.RegisteredClaims
	PrincipalID string `json:"principal_id"`
	Username    string `json:"username"`
}

// Account is a login account backing a principal.
type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsSuperuser  bool      `json:"is_superuser"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Service interface {
	Initialize(ctx context.Context) error
	CreateAccount(ctx context.Context, username, email, password string, superuser bool) (*Account, error)
	Login(ctx context.Context, username, password string) (string, error)
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)

	// Principal resolves the full authenticated principal, including its
	// profile and role, from current storage state.
	Principal(ctx context.Context, principalID string) (rbac.Principal, error)
}

type ServiceConfig struct {
	JWTSecret   string
	TokenExpiry time.Duration
}

type service struct {
	db          *pgxpool.Pool
	profiles    profile.Service
	audit       audit.Service
	jwtSecret   []byte
	tokenExpiry time.Duration
}

func NewService(db *pgxpool.Pool, profiles profile.Service, auditService audit.Service, config ServiceConfig) Service {
	return &service{
		db:          db,
		profiles:    profiles,
		audit:       auditService,
		jwtSecret:   []byte(config.JWTSecret),
		tokenExpiry: config.TokenExpiry,
	}
}

// Initialize creates the principals table.
func (s *service) Initialize(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS principals (
		id UUID PRIMARY KEY,
		username VARCHAR(255) UNIQUE NOT NULL,
		email VARCHAR(255) UNIQUE NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		is_superuser BOOLEAN NOT NULL DEFAULT false,
		is_active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

func (s *service) CreateAccount(ctx context.Context, username, email, password string, superuser bool) (*Account, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &Account{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hashed),
		IsSuperuser:  superuser,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO principals (id, username, email, password_hash, is_superuser, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		account.ID, account.Username, account.Email, account.PasswordHash,
		account.IsSuperuser, account.IsActive, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create principal: %w", err)
	}
	return account, nil
}

func (s *service) Login(ctx context.Context, username, password string) (string, error) {
	var account Account
	err := s.db.QueryRow(ctx, `
		SELECT id, username, password_hash, is_superuser, is_active
		FROM principals WHERE username = $1`, username).Scan(
		&account.ID, &account.Username, &account.PasswordHash,
		&account.IsSuperuser, &account.IsActive)
	if err != nil {
		return "", ErrInvalidCredentials
	}

	if !account.IsActive {
		return "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		s.audit.LogEvent(ctx, &audit.Event{
			EventType:   audit.EventLogin,
			PrincipalID: account.ID,
			Action:      "LOGIN",
			Resource:    "principal",
			Status:      "failure",
		})
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenExpiry)),
		},
		PrincipalID: account.ID,
		Username:    account.Username,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	s.audit.LogEvent(ctx, &audit.Event{
		EventType:   audit.EventLogin,
		PrincipalID: account.ID,
		Action:      "LOGIN",
		Resource:    "principal",
		Status:      "success",
	})
	return token, nil
}

func (s *service) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *service) Principal(ctx context.Context, principalID string) (rbac.Principal, error) {
	p := rbac.Principal{ID: principalID}
	err := s.db.QueryRow(ctx, `
		SELECT is_superuser, is_active FROM principals WHERE id = $1`,
		principalID).Scan(&p.IsSuperuser, &p.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rbac.Principal{}, ErrPrincipalNotFound
		}
		return rbac.Principal{}, err
	}

	prof, err := s.profiles.ResolveProfile(ctx, principalID)
	if err != nil {
		if errors.Is(err, profile.ErrProfileNotFound) {
			// A principal with no profile is still authenticated; every
			// authorization decision for it fails closed.
			return p, nil
		}
		return rbac.Principal{}, err
	}

	p.Profile = &rbac.ProfileRef{ID: prof.ID, Role: prof.Role}
	return p, nil
}
