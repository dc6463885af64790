package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	SSLMode     string
	MaxPoolSize int32
	ConnTimeout time.Duration
}

// Connect establishes a PostgreSQL connection pool. Authorization decisions
// read committed row state; the pool relies on the server's default
// read-committed isolation.
func Connect(ctx context.Context, config PostgresConfig) (*pgxpool.Pool, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host,
		config.Port,
		config.User,
		config.Password,
		config.Database,
		config.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("error parsing connection string: %v", err)
	}

	poolConfig.MaxConns = config.MaxPoolSize
	poolConfig.ConnConfig.ConnectTimeout = config.ConnTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %v", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %v", err)
	}

	return pool, nil
}

// Disconnect safely closes the PostgreSQL connection pool
func Disconnect(pool *pgxpool.Pool) error {
	if pool != nil {
		pool.Close()
	}
	return nil
}
