package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robsonalexmmf/contact-pilot-system-sub002/app/models"
	"github.com/robsonalexmmf/contact-pilot-system-sub002/auth"

	_ "github.com/lib/pq"
)

var ErrProfileNotFound = errors.New("profile not found")

// ProfileStore reads the profiles table.
type ProfileStore interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
	EnsureFromClaims(ctx context.Context, claims *auth.Claims) error
}

// OpenDB connects to Postgres and verifies the connection.
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("DATABASE_URL is empty")
	}
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	d.SetMaxOpenConns(5)
	d.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := d.PingContext(pingCtx); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}
	return d, nil
}

// PostgresProfileStore implements ProfileStore over database/sql.
type PostgresProfileStore struct {
	db *sql.DB
}

func NewPostgresProfileStore(db *sql.DB) *PostgresProfileStore {
	return &PostgresProfileStore{db: db}
}

// FindByID returns ErrProfileNotFound when no row matches.
func (s *PostgresProfileStore) FindByID(ctx context.Context, id string) (*models.Profile, error) {
	var (
		p        models.Profile
		email    sql.NullString
		fullName sql.NullString
		planType sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, full_name, plan_type
		FROM profiles
		WHERE id = $1;
	`, id).Scan(&p.ID, &email, &fullName, &planType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	p.Email = strings.ToLower(strings.TrimSpace(email.String))
	p.FullName = fullName.String
	p.PlanType = models.PlanFree
	if parsed, err := models.ParsePlanType(planType.String); err == nil {
		p.PlanType = parsed
	}
	return &p, nil
}

// EnsureFromClaims creates a profile row for a verified identity if missing.
func (s *PostgresProfileStore) EnsureFromClaims(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || claims.Subject == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, email, full_name, plan_type)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING;
	`,
		claims.Subject,
		nullIfEmpty(claims.Email),
		nullIfEmpty(readStringClaim(claims.Raw, "name")),
		models.PlanFree,
	)
	return err
}

func readStringClaim(raw map[string]any, key string) string {
	if raw == nil {
		return ""
	}
	if s, ok := raw[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
