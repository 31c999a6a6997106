package waitlist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// DefaultTable is the relational table name for signups.
const DefaultTable = "waitlist_signups"

// Postgres error codes that map to store errors.
const (
	pqUniqueViolation      = "23505"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// PostgresStore implements Store on PostgreSQL. Uniqueness is enforced by a
// UNIQUE constraint on the email column.
type PostgresStore struct {
	db    *sql.DB
	table string
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres opens a connection pool for dsn.
func OpenPostgres(dsn string, maxOpenConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns)
	}
	return db, nil
}

// NewPostgresStore creates a store on db. An empty table selects
// DefaultTable.
func NewPostgresStore(db *sql.DB, table string) *PostgresStore {
	if table == "" {
		table = DefaultTable
	}
	return &PostgresStore{db: db, table: pq.QuoteIdentifier(table)}
}

// Migrate creates the signup table when it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	consent BOOLEAN NOT NULL CHECK (consent),
	name TEXT NOT NULL DEFAULT '',
	use_case TEXT NOT NULL DEFAULT '',
	submitted_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("migrate %s: %w", s.table, err)
	}
	return nil
}

const signupColumns = "id, email, consent, name, use_case, submitted_at, updated_at"

func (s *PostgresStore) Get(ctx context.Context, email string) (*Signup, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE email = $1", signupColumns, s.table)
	signup, err := scanSignup(s.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, mapPostgresError(err)
	}
	return signup, nil
}

func (s *PostgresStore) Insert(ctx context.Context, signup *Signup) error {
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (email) DO NOTHING",
		s.table, signupColumns,
	)
	res, err := s.db.ExecContext(ctx, query,
		signup.ID,
		signup.Email,
		signup.Consent,
		signup.Name,
		signup.UseCase,
		signup.SubmittedAt,
		signup.UpdatedAt,
	)
	if err != nil {
		return mapPostgresError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, email string, params UpdateParams) (*Signup, error) {
	query := fmt.Sprintf(
		"UPDATE %s SET name = COALESCE($2, name), use_case = COALESCE($3, use_case), updated_at = $4 WHERE email = $1 RETURNING %s",
		s.table, signupColumns,
	)
	row := s.db.QueryRowContext(ctx, query,
		email,
		nullString(params.Name),
		nullString(params.UseCase),
		params.UpdatedAt,
	)
	signup, err := scanSignup(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, mapPostgresError(err)
	}
	return signup, nil
}

func scanSignup(row *sql.Row) (*Signup, error) {
	var s Signup
	if err := row.Scan(&s.ID, &s.Email, &s.Consent, &s.Name, &s.UseCase, &s.SubmittedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.SubmittedAt = s.SubmittedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func mapPostgresError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case pqUniqueViolation:
		return ErrDuplicate
	case pqSerializationFailure, pqDeadlockDetected:
		return fmt.Errorf("%w: %w", ErrConflict, err)
	default:
		return err
	}
}
