// Package postgres is the Credential store: Postgres-backed persistence for
// organizations, users, refresh token records, and audit entries.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides Postgres-backed persistence for the identity service.
type Store struct {
	pool     *pgxpool.Pool
	ownsPool bool
}

// NewStore creates a store using the provided connection string and takes ownership of the pool.
func NewStore(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	return &Store{pool: pool, ownsPool: true}, nil
}

// NewStoreFromPool wraps an existing pgx pool.
func NewStoreFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close closes the underlying pool if the store owns it.
func (s *Store) Close() {
	if s.ownsPool && s.pool != nil {
		s.pool.Close()
	}
}

// Pool exposes the underlying pgx pool for internal collaborators.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Store) withTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	return nil
}

func (s *Store) withTenantTx(ctx context.Context, orgID uuid.UUID, fn func(context.Context, pgx.Tx) error) error {
	return s.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		escapedOrgID := strings.ReplaceAll(orgID.String(), "'", "''")
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL app.org_id = '%s'", escapedOrgID)); err != nil {
			return err
		}
		return fn(ctx, tx)
	})
}

// CreateOrg inserts a new organization row.
func (s *Store) CreateOrg(ctx context.Context, params CreateOrgParams) (Org, error) {
	var org Org
	row := s.pool.QueryRow(ctx, `
		INSERT INTO organizations (id, name, client_id_hash, client_secret_hash, active, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, true, 1, now(), now())
		RETURNING id, name, client_id_hash, client_secret_hash, active, version, created_at, updated_at
	`, params.ID, params.Name, params.ClientIDHash, params.ClientSecretHash)
	if err := scanOrg(row, &org); err != nil {
		if isUniqueViolation(err) {
			return Org{}, ErrDuplicate
		}
		return Org{}, fmt.Errorf("postgres: create org: %w", err)
	}
	return org, nil
}

// GetOrgByClientIDHash looks up the active credentials an HMAC request is
// signed against. This is the hot path for the request authenticator.
func (s *Store) GetOrgByClientIDHash(ctx context.Context, clientIDHash string) (Org, error) {
	var org Org
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, client_id_hash, client_secret_hash, active, version, created_at, updated_at
		FROM organizations WHERE client_id_hash = $1
	`, clientIDHash)
	if err := scanOrg(row, &org); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Org{}, ErrNotFound
		}
		return Org{}, fmt.Errorf("postgres: get org by client id hash: %w", err)
	}
	return org, nil
}

func (s *Store) GetOrgByID(ctx context.Context, id uuid.UUID) (Org, error) {
	var org Org
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, client_id_hash, client_secret_hash, active, version, created_at, updated_at
		FROM organizations WHERE id = $1
	`, id)
	if err := scanOrg(row, &org); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Org{}, ErrNotFound
		}
		return Org{}, fmt.Errorf("postgres: get org by id: %w", err)
	}
	return org, nil
}

func scanOrg(row pgx.Row, org *Org) error {
	return row.Scan(&org.ID, &org.Name, &org.ClientIDHash, &org.ClientSecretHash, &org.Active, &org.Version, &org.CreatedAt, &org.UpdatedAt)
}

// CreateUser inserts a new user row scoped to an org.
func (s *Store) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	var user User
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, org_id, email, password_hash, role, active, failed_login_attempts, version, created_at, updated_at)
		VALUES ($1, $2, lower($3), $4, $5, true, 0, 1, now(), now())
		RETURNING id, org_id, email, password_hash, role, active, failed_login_attempts, locked_until, last_login_at, version, created_at, updated_at
	`, params.ID, params.OrgID, params.Email, params.PasswordHash, params.Role)
	if err := scanUser(row, &user); err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrDuplicate
		}
		return User{}, fmt.Errorf("postgres: create user: %w", err)
	}
	return user, nil
}

// GetUserByEmail loads the single user for (org_id, email), used at login.
func (s *Store) GetUserByEmail(ctx context.Context, orgID uuid.UUID, email string) (User, error) {
	var user User
	row := s.pool.QueryRow(ctx, `
		SELECT id, org_id, email, password_hash, role, active, failed_login_attempts, locked_until, last_login_at, version, created_at, updated_at
		FROM users WHERE org_id = $1 AND email = lower($2)
	`, orgID, email)
	if err := scanUser(row, &user); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("postgres: get user by email: %w", err)
	}
	return user, nil
}

func (s *Store) GetUserByID(ctx context.Context, orgID, id uuid.UUID) (User, error) {
	var user User
	row := s.pool.QueryRow(ctx, `
		SELECT id, org_id, email, password_hash, role, active, failed_login_attempts, locked_until, last_login_at, version, created_at, updated_at
		FROM users WHERE org_id = $1 AND id = $2
	`, orgID, id)
	if err := scanUser(row, &user); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("postgres: get user by id: %w", err)
	}
	return user, nil
}

func (s *Store) ListUsers(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]User, int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, org_id, email, password_hash, role, active, failed_login_attempts, locked_until, last_login_at, version, created_at, updated_at
		FROM users WHERE org_id = $1 ORDER BY created_at ASC LIMIT $2 OFFSET $3
	`, orgID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := scanUser(rows, &u); err != nil {
			return nil, 0, fmt.Errorf("postgres: scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM users WHERE org_id = $1`, orgID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres: count users: %w", err)
	}
	return users, total, nil
}

func scanUser(row pgx.Row, u *User) error {
	return row.Scan(&u.ID, &u.OrgID, &u.Email, &u.PasswordHash, &u.Role, &u.Active,
		&u.FailedLoginAttempts, &u.LockedUntil, &u.LastLoginAt, &u.Version, &u.CreatedAt, &u.UpdatedAt)
}

// RecordFailedLogin increments failed_login_attempts and, once it reaches
// maxAttempts, sets locked_until. Returns the updated attempt count and
// whether this call triggered the lockout.
func (s *Store) RecordFailedLogin(ctx context.Context, orgID, userID uuid.UUID, maxAttempts int, lockoutDuration time.Duration) (int, bool, error) {
	var attempts int
	var lockedUntil *time.Time
	err := s.pool.QueryRow(ctx, `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE WHEN failed_login_attempts + 1 >= $3 THEN now() + ($4 * interval '1 second') ELSE locked_until END,
		    version = version + 1,
		    updated_at = now()
		WHERE org_id = $1 AND id = $2
		RETURNING failed_login_attempts, locked_until
	`, orgID, userID, maxAttempts, int(lockoutDuration.Seconds())).Scan(&attempts, &lockedUntil)
	if err != nil {
		return 0, false, fmt.Errorf("postgres: record failed login: %w", err)
	}
	return attempts, lockedUntil != nil, nil
}

// ResetLoginState clears lockout bookkeeping and stamps last_login_at, called
// on successful authentication.
func (s *Store) ResetLoginState(ctx context.Context, orgID, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users
		SET failed_login_attempts = 0, locked_until = NULL, last_login_at = now(), version = version + 1, updated_at = now()
		WHERE org_id = $1 AND id = $2
	`, orgID, userID)
	if err != nil {
		return fmt.Errorf("postgres: reset login state: %w", err)
	}
	return nil
}

// UpdateUserRole changes a user's role; fails with ErrLastOwner if the target
// is the org's sole remaining owner and the new role is not owner.
func (s *Store) UpdateUserRole(ctx context.Context, orgID, userID uuid.UUID, role string) (User, error) {
	var user User
	err := s.withTenantTx(ctx, orgID, func(ctx context.Context, tx pgx.Tx) error {
		var currentRole string
		if err := tx.QueryRow(ctx, `SELECT role FROM users WHERE org_id=$1 AND id=$2 FOR UPDATE`, orgID, userID).Scan(&currentRole); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if currentRole == RoleOwner && role != RoleOwner {
			var ownerCount int
			if err := tx.QueryRow(ctx, `SELECT count(*) FROM users WHERE org_id=$1 AND role=$2`, orgID, RoleOwner).Scan(&ownerCount); err != nil {
				return err
			}
			if ownerCount <= 1 {
				return ErrLastOwner
			}
		}
		row := tx.QueryRow(ctx, `
			UPDATE users SET role=$3, version=version+1, updated_at=now()
			WHERE org_id=$1 AND id=$2
			RETURNING id, org_id, email, password_hash, role, active, failed_login_attempts, locked_until, last_login_at, version, created_at, updated_at
		`, orgID, userID, role)
		return scanUser(row, &user)
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// CreateRefreshToken inserts a new refresh token record.
func (s *Store) CreateRefreshToken(ctx context.Context, params CreateRefreshTokenParams) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (token_id, user_id, org_id, token_hash, expires_at, revoked, created_at)
		VALUES ($1, $2, $3, $4, $5, false, now())
	`, params.TokenID, params.UserID, params.OrgID, params.TokenHash, params.ExpiresAt)
	if err != nil {
		return fmt.Errorf("postgres: create refresh token: %w", err)
	}
	return nil
}

func (s *Store) GetRefreshToken(ctx context.Context, tokenID uuid.UUID) (RefreshTokenRecord, error) {
	var r RefreshTokenRecord
	row := s.pool.QueryRow(ctx, `
		SELECT token_id, user_id, org_id, token_hash, expires_at, revoked, revoked_at, created_at
		FROM refresh_tokens WHERE token_id = $1
	`, tokenID)
	if err := row.Scan(&r.TokenID, &r.UserID, &r.OrgID, &r.TokenHash, &r.ExpiresAt, &r.Revoked, &r.RevokedAt, &r.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RefreshTokenRecord{}, ErrNotFound
		}
		return RefreshTokenRecord{}, fmt.Errorf("postgres: get refresh token: %w", err)
	}
	return r, nil
}

// RotateRefreshToken atomically revokes the old record (only if it is not
// already revoked) and inserts its successor. Returns ErrTokenReused if the
// old record was already revoked, so the caller can audit the reuse attempt.
func (s *Store) RotateRefreshToken(ctx context.Context, oldTokenID uuid.UUID, next CreateRefreshTokenParams) error {
	return s.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE refresh_tokens SET revoked = true, revoked_at = now()
			WHERE token_id = $1 AND revoked = false
		`, oldTokenID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrTokenReused
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO refresh_tokens (token_id, user_id, org_id, token_hash, expires_at, revoked, created_at)
			VALUES ($1, $2, $3, $4, $5, false, now())
		`, next.TokenID, next.UserID, next.OrgID, next.TokenHash, next.ExpiresAt)
		return err
	})
}

// RevokeRefreshToken revokes a single record by id; idempotent.
func (s *Store) RevokeRefreshToken(ctx context.Context, tokenID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE refresh_tokens SET revoked = true, revoked_at = now()
		WHERE token_id = $1 AND revoked = false
	`, tokenID)
	if err != nil {
		return fmt.Errorf("postgres: revoke refresh token: %w", err)
	}
	return nil
}

// CreateAuditEntry appends an audit record. Audit writes never roll back the
// caller's transaction; callers that need atomicity should call this inside
// their own withTx.
func (s *Store) CreateAuditEntry(ctx context.Context, params CreateAuditEntryParams) error {
	if params.Details == nil {
		params.Details = map[string]any{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_entries (id, org_id, user_id, action, resource, status, details, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
	`, params.ID, params.OrgID, params.UserID, params.Action, params.Resource, params.Status, params.Details, params.IPAddress, params.UserAgent)
	if err != nil {
		return fmt.Errorf("postgres: create audit entry: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "SQLSTATE 23505")
}
