package data

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/alungalsinan/groot-scribe-studio/internal/data/pgxutil"
	domainauth "github.com/alungalsinan/groot-scribe-studio/internal/domain/auth"
	apperrors "github.com/alungalsinan/groot-scribe-studio/internal/errors"
	"github.com/alungalsinan/groot-scribe-studio/internal/ports"
)

var _ ports.RoleStore = (*RoleRepo)(nil)

// RoleRepo provides database operations for user role assignments.
type RoleRepo struct {
	DB *sql.DB
}

// NewRoleRepo creates a new role repository.
func NewRoleRepo(db *sql.DB) *RoleRepo {
	return &RoleRepo{DB: db}
}

// GetRole retrieves the role assignment for userID. The stored value is
// returned as-is; callers normalize it with domainauth.ParseRole.
func (r *RoleRepo) GetRole(ctx context.Context, userID string) (domainauth.RoleAssignment, error) {
	if strings.TrimSpace(userID) == "" {
		return domainauth.RoleAssignment{}, ErrIDRequired
	}

	var ra domainauth.RoleAssignment
	err := pgxutil.Conn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT user_id, role FROM user_roles WHERE user_id = $1`, userID)
		if err != nil {
			return err
		}
		ra, err = pgx.CollectOneRow(rows, scanRoleAssignment)
		return err
	})
	if err != nil {
		mapped := apperrors.MapDBError(err)
		if apperrors.IsNotFound(mapped) {
			return domainauth.RoleAssignment{}, apperrors.NotFoundf("role for %s not found", userID)
		}
		return domainauth.RoleAssignment{}, mapped
	}
	return ra, nil
}

// CreateRole assigns ra.Role unless the user already has a role and returns
// the stored assignment.
func (r *RoleRepo) CreateRole(ctx context.Context, ra domainauth.RoleAssignment) (domainauth.RoleAssignment, error) {
	if strings.TrimSpace(ra.UserID) == "" {
		return domainauth.RoleAssignment{}, ErrIDRequired
	}
	if !ra.Role.Valid() {
		return domainauth.RoleAssignment{}, apperrors.ValidationField("role", "role must be author or super_admin")
	}

	var stored domainauth.RoleAssignment
	err := pgxutil.Tx(ctx, r.DB, pgxutil.ReadCommitted, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO user_roles (user_id, role) VALUES ($1, $2)
			ON CONFLICT (user_id) DO NOTHING`,
			ra.UserID, string(ra.Role),
		); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT user_id, role FROM user_roles WHERE user_id = $1`, ra.UserID)
		if err != nil {
			return err
		}
		stored, err = pgx.CollectOneRow(rows, scanRoleAssignment)
		return err
	})
	if err != nil {
		return domainauth.RoleAssignment{}, apperrors.MapDBError(err)
	}
	return stored, nil
}

// SetRole upserts the role for userID. It backs administrative role changes
// such as promoting a seeded account.
func (r *RoleRepo) SetRole(ctx context.Context, userID string, role domainauth.Role) error {
	if strings.TrimSpace(userID) == "" {
		return ErrIDRequired
	}
	if !role.Valid() {
		return apperrors.ValidationField("role", "role must be author or super_admin")
	}
	err := pgxutil.Conn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, `
			INSERT INTO user_roles (user_id, role) VALUES ($1, $2)
			ON CONFLICT (user_id) DO UPDATE SET role = EXCLUDED.role`,
			userID, string(role),
		)
		return err
	})
	return apperrors.MapDBError(err)
}

func scanRoleAssignment(row pgx.CollectableRow) (domainauth.RoleAssignment, error) {
	var (
		ra   domainauth.RoleAssignment
		role string
	)
	if err := row.Scan(&ra.UserID, &role); err != nil {
		return domainauth.RoleAssignment{}, err
	}
	ra.Role = domainauth.Role(role)
	return ra, nil
}
