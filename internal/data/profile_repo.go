package data

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alungalsinan/groot-scribe-studio/internal/data/pgxutil"
	domainauth "github.com/alungalsinan/groot-scribe-studio/internal/domain/auth"
	apperrors "github.com/alungalsinan/groot-scribe-studio/internal/errors"
	"github.com/alungalsinan/groot-scribe-studio/internal/ports"
)

var _ ports.ProfileStore = (*ProfileRepo)(nil)

// ProfileRepo provides database operations for profiles.
type ProfileRepo struct {
	DB *sql.DB
}

// NewProfileRepo creates a new profile repository.
func NewProfileRepo(db *sql.DB) *ProfileRepo {
	return &ProfileRepo{DB: db}
}

const profileColumns = `id, email, name, avatar, is_active, created_at, last_login`

func scanProfile(row pgx.CollectableRow) (domainauth.Profile, error) {
	var (
		p      domainauth.Profile
		avatar *string
	)
	if err := row.Scan(&p.ID, &p.Email, &p.Name, &avatar, &p.IsActive, &p.CreatedAt, &p.LastLogin); err != nil {
		return domainauth.Profile{}, err
	}
	if avatar != nil {
		p.Avatar = *avatar
	}
	return p, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// GetProfile retrieves a profile by identity id.
func (r *ProfileRepo) GetProfile(ctx context.Context, id string) (domainauth.Profile, error) {
	if strings.TrimSpace(id) == "" {
		return domainauth.Profile{}, ErrIDRequired
	}

	var profile domainauth.Profile
	err := pgxutil.Conn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
		if err != nil {
			return err
		}
		profile, err = pgx.CollectOneRow(rows, scanProfile)
		return err
	})
	if err != nil {
		mapped := apperrors.MapDBError(err)
		if apperrors.IsNotFound(mapped) {
			return domainauth.Profile{}, apperrors.NotFoundf("profile %s not found", id)
		}
		return domainauth.Profile{}, mapped
	}
	return profile, nil
}

// CreateProfile inserts p unless a row with the same id exists and returns the
// stored row. Both statements run in one transaction so a concurrent insert is
// observed by the select.
func (r *ProfileRepo) CreateProfile(ctx context.Context, p domainauth.Profile) (domainauth.Profile, error) {
	if strings.TrimSpace(p.ID) == "" {
		return domainauth.Profile{}, ErrIDRequired
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if strings.TrimSpace(p.Name) == "" {
		p.Name = "User"
	}

	var stored domainauth.Profile
	err := pgxutil.Tx(ctx, r.DB, pgxutil.ReadCommitted, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO profiles (id, email, name, avatar, is_active, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING`,
			p.ID, p.Email, p.Name, nullableString(p.Avatar), p.IsActive, p.CreatedAt,
		); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, p.ID)
		if err != nil {
			return err
		}
		stored, err = pgx.CollectOneRow(rows, scanProfile)
		return err
	})
	if err != nil {
		return domainauth.Profile{}, apperrors.MapDBError(err)
	}
	return stored, nil
}

// TouchLastLogin records a successful sign-in for the profile.
func (r *ProfileRepo) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	if strings.TrimSpace(id) == "" {
		return ErrIDRequired
	}
	var n int64
	err := pgxutil.Conn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx, `UPDATE profiles SET last_login = $2 WHERE id = $1`, id, at.UTC())
		n = tag.RowsAffected()
		return err
	})
	if err != nil {
		return apperrors.MapDBError(err)
	}
	if n == 0 {
		return apperrors.NotFoundf("profile %s not found", id)
	}
	return nil
}
