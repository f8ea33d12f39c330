package errors

import (
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// detailKey pulls the column out of a unique violation detail such as
// `Key (user_id)=(u1) already exists.`.
var detailKey = regexp.MustCompile(`Key \(([^)]+)\)=`)

// constraintMessages holds the field-level and generic wording for validation failures.
var constraintMessages = map[string][2]string{
	pgerrcode.CheckViolation:   {"This field has an invalid value.", "Invalid data. Please check your input."},
	pgerrcode.NotNullViolation: {"This field is required.", "Required field is missing. Please check your input."},
}

// MapDBError translates errors from the profile and role repositories into
// AppErrors: context errors become Timeout or Canceled, pgx.ErrNoRows becomes
// NotFound, and Postgres errors are mapped by SQLSTATE. Anything else is
// returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := FromContext(err); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &AppError{Code: ErrCodeNotFound, Message: "Resource not found", Cause: err}
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	table := tableLabel(pgErr.TableName)
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return &AppError{
			Code:    ErrCodeConflict,
			Message: "This " + table + " already exists.",
			Field:   conflictField(pgErr),
			Cause:   pgErr,
		}
	case pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
		msgs := constraintMessages[pgErr.Code]
		if pgErr.ColumnName == "" {
			return &AppError{Code: ErrCodeValidation, Message: msgs[1], Cause: pgErr}
		}
		return &AppError{Code: ErrCodeValidation, Message: msgs[0], Field: pgErr.ColumnName, Cause: pgErr}
	case pgerrcode.UndefinedTable:
		return &AppError{
			Code:    ErrCodeInternal,
			Message: "The " + table + " table is missing. Run migrations first.",
			Cause:   pgErr,
		}
	default:
		return &AppError{Code: ErrCodeInternal, Message: "A database error occurred. Please try again.", Cause: pgErr}
	}
}

func conflictField(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	if m := detailKey.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
		return m[1]
	}
	return ""
}

func tableLabel(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "profiles":
		return "profile"
	case "user_roles":
		return "role assignment"
	case "":
		return "record"
	}
	return strings.ReplaceAll(name, "_", " ")
}
