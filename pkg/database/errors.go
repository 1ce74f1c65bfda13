package database

import (
	"errors"

	"github.com/mattn/go-sqlite3"

	"messenger/internal/apperr"
)

// Translate maps SQLite constraint failures onto the app error taxonomy.
// op names the failing operation and ends up in logs only. A nil err stays nil.
func Translate(op string, err error) error {
	if err == nil {
		return nil
	}

	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		switch se.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return apperr.Conflict("already exists", err)
		case sqlite3.ErrConstraintForeignKey:
			return apperr.NotFound("referenced entity not found", err)
		case sqlite3.ErrConstraintCheck, sqlite3.ErrConstraintNotNull:
			return &apperr.Error{Kind: apperr.KindValidation, Msg: "invalid value", Err: err}
		}
	}
	return apperr.Storage(op, err)
}

// IsUniqueViolation reports whether err is a UNIQUE/PRIMARY KEY failure.
func IsUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
