package user

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"messenger/internal/apperr"
	"messenger/pkg/database"
	"messenger/pkg/models"
)

// HashCost is the bcrypt cost for new passwords. Tests lower it.
var HashCost = bcrypt.DefaultCost

const searchLimit = 10

var validate = validator.New()

type Registration struct {
	Username string `validate:"required,max=64"`
	Password string `validate:"required,max=72"`
	Name     string `validate:"required,max=128"`
}

func CreateUser(ctx context.Context, db *sql.DB, r Registration) (int64, error) {
	r.Username = strings.TrimSpace(r.Username)
	r.Name = strings.TrimSpace(r.Name)
	if err := validate.Struct(r); err != nil {
		return 0, apperr.Validation("username, password and name are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(r.Password), HashCost)
	if err != nil {
		return 0, apperr.Storage("hash password", err)
	}

	res, err := db.ExecContext(ctx,
		`INSERT INTO users(username, password, name, avatar, status) VALUES(?,?,?,'','offline')`,
		r.Username, string(hash), r.Name)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return 0, apperr.ErrDuplicateUsername
		}
		return 0, database.Translate("insert user", err)
	}
	return res.LastInsertId()
}

// VerifyLogin checks the credentials and stamps last_online on success.
// The username is trimmed the same way CreateUser trims it. Unknown usernames
// and bad passwords produce the same error.
func VerifyLogin(ctx context.Context, db *sql.DB, username, password string) (models.User, error) {
	username = strings.TrimSpace(username)
	u, err := scanUser(db.QueryRowContext(ctx, selectUser+` WHERE username = ?`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return models.User{}, database.Translate("select user", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		return models.User{}, apperr.ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if _, err := db.ExecContext(ctx, `UPDATE users SET last_online = ? WHERE id = ?`, now.UnixMilli(), u.ID); err != nil {
		return models.User{}, database.Translate("touch last_online", err)
	}
	u.LastOnline = &now
	return u, nil
}

func GetByID(ctx context.Context, db *sql.DB, id int64) (models.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx, selectUser+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, apperr.ErrUserNotFound
	}
	if err != nil {
		return models.User{}, database.Translate("select user", err)
	}
	return u, nil
}

// UpdateProfile changes the non-nil fields. Blank values count as absent.
func UpdateProfile(ctx context.Context, db *sql.DB, id int64, name, avatar *string) error {
	var sets []string
	var args []any
	if name != nil && strings.TrimSpace(*name) != "" {
		sets = append(sets, "name = ?")
		args = append(args, strings.TrimSpace(*name))
	}
	if avatar != nil && strings.TrimSpace(*avatar) != "" {
		sets = append(sets, "avatar = ?")
		args = append(args, strings.TrimSpace(*avatar))
	}
	if len(sets) == 0 {
		return apperr.Validation("name or avatar required")
	}
	args = append(args, id)

	res, err := db.ExecContext(ctx, `UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return database.Translate("update profile", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrUserNotFound
	}
	return nil
}

// Search matches name or username, never returns the caller and caps the
// result at 10 rows. An empty query returns an empty slice.
func Search(ctx context.Context, db *sql.DB, q string, excludeID int64) ([]models.Profile, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []models.Profile{}, nil
	}
	like := "%" + q + "%"
	rows, err := db.QueryContext(ctx,
		`SELECT id, name, avatar FROM users WHERE (name LIKE ? OR username LIKE ?) AND id != ? ORDER BY id LIMIT ?`,
		like, like, excludeID, searchLimit)
	if err != nil {
		return nil, database.Translate("search users", err)
	}
	defer rows.Close()

	res := []models.Profile{}
	for rows.Next() {
		var p models.Profile
		if err := rows.Scan(&p.ID, &p.Name, &p.Avatar); err != nil {
			return nil, database.Translate("scan user", err)
		}
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Translate("search users", err)
	}
	return res, nil
}

const selectUser = `SELECT id, username, password, name, avatar, status, last_online FROM users`

func scanUser(row *sql.Row) (models.User, error) {
	var u models.User
	var lastOnline sql.NullInt64
	if err := row.Scan(&u.ID, &u.Username, &u.Password, &u.Name, &u.Avatar, &u.Status, &lastOnline); err != nil {
		return models.User{}, err
	}
	if lastOnline.Valid {
		t := time.UnixMilli(lastOnline.Int64).UTC()
		u.LastOnline = &t
	}
	return u, nil
}
