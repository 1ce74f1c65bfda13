package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"

	"messenger/pkg/models"
)

func LoadUsersFromJSON(jsonPath string) ([]models.SeedUser, error) {
	b, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("read users json: %w", err)
	}

	var list []models.SeedUser
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, fmt.Errorf("unmarshal users json: %w", err)
	}

	return list, nil
}

// SeedUsers inserts fixture accounts, skipping usernames that already exist.
// It returns how many rows were actually inserted.
func SeedUsers(db *sql.DB, users []models.SeedUser) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO users (username, password, name, avatar, status)
		VALUES (?, ?, ?, ?, 'offline');
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert user: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, u := range users {
		if u.Username == "" || u.Password == "" || u.Name == "" {
			return 0, fmt.Errorf("seed user %q: username/password/name required", u.Username)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return 0, fmt.Errorf("hash password for %s: %w", u.Username, err)
		}

		res, err := stmt.Exec(u.Username, string(hash), u.Name, u.Avatar)
		if err != nil {
			return 0, fmt.Errorf("insert user %s: %w", u.Username, err)
		}

		aff, _ := res.RowsAffected()
		if aff > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return inserted, nil
}
