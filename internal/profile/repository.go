package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("profile: not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const profileColumns = `id::text, username, email, avatar_url, is_online, last_seen, created_at, updated_at, password_hash`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	p := &Profile{}
	err := row.Scan(&p.ID, &p.Username, &p.Email, &p.AvatarURL, &p.IsOnline, &p.LastSeen, &p.CreatedAt, &p.UpdatedAt, &p.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *Repository) Create(ctx context.Context, username, email, passwordHash string) (*Profile, error) {
	var emailArg *string
	if email != "" {
		emailArg = &email
	}
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO profiles (username, email, password_hash) VALUES ($1, $2, $3) RETURNING `+profileColumns,
		username, emailArg, passwordHash)
	return scanProfile(row)
}

func (r *Repository) GetByID(ctx context.Context, id string) (*Profile, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1::uuid`, id)
	return scanProfile(row)
}

func (r *Repository) GetByUsername(ctx context.Context, username string) (*Profile, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE username = $1`, username)
	return scanProfile(row)
}

// Find resolves a single profile from free-form input: exact email match
// first, then exact username, then a partial match on either field. The
// partial fallback orders by id ascending so repeated lookups with the same
// term always land on the same profile.
func (r *Repository) Find(ctx context.Context, term string) (*Profile, error) {
	if term == "" {
		return nil, ErrNotFound
	}

	p, err := scanProfile(r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE email = $1`, term))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	p, err = r.GetByUsername(ctx, term)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	row := r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles
		 WHERE username ILIKE $1 OR email ILIKE $1
		 ORDER BY id LIMIT 1`, "%"+term+"%")
	return scanProfile(row)
}

// Search returns up to 10 profiles whose username contains the query.
func (r *Repository) Search(ctx context.Context, query string) ([]Profile, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE username ILIKE $1 ORDER BY username LIMIT 10`,
		"%"+query+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

// SetPresence flips is_online and stamps last_seen.
func (r *Repository) SetPresence(ctx context.Context, id string, online bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET is_online = $2, last_seen = now(), updated_at = now() WHERE id = $1::uuid`,
		id, online)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("profile: presence update: %w", ErrNotFound)
	}
	return nil
}
