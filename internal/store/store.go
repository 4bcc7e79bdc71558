package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a speaker id has no saved row.
var ErrNotFound = errors.New("store: speaker not found")

// SavedSpeaker is one remembered speaker.
type SavedSpeaker struct {
	ID        string    `json:"id"`
	Address   string    `json:"address"`
	Title     string    `json:"title"`
	AddedAt   time.Time `json:"added_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository defines saved speaker persistence.
type Repository interface {
	// List returns all saved speakers ordered by id.
	List(ctx context.Context) ([]SavedSpeaker, error)

	// Get returns one saved speaker or ErrNotFound.
	Get(ctx context.Context, id string) (SavedSpeaker, error)

	// Save inserts the speaker or updates its address and title.
	Save(ctx context.Context, s SavedSpeaker) error

	// Delete removes the speaker. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository on the saved_speakers table.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// List returns all saved speakers ordered by id.
func (r *SQLiteRepository) List(ctx context.Context) ([]SavedSpeaker, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, address, title, added_at, updated_at FROM saved_speakers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying saved speakers: %w", err)
	}
	defer rows.Close()

	var out []SavedSpeaker
	for rows.Next() {
		s, err := scanSpeaker(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating saved speakers: %w", err)
	}
	return out, nil
}

// Get returns one saved speaker.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (SavedSpeaker, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, address, title, added_at, updated_at FROM saved_speakers WHERE id = ?`, id)
	s, err := scanSpeaker(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SavedSpeaker{}, ErrNotFound
	}
	return s, err
}

// Save upserts s. AddedAt is kept from the first save.
func (r *SQLiteRepository) Save(ctx context.Context, s SavedSpeaker) error {
	if s.ID == "" || s.Address == "" {
		return fmt.Errorf("saving speaker: id and address are required")
	}
	now := r.now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO saved_speakers (id, address, title, added_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			address = excluded.address,
			title = excluded.title,
			updated_at = excluded.updated_at`,
		s.ID, s.Address, s.Title, now, now)
	if err != nil {
		return fmt.Errorf("saving speaker %s: %w", s.ID, err)
	}
	return nil
}

// Delete removes the speaker with id.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM saved_speakers WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting speaker %s: %w", id, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSpeaker(row scanner) (SavedSpeaker, error) {
	var s SavedSpeaker
	var added, updated string
	if err := row.Scan(&s.ID, &s.Address, &s.Title, &added, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SavedSpeaker{}, err
		}
		return SavedSpeaker{}, fmt.Errorf("scanning saved speaker: %w", err)
	}
	s.AddedAt, _ = time.Parse(time.RFC3339, added)     //nolint:errcheck // written by Save
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updated) //nolint:errcheck // written by Save
	return s, nil
}
