package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Haku929/Amiro-sub000/internal/big5"
	"github.com/Haku929/Amiro-sub000/internal/domain"
	"github.com/Haku929/Amiro-sub000/internal/shared"
)

const (
	busyMaxRetries = 3
	busyBaseDelay  = 100 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS profiles (
		user_id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		avatar_url TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS situations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		text TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS persona_slots (
		user_id TEXT NOT NULL,
		slot_index INTEGER NOT NULL CHECK (slot_index BETWEEN 1 AND 3),
		self_vector TEXT NOT NULL,
		resonance_vector TEXT NOT NULL,
		persona_icon TEXT NOT NULL,
		persona_summary TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, slot_index)
	);
	CREATE INDEX IF NOT EXISTS idx_persona_slots_user ON persona_slots(user_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetProfile retrieves a profile by user ID.
func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	query := `
		SELECT user_id, display_name, avatar_url, created_at, updated_at
		FROM profiles WHERE user_id = ?`

	var p domain.Profile
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID, &p.DisplayName, &p.AvatarURL, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile row: %w", err)
	}

	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &p, nil
}

// UpsertProfile creates or updates a profile record.
func (s *SQLiteStore) UpsertProfile(ctx context.Context, p *domain.Profile) error {
	query := `
	INSERT INTO profiles (user_id, display_name, avatar_url, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		display_name = excluded.display_name,
		avatar_url = excluded.avatar_url,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		p.UserID, p.DisplayName, p.AvatarURL, p.CreatedAt.Unix(), p.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// ListSituations returns the pool ordered by ID.
func (s *SQLiteStore) ListSituations(ctx context.Context) ([]domain.Situation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, text FROM situations ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query situations: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close situation rows", "error", closeErr)
		}
	}()

	var out []domain.Situation
	for rows.Next() {
		var sit domain.Situation
		if err := rows.Scan(&sit.ID, &sit.Text); err != nil {
			return nil, fmt.Errorf("scan situation row: %w", err)
		}
		out = append(out, sit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate situations: %w", err)
	}
	return out, nil
}

// InsertSituations appends texts in one transaction, ignoring duplicates.
func (s *SQLiteStore) InsertSituations(ctx context.Context, texts []string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin situation insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var inserted int64
	for _, text := range texts {
		res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO situations (text) VALUES (?)`, text)
		if err != nil {
			return 0, fmt.Errorf("insert situation: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("get rows affected: %w", err)
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit situation insert: %w", err)
	}
	return inserted, nil
}

const slotColumns = `user_id, slot_index, self_vector, resonance_vector,
		       persona_icon, persona_summary, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSlot(row rowScanner) (*domain.PersonaSlot, error) {
	var slot domain.PersonaSlot
	var selfRaw, resonanceRaw string
	var createdAt, updatedAt int64

	if err := row.Scan(
		&slot.UserID, &slot.SlotIndex, &selfRaw, &resonanceRaw,
		&slot.PersonaIcon, &slot.PersonaSummary, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if slot.SelfVector, err = big5.DecodeStored([]byte(selfRaw)); err != nil {
		return nil, fmt.Errorf("decode self_vector: %w", err)
	}
	if slot.ResonanceVector, err = big5.DecodeStored([]byte(resonanceRaw)); err != nil {
		return nil, fmt.Errorf("decode resonance_vector: %w", err)
	}
	slot.CreatedAt = time.Unix(createdAt, 0).UTC()
	slot.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &slot, nil
}

// ListSlots returns the occupied slots of a user.
func (s *SQLiteStore) ListSlots(ctx context.Context, userID string) ([]*domain.PersonaSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM persona_slots WHERE user_id = ? ORDER BY slot_index ASC`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query slots: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close slot rows", "error", closeErr)
		}
	}()

	var slots []*domain.PersonaSlot
	for rows.Next() {
		slot, err := scanSQLiteSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot row: %w", err)
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slots: %w", err)
	}
	return slots, nil
}

// GetSlot retrieves one slot.
func (s *SQLiteStore) GetSlot(ctx context.Context, userID string, index int) (*domain.PersonaSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM persona_slots WHERE user_id = ? AND slot_index = ?`
	slot, err := scanSQLiteSlot(s.db.QueryRowContext(ctx, query, userID, index))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan slot row: %w", err)
	}
	return slot, nil
}

// InsertSlot stores a new slot.
func (s *SQLiteStore) InsertSlot(ctx context.Context, slot *domain.PersonaSlot) error {
	selfRaw, resonanceRaw, err := storedVectors(slot.SlotContent)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO persona_slots (` + slotColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	err = s.execWithBusyRetry(ctx, "InsertSlot", func() error {
		_, err := s.db.ExecContext(ctx, query,
			slot.UserID, slot.SlotIndex, selfRaw, resonanceRaw,
			slot.PersonaIcon, slot.PersonaSummary,
			slot.CreatedAt.Unix(), slot.UpdatedAt.Unix(),
		)
		return err
	})
	if shared.IsUniqueViolation(err) {
		return fmt.Errorf("insert slot %d: %w", slot.SlotIndex, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert slot: %w", err)
	}
	return nil
}

// UpdateSlotContent replaces the content of an existing slot.
func (s *SQLiteStore) UpdateSlotContent(ctx context.Context, userID string, index int, content domain.SlotContent, updatedAt time.Time) error {
	selfRaw, resonanceRaw, err := storedVectors(content)
	if err != nil {
		return err
	}

	query := `
	UPDATE persona_slots SET
		self_vector = ?, resonance_vector = ?,
		persona_icon = ?, persona_summary = ?,
		updated_at = ?
	WHERE user_id = ? AND slot_index = ?`

	var affected int64
	err = s.execWithBusyRetry(ctx, "UpdateSlotContent", func() error {
		res, err := s.db.ExecContext(ctx, query,
			selfRaw, resonanceRaw, content.PersonaIcon, content.PersonaSummary,
			updatedAt.Unix(), userID, index,
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("update slot: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update slot %d: %w", index, ErrNotFound)
	}
	return nil
}

// sqliteSquaredDistance sums the squared per-axis differences between the
// requester's resonance vector (m) and the candidate's self vector (o).
var sqliteSquaredDistance = func() string {
	terms := make([]string, len(big5.Axes))
	for i := range big5.Axes {
		d := fmt.Sprintf("(json_extract(m.resonance_vector, '$[%d]') - json_extract(o.self_vector, '$[%d]'))", i, i)
		terms[i] = d + " * " + d
	}
	return strings.Join(terms, " + ")
}()

// RankCandidates ranks other users by their best slot pair. SQLite has no
// stored procedures, so the ranking runs as a single windowed query and the
// [0,1] score is derived from the squared distance here.
func (s *SQLiteStore) RankCandidates(ctx context.Context, userID string, limit, offset int) ([]domain.RankedRow, error) {
	query := `
	WITH pairs AS (
		SELECT o.user_id AS other_user_id,
		       m.slot_index AS self_slot_index,
		       o.slot_index AS other_slot_index,
		       ` + sqliteSquaredDistance + ` AS d2
		FROM persona_slots m
		JOIN persona_slots o ON o.user_id <> m.user_id
		WHERE m.user_id = ?
	),
	best AS (
		SELECT *, ROW_NUMBER() OVER (
			PARTITION BY other_user_id
			ORDER BY d2 ASC, self_slot_index ASC, other_slot_index ASC
		) AS rn
		FROM pairs
	)
	SELECT other_user_id, d2, self_slot_index, other_slot_index
	FROM best WHERE rn = 1
	ORDER BY d2 ASC, other_user_id ASC
	LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query ranking: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close ranking rows", "error", closeErr)
		}
	}()

	out := make([]domain.RankedRow, 0, limit)
	for rows.Next() {
		var row domain.RankedRow
		var d2 float64
		if err := rows.Scan(&row.OtherUserID, &d2, &row.SelfSlotIndex, &row.OtherSlotIndex); err != nil {
			return nil, fmt.Errorf("scan ranking row: %w", err)
		}
		row.Score = fractionFromSquaredDistance(d2)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ranking: %w", err)
	}
	return out, nil
}

// fractionFromSquaredDistance maps a squared distance in [0,5] to a [0,1]
// similarity where 1 means identical vectors.
func fractionFromSquaredDistance(d2 float64) float64 {
	f := 1 - math.Sqrt(math.Max(d2, 0))/math.Sqrt(float64(len(big5.Axes)))
	return math.Max(f, 0)
}

// execWithBusyRetry retries fn with exponential backoff while SQLite
// reports lock contention.
func (s *SQLiteStore) execWithBusyRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for i := 0; i < busyMaxRetries; i++ {
		err = fn()
		if err == nil || !shared.IsSQLiteConflictError(err) || i == busyMaxRetries-1 {
			return err
		}

		delay := busyBaseDelay * time.Duration(1<<i)
		slog.Debug("SQLite busy, retrying", "operation", op, "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

func storedVectors(c domain.SlotContent) (string, string, error) {
	selfRaw, err := c.SelfVector.MarshalStored()
	if err != nil {
		return "", "", fmt.Errorf("encode self_vector: %w", err)
	}
	resonanceRaw, err := c.ResonanceVector.MarshalStored()
	if err != nil {
		return "", "", fmt.Errorf("encode resonance_vector: %w", err)
	}
	return string(selfRaw), string(resonanceRaw), nil
}
