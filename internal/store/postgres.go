package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Haku929/Amiro-sub000/internal/big5"
	"github.com/Haku929/Amiro-sub000/internal/domain"
	"github.com/Haku929/Amiro-sub000/internal/shared"
)

// Pool abstracts the pgx pool methods PostgresStore needs. *pgxpool.Pool
// satisfies it, and so does a pgxmock pool in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Repository on PostgreSQL. Ranking is delegated
// to the match_candidates SQL function installed by InitSchema.
type PostgresStore struct {
	pool Pool
}

// NewPostgres connects to databaseURL and initializes the schema.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL is required for the postgres driver")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := NewPostgresWithPool(pool)
	if err := s.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

// NewPostgresWithPool wraps an existing pool without touching the schema.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS profiles (
	user_id TEXT PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	avatar_url TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS situations (
	id BIGSERIAL PRIMARY KEY,
	text TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS persona_slots (
	user_id TEXT NOT NULL,
	slot_index INTEGER NOT NULL CHECK (slot_index BETWEEN 1 AND 3),
	self_vector DOUBLE PRECISION[] NOT NULL CHECK (cardinality(self_vector) = 5),
	resonance_vector DOUBLE PRECISION[] NOT NULL CHECK (cardinality(resonance_vector) = 5),
	persona_icon TEXT NOT NULL,
	persona_summary TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, slot_index)
);

CREATE OR REPLACE FUNCTION match_candidates(p_user_id TEXT, p_limit INTEGER, p_offset INTEGER)
RETURNS TABLE (
	other_user_id TEXT,
	score DOUBLE PRECISION,
	self_slot_index INTEGER,
	other_slot_index INTEGER
)
LANGUAGE sql STABLE AS $$
	WITH pairs AS (
		SELECT o.user_id AS other_user_id,
		       m.slot_index AS self_slot_index,
		       o.slot_index AS other_slot_index,
		       sqrt((
		           SELECT sum((m.resonance_vector[i] - o.self_vector[i]) ^ 2)
		           FROM generate_series(1, 5) AS i
		       )) AS dist
		FROM persona_slots m
		JOIN persona_slots o ON o.user_id <> m.user_id
		WHERE m.user_id = p_user_id
	),
	best AS (
		SELECT DISTINCT ON (other_user_id) other_user_id, self_slot_index, other_slot_index, dist
		FROM pairs
		ORDER BY other_user_id, dist, self_slot_index, other_slot_index
	)
	SELECT other_user_id, greatest(0, 1 - dist / sqrt(5)), self_slot_index, other_slot_index
	FROM best
	ORDER BY dist ASC, other_user_id ASC
	LIMIT p_limit OFFSET p_offset
$$;
`

// InitSchema creates tables and the ranking function if missing.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// GetProfile retrieves a profile by user ID.
func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	query := `SELECT user_id, display_name, avatar_url, created_at, updated_at FROM profiles WHERE user_id = $1`

	var p domain.Profile
	err := s.pool.QueryRow(ctx, query, userID).Scan(
		&p.UserID, &p.DisplayName, &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile row: %w", err)
	}
	p.CreatedAt, p.UpdatedAt = p.CreatedAt.UTC(), p.UpdatedAt.UTC()
	return &p, nil
}

// UpsertProfile creates or updates a profile record.
func (s *PostgresStore) UpsertProfile(ctx context.Context, p *domain.Profile) error {
	query := `
	INSERT INTO profiles (user_id, display_name, avatar_url, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (user_id) DO UPDATE SET
		display_name = excluded.display_name,
		avatar_url = excluded.avatar_url,
		updated_at = excluded.updated_at`

	if _, err := s.pool.Exec(ctx, query, p.UserID, p.DisplayName, p.AvatarURL, p.CreatedAt, p.UpdatedAt); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// ListSituations returns the pool ordered by ID.
func (s *PostgresStore) ListSituations(ctx context.Context) ([]domain.Situation, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, text FROM situations ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query situations: %w", err)
	}
	defer rows.Close()

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
func (s *PostgresStore) InsertSituations(ctx context.Context, texts []string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin situation insert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var inserted int64
	for _, text := range texts {
		tag, err := tx.Exec(ctx, `INSERT INTO situations (text) VALUES ($1) ON CONFLICT (text) DO NOTHING`, text)
		if err != nil {
			return 0, fmt.Errorf("insert situation: %w", err)
		}
		inserted += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit situation insert: %w", err)
	}
	return inserted, nil
}

const pgSlotColumns = `user_id, slot_index, self_vector, resonance_vector, persona_icon, persona_summary, created_at, updated_at`

func scanPostgresSlot(row pgx.Row) (*domain.PersonaSlot, error) {
	var slot domain.PersonaSlot
	var selfSeq, resonanceSeq []float64

	if err := row.Scan(
		&slot.UserID, &slot.SlotIndex, &selfSeq, &resonanceSeq,
		&slot.PersonaIcon, &slot.PersonaSummary, &slot.CreatedAt, &slot.UpdatedAt,
	); err != nil {
		return nil, err
	}
	slot.CreatedAt, slot.UpdatedAt = slot.CreatedAt.UTC(), slot.UpdatedAt.UTC()

	var err error
	if slot.SelfVector, err = big5.FromSeq(selfSeq); err != nil {
		return nil, fmt.Errorf("decode self_vector: %w", err)
	}
	if slot.ResonanceVector, err = big5.FromSeq(resonanceSeq); err != nil {
		return nil, fmt.Errorf("decode resonance_vector: %w", err)
	}
	return &slot, nil
}

// ListSlots returns the occupied slots of a user.
func (s *PostgresStore) ListSlots(ctx context.Context, userID string) ([]*domain.PersonaSlot, error) {
	query := `SELECT ` + pgSlotColumns + ` FROM persona_slots WHERE user_id = $1 ORDER BY slot_index ASC`
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query slots: %w", err)
	}
	defer rows.Close()

	var slots []*domain.PersonaSlot
	for rows.Next() {
		slot, err := scanPostgresSlot(rows)
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
func (s *PostgresStore) GetSlot(ctx context.Context, userID string, index int) (*domain.PersonaSlot, error) {
	query := `SELECT ` + pgSlotColumns + ` FROM persona_slots WHERE user_id = $1 AND slot_index = $2`
	slot, err := scanPostgresSlot(s.pool.QueryRow(ctx, query, userID, index))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan slot row: %w", err)
	}
	return slot, nil
}

// InsertSlot stores a new slot.
func (s *PostgresStore) InsertSlot(ctx context.Context, slot *domain.PersonaSlot) error {
	self := slot.SelfVector.Seq()
	resonance := slot.ResonanceVector.Seq()

	query := `INSERT INTO persona_slots (` + pgSlotColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.pool.Exec(ctx, query,
		slot.UserID, slot.SlotIndex, self[:], resonance[:],
		slot.PersonaIcon, slot.PersonaSummary, slot.CreatedAt, slot.UpdatedAt,
	)
	if shared.IsUniqueViolation(err) {
		return fmt.Errorf("insert slot %d: %w", slot.SlotIndex, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert slot: %w", err)
	}
	return nil
}

// UpdateSlotContent replaces the content of an existing slot.
func (s *PostgresStore) UpdateSlotContent(ctx context.Context, userID string, index int, content domain.SlotContent, updatedAt time.Time) error {
	self := content.SelfVector.Seq()
	resonance := content.ResonanceVector.Seq()

	query := `
	UPDATE persona_slots SET
		self_vector = $1, resonance_vector = $2,
		persona_icon = $3, persona_summary = $4,
		updated_at = $5
	WHERE user_id = $6 AND slot_index = $7`

	tag, err := s.pool.Exec(ctx, query,
		self[:], resonance[:], content.PersonaIcon, content.PersonaSummary,
		updatedAt, userID, index,
	)
	if err != nil {
		return fmt.Errorf("update slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update slot %d: %w", index, ErrNotFound)
	}
	return nil
}

// RankCandidates calls the match_candidates function.
func (s *PostgresStore) RankCandidates(ctx context.Context, userID string, limit, offset int) ([]domain.RankedRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT other_user_id, score, self_slot_index, other_slot_index FROM match_candidates($1, $2, $3)`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("call match_candidates: %w", err)
	}
	defer rows.Close()

	out := make([]domain.RankedRow, 0, limit)
	for rows.Next() {
		var row domain.RankedRow
		if err := rows.Scan(&row.OtherUserID, &row.Score, &row.SelfSlotIndex, &row.OtherSlotIndex); err != nil {
			return nil, fmt.Errorf("scan ranking row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ranking: %w", err)
	}
	return out, nil
}
