package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Haku929/Amiro-sub000/internal/big5"
	"github.com/Haku929/Amiro-sub000/internal/domain"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresWithPool(mock), mock
}

var slotRowColumns = []string{
	"user_id", "slot_index", "self_vector", "resonance_vector",
	"persona_icon", "persona_summary", "created_at", "updated_at",
}

func TestPostgresInitSchemaInstallsRankingFunction(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("CREATE OR REPLACE FUNCTION match_candidates").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.InitSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetProfileMissing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT user_id, display_name, avatar_url").
		WithArgs("anon_x").
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "display_name", "avatar_url", "created_at", "updated_at"}))

	got, err := s.GetProfile(context.Background(), "anon_x")
	require.NoError(t, err)
	assert.Nil(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListSituations(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, text FROM situations ORDER BY id ASC").
		WillReturnRows(pgxmock.NewRows([]string{"id", "text"}).
			AddRow(int64(1), "雨の日の帰り道").
			AddRow(int64(2), "深夜のコンビニ"))

	got, err := s.ListSituations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Situation{{ID: 1, Text: "雨の日の帰り道"}, {ID: 2, Text: "深夜のコンビニ"}}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertSituationsCountsNewRows(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO situations").WithArgs("a").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO situations").WithArgs("b").WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()

	n, err := s.InsertSituations(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListSlotsDecodesArrays(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Unix(1_700_000_000, 0).UTC()

	mock.ExpectQuery("FROM persona_slots WHERE user_id").
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows(slotRowColumns).
			AddRow("u1", 1, []float64{0.1, 0.2, 0.3, 0.4, 0.5}, []float64{0.9, 0.8, 0.7, 0.6, 0.5}, "🌙", "summary", at, at))

	slots, err := s.ListSlots(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, big5.Vector{O: 0.1, C: 0.2, E: 0.3, A: 0.4, N: 0.5}, slots[0].SelfVector)
	assert.Equal(t, big5.Vector{O: 0.9, C: 0.8, E: 0.7, A: 0.6, N: 0.5}, slots[0].ResonanceVector)
	assert.True(t, slots[0].CreatedAt.Equal(at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListSlotsRejectsShortArrays(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Unix(1_700_000_000, 0).UTC()

	mock.ExpectQuery("FROM persona_slots WHERE user_id").
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows(slotRowColumns).
			AddRow("u1", 1, []float64{0.1, 0.2}, []float64{0.9, 0.8, 0.7, 0.6, 0.5}, "🌙", "", at, at))

	_, err := s.ListSlots(context.Background(), "u1")
	assert.Error(t, err)
}

func TestPostgresInsertSlotMapsUniqueViolation(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Unix(1_700_000_000, 0)
	slot := &domain.PersonaSlot{
		UserID:    "u1",
		SlotIndex: 1,
		SlotContent: domain.SlotContent{
			SelfVector:      big5.Vector{O: 0.1, C: 0.2, E: 0.3, A: 0.4, N: 0.5},
			ResonanceVector: big5.Vector{O: 0.5, C: 0.4, E: 0.3, A: 0.2, N: 0.1},
			PersonaIcon:     "🌙",
		},
		CreatedAt: at,
		UpdatedAt: at,
	}

	mock.ExpectExec("INSERT INTO persona_slots").
		WithArgs("u1", 1, []float64{0.1, 0.2, 0.3, 0.4, 0.5}, []float64{0.5, 0.4, 0.3, 0.2, 0.1}, "🌙", "", at, at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO persona_slots").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	require.NoError(t, s.InsertSlot(context.Background(), slot))
	err := s.InsertSlot(context.Background(), slot)
	assert.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateSlotContentNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE persona_slots SET").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "🔥", "", pgxmock.AnyArg(), "u1", 3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateSlotContent(context.Background(), "u1", 3, domain.SlotContent{PersonaIcon: "🔥"}, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRankCandidatesCallsFunction(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("FROM match_candidates").
		WithArgs("me", 20, 0).
		WillReturnRows(pgxmock.NewRows([]string{"other_user_id", "score", "self_slot_index", "other_slot_index"}).
			AddRow("u2", 0.91, 1, 2).
			AddRow("u3", 0.42, 3, 1))

	rows, err := s.RankCandidates(context.Background(), "me", 20, 0)
	require.NoError(t, err)
	assert.Equal(t, []domain.RankedRow{
		{OtherUserID: "u2", Score: 0.91, SelfSlotIndex: 1, OtherSlotIndex: 2},
		{OtherUserID: "u3", Score: 0.42, SelfSlotIndex: 3, OtherSlotIndex: 1},
	}, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRankCandidatesPropagatesErrors(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("FROM match_candidates").
		WithArgs("me", 20, 0).
		WillReturnError(errors.New("function match_candidates does not exist"))

	_, err := s.RankCandidates(context.Background(), "me", 20, 0)
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
