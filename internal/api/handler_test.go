//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Haku929/Amiro-sub000/internal/big5"
	"github.com/Haku929/Amiro-sub000/internal/domain"
	"github.com/Haku929/Amiro-sub000/internal/persona"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const vectorJSON = `{"o":0.8,"c":0.5,"e":0.6,"a":0.6,"n":0.3}`

func slotBody(icon string) string {
	return fmt.Sprintf(`{"selfVector":%s,"resonanceVector":%s,"personaIcon":%q,"personaSummary":"話を聞くのが好き"}`, vectorJSON, vectorJSON, icon)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	s.repo.pingErr = errors.New("db gone")
	rec = s.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decode(t, rec)["status"])
}

func TestTodaySituations(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/situations/today", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "insufficient_pool", decode(t, rec)["error"])

	_, err := s.repo.InsertSituations(t.Context(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)

	rec = s.do(http.MethodGet, "/api/situations/today?date=2026-02-14", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "2026-02-14", body["date"])
	assert.Len(t, body["situations"], 3)

	again := s.do(http.MethodGet, "/api/situations/today?date=2026-02-14", "", "")
	assert.JSONEq(t, rec.Body.String(), again.Body.String())

	rec = s.do(http.MethodGet, "/api/situations/today?date=tomorrow", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026-05-01", decode(t, rec)["date"])

	s.repo.listErr = errors.New("disk")
	rec = s.do(http.MethodGet, "/api/situations/today", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "store_unavailable", decode(t, rec)["error"])
}

func TestChat(t *testing.T) {
	s := newTestServer(t)
	s.completer.text["reply"] = "  わかる、それは疲れるよね。私も似たことがあったよ。最近はどう過ごしてる？  "

	body := `{"situation":"雨の日の帰り道","targetVector":` + vectorJSON + `,"messages":[{"role":"user","content":"今日は疲れた"}]}`
	rec := s.do(http.MethodPost, "/api/chat", "", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "わかる、それは疲れるよね。私も似たことがあったよ。最近はどう過ごしてる？", decode(t, rec)["content"])
	assert.Contains(t, s.completer.lastReq.System, "雨の日の帰り道")
	require.Len(t, s.completer.lastReq.Messages, 1)

	// An empty history is allowed.
	rec = s.do(http.MethodPost, "/api/chat", "", `{"situation":"x","targetVector":`+vectorJSON+`}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChatValidation(t *testing.T) {
	s := newTestServer(t)

	cases := []struct {
		name string
		body string
		code string
	}{
		{"not an object", `[1,2]`, "invalid_body"},
		{"missing situation", `{"targetVector":` + vectorJSON + `}`, "missing_situation"},
		{"blank situation", `{"situation":"  ","targetVector":` + vectorJSON + `}`, "missing_situation"},
		{"missing vector", `{"situation":"x"}`, "invalid_target_vector"},
		{"out of range", `{"situation":"x","targetVector":{"o":1.2,"c":0.5,"e":0.6,"a":0.6,"n":0.3}}`, "invalid_target_vector"},
		{"extra axis", `{"situation":"x","targetVector":{"o":1,"c":0.5,"e":0.6,"a":0.6,"n":0.3,"x":1}}`, "invalid_target_vector"},
		{"bad role", `{"situation":"x","targetVector":` + vectorJSON + `,"messages":[{"role":"system","content":"hi"}]}`, "invalid_messages"},
		{"messages not array", `{"situation":"x","targetVector":` + vectorJSON + `,"messages":"hi"}`, "invalid_messages"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/api/chat", "", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.code, decode(t, rec)["error"])
		})
	}
	assert.Zero(t, s.completer.calls["reply"])
}

func TestChatGenerationFailure(t *testing.T) {
	s := newTestServer(t)
	body := `{"situation":"x","targetVector":` + vectorJSON + `}`

	s.completer.text["reply"] = "   "
	rec := s.do(http.MethodPost, "/api/chat", "", body)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	got := decode(t, rec)
	assert.Equal(t, "generation_failed", got["error"])
	assert.Equal(t, persona.FallbackReply, got["fallback"])

	s.completer.err["reply"] = errUpstream
	rec = s.do(http.MethodPost, "/api/chat", "", body)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, 2, s.completer.calls["reply"])
}

func TestAnalyze(t *testing.T) {
	s := newTestServer(t)
	s.completer.text["extract"] = `{"selfVector":{"o":0.7,"c":0.4,"e":0.2,"a":0.9,"n":0.6},"personaSummary":"聞き上手な慎重派"}`

	rec := s.do(http.MethodPost, "/api/analyze", "", `{"messages":[{"role":"user","content":"本を読むのが好き"},{"role":"model","content":"どんな本？"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got persona.Extraction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, big5.Vector{O: 0.7, C: 0.4, E: 0.2, A: 0.9, N: 0.6}, got.SelfVector)
	assert.Equal(t, "聞き上手な慎重派", got.PersonaSummary)
	assert.True(t, strings.Contains(s.completer.lastReq.Messages[0].Content, "本を読むのが好き"))
}

func TestAnalyzeFailures(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/analyze", "", `{"messages":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", decode(t, rec)["error"])

	rec = s.do(http.MethodPost, "/api/analyze", "", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, s.completer.calls["extract"])

	s.completer.text["extract"] = `{"selfVector":{"o":1.3,"c":0.4,"e":0.2,"a":0.9,"n":0.6},"personaSummary":"x"}`
	rec = s.do(http.MethodPost, "/api/analyze", "", `{"messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "extraction_failed", decode(t, rec)["error"])
	assert.Equal(t, persona.DefaultMaxAttempts, s.completer.calls["extract"])
}

func TestSlotsLifecycle(t *testing.T) {
	s := newTestServer(t)
	me := anonID(1)

	rec := s.do(http.MethodGet, "/api/slots", me, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"slots":[]}`, rec.Body.String())

	for want := 1; want <= 3; want++ {
		rec = s.do(http.MethodPost, "/api/slots", me, slotBody(fmt.Sprintf("%d", want)))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.EqualValues(t, want, decode(t, rec)["slotIndex"])
	}

	rec = s.do(http.MethodPost, "/api/slots", me, slotBody("4"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "no_slot_available", decode(t, rec)["error"])

	before := s.repo.slots[me][2].CreatedAt
	rec = s.do(http.MethodPut, "/api/slots/2", me, slotBody("🔥"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "🔥", decode(t, rec)["personaIcon"])
	assert.Equal(t, before, s.repo.slots[me][2].CreatedAt)

	rec = s.do(http.MethodGet, "/api/slots/2", me, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "🔥", decode(t, rec)["personaIcon"])

	rec = s.do(http.MethodGet, "/api/slots", me, "")
	var list struct {
		Slots []domain.PersonaSlot `json:"slots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Slots, 3)
	assert.Equal(t, 1, list.Slots[0].SlotIndex)
}

func TestSlotErrors(t *testing.T) {
	s := newTestServer(t)
	me := anonID(2)

	rec := s.do(http.MethodPut, "/api/slots/4", me, slotBody("a"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_index", decode(t, rec)["error"])

	rec = s.do(http.MethodGet, "/api/slots/abc", me, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPut, "/api/slots/1", me, slotBody("a"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, s.repo.slots[me])

	rec = s.do(http.MethodGet, "/api/slots/1", me, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodPost, "/api/slots", me, `{"selfVector":`+vectorJSON+`,"resonanceVector":{"o":0.5},"personaIcon":"a"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "resonanceVector", decode(t, rec)["field"])

	rec = s.do(http.MethodPost, "/api/slots", me, `{"selfVector":`+vectorJSON+`,"resonanceVector":`+vectorJSON+`,"personaIcon":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_body", decode(t, rec)["error"])
}

func TestMatches(t *testing.T) {
	s := newTestServer(t)
	me := anonID(3)
	s.repo.profiles["anon_a"] = &domain.Profile{UserID: "anon_a", DisplayName: "あお"}
	s.repo.ranked = []domain.RankedRow{
		{OtherUserID: "anon_a", Score: 0.92, SelfSlotIndex: 1, OtherSlotIndex: 2},
		{OtherUserID: "anon_ghost", Score: 0.5, SelfSlotIndex: 1, OtherSlotIndex: 1},
	}

	rec := s.do(http.MethodGet, "/api/matches?limit=1000&offset=-1", me, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got struct {
		Matches []domain.MatchCandidate `json:"matches"`
		Limit   int                     `json:"limit"`
		Offset  int                     `json:"offset"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 100, got.Limit)
	assert.Equal(t, 0, got.Offset)
	require.Len(t, got.Matches, 2)
	assert.Equal(t, "あお", got.Matches[0].DisplayName)
	assert.InDelta(t, 92, got.Matches[0].ResonanceScore, 1e-9)
	assert.Equal(t, "anon_ghost", got.Matches[1].OtherUserID)
	assert.Empty(t, got.Matches[1].DisplayName)

	rec = s.do(http.MethodGet, "/api/matches?offset=5", me, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"matches":[]`)

	s.repo.rankErr = errors.New("rpc failed")
	rec = s.do(http.MethodGet, "/api/matches", me, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "ranking_unavailable", decode(t, rec)["error"])
}

func TestMatchDetail(t *testing.T) {
	s := newTestServer(t)
	me, other := anonID(4), anonID(5)

	rec := s.do(http.MethodGet, "/api/matches/"+other, me, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/slots", me, slotBody("a")).Code)
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/slots", other, slotBody("b")).Code)

	rec = s.do(http.MethodGet, "/api/matches/"+other, me, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 100, decode(t, rec)["resonanceScore"])

	rec = s.do(http.MethodGet, "/api/matches/"+me, me, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMe(t *testing.T) {
	s := newTestServer(t)
	me := anonID(6)

	rec := s.do(http.MethodGet, "/api/me", me, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, me, decode(t, rec)["userId"])

	rec = s.do(http.MethodPatch, "/api/me", me, `{"displayName":"  みお  ","avatarUrl":"https://cdn.example/m.png"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "みお", body["displayName"])
	assert.Equal(t, "https://cdn.example/m.png", body["avatarUrl"])

	rec = s.do(http.MethodPatch, "/api/me", me, `{"avatarUrl":"javascript:alert(1)"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(http.MethodPatch, "/api/me", me, `{"displayName":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "みお", s.repo.profiles[me].DisplayName)
}
