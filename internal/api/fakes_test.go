package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Haku929/Amiro-sub000/internal/domain"
	"github.com/Haku929/Amiro-sub000/internal/identity"
	"github.com/Haku929/Amiro-sub000/internal/llm"
	"github.com/Haku929/Amiro-sub000/internal/persona"
	"github.com/Haku929/Amiro-sub000/internal/resonance"
	"github.com/Haku929/Amiro-sub000/internal/situation"
	"github.com/Haku929/Amiro-sub000/internal/slot"
	"github.com/Haku929/Amiro-sub000/internal/store"
)

// fakeRepo is an in-memory store.Repository.
type fakeRepo struct {
	mu         sync.Mutex
	profiles   map[string]*domain.Profile
	situations []domain.Situation
	slots      map[string]map[int]domain.PersonaSlot
	ranked     []domain.RankedRow
	rankErr    error
	listErr    error
	pingErr    error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		profiles: map[string]*domain.Profile{},
		slots:    map[string]map[int]domain.PersonaSlot{},
	}
}

func (f *fakeRepo) GetProfile(_ context.Context, userID string) (*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeRepo) UpsertProfile(_ context.Context, p *domain.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.profiles[p.UserID] = &cp
	return nil
}

func (f *fakeRepo) ListSituations(context.Context) ([]domain.Situation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.Situation(nil), f.situations...), nil
}

func (f *fakeRepo) InsertSituations(_ context.Context, texts []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range texts {
		f.situations = append(f.situations, domain.Situation{ID: int64(len(f.situations) + 1), Text: t})
	}
	return int64(len(texts)), nil
}

func (f *fakeRepo) ListSlots(_ context.Context, userID string) ([]*domain.PersonaSlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.PersonaSlot
	for _, s := range f.slots[userID] {
		s := s
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotIndex < out[j].SlotIndex })
	return out, nil
}

func (f *fakeRepo) GetSlot(_ context.Context, userID string, index int) (*domain.PersonaSlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slots[userID][index]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f *fakeRepo) InsertSlot(_ context.Context, s *domain.PersonaSlot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.slots[s.UserID][s.SlotIndex]; ok {
		return store.ErrConflict
	}
	if f.slots[s.UserID] == nil {
		f.slots[s.UserID] = map[int]domain.PersonaSlot{}
	}
	f.slots[s.UserID][s.SlotIndex] = *s
	return nil
}

func (f *fakeRepo) UpdateSlotContent(_ context.Context, userID string, index int, c domain.SlotContent, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slots[userID][index]
	if !ok {
		return store.ErrNotFound
	}
	s.SlotContent = c
	s.UpdatedAt = at
	f.slots[userID][index] = s
	return nil
}

func (f *fakeRepo) RankCandidates(_ context.Context, _ string, limit, offset int) ([]domain.RankedRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rankErr != nil {
		return nil, f.rankErr
	}
	if offset >= len(f.ranked) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.ranked) {
		end = len(f.ranked)
	}
	return append([]domain.RankedRow(nil), f.ranked[offset:end]...), nil
}

func (f *fakeRepo) Ping(context.Context) error { return f.pingErr }
func (f *fakeRepo) Close() error { return nil }

var _ store.Repository = (*fakeRepo)(nil)

// fakeCompleter answers each operation with a fixed text or error.
type fakeCompleter struct {
	mu      sync.Mutex
	text    map[string]string
	err     map[string]error
	calls   map[string]int
	lastReq llm.Request
}

func newFakeCompleter() *fakeCompleter {
	return &fakeCompleter{text: map[string]string{}, err: map[string]error{}, calls: map[string]int{}}
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[req.Operation]++
	f.lastReq = req
	if err := f.err[req.Operation]; err != nil {
		return nil, err
	}
	return &llm.Response{Text: f.text[req.Operation]}, nil
}

type testServer struct {
	repo      *fakeRepo
	completer *fakeCompleter
	router    http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	repo := newFakeRepo()
	completer := newFakeCompleter()

	h := NewHandler(Services{
		Profiles:   repo,
		Health:     repo,
		Situations: situation.NewService(repo, situation.WithClock(func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) })),
		Replies:    persona.NewReplyGenerator(completer),
		Extractor:  persona.NewExtractor(completer),
		Slots:      slot.NewManager(repo),
		Matches:    resonance.NewRanker(repo, repo, nil),
	})

	r := chi.NewRouter()
	r.Use(identity.Middleware(repo, true))
	h.RegisterRoutes(r)

	return &testServer{repo: repo, completer: completer, router: r}
}

// do sends a request as user (an anon id; empty means a fresh device).
func (s *testServer) do(method, path, user, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.AddCookie(&http.Cookie{Name: identity.AnonCookieName, Value: user})
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func anonID(n int) string {
	return fmt.Sprintf("anon_%032x", n)
}

var errUpstream = fmt.Errorf("%w: 503 Service Unavailable", llm.ErrUpstream)
