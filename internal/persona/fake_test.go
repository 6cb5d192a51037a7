package persona

import (
	"context"
	"sync"

	"github.com/Haku929/Amiro-sub000/internal/llm"
)

type scriptedStep struct {
	text string
	err  error
}

// scriptedCompleter replays steps in order and repeats the last one.
type scriptedCompleter struct {
	mu       sync.Mutex
	steps    []scriptedStep
	calls    int
	requests []llm.Request
}

func (s *scriptedCompleter) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	step := s.steps[len(s.steps)-1]
	if s.calls < len(s.steps) {
		step = s.steps[s.calls]
	}
	s.calls++
	if step.err != nil {
		return nil, step.err
	}
	return &llm.Response{Text: step.text}, nil
}

func (s *scriptedCompleter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
