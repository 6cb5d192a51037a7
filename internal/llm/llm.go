// Package llm defines the completion service consumed by the persona
// pipeline and its OpenAI-compatible implementation.
package llm

import (
	"context"
	"errors"
	"time"

	"github.com/Haku929/Amiro-sub000/internal/domain"
	"github.com/Haku929/Amiro-sub000/internal/schema"
)

var (
	// ErrUpstream wraps every transport or API failure of the completion service.
	ErrUpstream = errors.New("completion service failed")
	// ErrMissingAPIKey is returned at construction when no credential is configured.
	ErrMissingAPIKey = errors.New("completion service api key is not configured")
)

// ResponseSchema constrains the completion to JSON matching Schema.
type ResponseSchema struct {
	Name        string
	Description string
	Schema      schema.Schema
}

// Request is a single completion request.
type Request struct {
	// Operation labels the request for logs and metrics.
	Operation   string
	System      string
	Messages    domain.Conversation
	Schema      *ResponseSchema
	Temperature *float64
}

// Response is the raw text returned by the service. Text may be empty.
type Response struct {
	Text         string
	Model        string
	FinishReason string
}

// Completer turns a request into one response.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Recorder observes completion calls.
type Recorder interface {
	ObserveCompletion(operation string, duration time.Duration, err error)
}

type instrumented struct {
	next     Completer
	recorder Recorder
}

// WithRecorder decorates c so that every call is reported to r.
func WithRecorder(c Completer, r Recorder) Completer {
	if r == nil {
		return c
	}
	return &instrumented{next: c, recorder: r}
}

func (i *instrumented) Complete(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := i.next.Complete(ctx, req)
	i.recorder.ObserveCompletion(req.Operation, time.Since(start), err)
	return resp, err
}
