package persona

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Haku929/Amiro-sub000/internal/big5"
	"github.com/Haku929/Amiro-sub000/internal/domain"
	"github.com/Haku929/Amiro-sub000/internal/llm"
	"github.com/Haku929/Amiro-sub000/internal/retry"
	"github.com/Haku929/Amiro-sub000/internal/schema"
)

// DefaultMaxAttempts is the total number of extraction attempts.
const DefaultMaxAttempts = 3

const extractionTemperature = 0.2

var (
	// ErrExtractionFailed is matched by every *ExtractionError.
	ErrExtractionFailed = errors.New("persona extraction failed")

	ErrEmptyResponse  = errors.New("completion returned no text")
	ErrMalformedJSON  = errors.New("completion is not valid JSON")
	ErrSchemaMismatch = errors.New("completion does not match the extraction schema")
)

// ExtractionSchema is the only accepted shape of an extraction response.
var ExtractionSchema = schema.Object{
	Properties: []schema.Property{
		{Name: "selfVector", Schema: big5.Schema},
		{Name: "personaSummary", Schema: schema.String{Description: "One-sentence Japanese summary of the speaker"}},
	},
}

// Extraction is a validated extraction result.
type Extraction struct {
	SelfVector     big5.Vector `json:"selfVector"`
	PersonaSummary string      `json:"personaSummary"`
}

// ExtractionError reports a failed extraction after all attempts. Err is the
// last underlying failure: an llm.ErrUpstream error when the service was
// unreachable, or one of the validation errors when it answered badly.
type ExtractionError struct {
	Attempts int
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("persona extraction failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Is reports whether target is ErrExtractionFailed.
func (e *ExtractionError) Is(target error) bool {
	return target == ErrExtractionFailed
}

// ExtractionObserver receives the outcome of every Extract call.
type ExtractionObserver interface {
	ObserveExtraction(attempts int, err error)
}

// Extractor derives a Big Five vector and summary from a conversation.
type Extractor struct {
	completer   llm.Completer
	maxAttempts int
	observer    ExtractionObserver
	logger      *slog.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithMaxAttempts overrides DefaultMaxAttempts.
func WithMaxAttempts(n int) ExtractorOption {
	return func(x *Extractor) {
		if n > 0 {
			x.maxAttempts = n
		}
	}
}

// WithExtractionObserver reports outcomes to o.
func WithExtractionObserver(o ExtractionObserver) ExtractorOption {
	return func(x *Extractor) {
		x.observer = o
	}
}

// WithExtractorLogger sets the logger.
func WithExtractorLogger(l *slog.Logger) ExtractorOption {
	return func(x *Extractor) {
		if l != nil {
			x.logger = l
		}
	}
}

// NewExtractor creates an Extractor backed by c.
func NewExtractor(c llm.Completer, opts ...ExtractorOption) *Extractor {
	x := &Extractor{
		completer:   c,
		maxAttempts: DefaultMaxAttempts,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Extract runs the extraction request, retrying the whole request on any
// service or validation failure. It never returns a partial or defaulted
// vector.
func (x *Extractor) Extract(ctx context.Context, conv domain.Conversation) (*Extraction, error) {
	if len(conv) == 0 {
		return nil, domain.ErrEmptyConversation
	}
	if err := conv.Validate(); err != nil {
		return nil, err
	}

	temperature := extractionTemperature
	req := llm.Request{
		Operation: "extract",
		System:    extractionInstruction,
		Messages: domain.Conversation{
			{Role: domain.RoleUser, Content: RenderTranscript(conv)},
		},
		Schema: &llm.ResponseSchema{
			Name:        "persona_extraction",
			Description: "Big Five self vector and persona summary",
			Schema:      ExtractionSchema,
		},
		Temperature: &temperature,
	}

	result, attempts, err := retry.Attempt(ctx, x.maxAttempts, func(ctx context.Context, attempt int) (*Extraction, error) {
		resp, err := x.completer.Complete(ctx, req)
		if err != nil {
			x.logger.Warn("extraction attempt failed", "attempt", attempt, "max_attempts", x.maxAttempts, "error", err)
			return nil, err
		}
		ext, err := ParseExtraction(resp)
		if err != nil {
			x.logger.Warn("extraction response rejected", "attempt", attempt, "max_attempts", x.maxAttempts, "error", err)
			return nil, err
		}
		return ext, nil
	})
	if x.observer != nil {
		x.observer.ObserveExtraction(attempts, err)
	}
	if err != nil {
		return nil, &ExtractionError{Attempts: attempts, Err: err}
	}
	return result, nil
}

// ParseExtraction validates a completion response against ExtractionSchema.
func ParseExtraction(resp *llm.Response) (*Extraction, error) {
	var text string
	if resp != nil {
		text = strings.TrimSpace(resp.Text)
	}
	if text == "" {
		return nil, ErrEmptyResponse
	}
	if !json.Valid([]byte(text)) {
		return nil, ErrMalformedJSON
	}
	if err := schema.Validate(ExtractionSchema, []byte(text)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchemaMismatch, err)
	}

	var ext Extraction
	if err := json.Unmarshal([]byte(text), &ext); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchemaMismatch, err)
	}
	return &ext, nil
}
