package persona

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Haku929/Amiro-sub000/internal/big5"
	"github.com/Haku929/Amiro-sub000/internal/domain"
	"github.com/Haku929/Amiro-sub000/internal/llm"
)

// FallbackReply replaces a turn whose generation failed.
const FallbackReply = "ごめんなさい、うまく言葉が出てこなかったみたい。もう一度話しかけてもらえますか？"

const replyTemperature = 0.9

var (
	ErrEmptyReply       = errors.New("completion returned an empty reply")
	ErrMissingSituation = errors.New("situation is required")
)

// ReplyGenerator produces one in-character reply per call. It keeps no
// state between calls.
type ReplyGenerator struct {
	completer llm.Completer
}

// NewReplyGenerator creates a ReplyGenerator backed by c.
func NewReplyGenerator(c llm.Completer) *ReplyGenerator {
	return &ReplyGenerator{completer: c}
}

// Reply returns the next persona turn for history.
func (g *ReplyGenerator) Reply(ctx context.Context, history domain.Conversation, situation string, target big5.Vector) (string, error) {
	if strings.TrimSpace(situation) == "" {
		return "", ErrMissingSituation
	}
	if err := target.Validate(); err != nil {
		return "", err
	}
	if err := history.Validate(); err != nil {
		return "", err
	}

	temperature := replyTemperature
	resp, err := g.completer.Complete(ctx, llm.Request{
		Operation:   "reply",
		System:      BuildReplyInstruction(situation, target),
		Messages:    history,
		Temperature: &temperature,
	})
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}

	var text string
	if resp != nil {
		text = strings.TrimSpace(resp.Text)
	}
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}
