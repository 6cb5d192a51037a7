package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Haku929/Amiro-sub000/internal/domain"
	"github.com/Haku929/Amiro-sub000/internal/identity"
	"github.com/Haku929/Amiro-sub000/internal/persona"
)

// PostChat generates the next persona reply.
func (h *Handler) PostChat(w http.ResponseWriter, r *http.Request) {
	req, verr := decodeChatRequest(w, r)
	if verr != nil {
		writeValidation(w, verr)
		return
	}

	reply, err := h.Replies.Reply(r.Context(), req.History, req.Situation, req.Target)
	if err != nil {
		slog.Error("Reply generation failed",
			"user_id", identity.UserIDFromContext(r.Context()),
			"turns", len(req.History),
			"empty_reply", errors.Is(err, persona.ErrEmptyReply),
			"error", err)
		JSON(w, http.StatusBadGateway, map[string]string{
			"error":    "generation_failed",
			"message":  "reply generation failed, try again",
			"fallback": persona.FallbackReply,
		})
		return
	}

	JSON(w, http.StatusOK, map[string]string{"content": reply})
}

// PostAnalyze extracts a persona from a finished conversation.
func (h *Handler) PostAnalyze(w http.ResponseWriter, r *http.Request) {
	conv, verr := decodeAnalyzeRequest(w, r)
	if verr != nil {
		writeValidation(w, verr)
		return
	}

	ext, err := h.Extractor.Extract(r.Context(), conv)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyConversation) || errors.Is(err, domain.ErrInvalidRole) {
			ErrorWithMessage(w, http.StatusBadRequest, codeInvalidInput, err.Error())
			return
		}
		var xerr *persona.ExtractionError
		attempts := 0
		if errors.As(err, &xerr) {
			attempts = xerr.Attempts
		}
		slog.Error("Persona extraction failed",
			"user_id", identity.UserIDFromContext(r.Context()),
			"attempts", attempts,
			"error", err)
		ErrorWithMessage(w, http.StatusBadGateway, "extraction_failed", "persona analysis failed, try again")
		return
	}

	JSON(w, http.StatusOK, ext)
}
