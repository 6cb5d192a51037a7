package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Haku929/Amiro-sub000/internal/big5"
	"github.com/Haku929/Amiro-sub000/internal/domain"
)

// maxRequestBodySize bounds every JSON request body.
const maxRequestBodySize = 256 << 10

// MaxDisplayNameLength bounds profile display names in runes.
const MaxDisplayNameLength = 32

// Validation codes returned in the "error" field.
const (
	codeInvalidBody         = "invalid_body"
	codeInvalidInput        = "invalid_input"
	codeInvalidIndex        = "invalid_index"
	codeInvalidMessages     = "invalid_messages"
	codeInvalidTargetVector = "invalid_target_vector"
	codeMissingSituation    = "missing_situation"
)

// validationError names the field and rule a request broke.
type validationError struct {
	Code    string
	Field   string
	Message string
}

func (e *validationError) Error() string {
	if e.Field == "" {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
}

func invalid(code, field, format string, args ...any) *validationError {
	return &validationError{Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}

// writeValidation writes a 400 carrying the validation code and message.
func writeValidation(w http.ResponseWriter, verr *validationError) {
	body := map[string]string{"error": verr.Code, "message": verr.Message}
	if verr.Field != "" {
		body["field"] = verr.Field
	}
	JSON(w, http.StatusBadRequest, body)
}

// readObject reads a bounded body and checks that it is a JSON object.
func readObject(w http.ResponseWriter, r *http.Request, code string, dst any) *validationError {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return invalid(code, "", "request body exceeds %d bytes", tooLarge.Limit)
		}
		return invalid(code, "", "failed to read request body")
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return invalid(code, "", "request body must be a JSON object")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return invalid(code, "", "malformed JSON: %v", err)
	}
	return nil
}

type rawMessage struct {
	Role    *string `json:"role"`
	Content *string `json:"content"`
}

// parseConversation validates a raw messages array. Absent means empty.
func parseConversation(raw json.RawMessage, code string) (domain.Conversation, *validationError) {
	if len(raw) == 0 || string(raw) == "null" {
		return domain.Conversation{}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, invalid(code, "messages", "must be an array")
	}

	conv := make(domain.Conversation, 0, len(items))
	for i, item := range items {
		var m rawMessage
		if err := json.Unmarshal(item, &m); err != nil {
			return nil, invalid(code, fmt.Sprintf("messages[%d]", i), "must be an object with role and content")
		}
		if m.Role == nil || !domain.Role(*m.Role).Valid() {
			return nil, invalid(code, fmt.Sprintf("messages[%d].role", i), "must be %q or %q", domain.RoleUser, domain.RoleModel)
		}
		if m.Content == nil {
			return nil, invalid(code, fmt.Sprintf("messages[%d].content", i), "is required")
		}
		conv = append(conv, domain.Message{Role: domain.Role(*m.Role), Content: *m.Content})
	}
	return conv, nil
}

type chatEnvelope struct {
	Messages     json.RawMessage `json:"messages"`
	Situation    *string         `json:"situation"`
	TargetVector json.RawMessage `json:"targetVector"`
}

type chatRequest struct {
	History   domain.Conversation
	Situation string
	Target    big5.Vector
}

func decodeChatRequest(w http.ResponseWriter, r *http.Request) (*chatRequest, *validationError) {
	var env chatEnvelope
	if verr := readObject(w, r, codeInvalidBody, &env); verr != nil {
		return nil, verr
	}

	if env.Situation == nil || strings.TrimSpace(*env.Situation) == "" {
		return nil, invalid(codeMissingSituation, "situation", "is required")
	}
	if len(env.TargetVector) == 0 {
		return nil, invalid(codeInvalidTargetVector, "targetVector", "is required")
	}
	target, err := big5.Parse(env.TargetVector)
	if err != nil {
		return nil, invalid(codeInvalidTargetVector, "targetVector", "%v", err)
	}
	history, verr := parseConversation(env.Messages, codeInvalidMessages)
	if verr != nil {
		return nil, verr
	}

	return &chatRequest{History: history, Situation: strings.TrimSpace(*env.Situation), Target: target}, nil
}

type analyzeEnvelope struct {
	Messages json.RawMessage `json:"messages"`
}

func decodeAnalyzeRequest(w http.ResponseWriter, r *http.Request) (domain.Conversation, *validationError) {
	var env analyzeEnvelope
	if verr := readObject(w, r, codeInvalidInput, &env); verr != nil {
		return nil, verr
	}
	conv, verr := parseConversation(env.Messages, codeInvalidInput)
	if verr != nil {
		return nil, verr
	}
	if len(conv) == 0 {
		return nil, invalid(codeInvalidInput, "messages", "must contain at least one message")
	}
	return conv, nil
}

type slotEnvelope struct {
	SelfVector      json.RawMessage `json:"selfVector"`
	ResonanceVector json.RawMessage `json:"resonanceVector"`
	PersonaIcon     *string         `json:"personaIcon"`
	PersonaSummary  *string         `json:"personaSummary"`
}

func decodeSlotContent(w http.ResponseWriter, r *http.Request) (*domain.SlotContent, *validationError) {
	var env slotEnvelope
	if verr := readObject(w, r, codeInvalidBody, &env); verr != nil {
		return nil, verr
	}

	var content domain.SlotContent
	var err error
	if content.SelfVector, err = big5.Parse(env.SelfVector); err != nil {
		return nil, invalid(codeInvalidBody, "selfVector", "%v", err)
	}
	if content.ResonanceVector, err = big5.Parse(env.ResonanceVector); err != nil {
		return nil, invalid(codeInvalidBody, "resonanceVector", "%v", err)
	}
	if env.PersonaIcon == nil {
		return nil, invalid(codeInvalidBody, "personaIcon", "is required")
	}
	content.PersonaIcon = strings.TrimSpace(*env.PersonaIcon)
	if env.PersonaSummary != nil {
		content.PersonaSummary = strings.TrimSpace(*env.PersonaSummary)
	}
	if err := content.Validate(); err != nil {
		return nil, invalid(codeInvalidBody, "", "%v", err)
	}
	return &content, nil
}

func parseSlotIndex(raw string) (int, *validationError) {
	i, err := strconv.Atoi(raw)
	if err != nil || !domain.ValidSlotIndex(i) {
		return 0, invalid(codeInvalidIndex, "index", "must be an integer between %d and %d", domain.MinSlotIndex, domain.MaxSlotIndex)
	}
	return i, nil
}

type profilePatchEnvelope struct {
	DisplayName *string `json:"displayName"`
	AvatarURL   *string `json:"avatarUrl"`
}

// profilePatch carries only the fields the client sent.
type profilePatch struct {
	DisplayName *string
	AvatarURL   *string
}

func decodeProfilePatch(w http.ResponseWriter, r *http.Request) (*profilePatch, *validationError) {
	var env profilePatchEnvelope
	if verr := readObject(w, r, codeInvalidBody, &env); verr != nil {
		return nil, verr
	}

	var p profilePatch
	if env.DisplayName != nil {
		name := strings.TrimSpace(*env.DisplayName)
		if name == "" {
			return nil, invalid(codeInvalidBody, "displayName", "must not be blank")
		}
		if utf8.RuneCountInString(name) > MaxDisplayNameLength {
			return nil, invalid(codeInvalidBody, "displayName", "must be at most %d characters", MaxDisplayNameLength)
		}
		p.DisplayName = &name
	}
	if env.AvatarURL != nil {
		raw := strings.TrimSpace(*env.AvatarURL)
		if raw != "" {
			u, err := url.Parse(raw)
			if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
				return nil, invalid(codeInvalidBody, "avatarUrl", "must be an absolute http(s) URL")
			}
		}
		p.AvatarURL = &raw
	}
	return &p, nil
}
