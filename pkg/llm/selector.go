package llm

import (
	"errors"

	"github.com/google/uuid"
)

var errNotCanonical = errors.New("uuid is not in canonical form")

// Selector names what answers a chat request. The concrete type is either
// AssistantSelector or ModelSelector.
type Selector interface {
	isSelector()
}

// AssistantSelector routes the request to a configured assistant.
type AssistantSelector struct {
	ID uuid.UUID
}

// ModelSelector routes the request straight to a model.
type ModelSelector struct {
	Model string
}

func (AssistantSelector) isSelector() {}
func (ModelSelector) isSelector()     {}

// Selector returns the request's selector. Empty strings count as unset.
func (r *ChatRequest) Selector() (Selector, error) {
	switch {
	case r.AssistantID != "" && r.Model != "":
		return nil, newValidationError(FieldError{Field: "assistant_id", Message: "provide only one of assistant_id or model"})
	case r.AssistantID != "":
		id, err := parseAssistantID(r.AssistantID)
		if err != nil {
			return nil, newValidationError(FieldError{Field: "assistant_id", Message: "must be a UUID"})
		}
		return AssistantSelector{ID: id}, nil
	case r.Model != "":
		return ModelSelector{Model: r.Model}, nil
	default:
		return nil, newValidationError(FieldError{Field: "assistant_id", Message: "Provide either assistant_id or model"})
	}
}

// parseAssistantID accepts only the canonical 36 character form.
func parseAssistantID(s string) (uuid.UUID, error) {
	if len(s) != 36 {
		return uuid.Nil, errNotCanonical
	}
	return uuid.Parse(s)
}
