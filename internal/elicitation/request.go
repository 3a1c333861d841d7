package elicitation

import (
	"errors"
	"fmt"
	"strings"
)

// Choice is one selectable value and the label shown for it.
type Choice struct {
	Value string
	Label string
}

// Request asks the client to pick or enter a single string field.
type Request struct {
	Message     string
	Field       string
	Title       string
	Description string
	Choices     []Choice
	Required    bool
}

func (r Request) validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return errors.New("elicitation request needs a message")
	}
	if strings.TrimSpace(r.Field) == "" {
		return errors.New("elicitation request needs a field name")
	}
	return nil
}

// Schema renders the requested schema sent to the client:
// {type:object, properties:{field:{...}}, required:[field]}.
func (r Request) Schema() map[string]any {
	prop := map[string]any{"type": "string"}
	if r.Title != "" {
		prop["title"] = r.Title
	}
	if r.Description != "" {
		prop["description"] = r.Description
	}
	if len(r.Choices) > 0 {
		values := make([]string, len(r.Choices))
		labels := make([]string, len(r.Choices))
		for i, c := range r.Choices {
			values[i] = c.Value
			labels[i] = c.Label
			if labels[i] == "" {
				labels[i] = c.Value
			}
		}
		prop["enum"] = values
		prop["enumNames"] = labels
	}

	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{r.Field: prop},
	}
	if r.Required {
		schema["required"] = []string{r.Field}
	}
	return schema
}

// check validates accepted content against the request.
func (r Request) check(content map[string]any) error {
	raw, present := content[r.Field]
	if !present || raw == nil {
		if r.Required {
			return fmt.Errorf("malformed response: required field %q missing", r.Field)
		}
		return nil
	}
	val, ok := raw.(string)
	if !ok {
		return fmt.Errorf("malformed response: field %q is %T, want string", r.Field, raw)
	}
	if r.Required && val == "" {
		return fmt.Errorf("malformed response: required field %q is empty", r.Field)
	}
	if len(r.Choices) > 0 && val != "" {
		for _, c := range r.Choices {
			if c.Value == val {
				return nil
			}
		}
		return fmt.Errorf("malformed response: %q is not one of the offered choices", val)
	}
	return nil
}
