package intake

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

// Recognised tracker event types.
const (
	EventCreate = "on_after_create"
	EventDrop   = "on_after_drop"
)

var (
	errEmptyBody = errors.New("empty request body")
	// ErrMalformed marks bodies that are not valid JSON.
	ErrMalformed = errors.New("malformed event payload")
	// ErrInvalid marks payloads that fail schema validation.
	ErrInvalid = errors.New("invalid event payload")
)

//go:embed event_schema.json
var eventSchemaJSON []byte

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(eventSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile event schema: %w", err)
	}
	return schema, nil
})

// Kind classifies an event type.
type Kind int

const (
	KindUnsupported Kind = iota
	KindCreate
	KindDrop
)

func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindDrop:
		return "drop"
	default:
		return "unsupported"
	}
}

// Classify maps a tracker event type to its Kind.
func Classify(eventType string) Kind {
	switch strings.TrimSpace(eventType) {
	case EventCreate:
		return KindCreate
	case EventDrop:
		return KindDrop
	default:
		return KindUnsupported
	}
}

// Event is a decoded tracker lifecycle webhook.
type Event struct {
	Type        string
	TaskID      string
	TaskName    string
	HumanNumber string
	Rename      bool
	CreateAgain bool
}

// Kind classifies the event.
func (e Event) Kind() Kind {
	return Classify(e.Type)
}

type wirePayload struct {
	Event string `json:"event"`
	Data  struct {
		ID          json.RawMessage `json:"id"`
		Name        *string         `json:"name"`
		HumanNumber json.RawMessage `json:"humanNumber"`
		Rename      json.RawMessage `json:"rename"`
		CreateAgain json.RawMessage `json:"create_again"`
	} `json:"data"`
}

// Parse validates body against the webhook schema and decodes it. Identifiers
// may be JSON strings or numbers; flags accept booleans, "true"/"1" strings,
// and numbers.
func Parse(body []byte) (Event, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Event{}, fmt.Errorf("%w: %w", ErrMalformed, errEmptyBody)
	}
	if !json.Valid(body) {
		return Event{}, ErrMalformed
	}
	schema, err := compileSchema()
	if err != nil {
		return Event{}, err
	}
	if result := schema.ValidateJSON(body); !result.IsValid() {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalid, result.Errors)
	}

	var wire wirePayload
	if err := json.Unmarshal(body, &wire); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	ev := Event{
		Type:        strings.TrimSpace(wire.Event),
		TaskID:      scalarString(wire.Data.ID),
		HumanNumber: scalarString(wire.Data.HumanNumber),
		Rename:      truthy(wire.Data.Rename),
		CreateAgain: truthy(wire.Data.CreateAgain),
	}
	if wire.Data.Name != nil {
		ev.TaskName = strings.TrimSpace(*wire.Data.Name)
	}
	if ev.TaskID == "" {
		return Event{}, fmt.Errorf("%w: data.id is empty", ErrInvalid)
	}
	return ev, nil
}

func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return ""
	}
	return n.String()
}

func truthy(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	value := scalarString(raw)
	if parsed, err := strconv.ParseBool(value); err == nil {
		return parsed
	}
	if n, err := strconv.ParseFloat(value, 64); err == nil {
		return n != 0
	}
	return strings.EqualFold(value, "yes")
}
