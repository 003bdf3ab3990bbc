package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/chirino/chatmem-service/internal/model"
	"github.com/go-playground/validator/v10"
)

// MessagePayload is the wire shape of a chat message.
type MessagePayload struct {
	ID          *string        `json:"id"          validate:"required,min=1,max=255"`
	Role        *string        `json:"role"        validate:"required,oneof=user assistant system"`
	Content     *string        `json:"content"     validate:"required"`
	ContentType *string        `json:"contentType" validate:"required,oneof=text code image mixed"`
	Timestamp   *string        `json:"timestamp"   validate:"required,iso8601"`
	Metadata    model.Metadata `json:"metadata"`
}

// ConversationPayload is the wire shape accepted by the upsert endpoint.
// Pointers distinguish a missing field from an empty one.
type ConversationPayload struct {
	ID          *string          `json:"id"          validate:"required,min=1,max=255"`
	Platform    *string          `json:"platform"    validate:"required,min=1,max=50"`
	Title       *string          `json:"title"       validate:"required,max=500"`
	URL         *string          `json:"url"         validate:"required,max=1000"`
	CreatedAt   *string          `json:"createdAt"   validate:"required,iso8601"`
	UpdatedAt   *string          `json:"updatedAt"   validate:"required,iso8601"`
	Messages    []MessagePayload `json:"messages"    validate:"required,min=1,dive"`
	Processed   *bool            `json:"processed"   validate:"required"`
	ProcessedAt *string          `json:"processedAt" validate:"omitempty,iso8601"`
	Tags        []string         `json:"tags"`
	Summary     *string          `json:"summary"`
	Metadata    model.Metadata   `json:"metadata"`
}

// Violation is a single failed constraint.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error lists every constraint a payload violated.
type Error struct {
	Violations []Violation
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.Field + ": " + v.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func fieldError(field, message string) *Error {
	return &Error{Violations: []Violation{{Field: field, Message: message}}}
}

var (
	engineOnce sync.Once
	engine     *validator.Validate
)

func validatorEngine() *validator.Validate {
	engineOnce.Do(func() {
		engine = validator.New(validator.WithRequiredStructEnabled())
		engine.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		_ = engine.RegisterValidation("iso8601", func(fl validator.FieldLevel) bool {
			_, err := ParseTimestamp(fl.Field().String())
			return err == nil
		})
	})
	return engine
}

// Conversation checks the payload and converts it into a model value ready
// to be stored.
func Conversation(p *ConversationPayload) (*model.Conversation, error) {
	if p == nil {
		return nil, fieldError("body", "request body is required")
	}
	if err := validatorEngine().Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, fromValidationErrors(verrs)
		}
		return nil, err
	}

	conv := &model.Conversation{
		ID:        *p.ID,
		Platform:  *p.Platform,
		Title:     *p.Title,
		URL:       *p.URL,
		Processed: *p.Processed,
		Tags:      p.Tags,
		Summary:   p.Summary,
		Metadata:  p.Metadata,
	}
	// Parse errors are impossible here; the iso8601 tag already accepted them.
	conv.CreatedAt, _ = ParseTimestamp(*p.CreatedAt)
	conv.UpdatedAt, _ = ParseTimestamp(*p.UpdatedAt)
	if p.ProcessedAt != nil {
		t, _ := ParseTimestamp(*p.ProcessedAt)
		conv.ProcessedAt = &t
	}
	conv.Messages = make([]model.Message, len(p.Messages))
	for i, m := range p.Messages {
		conv.Messages[i] = model.Message{
			ID:          *m.ID,
			Role:        model.Role(*m.Role),
			Content:     *m.Content,
			ContentType: model.ContentType(*m.ContentType),
			Timestamp:   *m.Timestamp,
			Metadata:    m.Metadata,
		}
	}
	return conv, nil
}

// DecodeConversation parses a JSON body and validates it.
func DecodeConversation(body []byte) (*model.Conversation, error) {
	var p ConversationPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, FromDecodeError(err)
	}
	return Conversation(&p)
}

// FromDecodeError converts a JSON decoding failure into a validation Error.
func FromDecodeError(err error) *Error {
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		return fieldError(field, fmt.Sprintf("expected %s, got %s", typeErr.Type.Kind(), typeErr.Value))
	case errors.As(err, &syntaxErr):
		return fieldError("body", fmt.Sprintf("invalid JSON at offset %d", syntaxErr.Offset))
	case err.Error() == "EOF", err.Error() == "unexpected EOF":
		return fieldError("body", "request body is required")
	default:
		return fieldError("body", err.Error())
	}
}

func fromValidationErrors(verrs validator.ValidationErrors) *Error {
	out := &Error{}
	for _, fe := range verrs {
		out.Violations = append(out.Violations, Violation{
			Field:   fieldPath(fe.Namespace()),
			Message: describe(fe),
		})
	}
	return out
}

// fieldPath drops the root struct name from a validator namespace,
// e.g. "ConversationPayload.messages[0].role" becomes "messages[0].role".
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field required"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
		}
		return fmt.Sprintf("must be at least %s character(s)", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "iso8601":
		return "must be an ISO-8601 timestamp"
	default:
		return fmt.Sprintf("failed %q constraint", fe.Tag())
	}
}

// timestampLayouts are the forms datetime.fromisoformat accepted before
// Python 3.11. Fractional seconds are matched implicitly by time.Parse.
var timestampLayouts = []string{
	"2006-01-02T15:04:05-07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04-07:00",
	"2006-01-02T15:04",
	"2006-01-02T15-07:00",
	"2006-01-02T15",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 timestamp. A trailing "Z" is accepted as
// the UTC designator, a space may separate date and time, and values without
// an offset are taken to be UTC.
func ParseTimestamp(s string) (time.Time, error) {
	v := s
	if strings.HasSuffix(v, "Z") {
		v = strings.TrimSuffix(v, "Z") + "+00:00"
	}
	if len(v) > 10 && v[10] == ' ' {
		v = v[:10] + "T" + v[11:]
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid ISO-8601 timestamp %q", s)
}
