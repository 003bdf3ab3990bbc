package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ContentType classifies the body of a chat message.
type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeCode  ContentType = "code"
	ContentTypeImage ContentType = "image"
	ContentTypeMixed ContentType = "mixed"
)

// Metadata is a free-form JSON object supplied by the client. Numbers decode
// as json.Number so integers wider than a float64 mantissa survive a round trip.
type Metadata map[string]interface{}

// UnmarshalJSON decodes an object keeping every number literal exact.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*m = raw
	return nil
}

// Clone returns a deep copy of m.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	return cloneValue(map[string]interface{}(m)).(map[string]interface{})
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Message is a single chat turn. Messages are persisted as a JSON array on the
// owning conversation row; the timestamp is kept exactly as the client sent it.
type Message struct {
	ID          string      `json:"id"`
	Role        Role        `json:"role"`
	Content     string      `json:"content"`
	ContentType ContentType `json:"contentType"`
	Timestamp   string      `json:"timestamp"`
	Metadata    Metadata    `json:"metadata,omitempty"`
}

// Conversation is a captured chat conversation keyed by the client-generated ID.
//
// CreatedAt and UpdatedAt belong to the originating chat platform. The store never
// computes them; DBCreatedAt and DBUpdatedAt are the store's own bookkeeping.
type Conversation struct {
	ID          string     `json:"id"          gorm:"primaryKey;type:varchar(255)"`
	Platform    string     `json:"platform"    gorm:"type:varchar(50);not null;index:idx_platform;index:idx_platform_processed,priority:1"`
	Title       string     `json:"title"       gorm:"type:varchar(500);not null"`
	URL         string     `json:"url"         gorm:"column:url;type:varchar(1000);not null"`
	CreatedAt   time.Time  `json:"createdAt"   gorm:"not null;autoCreateTime:false;index:idx_created_at"`
	UpdatedAt   time.Time  `json:"updatedAt"   gorm:"not null;autoUpdateTime:false;index:idx_updated_at"`
	Messages    []Message  `json:"messages"    gorm:"type:json;serializer:json;not null"`
	Processed   bool       `json:"processed"   gorm:"not null;index:idx_processed;index:idx_platform_processed,priority:2"`
	ProcessedAt *time.Time `json:"processedAt"`
	Tags        []string   `json:"tags"        gorm:"type:json;serializer:json"`
	Summary     *string    `json:"summary"     gorm:"type:text"`
	Metadata    Metadata   `json:"metadata"    gorm:"column:metadata;type:json;serializer:json"`
	DBCreatedAt time.Time  `json:"-"           gorm:"column:db_created_at;not null"`
	DBUpdatedAt time.Time  `json:"-"           gorm:"column:db_updated_at;not null;index:idx_db_updated_at"`
}

func (Conversation) TableName() string { return "conversations" }

// Normalize converts every timestamp to UTC so that values read back from
// different drivers compare and serialize the same way.
func (c *Conversation) Normalize() {
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	if c.ProcessedAt != nil {
		t := c.ProcessedAt.UTC()
		c.ProcessedAt = &t
	}
	c.DBCreatedAt = c.DBCreatedAt.UTC()
	c.DBUpdatedAt = c.DBUpdatedAt.UTC()
}

// MarshalJSON renders the caller supplied timestamps as RFC 3339 in UTC.
func (c Conversation) MarshalJSON() ([]byte, error) {
	type Alias Conversation // avoid recursion
	aux := struct {
		Alias
		CreatedAt   string  `json:"createdAt"`
		UpdatedAt   string  `json:"updatedAt"`
		ProcessedAt *string `json:"processedAt"`
	}{
		Alias:     Alias(c),
		CreatedAt: FormatTime(c.CreatedAt),
		UpdatedAt: FormatTime(c.UpdatedAt),
	}
	if c.ProcessedAt != nil {
		s := FormatTime(*c.ProcessedAt)
		aux.ProcessedAt = &s
	}
	return json.Marshal(aux)
}

// FormatTime renders t in the wire format used for conversation timestamps.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
