package audit

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Summary describes one redaction request. It never holds input text or
// matched substrings.
type Summary struct {
	ID          int64     `db:"id" json:"id"`
	RequestID   string    `db:"request_id" json:"request_id"`
	Source      string    `db:"source" json:"source"`
	Mode        string    `db:"mode" json:"mode"`
	TextLength  int       `db:"text_length" json:"text_length"`
	EntityCount int       `db:"entity_count" json:"entity_count"`
	Counts      Counts    `db:"counts" json:"counts"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Counts is a per-category tally stored as a JSONB column
type Counts map[string]int

// Value implements driver.Valuer
func (c Counts) Value() (driver.Value, error) {
	if c == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]int(c))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (c *Counts) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*c = Counts{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported counts column type %T", src)
	}

	m := map[string]int{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("failed to decode counts: %w", err)
	}
	*c = m
	return nil
}
