// Package pagination implements newest-first keyset paging over
// (created_at, id). Cursors are opaque to clients.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// Cursor marks the last row a client has seen.
type Cursor struct {
	CreatedAt time.Time `json:"t"`
	ID        uuid.UUID `json:"id"`
}

// Clamp applies DefaultLimit to unset limits and caps the rest at MaxLimit.
func Clamp(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// Encode renders c as an opaque, URL-safe token.
func (c Cursor) Encode() string {
	raw, _ := json.Marshal(Cursor{CreatedAt: c.CreatedAt.UTC(), ID: c.ID})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Decode parses a token produced by Encode. An empty token means the first page.
func Decode(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	if c.ID == uuid.Nil || c.CreatedAt.IsZero() {
		return nil, errors.New("decode cursor: incomplete position")
	}
	return &c, nil
}

// Seek orders query newest first and, when c is set, skips everything up to
// and including c. It fetches one row past limit so Page can tell whether
// another page exists.
func Seek(query *gorm.DB, c *Cursor, limit int) *gorm.DB {
	if c != nil {
		query = query.Where("(created_at < ? OR (created_at = ? AND id < ?))", c.CreatedAt, c.CreatedAt, c.ID)
	}
	return query.Order("created_at DESC, id DESC").Limit(Clamp(limit) + 1)
}

// Page trims rows fetched through Seek to limit and returns the cursor of
// the last row kept, or nil when this is the final page.
func Page[T any](rows []T, limit int, position func(T) Cursor) ([]T, *Cursor) {
	size := Clamp(limit)
	if len(rows) <= size {
		return rows, nil
	}
	rows = rows[:size]
	next := position(rows[size-1])
	return rows, &next
}
