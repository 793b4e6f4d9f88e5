package store

import (
	"encoding/base64"
	"fmt"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// PaginationParams contains pagination request parameters.
type PaginationParams struct {
	Limit  int    // items per page; defaults to 50, capped at 500
	Cursor string // opaque cursor for the next page (empty for first page)
}

// PaginatedResult contains paginated data and metadata.
type PaginatedResult[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"` // empty if no more pages
	HasMore    bool   `json:"has_more"`
}

// DefaultPaginationParams returns the first page at the default size.
func DefaultPaginationParams() PaginationParams {
	return PaginationParams{Limit: defaultPageSize}
}

// Validate clamps Limit into range.
func (p *PaginationParams) Validate() {
	if p.Limit <= 0 {
		p.Limit = defaultPageSize
	}
	if p.Limit > maxPageSize {
		p.Limit = maxPageSize
	}
}

// EncodeCursor creates an opaque cursor from the last key of a page.
func EncodeCursor(key string) string {
	if key == "" {
		return ""
	}
	return base64.URLEncoding.EncodeToString([]byte(key))
}

// DecodeCursor decodes a cursor back to a key.
func DecodeCursor(cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return "", fmt.Errorf("invalid cursor: %w", err)
	}
	return string(decoded), nil
}
