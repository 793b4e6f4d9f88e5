package store

import (
	"fmt"
	"strings"
	"time"
)

// timestampLen is the width of the sortable timestamp:
// 2006-01-02T15:04:05.NNNNNNNNNZ.
const timestampLen = 30

// formatTimestampIndexKey creates an index key whose lexicographic order is
// chronological. Format: {prefix}{timestamp}:{entityType}:{entityID}.
func formatTimestampIndexKey(prefix string, timestamp time.Time, entityType, entityID string) []byte {
	ts := timestamp.UTC().Format("2006-01-02T15:04:05") + fmt.Sprintf(".%09d", timestamp.Nanosecond()) + "Z"
	return fmt.Appendf(nil, "%s%s:%s:%s", prefix, ts, entityType, entityID)
}

// parseTimestampIndexKey extracts entity type and ID from a timestamp index key.
func parseTimestampIndexKey(key []byte, expectedPrefix string) (entityType, entityID string, err error) {
	remainder, ok := strings.CutPrefix(string(key), expectedPrefix)
	if !ok {
		return "", "", fmt.Errorf("invalid timestamp key: missing prefix %s", expectedPrefix)
	}

	// The timestamp contains colons, so skip it by width.
	if len(remainder) < timestampLen+2 {
		return "", "", fmt.Errorf("invalid timestamp key format: %s", key)
	}

	entityType, entityID, ok = strings.Cut(remainder[timestampLen+1:], ":")
	if !ok || entityID == "" {
		return "", "", fmt.Errorf("invalid timestamp key format: %s", key)
	}
	return entityType, entityID, nil
}
