package store

import "sync"

// Key layout:
//
//	run:{id}                                    -> domain.Run (JSON)
//	idx:runs:started:{timestamp}:run:{id}      -> empty
const (
	runPrefix         = "run:"
	runStartedIdx     = "idx:runs:started:"
	runEntityType     = "run"
	maxPooledKeyBytes = 512
)

// keyPool provides reusable byte slices for building database keys.
var keyPool = sync.Pool{
	New: func() any {
		return make([]byte, 0, 64)
	},
}

// buildKey constructs a key from prefix and suffix using a pooled buffer.
// Callers MUST call releaseKey when done with the key.
func buildKey(prefix, suffix string) []byte {
	buf, _ := keyPool.Get().([]byte)
	buf = buf[:0]
	buf = append(buf, prefix...)
	buf = append(buf, suffix...)
	return buf
}

// releaseKey returns a key buffer to the pool. The slice must not be used
// afterwards.
func releaseKey(key []byte) {
	if cap(key) <= maxPooledKeyBytes {
		keyPool.Put(key[:0])
	}
}
