package watcher

import (
	"path/filepath"
	"strings"
	"time"
)

// Options configures the inbox watcher.
type Options struct {
	IgnorePatterns []string
	// SettleDelay is how long size and mtime must stay unchanged before a
	// file is reported. Browsers and copy tools write exports in chunks.
	SettleDelay  time.Duration
	IgnoreHidden bool
	// EmitExisting reports files already in the inbox when Start is called.
	EmitExisting bool
}

// setDefaults applies default values to unset options.
func (o *Options) setDefaults() {
	if o.SettleDelay == 0 {
		o.SettleDelay = 2 * time.Second
	}

	// nil means unconfigured; an explicit empty slice is respected.
	if o.IgnorePatterns == nil {
		o.IgnorePatterns = []string{
			".DS_Store",
			"Thumbs.db",
			"*.tmp",
			"*.part",
			"*.crdownload",
			"*.download",
		}
		o.IgnoreHidden = true
	}
}

// shouldIgnore reports whether a path matches the ignore rules.
func (o *Options) shouldIgnore(path string) bool {
	base := filepath.Base(path)
	if o.IgnoreHidden && strings.HasPrefix(base, ".") {
		return true
	}

	for _, pattern := range o.IgnorePatterns {
		matched, err := filepath.Match(pattern, base)
		if err == nil && matched {
			return true
		}
	}

	return false
}
