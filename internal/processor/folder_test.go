package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetermineExportKey(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{"first part", "/inbox/takeout-20240102T030405Z-001.zip", "/inbox/takeout-20240102T030405Z"},
		{"second part", "/inbox/takeout-20240102T030405Z-002.zip", "/inbox/takeout-20240102T030405Z"},
		{"tgz part", "/inbox/takeout-20240102T030405Z-003.tgz", "/inbox/takeout-20240102T030405Z"},
		{"tar.gz part", "/inbox/takeout-20240102T030405Z-001.tar.gz", "/inbox/takeout-20240102T030405Z"},
		{"no part number", "/inbox/holiday.zip", "/inbox/holiday"},
		{"two digit suffix", "/inbox/photos-12.zip", "/inbox/photos-12"},
		{"non numeric suffix", "/inbox/photos-abc.zip", "/inbox/photos-abc"},
		{"decomposed name", "/inbox/Cafe\u0301-001.zip", "/inbox/Caf\u00e9"},
		{"composed name", "/inbox/Caf\u00e9-002.zip", "/inbox/Caf\u00e9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, determineExportKey(tt.path))
		})
	}
}
