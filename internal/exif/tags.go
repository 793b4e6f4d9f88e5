// Package exif turns sidecar metadata into embedded image tags and writes
// them into the image files.
package exif

import "github.com/listenupapp/takeout-fixer/internal/sidecar"

// Tag names as understood by the encoder.
const (
	TagImageDescription = "ImageDescription"
	TagDateTimeOriginal = "DateTimeOriginal"
	TagCreateDate       = "CreateDate"
	TagModifyDate       = "ModifyDate"
)

// DateLayout renders a capture date with its numeric zone offset,
// e.g. "2019:07:18 22:55:29+0000".
const DateLayout = "2006:01:02 15:04:05-0700"

// Tag is one embedded metadata field to write.
type Tag struct {
	Name  string
	Value string
}

// TagsFor maps a sidecar record onto the tags to embed.
//
// A present description becomes ImageDescription verbatim, even when empty. A creation
// time whose epoch parses as an integer is written, in UTC, to the capture,
// creation and modification dates alike. Anything else in the record is not
// embedded. A nil record yields no tags.
func TagsFor(meta *sidecar.Metadata) []Tag {
	if meta == nil {
		return nil
	}

	var tags []Tag
	if meta.Description != nil {
		tags = append(tags, Tag{Name: TagImageDescription, Value: *meta.Description})
	}

	if ts, ok := meta.CreationTime.Time(); ok {
		value := ts.Format(DateLayout)
		tags = append(tags,
			Tag{Name: TagDateTimeOriginal, Value: value},
			Tag{Name: TagCreateDate, Value: value},
			Tag{Name: TagModifyDate, Value: value},
		)
	}

	return tags
}
