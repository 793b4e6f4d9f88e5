package exif

import (
	"os"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/listenupapp/takeout-fixer/internal/errors"
)

// Embedded is what an image already carries.
type Embedded struct {
	DateTimeOriginal time.Time
	HasDateTime      bool
	Description      string
	HasDescription   bool
}

// ReadEmbedded decodes the EXIF block of a JPEG or TIFF image. Files without
// a decodable EXIF block fail with CodeMetadata; unreadable files with CodeIO.
func ReadEmbedded(path string) (*Embedded, error) {
	f, err := os.Open(path) //#nosec G304 -- path comes from a directory walk
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeIO, "open image %s", path)
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		return nil, errors.Wrapf(err, errors.CodeMetadata, "decode exif in %s", path)
	}

	var e Embedded
	if tag, err := x.Get(exif.DateTimeOriginal); err == nil {
		if s, err := tag.StringVal(); err == nil {
			if ts, err := time.Parse("2006:01:02 15:04:05", strings.TrimSpace(s)); err == nil {
				e.DateTimeOriginal, e.HasDateTime = ts, true
			}
		}
	}
	if tag, err := x.Get(exif.ImageDescription); err == nil {
		if s, err := tag.StringVal(); err == nil {
			e.Description, e.HasDescription = s, true
		}
	}
	return &e, nil
}
