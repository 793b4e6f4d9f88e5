// Package sidecar decodes the per-image JSON files that photo exports ship
// next to each image.
package sidecar

import (
	"encoding/json/v2"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/listenupapp/takeout-fixer/internal/errors"
)

// Metadata is the decoded sidecar record. Every field is optional; nil means
// the key was absent from the file.
type Metadata struct {
	Title          *string    `json:"title,omitempty"`
	Description    *string    `json:"description,omitempty"`
	CreationTime   *Timestamp `json:"creationTime,omitempty"`
	PhotoTakenTime *Timestamp `json:"photoTakenTime,omitempty"`
	GeoData        *GeoData   `json:"geoData,omitempty"`
	People         []Person   `json:"people,omitempty"`
	URL            *string    `json:"url,omitempty"`
}

// Timestamp pairs the raw epoch-seconds string with the export's own
// human-readable rendering of it.
type Timestamp struct {
	Timestamp *string `json:"timestamp,omitempty"`
	Formatted *string `json:"formatted,omitempty"`
}

// Time parses the epoch string. ok is false when the timestamp is absent or
// not a valid integer.
func (t *Timestamp) Time() (ts time.Time, ok bool) {
	if t == nil || t.Timestamp == nil {
		return time.Time{}, false
	}
	secs, err := strconv.ParseInt(*t.Timestamp, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(secs, 0).UTC(), true
}

// GeoData is the location recorded by the export.
type GeoData struct {
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	Altitude      *float64 `json:"altitude,omitempty"`
	LatitudeSpan  *float64 `json:"latitudeSpan,omitempty"`
	LongitudeSpan *float64 `json:"longitudeSpan,omitempty"`
}

// Person is someone tagged in the image.
type Person struct {
	Name string `json:"name"`
}

// ParseError reports a structurally invalid sidecar.
type ParseError struct {
	Path string // empty when parsing raw bytes
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return "invalid sidecar: " + e.Err.Error()
	}
	return fmt.Sprintf("invalid sidecar %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ErrorCode classifies every ParseError as errors.CodeParse.
func (e *ParseError) ErrorCode() errors.Code { return errors.CodeParse }

// Is lets errors.Is(err, errors.ErrParse) match a ParseError.
func (e *ParseError) Is(target error) bool {
	var t *errors.Error
	return errors.As(target, &t) && t.Code == errors.CodeParse
}

// Parse decodes raw sidecar text. Unknown keys are ignored. Malformed input,
// trailing commas included, returns a *ParseError and no record.
func Parse(data []byte) (*Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &ParseError{Err: err}
	}
	return &m, nil
}

// Read loads and parses the sidecar at path.
func Read(path string) (*Metadata, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- paths come from the extracted export
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeIO, "read sidecar %s", path)
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &m, nil
}
