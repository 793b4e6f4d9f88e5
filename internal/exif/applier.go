package exif

import (
	"context"
	"log/slog"
	"os"

	"github.com/listenupapp/takeout-fixer/internal/errors"
	"github.com/listenupapp/takeout-fixer/internal/sidecar"
)

// Encoder rewrites the embedded metadata of one image in place.
type Encoder interface {
	Write(ctx context.Context, path string, tags []Tag) error
}

// EncoderFunc adapts a function to Encoder.
type EncoderFunc func(ctx context.Context, path string, tags []Tag) error

// Write calls f.
func (f EncoderFunc) Write(ctx context.Context, path string, tags []Tag) error {
	return f(ctx, path, tags)
}

// Applier embeds sidecar metadata into images.
type Applier struct {
	encoder Encoder
	logger  *slog.Logger
}

// NewApplier creates an applier writing through encoder.
func NewApplier(encoder Encoder, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Applier{encoder: encoder, logger: logger}
}

// Apply writes the tags derived from meta into the image at path. A missing
// or unopenable file fails with CodeIO, even when the record yields no tags;
// an encoder failure fails with CodeMetadata. A record that yields no tags
// leaves an openable file untouched.
func (a *Applier) Apply(ctx context.Context, meta *sidecar.Metadata, path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0) //#nosec G304 -- path comes from the extracted export
	if err != nil {
		return errors.Wrapf(err, errors.CodeIO, "open image %s", path)
	}
	f.Close()

	tags := TagsFor(meta)
	if len(tags) == 0 {
		a.logger.Debug("no tags to embed", "path", path)
		return nil
	}

	if err := a.encoder.Write(ctx, path, tags); err != nil {
		if errors.Is(err, errors.ErrIO) || errors.Is(err, errors.ErrMetadata) {
			return err
		}
		return errors.Wrapf(err, errors.CodeMetadata, "write metadata to %s", path)
	}

	a.logger.Debug("metadata embedded", "path", path, "tags", len(tags))
	return nil
}
