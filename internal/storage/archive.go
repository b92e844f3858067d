// Package storage keeps the searchable PDF of every finished packet.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"

	"pita/internal/logger"
)

// Archive takes ownership of a finished packet's PDF. On success the local
// source no longer exists.
type Archive interface {
	Store(ctx context.Context, src, name string) (string, error)
}

// LocalArchive renames PDFs into a folder on the same volume.
type LocalArchive struct {
	dir string
	log zerolog.Logger
}

// NewLocalArchive archives into dir.
func NewLocalArchive(dir string) *LocalArchive {
	return &LocalArchive{dir: dir, log: logger.WithComponent("archive")}
}

// Store moves src to dir/name, replacing an earlier archive of the same
// packet, and returns the new location.
func (a *LocalArchive) Store(ctx context.Context, src, name string) (string, error) {
	const op = "LocalArchive.Store"

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	dst := filepath.Join(a.dir, name)
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("%s: failed to move %s: %w", op, filepath.Base(src), err)
	}
	a.log.Info().Str("file", name).Str("dir", a.dir).Msg("PDF archived")
	return dst, nil
}

// GCSArchive uploads PDFs to a Cloud Storage bucket and removes the local copy.
type GCSArchive struct {
	bucket *storage.BucketHandle
	prefix string
	log    zerolog.Logger
}

// NewGCSArchive creates an archive writing to gs://bucket/prefix/.
func NewGCSArchive(client *storage.Client, bucket, prefix string) *GCSArchive {
	return &GCSArchive{
		bucket: client.Bucket(bucket),
		prefix: prefix,
		log:    logger.WithComponent("archive").With().Str("bucket", bucket).Logger(),
	}
}

// Store uploads src as prefix/name. An object that already exists is left
// untouched and counts as archived.
func (a *GCSArchive) Store(ctx context.Context, src, name string) (string, error) {
	const op = "GCSArchive.Store"

	object := name
	if a.prefix != "" {
		object = path.Join(a.prefix, name)
	}

	f, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer f.Close()

	w := a.bucket.Object(object).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = "application/pdf"
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return "", fmt.Errorf("%s: failed to upload %s: %w", op, object, err)
	}
	if err := w.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == 412 {
			a.log.Warn().Str("object", object).Msg("Object already archived, skipping upload")
		} else {
			return "", fmt.Errorf("%s: failed to finalize %s: %w", op, object, err)
		}
	}

	f.Close()
	if err := os.Remove(src); err != nil {
		a.log.Warn().Err(err).Str("file", src).Msg("Uploaded PDF could not be removed locally")
	}

	uri := "gs://" + a.bucket.BucketName() + "/" + object
	a.log.Info().Str("object", uri).Msg("PDF archived")
	return uri, nil
}
