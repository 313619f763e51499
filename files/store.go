package files

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/EPecherkin/catty-bills/deps"
	"github.com/EPecherkin/catty-bills/logger"
	"github.com/pkg/errors"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
)

// OpenBucket opens (creating when needed) the upload root as a blob bucket.
func OpenBucket(dir string) (*blob.Bucket, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving upload dir: %w", errors.WithStack(err))
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", errors.WithStack(err))
	}
	bucket, err := fileblob.OpenBucket(root, &fileblob.Options{
		CreateDir: true,
		// no .attrs sidecars, the raw file route would serve them
		Metadata: fileblob.MetadataDontWrite,
	})
	if err != nil {
		return nil, fmt.Errorf("opening upload bucket: %w", errors.WithStack(err))
	}
	return bucket, nil
}

// Store writes files into the upload root through deps.Files.
type Store struct {
	root string
	deps deps.Deps
}

func NewStore(root string, deps deps.Deps) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving upload dir: %w", errors.WithStack(err))
	}
	return &Store{root: abs, deps: deps.WithCaller("files.Store")}, nil
}

// Save copies r under key and returns the absolute path of the stored file.
func (store *Store) Save(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	if contentType == "" {
		contentType = ContentType(key)
	}
	w, err := store.deps.Files.NewWriter(ctx, key, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("creating new file writer: %w", errors.WithStack(err))
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("copying file to blob: %w", errors.WithStack(err))
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("closing writer: %w", errors.WithStack(err))
	}

	path := filepath.Join(store.root, filepath.FromSlash(key))
	store.deps.Logger.With(logger.FILE_PATH, path).Debug("Stored file")
	return path, nil
}

func (store *Store) Root() string {
	return store.root
}
