package photos

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// LocalStore keeps photos on a filesystem and serves them under publicBaseURL/photos.
type LocalStore struct {
	fs            afero.Fs
	publicBaseURL string
}

// NewLocalStore roots the store at dir on the OS filesystem.
func NewLocalStore(dir, publicBaseURL string) (*LocalStore, error) {
	if dir == "" {
		return nil, errors.New("photos: local directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return NewLocalStoreWithFs(afero.NewBasePathFs(afero.NewOsFs(), dir), publicBaseURL), nil
}

// NewLocalStoreWithFs uses the supplied filesystem as the store root.
func NewLocalStoreWithFs(fs afero.Fs, publicBaseURL string) *LocalStore {
	return &LocalStore{fs: fs, publicBaseURL: publicBaseURL}
}

// Put writes the object and returns the URL served by the photo route.
func (s *LocalStore) Put(ctx context.Context, object Object) (string, error) {
	key, err := cleanKey(object.Key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	target := filepath.FromSlash(key)
	if err := s.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}
	if err := afero.WriteReader(s.fs, target, object.Body); err != nil {
		return "", err
	}
	return joinURL(s.publicBaseURL, "photos", key), nil
}

// Open returns the stored object for reading.
func (s *LocalStore) Open(key string) (afero.File, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	file, err := s.fs.Open(filepath.FromSlash(cleaned))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, ErrObjectNotFound
	}
	return file, nil
}
