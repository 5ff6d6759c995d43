package photos

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

var (
	// ErrInvalidKey indicates an empty or path-escaping object key.
	ErrInvalidKey = errors.New("photos: invalid object key")
	// ErrObjectNotFound indicates the key has no stored object.
	ErrObjectNotFound = errors.New("photos: object not found")
)

// Object is a single upload handed to a Store.
type Object struct {
	Key         string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Store persists photo objects and returns their public URL.
type Store interface {
	Put(ctx context.Context, object Object) (string, error)
}

// cleanKey normalizes a slash-separated key and rejects traversal.
func cleanKey(key string) (string, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(key), "/")
	if trimmed == "" {
		return "", ErrInvalidKey
	}
	for _, segment := range strings.Split(trimmed, "/") {
		if segment == ".." {
			return "", ErrInvalidKey
		}
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}

func joinURL(base string, segments ...string) string {
	parts := []string{strings.TrimRight(base, "/")}
	for _, segment := range segments {
		parts = append(parts, strings.Trim(segment, "/"))
	}
	return strings.Join(parts, "/")
}
