package tires

import "github.com/google/uuid"

// uuidProvider issues time-ordered UUIDv7 strings for month and tire rows.
type uuidProvider struct {
	generate func() (uuid.UUID, error)
}

// NewUUIDProvider returns the IDProvider used in production.
func NewUUIDProvider() IDProvider {
	return uuidProvider{generate: uuid.NewV7}
}

func (p uuidProvider) NewID() (string, error) {
	id, err := p.generate()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
